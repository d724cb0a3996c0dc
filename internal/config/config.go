// Package config loads application settings from the environment (populated
// from .env in main) and the optional entity catalog file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Upload targets.
const (
	TargetGridFS = "gridfs"
	TargetWebDAV = "webdav"
	TargetS3     = "s3"
)

// Cursor store kinds.
const (
	CursorFile  = "file"
	CursorMongo = "mongo"
)

// Config holds all configuration for the application, typically loaded from
// environment variables.
type Config struct {
	SQLConnString string
	SQLDialect    string

	MongoConnString string
	MongoDatabase   string

	Target        string
	GridFSBucket  string
	UploadTimeout time.Duration

	WebDAVURL      string
	WebDAVRoot     string
	WebDAVUser     string
	WebDAVPassword string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Prefix    string
	S3Region    string
	S3UseSSL    bool

	CursorStore string
	CursorFile  string

	EntitiesFile string

	LogLevel string
	LogFile  string
}

// NeedsMongo reports whether any configured component talks to MongoDB.
func (c *Config) NeedsMongo() bool {
	return c.Target == TargetGridFS || c.CursorStore == CursorMongo
}

// LoadConfig loads application settings from environment variables
// (which should be populated by the .env file in main.go).
func LoadConfig() (*Config, error) {
	timeout, err := durationEnv("UPLOAD_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	useSSL, err := boolEnv("S3_USE_SSL", true)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		SQLConnString:   os.Getenv("SQL_CONNECTION_STRING"),
		SQLDialect:      envOr("SQL_DIALECT", "sqlserver"),
		MongoConnString: os.Getenv("MONGO_CONNECTION_STRING"),
		MongoDatabase:   envOr("MONGO_DATABASE", "blobmigrate"),
		Target:          strings.ToLower(envOr("TARGET", TargetGridFS)),
		GridFSBucket:    envOr("GRIDFS_BUCKET", "fs"),
		UploadTimeout:   timeout,
		WebDAVURL:       os.Getenv("WEBDAV_URL"),
		WebDAVRoot:      os.Getenv("WEBDAV_ROOT"),
		WebDAVUser:      os.Getenv("WEBDAV_USER"),
		WebDAVPassword:  os.Getenv("WEBDAV_PASSWORD"),
		S3Endpoint:      os.Getenv("S3_ENDPOINT"),
		S3AccessKey:     os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:     os.Getenv("S3_SECRET_KEY"),
		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3Prefix:        os.Getenv("S3_PREFIX"),
		S3Region:        os.Getenv("S3_REGION"),
		S3UseSSL:        useSSL,
		CursorStore:     strings.ToLower(envOr("CURSOR_STORE", CursorFile)),
		CursorFile:      envOr("CURSOR_FILE", "checkpoint.yaml"),
		EntitiesFile:    os.Getenv("ENTITIES_FILE"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
		LogFile:         os.Getenv("LOG_FILE"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every setting required by the selected target and
// cursor store is present.
func (c *Config) Validate() error {
	if c.SQLConnString == "" {
		return errors.New("SQL_CONNECTION_STRING environment variable not set")
	}

	var required [][2]string
	switch c.Target {
	case TargetGridFS:
	case TargetWebDAV:
		required = append(required, [2]string{"WEBDAV_URL", c.WebDAVURL})
	case TargetS3:
		required = append(required,
			[2]string{"S3_ENDPOINT", c.S3Endpoint},
			[2]string{"S3_ACCESS_KEY", c.S3AccessKey},
			[2]string{"S3_SECRET_KEY", c.S3SecretKey},
			[2]string{"S3_BUCKET", c.S3Bucket})
	default:
		return fmt.Errorf("unknown TARGET %q (want %s, %s or %s)", c.Target, TargetGridFS, TargetWebDAV, TargetS3)
	}

	switch c.CursorStore {
	case CursorFile:
		required = append(required, [2]string{"CURSOR_FILE", c.CursorFile})
	case CursorMongo:
	default:
		return fmt.Errorf("unknown CURSOR_STORE %q (want %s or %s)", c.CursorStore, CursorFile, CursorMongo)
	}
	if c.NeedsMongo() {
		required = append(required, [2]string{"MONGO_CONNECTION_STRING", c.MongoConnString})
	}

	for _, req := range required {
		if req[1] == "" {
			return fmt.Errorf("%s environment variable not set", req[0])
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}
