package docstore

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"github.com/BartekS5/blobmigrate/internal/etl"
	"github.com/BartekS5/blobmigrate/pkg/models"
)

var _ etl.Uploader = (*S3Uploader)(nil)

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Region    string
	UseSSL    bool
	Timeout   time.Duration
}

// S3Uploader writes payloads as objects into an S3 compatible bucket.
type S3Uploader struct {
	client  *minio.Client
	bucket  string
	prefix  string
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewS3Uploader(cfg S3Config, log logrus.FieldLogger) (*S3Uploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating S3 client for %s: %w", cfg.Endpoint, err)
	}
	return &S3Uploader{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		timeout: cfg.Timeout,
		log:     log,
	}, nil
}

// EnsureBucket creates the target bucket when it does not exist yet.
func (s *S3Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("creating bucket %q: %w", s.bucket, err)
	}
	s.log.WithField("bucket", s.bucket).Info("created bucket")
	return nil
}

func (s *S3Uploader) objectKey(rec models.SourceRecord) string {
	return path.Join(s.prefix, rec.ObjectName())
}

func (s *S3Uploader) Put(ctx context.Context, rec models.SourceRecord, pos etl.Position) error {
	if err := validateRecord("s3.Put", rec); err != nil {
		return err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	key := s.objectKey(rec)
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(rec.Payload), rec.Size(), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: objectMetadata(rec),
	})
	if err != nil {
		return fmt.Errorf("uploading %s to bucket %q: %w", key, s.bucket, err)
	}
	s.log.WithFields(logrus.Fields{
		"key":   key,
		"etag":  info.ETag,
		"index": pos.Index,
		"size":  info.Size,
	}).Debug("stored S3 object")
	return nil
}
