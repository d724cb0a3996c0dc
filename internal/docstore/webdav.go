package docstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"resty.dev/v3"

	"github.com/BartekS5/blobmigrate/internal/etl"
	"github.com/BartekS5/blobmigrate/pkg/models"
)

var _ etl.Uploader = (*WebDAVUploader)(nil)

// WebDAVConfig describes a WebDAV endpoint such as a Nextcloud files root.
type WebDAVConfig struct {
	BaseURL  string
	Root     string
	User     string
	Password string
	Timeout  time.Duration
}

// WebDAVUploader PUTs payloads to <Root>/<entity>/<entity id>/<file id>,
// creating missing collections with MKCOL first.
type WebDAVUploader struct {
	client  *resty.Client
	root    []string
	created map[string]bool
	log     logrus.FieldLogger
}

func NewWebDAVUploader(cfg WebDAVConfig, log logrus.FieldLogger) *WebDAVUploader {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout)
	if cfg.User != "" {
		client.SetBasicAuth(cfg.User, cfg.Password)
	}
	return &WebDAVUploader{
		client:  client,
		root:    splitPath(cfg.Root),
		created: make(map[string]bool),
		log:     log,
	}
}

func (w *WebDAVUploader) Close() error {
	return w.client.Close()
}

func (w *WebDAVUploader) Put(ctx context.Context, rec models.SourceRecord, pos etl.Position) error {
	if err := validateRecord("webdav.Put", rec); err != nil {
		return err
	}
	segments := append(append([]string{}, w.root...), splitPath(rec.ObjectName())...)

	// Every ancestor collection below the root must exist before the PUT.
	for i := len(w.root) + 1; i < len(segments); i++ {
		if err := w.ensureCollection(ctx, segments[:i]); err != nil {
			return err
		}
	}

	target := joinEscaped(segments)
	res, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetBody(rec.Payload).
		Put(target)
	if err != nil {
		return fmt.Errorf("PUT %s: %w", target, err)
	}
	if res.IsError() {
		return fmt.Errorf("PUT %s: unexpected status %s", target, res.Status())
	}
	w.log.WithFields(logrus.Fields{
		"path":  target,
		"index": pos.Index,
		"size":  rec.Size(),
	}).Debug("stored WebDAV file")
	return nil
}

func (w *WebDAVUploader) ensureCollection(ctx context.Context, segments []string) error {
	target := joinEscaped(segments) + "/"
	if w.created[target] {
		return nil
	}
	res, err := w.client.R().SetContext(ctx).Execute("MKCOL", target)
	if err != nil {
		return fmt.Errorf("MKCOL %s: %w", target, err)
	}
	switch res.StatusCode() {
	case http.StatusCreated, http.StatusMethodNotAllowed:
		// 405 means the collection already exists.
	default:
		return fmt.Errorf("MKCOL %s: unexpected status %s", target, res.Status())
	}
	w.created[target] = true
	return nil
}

func splitPath(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func joinEscaped(segments []string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return "/" + strings.Join(escaped, "/")
}
