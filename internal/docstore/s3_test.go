package docstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/blobmigrate/internal/etl"
	"github.com/BartekS5/blobmigrate/pkg/logger"
	"github.com/BartekS5/blobmigrate/pkg/models"
)

func TestS3PutObject(t *testing.T) {
	var (
		mu     sync.Mutex
		path   string
		body   []byte
		entity string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusNotImplemented)
			return
		}
		mu.Lock()
		path = r.URL.Path
		body, _ = io.ReadAll(r.Body)
		entity = r.Header.Get("X-Amz-Meta-Entity")
		mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	up, err := NewS3Uploader(S3Config{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "blobs",
		Prefix:    "crm",
		Region:    "us-east-1",
	}, logger.Discard())
	require.NoError(t, err)

	rec := models.SourceRecord{OrderKey: 5, EntityType: "Contact", EntityID: "c9", FileID: "f3", Version: 2, Payload: []byte("hello")}
	require.NoError(t, up.Put(context.Background(), rec, etl.Position{}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/blobs/crm/Contact/c9/f3", path)
	assert.Equal(t, "Contact", entity)
	assert.Contains(t, string(body), "hello")
}

func TestS3ObjectKey(t *testing.T) {
	up, err := NewS3Uploader(S3Config{Endpoint: "localhost:9000", Bucket: "b"}, logger.Discard())
	require.NoError(t, err)
	rec := models.SourceRecord{EntityType: "Account", EntityID: "a", FileID: "f"}
	assert.Equal(t, "Account/a/f", up.objectKey(rec))
}
