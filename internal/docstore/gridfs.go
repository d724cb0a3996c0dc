package docstore

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BartekS5/blobmigrate/internal/etl"
	"github.com/BartekS5/blobmigrate/pkg/models"
)

var _ etl.Uploader = (*GridFSUploader)(nil)

// GridFSUploader stores payloads as GridFS files whose id is the record's
// DocumentID, so a record can only be stored once per bucket.
type GridFSUploader struct {
	bucket  *gridfs.Bucket
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewGridFSUploader(db *mongo.Database, bucketName string, timeout time.Duration, log logrus.FieldLogger) (*GridFSUploader, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, fmt.Errorf("opening GridFS bucket %q: %w", bucketName, err)
	}
	return &GridFSUploader{bucket: bucket, timeout: timeout, log: log}, nil
}

func (g *GridFSUploader) Put(ctx context.Context, rec models.SourceRecord, pos etl.Position) error {
	if err := validateRecord("gridfs.Put", rec); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// The v1 GridFS API has no context parameter; translate the context
	// deadline and the configured timeout into a write deadline.
	var deadline time.Time
	if g.timeout > 0 {
		deadline = time.Now().Add(g.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := g.bucket.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("setting GridFS write deadline: %w", err)
	}

	opts := options.GridFSUpload().SetMetadata(documentMetadata(rec))
	if err := g.bucket.UploadFromStreamWithID(rec.DocumentID(), rec.ObjectName(), bytes.NewReader(rec.Payload), opts); err != nil {
		return fmt.Errorf("uploading %s to GridFS: %w", rec.ObjectName(), err)
	}
	g.log.WithFields(logrus.Fields{
		"id":    rec.DocumentID(),
		"index": pos.Index,
		"size":  rec.Size(),
	}).Debug("stored GridFS file")
	return nil
}
