package etl

import (
	"context"

	"github.com/BartekS5/blobmigrate/pkg/models"
)

// Totals describes the work remaining at a cursor.
type Totals struct {
	Rows  int64
	Bytes int64
}

// Position is handed to the uploader and the progress sink for every record.
// Index is zero-based; BytesProcessed already includes the current record.
type Position struct {
	Index          int64
	Total          int64
	BytesProcessed int64
	BytesTotal     int64
}

// Pager reads cursor-bounded pages of migratable records, ascending by
// OrderKey. fromOrderKey is inclusive.
type Pager interface {
	FetchPage(ctx context.Context, entityType string, fromOrderKey int64) ([]models.SourceRecord, error)
	CountRemaining(ctx context.Context, entityType string, fromOrderKey int64) (int64, error)
	Remaining(ctx context.Context, entityType string, fromOrderKey int64) (Totals, error)
}

// Uploader pushes one record into the document store. Any returned error is
// fatal for the current batch.
type Uploader interface {
	Put(ctx context.Context, record models.SourceRecord, pos Position) error
}

// CursorStore persists the last transferred OrderKey per entity type.
type CursorStore interface {
	Load(ctx context.Context, entityType string) (cursor int64, found bool, err error)
	Save(ctx context.Context, entityType string, cursor int64) error
}

// ProgressSink is the operator-facing progress display.
type ProgressSink interface {
	EmitBytes(label string, processed, total, bytesProcessed, bytesTotal int64) (string, error)
	Break()
}
