package etl

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/BartekS5/blobmigrate/pkg/models"
)

const DefaultLabel = "Uploading"

// Result summarizes the records of one Transfer call that reached the
// document store.
type Result struct {
	Processed      int64
	BytesProcessed int64
	// LastOrderKey is the OrderKey of the last uploaded record; zero when
	// Processed is zero.
	LastOrderKey int64
}

// Snapshot is a point-in-time view of an in-flight transfer.
type Snapshot struct {
	Active         bool
	Processed      int64
	Total          int64
	BytesProcessed int64
	BytesTotal     int64
}

type counters struct {
	processed  atomic.Int64
	bytes      atomic.Int64
	total      int64
	bytesTotal int64
}

// Orchestrator uploads records one at a time and stops at the first failure.
type Orchestrator struct {
	uploader Uploader
	progress ProgressSink
	label    string
	log      logrus.FieldLogger

	current atomic.Pointer[counters]
}

// NewOrchestrator wires an uploader to an optional progress sink.
func NewOrchestrator(uploader Uploader, progress ProgressSink, label string, log logrus.FieldLogger) *Orchestrator {
	if label == "" {
		label = DefaultLabel
	}
	return &Orchestrator{
		uploader: uploader,
		progress: progress,
		label:    label,
		log:      log,
	}
}

// Snapshot may be called from any goroutine while a transfer runs.
func (o *Orchestrator) Snapshot() Snapshot {
	c := o.current.Load()
	if c == nil {
		return Snapshot{}
	}
	return Snapshot{
		Active:         true,
		Processed:      c.processed.Load(),
		Total:          c.total,
		BytesProcessed: c.bytes.Load(),
		BytesTotal:     c.bytesTotal,
	}
}

// Transfer uploads records in order; totalBytes is the payload volume used for
// progress display.
func (o *Orchestrator) Transfer(ctx context.Context, records []models.SourceRecord, totalBytes int64) (Result, error) {
	return o.TransferFrom(ctx, records, Totals{Rows: int64(len(records)), Bytes: totalBytes}, Position{})
}

// TransferFrom is Transfer for one slice of a larger run: progress indices and
// byte counts continue from start and are measured against totals.
func (o *Orchestrator) TransferFrom(ctx context.Context, records []models.SourceRecord, totals Totals, start Position) (Result, error) {
	const op = "orchestrator.Transfer"
	var res Result
	if len(records) == 0 {
		return res, nil
	}
	if totals.Rows <= 0 {
		return res, configError(op, "progress total must be positive, got %d", totals.Rows)
	}
	if start.Index < 0 || start.Index+int64(len(records)) > totals.Rows {
		return res, configError(op, "%d records starting at index %d exceed total %d", len(records), start.Index, totals.Rows)
	}

	c := &counters{total: totals.Rows, bytesTotal: totals.Bytes}
	c.processed.Store(start.Index)
	c.bytes.Store(start.BytesProcessed)
	o.current.Store(c)
	defer o.current.Store(nil)

	bytesSoFar := start.BytesProcessed
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, o.abort(rec, res, err)
		}

		bytesSoFar += rec.Size()
		c.bytes.Store(bytesSoFar)
		pos := Position{
			Index:          start.Index + int64(i),
			Total:          totals.Rows,
			BytesProcessed: bytesSoFar,
			BytesTotal:     totals.Bytes,
		}

		// An upload that has started runs to completion; cancellation only
		// stops the batch before the next record.
		if err := o.uploader.Put(context.WithoutCancel(ctx), rec, pos); err != nil {
			return res, o.abort(rec, res, classify("upload", err))
		}
		c.processed.Add(1)
		res.Processed++
		res.BytesProcessed += rec.Size()
		res.LastOrderKey = rec.OrderKey

		if o.progress != nil {
			if _, err := o.progress.EmitBytes(o.label, pos.Index, pos.Total, pos.BytesProcessed, pos.BytesTotal); err != nil {
				o.log.WithError(err).Debug("writing progress line")
			}
		}
	}
	return res, nil
}

// Finish terminates a progress line left open by a run whose final record
// index never reached the announced total.
func (o *Orchestrator) Finish() {
	if o.progress != nil {
		o.progress.Break()
	}
}

func (o *Orchestrator) abort(rec models.SourceRecord, res Result, err error) error {
	if o.progress != nil {
		o.progress.Break()
	}
	o.log.WithFields(logrus.Fields{
		"entity":   rec.EntityType,
		"orderKey": rec.OrderKey,
		"entityId": rec.EntityID,
		"fileId":   rec.FileID,
		"version":  rec.Version,
	}).WithError(err).Error("transfer aborted")
	return &PartialBatchError{
		Confirmed:     res.Processed,
		LastConfirmed: res.LastOrderKey,
		Failed:        rec,
		Err:           err,
	}
}

// classify wraps unclassified failures as transient.
func classify(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return transientError(op, err)
}
