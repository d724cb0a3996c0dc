package etl

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/BartekS5/blobmigrate/pkg/utils"
)

const DefaultChunkSize = 20

// Pipeline drives a full migration run for one entity type: it pages through
// the source, hands chunks to the orchestrator and checkpoints the cursor
// after every chunk that reached the document store.
type Pipeline struct {
	Pager        Pager
	Orchestrator *Orchestrator
	// Cursors may be nil, in which case nothing is persisted.
	Cursors   CursorStore
	ChunkSize int
	DryRun    bool
	Log       logrus.FieldLogger
}

// Summary describes a finished (or aborted) run.
type Summary struct {
	RunID    string
	Entity   string
	From     int64
	Cursor   int64
	Rows     int64
	Bytes    int64
	Duration time.Duration
}

// Rate returns transferred records per second.
func (s Summary) Rate() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Rows) / s.Duration.Seconds()
}

// Run migrates every eligible record with OrderKey >= from. The returned
// summary is valid on error too; its Cursor is the last confirmed OrderKey
// (from-1 when nothing was confirmed).
func (p *Pipeline) Run(ctx context.Context, entity string, from int64) (sum Summary, err error) {
	const op = "pipeline.Run"
	sum = Summary{RunID: uuid.NewString(), Entity: entity, From: from, Cursor: from - 1}
	if p.ChunkSize <= 0 {
		return sum, configError(op, "chunk size must be positive, got %d", p.ChunkSize)
	}
	log := p.Log.WithFields(logrus.Fields{"run": sum.RunID, "entity": entity})
	started := time.Now()
	defer func() { sum.Duration = time.Since(started) }()
	if p.Orchestrator != nil && !p.DryRun {
		defer p.Orchestrator.Finish()
	}

	totals, err := p.Pager.Remaining(ctx, entity, from)
	if err != nil {
		return sum, err
	}
	log.WithFields(logrus.Fields{
		"from":    from,
		"rows":    totals.Rows,
		"bytes":   totals.Bytes,
		"chunk":   p.ChunkSize,
		"dry_run": p.DryRun,
	}).Info("starting migration")
	if totals.Rows == 0 {
		log.Info("no eligible records, nothing to migrate")
		return sum, nil
	}

	var pos Position
	next := from
	for {
		page, err := p.Pager.FetchPage(ctx, entity, next)
		if err != nil {
			return sum, err
		}
		if len(page) == 0 {
			break
		}
		next = page[len(page)-1].OrderKey + 1

		// Rows committed after the initial count still get migrated.
		if grown := pos.Index + int64(len(page)); grown > totals.Rows {
			totals.Rows = grown
		}

		if p.DryRun {
			log.WithFields(logrus.Fields{"rows": len(page), "first": page[0].OrderKey, "last": next - 1}).
				Info("[DRY RUN] would upload page")
			for _, rec := range page {
				pos.BytesProcessed += rec.Size()
			}
			pos.Index += int64(len(page))
			sum.Rows = pos.Index
			sum.Bytes = pos.BytesProcessed
			continue
		}

		chunks, err := utils.Split(page, p.ChunkSize)
		if err != nil {
			return sum, &Error{Kind: Config, Op: op, Err: err}
		}
		for chunk := range chunks {
			res, terr := p.Orchestrator.TransferFrom(ctx, chunk, totals, pos)
			pos.Index += res.Processed
			pos.BytesProcessed += res.BytesProcessed
			sum.Rows = pos.Index
			sum.Bytes = pos.BytesProcessed

			if res.Processed > 0 {
				sum.Cursor = res.LastOrderKey
				if err := p.checkpoint(ctx, log, entity, sum.Cursor); err != nil {
					if terr != nil {
						return sum, errors.Join(terr, err)
					}
					return sum, err
				}
			}
			if terr != nil {
				return sum, terr
			}
		}
	}

	sum.Duration = time.Since(started)
	log.WithFields(logrus.Fields{
		"rows":   sum.Rows,
		"bytes":  sum.Bytes,
		"cursor": sum.Cursor,
		"rate":   sum.Rate(),
	}).Info("migration finished")
	return sum, nil
}

func (p *Pipeline) checkpoint(ctx context.Context, log logrus.FieldLogger, entity string, cursor int64) error {
	if p.Cursors == nil {
		return nil
	}
	if err := p.Cursors.Save(ctx, entity, cursor); err != nil {
		log.WithError(err).WithField("cursor", cursor).Error("saving resume cursor")
		return transientError("pipeline.checkpoint", err)
	}
	return nil
}
