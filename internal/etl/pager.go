package etl

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/BartekS5/blobmigrate/pkg/models"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

var _ Pager = (*SQLPager)(nil)

// SQLPager selects migratable records from the pending-documents index.
// Every call checks out its own connection and returns it before exiting.
type SQLPager struct {
	db       *sqlx.DB
	dialect  Dialect
	catalog  *models.Catalog
	pageSize int
	log      logrus.FieldLogger
}

func NewSQLPager(db *sqlx.DB, dialect Dialect, catalog *models.Catalog, pageSize int, log logrus.FieldLogger) (*SQLPager, error) {
	if pageSize <= 0 || pageSize > MaxPageSize {
		return nil, configError("pager", "page size must be in [1, %d], got %d", MaxPageSize, pageSize)
	}
	if catalog == nil {
		catalog = models.DefaultCatalog()
	}
	if err := catalog.Validate(); err != nil {
		return nil, &Error{Kind: Config, Op: "pager", Err: err}
	}
	return &SQLPager{
		db:       db,
		dialect:  dialect,
		catalog:  catalog,
		pageSize: pageSize,
		log:      log,
	}, nil
}

func (p *SQLPager) PageSize() int { return p.pageSize }

func (p *SQLPager) kind(op, entityType string) (models.EntityKind, error) {
	kind, ok := p.catalog.Lookup(entityType)
	if !ok {
		return "", configError(op, "unsupported entity type %q (known: %v)", entityType, p.catalog.Names())
	}
	return kind, nil
}

// FetchPage returns up to PageSize records with OrderKey >= fromOrderKey in
// ascending order.
func (p *SQLPager) FetchPage(ctx context.Context, entityType string, fromOrderKey int64) ([]models.SourceRecord, error) {
	const op = "pager.FetchPage"
	kind, err := p.kind(op, entityType)
	if err != nil {
		return nil, err
	}
	q, err := buildPageQuery(p.catalog, p.dialect, kind, entityType, fromOrderKey, p.pageSize)
	if err != nil {
		return nil, err
	}
	log := p.log.WithFields(logrus.Fields{"entity": entityType, "from": fromOrderKey})

	conn, err := p.db.Connx(ctx)
	if err != nil {
		log.WithError(err).Error("acquiring source connection")
		return nil, transientError(op, err)
	}
	defer conn.Close()

	var records []models.SourceRecord
	if err := conn.SelectContext(ctx, &records, q.sql, q.args...); err != nil {
		log.WithError(err).Error("querying source page")
		return nil, transientError(op, err)
	}

	prev := fromOrderKey - 1
	for i := range records {
		if records[i].OrderKey <= prev {
			log.WithField("orderKey", records[i].OrderKey).Error("source returned out-of-order or duplicate order key")
			return nil, configError(op, "order key %d follows %d: join yields duplicate rows", records[i].OrderKey, prev)
		}
		prev = records[i].OrderKey
		records[i].EntityType = entityType
	}
	log.WithField("rows", len(records)).Debug("fetched page")
	return records, nil
}

// CountRemaining returns the number of eligible rows at or after the cursor.
func (p *SQLPager) CountRemaining(ctx context.Context, entityType string, fromOrderKey int64) (int64, error) {
	totals, err := p.Remaining(ctx, entityType, fromOrderKey)
	return totals.Rows, err
}

// Remaining returns the eligible row count and payload volume at or after the
// cursor.
func (p *SQLPager) Remaining(ctx context.Context, entityType string, fromOrderKey int64) (Totals, error) {
	const op = "pager.Remaining"
	kind, err := p.kind(op, entityType)
	if err != nil {
		return Totals{}, err
	}
	q, err := buildCountQuery(p.catalog, p.dialect, kind, entityType, fromOrderKey)
	if err != nil {
		return Totals{}, err
	}
	log := p.log.WithFields(logrus.Fields{"entity": entityType, "from": fromOrderKey})

	conn, err := p.db.Connx(ctx)
	if err != nil {
		log.WithError(err).Error("acquiring source connection")
		return Totals{}, transientError(op, err)
	}
	defer conn.Close()

	var row struct {
		Rows  int64 `db:"row_count"`
		Bytes int64 `db:"byte_count"`
	}
	if err := conn.GetContext(ctx, &row, q.sql, q.args...); err != nil {
		log.WithError(err).Error("counting remaining rows")
		return Totals{}, transientError(op, err)
	}
	return Totals{Rows: row.Rows, Bytes: row.Bytes}, nil
}
