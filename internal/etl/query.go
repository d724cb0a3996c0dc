package etl

import (
	"fmt"
	"strings"

	"github.com/BartekS5/blobmigrate/pkg/models"
)

type query struct {
	sql  string
	args []any
}

// joinShape is the entity-specific part of a selection: how the documents
// index reaches the payload column.
type joinShape struct {
	joins   string
	payload string
}

func shapeFor(kind models.EntityKind, c *models.Catalog, d Dialect, entity string) (joinShape, error) {
	fileTable := d.table(c.Schema, entity+"File")
	ownerCol := d.quote(entity + "Id")

	switch kind {
	case models.KindDirect:
		return joinShape{
			joins: fmt.Sprintf(
				"INNER JOIN %s f ON f.Id = d.FileId AND f.%s = d.EntityId AND f.Version = d.Version",
				fileTable, ownerCol),
			payload: "f.Data",
		}, nil
	case models.KindVersioned:
		return joinShape{
			joins: fmt.Sprintf(
				"INNER JOIN %s fv ON fv.PTFile = d.FileId AND fv.PTVersion = d.Version "+
					"INNER JOIN %s cf ON cf.%s = d.EntityId AND cf.Id = fv.PTFile",
				d.table(c.Schema, c.RevisionsTable), fileTable, ownerCol),
			payload: "fv.PTData",
		}, nil
	default:
		return joinShape{}, configError("query", "entity %q: unsupported kind %q", entity, kind)
	}
}

// selection renders the FROM/WHERE shared by page and count queries. Its
// placeholders bind the document entity tag and the inclusive cursor.
func selection(c *models.Catalog, d Dialect, shape joinShape) string {
	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s d%s %s ", d.table(c.Schema, c.DocumentsTable), d.tableHint, shape.joins)
	b.WriteString("WHERE d.Entity = ? AND d.EntityId IS NOT NULL AND d.FileId IS NOT NULL ")
	fmt.Fprintf(&b, "AND %s IS NOT NULL AND %s(%s) > 0 ", shape.payload, d.lengthFn, shape.payload)
	b.WriteString("AND d.Number >= ?")
	return b.String()
}

func buildPageQuery(c *models.Catalog, d Dialect, kind models.EntityKind, entity string, from int64, limit int) (query, error) {
	shape, err := shapeFor(kind, c, d, entity)
	if err != nil {
		return query{}, err
	}
	cols := fmt.Sprintf("d.Number AS order_key, %s AS entity_id, %s AS file_id, d.Version AS version, %s AS payload",
		d.idText("d.EntityId"), d.idText("d.FileId"), shape.payload)
	tag := entity + "File"

	if d.topLimit {
		return query{
			sql:  d.rebind(fmt.Sprintf("SELECT TOP (?) %s %s ORDER BY d.Number", cols, selection(c, d, shape))),
			args: []any{limit, tag, from},
		}, nil
	}
	return query{
		sql:  d.rebind(fmt.Sprintf("SELECT %s %s ORDER BY d.Number LIMIT ?", cols, selection(c, d, shape))),
		args: []any{tag, from, limit},
	}, nil
}

func buildCountQuery(c *models.Catalog, d Dialect, kind models.EntityKind, entity string, from int64) (query, error) {
	shape, err := shapeFor(kind, c, d, entity)
	if err != nil {
		return query{}, err
	}
	sql := fmt.Sprintf("SELECT COUNT(*) AS row_count, COALESCE(SUM(CAST(%s(%s) AS BIGINT)), 0) AS byte_count %s",
		d.lengthFn, shape.payload, selection(c, d, shape))
	return query{sql: d.rebind(sql), args: []any{entity + "File", from}}, nil
}
