package models

import (
	"fmt"
	"path"
	"strconv"
)

// SourceRecord is one migratable row: a file payload owned by an entity in the
// source system, ordered by the pending-documents sequence number.
type SourceRecord struct {
	OrderKey   int64  `db:"order_key"`
	EntityType string `db:"entity_type"`
	EntityID   string `db:"entity_id"`
	FileID     string `db:"file_id"`
	Version    int64  `db:"version"`
	Payload    []byte `db:"payload"`
}

// Size returns the payload length in bytes.
func (r SourceRecord) Size() int64 {
	return int64(len(r.Payload))
}

// ObjectName is the stable remote name of the record: entity/owner/file.
func (r SourceRecord) ObjectName() string {
	return path.Join(r.EntityType, r.EntityID, r.FileID)
}

// DocumentID identifies the record for stores keyed by id.
func (r SourceRecord) DocumentID() string {
	return r.EntityType + ":" + strconv.FormatInt(r.OrderKey, 10)
}

func (r SourceRecord) String() string {
	return fmt.Sprintf("%s #%d (entity %s, file %s, v%d)", r.EntityType, r.OrderKey, r.EntityID, r.FileID, r.Version)
}

// TotalBytes sums the payload sizes of records.
func TotalBytes(records []SourceRecord) int64 {
	var n int64
	for _, r := range records {
		n += r.Size()
	}
	return n
}
