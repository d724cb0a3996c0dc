// Package docstore contains the document-store uploaders the migration can
// push records into.
package docstore

import (
	"errors"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/BartekS5/blobmigrate/internal/etl"
	"github.com/BartekS5/blobmigrate/pkg/models"
)

const contentType = "application/octet-stream"

// validateRecord rejects records that must never reach a store. The pager
// never yields them; anything else calling Put gets a Config error.
func validateRecord(op string, rec models.SourceRecord) error {
	var err error
	switch {
	case rec.EntityType == "":
		err = errors.New("record has no entity type")
	case rec.EntityID == "" || rec.FileID == "":
		err = errors.New("record has no entity or file id")
	case len(rec.Payload) == 0:
		err = errors.New("record has no payload")
	}
	if err != nil {
		return &etl.Error{Kind: etl.Config, Op: op, Err: err}
	}
	return nil
}

// documentMetadata is stored next to GridFS files.
func documentMetadata(rec models.SourceRecord) bson.D {
	return bson.D{
		{Key: "entity", Value: rec.EntityType},
		{Key: "entityId", Value: rec.EntityID},
		{Key: "fileId", Value: rec.FileID},
		{Key: "version", Value: rec.Version},
		{Key: "orderKey", Value: rec.OrderKey},
	}
}

// objectMetadata is attached to objects in stores with string-only metadata.
func objectMetadata(rec models.SourceRecord) map[string]string {
	return map[string]string{
		"entity":    rec.EntityType,
		"entity-id": rec.EntityID,
		"file-id":   rec.FileID,
		"version":   strconv.FormatInt(rec.Version, 10),
		"order-key": strconv.FormatInt(rec.OrderKey, 10),
	}
}
