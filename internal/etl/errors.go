package etl

import (
	"fmt"

	"github.com/BartekS5/blobmigrate/pkg/models"
)

// Kind classifies migration failures. A Kind is itself an error so that it can
// be used as an errors.Is target:
//
//	if errors.Is(err, etl.Config) { ... }
type Kind uint8

const (
	// Transient covers source-store and document-store I/O failures.
	Transient Kind = iota + 1
	// Config covers caller mistakes rejected before any I/O.
	Config
	// PartialBatch means a strict prefix of a batch was transferred.
	PartialBatch
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient i/o failure"
	case Config:
		return "invalid configuration"
	case PartialBatch:
		return "partial batch failure"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) Error() string { return k.String() }

// Error is a classified failure of operation Op.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

func transientError(op string, err error) error {
	return &Error{Kind: Transient, Op: op, Err: err}
}

func configError(op, format string, args ...any) error {
	return &Error{Kind: Config, Op: op, Err: fmt.Errorf(format, args...)}
}

// PartialBatchError reports an aborted transfer. Records before Failed were
// uploaded; Failed and everything after it were not.
type PartialBatchError struct {
	// Confirmed is the number of records of the batch that were uploaded.
	Confirmed int64
	// LastConfirmed is the OrderKey of the last uploaded record; only
	// meaningful when Confirmed > 0.
	LastConfirmed int64
	Failed        models.SourceRecord
	Err           error
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("transfer aborted at %s after %d confirmed: %v", e.Failed, e.Confirmed, e.Err)
}

func (e *PartialBatchError) Unwrap() error { return e.Err }

func (e *PartialBatchError) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == PartialBatch
}

// HasConfirmed reports whether any record of the batch was uploaded.
func (e *PartialBatchError) HasConfirmed() bool { return e.Confirmed > 0 }

// ResumeCursor returns the cursor a caller should persist after the failure:
// the last confirmed OrderKey, or fallback when nothing was confirmed.
func (e *PartialBatchError) ResumeCursor(fallback int64) int64 {
	if !e.HasConfirmed() {
		return fallback
	}
	return e.LastConfirmed
}
