// Package etlerr holds the sentinel errors shared by all pipeline stages.
//
// Stages wrap these with fmt.Errorf("...: %w", ...) so callers can classify a
// failure with errors.Is regardless of which component produced it.
package etlerr

import "errors"

var (
	// ErrInvalidSource means the source failed validation before loading
	// (unknown extension, missing file).
	ErrInvalidSource = errors.New("invalid source")

	// ErrUnsupportedFormat means the source format is recognized but cannot be
	// read by the selected component.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrParse means raw bytes could not be turned into records.
	ErrParse = errors.New("parse failure")

	// ErrTransform means a transformer failed on the batch.
	ErrTransform = errors.New("transform failure")

	// ErrRowConversion is row-scoped and never fatal: the row is skipped and
	// the reason is logged.
	ErrRowConversion = errors.New("row conversion failure")

	// ErrBatchInsert is fatal: a batch failed to commit and the run aborts.
	ErrBatchInsert = errors.New("batch insert failure")

	// ErrTimedOut means the source could not be acquired within the
	// configured timeout.
	ErrTimedOut = errors.New("timed out")

	// ErrUnknownComponent means a pipeline referenced an unregistered name.
	ErrUnknownComponent = errors.New("unknown component")

	// ErrInvalidComponent means a registered value does not satisfy the
	// contract of its slot.
	ErrInvalidComponent = errors.New("invalid component")
)
