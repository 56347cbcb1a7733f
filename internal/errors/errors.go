// Package errors defines the typed error kinds surfaced by the test-impact
// engine, per spec.md §7. The core never retries and never promotes an
// error to fatal; it surfaces a typed error and lets the caller decide.
package errors

import (
	"fmt"
	"time"

	"github.com/standardbeagle/testimpact/internal/types"
)

// ErrorType names one of the five error kinds in spec.md §7.
type ErrorType string

const (
	ErrorTypeFileMissing  ErrorType = "file_missing"
	ErrorTypeParseFailure ErrorType = "parse_failure"
	ErrorTypeIndexCorrupt ErrorType = "index_corrupt"
	ErrorTypeTracer       ErrorType = "tracer_failure"
	ErrorTypeStoreIO      ErrorType = "store_io_error"
)

// FileMissingError reports that an indexed file is no longer on disk.
// Policy: treat as an empty fingerprint; dependents become affected.
type FileMissingError struct {
	Path      types.FilePath
	Timestamp time.Time
}

func NewFileMissingError(path types.FilePath) *FileMissingError {
	return &FileMissingError{Path: path, Timestamp: time.Now()}
}

func (e *FileMissingError) Error() string {
	return fmt.Sprintf("file_missing: %s no longer on disk", e.Path)
}

// ParseFailureError reports that a source file could not be parsed.
// Policy: degenerate single-block fingerprint over raw bytes.
type ParseFailureError struct {
	Path       types.FilePath
	Underlying error
	Timestamp  time.Time
}

func NewParseFailureError(path types.FilePath, err error) *ParseFailureError {
	return &ParseFailureError{Path: path, Underlying: err, Timestamp: time.Now()}
}

func (e *ParseFailureError) Error() string {
	return fmt.Sprintf("parse_failure: %s: %v", e.Path, e.Underlying)
}

func (e *ParseFailureError) Unwrap() error { return e.Underlying }

// IndexCorruptError reports that a stored blob failed decompression or
// deserialization. Policy: surface to caller, never silently rewrite.
type IndexCorruptError struct {
	Variant    types.Variant
	Attribute  string
	Underlying error
	Timestamp  time.Time
}

func NewIndexCorruptError(v types.Variant, attribute string, err error) *IndexCorruptError {
	return &IndexCorruptError{Variant: v, Attribute: attribute, Underlying: err, Timestamp: time.Now()}
}

func (e *IndexCorruptError) Error() string {
	return fmt.Sprintf("index_corrupt: %s: %v", types.DataID(e.Variant, e.Attribute), e.Underlying)
}

func (e *IndexCorruptError) Unwrap() error { return e.Underlying }

// TracerError wraps a failure raised by the coverage tracer collaborator.
// Policy: propagate; the staged record for the failing test is not committed.
type TracerError struct {
	TestID     types.TestId
	Underlying error
	Timestamp  time.Time
}

func NewTracerError(testID types.TestId, err error) *TracerError {
	return &TracerError{TestID: testID, Underlying: err, Timestamp: time.Now()}
}

func (e *TracerError) Error() string {
	return fmt.Sprintf("tracer_failure: %s: %v", e.TestID, e.Underlying)
}

func (e *TracerError) Unwrap() error { return e.Underlying }

// StoreIOError reports a filesystem error on flush. Policy: propagate; no
// partial state is persisted.
type StoreIOError struct {
	Operation  string
	Underlying error
	Timestamp  time.Time
}

func NewStoreIOError(op string, err error) *StoreIOError {
	return &StoreIOError{Operation: op, Underlying: err, Timestamp: time.Now()}
}

func (e *StoreIOError) Error() string {
	return fmt.Sprintf("store_io_error: %s: %v", e.Operation, e.Underlying)
}

func (e *StoreIOError) Unwrap() error { return e.Underlying }
