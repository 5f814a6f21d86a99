package core

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedRow marks a data row whose field count does not match the
	// header, or whose timestamp cannot be parsed. Such rows are skipped.
	ErrMalformedRow = errors.New("malformed row")
	// ErrDuplicateTimestamp is returned when appending at a timestamp that
	// already holds a live record.
	ErrDuplicateTimestamp = errors.New("record already exists at timestamp")
	// ErrColumnMismatch is returned when a record's cell count differs from
	// the table's header count minus one.
	ErrColumnMismatch = errors.New("record column count does not match headers")
	// ErrShadowCreate is returned when the shadow copy cannot be created or opened.
	ErrShadowCreate = errors.New("failed to create shadow copy")
	// ErrShadowPublish is returned when the shadow cannot be renamed over the
	// primary file after all retries.
	ErrShadowPublish = errors.New("failed to publish shadow copy")
	// ErrFileOpen is returned when the primary file cannot be opened.
	ErrFileOpen = errors.New("failed to open database file")
	// ErrSchemaViolation is returned when a record does not satisfy the column schema.
	ErrSchemaViolation = errors.New("schema violation")
)

// MalformedRowError describes a single skipped row.
type MalformedRowError struct {
	Line   int
	Reason string
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("malformed row at line %d: %s", e.Line, e.Reason)
}

func (e *MalformedRowError) Unwrap() error { return ErrMalformedRow }

// ValidationError is a custom error type for schema validation failures.
type ValidationError struct {
	Message string
	Column  string
	Value   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for column %s '%s': %s", e.Column, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrSchemaViolation }

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var validationError *ValidationError
	return errors.As(err, &validationError)
}

// IsMalformedRow reports whether err describes a skipped row.
func IsMalformedRow(err error) bool {
	return errors.Is(err, ErrMalformedRow)
}

// ErrUnsupportedType is returned when a Go value cannot be represented as a Cell.
var ErrUnsupportedType = errors.New("unsupported cell value type")

// ErrInvalidTimestamp is returned for NaN timestamps, which cannot be ordered.
var ErrInvalidTimestamp = errors.New("invalid timestamp")
