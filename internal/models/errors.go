package models

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingModel means a model artifact could not be found at its configured path.
	ErrMissingModel = errors.New("model not found")
	// ErrSchemaMismatch means a feature vector or table does not match the expected layout.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrMissingNameColumn means a patient was selected in a table that has no Name column.
	ErrMissingNameColumn = fmt.Errorf("%w: no Name column", ErrSchemaMismatch)
	// ErrUnreadableFile means an uploaded report or model artifact could not be decoded.
	ErrUnreadableFile = errors.New("unreadable file")
	// ErrUnknownDisease means the requested disease has no schema.
	ErrUnknownDisease = errors.New("unknown disease")
)

// InvalidNumberMessage is the user-facing text for a ConversionError.
const InvalidNumberMessage = "Please enter valid numbers"

// ConversionError reports a field value that is not a finite number after substitution.
type ConversionError struct {
	Field string
	Value string
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("field %s: invalid number %q", e.Field, e.Value)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// IsConversionError reports whether err is or wraps a ConversionError.
func IsConversionError(err error) bool {
	var ce *ConversionError
	return errors.As(err, &ce)
}
