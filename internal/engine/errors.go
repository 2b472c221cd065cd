package engine

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/roach88/tagbatch/internal/dispatch"
	"github.com/roach88/tagbatch/internal/variant"
)

// ErrorCode categorizes step errors raised by the engine itself. Registry
// and store failures keep their variant.ErrorCode.
type ErrorCode string

const (
	// ErrCodeUnknownID indicates a step referenced an ID never inserted.
	ErrCodeUnknownID ErrorCode = "UNKNOWN_ID"

	// ErrCodeDuplicateID indicates an insert reused an ID that is still live.
	ErrCodeDuplicateID ErrorCode = "DUPLICATE_ID"

	// ErrCodeInvalidFields indicates field values that do not fit the layout.
	ErrCodeInvalidFields ErrorCode = "INVALID_FIELDS"

	// ErrCodeOperationFailed indicates an operation failed during a sweep.
	ErrCodeOperationFailed ErrorCode = "OPERATION_FAILED"

	// ErrCodeInvalidVariantSet indicates the set could not be registered.
	ErrCodeInvalidVariantSet ErrorCode = "INVALID_VARIANT_SET"
)

// StepError is an engine-level step failure.
type StepError struct {
	Code    ErrorCode
	Message string
	ID      string
	Err     error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.ID != "" {
		return fmt.Sprintf("%s: %s (id=%s)", e.Code, msg, e.ID)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *StepError) Unwrap() error { return e.Err }

// CodeOf returns the canonical UPPER_SNAKE code of err: the variant code
// for registry and store errors, OPERATION_FAILED for operation failures,
// the StepError code otherwise. Returns "" for foreign errors.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	if c := variant.CodeOf(err); c != "" {
		return string(c)
	}
	var op *dispatch.OpError
	if errors.As(err, &op) {
		return string(ErrCodeOperationFailed)
	}
	var se *StepError
	if errors.As(err, &se) {
		return string(se.Code)
	}
	return ""
}

// NormalizeCode maps "InvalidHandle", "invalid_handle" and "INVALID_HANDLE"
// to "INVALID_HANDLE".
func NormalizeCode(s string) string {
	s = strings.TrimSpace(s)
	if strings.ContainsRune(s, '_') || strings.ToUpper(s) == s {
		return strings.ToUpper(s)
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
