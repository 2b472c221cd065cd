package variant

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes registry and store errors.
type ErrorCode string

const (
	// CodeDuplicateLabel indicates the label is already registered.
	CodeDuplicateLabel ErrorCode = "DUPLICATE_LABEL"

	// CodeRegistryClosed indicates Register was called after Seal.
	CodeRegistryClosed ErrorCode = "REGISTRY_CLOSED"

	// CodeRegistryOpen indicates a sealed registry was required.
	CodeRegistryOpen ErrorCode = "REGISTRY_OPEN"

	// CodeUnknownTag indicates a tag that the registry never minted.
	CodeUnknownTag ErrorCode = "UNKNOWN_TAG"

	// CodeOversizedPayload indicates a layout larger than the inline cap.
	CodeOversizedPayload ErrorCode = "OVERSIZED_PAYLOAD"

	// CodePayloadSizeMismatch indicates payload bytes of the wrong length.
	CodePayloadSizeMismatch ErrorCode = "PAYLOAD_SIZE_MISMATCH"

	// CodeInvalidHandle indicates a removed, stale or foreign handle.
	CodeInvalidHandle ErrorCode = "INVALID_HANDLE"

	// CodeDirtyStoreViolation indicates a mutation during an in-flight sweep.
	CodeDirtyStoreViolation ErrorCode = "DIRTY_STORE_VIOLATION"

	// CodeInvalidLabel indicates an empty label.
	CodeInvalidLabel ErrorCode = "INVALID_LABEL"

	// CodeInvalidOperation indicates a nil operation.
	CodeInvalidOperation ErrorCode = "INVALID_OPERATION"
)

// Sentinels for errors.Is. Matching is by Code, so a detailed *Error built
// by the registry or store matches its sentinel.
var (
	ErrDuplicateLabel      = &Error{Code: CodeDuplicateLabel}
	ErrRegistryClosed      = &Error{Code: CodeRegistryClosed}
	ErrRegistryOpen        = &Error{Code: CodeRegistryOpen}
	ErrUnknownTag          = &Error{Code: CodeUnknownTag}
	ErrOversizedPayload    = &Error{Code: CodeOversizedPayload}
	ErrPayloadSizeMismatch = &Error{Code: CodePayloadSizeMismatch}
	ErrInvalidHandle       = &Error{Code: CodeInvalidHandle}
	ErrDirtyStoreViolation = &Error{Code: CodeDirtyStoreViolation}
	ErrInvalidLabel        = &Error{Code: CodeInvalidLabel}
	ErrInvalidOperation    = &Error{Code: CodeInvalidOperation}
)

// Error is the error type returned by Registry and Store operations.
//
// Errors are reported synchronously at the call that caused them. Nothing
// is retried.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Label is the variant label involved, if any.
	Label string

	// Tag is the tag involved, if HasTag is set.
	Tag    Tag
	HasTag bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "variant error"
	}
	switch {
	case e.Label != "" && e.HasTag:
		return fmt.Sprintf("%s: %s (label=%q, tag=%d)", e.Code, msg, e.Label, e.Tag)
	case e.Label != "":
		return fmt.Sprintf("%s: %s (label=%q)", e.Code, msg, e.Label)
	case e.HasTag:
		return fmt.Sprintf("%s: %s (tag=%d)", e.Code, msg, e.Tag)
	default:
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// IsCode reports whether err, or anything it wraps, is an *Error with code.
func IsCode(err error, code ErrorCode) bool {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Code == code
	}
	return false
}

// CodeOf extracts the ErrorCode from err. Returns "" for foreign errors.
func CodeOf(err error) ErrorCode {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// ParseCode maps the short names used in scenario files ("UnknownTag",
// "InvalidHandle", ...) and the wire codes ("UNKNOWN_TAG") to an ErrorCode.
func ParseCode(s string) (ErrorCode, bool) {
	for _, c := range allCodes {
		if s == string(c.code) || s == c.name {
			return c.code, true
		}
	}
	return "", false
}

var allCodes = []struct {
	code ErrorCode
	name string
}{
	{CodeDuplicateLabel, "DuplicateLabel"},
	{CodeRegistryClosed, "RegistryClosed"},
	{CodeRegistryOpen, "RegistryOpen"},
	{CodeUnknownTag, "UnknownTag"},
	{CodeOversizedPayload, "OversizedPayload"},
	{CodePayloadSizeMismatch, "PayloadSizeMismatch"},
	{CodeInvalidHandle, "InvalidHandle"},
	{CodeDirtyStoreViolation, "DirtyStoreViolation"},
	{CodeInvalidLabel, "InvalidLabel"},
	{CodeInvalidOperation, "InvalidOperation"},
}

func unknownTag(tag Tag, msg string) *Error {
	return &Error{Code: CodeUnknownTag, Message: msg, Tag: tag, HasTag: true}
}

func sizeMismatch(tag Tag, got, want int) *Error {
	return &Error{
		Code:    CodePayloadSizeMismatch,
		Message: fmt.Sprintf("payload is %d bytes, variant declares %d", got, want),
		Tag:     tag,
		HasTag:  true,
	}
}
