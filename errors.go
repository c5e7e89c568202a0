// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package contextframe

import "fmt"

// ErrCode represents the collection of error kinds that may be returned by
// any layer of the dataset engine (see spec §7).
type ErrCode int

const (
	// InternalErr indicates an unknown, internal error has occurred.
	InternalErr ErrCode = iota

	// ValidationErr indicates a record violates the schema or a field
	// invariant. No state change occurs.
	ValidationErr

	// NotFoundErr indicates a uuid/tag/version/index/fragment reference
	// does not resolve.
	NotFoundErr

	// ConflictErr indicates a concurrent commit invalidated the base
	// version a transaction was staged against. The caller should
	// refresh to the new version and retry.
	ConflictErr

	// SchemaEvolutionErr indicates an illegal schema change, e.g.
	// changing embed_dim after a vector has been written.
	SchemaEvolutionErr

	// IndexInvalidErr indicates an index references fragments that have
	// since been compacted away. The index must be rebuilt.
	IndexInvalidErr

	// IOErr indicates a storage failure occurred mid-operation. Any
	// staged files are orphaned and reclaimed by maintenance.
	IOErr

	// CorruptionErr indicates a checksum mismatch was detected on read.
	CorruptionErr

	// CancelledErr indicates cooperative cancellation terminated an
	// operation. This is a normal termination, not a failure.
	CancelledErr

	// UnsupportedErr indicates a feature or code path is not implemented
	// for the configured backend.
	UnsupportedErr
)

func (c ErrCode) String() string {
	switch c {
	case ValidationErr:
		return "validation_error"
	case NotFoundErr:
		return "not_found"
	case ConflictErr:
		return "conflict"
	case SchemaEvolutionErr:
		return "schema_evolution_error"
	case IndexInvalidErr:
		return "index_invalid"
	case IOErr:
		return "io_error"
	case CorruptionErr:
		return "corruption"
	case CancelledErr:
		return "cancelled"
	case UnsupportedErr:
		return "unsupported"
	default:
		return "internal_error"
	}
}

// Error is the error type returned throughout the dataset engine. It
// carries a classification code plus an optional list of violations for
// validation failures (spec §4.1: "returns all violations, not just the
// first").
type Error struct {
	Code       ErrCode
	Message    string
	Violations []string
	cause      error
}

func (err *Error) Error() string {
	if len(err.Violations) > 0 {
		return fmt.Sprintf("contextframe error (%s): %s: %v", err.Code, err.Message, err.Violations)
	}
	if err.cause != nil {
		return fmt.Sprintf("contextframe error (%s): %s: %v", err.Code, err.Message, err.cause)
	}
	return fmt.Sprintf("contextframe error (%s): %s", err.Code, err.Message)
}

// Unwrap supports errors.Is/errors.As against a wrapped cause.
func (err *Error) Unwrap() error {
	return err.cause
}

// NewError constructs an *Error with the given code and formatted message.
func NewError(code ErrCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error that wraps a lower-level cause.
func Wrap(code ErrCode, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// NewValidationError constructs a ValidationErr carrying the full list of
// violations found (spec §4.1 validation is total, not short-circuiting).
func NewValidationError(violations []string) *Error {
	return &Error{
		Code:       ValidationErr,
		Message:    "record failed validation",
		Violations: violations,
	}
}

func errCode(err error) (ErrCode, bool) {
	if e, ok := err.(*Error); ok {
		return e.Code, true
	}
	return InternalErr, false
}

// IsValidation returns true if err is a ValidationErr.
func IsValidation(err error) bool { c, ok := errCode(err); return ok && c == ValidationErr }

// IsNotFound returns true if err is a NotFoundErr.
func IsNotFound(err error) bool { c, ok := errCode(err); return ok && c == NotFoundErr }

// IsConflict returns true if err is a ConflictErr.
func IsConflict(err error) bool { c, ok := errCode(err); return ok && c == ConflictErr }

// IsSchemaEvolution returns true if err is a SchemaEvolutionErr.
func IsSchemaEvolution(err error) bool { c, ok := errCode(err); return ok && c == SchemaEvolutionErr }

// IsIndexInvalid returns true if err is an IndexInvalidErr.
func IsIndexInvalid(err error) bool { c, ok := errCode(err); return ok && c == IndexInvalidErr }

// IsIO returns true if err is an IOErr.
func IsIO(err error) bool { c, ok := errCode(err); return ok && c == IOErr }

// IsCorruption returns true if err is a CorruptionErr.
func IsCorruption(err error) bool { c, ok := errCode(err); return ok && c == CorruptionErr }

// IsCancelled returns true if err is a CancelledErr.
func IsCancelled(err error) bool { c, ok := errCode(err); return ok && c == CancelledErr }

// IsUnsupported returns true if err is an UnsupportedErr.
func IsUnsupported(err error) bool { c, ok := errCode(err); return ok && c == UnsupportedErr }
