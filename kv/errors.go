package kv

import (
	"errors"
	"fmt"
)

// Code is the caller-visible error taxonomy tag (spec §7). Callers should
// compare with errors.Is against the sentinel values below, not against Code
// directly.
type Code uint8

const (
	CodeNotFound Code = iota + 1
	CodeAlreadyExists
	CodeInvalidHandle
	CodeInvalidState
	CodeWriteConflict
	CodeReadOnlyViolation
	CodeMalformedKey
	CodeMalformedValue
	CodeInvalidPage
	CodeCancelled
	CodeFatal
)

func (c Code) String() string {
	switch c {
	case CodeNotFound:
		return "NotFound"
	case CodeAlreadyExists:
		return "AlreadyExists"
	case CodeInvalidHandle:
		return "InvalidHandle"
	case CodeInvalidState:
		return "InvalidState"
	case CodeWriteConflict:
		return "WriteConflict"
	case CodeReadOnlyViolation:
		return "ReadOnlyViolation"
	case CodeMalformedKey:
		return "MalformedKey"
	case CodeMalformedValue:
		return "MalformedValue"
	case CodeInvalidPage:
		return "InvalidPage"
	case CodeCancelled:
		return "Cancelled"
	case CodeFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Error is the engine-wide error type: a taxonomy Code plus a wrapped cause.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotFound) work against a *Error of the matching code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newErr(op string, code Code, err error) error {
	return &Error{Op: op, Code: code, Err: err}
}

// Sentinel errors, one per §7 taxonomy entry. Compare with errors.Is.
var (
	ErrNotFound          = &Error{Op: "kv", Code: CodeNotFound}
	ErrAlreadyExists     = &Error{Op: "kv", Code: CodeAlreadyExists}
	ErrInvalidHandle     = &Error{Op: "kv", Code: CodeInvalidHandle}
	ErrInvalidState      = &Error{Op: "kv", Code: CodeInvalidState}
	ErrWriteConflict     = &Error{Op: "kv", Code: CodeWriteConflict}
	ErrReadOnlyViolation = &Error{Op: "kv", Code: CodeReadOnlyViolation}
	ErrMalformedKey      = &Error{Op: "kv", Code: CodeMalformedKey}
	ErrMalformedValue    = &Error{Op: "kv", Code: CodeMalformedValue}
	ErrInvalidPage       = &Error{Op: "kv", Code: CodeInvalidPage}
	ErrCancelled         = &Error{Op: "kv", Code: CodeCancelled}
	ErrFatal             = &Error{Op: "kv", Code: CodeFatal}
)

// WithOp annotates a sentinel with the operation name that raised it, e.g.
// kv.WithOp(kv.ErrNotFound, "Engine.Get").
func WithOp(sentinel *Error, op string) error {
	return newErr(op, sentinel.Code, nil)
}

// Wrap annotates a sentinel with the operation name and an underlying cause.
func Wrap(sentinel *Error, op string, cause error) error {
	return newErr(op, sentinel.Code, cause)
}

// IsCode reports whether the first *Error in err's chain carries the given
// taxonomy Code; *Error values further down the chain are not examined.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
