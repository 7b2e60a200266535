// Package result provides the canonical error vocabulary shared by every
// component in this module. Components never panic for expected failures;
// they return a Result (or stamp one on a task.Task).
package result

import (
	"errors"
	"fmt"
)

// Code categorizes the outcome of an operation. The zero Code is OK, so a
// zero-value Result is always a successful Result.
type Code int

const (
	OK Code = iota
	Cancelled
	Unknown
	InvalidArgument
	DeadlineExceeded
	NotFound
	AlreadyExists
	PermissionDenied
	Unauthenticated
	ResourceExhausted
	FailedPrecondition
	Aborted
	OutOfRange
	NotImplemented
	Internal
	Unavailable
	DataLoss
	// EOF is a non-error terminal category, distinct from OK, used by
	// Reader.Read to signal that at least one byte was required and none
	// remain.
	EOF
	WrongType
)

var codeNames = map[Code]string{
	OK:                  "OK",
	Cancelled:           "CANCELLED",
	Unknown:             "UNKNOWN",
	InvalidArgument:     "INVALID_ARGUMENT",
	DeadlineExceeded:    "DEADLINE_EXCEEDED",
	NotFound:            "NOT_FOUND",
	AlreadyExists:       "ALREADY_EXISTS",
	PermissionDenied:    "PERMISSION_DENIED",
	Unauthenticated:     "UNAUTHENTICATED",
	ResourceExhausted:   "RESOURCE_EXHAUSTED",
	FailedPrecondition:  "FAILED_PRECONDITION",
	Aborted:             "ABORTED",
	OutOfRange:          "OUT_OF_RANGE",
	NotImplemented:      "NOT_IMPLEMENTED",
	Internal:            "INTERNAL",
	Unavailable:         "UNAVAILABLE",
	DataLoss:            "DATA_LOSS",
	EOF:                 "EOF",
	WrongType:           "WRONG_TYPE",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Result is a value type carrying either success or a categorized failure.
// The zero Result is OK; Results compose via AndThen.
type Result struct {
	code    Code
	message string
	errno   error
	cause   error
}

// New constructs a Result with the given code and message.
func New(code Code, message string) Result {
	return Result{code: code, message: message}
}

// Ok returns the OK Result.
func Ok() Result { return Result{} }

// Errorf constructs a Result with the given code and a formatted message.
func Errorf(code Code, format string, args ...any) Result {
	return Result{code: code, message: fmt.Sprintf(format, args...)}
}

// WithErrno attaches an OS errno (or any syscall-level error) to a Result.
func (r Result) WithErrno(errno error) Result {
	r.errno = errno
	return r
}

// WithCause attaches an arbitrary Go error as the underlying cause, for use
// with errors.Is/errors.As via Unwrap.
func (r Result) WithCause(cause error) Result {
	r.cause = cause
	return r
}

// FromPanic absorbs an arbitrary recovered panic value into an Internal
// Result, matching spec's "exception-carrying Results" design note.
func FromPanic(recovered any) Result {
	switch v := recovered.(type) {
	case error:
		return New(Internal, v.Error()).WithCause(v)
	case string:
		return New(Internal, v)
	default:
		return New(Internal, fmt.Sprintf("panic: %v", v))
	}
}

// Code returns the Result's category.
func (r Result) Code() Code { return r.code }

// Message returns the Result's human-readable message, if any.
func (r Result) Message() string { return r.message }

// Errno returns the attached OS-level error, if any.
func (r Result) Errno() error { return r.errno }

// OK reports whether the Result represents success (Code() == OK).
func (r Result) OK() bool { return r.code == OK }

// IsEOF reports whether the Result is the non-error EOF terminal.
func (r Result) IsEOF() bool { return r.code == EOF }

// Failed reports whether the Result is neither OK nor EOF.
func (r Result) Failed() bool { return r.code != OK && r.code != EOF }

// Error implements the error interface so a Result may be returned/wrapped
// wherever a Go error is expected.
func (r Result) Error() string {
	if r.OK() {
		return ""
	}
	if r.message == "" {
		return r.code.String()
	}
	if r.errno != nil {
		return fmt.Sprintf("%s: %s (errno: %v)", r.code, r.message, r.errno)
	}
	return fmt.Sprintf("%s: %s", r.code, r.message)
}

// Unwrap enables errors.Is/errors.As to see through to the attached cause
// or errno.
func (r Result) Unwrap() error {
	if r.cause != nil {
		return r.cause
	}
	return r.errno
}

// AndThen returns r if it is not OK (short-circuiting), otherwise calls fn
// and returns its Result. EOF short-circuits exactly like a failure, since
// it is a terminal outcome.
func (r Result) AndThen(fn func() Result) Result {
	if r.code != OK {
		return r
	}
	return fn()
}

// AsError converts a Result to a plain error, returning nil for OK. EOF is
// intentionally still surfaced as a non-nil error here, since callers that
// want Go-idiomatic io.EOF semantics should compare via errors.Is(err, EOFError).
func (r Result) AsError() error {
	if r.OK() {
		return nil
	}
	return r
}

// EOFError is the canonical error value for EOF Results, usable with
// errors.Is.
var EOFError = New(EOF, "EOF")

// Is allows errors.Is(result, EOFError) and similar code-only comparisons.
func (r Result) Is(target error) bool {
	var other Result
	if errors.As(target, &other) {
		return other.code == r.code
	}
	return false
}
