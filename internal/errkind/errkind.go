// Package errkind defines the error taxonomy shared by every moma package.
//
// Each failure carries a Kind so callers can branch with errors.Is without
// knowing which package produced it:
//
//	if errors.Is(err, errkind.ErrCorrupt) { ... }
//
// The concrete *Error additionally records the operation that failed, which
// is what the CLI prints to tell the user which step broke.
package errkind

import (
	"errors"
	"fmt"
	"io/fs"
)

// Kind sentinels. Match with errors.Is.
var (
	ErrIO           = errors.New("io error")
	ErrCorrupt      = errors.New("corrupt data")
	ErrNotFound     = errors.New("not found")
	ErrPrecondition = errors.New("precondition failed")
	ErrPrivilege    = errors.New("privilege error")
	ErrUnsupported  = errors.New("unsupported")
)

// Error is a classified failure of a single operation.
type Error struct {
	Kind error  // one of the Err* sentinels
	Op   string // failing step, e.g. "unshare" or "read mod list"
	Path string // optional file the operation touched
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg + ": " + e.Kind.Error()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the error's kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

// New builds a classified error.
func New(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithPath builds a classified error for an operation on path.
func WithPath(kind error, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Errorf builds a classified error whose cause is a formatted message.
func Errorf(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// IO classifies a filesystem failure. A missing file is reported as
// ErrNotFound rather than ErrIO.
func IO(op, path string, err error) *Error {
	if errors.Is(err, fs.ErrNotExist) {
		return WithPath(ErrNotFound, op, path, err)
	}
	return WithPath(ErrIO, op, path, err)
}

// KindOf returns the kind of err, or nil if err is not classified.
func KindOf(err error) error {
	for _, k := range []error{ErrCorrupt, ErrNotFound, ErrPrecondition, ErrPrivilege, ErrUnsupported, ErrIO} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
