// Package errors unifies error handling for ttare. It forwards the
// stack-trace-recording constructors of github.com/pkg/errors together with
// the inspection helpers of the standard library, so callers need a single
// import.
package errors

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// New returns an error with the given message and a stack trace recorded at
// the call site.
var New = errors.New

// Errorf formats an error message and records a stack trace at the call site.
var Errorf = errors.Errorf

// Wrap annotates an error obtained from outside of ttare with a message and a
// stack trace. Returns nil if err is nil.
var Wrap = errors.Wrap

// Wrapf annotates err with a formatted message and a stack trace. Returns nil
// if err is nil.
var Wrapf = errors.Wrapf

// WithStack records a stack trace at the call site without changing the error
// message. Returns nil if err is nil.
var WithStack = errors.WithStack

// The stdlib inspection functions unwrap errors produced by the constructors
// above as well as plain wrapped errors.

// As finds the first error in err's chain that matches tgt.
func As(err error, tgt interface{}) bool { return stderrors.As(err, tgt) }

// Is reports whether any error in x's chain equals y.
func Is(x, y error) bool { return stderrors.Is(x, y) }

// Join combines multiple errors into one. Nil entries are dropped.
func Join(errs ...error) error { return stderrors.Join(errs...) }

// Unwrap returns the next error in the chain, or nil if there is none. It
// does not descend into errors produced by Join.
func Unwrap(err error) error { return stderrors.Unwrap(err) }
