package errors

import (
	"errors"
	"fmt"
)

// fatalError is a message meant for the user. When one reaches main, it is
// printed as is and the process exits nonzero, without the stack trace other
// errors get.
type fatalError struct {
	msg string
	err error // underlying cause, may be nil
}

func (e *fatalError) Error() string {
	return "Fatal: " + e.msg
}

func (e *fatalError) Unwrap() error {
	return e.err
}

// Fatal marks the message as a fatal error for the user.
func Fatal(s string) error {
	return &fatalError{msg: s}
}

// Fatalf formats a fatal error. If any argument is an error, the last one is
// kept as the cause and stays visible to Is and As.
func Fatalf(s string, data ...interface{}) error {
	e := &fatalError{msg: fmt.Sprintf(s, data...)}
	for i := len(data) - 1; i >= 0; i-- {
		if err, ok := data[i].(error); ok {
			e.err = err
			break
		}
	}
	return e
}

// IsFatal reports whether err should be shown to the user without further
// decoration.
func IsFatal(err error) bool {
	var fatal *fatalError
	return errors.As(err, &fatal)
}
