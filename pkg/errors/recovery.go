package errors

import (
	"fmt"
	"runtime/debug"
)

// FromPanic turns a recovered value into a fatal ErrInternal that carries the
// goroutine stack. A nil value yields nil.
func FromPanic(r interface{}) *Error {
	if r == nil {
		return nil
	}

	cause, ok := r.(error)
	if !ok {
		cause = fmt.Errorf("panic: %v", r)
	}

	return ErrInternal.
		WithCause(cause).
		WithDetail("panic", true).
		WithDetail("stack_trace", string(debug.Stack())).
		AsFatal()
}

// Safely runs fn and reports a panic inside it as a returned error.
func Safely(fn func() error) (err error) {
	defer func() {
		if appErr := FromPanic(recover()); appErr != nil {
			err = appErr
		}
	}()
	return fn()
}
