package scope

import (
	"errors"
	"fmt"
	"runtime/debug"
)

var (
	// ErrScopeClosed is returned by handles spawned on a scope that has
	// already been joined.
	ErrScopeClosed = errors.New("scope: closed")

	// ErrNilTask is returned by the handle of a nil task.
	ErrNilTask = errors.New("scope: nil task")

	// ErrTaskExited is the failure of a task that called runtime.Goexit,
	// for example through t.FailNow.
	ErrTaskExited = errors.New("scope: task exited without returning")
)

// PanicError is a recovered task panic, surfaced as an error when
// PanicAsError is enabled.
type PanicError struct {
	Value any
	Stack []byte
}

func newPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Unwrap returns the panic value if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
