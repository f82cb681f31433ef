package plugin

import (
	"fmt"
	"runtime/debug"
	"time"
)

// PanicError is a panic recovered at the plugin boundary.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Capture runs fn and measures it. A panic inside fn is recovered and
// returned as a *PanicError.
func Capture[T any](fn func() (T, error)) (v T, elapsed time.Duration, err error) {
	start := time.Now()
	defer func() {
		elapsed = time.Since(start)
		if r := recover(); r != nil {
			var zero T
			v = zero
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	v, err = fn()
	return v, elapsed, err
}
