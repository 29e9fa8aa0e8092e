package app

import (
	"fmt"
	"runtime/debug"
	"strings"

	"flashstore/hal"
)

// PanicError is returned by guard when fn panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// guard runs fn and turns a panic into a *PanicError, logging the value and
// stack line by line first.
func guard(l hal.Logger, fn func() error) (err error) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		pe := &PanicError{Value: v, Stack: debug.Stack()}
		if l != nil {
			l.WriteLineString(fmt.Sprintf("flashstore panic: %v", v))
			for _, line := range strings.Split(string(pe.Stack), "\n") {
				if line == "" {
					continue
				}
				l.WriteLineString(line)
			}
		}
		err = pe
	}()
	return fn()
}
