//go:build !tinygo

package hal

import (
	"fmt"
	"io"
	"os"
	"sync"
)

type hostHAL struct {
	logger *WriterLogger
	flash  Flash
	chip   *EmulatedChip
}

// New returns a host HAL implementation backed by a flash image file.
func New() HAL {
	flash := defaultHostFlash()
	return NewWithFlash(flash, NewWriterLogger(os.Stdout))
}

// NewWithFlash returns a host HAL around an already opened flash.
func NewWithFlash(flash Flash, logger *WriterLogger) HAL {
	if logger == nil {
		logger = NewWriterLogger(io.Discard)
	}
	return &hostHAL{
		logger: logger,
		flash:  flash,
		chip:   NewEmulatedChip(flash),
	}
}

func (h *hostHAL) Logger() Logger { return h.logger }
func (h *hostHAL) Flash() Flash   { return h.flash }
func (h *hostHAL) Chip() Chip     { return h.chip }

// WriterLogger writes log lines to an io.Writer.
type WriterLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterLogger(w io.Writer) *WriterLogger {
	return &WriterLogger{w: w}
}

func (l *WriterLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *WriterLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}
