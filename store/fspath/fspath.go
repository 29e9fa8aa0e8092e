// Package fspath composes (directory, filename) pairs into absolute store
// paths held in fixed-capacity, NUL-terminated buffers.
package fspath

import (
	"errors"
	"fmt"
)

// MaxLen is the buffer capacity in bytes, terminator included.
const MaxLen = 260

// Separator joins the directory and filename components.
const Separator = '/'

// ErrTooLong indicates that a composed path does not fit in MaxLen-1 bytes.
var ErrTooLong = errors.New("fspath: path too long")

// Path is a composed path. The zero value is an empty path.
type Path struct {
	buf [MaxLen]byte
	n   int
}

// Reset zeroes every byte of the buffer.
func (p *Path) Reset() {
	for i := range p.buf {
		p.buf[i] = 0
	}
	p.n = 0
}

// Len returns the path length without the terminator.
func (p *Path) Len() int { return p.n }

func (p *Path) String() string { return string(p.buf[:p.n]) }

// CString returns the path bytes including the NUL terminator.
func (p *Path) CString() []byte { return p.buf[:p.n+1] }

// Raw exposes the whole buffer, terminator and padding included.
func (p *Path) Raw() *[MaxLen]byte { return &p.buf }

func (p *Path) appendString(s string) {
	p.n += copy(p.buf[p.n:MaxLen-1], s)
}

// Tracer receives diagnostic lines.
type Tracer interface {
	WriteLineString(s string)
}

// Resolver composes paths and, when Debug is above zero, traces each step
// to Log.
type Resolver struct {
	Debug int
	Log   Tracer
}

// Resolve composes directory, and filename when it is not empty, into p.
// directory is copied verbatim: it is expected to carry its own leading
// separator and no trailing one. On ErrTooLong p is left empty.
func (r Resolver) Resolve(p *Path, directory, filename string) error {
	r.trace("before reset", p)
	p.Reset()
	r.trace("after reset", p)

	total := len(directory)
	if filename != "" {
		total += 1 + len(filename)
	}
	if total >= MaxLen {
		return fmt.Errorf("resolve %q + %q (%d bytes): %w", directory, filename, total, ErrTooLong)
	}

	p.appendString(directory)
	r.trace("after directory", p)
	if filename == "" {
		return nil
	}
	p.appendString(string(Separator))
	p.appendString(filename)
	r.trace("after filename", p)
	return nil
}

func (r Resolver) trace(stage string, p *Path) {
	if r.Debug <= 0 || r.Log == nil {
		return
	}
	r.Log.WriteLineString(fmt.Sprintf(" -> fspath.resolve %s = %q", stage, p.String()))
}

// Resolve composes a path without tracing and returns it by value.
func Resolve(directory, filename string) (Path, error) {
	var p Path
	err := Resolver{}.Resolve(&p, directory, filename)
	return p, err
}
