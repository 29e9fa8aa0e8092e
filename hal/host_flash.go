//go:build !tinygo

package hal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

const (
	hostFlashDefaultPath      = "flashstore.flash"
	hostFlashDefaultSizeBytes = 2 * 1024 * 1024
	hostFlashEraseBlockBytes  = 4096
)

// FileFlash is a NOR flash image kept in a host file.
type FileFlash struct {
	mu        sync.Mutex
	f         *os.File
	size      uint32
	eraseSize uint32
	scratch   []byte
}

// OpenFileFlash opens (or creates) a flash image. An existing non-empty file
// keeps its size; a new one is grown to size bytes and erased. When truncate
// is set the image is always recreated.
func OpenFileFlash(path string, size uint32, eraseSize uint32, truncate bool) (*FileFlash, error) {
	if eraseSize == 0 || eraseSize%256 != 0 {
		return nil, fmt.Errorf("flash: invalid erase size %d", eraseSize)
	}

	flags := os.O_RDWR | os.O_CREATE
	if truncate {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open flash file %q: %w", path, err)
	}

	ff := &FileFlash{f: f, eraseSize: eraseSize, scratch: make([]byte, eraseSize)}
	for i := range ff.scratch {
		ff.scratch[i] = 0xFF
	}

	if st, err := f.Stat(); err == nil && st.Size() > 0 {
		if st.Size() > int64(^uint32(0)) || st.Size()%int64(eraseSize) != 0 {
			_ = f.Close()
			return nil, fmt.Errorf("flash file %q: bad image size %d", path, st.Size())
		}
		ff.size = uint32(st.Size())
		return ff, nil
	}

	if size == 0 || size%eraseSize != 0 {
		_ = f.Close()
		return nil, fmt.Errorf("flash: size %d not multiple of erase size %d", size, eraseSize)
	}
	if err := f.Truncate(int64(size)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("truncate flash file %q to %d: %w", path, size, err)
	}
	ff.size = size
	if err := ff.Erase(0, size); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("erase flash file %q: %w", path, err)
	}
	return ff, nil
}

// defaultHostFlash opens the image named by FLASHFS_FLASH_PATH. A failure
// yields an empty flash so the HAL can still come up; the chip probe reports it.
func defaultHostFlash() Flash {
	path := os.Getenv("FLASHFS_FLASH_PATH")
	if path == "" {
		path = hostFlashDefaultPath
	}
	ff, err := OpenFileFlash(path, hostFlashDefaultSizeBytes, hostFlashEraseBlockBytes, false)
	if err != nil {
		return absentFlash{reason: err.Error()}
	}
	return ff
}

func (f *FileFlash) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	return err
}

func (f *FileFlash) SizeBytes() uint32       { return f.size }
func (f *FileFlash) EraseBlockBytes() uint32 { return f.eraseSize }

func (f *FileFlash) ReadAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return 0, ErrNotImplemented
	}
	if off >= f.size {
		return 0, fmt.Errorf("flash read at %d: %w", off, os.ErrInvalid)
	}
	maxN := int(f.size - off)
	if len(p) > maxN {
		p = p[:maxN]
	}
	return f.f.ReadAt(p, int64(off))
}

func (f *FileFlash) WriteAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return 0, ErrNotImplemented
	}
	if off >= f.size {
		return 0, fmt.Errorf("flash write at %d: %w", off, os.ErrInvalid)
	}
	maxN := int(f.size - off)
	if len(p) > maxN {
		p = p[:maxN]
	}

	prev := make([]byte, len(p))
	if _, err := f.f.ReadAt(prev, int64(off)); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("flash read before write at %d: %w", off, err)
	}
	for i := range p {
		if prev[i]&p[i] != p[i] {
			return 0, ErrFlashWriteRequiresErase
		}
	}
	return f.f.WriteAt(p, int64(off))
}

func (f *FileFlash) Erase(off, size uint32) error {
	if size == 0 {
		return nil
	}
	if off%f.eraseSize != 0 || size%f.eraseSize != 0 {
		return fmt.Errorf("flash erase off=%d size=%d: %w", off, size, os.ErrInvalid)
	}
	if off >= f.size || off+size > f.size {
		return fmt.Errorf("flash erase off=%d size=%d: %w", off, size, os.ErrInvalid)
	}
	if f.f == nil {
		return ErrNotImplemented
	}

	for size > 0 {
		if _, err := f.f.WriteAt(f.scratch, int64(off)); err != nil {
			return fmt.Errorf("flash erase block at %d: %w", off, err)
		}
		off += f.eraseSize
		size -= f.eraseSize
	}
	return nil
}
