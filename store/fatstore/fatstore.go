//go:build cgo || tinygo

package fatstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/tinyfs"
	"tinygo.org/x/tinyfs/fatfs"

	"flashstore/hal"
	"flashstore/store/blockstore"
)

// Store is a FAT filesystem on raw flash.
type Store struct {
	mu sync.Mutex

	dev  *Device
	chip hal.Chip
	fat  *fatfs.FATFS

	mounted bool
}

var _ blockstore.BlockStore = (*Store)(nil)

// New wraps flash in a sector device and configures the FAT driver on it.
// Nothing is read from the device until the first mount.
func New(flash hal.Flash, chip hal.Chip) (*Store, error) {
	if chip == nil {
		return nil, fmt.Errorf("fatstore: nil chip: %w", blockstore.ErrInvalid)
	}
	dev, err := NewDevice(flash)
	if err != nil {
		return nil, err
	}
	fat := fatfs.New(dev).Configure(&fatfs.Config{SectorSize: fatfs.SectorSize})
	return &Store{dev: dev, chip: chip, fat: fat}, nil
}

// Device returns the sector device the filesystem lives on.
func (s *Store) Device() *Device { return s.dev }

func (s *Store) Mount() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mountLocked()
}

func (s *Store) mountLocked() error {
	if s.mounted {
		return nil
	}
	if err := s.fat.Mount(); err != nil {
		var fr fatfs.FileResult
		if errors.As(err, &fr) && fr == fatfs.FileResultNoFilesystem {
			return fmt.Errorf("fatstore mount: %w", blockstore.ErrNoFilesystem)
		}
		return mapFatErr("mount", "", err)
	}
	s.mounted = true
	return nil
}

func (s *Store) DeviceReady() bool { return s.chip.Ready() }

func (s *Store) Identity() (hal.ChipIdentity, error) { return s.chip.Identity() }

func (s *Store) Exists(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mountLocked() != nil {
		return false
	}
	_, err := s.statLocked(p)
	return err == nil
}

// statLocked reports the root as a directory; FAT has no entry for it.
func (s *Store) statLocked(p string) (os.FileInfo, error) {
	p = clean(p)
	if p == "/" {
		return rootInfo{}, nil
	}
	fi, err := s.fat.Stat(p)
	if err != nil {
		return nil, mapFatErr("stat", p, err)
	}
	return fi, nil
}

func (s *Store) Open(p string, mode blockstore.Mode) (blockstore.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mountLocked(); err != nil {
		return nil, err
	}
	p = clean(p)

	fi, statErr := s.statLocked(p)
	if statErr == nil && fi.IsDir() {
		return nil, fmt.Errorf("fatstore open %q: %w", p, blockstore.ErrIsDir)
	}

	var flags int
	switch mode {
	case blockstore.ModeRead:
		if statErr != nil {
			return nil, statErr
		}
		flags = os.O_RDONLY
	case blockstore.ModeWrite:
		// fatfs has no plain create flag set; open-append creates and the
		// cursor is moved back to the start below.
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case blockstore.ModeTruncate:
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case blockstore.ModeAppend:
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	default:
		return nil, fmt.Errorf("fatstore open %q: invalid mode %d: %w", p, mode, blockstore.ErrInvalid)
	}

	f, err := s.fat.OpenFile(p, flags)
	if err != nil {
		return nil, mapFatErr("open", p, err)
	}
	if mode == blockstore.ModeWrite {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, mapFatErr("seek", p, err)
		}
	}

	h := &handle{s: s, f: f, path: p, mode: mode}
	if statErr == nil && mode != blockstore.ModeTruncate {
		h.size = fi.Size()
	}
	if mode == blockstore.ModeAppend {
		h.pos = h.size
	}
	return h, nil
}

// Mkdir creates p and any missing parents.
func (s *Store) Mkdir(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mountLocked(); err != nil {
		return err
	}

	var cur string
	for _, part := range strings.Split(strings.TrimPrefix(clean(p), "/"), "/") {
		if part == "" {
			continue
		}
		cur += "/" + part
		fi, err := s.statLocked(cur)
		if err == nil {
			if !fi.IsDir() {
				return fmt.Errorf("fatstore mkdir %q: %w", cur, blockstore.ErrNotDir)
			}
			continue
		}
		if err := s.fat.Mkdir(cur, 0o777); err != nil {
			return mapFatErr("mkdir", cur, err)
		}
	}
	return nil
}

// Rmdir removes p and everything below it.
func (s *Store) Rmdir(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mountLocked(); err != nil {
		return err
	}
	p = clean(p)
	if p == "/" {
		return fmt.Errorf("fatstore rmdir %q: %w", p, blockstore.ErrInvalid)
	}
	fi, err := s.statLocked(p)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("fatstore rmdir %q: %w", p, blockstore.ErrNotDir)
	}
	return s.removeTreeLocked(p)
}

func (s *Store) removeTreeLocked(dir string) error {
	entries, err := s.readDirLocked(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		child := path.Join(dir, e.Name)
		if e.IsDir {
			if err := s.removeTreeLocked(child); err != nil {
				return err
			}
			continue
		}
		if err := s.fat.Remove(child); err != nil {
			return mapRemoveErr("remove", child, err)
		}
	}
	return mapRemoveErr("rmdir", dir, s.fat.Remove(dir))
}

// Remove deletes a file or an empty directory.
func (s *Store) Remove(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mountLocked(); err != nil {
		return err
	}
	p = clean(p)
	if p == "/" {
		return fmt.Errorf("fatstore remove %q: %w", p, blockstore.ErrInvalid)
	}
	return mapRemoveErr("remove", p, s.fat.Remove(p))
}

func (s *Store) ReadDir(p string) ([]blockstore.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mountLocked(); err != nil {
		return nil, err
	}
	p = clean(p)
	fi, err := s.statLocked(p)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("fatstore readdir %q: %w", p, blockstore.ErrNotDir)
	}
	return s.readDirLocked(p)
}

func (s *Store) readDirLocked(dir string) ([]blockstore.Entry, error) {
	f, err := s.fat.OpenFile(dir, os.O_RDONLY)
	if err != nil {
		return nil, mapFatErr("open dir", dir, err)
	}
	defer func() { _ = f.Close() }()

	infos, err := f.Readdir(0)
	if err != nil {
		return nil, mapFatErr("readdir", dir, err)
	}
	out := make([]blockstore.Entry, 0, len(infos))
	for _, fi := range infos {
		name := fi.Name()
		if name == "." || name == ".." {
			continue
		}
		e := blockstore.Entry{Name: name, IsDir: fi.IsDir()}
		if !e.IsDir {
			e.Size = fi.Size()
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Partition erases the device. FAT on flash is laid out without a partition
// table, so only the single whole-device partition is accepted.
func (s *Store) Partition(spec blockstore.PartitionSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("fatstore partition: %w", err)
	}
	if spec != blockstore.SinglePartition {
		return fmt.Errorf("fatstore partition %v: only one partition is supported: %w", spec.Percent, blockstore.ErrInvalid)
	}
	s.mounted = false
	if err := s.dev.EraseAll(); err != nil {
		return fmt.Errorf("fatstore partition: %w", err)
	}
	return nil
}

// MakeFilesystem writes an empty FAT volume. The store is left unmounted.
func (s *Store) MakeFilesystem(opts blockstore.FormatOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if opts.SectorSize != 0 && opts.SectorSize != SectorSize {
		return fmt.Errorf("fatstore mkfs sector size %d: %w", opts.SectorSize, blockstore.ErrInvalid)
	}
	s.mounted = false
	return mapFatErr("mkfs", "", s.fat.Format())
}

type handle struct {
	s    *Store
	f    tinyfs.File
	path string
	mode blockstore.Mode

	pos  int64
	size int64
}

func (h *handle) Read(p []byte) (int, error) {
	if h.f == nil {
		return 0, fmt.Errorf("fatstore read %q: %w", h.path, blockstore.ErrInvalid)
	}
	if len(p) > 0 && h.pos >= h.size {
		return 0, io.EOF
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	n, err := h.f.Read(p)
	h.pos += int64(n)
	if n == 0 && err == nil && len(p) > 0 {
		return 0, io.EOF
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return n, mapFatErr("read", h.path, err)
	}
	return n, err
}

func (h *handle) Write(p []byte) (int, error) {
	if h.f == nil || h.mode == blockstore.ModeRead {
		return 0, fmt.Errorf("fatstore write %q: %w", h.path, blockstore.ErrInvalid)
	}
	if len(p) == 0 {
		return 0, nil
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if h.mode == blockstore.ModeAppend && h.pos != h.size {
		if _, err := h.f.Seek(h.size, io.SeekStart); err != nil {
			return 0, mapFatErr("seek", h.path, err)
		}
		h.pos = h.size
	}
	n, err := h.f.Write(p)
	h.pos += int64(n)
	if h.pos > h.size {
		h.size = h.pos
	}
	if err != nil {
		return n, mapFatErr("write", h.path, err)
	}
	return n, nil
}

func (h *handle) Seek(offset int64, whence int) (int64, error) {
	if h.f == nil {
		return 0, fmt.Errorf("fatstore seek %q: %w", h.path, blockstore.ErrInvalid)
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = h.pos + offset
	case io.SeekEnd:
		abs = h.size + offset
	default:
		return h.pos, fmt.Errorf("fatstore seek %q: whence %d: %w", h.path, whence, blockstore.ErrInvalid)
	}
	if abs < 0 {
		return h.pos, fmt.Errorf("fatstore seek %q: negative offset: %w", h.path, blockstore.ErrInvalid)
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if _, err := h.f.Seek(abs, io.SeekStart); err != nil {
		return h.pos, mapFatErr("seek", h.path, err)
	}
	h.pos = abs
	return abs, nil
}

func (h *handle) Size() int64 { return h.size }

func (h *handle) Close() error {
	if h.f == nil {
		return nil
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	err := h.f.Close()
	h.f = nil
	return mapFatErr("close", h.path, err)
}

func mapFatErr(op, p string, err error) error {
	if err == nil {
		return nil
	}

	var fr fatfs.FileResult
	if errors.As(err, &fr) {
		switch fr {
		case fatfs.FileResultNoFile, fatfs.FileResultNoPath:
			return fmt.Errorf("fatstore %s %q: %w", op, p, blockstore.ErrNotFound)
		case fatfs.FileResultExist:
			return fmt.Errorf("fatstore %s %q: %w", op, p, blockstore.ErrExists)
		case fatfs.FileResultDenied, fatfs.FileResultLocked, fatfs.FileResultWriteProtected:
			return fmt.Errorf("fatstore %s %q: access denied: %w", op, p, blockstore.ErrInvalid)
		case fatfs.FileResultNoFilesystem:
			return fmt.Errorf("fatstore %s %q: %w", op, p, blockstore.ErrNoFilesystem)
		case fatfs.FileResultInvalidName, fatfs.FileResultInvalidParameter:
			return fmt.Errorf("fatstore %s %q: %w", op, p, blockstore.ErrInvalid)
		case fatfs.FileResultNotEnoughCore:
			return fmt.Errorf("fatstore %s %q: %w", op, p, blockstore.ErrNoSpace)
		default:
			return fmt.Errorf("fatstore %s %q: %v", op, p, err)
		}
	}

	return fmt.Errorf("fatstore %s %q: %w", op, p, err)
}

// mapRemoveErr reads Denied as a non-empty directory: FAT refuses to unlink
// one that still has entries.
func mapRemoveErr(op, p string, err error) error {
	var fr fatfs.FileResult
	if errors.As(err, &fr) && fr == fatfs.FileResultDenied {
		return fmt.Errorf("fatstore %s %q: %w", op, p, blockstore.ErrNotEmpty)
	}
	return mapFatErr(op, p, err)
}

func clean(p string) string {
	if p == "" {
		return ""
	}
	return path.Clean(p)
}

type rootInfo struct{}

func (rootInfo) Name() string       { return "/" }
func (rootInfo) Size() int64        { return 0 }
func (rootInfo) Mode() os.FileMode  { return os.ModeDir | 0o777 }
func (rootInfo) ModTime() time.Time { return time.Time{} }
func (rootInfo) IsDir() bool        { return true }
func (rootInfo) Sys() any           { return nil }
