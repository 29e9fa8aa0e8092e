// Package filestore stores files on a flash BlockStore by (directory,
// filename) instead of raw offsets. Writing a file whose directory does not
// exist yet creates the directory first; every failure is reported as a
// *Error whose Code tells which step went wrong.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"flashstore/hal"
	"flashstore/store/blockstore"
	"flashstore/store/fspath"
)

// DebugLevel thresholds. Any value in [0, 255) is accepted.
const (
	DebugNone     = 0
	DebugMinimal  = 1
	DebugWarnings = 2
	DebugValues   = 3
	DebugExtended = 9

	debugLevelLimit = 255
)

const defaultReadyBackoff = 10 * time.Millisecond

// Config configures a Store.
type Config struct {
	DebugLevel int
	// Logger receives trace lines while DebugLevel is above zero.
	Logger hal.Logger

	// ReadyRetries is the number of extra device probes made before the chip
	// is reported as not ready. Zero probes once.
	ReadyRetries int
	// ReadyBackoff is the delay before the first retry; it doubles after each
	// attempt.
	ReadyBackoff time.Duration
	// Sleep waits between probes. Nil selects time.Sleep.
	Sleep func(time.Duration)

	Format blockstore.FormatOptions
}

// Store is a file store on top of a BlockStore. It is safe for concurrent
// use; operations are serialised.
type Store struct {
	mu sync.Mutex

	bs  blockstore.BlockStore
	log hal.Logger

	debug   int
	retries int
	backoff time.Duration
	sleep   func(time.Duration)
	format  blockstore.FormatOptions

	identity hal.ChipIdentity
}

// New validates cfg and returns a Store. It does not touch the device; call
// Initialise for that.
func New(bs blockstore.BlockStore, cfg Config) (*Store, error) {
	if bs == nil {
		return nil, &Error{Op: "new", Code: InvalidArgument, Err: errors.New("nil block store")}
	}
	if !validDebugLevel(cfg.DebugLevel) {
		return nil, &Error{Op: "new", Code: InvalidArgument, Err: fmt.Errorf("debug level %d out of range", cfg.DebugLevel)}
	}
	if cfg.ReadyRetries < 0 {
		return nil, &Error{Op: "new", Code: InvalidArgument, Err: fmt.Errorf("ready retries %d", cfg.ReadyRetries)}
	}

	s := &Store{
		bs:      bs,
		log:     cfg.Logger,
		debug:   cfg.DebugLevel,
		retries: cfg.ReadyRetries,
		backoff: cfg.ReadyBackoff,
		sleep:   cfg.Sleep,
		format:  cfg.Format,
	}
	if s.log == nil {
		s.log = hal.NopLogger{}
	}
	if s.backoff <= 0 {
		s.backoff = defaultReadyBackoff
	}
	if s.sleep == nil {
		s.sleep = time.Sleep
	}
	return s, nil
}

func validDebugLevel(level int) bool {
	return level >= 0 && level < debugLevelLimit
}

// Initialise probes the chip and caches its identity.
func (s *Store) Initialise() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "initialise"
	if !s.readyLocked() {
		return s.fail(op, "", ChipNotReady, hal.ErrChipNotReady)
	}
	id, err := s.bs.Identity()
	if err != nil {
		return s.fail(op, "", ChipNotReady, err)
	}
	s.identity = id
	s.tracef(DebugMinimal, "filestore: flash ready, %s", id)
	return nil
}

// Identity returns the chip identity read by the last successful Initialise.
func (s *Store) Identity() hal.ChipIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// SetDebugLevel changes the trace threshold. Out of range values are
// rejected and the previous level is kept.
func (s *Store) SetDebugLevel(level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !validDebugLevel(level) {
		return &Error{Op: "setDebugLevel", Code: InvalidArgument, Err: fmt.Errorf("debug level %d out of range", level)}
	}
	s.debug = level
	return nil
}

func (s *Store) DebugLevel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debug
}

// BlockStore returns the underlying filesystem for low-level access.
func (s *Store) BlockStore() blockstore.BlockStore { return s.bs }

// IsReady probes the chip, retrying as configured.
func (s *Store) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyLocked()
}

func (s *Store) readyLocked() bool {
	delay := s.backoff
	for attempt := 0; ; attempt++ {
		if s.bs.DeviceReady() {
			return true
		}
		if attempt >= s.retries {
			break
		}
		s.tracef(DebugWarnings, "filestore: flash not ready, retry %d/%d in %s", attempt+1, s.retries, delay)
		s.sleep(delay)
		delay *= 2
	}
	s.tracef(DebugMinimal, "filestore: could not find flash")
	return false
}

// DirectoryExists reports whether directory exists.
func (s *Store) DirectoryExists(directory string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existsLocked(directory, "")
}

// FileExists reports whether filename exists in directory.
func (s *Store) FileExists(directory, filename string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existsLocked(directory, filename)
}

func (s *Store) existsLocked(directory, filename string) bool {
	var p fspath.Path
	if err := s.resolver().Resolve(&p, directory, filename); err != nil {
		s.tracef(DebugWarnings, "filestore: exists: %v", err)
		return false
	}
	ok := s.bs.Exists(p.String())
	s.tracef(DebugValues, "filestore: exists %q = %t", p.String(), ok)
	return ok
}

// CreateDirectory creates directory, and any missing parents.
func (s *Store) CreateDirectory(directory string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createDirectoryLocked(directory)
}

func (s *Store) createDirectoryLocked(directory string) error {
	const op = "createDirectory"
	if err := s.bs.Mount(); err != nil {
		return s.fail(op, directory, FilesystemUnavailable, err)
	}
	if !s.readyLocked() {
		return s.fail(op, directory, ChipNotReady, hal.ErrChipNotReady)
	}

	var p fspath.Path
	if err := s.resolver().Resolve(&p, directory, ""); err != nil {
		return s.fail(op, directory, PathTooLong, err)
	}
	if s.bs.Exists(p.String()) {
		return s.fail(op, p.String(), AlreadyExists, nil)
	}
	if err := s.bs.Mkdir(p.String()); err != nil {
		return s.fail(op, p.String(), CreateError, err)
	}
	s.tracef(DebugMinimal, "filestore: directory %q created", p.String())
	return nil
}

// CreateFile creates an empty file. A missing directory is created first.
func (s *Store) CreateFile(directory, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createFileLocked(directory, filename)
}

func (s *Store) createFileLocked(directory, filename string) error {
	const op = "createFile"
	if err := s.bs.Mount(); err != nil {
		return s.fail(op, joinForDisplay(directory, filename), FilesystemUnavailable, err)
	}
	if !s.readyLocked() {
		return s.fail(op, joinForDisplay(directory, filename), ChipNotReady, hal.ErrChipNotReady)
	}

	var p fspath.Path
	if err := s.resolver().Resolve(&p, directory, filename); err != nil {
		return s.fail(op, joinForDisplay(directory, filename), PathTooLong, err)
	}
	if s.bs.Exists(p.String()) {
		return s.fail(op, p.String(), AlreadyExists, nil)
	}

	if !s.existsLocked(directory, "") {
		if err := s.createDirectoryLocked(directory); err != nil {
			return s.fail(op, p.String(), remap(parentDirCascade, ParentCreateFailed, err), err)
		}
		s.tracef(DebugMinimal, "filestore: created parent directory %q", directory)
	}

	s.tracef(DebugValues, "filestore: creating file %q", p.String())
	h, err := s.bs.Open(p.String(), blockstore.ModeWrite)
	if err != nil {
		return s.fail(op, p.String(), CreateError, err)
	}
	if err := h.Close(); err != nil {
		return s.fail(op, p.String(), CreateError, err)
	}
	s.tracef(DebugMinimal, "filestore: file %q created", p.String())
	return nil
}

// SaveFile writes content to a file, creating it (and its directory) when
// absent. A file that already holds data is only replaced when overwrite is
// set; otherwise WouldOverwrite is returned and nothing is written.
func (s *Store) SaveFile(directory, filename string, content Content, overwrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "saveFile"
	p, err := s.prepareWriteLocked(op, directory, filename)
	if err != nil {
		return err
	}

	size, err := s.sizeLocked(p.String())
	if err != nil {
		return s.fail(op, p.String(), ReadError, err)
	}
	if size > 0 && !overwrite {
		return s.fail(op, p.String(), WouldOverwrite, fmt.Errorf("file holds %d bytes", size))
	}

	h, err := s.bs.Open(p.String(), blockstore.ModeTruncate)
	if err != nil {
		return s.fail(op, p.String(), WriteError, err)
	}
	if err := writeAndClose(h, content.Data()); err != nil {
		return s.fail(op, p.String(), WriteError, err)
	}
	s.tracef(DebugValues, "filestore: saved %d bytes (%s) to %q", content.Len(), content.Kind, p.String())
	return nil
}

// AppendToFile writes content after the current end of the file, creating
// the file (and its directory) when absent.
func (s *Store) AppendToFile(directory, filename string, content Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "appendToFile"
	p, err := s.prepareWriteLocked(op, directory, filename)
	if err != nil {
		return err
	}

	h, err := s.bs.Open(p.String(), blockstore.ModeAppend)
	if err != nil {
		return s.fail(op, p.String(), WriteError, err)
	}
	if _, err := h.Seek(0, io.SeekEnd); err != nil {
		_ = h.Close()
		return s.fail(op, p.String(), WriteError, err)
	}
	if err := writeAndClose(h, content.Data()); err != nil {
		return s.fail(op, p.String(), WriteError, err)
	}
	s.tracef(DebugValues, "filestore: appended %d bytes (%s) to %q", content.Len(), content.Kind, p.String())
	return nil
}

// prepareWriteLocked mounts, resolves the file path and creates the file if
// it does not exist yet.
func (s *Store) prepareWriteLocked(op, directory, filename string) (*fspath.Path, error) {
	if err := s.bs.Mount(); err != nil {
		return nil, s.fail(op, joinForDisplay(directory, filename), FilesystemUnavailable, err)
	}

	p := new(fspath.Path)
	if err := s.resolver().Resolve(p, directory, filename); err != nil {
		return nil, s.fail(op, joinForDisplay(directory, filename), PathTooLong, err)
	}
	if s.bs.Exists(p.String()) {
		return p, nil
	}

	s.tracef(DebugValues, "filestore: %s: %q does not exist, creating it", op, p.String())
	if err := s.createFileLocked(directory, filename); err != nil {
		return nil, s.fail(op, p.String(), remap(createFileCascade, CreateFailed, err), err)
	}
	return p, nil
}

func writeAndClose(h blockstore.Handle, data []byte) error {
	n, err := h.Write(data)
	if err == nil && n != len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		_ = h.Close()
		return err
	}
	return h.Close()
}

func (s *Store) sizeLocked(path string) (int64, error) {
	h, err := s.bs.Open(path, blockstore.ModeRead)
	if err != nil {
		return 0, err
	}
	size := h.Size()
	return size, h.Close()
}

// GetFilesize returns the size of a file in bytes.
func (s *Store) GetFilesize(directory, filename string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "getFilesize"
	p, err := s.existingFileLocked(op, directory, filename)
	if err != nil {
		return 0, err
	}
	size, err := s.sizeLocked(p.String())
	if err != nil {
		return 0, s.fail(op, p.String(), ReadError, err)
	}
	return size, nil
}

// ReadFileContents copies up to maxReadSize bytes of a file into buf and
// returns the number of bytes copied. It stops early at end of file.
func (s *Store) ReadFileContents(directory, filename string, buf []byte, maxReadSize int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "readFileContents"
	if maxReadSize < 0 || maxReadSize > len(buf) {
		return 0, s.fail(op, joinForDisplay(directory, filename), InvalidArgument,
			fmt.Errorf("max read size %d with %d byte buffer", maxReadSize, len(buf)))
	}

	p, err := s.existingFileLocked(op, directory, filename)
	if err != nil {
		return 0, err
	}
	h, err := s.bs.Open(p.String(), blockstore.ModeRead)
	if err != nil {
		return 0, s.fail(op, p.String(), ReadError, err)
	}
	defer func() { _ = h.Close() }()

	n, err := io.ReadFull(h, buf[:maxReadSize])
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return n, s.fail(op, p.String(), ReadError, err)
	}
	s.tracef(DebugValues, "filestore: read %d bytes from %q", n, p.String())
	return n, nil
}

// OpenFile opens a file for reading. The caller closes the handle.
func (s *Store) OpenFile(directory, filename string) (blockstore.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "openFile"
	p, err := s.existingFileLocked(op, directory, filename)
	if err != nil {
		return nil, err
	}
	h, err := s.bs.Open(p.String(), blockstore.ModeRead)
	if err != nil {
		return nil, s.fail(op, p.String(), ReadError, err)
	}
	return h, nil
}

func (s *Store) existingFileLocked(op, directory, filename string) (*fspath.Path, error) {
	if err := s.bs.Mount(); err != nil {
		return nil, s.fail(op, joinForDisplay(directory, filename), FilesystemUnavailable, err)
	}
	p := new(fspath.Path)
	if err := s.resolver().Resolve(p, directory, filename); err != nil {
		return nil, s.fail(op, joinForDisplay(directory, filename), PathTooLong, err)
	}
	if !s.bs.Exists(p.String()) {
		return nil, s.fail(op, p.String(), NotFound, nil)
	}
	return p, nil
}

// ListDirectory returns the entries of a directory.
func (s *Store) ListDirectory(directory string) ([]blockstore.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "listDirectory"
	p, err := s.existingFileLocked(op, directory, "")
	if err != nil {
		return nil, err
	}
	entries, err := s.bs.ReadDir(p.String())
	if err != nil {
		return nil, s.fail(op, p.String(), ReadError, err)
	}
	return entries, nil
}

// DeleteFile removes a file and checks that it is gone.
func (s *Store) DeleteFile(directory, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked("deleteFile", directory, filename, s.bs.Remove)
}

// DeleteDirectory removes a directory and everything in it, and checks that
// it is gone.
func (s *Store) DeleteDirectory(directory string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked("deleteDirectory", directory, "", s.bs.Rmdir)
}

func (s *Store) deleteLocked(op, directory, filename string, remove func(string) error) error {
	if err := s.bs.Mount(); err != nil {
		return s.fail(op, joinForDisplay(directory, filename), FilesystemUnavailable, err)
	}
	var p fspath.Path
	if err := s.resolver().Resolve(&p, directory, filename); err != nil {
		return s.fail(op, joinForDisplay(directory, filename), PathTooLong, err)
	}
	if err := remove(p.String()); err != nil {
		return s.fail(op, p.String(), DeleteFailed, err)
	}
	if s.bs.Exists(p.String()) {
		return s.fail(op, p.String(), DeleteVerificationFailed, errors.New("path still exists"))
	}
	s.tracef(DebugMinimal, "filestore: deleted %q", p.String())
	return nil
}

// Format repartitions the device as a single partition, creates an empty
// filesystem and checks that it mounts.
func (s *Store) Format() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "format"
	s.tracef(DebugMinimal, "filestore: formatting flash, 1 primary partition using 100%% of the device")
	if err := s.bs.Partition(blockstore.SinglePartition); err != nil {
		return s.fail(op, "", PartitionFailed, err)
	}
	s.tracef(DebugMinimal, "filestore: making filesystem")
	if err := s.bs.MakeFilesystem(s.format); err != nil {
		return s.fail(op, "", MakeFilesystemFailed, err)
	}
	if err := s.bs.Mount(); err != nil {
		return s.fail(op, "", MountVerificationFailed, err)
	}
	s.tracef(DebugMinimal, "filestore: format complete, filesystem available")
	return nil
}

func (s *Store) resolver() fspath.Resolver {
	return fspath.Resolver{Debug: s.debug, Log: s.log}
}

func (s *Store) fail(op, path string, code Code, cause error) *Error {
	e := &Error{Op: op, Path: path, Code: code, Err: cause}
	s.tracef(DebugMinimal, "%s", e.Error())
	return e
}

func (s *Store) tracef(level int, format string, args ...any) {
	if s.debug < level || s.debug == DebugNone {
		return
	}
	s.log.WriteLineString(fmt.Sprintf(format, args...))
}

func joinForDisplay(directory, filename string) string {
	if filename == "" {
		return directory
	}
	return directory + string(fspath.Separator) + filename
}
