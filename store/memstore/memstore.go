// Package memstore is a RAM-backed BlockStore. It mirrors the behaviour of
// the FAT backend (lazy mounting, recursive mkdir) and can inject failures
// into any primitive, which makes it the workhorse of the file store tests.
package memstore

import (
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"flashstore/hal"
	"flashstore/store/blockstore"
)

// Op names a primitive for fault injection.
type Op uint8

const (
	OpMount Op = iota + 1
	OpMkdir
	OpOpen
	OpRead
	OpWrite
	OpRemove
	OpRmdir
	OpReadDir
	OpPartition
	OpMakeFilesystem
)

type node struct {
	dir  bool
	data []byte
}

// Store is an in-memory filesystem.
type Store struct {
	mu sync.Mutex

	nodes     map[string]*node
	formatted bool
	mounted   bool

	identity hal.ChipIdentity
	ready    bool
	// probes before DeviceReady starts answering true
	readyAfter int
	probes     int

	faults      map[Op]error
	keepRemoved bool
}

var _ blockstore.BlockStore = (*Store)(nil)

// New returns a formatted, empty store with a ready chip.
func New() *Store {
	s := NewUnformatted()
	s.formatted = true
	s.nodes["/"] = &node{dir: true}
	return s
}

// NewUnformatted returns a store whose device holds no filesystem yet.
func NewUnformatted() *Store {
	return &Store{
		nodes:  make(map[string]*node),
		ready:  true,
		faults: make(map[Op]error),
		identity: hal.ChipIdentity{
			ManufacturerID: 0xC8,
			DeviceID:       0x15,
			PageCount:      8192,
			PageSize:       256,
			ChipModelID:    hal.JEDECGD25Q16C,
		},
	}
}

// Fail makes every later call of op return err. A nil err clears the fault.
func (s *Store) Fail(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// KeepRemoved makes Remove and Rmdir report success without deleting anything.
func (s *Store) KeepRemoved(keep bool) {
	s.mu.Lock()
	s.keepRemoved = keep
	s.mu.Unlock()
}

// SetReady controls the chip probe.
func (s *Store) SetReady(ready bool) {
	s.mu.Lock()
	s.ready = ready
	s.mu.Unlock()
}

// ReadyAfter makes the next n probes fail before the chip answers.
func (s *Store) ReadyAfter(n int) {
	s.mu.Lock()
	s.readyAfter = n
	s.probes = 0
	s.mu.Unlock()
}

// Probes returns how many times DeviceReady was called.
func (s *Store) Probes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probes
}

// SetIdentity replaces the identity the chip reports.
func (s *Store) SetIdentity(id hal.ChipIdentity) {
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()
}

// Contents returns a copy of a file's bytes.
func (s *Store) Contents(p string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[clean(p)]
	if !ok || n.dir {
		return nil, false
	}
	return append([]byte(nil), n.data...), true
}

// Mounted reports whether Mount succeeded since the last format.
func (s *Store) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounted
}

func (s *Store) Mount() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.faults[OpMount]; err != nil {
		return fmt.Errorf("memstore mount: %w", err)
	}
	if !s.formatted {
		return fmt.Errorf("memstore mount: %w", blockstore.ErrNoFilesystem)
	}
	s.mounted = true
	return nil
}

func (s *Store) DeviceReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes++
	if !s.ready {
		return false
	}
	return s.probes > s.readyAfter
}

func (s *Store) Identity() (hal.ChipIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return hal.ChipIdentity{}, hal.ErrChipNotReady
	}
	return s.identity, nil
}

func (s *Store) Exists(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.formatted {
		return false
	}
	_, ok := s.nodes[clean(p)]
	return ok
}

func (s *Store) Open(p string, mode blockstore.Mode) (blockstore.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(OpOpen, "open", p); err != nil {
		return nil, err
	}
	p = clean(p)

	n, ok := s.nodes[p]
	if ok && n.dir {
		return nil, fmt.Errorf("memstore open %q: %w", p, blockstore.ErrIsDir)
	}

	switch mode {
	case blockstore.ModeRead:
		if !ok {
			return nil, fmt.Errorf("memstore open %q: %w", p, blockstore.ErrNotFound)
		}
	case blockstore.ModeWrite, blockstore.ModeTruncate, blockstore.ModeAppend:
		if !ok {
			parent, pok := s.nodes[path.Dir(p)]
			if !pok {
				return nil, fmt.Errorf("memstore open %q: %w", p, blockstore.ErrNotFound)
			}
			if !parent.dir {
				return nil, fmt.Errorf("memstore open %q: %w", p, blockstore.ErrNotDir)
			}
			n = &node{}
			s.nodes[p] = n
		}
		if mode == blockstore.ModeTruncate {
			n.data = n.data[:0]
		}
	default:
		return nil, fmt.Errorf("memstore open %q: invalid mode %d: %w", p, mode, blockstore.ErrInvalid)
	}

	return &handle{s: s, n: n, path: p, mode: mode}, nil
}

func (s *Store) Mkdir(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(OpMkdir, "mkdir", p); err != nil {
		return err
	}
	p = clean(p)

	var cur string
	for _, part := range strings.Split(strings.TrimPrefix(p, "/"), "/") {
		if part == "" {
			continue
		}
		cur += "/" + part
		n, ok := s.nodes[cur]
		if !ok {
			s.nodes[cur] = &node{dir: true}
			continue
		}
		if !n.dir {
			return fmt.Errorf("memstore mkdir %q: %w", cur, blockstore.ErrNotDir)
		}
	}
	return nil
}

func (s *Store) Rmdir(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(OpRmdir, "rmdir", p); err != nil {
		return err
	}
	p = clean(p)
	if p == "/" {
		return fmt.Errorf("memstore rmdir %q: %w", p, blockstore.ErrInvalid)
	}
	n, ok := s.nodes[p]
	if !ok {
		return fmt.Errorf("memstore rmdir %q: %w", p, blockstore.ErrNotFound)
	}
	if !n.dir {
		return fmt.Errorf("memstore rmdir %q: %w", p, blockstore.ErrNotDir)
	}
	if s.keepRemoved {
		return nil
	}
	prefix := p + "/"
	for k := range s.nodes {
		if strings.HasPrefix(k, prefix) {
			delete(s.nodes, k)
		}
	}
	delete(s.nodes, p)
	return nil
}

func (s *Store) Remove(p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(OpRemove, "remove", p); err != nil {
		return err
	}
	p = clean(p)
	if p == "/" {
		return fmt.Errorf("memstore remove %q: %w", p, blockstore.ErrInvalid)
	}
	n, ok := s.nodes[p]
	if !ok {
		return fmt.Errorf("memstore remove %q: %w", p, blockstore.ErrNotFound)
	}
	if n.dir && len(s.childrenLocked(p)) > 0 {
		return fmt.Errorf("memstore remove %q: %w", p, blockstore.ErrNotEmpty)
	}
	if s.keepRemoved {
		return nil
	}
	delete(s.nodes, p)
	return nil
}

func (s *Store) ReadDir(p string) ([]blockstore.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(OpReadDir, "readdir", p); err != nil {
		return nil, err
	}
	p = clean(p)
	n, ok := s.nodes[p]
	if !ok {
		return nil, fmt.Errorf("memstore readdir %q: %w", p, blockstore.ErrNotFound)
	}
	if !n.dir {
		return nil, fmt.Errorf("memstore readdir %q: %w", p, blockstore.ErrNotDir)
	}
	return s.childrenLocked(p), nil
}

func (s *Store) Partition(spec blockstore.PartitionSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.faults[OpPartition]; err != nil {
		return fmt.Errorf("memstore partition: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("memstore partition: %w", err)
	}
	s.nodes = make(map[string]*node)
	s.formatted = false
	s.mounted = false
	return nil
}

func (s *Store) MakeFilesystem(opts blockstore.FormatOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.faults[OpMakeFilesystem]; err != nil {
		return fmt.Errorf("memstore mkfs: %w", err)
	}
	if opts.SectorSize != 0 && opts.SectorSize%512 != 0 {
		return fmt.Errorf("memstore mkfs sector size %d: %w", opts.SectorSize, blockstore.ErrInvalid)
	}
	s.nodes = map[string]*node{"/": {dir: true}}
	s.formatted = true
	s.mounted = false
	return nil
}

func (s *Store) checkLocked(op Op, name, p string) error {
	if err := s.faults[op]; err != nil {
		return fmt.Errorf("memstore %s %q: %w", name, p, err)
	}
	if !s.formatted {
		return fmt.Errorf("memstore %s %q: %w", name, p, blockstore.ErrNoFilesystem)
	}
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("memstore %s %q: relative path: %w", name, p, blockstore.ErrInvalid)
	}
	return nil
}

func (s *Store) childrenLocked(dir string) []blockstore.Entry {
	prefix := dir + "/"
	if dir == "/" {
		prefix = "/"
	}
	var out []blockstore.Entry
	for k, n := range s.nodes {
		if k == dir || !strings.HasPrefix(k, prefix) {
			continue
		}
		name := k[len(prefix):]
		if strings.Contains(name, "/") {
			continue
		}
		out = append(out, blockstore.Entry{Name: name, IsDir: n.dir, Size: int64(len(n.data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func clean(p string) string {
	if p == "" {
		return ""
	}
	return path.Clean(p)
}

type handle struct {
	s      *Store
	n      *node
	path   string
	mode   blockstore.Mode
	pos    int64
	closed bool
}

func (h *handle) Read(p []byte) (int, error) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if h.closed {
		return 0, fmt.Errorf("memstore read %q: %w", h.path, blockstore.ErrInvalid)
	}
	if err := h.s.faults[OpRead]; err != nil {
		return 0, fmt.Errorf("memstore read %q: %w", h.path, err)
	}
	if h.pos >= int64(len(h.n.data)) {
		return 0, io.EOF
	}
	n := copy(p, h.n.data[h.pos:])
	h.pos += int64(n)
	return n, nil
}

func (h *handle) Write(p []byte) (int, error) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	if h.closed || h.mode == blockstore.ModeRead {
		return 0, fmt.Errorf("memstore write %q: %w", h.path, blockstore.ErrInvalid)
	}
	if err := h.s.faults[OpWrite]; err != nil {
		return 0, fmt.Errorf("memstore write %q: %w", h.path, err)
	}
	if h.mode == blockstore.ModeAppend {
		h.pos = int64(len(h.n.data))
	}
	end := h.pos + int64(len(p))
	if end > int64(len(h.n.data)) {
		grown := make([]byte, end)
		copy(grown, h.n.data)
		h.n.data = grown
	}
	copy(h.n.data[h.pos:end], p)
	h.pos = end
	return len(p), nil
}

func (h *handle) Seek(offset int64, whence int) (int64, error) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = h.pos + offset
	case io.SeekEnd:
		abs = int64(len(h.n.data)) + offset
	default:
		return h.pos, fmt.Errorf("memstore seek %q: whence %d: %w", h.path, whence, blockstore.ErrInvalid)
	}
	if abs < 0 {
		return h.pos, fmt.Errorf("memstore seek %q: negative offset: %w", h.path, blockstore.ErrInvalid)
	}
	h.pos = abs
	return abs, nil
}

func (h *handle) Size() int64 {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return int64(len(h.n.data))
}

func (h *handle) Close() error {
	h.closed = true
	return nil
}
