// Package blockstore defines the filesystem contract the file store is built
// on: a mountable, formattable tree of directories and byte files living on a
// flash device.
package blockstore

import (
	"errors"
	"fmt"
	"io"

	"flashstore/hal"
)

var (
	// ErrNotMounted indicates that the filesystem is not mounted.
	ErrNotMounted = errors.New("blockstore: not mounted")
	// ErrNotFound indicates that a path does not exist.
	ErrNotFound = errors.New("blockstore: not found")
	// ErrExists indicates that a path already exists.
	ErrExists = errors.New("blockstore: already exists")
	// ErrNotDir indicates that a path is not a directory.
	ErrNotDir = errors.New("blockstore: not a directory")
	// ErrIsDir indicates that a path is a directory when a file was expected.
	ErrIsDir = errors.New("blockstore: is a directory")
	// ErrNotEmpty indicates that a directory is not empty.
	ErrNotEmpty = errors.New("blockstore: directory not empty")
	// ErrNoSpace indicates that the filesystem is out of space.
	ErrNoSpace = errors.New("blockstore: no space")
	// ErrInvalid indicates invalid arguments or an invalid filesystem state.
	ErrInvalid = errors.New("blockstore: invalid")
	// ErrNoFilesystem indicates that the device holds no recognisable filesystem.
	ErrNoFilesystem = errors.New("blockstore: no filesystem")
)

// Mode selects how Open treats the file.
type Mode uint8

const (
	// ModeRead opens an existing file read-only.
	ModeRead Mode = iota
	// ModeWrite opens for writing, creating the file if needed. Content is kept
	// and the cursor starts at offset 0.
	ModeWrite
	// ModeTruncate opens for writing, creating the file if needed, and drops
	// any existing content.
	ModeTruncate
	// ModeAppend opens for writing, creating the file if needed; every write
	// goes to the end of the file.
	ModeAppend
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeTruncate:
		return "truncate"
	case ModeAppend:
		return "append"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Handle is an open file. It must be closed by the caller.
type Handle interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
	Size() int64
}

// Entry is one item of a directory listing.
type Entry struct {
	Name  string
	IsDir bool
	Size  int64
}

// PartitionSpec describes an MBR-style partition table as percentages of the
// device, one slot per primary partition.
type PartitionSpec struct {
	Percent [4]uint8
}

// SinglePartition uses the whole device for one primary partition.
var SinglePartition = PartitionSpec{Percent: [4]uint8{100, 0, 0, 0}}

// Validate checks that the table is non-empty and does not exceed 100%.
func (s PartitionSpec) Validate() error {
	total := 0
	for _, p := range s.Percent {
		total += int(p)
	}
	if total == 0 || total > 100 {
		return fmt.Errorf("partition table totals %d%%: %w", total, ErrInvalid)
	}
	return nil
}

// FormatOptions controls filesystem creation.
type FormatOptions struct {
	// SectorSize is the logical sector size; zero selects the backend default.
	SectorSize uint32
}

// BlockStore is a filesystem on a flash device.
type BlockStore interface {
	// Mount attaches the filesystem. Mounting twice is not an error.
	Mount() error
	// DeviceReady probes the underlying chip.
	DeviceReady() bool
	Identity() (hal.ChipIdentity, error)

	Exists(path string) bool
	Open(path string, mode Mode) (Handle, error)
	// Mkdir creates path and any missing parents.
	Mkdir(path string) error
	// Rmdir removes path and everything below it.
	Rmdir(path string) error
	// Remove deletes a file or an empty directory.
	Remove(path string) error
	ReadDir(path string) ([]Entry, error)

	// Partition rewrites the partition table, discarding the filesystem.
	Partition(spec PartitionSpec) error
	// MakeFilesystem creates an empty filesystem. The store is left unmounted.
	MakeFilesystem(opts FormatOptions) error
}
