//go:build !cgo && !tinygo

package fatstore

import (
	"errors"

	"flashstore/hal"
	"flashstore/store/blockstore"
)

// ErrUnsupported is returned when the FAT driver is not compiled in.
var ErrUnsupported = errors.New("fatstore: requires cgo")

// Store is unavailable without cgo; New always fails.
type Store struct{}

var _ blockstore.BlockStore = (*Store)(nil)

func New(flash hal.Flash, chip hal.Chip) (*Store, error) {
	if _, err := NewDevice(flash); err != nil {
		return nil, err
	}
	return nil, ErrUnsupported
}

func (s *Store) Device() *Device                     { return nil }
func (s *Store) Mount() error                        { return ErrUnsupported }
func (s *Store) DeviceReady() bool                   { return false }
func (s *Store) Identity() (hal.ChipIdentity, error) { return hal.ChipIdentity{}, ErrUnsupported }
func (s *Store) Exists(string) bool                  { return false }
func (s *Store) Mkdir(string) error                  { return ErrUnsupported }
func (s *Store) Rmdir(string) error                  { return ErrUnsupported }
func (s *Store) Remove(string) error                 { return ErrUnsupported }
func (s *Store) ReadDir(string) ([]blockstore.Entry, error) {
	return nil, ErrUnsupported
}
func (s *Store) Open(string, blockstore.Mode) (blockstore.Handle, error) {
	return nil, ErrUnsupported
}
func (s *Store) Partition(blockstore.PartitionSpec) error      { return ErrUnsupported }
func (s *Store) MakeFilesystem(blockstore.FormatOptions) error { return ErrUnsupported }
