package hal

import (
	"errors"
	"fmt"
)

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

// NopLogger discards every line.
type NopLogger struct{}

func (NopLogger) WriteLineString(string) {}
func (NopLogger) WriteLineBytes([]byte)  {}

var (
	ErrNotImplemented = errors.New("not implemented")
	// ErrChipNotReady indicates that the flash chip did not answer its probe.
	ErrChipNotReady = errors.New("flash chip not ready")
)

// Flash provides raw access to non-volatile memory.
//
// It is intentionally low-level: addresses and erase blocks only.
type Flash interface {
	SizeBytes() uint32
	EraseBlockBytes() uint32
	ReadAt(p []byte, off uint32) (int, error)
	WriteAt(p []byte, off uint32) (int, error)
	Erase(off, size uint32) error
}

// Chip is the control side of a flash device: presence probe and identity.
type Chip interface {
	// Ready probes the device. It does not retry.
	Ready() bool
	Identity() (ChipIdentity, error)
}

// ChipIdentity describes the attached flash chip.
type ChipIdentity struct {
	ManufacturerID uint8
	DeviceID       uint8
	PageCount      uint32
	PageSize       uint16
	// ChipModelID is the packed three byte JEDEC ID.
	ChipModelID uint32
	// Address is the bus (or memory-mapped) address of the device.
	Address uint32
}

func (id ChipIdentity) String() string {
	return fmt.Sprintf("jedec=%06X manuf=%02X dev=%02X pages=%d pagesize=%d addr=%#08x",
		id.ChipModelID, id.ManufacturerID, id.DeviceID, id.PageCount, id.PageSize, id.Address)
}

// SizeBytes returns the capacity implied by the page geometry.
func (id ChipIdentity) SizeBytes() uint64 {
	return uint64(id.PageCount) * uint64(id.PageSize)
}

// HAL provides the only contact point between the store and the outside world.
type HAL interface {
	Logger() Logger
	Flash() Flash
	Chip() Chip
}
