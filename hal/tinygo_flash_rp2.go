//go:build tinygo && (rp2040 || rp2350)

package hal

import (
	"fmt"
	"machine"
)

// rp2PageSize is the program page of the QSPI flash behind the XIP window.
const rp2PageSize = 256

// New returns a HAL for RP2040/RP2350 boards. The store lives in the part of
// the boot flash that follows the program image.
func New() HAL {
	f := rp2Flash{}
	return &tinyGoHAL{
		logger: &serialLogger{out: machine.Serial},
		flash:  f,
		chip:   f,
	}
}

type rp2Flash struct{}

func (rp2Flash) SizeBytes() uint32 {
	sz := machine.Flash.Size()
	if sz <= 0 {
		return 0
	}
	// Round down to whole erase blocks; the data area need not end on one.
	bs := machine.Flash.EraseBlockSize()
	if bs > 0 {
		sz -= sz % bs
	}
	if sz > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(sz)
}

func (rp2Flash) EraseBlockBytes() uint32 {
	bs := machine.Flash.EraseBlockSize()
	if bs <= 0 || bs > int64(^uint32(0)) {
		return 0
	}
	return uint32(bs)
}

func (rp2Flash) ReadAt(p []byte, off uint32) (int, error) {
	n, err := machine.Flash.ReadAt(p, int64(off))
	if err != nil {
		return n, fmt.Errorf("flash read at %d: %w", off, err)
	}
	return n, nil
}

func (rp2Flash) WriteAt(p []byte, off uint32) (int, error) {
	n, err := machine.Flash.WriteAt(p, int64(off))
	if err != nil {
		return n, fmt.Errorf("flash write at %d: %w", off, err)
	}
	return n, nil
}

func (f rp2Flash) Erase(off, size uint32) error {
	if size == 0 {
		return nil
	}
	bs := f.EraseBlockBytes()
	if bs == 0 {
		return ErrNotImplemented
	}
	if off%bs != 0 || size%bs != 0 {
		return fmt.Errorf("flash erase off=%d size=%d: not block aligned", off, size)
	}
	return machine.Flash.EraseBlocks(int64(off/bs), int64(size/bs))
}

// Ready reports whether a data area is available after the program image.
func (f rp2Flash) Ready() bool {
	return f.SizeBytes() > 0 && f.EraseBlockBytes() > 0
}

// Identity describes the data area. The boot flash is not probed for its
// JEDEC ID while executing in place, so ChipModelID stays zero.
func (f rp2Flash) Identity() (ChipIdentity, error) {
	if !f.Ready() {
		return ChipIdentity{}, ErrChipNotReady
	}
	return ChipIdentity{
		PageCount: f.SizeBytes() / rp2PageSize,
		PageSize:  rp2PageSize,
		Address:   uint32(machine.FlashDataStart()),
	}, nil
}
