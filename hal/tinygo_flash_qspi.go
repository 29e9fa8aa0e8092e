//go:build tinygo && atsamd51

package hal

import (
	"fmt"
	"machine"

	"tinygo.org/x/drivers/flash"
)

// qspiAHBBase is where the SAMD51 maps the QSPI flash into the address space.
const qspiAHBBase = 0x04000000

// New returns a HAL for SAMD51 boards with an external QSPI flash chip
// (ItsyBitsy M4, Feather M4 and friends).
func New() HAL {
	dev := flash.NewQSPI(
		machine.QSPI_CS,
		machine.QSPI_SCK,
		machine.QSPI_DATA0,
		machine.QSPI_DATA1,
		machine.QSPI_DATA2,
		machine.QSPI_DATA3,
	)
	qf := &qspiFlash{dev: dev}
	return &tinyGoHAL{
		logger: &serialLogger{out: machine.Serial},
		flash:  qf,
		chip:   qf,
	}
}

type qspiFlash struct {
	dev        *flash.Device
	configured bool
}

// Ready configures the device on first use and checks that it answers with a
// JEDEC ID the driver knows about.
func (f *qspiFlash) Ready() bool {
	if !f.configured {
		if err := f.dev.Configure(&flash.DeviceConfig{Identifier: flash.DefaultDeviceIdentifier}); err != nil {
			return false
		}
		f.configured = true
	}
	id, err := f.dev.ReadJEDEC()
	if err != nil {
		return false
	}
	return id.Uint32() != 0 && id.Uint32() != 0xFFFFFF
}

func (f *qspiFlash) Identity() (ChipIdentity, error) {
	if !f.Ready() {
		return ChipIdentity{}, ErrChipNotReady
	}
	id, err := f.dev.ReadJEDEC()
	if err != nil {
		return ChipIdentity{}, fmt.Errorf("flash read jedec: %w", err)
	}
	attrs := f.dev.Attrs()
	return ChipIdentity{
		ManufacturerID: id.ManufID,
		DeviceID:       id.Capacity,
		PageCount:      attrs.TotalSize / flash.PageSize,
		PageSize:       flash.PageSize,
		ChipModelID:    id.Uint32(),
		Address:        qspiAHBBase,
	}, nil
}

func (f *qspiFlash) SizeBytes() uint32 {
	sz := f.dev.Size()
	if sz <= 0 {
		return 0
	}
	if sz > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(sz)
}

func (f *qspiFlash) EraseBlockBytes() uint32 {
	bs := f.dev.EraseBlockSize()
	if bs <= 0 {
		return 0
	}
	return uint32(bs)
}

func (f *qspiFlash) ReadAt(p []byte, off uint32) (int, error) {
	n, err := f.dev.ReadAt(p, int64(off))
	if err != nil {
		return n, fmt.Errorf("flash read at %d: %w", off, err)
	}
	return n, nil
}

func (f *qspiFlash) WriteAt(p []byte, off uint32) (int, error) {
	n, err := f.dev.WriteAt(p, int64(off))
	if err != nil {
		return n, fmt.Errorf("flash write at %d: %w", off, err)
	}
	return n, nil
}

func (f *qspiFlash) Erase(off, size uint32) error {
	if size == 0 {
		return nil
	}
	bs := f.EraseBlockBytes()
	if bs == 0 {
		return ErrNotImplemented
	}
	if off%bs != 0 || size%bs != 0 {
		return fmt.Errorf("flash erase off=%d size=%d: %w", off, size, ErrNotImplemented)
	}
	if err := f.dev.EraseBlocks(int64(off/bs), int64(size/bs)); err != nil {
		return fmt.Errorf("flash erase off=%d size=%d: %w", off, size, err)
	}
	return nil
}
