package hal

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

var ErrFlashWriteRequiresErase = errors.New("flash write requires erase")

// MemFlash is a RAM-backed NOR flash with the same program/erase rules as
// real parts: programming can only clear bits, erase sets a whole block to 0xFF.
type MemFlash struct {
	mu        sync.Mutex
	data      []byte
	eraseSize uint32
}

// NewMemFlash returns an erased flash of size bytes.
func NewMemFlash(size, eraseSize uint32) (*MemFlash, error) {
	if eraseSize == 0 || eraseSize%256 != 0 {
		return nil, fmt.Errorf("flash: invalid erase size %d", eraseSize)
	}
	if size == 0 || size%eraseSize != 0 {
		return nil, fmt.Errorf("flash: size %d not multiple of erase size %d", size, eraseSize)
	}
	f := &MemFlash{data: make([]byte, size), eraseSize: eraseSize}
	for i := range f.data {
		f.data[i] = 0xFF
	}
	return f, nil
}

func (f *MemFlash) SizeBytes() uint32       { return uint32(len(f.data)) }
func (f *MemFlash) EraseBlockBytes() uint32 { return f.eraseSize }

func (f *MemFlash) ReadAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off >= uint32(len(f.data)) {
		return 0, fmt.Errorf("flash read at %d: %w", off, os.ErrInvalid)
	}
	return copy(p, f.data[off:]), nil
}

func (f *MemFlash) WriteAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off >= uint32(len(f.data)) {
		return 0, fmt.Errorf("flash write at %d: %w", off, os.ErrInvalid)
	}
	maxN := len(f.data) - int(off)
	if len(p) > maxN {
		p = p[:maxN]
	}
	dst := f.data[off : int(off)+len(p)]
	for i := range p {
		if dst[i]&p[i] != p[i] {
			return 0, ErrFlashWriteRequiresErase
		}
	}
	return copy(dst, p), nil
}

func (f *MemFlash) Erase(off, size uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if size == 0 {
		return nil
	}
	if off%f.eraseSize != 0 || size%f.eraseSize != 0 {
		return fmt.Errorf("flash erase off=%d size=%d: %w", off, size, os.ErrInvalid)
	}
	if uint64(off)+uint64(size) > uint64(len(f.data)) {
		return fmt.Errorf("flash erase off=%d size=%d: %w", off, size, os.ErrInvalid)
	}
	for i := off; i < off+size; i++ {
		f.data[i] = 0xFF
	}
	return nil
}

// JEDEC IDs of the chips the emulator can pretend to be.
const (
	JEDECGD25Q16C  uint32 = 0xC84015
	JEDECW25Q16JVQ uint32 = 0xEF4015
)

// EmulatedChip answers probe and identity requests for a Flash that has no
// control bus of its own (host image files, RAM flash).
type EmulatedChip struct {
	Flash    Flash
	JEDEC    uint32
	PageSize uint16
	Address  uint32

	mu      sync.Mutex
	offline bool
}

// NewEmulatedChip wraps flash as a GD25Q16C with 256 byte pages.
func NewEmulatedChip(flash Flash) *EmulatedChip {
	return &EmulatedChip{Flash: flash, JEDEC: JEDECGD25Q16C, PageSize: 256}
}

// SetOffline makes Ready report false, as if the chip stopped answering.
func (c *EmulatedChip) SetOffline(offline bool) {
	c.mu.Lock()
	c.offline = offline
	c.mu.Unlock()
}

func (c *EmulatedChip) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.offline || c.Flash == nil {
		return false
	}
	return c.Flash.SizeBytes() > 0
}

func (c *EmulatedChip) Identity() (ChipIdentity, error) {
	if !c.Ready() {
		return ChipIdentity{}, ErrChipNotReady
	}
	pageSize := c.PageSize
	if pageSize == 0 {
		pageSize = 256
	}
	return ChipIdentity{
		ManufacturerID: uint8(c.JEDEC >> 16),
		DeviceID:       uint8(c.JEDEC),
		PageCount:      c.Flash.SizeBytes() / uint32(pageSize),
		PageSize:       pageSize,
		ChipModelID:    c.JEDEC,
		Address:        c.Address,
	}, nil
}
