// Package fatstore is the flash BlockStore: a FAT volume (tinyfs/fatfs)
// on a raw NOR flash device.
package fatstore

import (
	"bytes"
	"fmt"

	"tinygo.org/x/tinyfs"

	"flashstore/hal"
	"flashstore/store/blockstore"
)

// SectorSize is the FAT sector size used on flash.
const SectorSize = 512

// Device presents raw NOR flash as the sector device the FAT driver expects.
// Sector writes become read-modify-write cycles on whole erase blocks; a
// block is only erased when the new data sets bits the old data cleared.
type Device struct {
	flash hal.Flash
	block []byte

	erases int
}

var _ tinyfs.BlockDevice = (*Device)(nil)

func NewDevice(f hal.Flash) (*Device, error) {
	if f == nil {
		return nil, fmt.Errorf("fatstore device: nil flash: %w", blockstore.ErrInvalid)
	}
	eb := f.EraseBlockBytes()
	if eb == 0 || eb%SectorSize != 0 || f.SizeBytes() == 0 || f.SizeBytes()%eb != 0 {
		return nil, fmt.Errorf("fatstore device: size %d erase block %d: %w", f.SizeBytes(), eb, blockstore.ErrInvalid)
	}
	return &Device{flash: f, block: make([]byte, eb)}, nil
}

func (d *Device) Size() int64 { return int64(d.flash.SizeBytes()) }

func (d *Device) WriteBlockSize() int64 { return SectorSize }

func (d *Device) EraseBlockSize() int64 { return int64(len(d.block)) }

// Erases returns how many erase cycles writes have caused.
func (d *Device) Erases() int { return d.erases }

func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	if err := d.check("read", off, len(p)); err != nil {
		return 0, err
	}
	return d.flash.ReadAt(p, uint32(off))
}

func (d *Device) WriteAt(p []byte, off int64) (int, error) {
	if err := d.check("write", off, len(p)); err != nil {
		return 0, err
	}

	bs := int64(len(d.block))
	written := 0
	for written < len(p) {
		pos := off + int64(written)
		start := pos - pos%bs
		at := int(pos - start)
		n := min(len(p)-written, int(bs)-at)
		if err := d.writeBlock(start, at, p[written:written+n]); err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}

func (d *Device) writeBlock(start int64, at int, p []byte) error {
	if _, err := d.flash.ReadAt(d.block, uint32(start)); err != nil {
		return fmt.Errorf("fatstore device read block %d: %w", start, err)
	}
	cur := d.block[at : at+len(p)]
	if bytes.Equal(cur, p) {
		return nil
	}
	// Reprogramming unchanged bytes is a no-op on NOR, so whole blocks are
	// written either way and the programmer always sees aligned writes.
	erase := !programmable(cur, p)
	copy(cur, p)
	if !erase {
		if _, err := d.flash.WriteAt(d.block, uint32(start)); err != nil {
			return fmt.Errorf("fatstore device program block %d: %w", start, err)
		}
		return nil
	}

	if err := d.flash.Erase(uint32(start), uint32(len(d.block))); err != nil {
		return fmt.Errorf("fatstore device erase block %d: %w", start, err)
	}
	d.erases++
	if _, err := d.flash.WriteAt(d.block, uint32(start)); err != nil {
		return fmt.Errorf("fatstore device rewrite block %d: %w", start, err)
	}
	return nil
}

// EraseBlocks erases n blocks starting at block index start.
func (d *Device) EraseBlocks(start, n int64) error {
	bs := int64(len(d.block))
	if err := d.check("erase", start*bs, int(n*bs)); err != nil {
		return err
	}
	return d.flash.Erase(uint32(start*bs), uint32(n*bs))
}

// EraseAll erases the whole device.
func (d *Device) EraseAll() error {
	return d.EraseBlocks(0, d.Size()/int64(len(d.block)))
}

func (d *Device) check(op string, off int64, n int) error {
	if off < 0 || n < 0 || off+int64(n) > d.Size() {
		return fmt.Errorf("fatstore device %s %d bytes at %d: %w", op, n, off, blockstore.ErrInvalid)
	}
	return nil
}

func programmable(old, new []byte) bool {
	for i := range old {
		if old[i]&new[i] != new[i] {
			return false
		}
	}
	return true
}
