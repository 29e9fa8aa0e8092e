package fatstore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"flashstore/hal"
	"flashstore/store/blockstore"
)

func newDevice(t *testing.T) (*Device, *hal.MemFlash) {
	t.Helper()
	f, err := hal.NewMemFlash(64*1024, 4096)
	require.NoError(t, err)
	d, err := NewDevice(f)
	require.NoError(t, err)
	return d, f
}

func readBack(t *testing.T, d *Device, off int64, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	_, err := d.ReadAt(buf, off)
	require.NoError(t, err)
	return buf
}

func TestDeviceGeometry(t *testing.T) {
	d, _ := newDevice(t)
	require.EqualValues(t, 64*1024, d.Size())
	require.EqualValues(t, 4096, d.EraseBlockSize())
	require.EqualValues(t, SectorSize, d.WriteBlockSize())

	f, err := hal.NewMemFlash(4096, 256)
	require.NoError(t, err)
	_, err = NewDevice(f)
	require.ErrorIs(t, err, blockstore.ErrInvalid)
	_, err = NewDevice(nil)
	require.ErrorIs(t, err, blockstore.ErrInvalid)
}

func TestDeviceProgramsErasedFlashWithoutErase(t *testing.T) {
	d, _ := newDevice(t)
	_, err := d.WriteAt([]byte("hello"), 100)
	require.NoError(t, err)
	require.Equal(t, "hello", string(readBack(t, d, 100, 5)))
	require.Zero(t, d.Erases())

	// Same bytes again: nothing to do.
	_, err = d.WriteAt([]byte("hello"), 100)
	require.NoError(t, err)
	require.Zero(t, d.Erases())
}

func TestDeviceRewriteErasesAndKeepsNeighbours(t *testing.T) {
	d, f := newDevice(t)
	_, err := d.WriteAt([]byte("keep"), 0)
	require.NoError(t, err)
	_, err = d.WriteAt([]byte("hello"), 100)
	require.NoError(t, err)

	// 'h' -> 'j' sets a bit.
	_, err = f.WriteAt([]byte("j"), 100)
	require.ErrorIs(t, err, hal.ErrFlashWriteRequiresErase)

	_, err = d.WriteAt([]byte("jello"), 100)
	require.NoError(t, err)
	require.Equal(t, 1, d.Erases())
	require.Equal(t, "jello", string(readBack(t, d, 100, 5)))
	require.Equal(t, "keep", string(readBack(t, d, 0, 4)))
	require.Equal(t, bytes.Repeat([]byte{0xFF}, 10), readBack(t, d, 200, 10))
}

func TestDeviceWriteAcrossBlocks(t *testing.T) {
	d, _ := newDevice(t)
	data := bytes.Repeat([]byte{0x00}, SectorSize*3)
	_, err := d.WriteAt(data, 4096-SectorSize)
	require.NoError(t, err)

	data = bytes.Repeat([]byte{0x5A}, SectorSize*3)
	n, err := d.WriteAt(data, 4096-SectorSize)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, 2, d.Erases())
	require.Equal(t, data, readBack(t, d, 4096-SectorSize, len(data)))
}

func TestDeviceBounds(t *testing.T) {
	d, _ := newDevice(t)
	_, err := d.WriteAt(make([]byte, 10), d.Size()-5)
	require.ErrorIs(t, err, blockstore.ErrInvalid)
	_, err = d.ReadAt(make([]byte, 1), -1)
	require.ErrorIs(t, err, blockstore.ErrInvalid)
	require.ErrorIs(t, d.EraseBlocks(15, 2), blockstore.ErrInvalid)
}

func TestDeviceEraseAll(t *testing.T) {
	d, _ := newDevice(t)
	_, err := d.WriteAt([]byte{0, 0, 0}, 8192)
	require.NoError(t, err)
	require.NoError(t, d.EraseAll())
	require.Equal(t, []byte{0xFF, 0xFF, 0xFF}, readBack(t, d, 8192, 3))
}
