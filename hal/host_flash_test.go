//go:build !tinygo

package hal

import (
	"path/filepath"
	"testing"
)

func TestFileFlashPersists(t *testing.T) {
	p := filepath.Join(t.TempDir(), "flash.img")

	f, err := OpenFileFlash(p, 16*1024, 4096, false)
	if err != nil {
		t.Fatalf("OpenFileFlash: %v", err)
	}
	if _, err := f.WriteAt([]byte("flash"), 4096); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if _, err := f.WriteAt([]byte("x"), 4096); err == nil {
		t.Fatal("overwrite without erase succeeded")
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening keeps the image and its size; the size argument is ignored.
	f, err = OpenFileFlash(p, 4096, 4096, false)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f.Close()
	if f.SizeBytes() != 16*1024 {
		t.Fatalf("SizeBytes = %d, want %d", f.SizeBytes(), 16*1024)
	}
	buf := make([]byte, 5)
	if _, err := f.ReadAt(buf, 4096); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf) != "flash" {
		t.Fatalf("ReadAt = %q", buf)
	}
}

func TestFileFlashTruncateRecreates(t *testing.T) {
	p := filepath.Join(t.TempDir(), "flash.img")
	f, err := OpenFileFlash(p, 8192, 4096, false)
	if err != nil {
		t.Fatalf("OpenFileFlash: %v", err)
	}
	if _, err := f.WriteAt([]byte{0}, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	f.Close()

	f, err = OpenFileFlash(p, 4096, 4096, true)
	if err != nil {
		t.Fatalf("OpenFileFlash truncate: %v", err)
	}
	defer f.Close()
	if f.SizeBytes() != 4096 {
		t.Fatalf("SizeBytes = %d", f.SizeBytes())
	}
	b := make([]byte, 1)
	if _, err := f.ReadAt(b, 0); err != nil || b[0] != 0xFF {
		t.Fatalf("ReadAt = %#x, %v", b[0], err)
	}
}

func TestHostHALUsesEmulatedChip(t *testing.T) {
	f, err := NewMemFlash(8192, 4096)
	if err != nil {
		t.Fatalf("NewMemFlash: %v", err)
	}
	h := NewWithFlash(f, nil)
	if !h.Chip().Ready() {
		t.Fatal("chip not ready")
	}
	if h.Flash() != Flash(f) {
		t.Fatal("flash not passed through")
	}
	h.Logger().WriteLineString("discarded")
}
