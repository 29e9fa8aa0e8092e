package hal

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestMemFlashProgramRules(t *testing.T) {
	f, err := NewMemFlash(8192, 4096)
	if err != nil {
		t.Fatalf("NewMemFlash: %v", err)
	}

	if _, err := f.WriteAt([]byte{0x0F}, 10); err != nil {
		t.Fatalf("program erased byte: %v", err)
	}
	if _, err := f.WriteAt([]byte{0x05}, 10); err != nil {
		t.Fatalf("clear more bits: %v", err)
	}
	if _, err := f.WriteAt([]byte{0x07}, 10); !errors.Is(err, ErrFlashWriteRequiresErase) {
		t.Fatalf("setting a bit: got %v, want ErrFlashWriteRequiresErase", err)
	}

	if err := f.Erase(100, 4096); err == nil {
		t.Fatal("unaligned erase succeeded")
	}
	if err := f.Erase(0, 4096); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	got := make([]byte, 1)
	if _, err := f.ReadAt(got, 10); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if got[0] != 0xFF {
		t.Fatalf("after erase: got %#x, want 0xff", got[0])
	}
}

func TestMemFlashGeometry(t *testing.T) {
	if _, err := NewMemFlash(4096, 100); err == nil {
		t.Fatal("erase size 100 accepted")
	}
	if _, err := NewMemFlash(5000, 4096); err == nil {
		t.Fatal("size 5000 accepted")
	}
	f, err := NewMemFlash(4096, 4096)
	if err != nil {
		t.Fatalf("NewMemFlash: %v", err)
	}
	buf := make([]byte, 16)
	n, err := f.ReadAt(buf, 4090)
	if err != nil || n != 6 {
		t.Fatalf("short read at end: n=%d err=%v", n, err)
	}
	if !bytes.Equal(buf[:6], bytes.Repeat([]byte{0xFF}, 6)) {
		t.Fatalf("fresh flash not erased: %x", buf[:6])
	}
}

func TestEmulatedChipIdentity(t *testing.T) {
	f, err := NewMemFlash(2*1024*1024, 4096)
	if err != nil {
		t.Fatalf("NewMemFlash: %v", err)
	}
	chip := NewEmulatedChip(f)
	chip.Address = 0x04000000

	id, err := chip.Identity()
	if err != nil {
		t.Fatalf("Identity: %v", err)
	}
	want := ChipIdentity{
		ManufacturerID: 0xC8,
		DeviceID:       0x15,
		PageCount:      8192,
		PageSize:       256,
		ChipModelID:    JEDECGD25Q16C,
		Address:        0x04000000,
	}
	if id != want {
		t.Fatalf("Identity = %+v, want %+v", id, want)
	}
	if id.SizeBytes() != 2*1024*1024 {
		t.Fatalf("SizeBytes = %d", id.SizeBytes())
	}
	if s := id.String(); !strings.HasPrefix(s, "jedec=C84015 manuf=C8 dev=15 pages=8192 pagesize=256 ") {
		t.Fatalf("String = %q", s)
	}

	chip.SetOffline(true)
	if chip.Ready() {
		t.Fatal("offline chip reports ready")
	}
	if _, err := chip.Identity(); !errors.Is(err, ErrChipNotReady) {
		t.Fatalf("offline Identity: %v", err)
	}
}

func TestAbsentFlash(t *testing.T) {
	a := absentFlash{reason: "no image"}
	if a.Ready() {
		t.Fatal("absent flash reports ready")
	}
	if _, err := a.Identity(); !errors.Is(err, ErrChipNotReady) {
		t.Fatalf("Identity: %v", err)
	}
	if _, err := a.ReadAt(make([]byte, 1), 0); !errors.Is(err, ErrChipNotReady) || !strings.Contains(err.Error(), "no image") {
		t.Fatalf("ReadAt: %v", err)
	}
	if err := a.Erase(0, 4096); !errors.Is(err, ErrChipNotReady) {
		t.Fatalf("Erase: %v", err)
	}
}
