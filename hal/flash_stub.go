package hal

import "fmt"

// absentFlash stands in for a missing flash device. It serves as both the
// Flash and the Chip; the probe never succeeds and every access fails.
type absentFlash struct {
	reason string
}

func (a absentFlash) err(op string) error {
	return fmt.Errorf("flash %s: %s: %w", op, a.reason, ErrChipNotReady)
}

func (absentFlash) SizeBytes() uint32       { return 0 }
func (absentFlash) EraseBlockBytes() uint32 { return 0 }

func (a absentFlash) ReadAt([]byte, uint32) (int, error)  { return 0, a.err("read") }
func (a absentFlash) WriteAt([]byte, uint32) (int, error) { return 0, a.err("write") }
func (a absentFlash) Erase(uint32, uint32) error          { return a.err("erase") }

func (absentFlash) Ready() bool { return false }

func (a absentFlash) Identity() (ChipIdentity, error) {
	return ChipIdentity{}, a.err("identify")
}
