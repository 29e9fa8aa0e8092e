//go:build tinygo && !atsamd51 && !rp2040 && !rp2350

package hal

import "machine"

// New returns a HAL for boards without a supported external flash. The chip
// probe always fails.
func New() HAL {
	return &tinyGoHAL{
		logger: &serialLogger{out: machine.Serial},
		flash:  absentFlash{reason: "no flash on this board"},
		chip:   absentFlash{reason: "no flash on this board"},
	}
}
