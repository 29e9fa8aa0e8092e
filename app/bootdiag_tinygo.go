//go:build tinygo && bootdebug

package app

import (
	"machine"
	"sync"
	"time"

	"flashstore/hal"
)

// Boot stage tracker: a hung mount or format keeps repeating its stage on
// the console.
var bootDiag struct {
	mu    sync.Mutex
	step  string
	since time.Time
}

func bootDiagSetStep(msg string) {
	bootDiag.mu.Lock()
	bootDiag.step = msg
	bootDiag.since = time.Now()
	bootDiag.mu.Unlock()
}

func bootDiagStart(h hal.HAL) {
	if h == nil {
		return
	}
	l := h.Logger()
	bootDiagSetStep("start")

	go func() {
		for {
			bootDiag.mu.Lock()
			step, since := bootDiag.step, bootDiag.since
			bootDiag.mu.Unlock()

			line := "bootdiag: " + step + " for " + time.Since(since).Round(time.Millisecond).String()
			if l != nil {
				l.WriteLineString(line)
			}
			if usb := machine.USBCDC; usb != nil {
				_, _ = usb.Write([]byte(line + "\r\n"))
			}
			if step == "ready" {
				return
			}
			time.Sleep(500 * time.Millisecond)
		}
	}()
}
