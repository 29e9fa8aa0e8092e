//go:build !(tinygo && bootdebug)

package app

import "flashstore/hal"

func bootDiagSetStep(string) {}

func bootDiagStart(hal.HAL) {}
