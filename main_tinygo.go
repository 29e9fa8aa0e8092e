//go:build tinygo

package main

import (
	"flashstore/app"
	"flashstore/hal"
	"flashstore/store/filestore"
)

func main() {
	app.Run(hal.New(), app.Config{
		DebugLevel:      filestore.DebugMinimal,
		ReadyRetries:    3,
		FormatIfMissing: true,
	})
}
