//go:build !tinygo

package main

import (
	"flag"
	"fmt"
	"os"

	"flashstore/app"
	"flashstore/hal"
)

const (
	defaultFlashSize = 2 * 1024 * 1024
	defaultEraseSize = 4096
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run boots the store on a host image and returns the process exit code.
// The image is closed before main exits.
func run(args []string) int {
	flags := flag.NewFlagSet("flashstore", flag.ContinueOnError)
	var cfg app.Config
	var flashPath string
	var flashSize uint
	var eraseSize uint
	flags.StringVar(&flashPath, "flash", os.Getenv("FLASHFS_FLASH_PATH"), "Flash image path (default $FLASHFS_FLASH_PATH or flashstore.flash).")
	flags.UintVar(&flashSize, "size", defaultFlashSize, "Size of a new flash image (bytes).")
	flags.UintVar(&eraseSize, "erase", defaultEraseSize, "Erase block size (bytes).")
	flags.IntVar(&cfg.DebugLevel, "debug", 0, "Trace level (0 = off, 1 minimal, 2 warnings, 3 values, 9 extended).")
	flags.IntVar(&cfg.ReadyRetries, "retries", 0, "Extra flash probes before giving up.")
	flags.BoolVar(&cfg.FormatIfMissing, "format", true, "Format a flash image that holds no filesystem.")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	if flashPath == "" {
		flashPath = "flashstore.flash"
	}

	flash, err := hal.OpenFileFlash(flashPath, uint32(flashSize), uint32(eraseSize), false)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	defer func() {
		if err := flash.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "error: close flash:", err)
		}
	}()

	h := hal.NewWithFlash(flash, hal.NewWriterLogger(os.Stdout))
	if _, err := app.New(h, cfg); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
