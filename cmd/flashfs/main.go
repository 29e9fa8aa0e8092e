//go:build !tinygo

package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"flashstore/hal"
	"flashstore/internal/buildinfo"
	"flashstore/store/fatstore"
	"flashstore/store/filestore"
)

const (
	defaultFlashPath = "flashstore.flash"
	defaultFlashSize = 2 * 1024 * 1024
	defaultEraseSize = 4096
)

func main() {
	var flashPath string
	var flashSize uint
	var eraseSize uint
	var debug int
	var command string
	var showVersion bool
	flag.StringVar(&flashPath, "flash", os.Getenv("FLASHFS_FLASH_PATH"), "Flash image path (default $FLASHFS_FLASH_PATH or "+defaultFlashPath+").")
	flag.UintVar(&flashSize, "size", defaultFlashSize, "Size of a new flash image (bytes).")
	flag.UintVar(&eraseSize, "erase", defaultEraseSize, "Erase block size (bytes).")
	flag.IntVar(&debug, "debug", 0, "Trace level (0 = off).")
	flag.StringVar(&command, "c", "", "Run the commands in this string, separated by ';' or newlines.")
	flag.BoolVar(&showVersion, "version", false, "Print the version and exit.")
	flag.Usage = usage
	flag.Parse()

	if showVersion {
		fmt.Println("flashfs", buildinfo.Long())
		return
	}
	if flashPath == "" {
		flashPath = defaultFlashPath
	}

	args := flag.Args()
	if command == "" && len(args) == 0 {
		usage()
		os.Exit(2)
	}

	// mkimage builds a fresh image and needs no existing one.
	if command == "" && args[0] == "mkimage" {
		if err := runMkimage(args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	err := withStore(flashPath, uint32(flashSize), uint32(eraseSize), false, debug, func(s *session) error {
		if command != "" {
			return s.runScript(strings.NewReader(strings.ReplaceAll(command, ";", "\n")))
		}
		return s.run(args)
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if c := filestore.CodeOf(err); c != filestore.Unknown {
			os.Exit(exitCode(c))
		}
		os.Exit(1)
	}
}

// exitCode folds a store code into the 1..125 range shells pass through.
func exitCode(c filestore.Code) int {
	if c >= 0 {
		return 1
	}
	return 10 - int(c)
}

func withStore(flashPath string, size, eraseSize uint32, truncate bool, debug int, fn func(*session) error) error {
	flash, err := hal.OpenFileFlash(flashPath, size, eraseSize, truncate)
	if err != nil {
		return err
	}
	defer func() { _ = flash.Close() }()

	h := hal.NewWithFlash(flash, hal.NewWriterLogger(os.Stderr))
	bs, err := fatstore.New(h.Flash(), h.Chip())
	if err != nil {
		return err
	}
	fs, err := filestore.New(bs, filestore.Config{DebugLevel: debug, Logger: h.Logger()})
	if err != nil {
		return err
	}
	if err := fs.Initialise(); err != nil {
		return err
	}
	return fn(newSession(fs, os.Stdin, os.Stdout))
}

func usage() {
	w := flag.CommandLine.Output()
	fmt.Fprintln(w, "usage: flashfs [flags] <command> [args]")
	fmt.Fprintln(w, "       flashfs [flags] -c 'cmd; cmd; ...'")
	fmt.Fprintln(w, "       flashfs mkimage -src dir [-out image] [-size n] [-erase n]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, name := range commandNames() {
		fmt.Fprintf(w, "  %-8s %s\n", name, commands[name].usage)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "flags:")
	flag.PrintDefaults()
}

func runMkimage(args []string) error {
	fl := flag.NewFlagSet("mkimage", flag.ContinueOnError)
	var srcDir, outPath string
	var flashSize, eraseSize uint
	var debug int
	fl.StringVar(&srcDir, "src", "", "Source directory to import.")
	fl.StringVar(&outPath, "out", defaultFlashPath, "Output flash image path.")
	fl.UintVar(&flashSize, "size", defaultFlashSize, "Flash image size (bytes).")
	fl.UintVar(&eraseSize, "erase", defaultEraseSize, "Erase block size (bytes).")
	fl.IntVar(&debug, "debug", 0, "Trace level (0 = off).")
	if err := fl.Parse(args); err != nil {
		return err
	}
	if srcDir == "" {
		return errors.New("mkimage: -src is required")
	}
	if outPath == "" {
		return errors.New("mkimage: -out is required")
	}

	return withStore(outPath, uint32(flashSize), uint32(eraseSize), true, debug, func(s *session) error {
		if err := s.fs.Format(); err != nil {
			return err
		}
		n, err := importDir(s.fs, srcDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "imported %d files into %s\n", n, outPath)
		return nil
	})
}
