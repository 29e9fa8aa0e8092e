package app

import (
	"errors"
	"fmt"

	"flashstore/hal"
	"flashstore/internal/buildinfo"
	"flashstore/store/blockstore"
	"flashstore/store/fatstore"
	"flashstore/store/filestore"
)

const (
	defaultBootDir  = "/logs"
	defaultBootFile = "boot.txt"
)

type Config struct {
	DebugLevel   int
	ReadyRetries int

	// FormatIfMissing formats a flash that holds no filesystem.
	FormatIfMissing bool

	BootDir  string
	BootFile string
}

// System is a booted file store.
type System struct {
	Store *filestore.Store
	// Boots is the number of boot records, this boot included.
	Boots int

	cfg Config
	log hal.Logger
}

// New brings up the flash file store on h and records the boot.
func New(h hal.HAL, cfg Config) (*System, error) {
	bs, err := fatstore.New(h.Flash(), h.Chip())
	if err != nil {
		return nil, fmt.Errorf("app: flash: %w", err)
	}
	return NewWithStore(h.Logger(), bs, cfg)
}

// NewWithStore boots on an existing BlockStore.
func NewWithStore(l hal.Logger, bs blockstore.BlockStore, cfg Config) (*System, error) {
	if l == nil {
		l = hal.NopLogger{}
	}
	if cfg.BootDir == "" {
		cfg.BootDir = defaultBootDir
	}
	if cfg.BootFile == "" {
		cfg.BootFile = defaultBootFile
	}

	fs, err := filestore.New(bs, filestore.Config{
		DebugLevel:   cfg.DebugLevel,
		Logger:       l,
		ReadyRetries: cfg.ReadyRetries,
	})
	if err != nil {
		return nil, err
	}
	sys := &System{Store: fs, cfg: cfg, log: l}

	bootDiagSetStep("probe flash")
	if err := fs.Initialise(); err != nil {
		return nil, err
	}
	l.WriteLineString("flashstore " + buildinfo.Short() + ": " + fs.Identity().String())

	bootDiagSetStep("mount")
	if err := sys.mount(); err != nil {
		return nil, err
	}

	bootDiagSetStep("boot record")
	if err := sys.recordBoot(); err != nil {
		return nil, err
	}
	bootDiagSetStep("ready")
	return sys, nil
}

func (s *System) mount() error {
	err := s.Store.BlockStore().Mount()
	if err == nil {
		return nil
	}
	if !errors.Is(err, blockstore.ErrNoFilesystem) || !s.cfg.FormatIfMissing {
		return fmt.Errorf("app: mount: %w", err)
	}
	s.log.WriteLineString("flashstore: no filesystem, formatting")
	return s.Store.Format()
}

func (s *System) recordBoot() error {
	fs := s.Store
	boots := 1
	if size, err := fs.GetFilesize(s.cfg.BootDir, s.cfg.BootFile); err == nil && size > 0 {
		buf := make([]byte, size)
		n, err := fs.ReadFileContents(s.cfg.BootDir, s.cfg.BootFile, buf, len(buf))
		if err != nil {
			return err
		}
		for _, b := range buf[:n] {
			if b == '\n' {
				boots++
			}
		}
	}

	line := fmt.Sprintf("boot %d %s\n", boots, buildinfo.Short())
	if err := fs.AppendToFile(s.cfg.BootDir, s.cfg.BootFile, filestore.Text(line)); err != nil {
		return err
	}
	s.Boots = boots
	s.log.WriteLineString(fmt.Sprintf("flashstore: boot %d recorded in %s/%s", boots, s.cfg.BootDir, s.cfg.BootFile))
	return nil
}

// Run boots with cfg and blocks forever (TinyGo entrypoint).
func Run(h hal.HAL, cfg Config) {
	bootDiagStart(h)
	l := h.Logger()
	err := guard(l, func() error {
		_, err := New(h, cfg)
		return err
	})
	if err != nil {
		l.WriteLineString("flashstore: " + err.Error())
	}
	select {}
}
