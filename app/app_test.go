package app

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"flashstore/hal"
	"flashstore/store/blockstore"
	"flashstore/store/filestore"
	"flashstore/store/memstore"
)

type lines []string

func (l *lines) WriteLineString(s string) { *l = append(*l, s) }
func (l *lines) WriteLineBytes(b []byte)  { *l = append(*l, string(b)) }

func TestBootFormatsBlankFlashAndCountsBoots(t *testing.T) {
	ms := memstore.NewUnformatted()
	var log lines

	sys, err := NewWithStore(&log, ms, Config{FormatIfMissing: true})
	require.NoError(t, err)
	require.Equal(t, 1, sys.Boots)

	sys, err = NewWithStore(&log, ms, Config{FormatIfMissing: true})
	require.NoError(t, err)
	require.Equal(t, 2, sys.Boots)

	got, ok := ms.Contents("/logs/boot.txt")
	require.True(t, ok)
	require.Equal(t, 2, strings.Count(string(got), "\n"))
	require.True(t, strings.HasPrefix(string(got), "boot 1 "))
	require.Contains(t, strings.Join(log, "\n"), "no filesystem, formatting")
}

func TestBootWithoutFormatFails(t *testing.T) {
	_, err := NewWithStore(nil, memstore.NewUnformatted(), Config{})
	require.ErrorIs(t, err, blockstore.ErrNoFilesystem)
}

func TestBootChipMissing(t *testing.T) {
	ms := memstore.New()
	ms.SetReady(false)
	_, err := NewWithStore(nil, ms, Config{})
	require.Equal(t, filestore.ChipNotReady, filestore.CodeOf(err))
}

func TestBootCustomFile(t *testing.T) {
	ms := memstore.New()
	_, err := NewWithStore(hal.NopLogger{}, ms, Config{BootDir: "/var", BootFile: "boots"})
	require.NoError(t, err)
	_, ok := ms.Contents("/var/boots")
	require.True(t, ok)
}

func TestGuardRecoversPanics(t *testing.T) {
	var log lines
	err := guard(&log, func() error { panic("flash gone") })
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "flash gone", pe.Value)
	require.Equal(t, "flashstore panic: flash gone", log[0])

	boom := errors.New("boom")
	require.Same(t, boom, guard(&log, func() error { return boom }))
}
