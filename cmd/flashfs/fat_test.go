//go:build cgo && !tinygo

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"flashstore/hal"
	"flashstore/store/fatstore"
	"flashstore/store/filestore"
)

func newFlashSession(t *testing.T) (*session, *bytes.Buffer) {
	t.Helper()
	f, err := hal.NewMemFlash(512*1024, 4096)
	require.NoError(t, err)
	bs, err := fatstore.New(f, hal.NewEmulatedChip(f))
	require.NoError(t, err)
	fs, err := filestore.New(bs, filestore.Config{})
	require.NoError(t, err)
	require.NoError(t, fs.Initialise())
	require.NoError(t, fs.Format())
	var out bytes.Buffer
	return newSession(fs, bytes.NewReader(nil), &out), &out
}

func TestCommandsOnFlash(t *testing.T) {
	s, out := newFlashSession(t)

	require.NoError(t, s.run([]string{"touch", "/a.txt"}))
	require.NoError(t, s.run([]string{"write", "/d/b.txt", "hello"}))
	require.NoError(t, s.run([]string{"append", "/d/b.txt", "again"}))
	require.NoError(t, s.run([]string{"cat", "/d/b.txt"}))
	require.Equal(t, "helloagain\n", out.String())

	out.Reset()
	require.NoError(t, s.run([]string{"exists", "/a.txt"}))
	require.NoError(t, s.run([]string{"exists", "/d"}))
	require.NoError(t, s.run([]string{"exists", "/d/b.txt"}))
	require.Equal(t, "/a.txt: file\n/d: directory\n/d/b.txt: file\n", out.String())

	require.NoError(t, s.run([]string{"rmdir", "/d"}))
	out.Reset()
	require.NoError(t, s.run([]string{"exists", "/d"}))
	require.Equal(t, "/d: not found\n", out.String())
}

func TestImportDirOnFlash(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "etc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "etc", "motd"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "empty.txt"), nil, 0o644))

	s, _ := newFlashSession(t)
	n, err := importDir(s.fs, src)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got, err := s.readAll("/etc/motd")
	require.NoError(t, err)
	require.Equal(t, "hi", string(got))
	require.True(t, s.fs.FileExists("/", "empty.txt"))
}

func TestMkimageRoundTrip(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "cfg.txt"), []byte("mode=1"), 0o644))
	img := filepath.Join(t.TempDir(), "flash.img")

	require.NoError(t, runMkimage([]string{"-src", src, "-out", img, "-size", "524288"}))

	err := withStore(img, 512*1024, defaultEraseSize, false, 0, func(s *session) error {
		got, err := s.readAll("/cfg.txt")
		require.NoError(t, err)
		require.Equal(t, "mode=1", string(got))
		return nil
	})
	require.NoError(t, err)
}
