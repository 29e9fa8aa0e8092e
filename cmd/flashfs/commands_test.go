//go:build !tinygo

package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/xxh3"

	"flashstore/store/filestore"
	"flashstore/store/memstore"
)

func newTestSession(t *testing.T, stdin string) (*session, *bytes.Buffer, *memstore.Store) {
	t.Helper()
	ms := memstore.New()
	fs, err := filestore.New(ms, filestore.Config{})
	require.NoError(t, err)
	require.NoError(t, fs.Initialise())
	var out bytes.Buffer
	return newSession(fs, strings.NewReader(stdin), &out), &out, ms
}

func TestSplitPath(t *testing.T) {
	cases := []struct {
		in, dir, file string
	}{
		{"/a.txt", "/", "a.txt"},
		{"/logs/boot.txt", "/logs", "boot.txt"},
		{"/a//b/./c", "/a/b", "c"},
	}
	for _, tc := range cases {
		dir, file, err := splitPath(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.dir, dir, tc.in)
		require.Equal(t, tc.file, file, tc.in)
	}

	_, _, err := splitPath("rel/a")
	require.Error(t, err)
	_, _, err = splitPath("/")
	require.Error(t, err)
}

func TestScriptSession(t *testing.T) {
	s, out, ms := newTestSession(t, "")
	script := `
# boot log
mkdir /logs
append /logs/boot.txt "first boot"
append /logs/boot.txt second
write /cfg/name.txt flash store
cat /cfg/name.txt
size /logs/boot.txt
`
	require.NoError(t, s.runScript(strings.NewReader(script)))

	got, ok := ms.Contents("/logs/boot.txt")
	require.True(t, ok)
	require.Equal(t, "first boot\nsecond\n", string(got))
	require.Equal(t, "flash store18\n", out.String())
}

func TestScriptStopsAtFirstError(t *testing.T) {
	s, _, ms := newTestSession(t, "")
	err := s.runScript(strings.NewReader("write /a.txt one\nwrite /a.txt two\ntouch /b.txt\n"))
	require.ErrorIs(t, err, filestore.WouldOverwrite)
	require.ErrorContains(t, err, "line 2")
	_, ok := ms.Contents("/b.txt")
	require.False(t, ok)
}

func TestPutFromStdinAndSum(t *testing.T) {
	s, out, _ := newTestSession(t, "payload")
	require.NoError(t, s.run([]string{"put", "/data/p.bin", "-"}))

	out.Reset()
	require.NoError(t, s.run([]string{"sum", "/data/p.bin"}))
	want := fmt.Sprintf("%x  /data/p.bin\n", xxh3.Hash128([]byte("payload")).Bytes())
	require.Equal(t, want, out.String())
}

func TestPutForceReplaces(t *testing.T) {
	host := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(host, []byte("new"), 0o644))

	s, _, ms := newTestSession(t, "")
	require.NoError(t, s.run([]string{"write", "/f.txt", "old"}))
	require.ErrorIs(t, s.run([]string{"put", "/f.txt", host}), filestore.WouldOverwrite)
	require.NoError(t, s.run([]string{"put", "-f", "/f.txt", host}))
	got, _ := ms.Contents("/f.txt")
	require.Equal(t, "new", string(got))
}

func TestListAndDelete(t *testing.T) {
	s, out, _ := newTestSession(t, "")
	require.NoError(t, s.run([]string{"write", "/d/a.txt", "abc"}))
	require.NoError(t, s.run([]string{"mkdir", "/d/sub"}))

	require.NoError(t, s.run([]string{"ls", "/d"}))
	require.Equal(t, "         3  a.txt\n         -  sub/\n", out.String())

	out.Reset()
	require.NoError(t, s.run([]string{"exists", "/d/a.txt"}))
	require.NoError(t, s.run([]string{"rm", "/d/a.txt"}))
	require.NoError(t, s.run([]string{"exists", "/d/a.txt"}))
	require.NoError(t, s.run([]string{"rmdir", "/d"}))
	require.NoError(t, s.run([]string{"exists", "/d"}))
	require.Equal(t, "/d/a.txt: file\n/d/a.txt: not found\n/d: not found\n", out.String())
}

func TestRunValidatesArguments(t *testing.T) {
	s, _, _ := newTestSession(t, "")
	require.ErrorContains(t, s.run([]string{"nope"}), "unknown command")
	require.ErrorContains(t, s.run([]string{"cat"}), "usage: cat")
	require.ErrorContains(t, s.run([]string{"format", "x"}), "usage: format")
	require.ErrorContains(t, s.run([]string{"cat", "relative"}), "must be absolute")
}

func TestInfoAndFormat(t *testing.T) {
	s, out, ms := newTestSession(t, "")
	require.NoError(t, s.run([]string{"info"}))
	require.Contains(t, out.String(), "chip      C84015\n")
	require.Contains(t, out.String(), "capacity  2097152 bytes\n")

	require.NoError(t, s.run([]string{"touch", "/x"}))
	require.NoError(t, s.run([]string{"format"}))
	require.False(t, ms.Exists("/x"))
}

func TestImportDir(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "etc", "empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "etc", "motd"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "top.txt"), []byte("top"), 0o644))

	s, _, ms := newTestSession(t, "")
	n, err := importDir(s.fs, src)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got, ok := ms.Contents("/etc/motd")
	require.True(t, ok)
	require.Equal(t, "hi", string(got))
	require.True(t, ms.Exists("/etc/empty"))
	got, _ = ms.Contents("/top.txt")
	require.Equal(t, "top", string(got))

	_, err = importDir(s.fs, filepath.Join(src, "top.txt"))
	require.Error(t, err)
}

func TestExitCode(t *testing.T) {
	require.Equal(t, 11, exitCode(filestore.AlreadyExists))
	require.Equal(t, 28, exitCode(filestore.InvalidArgument))
	require.Equal(t, 1, exitCode(filestore.OK))
}

func TestExistsReportsKind(t *testing.T) {
	s, out, _ := newTestSession(t, "")
	require.NoError(t, s.run([]string{"touch", "/top.txt"}))
	require.NoError(t, s.run([]string{"mkdir", "/logs/old"}))

	for _, p := range []string{"/", "/top.txt", "/logs", "/logs/old", "/logs/none"} {
		require.NoError(t, s.run([]string{"exists", p}))
	}
	require.Equal(t, "/: directory\n/top.txt: file\n/logs: directory\n/logs/old: directory\n/logs/none: not found\n", out.String())
}
