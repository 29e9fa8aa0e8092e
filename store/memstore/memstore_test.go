package memstore

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"flashstore/store/blockstore"
)

func writeFile(t *testing.T, s *Store, p string, mode blockstore.Mode, data string) {
	t.Helper()
	h, err := s.Open(p, mode)
	require.NoError(t, err)
	_, err = h.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, h.Close())
}

func TestMkdirCreatesParents(t *testing.T) {
	s := New()
	require.NoError(t, s.Mkdir("/a/b/c"))
	require.True(t, s.Exists("/a"))
	require.True(t, s.Exists("/a/b"))
	require.True(t, s.Exists("/a/b/c"))
	require.NoError(t, s.Mkdir("/a/b"))
}

func TestOpenModes(t *testing.T) {
	s := New()
	require.NoError(t, s.Mkdir("/d"))

	_, err := s.Open("/d/missing", blockstore.ModeRead)
	require.ErrorIs(t, err, blockstore.ErrNotFound)
	_, err = s.Open("/nodir/f", blockstore.ModeWrite)
	require.ErrorIs(t, err, blockstore.ErrNotFound)
	_, err = s.Open("/d", blockstore.ModeWrite)
	require.ErrorIs(t, err, blockstore.ErrIsDir)

	writeFile(t, s, "/d/f", blockstore.ModeWrite, "hello")
	writeFile(t, s, "/d/f", blockstore.ModeAppend, " world")
	got, ok := s.Contents("/d/f")
	require.True(t, ok)
	require.Equal(t, "hello world", string(got))

	writeFile(t, s, "/d/f", blockstore.ModeWrite, "J")
	got, _ = s.Contents("/d/f")
	require.Equal(t, "Jello world", string(got))

	writeFile(t, s, "/d/f", blockstore.ModeTruncate, "bye")
	got, _ = s.Contents("/d/f")
	require.Equal(t, "bye", string(got))

	h, err := s.Open("/d/f", blockstore.ModeRead)
	require.NoError(t, err)
	require.EqualValues(t, 3, h.Size())
	all, err := io.ReadAll(h)
	require.NoError(t, err)
	require.Equal(t, "bye", string(all))
	_, err = h.Write([]byte("x"))
	require.ErrorIs(t, err, blockstore.ErrInvalid)
	require.NoError(t, h.Close())
}

func TestRemoveAndRmdir(t *testing.T) {
	s := New()
	require.NoError(t, s.Mkdir("/d/sub"))
	writeFile(t, s, "/d/sub/f", blockstore.ModeWrite, "x")
	writeFile(t, s, "/d/g", blockstore.ModeWrite, "y")
	writeFile(t, s, "/dx", blockstore.ModeWrite, "sibling")

	require.ErrorIs(t, s.Remove("/d"), blockstore.ErrNotEmpty)
	require.NoError(t, s.Rmdir("/d"))
	require.False(t, s.Exists("/d"))
	require.False(t, s.Exists("/d/sub/f"))
	require.True(t, s.Exists("/dx"))

	require.ErrorIs(t, s.Rmdir("/d"), blockstore.ErrNotFound)
	require.ErrorIs(t, s.Remove("/"), blockstore.ErrInvalid)
}

func TestReadDir(t *testing.T) {
	s := New()
	require.NoError(t, s.Mkdir("/d/sub"))
	writeFile(t, s, "/d/b.txt", blockstore.ModeWrite, "12")
	writeFile(t, s, "/d/sub/deep", blockstore.ModeWrite, "x")

	entries, err := s.ReadDir("/d")
	require.NoError(t, err)
	require.Equal(t, []blockstore.Entry{
		{Name: "b.txt", Size: 2},
		{Name: "sub", IsDir: true},
	}, entries)

	root, err := s.ReadDir("/")
	require.NoError(t, err)
	require.Len(t, root, 1)
}

func TestPartitionAndFormat(t *testing.T) {
	s := New()
	require.NoError(t, s.Mkdir("/d"))
	require.NoError(t, s.Mount())

	require.ErrorIs(t, s.Partition(blockstore.PartitionSpec{}), blockstore.ErrInvalid)
	require.NoError(t, s.Partition(blockstore.SinglePartition))
	require.False(t, s.Mounted())
	require.ErrorIs(t, s.Mount(), blockstore.ErrNoFilesystem)
	require.False(t, s.Exists("/d"))

	require.NoError(t, s.MakeFilesystem(blockstore.FormatOptions{}))
	require.NoError(t, s.Mount())
	require.True(t, s.Exists("/"))
	require.False(t, s.Exists("/d"))
}

func TestFaults(t *testing.T) {
	s := New()
	boom := errors.New("boom")

	s.Fail(OpMkdir, boom)
	require.ErrorIs(t, s.Mkdir("/d"), boom)
	s.Fail(OpMkdir, nil)
	require.NoError(t, s.Mkdir("/d"))

	s.KeepRemoved(true)
	require.NoError(t, s.Rmdir("/d"))
	require.True(t, s.Exists("/d"))
}

func TestReadyAfter(t *testing.T) {
	s := New()
	s.ReadyAfter(2)
	require.False(t, s.DeviceReady())
	require.False(t, s.DeviceReady())
	require.True(t, s.DeviceReady())
	require.Equal(t, 3, s.Probes())

	s.SetReady(false)
	_, err := s.Identity()
	require.Error(t, err)
}
