//go:build !tinygo

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/google/shlex"
	"github.com/zeebo/xxh3"

	"flashstore/store/filestore"
)

type session struct {
	fs  *filestore.Store
	in  io.Reader
	out io.Writer
}

func newSession(fs *filestore.Store, in io.Reader, out io.Writer) *session {
	return &session{fs: fs, in: in, out: out}
}

type command struct {
	usage string
	min   int
	max   int // -1: unbounded
	run   func(s *session, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"ls":     {"[dir]  list a directory", 0, 1, (*session).ls},
		"cat":    {"path  print a file", 1, 1, (*session).cat},
		"put":    {"[-f] path host-file|-  store a host file (-f replaces content)", 2, 3, (*session).put},
		"write":  {"[-f] path text...  store text (-f replaces content)", 2, -1, (*session).write},
		"append": {"path text...  append a line of text", 2, -1, (*session).append},
		"touch":  {"path  create an empty file", 1, 1, (*session).touch},
		"mkdir":  {"dir  create a directory and its parents", 1, 1, (*session).mkdir},
		"rm":     {"path  delete a file", 1, 1, (*session).rm},
		"rmdir":  {"dir  delete a directory and its contents", 1, 1, (*session).rmdir},
		"size":   {"path  print a file size", 1, 1, (*session).size},
		"sum":    {"path  print the xxh3-128 checksum of a file", 1, 1, (*session).sum},
		"exists": {"path  report whether a path exists", 1, 1, (*session).exists},
		"format": {"  erase the flash and create an empty filesystem", 0, 0, (*session).format},
		"info":   {"  print the flash chip identity", 0, 0, (*session).info},
		"script": {"file|-  run commands from a host file", 1, 1, (*session).script},
	}
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *session) run(args []string) error {
	if len(args) == 0 {
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", args[0])
	}
	rest := args[1:]
	if len(rest) < cmd.min || (cmd.max >= 0 && len(rest) > cmd.max) {
		return fmt.Errorf("usage: %s %s", args[0], cmd.usage)
	}
	return cmd.run(s, rest)
}

// runScript runs one command per line. Lines are split like a shell would;
// '#' starts a comment. The first failing line stops the script.
func (s *session) runScript(r io.Reader) error {
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		args, err := shlex.Split(sc.Text())
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if len(args) == 0 {
			continue
		}
		if args[0] == "script" {
			return fmt.Errorf("line %d: nested scripts are not supported", line)
		}
		if err := s.run(args); err != nil {
			return fmt.Errorf("line %d: %s: %w", line, args[0], err)
		}
	}
	return sc.Err()
}

// splitPath turns "/a/b/c.txt" into ("/a/b", "c.txt"). Files in the root
// keep "/" as their directory.
func splitPath(p string) (dir, file string, err error) {
	if !strings.HasPrefix(p, "/") {
		return "", "", fmt.Errorf("path %q: must be absolute", p)
	}
	p = path.Clean(p)
	dir, file = path.Split(p)
	if file == "" {
		return "", "", fmt.Errorf("path %q: no file name", p)
	}
	if dir != "/" {
		dir = strings.TrimSuffix(dir, "/")
	}
	return dir, file, nil
}

func cleanDir(p string) (string, error) {
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("path %q: must be absolute", p)
	}
	return path.Clean(p), nil
}

func (s *session) ls(args []string) error {
	dir := "/"
	if len(args) == 1 {
		var err error
		if dir, err = cleanDir(args[0]); err != nil {
			return err
		}
	}
	entries, err := s.fs.ListDirectory(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir {
			fmt.Fprintf(s.out, "%10s  %s/\n", "-", e.Name)
			continue
		}
		fmt.Fprintf(s.out, "%10d  %s\n", e.Size, e.Name)
	}
	return nil
}

func (s *session) readAll(p string) ([]byte, error) {
	dir, file, err := splitPath(p)
	if err != nil {
		return nil, err
	}
	size, err := s.fs.GetFilesize(dir, file)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	n, err := s.fs.ReadFileContents(dir, file, buf, len(buf))
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (s *session) cat(args []string) error {
	data, err := s.readAll(args[0])
	if err != nil {
		return err
	}
	_, err = s.out.Write(data)
	return err
}

func (s *session) sum(args []string) error {
	data, err := s.readAll(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%x  %s\n", xxh3.Hash128(data).Bytes(), args[0])
	return nil
}

func (s *session) size(args []string) error {
	dir, file, err := splitPath(args[0])
	if err != nil {
		return err
	}
	n, err := s.fs.GetFilesize(dir, file)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, n)
	return nil
}

func takeForce(args []string) (bool, []string) {
	if len(args) > 0 && args[0] == "-f" {
		return true, args[1:]
	}
	return false, args
}

func (s *session) put(args []string) error {
	force, args := takeForce(args)
	if len(args) != 2 {
		return errors.New("usage: put [-f] path host-file|-")
	}
	dir, file, err := splitPath(args[0])
	if err != nil {
		return err
	}
	var data []byte
	if args[1] == "-" {
		data, err = io.ReadAll(s.in)
	} else {
		data, err = readHostFile(args[1])
	}
	if err != nil {
		return err
	}
	return s.fs.SaveFile(dir, file, filestore.Bytes(data), force)
}

func (s *session) write(args []string) error {
	force, args := takeForce(args)
	if len(args) < 2 {
		return errors.New("usage: write [-f] path text...")
	}
	dir, file, err := splitPath(args[0])
	if err != nil {
		return err
	}
	return s.fs.SaveFile(dir, file, filestore.Text(strings.Join(args[1:], " ")), force)
}

func (s *session) append(args []string) error {
	dir, file, err := splitPath(args[0])
	if err != nil {
		return err
	}
	return s.fs.AppendToFile(dir, file, filestore.Text(strings.Join(args[1:], " ")+"\n"))
}

func (s *session) touch(args []string) error {
	dir, file, err := splitPath(args[0])
	if err != nil {
		return err
	}
	return s.fs.CreateFile(dir, file)
}

func (s *session) mkdir(args []string) error {
	dir, err := cleanDir(args[0])
	if err != nil {
		return err
	}
	return s.fs.CreateDirectory(dir)
}

func (s *session) rm(args []string) error {
	dir, file, err := splitPath(args[0])
	if err != nil {
		return err
	}
	return s.fs.DeleteFile(dir, file)
}

func (s *session) rmdir(args []string) error {
	dir, err := cleanDir(args[0])
	if err != nil {
		return err
	}
	return s.fs.DeleteDirectory(dir)
}

func (s *session) exists(args []string) error {
	p, err := cleanDir(args[0])
	if err != nil {
		return err
	}
	kind, err := s.kind(p)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s: %s\n", p, kind)
	return nil
}

// kind reports "directory", "file" or "not found" for p. Exists holds for
// both kinds, so the parent listing decides.
func (s *session) kind(p string) (string, error) {
	if !s.fs.DirectoryExists(p) {
		return "not found", nil
	}
	if p == "/" {
		return "directory", nil
	}
	dir, file, err := splitPath(p)
	if err != nil {
		return "", err
	}
	entries, err := s.fs.ListDirectory(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.Name != file {
			continue
		}
		if e.IsDir {
			return "directory", nil
		}
		return "file", nil
	}
	return "not found", nil
}

func (s *session) format(args []string) error {
	return s.fs.Format()
}

func (s *session) info(args []string) error {
	id := s.fs.Identity()
	fmt.Fprintf(s.out, "chip      %06X\n", id.ChipModelID)
	fmt.Fprintf(s.out, "vendor    %02X\n", id.ManufacturerID)
	fmt.Fprintf(s.out, "device    %02X\n", id.DeviceID)
	fmt.Fprintf(s.out, "pages     %d x %d bytes\n", id.PageCount, id.PageSize)
	fmt.Fprintf(s.out, "capacity  %d bytes\n", id.SizeBytes())
	fmt.Fprintf(s.out, "address   %#08x\n", id.Address)
	return nil
}

func (s *session) script(args []string) error {
	if args[0] == "-" {
		return s.runScript(s.in)
	}
	data, err := readHostFile(args[0])
	if err != nil {
		return err
	}
	return s.runScript(strings.NewReader(string(data)))
}
