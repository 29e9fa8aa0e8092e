//go:build !tinygo

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"flashstore/store/filestore"
)

func readHostFile(p string) ([]byte, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read host file: %w", err)
	}
	return data, nil
}

// importDir copies the regular files below srcDir into the store, keeping
// their relative paths. Symlinks and special files are skipped.
func importDir(store *filestore.Store, srcDir string) (int, error) {
	srcDir = filepath.Clean(srcDir)
	st, err := os.Stat(srcDir)
	if err != nil {
		return 0, fmt.Errorf("stat src %q: %w", srcDir, err)
	}
	if !st.IsDir() {
		return 0, fmt.Errorf("src %q is not a directory", srcDir)
	}

	var dirs []string
	var files []string
	walkErr := filepath.WalkDir(srcDir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == srcDir {
			return nil
		}
		if entry.Type()&os.ModeSymlink != 0 {
			return nil
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		storePath := "/" + filepath.ToSlash(rel)
		if entry.IsDir() {
			dirs = append(dirs, storePath)
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		files = append(files, storePath)
		return nil
	})
	if walkErr != nil {
		return 0, fmt.Errorf("walk src %q: %w", srcDir, walkErr)
	}

	sort.Strings(dirs)
	sort.Strings(files)

	for _, d := range dirs {
		if err := store.CreateDirectory(d); err != nil && !errors.Is(err, filestore.AlreadyExists) {
			return 0, err
		}
	}
	for i, fpath := range files {
		data, err := readHostFile(filepath.Join(srcDir, filepath.FromSlash(fpath[1:])))
		if err != nil {
			return i, err
		}
		dir, file, err := splitPath(fpath)
		if err != nil {
			return i, err
		}
		if err := store.SaveFile(dir, file, filestore.Bytes(data), true); err != nil {
			return i, err
		}
	}
	return len(files), nil
}
