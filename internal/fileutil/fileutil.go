package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
)

// RegularFileSize returns the byte size of path, failing when path is missing
// or is not a regular file.
func RegularFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}
	return info.Size(), nil
}

// NonEmpty reports whether path is a regular file with at least one byte.
func NonEmpty(path string) bool {
	size, err := RegularFileSize(path)
	return err == nil && size > 0
}

// DirExists reports whether path names an existing directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// RemoveIfExists deletes path, treating an absent file as success.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ReplaceFile moves src over dst. Windows refuses to rename onto an existing
// file, so dst is removed first there.
func ReplaceFile(src, dst string) error {
	if runtime.GOOS == "windows" {
		if err := RemoveIfExists(dst); err != nil {
			return err
		}
	}
	return os.Rename(src, dst)
}
