// Package util holds small file, locking and retry helpers shared by the commands and the pipeline.
package util

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"

	"github.com/xia2/xia2-go/internal/errors"
)

// FileExists returns true if the given file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureDirectory creates path and its parents if needed.
func EnsureDirectory(path string) error {
	if err := os.MkdirAll(path, os.ModePerm); err != nil {
		return errors.New(err)
	}

	return nil
}

// ExpandPath expands a leading `~` and makes path absolute relative to basePath.
func ExpandPath(path, basePath string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", errors.New(err)
	}

	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(basePath, expanded)
	}

	return filepath.Clean(expanded), nil
}

// WriteFileAtomic writes data to a temporary file next to path and renames it into place, so readers see either
// the old content or the new, never a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.New(err)
	}

	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return errors.New(err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return errors.New(err)
	}

	if err := tmp.Close(); err != nil {
		return errors.New(err)
	}

	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return errors.New(err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.New(err)
	}

	return nil
}
