package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	DefaultDBFile = "myapp.db"
)

// ErrIsDirectory is returned when the database path names a directory.
var ErrIsDirectory = errors.New("datastore path is a directory, expected file")

// FileState describes what is on disk at the database path.
type FileState int

const (
	FileMissing FileState = iota // nothing at the path
	FileEmpty                    // zero-length regular file
	FilePresent                  // non-empty regular file
)

func (s FileState) String() string {
	switch s {
	case FileMissing:
		return "missing"
	case FileEmpty:
		return "empty"
	case FilePresent:
		return "present"
	}
	return fmt.Sprintf("FileState(%d)", int(s))
}

// CheckFile reports the on-disk state of the database file at dbPath.
func CheckFile(dbPath string) (FileState, error) {
	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return FileMissing, nil
		}
		return FileMissing, fmt.Errorf("failed to check store existence: %w", err)
	}
	if info.IsDir() {
		return FileMissing, fmt.Errorf("%w: %s", ErrIsDirectory, dbPath)
	}
	if !info.Mode().IsRegular() {
		return FileMissing, fmt.Errorf("datastore path is not a regular file: %s", dbPath)
	}
	if info.Size() == 0 {
		return FileEmpty, nil
	}
	return FilePresent, nil
}

// CheckExists verifies if a non-empty datastore exists at the given path.
func CheckExists(dbPath string) (bool, error) {
	state, err := CheckFile(dbPath)
	if err != nil {
		return false, err
	}
	return state == FilePresent, nil
}

// GetStorePath returns the path to the datastore directory.
// This defaults to the current working directory.
func GetStorePath() string {
	return "."
}

// GetDBPath returns the full path to the database file.
func GetDBPath(storePath string) string {
	return filepath.Join(storePath, DefaultDBFile)
}

// ResolveDBPath turns a configured database path into an absolute path.
// An empty value resolves to DefaultDBFile in the store directory.
func ResolveDBPath(configured string) (string, error) {
	if configured == "" {
		configured = GetDBPath(GetStorePath())
	}
	abs, err := filepath.Abs(configured)
	if err != nil {
		return "", fmt.Errorf("failed to resolve database path %q: %w", configured, err)
	}
	return abs, nil
}
