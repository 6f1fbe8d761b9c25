// Package disk provides file-based persistence for saved games and the
// session index. The game server hands it already-serialized blobs; this
// package knows nothing about their format.
package disk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ErrNotFound is returned when a requested blob or directory does not exist.
var ErrNotFound = errors.New("not found")

// Store performs blob and directory operations rooted anywhere on the
// filesystem. The zero value is ready to use.
type Store struct{}

// Save writes a serialized blob to path, creating parent directories as needed.
//
// Postcondition: The file at path contains exactly data, or an error is returned.
func (Store) Save(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating parent directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// CreateDir creates the directory at path, including parents.
func (Store) CreateDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}
	return nil
}

// Load reads the blob at path.
//
// Postcondition: Returns the file contents, or ErrNotFound if the path does
// not exist.
func (Store) Load(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("loading %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return data, nil
}

// ListSubdirectories returns the full paths of every immediate subdirectory
// of root, in sorted order.
//
// Postcondition: Returns ErrNotFound if root does not exist.
func (Store) ListSubdirectories(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("listing %s: %w", root, ErrNotFound)
		}
		return nil, fmt.Errorf("listing %s: %w", root, err)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(root, entry.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// DeleteDirectory removes the directory at path and everything under it.
// Deleting a directory that does not exist is not an error.
func (Store) DeleteDirectory(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("deleting directory %s: %w", path, err)
	}
	return nil
}
