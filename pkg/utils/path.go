package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir validates that path names an existing directory.
//
// Example usage:
//
//	if err := EnsureDir(cfg.Storage.CSVDir); err != nil {
//		return fmt.Errorf("csv_dir: %w", err)
//	}
func EnsureDir(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", path)
	}

	return nil
}

// JoinBase joins dir with the base name of file, dropping any directory
// components of file.
func JoinBase(dir, file string) string {
	return filepath.Join(dir, filepath.Base(file))
}

// RemoveIfExists removes path and treats a missing file as success
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
