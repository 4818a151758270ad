// Package dataset loads normalized conversation records and exposes them as
// encoded training examples.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultFileName is the file looked up inside a dataset directory
const DefaultFileName = "result.json"

// ErrPrimaryInputMissing is returned when the primary dataset does not exist
var ErrPrimaryInputMissing = errors.New("primary input missing")

// ResolveDataPath treats a path that does not end in .json as a directory
// holding result.json
func ResolveDataPath(path string) string {
	if path == "" || strings.HasSuffix(path, ".json") {
		return path
	}
	return filepath.Join(path, DefaultFileName)
}

// CheckPrimary verifies that the resolved primary dataset exists
func CheckPrimary(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrPrimaryInputMissing, path)
		}
		return fmt.Errorf("failed to stat primary input: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrPrimaryInputMissing, path)
	}
	return nil
}

// Exists reports whether an optional dataset file is present
func Exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
