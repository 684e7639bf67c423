package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrPathTraversal  = errors.New("path contains directory traversal sequences")
	ErrAbsolutePath   = errors.New("absolute paths are not allowed")
	ErrEmptyPath      = errors.New("path cannot be empty")
	ErrInvalidPath    = errors.New("invalid path")
	ErrOutsideBaseDir = errors.New("path is outside allowed base directory")
)

func isSeparator(r rune) bool { return r == '/' || r == '\\' }

// validateRelative accepts relative paths with no ".." element. Dots inside
// a name, as in "Q1..report.pdf", are fine.
func validateRelative(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if strings.ContainsRune(path, 0) {
		return ErrInvalidPath
	}
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") || strings.HasPrefix(path, `\`) {
		return ErrAbsolutePath
	}
	for _, part := range strings.FieldsFunc(path, isSeparator) {
		if part == ".." {
			return ErrPathTraversal
		}
	}
	if filepath.Clean(path) == "." {
		return ErrPathTraversal
	}
	return nil
}

// ValidateStorageKey checks a slash separated object key used by the blob
// storage backends. Every element must be a plain name.
func ValidateStorageKey(key string) error {
	if err := validateRelative(key); err != nil {
		return err
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." {
			return ErrPathTraversal
		}
	}
	return nil
}

// SafeJoin joins name onto baseDir, refusing anything that would land
// outside it.
func SafeJoin(baseDir, name string) (string, error) {
	if err := validateRelative(name); err != nil {
		return "", err
	}
	if baseDir == "" {
		return "", fmt.Errorf("base directory cannot be empty")
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}
	full := filepath.Join(absBase, name)
	if full != absBase && !strings.HasPrefix(full, absBase+string(filepath.Separator)) {
		return "", ErrOutsideBaseDir
	}
	return filepath.Join(baseDir, name), nil
}
