package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rmitchellscott/pdfdesk/internal/logging"
	"github.com/rmitchellscott/pdfdesk/internal/security"
)

// FilesystemBackend stores objects as files below basePath. Keys map to
// slash separated relative paths.
type FilesystemBackend struct {
	basePath string
}

func NewFilesystemBackend(basePath string) *FilesystemBackend {
	return &FilesystemBackend{
		basePath: basePath,
	}
}

func (fs *FilesystemBackend) Put(ctx context.Context, key string, data io.Reader) error {
	filePath, err := fs.keyToPath(key)
	if err != nil {
		return fmt.Errorf("invalid storage key %s: %w", key, err)
	}
	dirPath := filepath.Dir(filePath)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		logging.Errorf("[STORAGE] Failed to create directory %s: %v", dirPath, err)
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	file, err := os.CreateTemp(dirPath, ".put-*")
	if err != nil {
		logging.Errorf("[STORAGE] Failed to create file %s: %v", filePath, err)
		return fmt.Errorf("failed to create file %s: %w", key, err)
	}
	tmp := file.Name()

	if _, err := io.Copy(file, data); err != nil {
		file.Close()
		os.Remove(tmp)
		logging.Errorf("[STORAGE] Failed to write data to %s: %v", filePath, err)
		return fmt.Errorf("failed to write data to %s: %w", key, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write data to %s: %w", key, err)
	}
	// readers never see a partial blob
	if err := os.Rename(tmp, filePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

func (fs *FilesystemBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	filePath, err := fs.keyToPath(key)
	if err != nil {
		return nil, fmt.Errorf("invalid storage key %s: %w", key, err)
	}

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to open file %s: %w", key, err)
	}

	return file, nil
}

func (fs *FilesystemBackend) Delete(ctx context.Context, key string) error {
	filePath, err := fs.keyToPath(key)
	if err != nil {
		return fmt.Errorf("invalid storage key %s: %w", key, err)
	}

	err = os.Remove(filePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (fs *FilesystemBackend) List(ctx context.Context, prefix string) ([]string, error) {
	prefixPath, err := fs.prefixToPath(prefix)
	if err != nil {
		return nil, fmt.Errorf("invalid storage prefix %s: %w", prefix, err)
	}
	var keys []string
	if _, err := os.Stat(prefixPath); os.IsNotExist(err) {
		return keys, nil
	}

	err = filepath.Walk(prefixPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() || strings.HasPrefix(info.Name(), ".put-") {
			return nil
		}

		key := fs.pathToKey(path)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list keys with prefix %s: %w", prefix, err)
	}

	return keys, nil
}

func (fs *FilesystemBackend) Exists(ctx context.Context, key string) (bool, error) {
	filePath, err := fs.keyToPath(key)
	if err != nil {
		return false, fmt.Errorf("invalid storage key %s: %w", key, err)
	}

	_, err = os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check existence of %s: %w", key, err)
	}

	return true, nil
}

func (fs *FilesystemBackend) GetInfo(ctx context.Context, key string) (*Info, error) {
	filePath, err := fs.keyToPath(key)
	if err != nil {
		return nil, fmt.Errorf("invalid storage key %s: %w", key, err)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get info for %s: %w", key, err)
	}

	return &Info{
		Key:          key,
		Size:         info.Size(),
		LastModified: info.ModTime().Format(time.RFC3339),
	}, nil
}

func (fs *FilesystemBackend) keyToPath(key string) (string, error) {
	if err := security.ValidateStorageKey(key); err != nil {
		return "", err
	}
	return filepath.Join(fs.basePath, filepath.FromSlash(key)), nil
}

// prefixToPath resolves a listing prefix. Unlike a key it may be empty or end
// in a slash.
func (fs *FilesystemBackend) prefixToPath(prefix string) (string, error) {
	dir := strings.TrimSuffix(prefix, "/")
	if dir == "" {
		return fs.basePath, nil
	}
	return fs.keyToPath(dir)
}

func (fs *FilesystemBackend) pathToKey(path string) string {
	relPath, err := filepath.Rel(fs.basePath, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(relPath)
}
