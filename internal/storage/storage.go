package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
)

// StreamToResponse copies the object at key to the response as an
// attachment. filename must already be sanitized.
func StreamToResponse(ctx context.Context, c *gin.Context, backend Backend, key, filename, contentType string) error {
	info, err := backend.GetInfo(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "backend.errors.not_found"})
			return err
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "backend.errors.storage_failed"})
		return fmt.Errorf("failed to stat %s: %w", key, err)
	}

	reader, err := backend.Get(ctx, key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "backend.errors.storage_failed"})
		return fmt.Errorf("failed to get file from storage: %w", err)
	}
	defer reader.Close()

	if filename != "" {
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	if contentType != "" {
		c.Header("Content-Type", contentType)
	}
	c.Header("Content-Length", strconv.FormatInt(info.Size, 10))
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, reader); err != nil {
		logging.Errorf("[STORAGE] Failed to stream file %s: %v", key, err)
		return fmt.Errorf("failed to stream file: %w", err)
	}
	return nil
}

// CleanupByPrefix deletes every object under prefix. Individual failures
// are logged and skipped.
func CleanupByPrefix(ctx context.Context, backend Backend, prefix string) (int, error) {
	keys, err := backend.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("failed to list files with prefix %s: %w", prefix, err)
	}

	deleted := 0
	for _, key := range keys {
		if err := backend.Delete(ctx, key); err != nil {
			logging.Warnf("[STORAGE] Failed to delete storage file %s: %v", key, err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		logging.Logf("[STORAGE] Cleaned up %d files with prefix %s", deleted, prefix)
	}
	return deleted, nil
}
