package storage

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// BlobPrefix is where operation results live until their URL is revoked.
const BlobPrefix = "blobs/"

// BlobKey returns the storage key for a blob id.
func BlobKey(id uuid.UUID) string {
	return BlobPrefix + id.String()
}

// ParseBlobKey extracts the blob id from a storage key.
func ParseBlobKey(key string) (uuid.UUID, error) {
	if !strings.HasPrefix(key, BlobPrefix) {
		return uuid.Nil, fmt.Errorf("storage key is not a blob: %s", key)
	}
	id, err := uuid.Parse(strings.TrimPrefix(key, BlobPrefix))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid blob id in storage key: %w", err)
	}
	return id, nil
}

// SanitizeStorageKey ensures the storage key is safe to use
func SanitizeStorageKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	key = strings.ReplaceAll(key, "\\", "/")
	for strings.Contains(key, "//") {
		key = strings.ReplaceAll(key, "//", "/")
	}
	return key
}
