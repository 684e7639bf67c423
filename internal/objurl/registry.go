// Package objurl hands out short-lived download URLs for operation results.
//
// A Registry owns the stored bytes. A Manager tracks the URLs one owner
// (a workspace session, or the whole process) has created so they can all
// be revoked when the owner goes away.
package objurl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
	"github.com/rmitchellscott/pdfdesk/internal/metrics"
	"github.com/rmitchellscott/pdfdesk/internal/security"
	"github.com/rmitchellscott/pdfdesk/internal/storage"
)

// URLPrefix is the route blobs are served from.
const URLPrefix = "/api/blobs/"

var ErrUnknownURL = errors.New("object url not found")

// Blob is a result waiting to be downloaded.
type Blob struct {
	Data        []byte
	ContentType string
	// Name is the suggested download name. It is sanitized on Create.
	Name string
}

// Entry is what the registry remembers about a live URL.
type Entry struct {
	ID          uuid.UUID
	URL         string
	ContentType string
	Name        string
	Size        int64
	CreatedAt   time.Time
	// Owner names the manager that created the URL: a session id, or
	// GlobalOwner.
	Owner string
}

// Registry stores blob bytes in a storage backend and maps URLs to them.
type Registry struct {
	backend storage.Backend
	metrics *metrics.Metrics

	mu      sync.RWMutex
	entries map[uuid.UUID]Entry
}

func NewRegistry(backend storage.Backend, m *metrics.Metrics) *Registry {
	return &Registry{
		backend: backend,
		metrics: m,
		entries: make(map[uuid.UUID]Entry),
	}
}

// Put stores b on behalf of owner and returns its entry. Callers normally
// go through a Manager so the URL is revoked with its owner.
func (r *Registry) Put(ctx context.Context, owner string, b Blob) (Entry, error) {
	id := uuid.New()
	if err := r.backend.Put(ctx, storage.BlobKey(id), bytes.NewReader(b.Data)); err != nil {
		return Entry{}, fmt.Errorf("failed to store blob: %w", err)
	}
	e := Entry{
		ID:          id,
		URL:         URLPrefix + id.String(),
		ContentType: b.ContentType,
		Name:        security.SanitizeFilename(b.Name),
		Size:        int64(len(b.Data)),
		CreatedAt:   time.Now(),
		Owner:       owner,
	}
	if e.ContentType == "" {
		e.ContentType = "application/octet-stream"
	}

	r.mu.Lock()
	r.entries[id] = e
	r.mu.Unlock()
	r.metrics.ObjectURLCreated()
	return e, nil
}

// Lookup resolves a URL or bare id to its entry.
func (r *Registry) Lookup(urlOrID string) (Entry, bool) {
	id, err := ParseURL(urlOrID)
	if err != nil {
		return Entry{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Open returns the bytes behind a live URL.
func (r *Registry) Open(ctx context.Context, urlOrID string) (Entry, io.ReadCloser, error) {
	e, ok := r.Lookup(urlOrID)
	if !ok {
		return Entry{}, nil, ErrUnknownURL
	}
	rc, err := r.backend.Get(ctx, storage.BlobKey(e.ID))
	if err != nil {
		return Entry{}, nil, err
	}
	return e, rc, nil
}

// Release forgets the URL and deletes its bytes. Releasing an unknown URL
// is a no-op and reports false.
func (r *Registry) Release(ctx context.Context, urlOrID string) (bool, error) {
	id, err := ParseURL(urlOrID)
	if err != nil {
		return false, nil
	}
	r.mu.Lock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if !ok {
		return false, nil
	}
	r.metrics.ObjectURLRevoked(1)

	if err := r.backend.Delete(ctx, storage.BlobKey(id)); err != nil {
		logging.Warnf("[OBJURL] Failed to delete blob %s: %v", id, err)
		return true, err
	}
	return true, nil
}

// Backend is where blob bytes live.
func (r *Registry) Backend() storage.Backend { return r.backend }

// Len is the number of live URLs across all managers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Sweep removes stored blobs that no live URL points at. It is run at
// startup to clear leftovers from a previous process.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	keys, err := r.backend.List(ctx, storage.BlobPrefix)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, key := range keys {
		id, err := storage.ParseBlobKey(key)
		if err == nil {
			r.mu.RLock()
			_, live := r.entries[id]
			r.mu.RUnlock()
			if live {
				continue
			}
		}
		if err := r.backend.Delete(ctx, key); err != nil {
			logging.Warnf("[OBJURL] Failed to sweep %s: %v", key, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		logging.Logf("[OBJURL] Swept %d orphaned blobs", removed)
	}
	return removed, nil
}

// ParseURL accepts "/api/blobs/<id>" or a bare id.
func ParseURL(s string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimPrefix(s, URLPrefix))
}
