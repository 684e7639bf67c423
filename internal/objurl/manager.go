package objurl

import (
	"context"
	"errors"
	"sync"
)

// Manager tracks the URLs created by one owner. Every URL it creates is
// revoked by RevokeAll, which owners call on teardown. Safe for concurrent
// use.
type Manager struct {
	registry *Registry
	owner    string

	mu   sync.Mutex
	urls map[string]struct{}
}

// GlobalOwner marks URLs created by the process-wide manager.
const GlobalOwner = "global"

// NewManager returns a manager whose URLs are recorded in r as belonging
// to owner.
func NewManager(r *Registry, owner string) *Manager {
	return &Manager{registry: r, owner: owner, urls: make(map[string]struct{})}
}

var global struct {
	sync.Mutex
	m *Manager
}

// InitGlobal builds the process-wide manager on r, for downloads no session
// owns. Later calls return the first manager.
func InitGlobal(r *Registry) *Manager {
	global.Lock()
	defer global.Unlock()
	if global.m == nil {
		global.m = NewManager(r, GlobalOwner)
	}
	return global.m
}

// Global returns the process-wide manager, or nil before InitGlobal.
func Global() *Manager {
	global.Lock()
	defer global.Unlock()
	return global.m
}

// Create stores b and tracks the returned URL.
func (m *Manager) Create(ctx context.Context, b Blob) (string, error) {
	e, err := m.registry.Put(ctx, m.owner, b)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.urls[e.URL] = struct{}{}
	m.mu.Unlock()
	return e.URL, nil
}

// Revoke releases one URL. Revoking a URL this manager does not track, or
// one already revoked, does nothing.
func (m *Manager) Revoke(ctx context.Context, url string) error {
	m.mu.Lock()
	_, ok := m.urls[url]
	delete(m.urls, url)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	_, err := m.registry.Release(ctx, url)
	return err
}

// RevokeAll releases every tracked URL. The tracked set is empty afterwards
// even if some deletes failed; the errors are joined.
func (m *Manager) RevokeAll(ctx context.Context) error {
	m.mu.Lock()
	urls := make([]string, 0, len(m.urls))
	for u := range m.urls {
		urls = append(urls, u)
	}
	m.urls = make(map[string]struct{})
	m.mu.Unlock()

	var errs []error
	for _, u := range urls {
		if _, err := m.registry.Release(ctx, u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ActiveCount is the number of URLs created and not yet revoked.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.urls)
}

// Owns reports whether url was created by this manager and is still live.
func (m *Manager) Owns(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.urls[url]
	return ok
}

func (m *Manager) Registry() *Registry { return m.registry }

// Owner is the name recorded on every URL this manager creates.
func (m *Manager) Owner() string { return m.owner }
