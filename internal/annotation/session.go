package annotation

import (
	"errors"
	"sort"
	"sync"
)

var ErrNotFound = errors.New("annotation not found")

// Session is the editable annotation list for one document.
type Session struct {
	mu    sync.Mutex
	items []Annotation
}

func NewSession() *Session { return &Session{} }

// Add appends a validated annotation. Its position is taken as placed; only
// Move clamps.
func (s *Session) Add(a Annotation) error {
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.items = append(s.items, a)
	s.mu.Unlock()
	return nil
}

// Move repositions an annotation, clamping as the editor's drag does.
func (s *Session) Move(id string, x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].X, s.items[i].Y = Clamp(x), Clamp(y)
			return nil
		}
	}
	return ErrNotFound
}

func (s *Session) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// List returns a copy ordered by page, preserving insertion order within a
// page.
func (s *Session) List() []Annotation {
	s.mu.Lock()
	out := append([]Annotation(nil), s.items...)
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Page < out[j].Page })
	return out
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Drain returns the list and clears it. Called once the annotations are
// baked into a document.
func (s *Session) Drain() []Annotation {
	s.mu.Lock()
	out := s.items
	s.items = nil
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Page < out[j].Page })
	return out
}
