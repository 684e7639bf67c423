// Package jobs tracks running workspace operations and fans their progress
// out to subscribers.
package jobs

import (
	"sync"
	"time"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Terminal reports whether no further updates follow.
func (s Status) Terminal() bool { return s == StatusSuccess || s == StatusError }

// Job represents the state of a single workspace run
type Job struct {
	ID        string            `json:"id"`
	Tool      string            `json:"tool"`
	Status    Status            `json:"status"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`
	Progress  int               `json:"progress"`
	Operation string            `json:"operation"` // e.g. "reading", "merging", "writing"
	UpdatedAt time.Time         `json:"updatedAt"`
}

func (j *Job) clone() *Job {
	cp := *j
	if j.Data != nil {
		cp.Data = make(map[string]string, len(j.Data))
		for k, v := range j.Data {
			cp.Data[k] = v
		}
	}
	return &cp
}

// Store holds all jobs in memory
type Store struct {
	mu       sync.RWMutex
	jobs     map[string]*Job
	watchers map[string][]chan *Job
}

func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job), watchers: make(map[string][]chan *Job)}
}

// Subscribe returns a channel that receives job updates for the given id,
// starting with the current state. The returned function unsubscribes.
func (s *Store) Subscribe(id string) (<-chan *Job, func()) {
	ch := make(chan *Job, 256)
	s.mu.Lock()
	s.watchers[id] = append(s.watchers[id], ch)
	if job := s.jobs[id]; job != nil {
		ch <- job.clone()
	}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			watchers := s.watchers[id]
			for i, c := range watchers {
				if c == ch {
					s.watchers[id] = append(watchers[:i], watchers[i+1:]...)
					break
				}
			}
			if len(s.watchers[id]) == 0 {
				delete(s.watchers, id)
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

// broadcastLocked sends a snapshot to every watcher. Progress updates are
// dropped for slow watchers; terminal updates wait briefly.
func (s *Store) broadcastLocked(id string) {
	job := s.jobs[id]
	job.UpdatedAt = time.Now()
	snapshot := job.clone()

	for _, ch := range s.watchers[id] {
		if snapshot.Status.Terminal() {
			select {
			case ch <- snapshot:
			case <-time.After(time.Second):
			}
		} else {
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

func (s *Store) Create(id, tool string) {
	s.mu.Lock()
	s.jobs[id] = &Job{ID: id, Tool: tool, Status: StatusPending}
	s.broadcastLocked(id)
	s.mu.Unlock()
}

func (s *Store) Update(id string, status Status, msg string, data map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok && !j.Status.Terminal() {
		j.Status = status
		j.Message = msg
		j.Data = data
		if status == StatusSuccess {
			j.Progress = 100
		}
		s.broadcastLocked(id)
	}
}

// SetOperation records which stage the job is in.
func (s *Store) SetOperation(id, operation string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok && !j.Status.Terminal() {
		j.Operation = operation
		if j.Status == StatusPending {
			j.Status = StatusRunning
		}
		s.broadcastLocked(id)
	}
}

// UpdateProgress sets the progress (0-100) for a job. It never moves
// backwards.
func (s *Store) UpdateProgress(id string, p int) {
	if p < 0 {
		p = 0
	} else if p > 100 {
		p = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok && !j.Status.Terminal() && p > j.Progress {
		j.Progress = p
		if j.Status == StatusPending {
			j.Status = StatusRunning
		}
		s.broadcastLocked(id)
	}
}

// Get returns a snapshot of the job.
func (s *Store) Get(id string) (*Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return j.clone(), true
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
}

// Prune drops finished jobs last updated before cutoff and returns how many
// were removed.
func (s *Store) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, j := range s.jobs {
		if j.Status.Terminal() && j.UpdatedAt.Before(cutoff) && len(s.watchers[id]) == 0 {
			delete(s.jobs, id)
			n++
		}
	}
	return n
}
