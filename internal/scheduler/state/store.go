package state

import (
	"sync"
	"time"
)

// Store remembers which calendar days this process has already confirmed to
// exist, so steady-state ticks skip the per-day existence query.
type Store struct {
	mu   sync.RWMutex
	seen map[string]time.Time // grid ID -> when confirmed
}

// NewStore creates a materializer state store.
func NewStore() *Store {
	return &Store{seen: make(map[string]time.Time, 256)}
}

// MarkSeen records that a grid ID exists.
func (s *Store) MarkSeen(gridID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[gridID] = time.Now()
}

// Seen reports whether a grid ID was already confirmed.
func (s *Store) Seen(gridID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[gridID]
	return ok
}

// Prune drops confirmations older than cutoff so the map does not grow with
// the calendar.
func (s *Store) Prune(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, at := range s.seen {
		if at.Before(cutoff) {
			delete(s.seen, id)
		}
	}
}
