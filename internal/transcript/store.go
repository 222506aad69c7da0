// Package transcript keeps the delivered messages of one table session.
package transcript

import (
	"sync"

	"roundtable/internal/models"
)

// Store is an append-only, ordered history. Entries are copied in and out so
// callers never share backing arrays with the store.
type Store struct {
	mu      sync.RWMutex
	entries []models.TranscriptEntry
}

func NewStore() *Store {
	return &Store{}
}

// Append adds entry at the tail.
func (s *Store) Append(entry models.TranscriptEntry) {
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
}

// Tail returns the last n entries in their original order.
func (s *Store) Tail(n int) []models.TranscriptEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Tail(s.entries, n)
}

// All returns a copy of the full history.
func (s *Store) All() []models.TranscriptEntry {
	return s.Tail(-1)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Tail copies the last n entries of history; n < 0 copies everything.
func Tail(history []models.TranscriptEntry, n int) []models.TranscriptEntry {
	if n < 0 || n > len(history) {
		n = len(history)
	}
	out := make([]models.TranscriptEntry, n)
	copy(out, history[len(history)-n:])
	return out
}
