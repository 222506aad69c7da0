package worker

import (
	"sync"
	"time"
)

// tableState tracks which tables have a generation in flight in this
// process, plus counters for the health endpoint.
type tableState struct {
	mu        sync.Mutex
	inflight  map[string]time.Time
	completed uint64
	failed    uint64
	rejected  uint64
}

// Stats is a point-in-time view of the generation pipeline.
type Stats struct {
	InFlight  int    `json:"in_flight"`
	Queued    int    `json:"queued"`
	Workers   int    `json:"workers"`
	Idle      int    `json:"idle_workers"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Rejected  uint64 `json:"rejected"`
}

func newTableState() *tableState {
	return &tableState{inflight: make(map[string]time.Time)}
}

// acquire marks key as generating; false when it already is.
func (s *tableState) acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		s.rejected++
		return false
	}
	s.inflight[key] = time.Now()
	return true
}

func (s *tableState) release(key string) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}

func (s *tableState) isBusy(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.inflight[key]
	return busy
}

func (s *tableState) record(err error) {
	s.mu.Lock()
	if err != nil {
		s.failed++
	} else {
		s.completed++
	}
	s.mu.Unlock()
}

func (s *tableState) reject() {
	s.mu.Lock()
	s.rejected++
	s.mu.Unlock()
}

func (s *tableState) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		InFlight:  len(s.inflight),
		Completed: s.completed,
		Failed:    s.failed,
		Rejected:  s.rejected,
	}
}
