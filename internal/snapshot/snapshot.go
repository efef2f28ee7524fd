// Package snapshot holds the latest complete set of probe results.
//
// A Snapshot is built once per cycle and never modified after it is handed
// to Store.Replace. Readers get the same pointer until the next replace, so
// they always observe results from exactly one cycle.
package snapshot

import (
	"sort"
	"sync"
	"time"

	"github.com/jandubois/healthmon/internal/probe"
)

// Snapshot is the state of every target as of one completed cycle.
type Snapshot struct {
	Seq         uint64
	CycleID     string
	StartedAt   time.Time
	CompletedAt time.Time
	Results     map[string]probe.Result
}

// Get returns the result for id.
func (s *Snapshot) Get(id string) (probe.Result, bool) {
	if s == nil {
		return probe.Result{}, false
	}
	r, ok := s.Results[id]
	return r, ok
}

// IDs returns the target ids in the snapshot, sorted.
func (s *Snapshot) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.Results))
	for id := range s.Results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Counts returns how many targets are in each status.
func (s *Snapshot) Counts() map[probe.Status]int {
	counts := make(map[probe.Status]int, 3)
	if s == nil {
		return counts
	}
	for _, r := range s.Results {
		counts[r.Status]++
	}
	return counts
}

// Store holds the current snapshot.
type Store struct {
	mu      sync.RWMutex
	current *Snapshot
}

// NewStore creates a store holding an empty snapshot.
func NewStore() *Store {
	return &Store{current: &Snapshot{Results: map[string]probe.Result{}}}
}

// Replace swaps in next if it is newer than the current snapshot.
// It returns false and keeps the current snapshot when next.Seq is not
// greater, so a cycle that started earlier can never overwrite a later one.
func (s *Store) Replace(next *Snapshot) bool {
	if next == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if next.Seq <= s.current.Seq {
		return false
	}
	s.current = next
	return true
}

// ReadAll returns the current snapshot. Callers must treat it as read-only.
func (s *Store) ReadAll() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// ReadOne returns the current result for id.
func (s *Store) ReadOne(id string) (probe.Result, bool) {
	return s.ReadAll().Get(id)
}
