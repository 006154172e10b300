package kanban

import (
	"sync"
)

// State is the in-memory board state: an ordered sequence of leads, newest
// first. It is rebuilt wholesale on load and patched incrementally after.
// No two entries ever share an id.
type State struct {
	mu    sync.RWMutex
	leads []Lead
}

// NewState creates an empty board state.
func NewState() *State {
	return &State{}
}

// ReplaceAll swaps the whole collection. Later duplicates of an id and leads
// outside the four columns are dropped.
func (s *State) ReplaceAll(leads []Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(leads))
	next := make([]Lead, 0, len(leads))
	for _, l := range leads {
		if !l.Status.Valid() {
			continue
		}
		k := l.ID.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		next = append(next, l)
	}
	s.leads = next
}

// --- Queries ---

// Get returns a lead by id.
func (s *State) Get(id LeadID) (Lead, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		return s.leads[i], true
	}
	return Lead{}, false
}

// Has reports whether an entry with the id exists.
func (s *State) Has(id LeadID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOf(id) >= 0
}

// All returns a copy of every lead in board order.
func (s *State) All() []Lead {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Lead, len(s.leads))
	copy(out, s.leads)
	return out
}

// Len returns the number of leads.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.leads)
}

// Counts returns the number of leads per status.
func (s *State) Counts() map[Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[Status]int, 4)
	for _, st := range Statuses() {
		counts[st] = 0
	}
	for _, l := range s.leads {
		counts[l.Status]++
	}
	return counts
}

// --- Mutations ---

// UpdateStatus changes only the status of the matching lead.
func (s *State) UpdateStatus(id LeadID, status Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 || !status.Valid() {
		return false
	}
	s.leads[i].Status = status
	return true
}

// InsertIfAbsent prepends the lead unless an entry with its id exists or its
// status is unknown.
func (s *State) InsertIfAbsent(l Lead) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !l.Status.Valid() || s.indexOf(l.ID) >= 0 {
		return false
	}
	s.leads = append([]Lead{l}, s.leads...)
	return true
}

// Replace overwrites the matching lead in place and returns the previous value.
func (s *State) Replace(l Lead) (Lead, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(l.ID)
	if i < 0 || !l.Status.Valid() {
		return Lead{}, false
	}
	old := s.leads[i]
	s.leads[i] = l
	return old, true
}

// RemoveByID deletes the matching lead.
func (s *State) RemoveByID(id LeadID) (Lead, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return Lead{}, false
	}
	removed := s.leads[i]
	s.leads = append(s.leads[:i], s.leads[i+1:]...)
	return removed, true
}

// indexOf finds a lead by id (internal, no lock).
func (s *State) indexOf(id LeadID) int {
	for i := range s.leads {
		if s.leads[i].ID.Equal(id) {
			return i
		}
	}
	return -1
}
