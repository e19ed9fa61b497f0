package tracker

import (
	"sort"
	"sync"

	"github.com/benvon/flowstate/internal/models"
)

// Store owns a single user's entry log, the set of open sessions, the tags seen so far
// and the estimation history. Entries are append-only and kept in creation order.
//
// Every id in active also appears in entries and points at the same record.
// Mutations go through Controller, which holds mu for the whole operation;
// readers take mu in shared mode.
type Store struct {
	mu                sync.RWMutex
	entries           []*models.TimeEntry
	byID              map[string]*models.TimeEntry
	active            map[string]*models.TimeEntry
	knownTags         map[string]struct{}
	estimationHistory []models.EstimationPair
}

// NewStore creates an empty store
func NewStore() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.entries = nil
	s.byID = make(map[string]*models.TimeEntry)
	s.active = make(map[string]*models.TimeEntry)
	s.knownTags = make(map[string]struct{})
	s.estimationHistory = nil
}

// append adds a new entry. Callers hold mu.
func (s *Store) append(entry *models.TimeEntry) {
	s.entries = append(s.entries, entry)
	s.byID[entry.SessionID] = entry
	if entry.Status.IsOpen() {
		s.active[entry.SessionID] = entry
	}
	s.knownTags[entry.Tag.MainTag] = struct{}{}
}

// Entry returns a copy of the entry with the given id from the full log
func (s *Store) Entry(sessionID string) (*models.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.byID[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return entry.Clone(), nil
}

// ActiveEntry returns a copy of an open (active or paused) entry
func (s *Store) ActiveEntry(sessionID string) (*models.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.active[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return entry.Clone(), nil
}

// ActiveEntries returns copies of all open entries in creation order
func (s *Store) ActiveEntries() []*models.TimeEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.TimeEntry, 0, len(s.active))
	for _, entry := range s.entries {
		if _, ok := s.active[entry.SessionID]; ok {
			out = append(out, entry.Clone())
		}
	}
	return out
}

// Entries returns copies of every entry in creation order
func (s *Store) Entries() []*models.TimeEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEntries(s.entries)
}

// ActiveCount returns the number of open sessions
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// KnownTags returns every main tag ever used, sorted alphabetically
func (s *Store) KnownTags() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedTags()
}

// EstimationHistory returns a copy of the (estimated, actual) pairs
func (s *Store) EstimationHistory() []models.EstimationPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.EstimationPair(nil), s.estimationHistory...)
}

func (s *Store) sortedTags() []string {
	tags := make([]string, 0, len(s.knownTags))
	for tag := range s.knownTags {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func cloneEntries(entries []*models.TimeEntry) []*models.TimeEntry {
	out := make([]*models.TimeEntry, len(entries))
	for i, entry := range entries {
		out[i] = entry.Clone()
	}
	return out
}
