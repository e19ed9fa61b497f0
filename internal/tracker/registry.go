package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benvon/flowstate/internal/models"
)

// Tracker bundles one user's store with the controller and analytics engine that operate on it
type Tracker struct {
	UserID    string
	Store     *Store
	Sessions  *Controller
	Analytics *Analytics
	clock     Clock
}

// NewTracker creates an empty tracker for userID
func NewTracker(userID string, clock Clock, opts ...ControllerOption) *Tracker {
	if clock == nil {
		clock = SystemClock{}
	}
	store := NewStore()
	return &Tracker{
		UserID:    userID,
		Store:     store,
		Sessions:  NewController(store, clock, opts...),
		Analytics: NewAnalytics(store),
		clock:     clock,
	}
}

// Now returns the tracker clock's current time
func (t *Tracker) Now() time.Time {
	return t.clock.Now()
}

// Export serializes the tracker state stamped with the current time
func (t *Tracker) Export() models.ExportPayload {
	return t.Store.Export(t.UserID, t.clock.Now())
}

// SnapshotLoader fetches a user's persisted state. A nil payload with a nil error means
// the user has no saved state.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, userID string) (*models.ExportPayload, error)
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithSnapshotLoader restores persisted state the first time a user is accessed
func WithSnapshotLoader(loader SnapshotLoader) RegistryOption {
	return func(r *Registry) {
		r.loader = loader
	}
}

// WithClock sets the clock shared by every tracker the registry creates
func WithClock(clock Clock) RegistryOption {
	return func(r *Registry) {
		r.clock = clock
	}
}

// WithControllerOptions passes options to every controller the registry creates
func WithControllerOptions(opts ...ControllerOption) RegistryOption {
	return func(r *Registry) {
		r.controllerOpts = append(r.controllerOpts, opts...)
	}
}

// Registry holds one Tracker per user, created on first access
type Registry struct {
	mu             sync.Mutex
	trackers       map[string]*Tracker
	loader         SnapshotLoader
	clock          Clock
	controllerOpts []ControllerOption
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		trackers: make(map[string]*Tracker),
		clock:    SystemClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the tracker for userID, creating it and restoring any saved snapshot on first access
func (r *Registry) Get(ctx context.Context, userID string) (*Tracker, error) {
	if userID == "" {
		return nil, newValidationError("user_id", "must not be empty")
	}

	r.mu.Lock()
	if t, ok := r.trackers[userID]; ok {
		r.mu.Unlock()
		return t, nil
	}
	r.mu.Unlock()

	t := NewTracker(userID, r.clock, r.controllerOpts...)
	if r.loader != nil {
		payload, err := r.loader.LoadSnapshot(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot for user %s: %w", userID, err)
		}
		if payload != nil {
			if err := t.Store.Import(*payload); err != nil {
				return nil, fmt.Errorf("failed to restore snapshot for user %s: %w", userID, err)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.trackers[userID]; ok {
		return existing, nil
	}
	r.trackers[userID] = t
	return t, nil
}

// Lookup returns the tracker for userID without creating one
func (r *Registry) Lookup(userID string) (*Tracker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trackers[userID]
	return t, ok
}

// Delete drops the in-memory tracker for userID. It reports whether one existed.
func (r *Registry) Delete(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.trackers[userID]
	delete(r.trackers, userID)
	return ok
}

// UserIDs returns the ids of every loaded user, sorted
func (r *Registry) UserIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.trackers))
	for id := range r.trackers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
