package tracker

import (
	"math"
	"time"

	"github.com/benvon/flowstate/internal/models"
	"github.com/google/uuid"
)

// Controller owns every state transition of the entries in a Store:
//
//	start -> active -> end -> completed
//	active <-> paused (pause/resume)
//	active|paused -> cancel -> cancelled
//
// Any number of sessions may be open at once; starting one never touches the others.
// Each method runs under the store's write lock and validates before mutating.
//
// Pause is status-only with respect to DurationMinutes and CurrentDurationMinutes,
// which measure wall-clock time. Pause intervals are recorded on the entry so that
// ActiveDurationMinutes can report time excluding pauses.
type Controller struct {
	store *Store
	clock Clock
	newID func() string
}

// ControllerOption configures a Controller
type ControllerOption func(*Controller)

// WithIDGenerator replaces the UUID session id generator
func WithIDGenerator(gen func() string) ControllerOption {
	return func(c *Controller) {
		c.newID = gen
	}
}

// NewController creates a lifecycle controller over store
func NewController(store *Store, clock Clock, opts ...ControllerOption) *Controller {
	if clock == nil {
		clock = SystemClock{}
	}
	c := &Controller{
		store: store,
		clock: clock,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartParams describes a new session
type StartParams struct {
	MainTag          string
	SubTag           *string
	TaskDescription  string
	EstimatedMinutes *int
}

// EndParams carries the self-reported metrics recorded when a session ends.
// Nil metrics fall back to energy 3, focus 3 and zero interruptions.
type EndParams struct {
	UserNotes     string
	EnergyLevel   *int
	FocusQuality  *int
	Interruptions *int
}

// ManualEntryParams describes a backfilled, already-finished entry.
// Exactly one of EndTime and DurationMinutes must be set.
type ManualEntryParams struct {
	MainTag          string
	SubTag           *string
	TaskDescription  string
	StartTime        time.Time
	EndTime          *time.Time
	DurationMinutes  *int
	Confidence       *models.ConfidenceLevel
	UserNotes        string
	EnergyLevel      *int
	FocusQuality     *int
	Interruptions    *int
	EstimatedMinutes *int
}

// Start opens a new active session
func (c *Controller) Start(p StartParams) (*models.TimeEntry, error) {
	tag, ok := models.NewSessionTag(p.MainTag, p.SubTag)
	if !ok {
		return nil, newValidationError("main_tag", "must not be empty")
	}
	if err := validateEstimate(p.EstimatedMinutes); err != nil {
		return nil, err
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	id, err := c.uniqueID()
	if err != nil {
		return nil, err
	}
	entry := &models.TimeEntry{
		SessionID:        id,
		StartTime:        c.clock.Now(),
		Tag:              tag,
		TaskDescription:  p.TaskDescription,
		Status:           models.SessionStatusActive,
		Confidence:       models.ConfidenceModerate,
		EnergyLevel:      models.DefaultMetric,
		FocusQuality:     models.DefaultMetric,
		EstimatedMinutes: copyInt(p.EstimatedMinutes),
	}
	c.store.append(entry)
	return entry.Clone(), nil
}

// End completes an open session and records its metrics.
// Returns ErrSessionNotFound if the session is unknown or already terminal.
func (c *Controller) End(sessionID string, p EndParams) (*models.TimeEntry, error) {
	metrics, err := resolveMetrics(p.EnergyLevel, p.FocusQuality, p.Interruptions)
	if err != nil {
		return nil, err
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	entry, ok := c.store.active[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	now := c.clock.Now()
	if now.Before(entry.StartTime) {
		return nil, &InvalidTimeRangeError{Start: entry.StartTime, End: now}
	}

	closePause(entry, now)
	entry.EndTime = &now
	entry.Status = models.SessionStatusCompleted
	entry.UserNotes = p.UserNotes
	entry.EnergyLevel = metrics.energy
	entry.FocusQuality = metrics.focus
	entry.Interruptions = metrics.interruptions
	c.recordEstimate(entry)
	delete(c.store.active, sessionID)
	return entry.Clone(), nil
}

// Pause marks an open session as paused. Pausing a paused session is a no-op.
func (c *Controller) Pause(sessionID string) (*models.TimeEntry, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	entry, ok := c.store.active[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if entry.Status == models.SessionStatusActive {
		now := c.clock.Now()
		entry.Status = models.SessionStatusPaused
		entry.PausedAt = &now
	}
	return entry.Clone(), nil
}

// Resume reactivates a paused session. Resuming an active session is a no-op.
func (c *Controller) Resume(sessionID string) (*models.TimeEntry, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	entry, ok := c.store.active[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if entry.Status == models.SessionStatusPaused {
		closePause(entry, c.clock.Now())
		entry.Status = models.SessionStatusActive
	}
	return entry.Clone(), nil
}

// Cancel terminates an open session without completing it.
// Cancelled entries stay in the log but never count toward analytics or estimation history.
func (c *Controller) Cancel(sessionID string) (*models.TimeEntry, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	entry, ok := c.store.active[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	now := c.clock.Now()
	if now.Before(entry.StartTime) {
		now = entry.StartTime
	}
	closePause(entry, now)
	entry.EndTime = &now
	entry.Status = models.SessionStatusCancelled
	delete(c.store.active, sessionID)
	return entry.Clone(), nil
}

// AddManualEntry backfills a completed entry. Confidence defaults to low.
func (c *Controller) AddManualEntry(p ManualEntryParams) (*models.TimeEntry, error) {
	tag, ok := models.NewSessionTag(p.MainTag, p.SubTag)
	if !ok {
		return nil, newValidationError("main_tag", "must not be empty")
	}
	if p.StartTime.IsZero() {
		return nil, newValidationError("start_time", "is required")
	}
	if err := validateEstimate(p.EstimatedMinutes); err != nil {
		return nil, err
	}
	metrics, err := resolveMetrics(p.EnergyLevel, p.FocusQuality, p.Interruptions)
	if err != nil {
		return nil, err
	}

	var end time.Time
	switch {
	case p.EndTime != nil && p.DurationMinutes != nil:
		return nil, newValidationError("end_time", "set either end_time or duration_minutes, not both")
	case p.EndTime != nil:
		end = *p.EndTime
	case p.DurationMinutes != nil:
		if *p.DurationMinutes < 0 || *p.DurationMinutes > maxDurationMinutes {
			return nil, newValidationError("duration_minutes", "must be between 0 and %d, got %d", maxDurationMinutes, *p.DurationMinutes)
		}
		end = p.StartTime.Add(time.Duration(*p.DurationMinutes) * time.Minute)
	default:
		return nil, newValidationError("end_time", "end_time or duration_minutes is required")
	}
	if end.Before(p.StartTime) {
		return nil, &InvalidTimeRangeError{Start: p.StartTime, End: end}
	}

	confidence := models.ConfidenceLow
	if p.Confidence != nil {
		confidence = *p.Confidence
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	if end.After(c.clock.Now()) {
		return nil, newValidationError("end_time", "must not be in the future")
	}
	id, err := c.uniqueID()
	if err != nil {
		return nil, err
	}
	entry := &models.TimeEntry{
		SessionID:        id,
		StartTime:        p.StartTime,
		EndTime:          &end,
		Tag:              tag,
		TaskDescription:  p.TaskDescription,
		Status:           models.SessionStatusCompleted,
		Confidence:       confidence,
		UserNotes:        p.UserNotes,
		Interruptions:    metrics.interruptions,
		EnergyLevel:      metrics.energy,
		FocusQuality:     metrics.focus,
		EstimatedMinutes: copyInt(p.EstimatedMinutes),
	}
	c.store.append(entry)
	c.recordEstimate(entry)
	return entry.Clone(), nil
}

// Clear removes all entries, open sessions, tags and estimation history
func (c *Controller) Clear() {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.reset()
}

// recordEstimate appends (estimated, actual) for completed entries that carried an estimate.
// Zero-minute sessions are skipped since their error percentage is undefined.
func (c *Controller) recordEstimate(entry *models.TimeEntry) {
	if entry.EstimatedMinutes == nil {
		return
	}
	actual, ok := entry.DurationMinutes()
	if !ok || actual <= 0 {
		return
	}
	c.store.estimationHistory = append(c.store.estimationHistory, models.EstimationPair{
		Estimated: *entry.EstimatedMinutes,
		Actual:    actual,
	})
}

func (c *Controller) uniqueID() (string, error) {
	for range 3 {
		id := c.newID()
		if id == "" {
			continue
		}
		if _, exists := c.store.byID[id]; !exists {
			return id, nil
		}
	}
	return "", newValidationError("session_id", "could not generate a unique id")
}

func closePause(entry *models.TimeEntry, now time.Time) {
	if entry.PausedAt == nil {
		return
	}
	if now.After(*entry.PausedAt) {
		entry.PausedSeconds += int64(now.Sub(*entry.PausedAt) / time.Second)
	}
	entry.PausedAt = nil
}

type endMetrics struct {
	energy        int
	focus         int
	interruptions int
}

func resolveMetrics(energy, focus, interruptions *int) (endMetrics, error) {
	m := endMetrics{energy: models.DefaultMetric, focus: models.DefaultMetric}
	if energy != nil {
		if *energy < models.MinMetric || *energy > models.MaxMetric {
			return m, newValidationError("energy_level", "must be between %d and %d, got %d", models.MinMetric, models.MaxMetric, *energy)
		}
		m.energy = *energy
	}
	if focus != nil {
		if *focus < models.MinMetric || *focus > models.MaxMetric {
			return m, newValidationError("focus_quality", "must be between %d and %d, got %d", models.MinMetric, models.MaxMetric, *focus)
		}
		m.focus = *focus
	}
	if interruptions != nil {
		if *interruptions < 0 {
			return m, newValidationError("interruptions", "must not be negative, got %d", *interruptions)
		}
		m.interruptions = *interruptions
	}
	return m, nil
}

// maxDurationMinutes is the largest minute count a time.Duration can hold
const maxDurationMinutes = int(math.MaxInt64 / int64(time.Minute))

func validateEstimate(estimate *int) error {
	if estimate != nil && *estimate <= 0 {
		return newValidationError("estimated_minutes", "must be positive, got %d", *estimate)
	}
	return nil
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
