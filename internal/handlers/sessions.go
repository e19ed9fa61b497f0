package handlers

import (
	"net/http"
	"time"

	logpkg "github.com/benvon/flowstate/internal/logger"
	"github.com/benvon/flowstate/internal/models"
	"github.com/benvon/flowstate/internal/tracker"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// SessionHandler exposes the session lifecycle for one user's tracker
type SessionHandler struct {
	registry *tracker.Registry
	sync     *StateSync
	logger   *zap.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(registry *tracker.Registry, sync *StateSync, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{registry: registry, sync: sync, logger: logger}
}

// RegisterRoutes registers session routes. The router should carry the /sessions prefix
// under a user-scoped subrouter.
func (h *SessionHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/start", h.StartSession).Methods(http.MethodPost)
	r.HandleFunc("/manual", h.AddManualEntry).Methods(http.MethodPost)
	r.HandleFunc("/active", h.ListActiveSessions).Methods(http.MethodGet)
	r.HandleFunc("/{id}", h.GetSession).Methods(http.MethodGet)
	r.HandleFunc("/{id}", h.CancelSession).Methods(http.MethodDelete)
	r.HandleFunc("/{id}/end", h.EndSession).Methods(http.MethodPost)
	r.HandleFunc("/{id}/pause", h.PauseSession).Methods(http.MethodPost)
	r.HandleFunc("/{id}/resume", h.ResumeSession).Methods(http.MethodPost)
}

// StartSessionRequest represents a start session request
type StartSessionRequest struct {
	MainTag          string  `json:"main_tag" yaml:"main_tag" validate:"required,main_tag"`
	SubTag           *string `json:"sub_tag,omitempty" yaml:"sub_tag,omitempty" validate:"omitempty,max=64"`
	TaskDescription  string  `json:"task_description" yaml:"task_description"`
	EstimatedMinutes *int    `json:"estimated_minutes,omitempty" yaml:"estimated_minutes,omitempty"`
}

// EndSessionRequest represents an end session request. Omitted metrics use the defaults.
type EndSessionRequest struct {
	UserNotes     string `json:"user_notes" yaml:"user_notes"`
	EnergyLevel   *int   `json:"energy_level,omitempty" yaml:"energy_level,omitempty"`
	FocusQuality  *int   `json:"focus_quality,omitempty" yaml:"focus_quality,omitempty"`
	Interruptions *int   `json:"interruptions,omitempty" yaml:"interruptions,omitempty"`
}

// ManualEntryRequest represents a backfilled entry
type ManualEntryRequest struct {
	MainTag          string     `json:"main_tag" yaml:"main_tag" validate:"required,main_tag"`
	SubTag           *string    `json:"sub_tag,omitempty" yaml:"sub_tag,omitempty" validate:"omitempty,max=64"`
	TaskDescription  string     `json:"task_description" yaml:"task_description"`
	StartTime        time.Time  `json:"start_time" yaml:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	DurationMinutes  *int       `json:"duration_minutes,omitempty" yaml:"duration_minutes,omitempty"`
	Confidence       *string    `json:"confidence,omitempty" yaml:"confidence,omitempty" validate:"omitempty,confidence_level"`
	UserNotes        string     `json:"user_notes" yaml:"user_notes"`
	EnergyLevel      *int       `json:"energy_level,omitempty" yaml:"energy_level,omitempty"`
	FocusQuality     *int       `json:"focus_quality,omitempty" yaml:"focus_quality,omitempty"`
	Interruptions    *int       `json:"interruptions,omitempty" yaml:"interruptions,omitempty"`
	EstimatedMinutes *int       `json:"estimated_minutes,omitempty" yaml:"estimated_minutes,omitempty"`
}

// SessionResponse is a TimeEntry with its derived durations
type SessionResponse struct {
	*models.TimeEntry
	TagLabel               string `json:"tag_label"`
	DurationMinutes        *int   `json:"duration_minutes,omitempty"`
	CurrentDurationMinutes int    `json:"current_duration_minutes"`
	ActiveDurationMinutes  int    `json:"active_duration_minutes"`
}

func newSessionResponse(entry *models.TimeEntry, now time.Time) SessionResponse {
	resp := SessionResponse{
		TimeEntry:              entry,
		TagLabel:               entry.Tag.String(),
		CurrentDurationMinutes: entry.CurrentDurationMinutes(now),
		ActiveDurationMinutes:  entry.ActiveDurationMinutes(now),
	}
	if d, ok := entry.DurationMinutes(); ok {
		resp.DurationMinutes = &d
	}
	return resp
}

// userTracker resolves the tracker for the scoped user, writing the error response on failure
func (h *SessionHandler) userTracker(w http.ResponseWriter, r *http.Request) (*tracker.Tracker, bool) {
	return resolveTracker(w, r, h.registry, h.logger)
}

// StartSession opens a new session
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	t, ok := h.userTracker(w, r)
	if !ok {
		return
	}

	var req StartSessionRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}

	entry, err := t.Sessions.Start(tracker.StartParams{
		MainTag:          req.MainTag,
		SubTag:           req.SubTag,
		TaskDescription:  req.TaskDescription,
		EstimatedMinutes: req.EstimatedMinutes,
	})
	if err != nil {
		respondTrackerError(w, h.logger, r, err, "start_session")
		return
	}

	h.sync.Persist(r.Context(), t)
	h.logger.Info("session_started",
		zap.String("user_id", logpkg.SanitizeUserID(t.UserID)),
		zap.String("session_id", entry.SessionID),
		zap.String("tag", logpkg.SanitizeTag(entry.Tag.String())),
	)
	respondJSON(w, http.StatusCreated, newSessionResponse(entry, t.Now()))
}

// EndSession completes an open session
func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	t, ok := h.userTracker(w, r)
	if !ok {
		return
	}

	var req EndSessionRequest
	if !decodeRequest(w, r, &req, true) {
		return
	}

	entry, err := t.Sessions.End(mux.Vars(r)["id"], tracker.EndParams{
		UserNotes:     req.UserNotes,
		EnergyLevel:   req.EnergyLevel,
		FocusQuality:  req.FocusQuality,
		Interruptions: req.Interruptions,
	})
	if err != nil {
		respondTrackerError(w, h.logger, r, err, "end_session")
		return
	}

	h.sync.Persist(r.Context(), t)
	h.logger.Info("session_ended",
		zap.String("user_id", logpkg.SanitizeUserID(t.UserID)),
		zap.String("session_id", entry.SessionID),
	)
	respondJSON(w, http.StatusOK, newSessionResponse(entry, t.Now()))
}

// PauseSession pauses an active session
func (h *SessionHandler) PauseSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "pause_session", func(t *tracker.Tracker, id string) (*models.TimeEntry, error) {
		return t.Sessions.Pause(id)
	})
}

// ResumeSession resumes a paused session
func (h *SessionHandler) ResumeSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "resume_session", func(t *tracker.Tracker, id string) (*models.TimeEntry, error) {
		return t.Sessions.Resume(id)
	})
}

// CancelSession cancels an open session
func (h *SessionHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel_session", func(t *tracker.Tracker, id string) (*models.TimeEntry, error) {
		return t.Sessions.Cancel(id)
	})
}

// transition runs a bodyless state change on the session named by {id}
func (h *SessionHandler) transition(w http.ResponseWriter, r *http.Request, action string, apply func(*tracker.Tracker, string) (*models.TimeEntry, error)) {
	t, ok := h.userTracker(w, r)
	if !ok {
		return
	}

	entry, err := apply(t, mux.Vars(r)["id"])
	if err != nil {
		respondTrackerError(w, h.logger, r, err, action)
		return
	}

	h.sync.Persist(r.Context(), t)
	h.logger.Debug(action,
		zap.String("user_id", logpkg.SanitizeUserID(t.UserID)),
		zap.String("session_id", entry.SessionID),
		zap.String("status", entry.Status.String()),
	)
	respondJSON(w, http.StatusOK, newSessionResponse(entry, t.Now()))
}

// AddManualEntry backfills a completed entry
func (h *SessionHandler) AddManualEntry(w http.ResponseWriter, r *http.Request) {
	t, ok := h.userTracker(w, r)
	if !ok {
		return
	}

	var req ManualEntryRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}

	params := tracker.ManualEntryParams{
		MainTag:          req.MainTag,
		SubTag:           req.SubTag,
		TaskDescription:  req.TaskDescription,
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
		DurationMinutes:  req.DurationMinutes,
		UserNotes:        req.UserNotes,
		EnergyLevel:      req.EnergyLevel,
		FocusQuality:     req.FocusQuality,
		Interruptions:    req.Interruptions,
		EstimatedMinutes: req.EstimatedMinutes,
	}
	if req.Confidence != nil {
		// Already checked by the confidence_level validator
		level, _ := models.ParseConfidenceLevel(*req.Confidence)
		params.Confidence = &level
	}

	entry, err := t.Sessions.AddManualEntry(params)
	if err != nil {
		respondTrackerError(w, h.logger, r, err, "add_manual_entry")
		return
	}

	h.sync.Persist(r.Context(), t)
	h.logger.Info("manual_entry_added",
		zap.String("user_id", logpkg.SanitizeUserID(t.UserID)),
		zap.String("session_id", entry.SessionID),
	)
	respondJSON(w, http.StatusCreated, newSessionResponse(entry, t.Now()))
}

// ListActiveSessions returns every open session in start order
func (h *SessionHandler) ListActiveSessions(w http.ResponseWriter, r *http.Request) {
	t, ok := h.userTracker(w, r)
	if !ok {
		return
	}

	now := t.Now()
	active := t.Store.ActiveEntries()
	sessions := make([]SessionResponse, 0, len(active))
	for _, entry := range active {
		sessions = append(sessions, newSessionResponse(entry, now))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetSession returns one entry from the full log
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	t, ok := h.userTracker(w, r)
	if !ok {
		return
	}

	entry, err := t.Store.Entry(mux.Vars(r)["id"])
	if err != nil {
		respondTrackerError(w, h.logger, r, err, "get_session")
		return
	}
	respondJSON(w, http.StatusOK, newSessionResponse(entry, t.Now()))
}

func resolveTracker(w http.ResponseWriter, r *http.Request, registry *tracker.Registry, logger *zap.Logger) (*tracker.Tracker, bool) {
	userID, ok := scopedUserID(w, r)
	if !ok {
		return nil, false
	}
	t, err := registry.Get(r.Context(), userID)
	if err != nil {
		respondTrackerError(w, logger, r, err, "load_tracker")
		return nil, false
	}
	return t, true
}
