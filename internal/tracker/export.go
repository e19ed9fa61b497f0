package tracker

import (
	"fmt"
	"time"

	"github.com/benvon/flowstate/internal/models"
)

// Export serializes the full store contents for userID
func (s *Store) Export(userID string, now time.Time) models.ExportPayload {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload := models.ExportPayload{
		UserID:            userID,
		ExportDate:        now,
		Entries:           cloneEntries(s.entries),
		ActiveSessions:    make([]*models.TimeEntry, 0, len(s.active)),
		UserTags:          s.sortedTags(),
		EstimationHistory: append([]models.EstimationPair{}, s.estimationHistory...),
		DataIntegrity: models.DataIntegrity{
			TotalEntries:           len(s.entries),
			ActiveSessions:         len(s.active),
			StatusCounts:           make(map[string]int, len(models.SessionStatuses)),
			ConfidenceDistribution: make(map[string]int, len(models.ConfidenceLevels)),
		},
	}
	for _, status := range models.SessionStatuses {
		payload.DataIntegrity.StatusCounts[status.String()] = 0
	}
	for _, level := range models.ConfidenceLevels {
		payload.DataIntegrity.ConfidenceDistribution[level.String()] = 0
	}

	for _, entry := range s.entries {
		payload.DataIntegrity.StatusCounts[entry.Status.String()]++
		payload.DataIntegrity.ConfidenceDistribution[entry.Confidence.String()]++
		if entry.IsComplete() {
			payload.DataIntegrity.CompleteEntries++
		}
		if _, ok := s.active[entry.SessionID]; ok {
			payload.ActiveSessions = append(payload.ActiveSessions, entry.Clone())
		}
	}
	return payload
}

// Import replaces the store contents with payload. The payload is fully validated before
// anything is replaced; on error the store is left untouched.
// Open sessions are rebuilt from the entry statuses; the payload's active_sessions list
// must agree with them.
func (s *Store) Import(payload models.ExportPayload) error {
	entries := make([]*models.TimeEntry, 0, len(payload.Entries))
	byID := make(map[string]*models.TimeEntry, len(payload.Entries))
	active := make(map[string]*models.TimeEntry)
	knownTags := make(map[string]struct{}, len(payload.UserTags))

	for i, raw := range payload.Entries {
		if raw == nil {
			return newValidationError("entries", "entry %d is null", i)
		}
		entry, err := normalizeImportedEntry(raw)
		if err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		if _, dup := byID[entry.SessionID]; dup {
			return newValidationError("session_id", "duplicate session id %q", entry.SessionID)
		}
		entries = append(entries, entry)
		byID[entry.SessionID] = entry
		if entry.Status.IsOpen() {
			active[entry.SessionID] = entry
		}
		knownTags[entry.Tag.MainTag] = struct{}{}
	}

	for _, session := range payload.ActiveSessions {
		if session == nil {
			continue
		}
		if _, ok := active[session.SessionID]; !ok {
			return newValidationError("active_sessions", "session %q is not an open entry", session.SessionID)
		}
	}

	for _, tag := range payload.UserTags {
		if normalized := models.NormalizeMainTag(tag); normalized != "" {
			knownTags[normalized] = struct{}{}
		}
	}

	history := make([]models.EstimationPair, 0, len(payload.EstimationHistory))
	for i, pair := range payload.EstimationHistory {
		if pair.Estimated <= 0 || pair.Actual <= 0 {
			return newValidationError("estimation_history", "pair %d must hold positive minutes, got [%d, %d]", i, pair.Estimated, pair.Actual)
		}
		history = append(history, pair)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
	s.byID = byID
	s.active = active
	s.knownTags = knownTags
	s.estimationHistory = history
	return nil
}

func normalizeImportedEntry(raw *models.TimeEntry) (*models.TimeEntry, error) {
	entry := raw.Clone()
	if entry.SessionID == "" {
		return nil, newValidationError("session_id", "must not be empty")
	}
	tag, ok := models.NewSessionTag(entry.Tag.MainTag, entry.Tag.SubTag)
	if !ok {
		return nil, newValidationError("main_tag", "must not be empty")
	}
	entry.Tag = tag

	switch entry.Status {
	case models.SessionStatusActive, models.SessionStatusPaused:
		if entry.EndTime != nil {
			return nil, newValidationError("end_time", "open session %q must not have an end time", entry.SessionID)
		}
	case models.SessionStatusCompleted, models.SessionStatusCancelled:
		if entry.EndTime == nil {
			return nil, newValidationError("end_time", "%s session %q must have an end time", entry.Status, entry.SessionID)
		}
	default:
		return nil, newValidationError("status", "unknown status for session %q", entry.SessionID)
	}
	if entry.EndTime != nil && entry.EndTime.Before(entry.StartTime) {
		return nil, &InvalidTimeRangeError{Start: entry.StartTime, End: *entry.EndTime}
	}
	if entry.Status != models.SessionStatusPaused {
		entry.PausedAt = nil
	}
	if entry.PausedSeconds < 0 {
		return nil, newValidationError("paused_seconds", "must not be negative")
	}

	if entry.Confidence < models.ConfidenceHigh || entry.Confidence > models.ConfidenceUncertain {
		return nil, newValidationError("confidence", "unknown confidence for session %q", entry.SessionID)
	}
	if _, err := resolveMetrics(&entry.EnergyLevel, &entry.FocusQuality, &entry.Interruptions); err != nil {
		return nil, err
	}
	if err := validateEstimate(entry.EstimatedMinutes); err != nil {
		return nil, err
	}
	return entry, nil
}
