package models

import (
	"fmt"
	"strings"
	"time"
)

// SessionStatus represents the lifecycle state of a time entry
type SessionStatus int

const (
	SessionStatusActive SessionStatus = iota + 1
	SessionStatusPaused
	SessionStatusCompleted
	SessionStatusCancelled
)

// SessionStatuses lists every status in rendering order
var SessionStatuses = []SessionStatus{
	SessionStatusActive,
	SessionStatusPaused,
	SessionStatusCompleted,
	SessionStatusCancelled,
}

// String returns the wire form of the status
func (s SessionStatus) String() string {
	switch s {
	case SessionStatusActive:
		return "active"
	case SessionStatusPaused:
		return "paused"
	case SessionStatusCompleted:
		return "completed"
	case SessionStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsOpen reports whether the status is non-terminal (active or paused)
func (s SessionStatus) IsOpen() bool {
	return s == SessionStatusActive || s == SessionStatusPaused
}

// ParseSessionStatus parses the wire form of a status
func ParseSessionStatus(value string) (SessionStatus, error) {
	for _, s := range SessionStatuses {
		if s.String() == value {
			return s, nil
		}
	}
	return 0, fmt.Errorf("invalid session status: %q", value)
}

// MarshalText implements encoding.TextMarshaler
func (s SessionStatus) MarshalText() ([]byte, error) {
	if s < SessionStatusActive || s > SessionStatusCancelled {
		return nil, fmt.Errorf("invalid session status: %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *SessionStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseSessionStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ConfidenceLevel describes how much trust to place in a recorded duration
type ConfidenceLevel int

const (
	ConfidenceHigh ConfidenceLevel = iota + 1
	ConfidenceModerate
	ConfidenceLow
	ConfidenceUncertain
)

// ConfidenceLevels lists every confidence level in rendering order
var ConfidenceLevels = []ConfidenceLevel{
	ConfidenceHigh,
	ConfidenceModerate,
	ConfidenceLow,
	ConfidenceUncertain,
}

// String returns the wire form of the confidence level
func (c ConfidenceLevel) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceModerate:
		return "moderate"
	case ConfidenceLow:
		return "low"
	case ConfidenceUncertain:
		return "uncertain"
	default:
		return "unknown"
	}
}

// ParseConfidenceLevel parses the wire form of a confidence level
func ParseConfidenceLevel(value string) (ConfidenceLevel, error) {
	for _, c := range ConfidenceLevels {
		if c.String() == value {
			return c, nil
		}
	}
	return 0, fmt.Errorf("invalid confidence level: %q", value)
}

// MarshalText implements encoding.TextMarshaler
func (c ConfidenceLevel) MarshalText() ([]byte, error) {
	if c < ConfidenceHigh || c > ConfidenceUncertain {
		return nil, fmt.Errorf("invalid confidence level: %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *ConfidenceLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseConfidenceLevel(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// SessionTag is a two-level label: a lowercase main tag and an optional free-text sub tag.
// Construct it with NewSessionTag; the zero value is not a valid tag.
type SessionTag struct {
	MainTag string  `json:"main_tag" yaml:"main_tag"`
	SubTag  *string `json:"sub_tag" yaml:"sub_tag"`
}

// NewSessionTag normalizes the main tag and drops a blank sub tag.
// The second return value is false when the main tag is empty after normalization.
func NewSessionTag(mainTag string, subTag *string) (SessionTag, bool) {
	normalized := NormalizeMainTag(mainTag)
	if normalized == "" {
		return SessionTag{}, false
	}
	tag := SessionTag{MainTag: normalized}
	if subTag != nil {
		if trimmed := strings.TrimSpace(*subTag); trimmed != "" {
			tag.SubTag = &trimmed
		}
	}
	return tag, true
}

// NormalizeMainTag lowercases and trims a main tag
func NormalizeMainTag(mainTag string) string {
	return strings.ToLower(strings.TrimSpace(mainTag))
}

// HasSubTag reports whether a sub tag is present
func (t SessionTag) HasSubTag() bool {
	return t.SubTag != nil && *t.SubTag != ""
}

// SubTagValue returns the sub tag or an empty string
func (t SessionTag) SubTagValue() string {
	if t.SubTag == nil {
		return ""
	}
	return *t.SubTag
}

// String renders the tag as #main or #main/sub
func (t SessionTag) String() string {
	if t.HasSubTag() {
		return "#" + t.MainTag + "/" + *t.SubTag
	}
	return "#" + t.MainTag
}

// Equal compares two tags by value
func (t SessionTag) Equal(other SessionTag) bool {
	return t.MainTag == other.MainTag && t.SubTagValue() == other.SubTagValue() && t.HasSubTag() == other.HasSubTag()
}

const (
	// MinMetric is the lowest self-reported energy/focus score
	MinMetric = 1
	// MaxMetric is the highest self-reported energy/focus score
	MaxMetric = 5
	// DefaultMetric is the energy/focus score used when none is reported
	DefaultMetric = 3
)

// TimeEntry is a single tracked unit of work
type TimeEntry struct {
	SessionID        string          `json:"session_id" yaml:"session_id"`
	StartTime        time.Time       `json:"start_time" yaml:"start_time"`
	EndTime          *time.Time      `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	Tag              SessionTag      `json:"tag" yaml:"tag"`
	TaskDescription  string          `json:"task_description" yaml:"task_description"`
	Status           SessionStatus   `json:"status" yaml:"status"`
	Confidence       ConfidenceLevel `json:"confidence" yaml:"confidence"`
	UserNotes        string          `json:"user_notes" yaml:"user_notes"`
	Interruptions    int             `json:"interruptions" yaml:"interruptions"`
	EnergyLevel      int             `json:"energy_level" yaml:"energy_level"`
	FocusQuality     int             `json:"focus_quality" yaml:"focus_quality"`
	EstimatedMinutes *int            `json:"estimated_minutes" yaml:"estimated_minutes"`
	// PausedAt is set while the entry is paused
	PausedAt *time.Time `json:"paused_at,omitempty" yaml:"paused_at,omitempty"`
	// PausedSeconds accumulates closed pause intervals
	PausedSeconds int64 `json:"paused_seconds" yaml:"paused_seconds"`
}

// DurationMinutes returns whole minutes between start and end. ok is false while EndTime is unset.
func (e *TimeEntry) DurationMinutes() (minutes int, ok bool) {
	if e.EndTime == nil {
		return 0, false
	}
	return wholeMinutes(e.EndTime.Sub(e.StartTime)), true
}

// CurrentDurationMinutes returns wall-clock minutes since start. Pausing does not stop this clock.
func (e *TimeEntry) CurrentDurationMinutes(now time.Time) int {
	end := now
	if e.EndTime != nil {
		end = *e.EndTime
	}
	return wholeMinutes(end.Sub(e.StartTime))
}

// ActiveDurationMinutes returns minutes since start excluding time spent paused
func (e *TimeEntry) ActiveDurationMinutes(now time.Time) int {
	end := now
	if e.EndTime != nil {
		end = *e.EndTime
	}
	paused := time.Duration(e.PausedSeconds) * time.Second
	if e.PausedAt != nil && end.After(*e.PausedAt) {
		paused += end.Sub(*e.PausedAt)
	}
	return wholeMinutes(end.Sub(e.StartTime) - paused)
}

// IsComplete reports whether the entry finished normally
func (e *TimeEntry) IsComplete() bool {
	return e.Status == SessionStatusCompleted && e.EndTime != nil
}

// Clone returns a deep copy of the entry
func (e *TimeEntry) Clone() *TimeEntry {
	c := *e
	if e.EndTime != nil {
		end := *e.EndTime
		c.EndTime = &end
	}
	if e.Tag.SubTag != nil {
		sub := *e.Tag.SubTag
		c.Tag.SubTag = &sub
	}
	if e.EstimatedMinutes != nil {
		est := *e.EstimatedMinutes
		c.EstimatedMinutes = &est
	}
	if e.PausedAt != nil {
		p := *e.PausedAt
		c.PausedAt = &p
	}
	return &c
}

func wholeMinutes(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}
