package models

import (
	"time"
)

// TagStatistics is the worker-computed tag analytics rollup for a user
type TagStatistics struct {
	UserID          string       `json:"user_id"`
	Analytics       TagAnalytics `json:"analytics"`
	Tainted         bool         `json:"tainted"`
	LastAnalyzedAt  *time.Time   `json:"last_analyzed_at,omitempty"`
	AnalysisVersion int          `json:"analysis_version"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}
