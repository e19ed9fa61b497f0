package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// EstimationPair records an estimate against the duration actually recorded
type EstimationPair struct {
	Estimated int
	Actual    int
}

// MarshalJSON renders the pair as [estimated, actual]
func (p EstimationPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.Estimated, p.Actual})
}

// UnmarshalJSON parses [estimated, actual]
func (p *EstimationPair) UnmarshalJSON(data []byte) error {
	var pair []int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("failed to unmarshal estimation pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("estimation pair must have 2 elements, got %d", len(pair))
	}
	p.Estimated, p.Actual = pair[0], pair[1]
	return nil
}

// MarshalYAML renders the pair as a two-element sequence
func (p EstimationPair) MarshalYAML() (any, error) {
	return []int{p.Estimated, p.Actual}, nil
}

// UnmarshalYAML parses a two-element sequence
func (p *EstimationPair) UnmarshalYAML(node *yaml.Node) error {
	var pair []int
	if err := node.Decode(&pair); err != nil {
		return fmt.Errorf("failed to unmarshal estimation pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("estimation pair must have 2 elements, got %d", len(pair))
	}
	p.Estimated, p.Actual = pair[0], pair[1]
	return nil
}

// DataIntegrity holds counts derived from a single scan of the entry log
type DataIntegrity struct {
	TotalEntries           int            `json:"total_entries" yaml:"total_entries"`
	CompleteEntries        int            `json:"complete_entries" yaml:"complete_entries"`
	ActiveSessions         int            `json:"active_sessions" yaml:"active_sessions"`
	StatusCounts           map[string]int `json:"status_counts" yaml:"status_counts"`
	ConfidenceDistribution map[string]int `json:"confidence_distribution" yaml:"confidence_distribution"`
}

// ExportPayload is the portable form of a user's tracker state
type ExportPayload struct {
	UserID            string           `json:"user_id" yaml:"user_id"`
	ExportDate        time.Time        `json:"export_date" yaml:"export_date"`
	Entries           []*TimeEntry     `json:"entries" yaml:"entries"`
	ActiveSessions    []*TimeEntry     `json:"active_sessions" yaml:"active_sessions"`
	UserTags          []string         `json:"user_tags" yaml:"user_tags"`
	EstimationHistory []EstimationPair `json:"estimation_history" yaml:"estimation_history"`
	DataIntegrity     DataIntegrity    `json:"data_integrity" yaml:"data_integrity"`
}
