package models

import "time"

// Snapshot is the persisted copy of a user's tracker state
type Snapshot struct {
	UserID    string        `json:"user_id"`
	Payload   ExportPayload `json:"payload"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
