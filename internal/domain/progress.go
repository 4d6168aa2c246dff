package domain

import (
	"encoding/json"
	"time"
)

// UserProgress is an append-only record of a learning activity within a
// session, keyed by user and skill area.
type UserProgress struct {
	ProgressID      int64           `json:"progress_id"`
	UserID          string          `json:"user_id"`
	SessionID       string          `json:"session_id"`
	SkillArea       string          `json:"skill_area"`
	ActivityType    string          `json:"activity_type"`
	ActivityDetails json.RawMessage `json:"activity_details,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}
