package models

import "time"

type EventType string

const (
	EventRoundStarted        EventType = "round_started"
	EventRoundCompleted      EventType = "round_completed"
	EventLevelCompleted      EventType = "level_completed"
	EventTournamentCompleted EventType = "tournament_completed"
	EventError               EventType = "error"
	EventMatchCreated        EventType = "match_created"
)

type ProgressionEvent struct {
	ID           string                 `json:"id"`
	Type         EventType              `json:"type"`
	TournamentID int                    `json:"tournament_id"`
	Level        Level                  `json:"level"`
	Round        string                 `json:"round"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}
