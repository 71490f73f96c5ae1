package models

import "time"

type MatchStatus string

const (
	MatchStatusPending    MatchStatus = "pending"
	MatchStatusScheduled  MatchStatus = "scheduled"
	MatchStatusInProgress MatchStatus = "in_progress"
	MatchStatusCompleted  MatchStatus = "completed"
	MatchStatusCancelled  MatchStatus = "cancelled"
	MatchStatusDisputed   MatchStatus = "disputed"
)

// IsTerminal reports whether no further result is expected for the match.
// Disputed matches are not terminal until resolved.
func (s MatchStatus) IsTerminal() bool {
	return s == MatchStatusCompleted || s == MatchStatusCancelled
}

func (s MatchStatus) IsValid() bool {
	switch s {
	case MatchStatusPending, MatchStatusScheduled, MatchStatusInProgress,
		MatchStatusCompleted, MatchStatusCancelled, MatchStatusDisputed:
		return true
	}
	return false
}

type MatchType string

const (
	MatchTypeSingles MatchType = "singles"
	MatchTypeDoubles MatchType = "doubles"
)

type MatchSource string

const (
	MatchSourceEngine   MatchSource = "engine"
	MatchSourceFallback MatchSource = "fallback"
)

// MatchCreationData описывает матч до сохранения.
type MatchCreationData struct {
	TournamentID         int         `json:"tournament_id"`
	Level                Level       `json:"level"`
	Round                string      `json:"round"`
	MatchNumber          int         `json:"match_number"`
	MatchType            MatchType   `json:"match_type"`
	Player1ID            int         `json:"player1_id"`
	Player2ID            *int        `json:"player2_id,omitempty"`
	DeterminesPositions  []int       `json:"determines_positions,omitempty"`
	IsLevelFinal         bool        `json:"is_level_final"`
	DeterminesTop3       bool        `json:"determines_top3"`
	IsByeMatch           bool        `json:"is_bye_match"`
	CommunityID          *int        `json:"community_id,omitempty"`
	CountyID             *int        `json:"county_id,omitempty"`
	RegionID             *int        `json:"region_id,omitempty"`
	Venue                *string     `json:"venue,omitempty"`
	TableNumber          *int        `json:"table_number,omitempty"`
	RequiresManualReview bool        `json:"requires_manual_review"`
	Source               MatchSource `json:"source"`
	Confidence           *float64    `json:"confidence,omitempty"`
}

type Match struct {
	ID int `json:"id" db:"id"`
	MatchCreationData
	Status    MatchStatus `json:"status" db:"status"`
	WinnerID  *int        `json:"winner_id,omitempty" db:"winner_id"`
	CreatedBy string      `json:"created_by" db:"created_by"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// ScopeID returns the community the match is scoped to. Matches above the community level
// belong to a single tournament-wide scope 0.
func (m *Match) ScopeID() int {
	if m.Level != LevelCommunity || m.CommunityID == nil {
		return 0
	}
	return *m.CommunityID
}

// AdvancingPlayer returns the player who moves on from a finished match.
func (m *Match) AdvancingPlayer() (int, bool) {
	if m.Status != MatchStatusCompleted {
		return 0, false
	}
	if m.IsByeMatch {
		return m.Player1ID, true
	}
	if m.WinnerID == nil {
		return 0, false
	}
	return *m.WinnerID, true
}
