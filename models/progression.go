package models

import "time"

// Level это уровень турнира. Порядок фиксирован: community → county → regional → national.
type Level string

const (
	LevelCommunity Level = "community"
	LevelCounty    Level = "county"
	LevelRegional  Level = "regional"
	LevelNational  Level = "national"
)

var levelOrder = []Level{LevelCommunity, LevelCounty, LevelRegional, LevelNational}

// Levels returns the levels in progression order.
func Levels() []Level {
	out := make([]Level, len(levelOrder))
	copy(out, levelOrder)
	return out
}

// Index returns the position of the level in the progression order, or -1 for unknown levels.
func (l Level) Index() int {
	for i, lv := range levelOrder {
		if lv == l {
			return i
		}
	}
	return -1
}

func (l Level) IsValid() bool {
	return l.Index() >= 0
}

// Next returns the following level. ok is false for national and unknown levels.
func (l Level) Next() (next Level, ok bool) {
	i := l.Index()
	if i < 0 || i+1 >= len(levelOrder) {
		return "", false
	}
	return levelOrder[i+1], true
}

// ProgressionState is the coordinator's state machine state.
type ProgressionState string

const (
	StateInitialized        ProgressionState = "initialized"
	StateRoundInProgress    ProgressionState = "round_in_progress"
	StateRoundComplete      ProgressionState = "round_complete"
	StateLevelComplete      ProgressionState = "level_complete"
	StateTournamentComplete ProgressionState = "tournament_complete"
	StateError              ProgressionState = "error"
)

type SchedulingPreference string

const (
	SchedulingImmediate SchedulingPreference = "immediate"
	SchedulingBalanced  SchedulingPreference = "balanced"
	SchedulingWeekends  SchedulingPreference = "weekends"
)

type VenueSettings struct {
	DefaultVenue    string `json:"default_venue,omitempty"`
	DefaultTable    int    `json:"default_table,omitempty"`
	TablesAvailable int    `json:"tables_available,omitempty"`
}

type NotificationSettings struct {
	NotifyOnRoundComplete bool `json:"notify_on_round_complete"`
	NotifyOnLevelComplete bool `json:"notify_on_level_complete"`
	NotifyOnError         bool `json:"notify_on_error"`
}

// ProgressionConfig задаётся оператором при инициализации и может быть заменён целиком.
type ProgressionConfig struct {
	EnableAutomation      bool                 `json:"enable_automation"`
	SchedulingPreference  SchedulingPreference `json:"scheduling_preference,omitempty"`
	AutoAdvanceRounds     bool                 `json:"auto_advance_rounds"`
	RequireManualApproval bool                 `json:"require_manual_approval"`
	Special               bool                 `json:"special"`
	VenueSettings         *VenueSettings       `json:"venue_settings,omitempty"`
	NotificationSettings  NotificationSettings `json:"notification_settings"`
	AdminEmails           []string             `json:"admin_emails,omitempty"`
}

type FallbackStrategy string

const (
	StrategySimplePairing      FallbackStrategy = "simple_pairing"
	StrategyRankingBased       FallbackStrategy = "ranking_based"
	StrategyManualIntervention FallbackStrategy = "manual_intervention"
)

func (s FallbackStrategy) IsValid() bool {
	switch s {
	case StrategySimplePairing, StrategyRankingBased, StrategyManualIntervention:
		return true
	}
	return false
}

type FallbackConfig struct {
	Enabled            bool             `json:"enabled"`
	TriggerThreshold   int              `json:"trigger_threshold"`
	NotifyAdmins       bool             `json:"notify_admins"`
	AdminEmails        []string         `json:"admin_emails,omitempty"`
	FallbackStrategy   FallbackStrategy `json:"fallback_strategy"`
	MaxPlayersPerMatch int              `json:"max_players_per_match"`
	DefaultMatchType   MatchType        `json:"default_match_type"`
}

// DefaultFallbackConfig mirrors the values operators get when they do not supply one.
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{
		Enabled:            true,
		TriggerThreshold:   3,
		NotifyAdmins:       true,
		FallbackStrategy:   StrategyRankingBased,
		MaxPlayersPerMatch: 2,
		DefaultMatchType:   MatchTypeSingles,
	}
}

type FailureTracker struct {
	TournamentID        int        `json:"tournament_id"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastFallbackUsed    *time.Time `json:"last_fallback_used,omitempty"`
}

type ProgressionError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Level     Level     `json:"level"`
	Round     string    `json:"round"`
	Timestamp time.Time `json:"timestamp"`
	Resolved  bool      `json:"resolved"`
}

// ProgressionStatus это единственный экземпляр на турнир, изменяется только координатором.
type ProgressionStatus struct {
	TournamentID      int              `json:"tournament_id"`
	CurrentLevel      Level            `json:"current_level"`
	CurrentRound      string           `json:"current_round"`
	State             ProgressionState `json:"state"`
	TotalMatches      int              `json:"total_matches"`
	CompletedMatches  int              `json:"completed_matches"`
	PendingMatches    int              `json:"pending_matches"`
	IsProgressing     bool             `json:"is_progressing"`
	FallbackActive    bool             `json:"fallback_active"`
	StartedAt         time.Time        `json:"started_at"`
	LastProgressionAt time.Time        `json:"last_progression_at"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
	InitiatedBy       string           `json:"initiated_by"`

	Communities     []int          `json:"communities,omitempty"`
	CommunityRounds map[int]string `json:"community_rounds,omitempty"`
	FinalizedScopes map[int]bool   `json:"finalized_scopes,omitempty"`

	Errors   []ProgressionError `json:"errors"`
	Warnings []string           `json:"warnings"`

	Config ProgressionConfig `json:"config"`
}

// Clone returns a deep copy so callers outside the coordinator never share its slices and maps.
func (s *ProgressionStatus) Clone() *ProgressionStatus {
	if s == nil {
		return nil
	}
	c := *s
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	c.Communities = append([]int(nil), s.Communities...)
	c.Errors = append([]ProgressionError(nil), s.Errors...)
	c.Warnings = append([]string(nil), s.Warnings...)
	if s.CommunityRounds != nil {
		c.CommunityRounds = make(map[int]string, len(s.CommunityRounds))
		for k, v := range s.CommunityRounds {
			c.CommunityRounds[k] = v
		}
	}
	if s.FinalizedScopes != nil {
		c.FinalizedScopes = make(map[int]bool, len(s.FinalizedScopes))
		for k, v := range s.FinalizedScopes {
			c.FinalizedScopes[k] = v
		}
	}
	c.Config.AdminEmails = append([]string(nil), s.Config.AdminEmails...)
	if s.Config.VenueSettings != nil {
		v := *s.Config.VenueSettings
		c.Config.VenueSettings = &v
	}
	return &c
}

// UnresolvedErrors counts errors that have not been marked resolved.
func (s *ProgressionStatus) UnresolvedErrors() int {
	n := 0
	for _, e := range s.Errors {
		if !e.Resolved {
			n++
		}
	}
	return n
}
