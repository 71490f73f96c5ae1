package brackets

import (
	"context"
	"errors"

	"github.com/Dosada05/tournament-progression/models"
)

var ErrNotEnoughCandidates = errors.New("not enough eligible and paid candidates to pair")

type GeneratePairingsParams struct {
	TournamentID     int
	Level            models.Level
	Round            string
	Candidates       []models.Candidate
	MatchType        models.MatchType
	StartMatchNumber int
	IsLevelFinal     bool
	DeterminesTop3   bool
	DefaultCommunity *int
}

// PairingResult is the output contract shared by every fallback strategy.
type PairingResult struct {
	Success              bool                       `json:"success"`
	Method               models.FallbackStrategy    `json:"method"`
	Matches              []models.MatchCreationData `json:"matches"`
	Warnings             []string                   `json:"warnings"`
	Errors               []string                   `json:"errors"`
	RequiresManualReview bool                       `json:"requires_manual_review"`
}

func (r *PairingResult) ByeCount() int {
	n := 0
	for _, m := range r.Matches {
		if m.IsByeMatch {
			n++
		}
	}
	return n
}

type PairingGenerator interface {
	GeneratePairings(ctx context.Context, params GeneratePairingsParams) (*PairingResult, error)

	GetName() models.FallbackStrategy
}

// NewGenerator returns the generator for a strategy, or nil for unknown strategies.
func NewGenerator(strategy models.FallbackStrategy, shuffler Shuffler) PairingGenerator {
	switch strategy {
	case models.StrategySimplePairing:
		return NewSimplePairingGenerator(shuffler)
	case models.StrategyRankingBased:
		return NewRankingPairingGenerator()
	case models.StrategyManualIntervention:
		return NewManualInterventionGenerator()
	default:
		return nil
	}
}

// pairable keeps eligible, paid candidates and drops duplicate ids, preserving input order.
func pairable(candidates []models.Candidate) []models.Candidate {
	seen := make(map[int]bool, len(candidates))
	out := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.CanBePaired() || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}

func newMatch(params GeneratePairingsParams, number int, p1 models.Candidate, p2 *models.Candidate, confidence float64) models.MatchCreationData {
	matchType := params.MatchType
	if matchType == "" {
		matchType = models.MatchTypeSingles
	}
	communityID := p1.CommunityID
	if communityID == nil {
		communityID = params.DefaultCommunity
	}
	conf := confidence
	m := models.MatchCreationData{
		TournamentID:         params.TournamentID,
		Level:                params.Level,
		Round:                params.Round,
		MatchNumber:          number,
		MatchType:            matchType,
		Player1ID:            p1.ID,
		IsLevelFinal:         params.IsLevelFinal,
		DeterminesTop3:       params.DeterminesTop3,
		CommunityID:          communityID,
		CountyID:             p1.CountyID,
		RegionID:             p1.RegionID,
		RequiresManualReview: true,
		Source:               models.MatchSourceFallback,
		Confidence:           &conf,
	}
	if p2 == nil {
		m.IsByeMatch = true
		return m
	}
	id := p2.ID
	m.Player2ID = &id
	return m
}

func startNumber(params GeneratePairingsParams) int {
	if params.StartMatchNumber > 0 {
		return params.StartMatchNumber
	}
	return 1
}
