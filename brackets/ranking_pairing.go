package brackets

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/Dosada05/tournament-progression/models"
)

const (
	pointsWeight           = 0.4
	pointsScale            = 100.0
	sameCommunityBonus     = 0.2
	crossCommunityBonus    = 0.3
	bothPaidBonus          = 0.1
	lowConfidenceThreshold = 0.7
)

// PairingScore оценивает пару: близость очков, разные общины предпочтительнее, оплата обоими.
// Результат симметричен.
func PairingScore(a, b models.Candidate) float64 {
	diff := math.Abs(float64(a.Points - b.Points))
	score := pointsWeight * math.Max(0, 1-diff/pointsScale)
	if a.SameCommunity(b) {
		score += sameCommunityBonus
	} else {
		score += crossCommunityBonus
	}
	if a.HasPaid && b.HasPaid {
		score += bothPaidBonus
	}
	return score
}

type RankingPairingGenerator struct{}

func NewRankingPairingGenerator() *RankingPairingGenerator {
	return &RankingPairingGenerator{}
}

func (g *RankingPairingGenerator) GetName() models.FallbackStrategy {
	return models.StrategyRankingBased
}

// GeneratePairings sorts by points descending and greedily gives each remaining player
// the best-scoring partner. Ties go to the partner that sorts first.
func (g *RankingPairingGenerator) GeneratePairings(ctx context.Context, params GeneratePairingsParams) (*PairingResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pool := pairable(params.Candidates)
	if len(pool) < 2 {
		return nil, fmt.Errorf("%w: have %d", ErrNotEnoughCandidates, len(pool))
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Points != pool[j].Points {
			return pool[i].Points > pool[j].Points
		}
		return pool[i].ID < pool[j].ID
	})

	result := &PairingResult{
		Success:              true,
		Method:               g.GetName(),
		RequiresManualReview: true,
	}
	used := make([]bool, len(pool))
	number := startNumber(params)
	for i := range pool {
		if used[i] {
			continue
		}
		used[i] = true

		best, bestScore := -1, -1.0
		for j := i + 1; j < len(pool); j++ {
			if used[j] {
				continue
			}
			if s := PairingScore(pool[i], pool[j]); s > bestScore {
				best, bestScore = j, s
			}
		}

		if best < 0 {
			result.Matches = append(result.Matches, newMatch(params, number, pool[i], nil, 1.0))
			result.Warnings = append(result.Warnings, fmt.Sprintf("player %d receives a bye", pool[i].ID))
			number++
			continue
		}

		used[best] = true
		partner := pool[best]
		result.Matches = append(result.Matches, newMatch(params, number, pool[i], &partner, bestScore))
		if bestScore < lowConfidenceThreshold {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("match %d (%d vs %d) has low pairing confidence %.2f", number, pool[i].ID, partner.ID, bestScore))
		}
		number++
	}
	return result, nil
}
