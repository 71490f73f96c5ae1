package brackets

import (
	"context"

	"github.com/Dosada05/tournament-progression/models"
)

// ManualInterventionGenerator никогда не создаёт матчей: администратор составляет пары сам.
type ManualInterventionGenerator struct{}

func NewManualInterventionGenerator() *ManualInterventionGenerator {
	return &ManualInterventionGenerator{}
}

func (g *ManualInterventionGenerator) GetName() models.FallbackStrategy {
	return models.StrategyManualIntervention
}

func (g *ManualInterventionGenerator) GeneratePairings(ctx context.Context, params GeneratePairingsParams) (*PairingResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &PairingResult{
		Success:              false,
		Method:               g.GetName(),
		Matches:              []models.MatchCreationData{},
		Errors:               []string{"manual intervention required: an administrator must create the pairings"},
		RequiresManualReview: true,
	}, nil
}
