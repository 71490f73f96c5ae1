package services

import (
	"context"
	"errors"
	"testing"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFallback(notifier AdminNotifier) FallbackService {
	return NewFallbackService(repositories.NewMemoryFallbackConfigRepository(), repositories.NewMemoryFailureStore(),
		notifier, identityShuffler{}, newFakeScheduler(), discardLogger())
}

func TestShouldTriggerFallback_ThresholdAndReset(t *testing.T) {
	ctx := context.Background()
	svc := newTestFallback(nil)
	require.NoError(t, svc.SetConfig(ctx, 1, models.FallbackConfig{Enabled: true, TriggerThreshold: 3}))

	for i := 1; i <= 2; i++ {
		n, err := svc.RecordFailure(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, i, n)
		assert.False(t, svc.ShouldTriggerFallback(ctx, 1))
	}
	_, err := svc.RecordFailure(ctx, 1)
	require.NoError(t, err)
	assert.True(t, svc.ShouldTriggerFallback(ctx, 1))
	assert.False(t, svc.ShouldTriggerFallback(ctx, 2), "trackers are per tournament")

	require.NoError(t, svc.RecordSuccess(ctx, 1))
	assert.False(t, svc.ShouldTriggerFallback(ctx, 1))
}

func TestShouldTriggerFallback_Disabled(t *testing.T) {
	ctx := context.Background()
	svc := newTestFallback(nil)
	require.NoError(t, svc.SetConfig(ctx, 1, models.FallbackConfig{Enabled: false, TriggerThreshold: 1}))

	_, err := svc.RecordFailure(ctx, 1)
	require.NoError(t, err)
	assert.False(t, svc.ShouldTriggerFallback(ctx, 1))

	_, err = svc.GenerateFallbackMatches(ctx, FallbackRequest{TournamentID: 1, Candidates: roster(1, 2)})
	assert.ErrorIs(t, err, ErrFallbackDisabled)
}

func TestValidateFallbackConfig(t *testing.T) {
	cfg, err := ValidateFallbackConfig(models.FallbackConfig{Enabled: true})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.TriggerThreshold)
	assert.Equal(t, 2, cfg.MaxPlayersPerMatch)
	assert.Equal(t, models.StrategyRankingBased, cfg.FallbackStrategy)
	assert.Equal(t, models.MatchTypeSingles, cfg.DefaultMatchType)

	_, err = ValidateFallbackConfig(models.FallbackConfig{MaxPlayersPerMatch: 3})
	assert.ErrorIs(t, err, ErrInvalidFallbackConfig)
	_, err = ValidateFallbackConfig(models.FallbackConfig{FallbackStrategy: "coin_flip"})
	assert.ErrorIs(t, err, ErrInvalidFallbackConfig)
	_, err = ValidateFallbackConfig(models.FallbackConfig{TriggerThreshold: -1})
	assert.ErrorIs(t, err, ErrInvalidFallbackConfig)
	_, err = ValidateFallbackConfig(models.FallbackConfig{DefaultMatchType: "triples"})
	assert.ErrorIs(t, err, ErrInvalidFallbackConfig)
}

func TestGenerateFallbackMatches_SimplePairing(t *testing.T) {
	ctx := context.Background()
	svc := newTestFallback(nil)
	require.NoError(t, svc.SetConfig(ctx, 1, models.FallbackConfig{
		Enabled:          true,
		FallbackStrategy: models.StrategySimplePairing,
		DefaultMatchType: models.MatchTypeDoubles,
	}))

	res, err := svc.GenerateFallbackMatches(ctx, FallbackRequest{TournamentID: 1, Level: models.LevelCounty, Round: "COUNTY_R1", Candidates: roster(1, 2, 3, 4, 5)})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.RequiresManualReview)
	require.Len(t, res.Matches, 3)
	assert.Equal(t, 1, res.ByeCount())
	for _, m := range res.Matches {
		assert.Equal(t, models.MatchTypeDoubles, m.MatchType)
		assert.Equal(t, models.MatchSourceFallback, m.Source)
	}

	tracker, err := svc.Tracker(ctx, 1)
	require.NoError(t, err)
	assert.NotNil(t, tracker.LastFallbackUsed)
}

func TestGenerateFallbackMatches_NotEnoughCandidates(t *testing.T) {
	svc := newTestFallback(nil)
	_, err := svc.GenerateFallbackMatches(context.Background(), FallbackRequest{TournamentID: 1, Candidates: roster(1)})
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestGenerateFallbackMatches_NotificationIsBestEffort(t *testing.T) {
	ctx := context.Background()
	notifier := &fakeNotifier{err: errors.New("smtp unavailable")}
	svc := newTestFallback(notifier)
	require.NoError(t, svc.SetConfig(ctx, 1, models.FallbackConfig{
		Enabled:      true,
		NotifyAdmins: true,
		AdminEmails:  []string{"ops@example.com"},
	}))

	res, err := svc.GenerateFallbackMatches(ctx, FallbackRequest{TournamentID: 1, Round: "R1", Candidates: roster(1, 2), Reason: "engine down"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Equal(t, 1, notifier.count())
	assert.Equal(t, []string{"ops@example.com"}, notifier.sent[0].emails)
	assert.Contains(t, notifier.sent[0].body, "engine down")
}

func TestGenerateFallbackMatches_ManualIntervention(t *testing.T) {
	ctx := context.Background()
	svc := newTestFallback(nil)
	require.NoError(t, svc.SetConfig(ctx, 1, models.FallbackConfig{Enabled: true, FallbackStrategy: models.StrategyManualIntervention}))

	res, err := svc.GenerateFallbackMatches(ctx, FallbackRequest{TournamentID: 1, Candidates: roster(1, 2)})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, res.Matches)
	assert.True(t, res.RequiresManualReview)
}

func TestForget_DropsConfigAndTracker(t *testing.T) {
	ctx := context.Background()
	svc := newTestFallback(nil)
	require.NoError(t, svc.SetConfig(ctx, 1, models.FallbackConfig{Enabled: false}))
	_, err := svc.RecordFailure(ctx, 1)
	require.NoError(t, err)

	svc.Forget(ctx, 1)
	assert.Equal(t, models.DefaultFallbackConfig(), svc.Config(ctx, 1))
	tracker, err := svc.Tracker(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, tracker.ConsecutiveFailures)
}

func TestFallbackConfig_SurvivesNewServiceInstance(t *testing.T) {
	ctx := context.Background()
	configs := repositories.NewMemoryFallbackConfigRepository()
	failures := repositories.NewMemoryFailureStore()

	first := NewFallbackService(configs, failures, nil, identityShuffler{}, newFakeScheduler(), discardLogger())
	require.NoError(t, first.SetConfig(ctx, 7, models.FallbackConfig{
		Enabled:          false,
		TriggerThreshold: 1,
		FallbackStrategy: models.StrategyManualIntervention,
	}))
	_, err := first.RecordFailure(ctx, 7)
	require.NoError(t, err)

	second := NewFallbackService(configs, failures, nil, identityShuffler{}, newFakeScheduler(), discardLogger())
	cfg := second.Config(ctx, 7)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, models.StrategyManualIntervention, cfg.FallbackStrategy)
	assert.False(t, second.ShouldTriggerFallback(ctx, 7))

	_, err = second.GenerateFallbackMatches(ctx, FallbackRequest{TournamentID: 7, Candidates: roster(1, 2)})
	assert.ErrorIs(t, err, ErrFallbackDisabled)
}

type brokenFallbackConfigs struct {
	repositories.FallbackConfigRepository
}

func (brokenFallbackConfigs) Get(ctx context.Context, tournamentID int) (models.FallbackConfig, error) {
	return models.FallbackConfig{}, errors.New("connection refused")
}

func TestFallbackConfig_UnreadableStoreDisablesFallback(t *testing.T) {
	ctx := context.Background()
	failures := repositories.NewMemoryFailureStore()
	svc := NewFallbackService(brokenFallbackConfigs{}, failures, nil, identityShuffler{}, newFakeScheduler(), discardLogger())
	for i := 0; i < 5; i++ {
		_, err := svc.RecordFailure(ctx, 3)
		require.NoError(t, err)
	}

	assert.False(t, svc.Config(ctx, 3).Enabled)
	assert.False(t, svc.ShouldTriggerFallback(ctx, 3))
}
