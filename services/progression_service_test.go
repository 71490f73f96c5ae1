package services

import (
	"context"
	"errors"
	"testing"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/pairing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tid = 42

func TestInitializeProgression_StartsFirstRound(t *testing.T) {
	h := newHarness(t)
	h.engine.setRound(pairsRound([2]int{1, 2}, [2]int{3, 4}))

	st, err := h.svc.InitializeProgression(context.Background(), InitializeProgressionInput{
		TournamentID: tid,
		Config:       autoConfig(),
		Initiator:    "organizer",
		Candidates:   roster(1, 2, 3, 4),
	})
	require.NoError(t, err)

	assert.Equal(t, models.LevelCommunity, st.CurrentLevel)
	assert.Equal(t, "R1", st.CurrentRound)
	assert.Equal(t, models.StateRoundInProgress, st.State)
	assert.True(t, st.IsProgressing)
	assert.Equal(t, 2, st.TotalMatches)
	assert.Equal(t, 2, st.PendingMatches)

	require.Len(t, h.engine.initCalls, 1)
	assert.Len(t, h.engine.initCalls[0].Players, 4)
	assert.Equal(t, models.SchedulingImmediate, h.engine.initCalls[0].SchedulingPreference)

	assert.Len(t, h.eventsOf(models.EventMatchCreated), 2)
	assert.Len(t, h.eventsOf(models.EventRoundStarted), 1)
	assert.Len(t, h.sched.active(false), 1, "re-check timer armed")

	matches, _ := h.matches.ListByTournament(context.Background(), tid)
	for _, m := range matches {
		assert.Equal(t, models.MatchSourceEngine, m.Source)
		assert.Equal(t, "R1", m.Round)
		assert.False(t, m.IsLevelFinal)
	}
}

func TestInitializeProgression_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.InitializeProgression(ctx, InitializeProgressionInput{TournamentID: tid, Candidates: roster(1, 1, 2)})
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.ErrorIs(t, err, ErrDuplicateCandidate)

	lonely := roster(1, 2)
	lonely[1].HasPaid = false
	_, err = h.svc.InitializeProgression(ctx, InitializeProgressionInput{TournamentID: tid, Candidates: lonely})
	assert.ErrorIs(t, err, ErrInsufficientPlayers)

	_, err = h.svc.InitializeProgression(ctx, InitializeProgressionInput{
		TournamentID: tid,
		Candidates:   roster(1, 2),
		Fallback:     &models.FallbackConfig{Enabled: true, MaxPlayersPerMatch: 4},
	})
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.ErrorIs(t, err, ErrInvalidFallbackConfig)

	assert.Empty(t, h.engine.initCalls)
}

func TestInitializeProgression_Twice(t *testing.T) {
	h := newHarness(t)
	h.engine.setRound(pairsRound([2]int{1, 2}))
	in := InitializeProgressionInput{TournamentID: tid, Config: autoConfig(), Candidates: roster(1, 2)}

	_, err := h.svc.InitializeProgression(context.Background(), in)
	require.NoError(t, err)
	_, err = h.svc.InitializeProgression(context.Background(), in)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestInitializeProgression_EngineInitFailure(t *testing.T) {
	h := newHarness(t)
	h.engine.initFn = func(req pairing.InitializeRequest) *pairing.Result {
		return &pairing.Result{ErrorCode: "BAD_ROSTER", Message: "roster rejected"}
	}

	st, err := h.svc.InitializeProgression(context.Background(), InitializeProgressionInput{
		TournamentID: tid, Config: autoConfig(), Candidates: roster(1, 2),
	})
	require.ErrorIs(t, err, ErrEngineInitFailed)
	assert.Equal(t, models.StateError, st.State)
	require.Len(t, st.Errors, 1)
	assert.Equal(t, CodeEngineInitFailed, st.Errors[0].Code)
	assert.Empty(t, h.engine.roundRequests())
	assert.Len(t, h.eventsOf(models.EventError), 1)
}

func TestCheckAndProgressRound_IncompleteRound(t *testing.T) {
	h := newHarness(t)
	h.engine.setRound(pairsRound([2]int{1, 2}, [2]int{3, 4}))
	_, err := h.svc.InitializeProgression(context.Background(), InitializeProgressionInput{
		TournamentID: tid, Config: autoConfig(), Candidates: roster(1, 2, 3, 4),
	})
	require.NoError(t, err)

	advanced, err := h.svc.CheckAndProgressRound(context.Background(), tid, "test")
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.Len(t, h.engine.roundRequests(), 1)
	assert.Empty(t, h.eventsOf(models.EventRoundCompleted))
}

func TestCheckAndProgressRound_AutomationDisabled(t *testing.T) {
	h := newHarness(t)
	h.engine.setRound(pairsRound([2]int{1, 2}))
	_, err := h.svc.InitializeProgression(context.Background(), InitializeProgressionInput{
		TournamentID: tid, Config: models.ProgressionConfig{}, Candidates: roster(1, 2),
	})
	require.NoError(t, err)
	h.matches.completeRound(tid, "R1")

	advanced, err := h.svc.CheckAndProgressRound(context.Background(), tid, "test")
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.Empty(t, h.sched.active(false))
}

func TestCheckAndProgressRound_AdvancesToSecondRound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.engine.setRound(pairsRound([2]int{1, 2}, [2]int{3, 4}, [2]int{5, 6}, [2]int{7, 8}))
	_, err := h.svc.InitializeProgression(ctx, InitializeProgressionInput{
		TournamentID: tid, Config: autoConfig(), Candidates: roster(1, 2, 3, 4, 5, 6, 7, 8),
	})
	require.NoError(t, err)

	require.Equal(t, 4, h.matches.completeRound(tid, "R1"))
	h.engine.setRound(pairsRound([2]int{1, 3}, [2]int{5, 7}))

	advanced, err := h.svc.CheckAndProgressRound(ctx, tid, "test")
	require.NoError(t, err)
	assert.True(t, advanced)

	st, err := h.svc.GetStatus(ctx, tid)
	require.NoError(t, err)
	assert.Equal(t, "R2", st.CurrentRound)
	assert.Equal(t, models.StateRoundInProgress, st.State)
	assert.Equal(t, 6, st.TotalMatches)
	assert.Equal(t, 4, st.CompletedMatches)
	assert.Equal(t, 2, st.PendingMatches)

	requests := h.engine.roundRequests()
	require.Len(t, requests, 2)
	assert.Equal(t, []int{1, 2, 3, 4}, requests[1].CompletedMatches)
	assert.Nil(t, requests[1].CommunityID)

	assert.Len(t, h.eventsOf(models.EventRoundCompleted), 1)
	assert.Len(t, h.eventsOf(models.EventRoundStarted), 2)
	assert.Len(t, h.sched.active(false), 1, "re-check timer replaced, not duplicated")
}

func TestRecheckTimer_DrivesProgression(t *testing.T) {
	h := newHarness(t)
	h.engine.setRound(pairsRound([2]int{1, 2}, [2]int{3, 4}))
	_, err := h.svc.InitializeProgression(context.Background(), InitializeProgressionInput{
		TournamentID: tid, Config: autoConfig(), Candidates: roster(1, 2, 3, 4),
	})
	require.NoError(t, err)

	h.matches.completeRound(tid, "R1")
	h.engine.setRound(pairsRound([2]int{1, 3}))
	require.Equal(t, 1, h.sched.fireDelayed())

	st, err := h.svc.GetStatus(context.Background(), tid)
	require.NoError(t, err)
	assert.Equal(t, "R2", st.CurrentRound)
}

func TestUnhealthyEngine_UsesFallbackWithoutGenerateRound(t *testing.T) {
	h := newHarness(t)
	h.engine.healthy = false

	st, err := h.svc.InitializeProgression(context.Background(), InitializeProgressionInput{
		TournamentID: tid, Config: autoConfig(), Candidates: roster(1, 2, 3, 4),
	})
	require.NoError(t, err)

	assert.Empty(t, h.engine.roundRequests())
	assert.True(t, st.FallbackActive)
	assert.NotEmpty(t, st.Warnings)

	matches, _ := h.matches.ListByTournament(context.Background(), tid)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Equal(t, models.MatchSourceFallback, m.Source)
		assert.True(t, m.RequiresManualReview)
		assert.Equal(t, "R1", m.Round)
	}
	assert.Equal(t, 1, matches[0].Player1ID)
	assert.Equal(t, 2, *matches[0].Player2ID)
}

func TestRepeatedEngineFailures_TriggerFallback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.engine.setRound(failingRound(pairing.ErrCodeTimeout, "deadline exceeded"))

	st, err := h.svc.InitializeProgression(ctx, InitializeProgressionInput{
		TournamentID: tid,
		Config:       autoConfig(),
		Fallback:     &models.FallbackConfig{Enabled: true, TriggerThreshold: 2, FallbackStrategy: models.StrategyRankingBased},
		Candidates:   roster(1, 2, 3, 4),
	})
	require.ErrorIs(t, err, ErrRoundGenerationFailed)
	assert.Equal(t, models.StateError, st.State)
	assert.Equal(t, 1, st.UnresolvedErrors())
	assert.Zero(t, h.matches.count())

	advanced, err := h.svc.CheckAndProgressRound(ctx, tid, "retry")
	require.NoError(t, err)
	assert.True(t, advanced)

	st, err = h.svc.GetStatus(ctx, tid)
	require.NoError(t, err)
	assert.Equal(t, models.StateRoundInProgress, st.State)
	assert.True(t, st.FallbackActive)
	assert.Zero(t, st.UnresolvedErrors())
	assert.Equal(t, 2, h.matches.count())
	assert.Len(t, h.engine.roundRequests(), 2)

	tracker, err := h.fallback.Tracker(ctx, tid)
	require.NoError(t, err)
	assert.Equal(t, 2, tracker.ConsecutiveFailures)
	assert.NotNil(t, tracker.LastFallbackUsed)

	// The threshold is still met, so the next round skips the engine entirely.
	h.matches.completeRound(tid, "R1")
	advanced, err = h.svc.CheckAndProgressRound(ctx, tid, "test")
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Len(t, h.engine.roundRequests(), 2)

	r2, _ := h.matches.ListByTournamentAndRound(ctx, tid, "R2")
	require.Len(t, r2, 1)
	assert.Equal(t, []int{1, 3}, []int{r2[0].Player1ID, *r2[0].Player2ID})
}

func TestEngineSuccess_ResetsFailureTracker(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.engine.setRound(failingRound(pairing.ErrCodeTransport, "connection refused"))
	_, err := h.svc.InitializeProgression(ctx, InitializeProgressionInput{
		TournamentID: tid, Config: autoConfig(), Candidates: roster(1, 2),
	})
	require.Error(t, err)

	h.engine.setRound(pairsRound([2]int{1, 2}))
	advanced, err := h.svc.CheckAndProgressRound(ctx, tid, "retry")
	require.NoError(t, err)
	assert.True(t, advanced)

	tracker, err := h.fallback.Tracker(ctx, tid)
	require.NoError(t, err)
	assert.Zero(t, tracker.ConsecutiveFailures)
}

func TestStopProgression_DiscardsInFlightResults(t *testing.T) {
	h := newHarness(t)
	h.engine.setRound(pairsRound([2]int{1, 2}))
	stopErr := make(chan error, 1)
	h.engine.onRound = func() {
		stopErr <- h.svc.StopProgression(context.Background(), tid, "admin")
	}

	_, err := h.svc.InitializeProgression(context.Background(), InitializeProgressionInput{
		TournamentID: tid, Config: autoConfig(), Candidates: roster(1, 2),
	})
	require.ErrorIs(t, err, ErrProgressionStopped)
	require.NoError(t, <-stopErr)

	assert.Zero(t, h.matches.count())
	assert.Empty(t, h.eventsOf(models.EventRoundStarted))
	assert.Empty(t, h.sched.active(false))

	_, err = h.svc.GetStatus(context.Background(), tid)
	assert.ErrorIs(t, err, ErrProgressionNotFound)
	_, err = h.svc.CheckAndProgressRound(context.Background(), tid, "test")
	assert.ErrorIs(t, err, ErrProgressionNotFound)
}

func TestStopProgression_ClearsTimers(t *testing.T) {
	h := newHarness(t)
	h.engine.setRound(pairsRound([2]int{1, 2}))
	_, err := h.svc.InitializeProgression(context.Background(), InitializeProgressionInput{
		TournamentID: tid, Config: autoConfig(), Candidates: roster(1, 2),
	})
	require.NoError(t, err)
	require.Len(t, h.sched.active(false), 1)

	require.NoError(t, h.svc.StopProgression(context.Background(), tid, "admin"))
	assert.Empty(t, h.sched.active(false))
	assert.ErrorIs(t, h.svc.StopProgression(context.Background(), tid, "admin"), ErrProgressionNotFound)
}

func TestManualApproval(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cfg := autoConfig()
	cfg.RequireManualApproval = true
	h.engine.setRound(pairsRound([2]int{1, 2}, [2]int{3, 4}))
	_, err := h.svc.InitializeProgression(ctx, InitializeProgressionInput{TournamentID: tid, Config: cfg, Candidates: roster(1, 2, 3, 4)})
	require.NoError(t, err)

	_, err = h.svc.ApproveRound(ctx, tid, "admin")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	h.matches.completeRound(tid, "R1")
	for i := 0; i < 2; i++ {
		advanced, err := h.svc.CheckAndProgressRound(ctx, tid, "test")
		require.NoError(t, err)
		assert.False(t, advanced)
	}

	st, err := h.svc.GetStatus(ctx, tid)
	require.NoError(t, err)
	assert.Equal(t, models.StateRoundComplete, st.State)
	assert.Equal(t, "R1", st.CurrentRound)
	assert.Len(t, st.Warnings, 1)
	assert.Contains(t, st.Warnings[0], "awaiting manual approval")
	assert.Len(t, h.eventsOf(models.EventRoundCompleted), 1)

	h.engine.setRound(pairsRound([2]int{1, 3}))
	advanced, err := h.svc.ApproveRound(ctx, tid, "admin")
	require.NoError(t, err)
	assert.True(t, advanced)

	st, err = h.svc.GetStatus(ctx, tid)
	require.NoError(t, err)
	assert.Equal(t, "R2", st.CurrentRound)
}

func TestLevelsAdvanceMonotonically(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.engine.setRound(pairsRound([2]int{1, 2}))
	_, err := h.svc.InitializeProgression(ctx, InitializeProgressionInput{TournamentID: tid, Config: autoConfig(), Candidates: roster(1, 2)})
	require.NoError(t, err)

	prev := models.LevelCommunity.Index()
	for _, want := range []models.Level{models.LevelCounty, models.LevelRegional, models.LevelNational} {
		advanced, err := h.svc.AdvanceToNextLevel(ctx, tid, "admin")
		require.NoError(t, err)
		require.True(t, advanced)

		st, err := h.svc.GetStatus(ctx, tid)
		require.NoError(t, err)
		assert.Equal(t, want, st.CurrentLevel)
		assert.Equal(t, FirstRound(want), st.CurrentRound)
		assert.Greater(t, st.CurrentLevel.Index(), prev)
		assert.Equal(t, 1, st.TotalMatches)
		prev = st.CurrentLevel.Index()
	}
	assert.Len(t, h.engine.initCalls, 4)
	assert.Empty(t, h.engine.initCalls[1].Players, "only the community level sends the roster")

	advanced, err := h.svc.AdvanceToNextLevel(ctx, tid, "admin")
	require.NoError(t, err)
	assert.True(t, advanced)

	st, err := h.svc.GetStatus(ctx, tid)
	require.NoError(t, err)
	assert.Equal(t, models.StateTournamentComplete, st.State)
	assert.False(t, st.IsProgressing)
	assert.NotNil(t, st.CompletedAt)
	assert.Len(t, h.eventsOf(models.EventLevelCompleted), 3)
	assert.Len(t, h.eventsOf(models.EventTournamentCompleted), 1)
	assert.Empty(t, h.sched.active(false))

	_, err = h.svc.AdvanceToNextLevel(ctx, tid, "admin")
	assert.ErrorIs(t, err, ErrTournamentCompleted)
	advanced, err = h.svc.CheckAndProgressRound(ctx, tid, "test")
	assert.NoError(t, err)
	assert.False(t, advanced)
}

func TestFinalizeCommunity_CompletesTournamentAtNationalFinal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.engine.setRound(pairsRound([2]int{1, 2}))
	_, err := h.svc.InitializeProgression(ctx, InitializeProgressionInput{TournamentID: tid, Config: autoConfig(), Candidates: roster(1, 2)})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := h.svc.AdvanceToNextLevel(ctx, tid, "admin")
		require.NoError(t, err)
	}

	_, err = h.svc.FinalizeCommunity(ctx, tid, 0, "admin")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	for i := 0; i < 2; i++ {
		_, err := h.svc.AdvanceToNextRound(ctx, tid, "admin")
		require.NoError(t, err)
	}
	finals, _ := h.matches.ListByTournamentAndRound(ctx, tid, "NATIONAL_F")
	require.Len(t, finals, 1)
	assert.True(t, finals[0].IsLevelFinal)

	advanced, err := h.svc.FinalizeCommunity(ctx, tid, 0, "admin")
	require.NoError(t, err)
	assert.False(t, advanced, "final not played yet")

	h.matches.completeRound(tid, "NATIONAL_F")
	h.engine.finalize = func(req pairing.FinalizeRequest) *pairing.Result {
		return &pairing.Result{Success: true, Response: &pairing.Response{
			Success:            true,
			Winners:            []pairing.Winner{{PlayerID: 1, Position: 1}, {PlayerID: 2, Position: 2}},
			TournamentComplete: true,
		}}
	}
	advanced, err = h.svc.FinalizeCommunity(ctx, tid, 0, "admin")
	require.NoError(t, err)
	assert.True(t, advanced)

	require.Len(t, h.engine.finalizeCalls, 1)
	assert.Equal(t, models.LevelNational, h.engine.finalizeCalls[0].Level)
	assert.Nil(t, h.engine.finalizeCalls[0].CommunityID)

	st, err := h.svc.GetStatus(ctx, tid)
	require.NoError(t, err)
	assert.Equal(t, models.StateTournamentComplete, st.State)
}

func TestFinalizeCommunity_EngineFailureRecorded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.engine.setRound(pairsRound([2]int{1, 2}))
	_, err := h.svc.InitializeProgression(ctx, InitializeProgressionInput{TournamentID: tid, Config: autoConfig(), Candidates: roster(1, 2)})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := h.svc.AdvanceToNextRound(ctx, tid, "admin")
		require.NoError(t, err)
	}
	h.matches.completeRound(tid, "COMMUNITY_F")
	h.engine.finalize = func(req pairing.FinalizeRequest) *pairing.Result {
		return &pairing.Result{ErrorCode: "NO_WINNERS", Message: "positions unresolved"}
	}

	_, err = h.svc.FinalizeCommunity(ctx, tid, 0, "admin")
	require.ErrorIs(t, err, ErrFinalizeFailed)

	st, err := h.svc.GetStatus(ctx, tid)
	require.NoError(t, err)
	assert.Equal(t, models.StateError, st.State)
	assert.Equal(t, models.LevelCommunity, st.CurrentLevel)
	require.Len(t, st.Errors, 1)
	assert.Equal(t, CodeFinalizeFailed, st.Errors[0].Code)
}

func communityRoster() []models.Candidate {
	r := roster(1, 2, 3, 4, 5, 6, 7, 8)
	for i := range r {
		if i < 4 {
			r[i].CommunityID = intPtr(10)
		} else {
			r[i].CommunityID = intPtr(20)
		}
	}
	return r
}

func byCommunityRound(req pairing.RoundRequest) *pairing.Result {
	if req.CommunityID != nil && *req.CommunityID == 20 {
		return pairsRound([2]int{5, 6}, [2]int{7, 8})(req)
	}
	return pairsRound([2]int{1, 2}, [2]int{3, 4})(req)
}

func TestCommunities_AdvanceIndependently(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.engine.setRound(byCommunityRound)

	st, err := h.svc.InitializeProgression(ctx, InitializeProgressionInput{TournamentID: tid, Config: autoConfig(), Candidates: communityRoster()})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20}, st.Communities)
	assert.Equal(t, map[int]string{10: "R1", 20: "R1"}, st.CommunityRounds)

	requests := h.engine.roundRequests()
	require.Len(t, requests, 2)
	assert.Equal(t, 10, *requests[0].CommunityID)
	assert.Equal(t, 20, *requests[1].CommunityID)

	matches, _ := h.matches.ListByTournament(ctx, tid)
	require.Len(t, matches, 4)
	assert.Equal(t, 10, *matches[0].CommunityID)
	assert.Equal(t, 20, *matches[3].CommunityID)

	require.Equal(t, 2, h.matches.completeCommunity(tid, "R1", 10))
	advanced, err := h.svc.AdvanceCommunity(ctx, tid, 20, "monitor")
	require.NoError(t, err)
	assert.False(t, advanced, "community 20 still playing")

	advanced, err = h.svc.AdvanceCommunity(ctx, tid, 10, "monitor")
	require.NoError(t, err)
	assert.True(t, advanced)

	st, err = h.svc.GetStatus(ctx, tid)
	require.NoError(t, err)
	assert.Equal(t, "R2", st.CommunityRounds[10])
	assert.Equal(t, "R1", st.CommunityRounds[20])
	assert.Equal(t, "R1", st.CurrentRound)

	requests = h.engine.roundRequests()
	require.Len(t, requests, 3)
	assert.Equal(t, 10, *requests[2].CommunityID)
	assert.ElementsMatch(t, []int{matches[0].ID, matches[1].ID}, requests[2].CompletedMatches)

	_, err = h.svc.AdvanceCommunity(ctx, tid, 99, "monitor")
	assert.ErrorIs(t, err, ErrUnknownCommunity)
}

func TestResetProgression(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.engine.setRound(pairsRound([2]int{1, 2}))
	_, err := h.svc.InitializeProgression(ctx, InitializeProgressionInput{TournamentID: tid, Config: autoConfig(), Candidates: roster(1, 2)})
	require.NoError(t, err)
	_, err = h.svc.AdvanceToNextLevel(ctx, tid, "admin")
	require.NoError(t, err)

	_, err = h.svc.ResetProgression(ctx, tid, models.LevelCommunity, "COUNTY_SF", "admin")
	assert.ErrorIs(t, err, ErrValidationFailed)

	st, err := h.svc.ResetProgression(ctx, tid, models.LevelCommunity, "r2", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.LevelCommunity, st.CurrentLevel)
	assert.Equal(t, "R2", st.CurrentRound)
	assert.Equal(t, models.StateRoundInProgress, st.State)
	assert.NotEmpty(t, st.Warnings)
}

func TestResolveError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.engine.setRound(failingRound(pairing.ErrCodeTransport, "refused"))
	_, err := h.svc.InitializeProgression(ctx, InitializeProgressionInput{TournamentID: tid, Config: autoConfig(), Candidates: roster(1, 2)})
	require.Error(t, err)

	n, err := h.svc.ResolveError(ctx, tid, "SOMETHING_ELSE")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = h.svc.ResolveError(ctx, tid, CodeRoundGeneration)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st, err := h.svc.GetStatus(ctx, tid)
	require.NoError(t, err)
	assert.Equal(t, models.StateRoundInProgress, st.State)
	assert.Zero(t, st.UnresolvedErrors())
}

func TestOverview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.engine.setRound(pairsRound([2]int{1, 2}, [2]int{3, 4}))
	_, err := h.svc.InitializeProgression(ctx, InitializeProgressionInput{TournamentID: tid, Config: autoConfig(), Candidates: roster(1, 2, 3, 4)})
	require.NoError(t, err)

	ov, err := h.svc.Overview(ctx, tid)
	require.NoError(t, err)
	assert.Equal(t, tid, ov.Status.TournamentID)
	assert.Len(t, ov.CurrentRoundMatches, 2)
	assert.Equal(t, models.DefaultFallbackConfig(), ov.FallbackConfig)

	_, err = h.svc.Overview(ctx, 7)
	assert.ErrorIs(t, err, ErrProgressionNotFound)
}

func TestQueryPositions(t *testing.T) {
	h := newHarness(t)
	h.engine.positions = &pairing.Result{ErrorCode: "UNKNOWN_TOURNAMENT", Message: "no such tournament"}

	_, err := h.svc.QueryPositions(context.Background(), tid, models.LevelCounty)
	assert.ErrorIs(t, err, ErrEngineRequestFailed)

	_, err = h.svc.QueryPositions(context.Background(), tid, "galactic")
	assert.ErrorIs(t, err, ErrInvalidLevel)
}

func TestUpdateConfig_DisablingAutoAdvanceClearsTimer(t *testing.T) {
	h := newHarness(t)
	h.engine.setRound(pairsRound([2]int{1, 2}))
	_, err := h.svc.InitializeProgression(context.Background(), InitializeProgressionInput{TournamentID: tid, Config: autoConfig(), Candidates: roster(1, 2)})
	require.NoError(t, err)

	cfg := autoConfig()
	cfg.AutoAdvanceRounds = false
	st, err := h.svc.UpdateConfig(context.Background(), tid, cfg)
	require.NoError(t, err)
	assert.False(t, st.Config.AutoAdvanceRounds)
	assert.Empty(t, h.sched.active(false))

	cfg.SchedulingPreference = "whenever"
	_, err = h.svc.UpdateConfig(context.Background(), tid, cfg)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestApplyVenueDefaults(t *testing.T) {
	data := []models.MatchCreationData{
		{MatchNumber: 1, Player2ID: intPtr(2)},
		{MatchNumber: 2, Player2ID: intPtr(4)},
		{MatchNumber: 3, IsByeMatch: true},
		{MatchNumber: 4, Player2ID: intPtr(8)},
	}
	applyVenueDefaults(&models.VenueSettings{DefaultVenue: "Hall A", DefaultTable: 3, TablesAvailable: 2}, data)

	for _, d := range data {
		require.NotNil(t, d.Venue)
		assert.Equal(t, "Hall A", *d.Venue)
	}
	assert.Equal(t, 3, *data[0].TableNumber)
	assert.Equal(t, 4, *data[1].TableNumber)
	assert.Nil(t, data[2].TableNumber)
	assert.Equal(t, 3, *data[3].TableNumber)
}

func TestConvertDescriptors_SkipsInvalidPlayers(t *testing.T) {
	h := newHarness(t)
	h.engine.setRound(func(req pairing.RoundRequest) *pairing.Result {
		return &pairing.Result{Success: true, Response: &pairing.Response{Success: true, Matches: []pairing.MatchDescriptor{
			{MatchNumber: 1, Player1ID: 1, Player2ID: intPtr(1)},
			{MatchNumber: 2, Player1ID: 0, Player2ID: intPtr(3)},
			{MatchNumber: 3, Player1ID: 2, Player2ID: intPtr(4), MatchType: "doubles", DeterminesPositions: []int{5, 6}},
		}}}
	})
	st, err := h.svc.InitializeProgression(context.Background(), InitializeProgressionInput{TournamentID: tid, Config: autoConfig(), Candidates: roster(1, 2, 3, 4)})
	require.NoError(t, err)
	assert.Len(t, st.Warnings, 2)

	matches, _ := h.matches.ListByTournament(context.Background(), tid)
	require.Len(t, matches, 1)
	assert.Equal(t, models.MatchTypeDoubles, matches[0].MatchType)
	assert.Equal(t, []int{5, 6}, matches[0].DeterminesPositions)
}

func TestPersistenceFailureRecorded(t *testing.T) {
	h := newHarness(t)
	h.engine.setRound(pairsRound([2]int{1, 2}))
	h.matches.failOn = errors.New("db down")

	st, err := h.svc.InitializeProgression(context.Background(), InitializeProgressionInput{TournamentID: tid, Config: autoConfig(), Candidates: roster(1, 2)})
	require.Error(t, err)
	require.Len(t, st.Errors, 1)
	assert.Equal(t, CodePersistenceFailed, st.Errors[0].Code)
	assert.Empty(t, h.sched.active(false))
}
