package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/pairing"
)

const approvalWarningFormat = "round %s of %s level is complete and awaiting manual approval"

func (s *progressionService) onRoundComplete(ctx context.Context, sess *progressionSession, st *models.ProgressionStatus, matchCount int, triggeredBy string) (bool, error) {
	var events []models.ProgressionEvent
	if st.State != models.StateRoundComplete {
		st.State = models.StateRoundComplete
		events = append(events, s.newEvent(st, models.EventRoundCompleted, st.CurrentRound, map[string]interface{}{
			"matches":      matchCount,
			"triggered_by": triggeredBy,
		}))
	}
	if err := s.refreshCounters(ctx, st); err != nil {
		s.logger.Warn("failed to refresh match counters", slog.Int("tournament_id", st.TournamentID), slog.Any("error", err))
	}
	st.LastProgressionAt = s.sched.Now().UTC()

	if st.Config.RequireManualApproval {
		warning := fmt.Sprintf(approvalWarningFormat, st.CurrentRound, st.CurrentLevel)
		if !containsString(st.Warnings, warning) {
			st.Warnings = append(st.Warnings, warning)
		}
		return false, s.commit(ctx, sess, st, events...)
	}
	if err := s.commit(ctx, sess, st, events...); err != nil {
		return false, err
	}
	if !st.Config.AutoAdvanceRounds {
		return true, nil
	}
	return s.advanceToNextRound(ctx, sess, st, triggeredBy)
}

func (s *progressionService) advanceToNextRound(ctx context.Context, sess *progressionSession, st *models.ProgressionStatus, actor string) (bool, error) {
	next, ok := NextRound(st.CurrentLevel, st.CurrentRound)
	if !ok {
		return s.advanceToNextLevel(ctx, sess, st, actor)
	}

	scopes := []int{0}
	if st.CurrentLevel == models.LevelCommunity && len(st.Communities) > 0 {
		scopes = scopes[:0]
		for _, id := range st.Communities {
			if st.FinalizedScopes[id] || st.CommunityRounds[id] != st.CurrentRound {
				continue
			}
			st.CommunityRounds[id] = next
			scopes = append(scopes, id)
		}
		st.CurrentRound = lowestCommunityRound(st)
	} else {
		st.CurrentRound = next
	}

	s.logger.Info("advancing to next round",
		slog.Int("tournament_id", st.TournamentID),
		slog.String("level", string(st.CurrentLevel)),
		slog.String("round", next),
		slog.String("actor", actor))

	if len(scopes) == 0 {
		return true, s.save(ctx, sess, st)
	}
	if err := s.startNextRound(ctx, sess, st, scopes, actor); err != nil {
		return false, err
	}
	return true, nil
}

func (s *progressionService) advanceToNextLevel(ctx context.Context, sess *progressionSession, st *models.ProgressionStatus, actor string) (bool, error) {
	s.clearRecheck(sess)
	next, ok := st.CurrentLevel.Next()
	if !ok {
		return s.completeTournament(ctx, sess, st, actor)
	}

	completed := s.newEvent(st, models.EventLevelCompleted, st.CurrentRound, map[string]interface{}{
		"next_level": string(next),
		"actor":      actor,
	})
	st.CurrentLevel = next
	st.CurrentRound = FirstRound(next)
	st.State = models.StateLevelComplete
	st.TotalMatches, st.CompletedMatches, st.PendingMatches = 0, 0, 0
	st.Communities = nil
	st.CommunityRounds = nil
	st.FinalizedScopes = nil
	st.FallbackActive = false
	st.LastProgressionAt = s.sched.Now().UTC()
	if err := s.commit(ctx, sess, st, completed); err != nil {
		return false, err
	}
	s.logger.Info("advanced to next level",
		slog.Int("tournament_id", st.TournamentID),
		slog.String("level", string(next)),
		slog.String("actor", actor))

	if err := s.initializeEngine(ctx, sess, st, CodeLevelInitFailed, true); err != nil {
		return false, err
	}
	if err := s.startNextRound(ctx, sess, st, []int{0}, actor); err != nil {
		return false, err
	}
	return true, nil
}

func (s *progressionService) completeTournament(ctx context.Context, sess *progressionSession, st *models.ProgressionStatus, actor string) (bool, error) {
	if st.State == models.StateTournamentComplete {
		return false, ErrTournamentCompleted
	}
	s.clearRecheck(sess)

	now := s.sched.Now().UTC()
	st.IsProgressing = false
	st.State = models.StateTournamentComplete
	st.CompletedAt = &now
	st.LastProgressionAt = now
	if err := s.refreshCounters(ctx, st); err != nil {
		s.logger.Warn("failed to refresh match counters", slog.Int("tournament_id", st.TournamentID), slog.Any("error", err))
	}
	completed := s.newEvent(st, models.EventTournamentCompleted, st.CurrentRound, map[string]interface{}{
		"actor": actor,
	})
	if err := s.commit(ctx, sess, st, completed); err != nil {
		return false, err
	}
	s.logger.Info("tournament completed", slog.Int("tournament_id", st.TournamentID), slog.String("actor", actor))
	return true, nil
}

func (s *progressionService) finalizeScope(ctx context.Context, sess *progressionSession, st *models.ProgressionStatus, scope int, actor string) (bool, error) {
	res := s.pairing.FinalizeWinners(ctx, pairing.FinalizeRequest{
		TournamentID: st.TournamentID,
		CommunityID:  scopePointer(st.CurrentLevel, scope),
		Level:        st.CurrentLevel,
		Special:      st.Config.Special,
	})
	if err := s.checkStopped(sess); err != nil {
		return false, err
	}
	round := scopeRound(st, scope)
	if !res.Success {
		ev := s.appendError(st, CodeFinalizeFailed, fmt.Sprintf("%s (%s)", res.Message, res.ErrorCode), round)
		if err := s.commit(ctx, sess, st, ev); err != nil {
			return false, err
		}
		return false, fmt.Errorf("%w: %s: %s", ErrFinalizeFailed, res.ErrorCode, res.Message)
	}

	if st.FinalizedScopes == nil {
		st.FinalizedScopes = make(map[int]bool)
	}
	st.FinalizedScopes[scope] = true
	winners := 0
	if res.Response != nil {
		winners = len(res.Response.Winners)
	}
	finalized := s.newEvent(st, models.EventRoundCompleted, round, map[string]interface{}{
		"community_id": scope,
		"finalized":    true,
		"winners":      winners,
		"triggered_by": actor,
	})

	if res.Response != nil && res.Response.TournamentComplete {
		if err := s.commit(ctx, sess, st, finalized); err != nil {
			return false, err
		}
		return s.completeTournament(ctx, sess, st, actor)
	}
	if !allScopesFinalized(st) {
		st.CurrentRound = lowestCommunityRound(st)
		return true, s.commit(ctx, sess, st, finalized)
	}
	if err := s.commit(ctx, sess, st, finalized); err != nil {
		return false, err
	}
	return s.advanceToNextLevel(ctx, sess, st, actor)
}

// initializeEngine registers the current level with the engine. When allowFallback is set, a failure
// that pushes the tournament over the fallback threshold is tolerated.
func (s *progressionService) initializeEngine(ctx context.Context, sess *progressionSession, st *models.ProgressionStatus, code string, allowFallback bool) error {
	req := pairing.InitializeRequest{
		TournamentID:         st.TournamentID,
		Special:              st.Config.Special,
		Level:                st.CurrentLevel,
		SchedulingPreference: st.Config.SchedulingPreference,
	}
	if st.CurrentLevel == models.LevelCommunity {
		roster, err := s.candidates.ListByTournament(ctx, st.TournamentID, nil)
		if err != nil {
			return fmt.Errorf("failed to load roster for tournament %d: %w", st.TournamentID, err)
		}
		for _, c := range roster {
			if c.CanBePaired() {
				req.Players = append(req.Players, pairing.PlayerSeed{ID: c.ID, Name: c.Name, CommunityID: c.CommunityID, Points: c.Points})
			}
		}
	}

	res := s.pairing.InitializeTournament(ctx, req)
	if err := s.checkStopped(sess); err != nil {
		return err
	}
	if res.Success {
		if resolveErrors(st, CodeEngineInitFailed, CodeLevelInitFailed) > 0 {
			return s.save(ctx, sess, st)
		}
		return nil
	}

	if allowFallback {
		if _, err := s.fallback.RecordFailure(ctx, st.TournamentID); err != nil {
			s.logger.Warn("failed to record engine failure", slog.Int("tournament_id", st.TournamentID), slog.Any("error", err))
		}
		if s.fallback.ShouldTriggerFallback(ctx, st.TournamentID) {
			st.Warnings = append(st.Warnings, fmt.Sprintf("engine initialization for %s level failed (%s); fallback pairing will be used", st.CurrentLevel, res.Message))
			return s.save(ctx, sess, st)
		}
	}
	ev := s.appendError(st, code, fmt.Sprintf("%s (%s)", res.Message, res.ErrorCode), st.CurrentRound)
	if err := s.commit(ctx, sess, st, ev); err != nil {
		return err
	}
	return fmt.Errorf("%w: %s: %s", ErrEngineInitFailed, res.ErrorCode, res.Message)
}

// retryMissingRound regenerates rounds that have no matches, e.g. after a failed generation.
// attempted is false when there was nothing to retry.
func (s *progressionService) retryMissingRound(ctx context.Context, sess *progressionSession, st *models.ProgressionStatus, actor string) (attempted bool, err error) {
	switch st.State {
	case models.StateError, models.StateInitialized, models.StateRoundInProgress, models.StateLevelComplete:
	default:
		return false, nil
	}
	if hasUnresolved(st, CodeEngineInitFailed, CodeLevelInitFailed) {
		code := CodeLevelInitFailed
		if hasUnresolved(st, CodeEngineInitFailed) {
			code = CodeEngineInitFailed
		}
		if err := s.initializeEngine(ctx, sess, st, code, code == CodeLevelInitFailed); err != nil {
			return true, err
		}
	}

	scopes, err := s.scopesMissingMatches(ctx, st)
	if err != nil {
		return true, err
	}
	if len(scopes) == 0 {
		return false, nil
	}
	resolveErrors(st, CodeRoundGeneration, CodeManualIntervention, CodePersistenceFailed)
	s.logger.Info("retrying round generation",
		slog.Int("tournament_id", st.TournamentID),
		slog.String("round", st.CurrentRound),
		slog.Any("scopes", scopes))
	return true, s.startNextRound(ctx, sess, st, scopes, actor)
}

func (s *progressionService) scopesMissingMatches(ctx context.Context, st *models.ProgressionStatus) ([]int, error) {
	matches, err := s.matches.ListByTournament(ctx, st.TournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches for tournament %d: %w", st.TournamentID, err)
	}
	has := make(map[int]bool)
	for _, m := range matches {
		scope := m.ScopeID()
		if m.Level == st.CurrentLevel && m.Round == scopeRound(st, scope) {
			has[scope] = true
		}
	}
	var missing []int
	for _, scope := range activeScopes(st) {
		if !has[scope] {
			missing = append(missing, scope)
		}
	}
	return missing, nil
}

// startNextRound generates, persists and announces the current round for each scope. A failing scope
// does not stop the others; all failures are recorded and returned joined.
func (s *progressionService) startNextRound(ctx context.Context, sess *progressionSession, st *models.ProgressionStatus, scopes []int, actor string) error {
	var (
		events      []models.ProgressionEvent
		errs        []error
		created     int
		allFallback = true
	)
	for _, scope := range scopes {
		round := scopeRound(st, scope)
		data, source, warnings, err := s.generateScope(ctx, sess, st, scope, round)
		if errors.Is(err, ErrProgressionStopped) {
			return err
		}
		if err != nil {
			code := CodeRoundGeneration
			if errors.Is(err, ErrManualInterventionRequired) {
				code = CodeManualIntervention
			}
			events = append(events, s.appendError(st, code, scopeMessage(scope, err), round))
			errs = append(errs, err)
			continue
		}
		st.Warnings = append(st.Warnings, warnings...)
		applyVenueDefaults(st.Config.VenueSettings, data)

		matches, err := s.matches.CreateBatch(ctx, data, actor)
		if err != nil {
			err = fmt.Errorf("failed to persist %d matches for round %s: %w", len(data), round, err)
			events = append(events, s.appendError(st, CodePersistenceFailed, scopeMessage(scope, err), round))
			errs = append(errs, err)
			continue
		}
		if err := s.checkStopped(sess); err != nil {
			return err
		}
		if source != models.MatchSourceFallback {
			allFallback = false
		}
		created += len(matches)
		for _, m := range matches {
			events = append(events, s.newEvent(st, models.EventMatchCreated, round, map[string]interface{}{
				"match_id":     m.ID,
				"match_number": m.MatchNumber,
				"community_id": scope,
				"player1_id":   m.Player1ID,
				"player2_id":   m.Player2ID,
				"is_bye":       m.IsByeMatch,
				"source":       string(m.Source),
			}))
		}
		events = append(events, s.newEvent(st, models.EventRoundStarted, round, map[string]interface{}{
			"community_id": scope,
			"matches":      len(matches),
			"source":       string(source),
		}))
		s.logger.Info("round started",
			slog.Int("tournament_id", st.TournamentID),
			slog.String("level", string(st.CurrentLevel)),
			slog.String("round", round),
			slog.Int("community_id", scope),
			slog.Int("matches", len(matches)),
			slog.String("source", string(source)))
	}

	if created > 0 {
		st.State = models.StateRoundInProgress
		st.IsProgressing = true
		st.FallbackActive = allFallback
	}
	if len(errs) > 0 {
		st.State = models.StateError
	}
	if err := s.refreshCounters(ctx, st); err != nil {
		s.logger.Warn("failed to refresh match counters", slog.Int("tournament_id", st.TournamentID), slog.Any("error", err))
	}
	st.LastProgressionAt = s.sched.Now().UTC()
	if err := s.commit(ctx, sess, st, events...); err != nil {
		return err
	}
	if created > 0 && st.Config.EnableAutomation && st.Config.AutoAdvanceRounds {
		s.armRecheck(sess, st.TournamentID)
	}
	return errors.Join(errs...)
}

// generateScope picks the pairing source for one scope: fallback when the failure threshold is
// already met or the engine reports unhealthy, otherwise the engine with fallback on repeated failure.
func (s *progressionService) generateScope(ctx context.Context, sess *progressionSession, st *models.ProgressionStatus, scope int, round string) ([]models.MatchCreationData, models.MatchSource, []string, error) {
	tid := st.TournamentID
	reason := ""
	if s.fallback.ShouldTriggerFallback(ctx, tid) {
		reason = "consecutive pairing engine failures reached the fallback threshold"
	} else if s.fallback.Config(ctx, tid).Enabled {
		health := s.pairing.HealthCheck(ctx)
		if err := s.checkStopped(sess); err != nil {
			return nil, "", nil, err
		}
		if !health.Healthy {
			reason = "pairing engine health check failed: " + health.Message
		}
	}
	if reason != "" {
		return s.runFallback(ctx, st, scope, round, reason)
	}

	completed, err := s.completedMatchIDs(ctx, st, scope, round)
	if err != nil {
		return nil, "", nil, err
	}
	res := s.pairing.GenerateRound(ctx, pairing.RoundRequest{
		TournamentID:     tid,
		CommunityID:      scopePointer(st.CurrentLevel, scope),
		CompletedMatches: completed,
		Level:            st.CurrentLevel,
		Special:          st.Config.Special,
	})
	if err := s.checkStopped(sess); err != nil {
		return nil, "", nil, err
	}

	if res.Success && len(res.Matches()) > 0 {
		if err := s.fallback.RecordSuccess(ctx, tid); err != nil {
			s.logger.Warn("failed to reset failure tracker", slog.Int("tournament_id", tid), slog.Any("error", err))
		}
		data, warnings := s.fromDescriptors(ctx, st, scope, round, res.Matches())
		if len(data) > 0 {
			return data, models.MatchSourceEngine, warnings, nil
		}
		res = &pairing.Result{ErrorCode: pairing.ErrCodeInvalidResponse, Message: strings.Join(warnings, "; ")}
	}

	code, msg := res.ErrorCode, res.Message
	if res.Success {
		code, msg = "EMPTY_ROUND", "pairing engine returned no matches"
	}
	failures, err := s.fallback.RecordFailure(ctx, tid)
	if err != nil {
		s.logger.Warn("failed to record engine failure", slog.Int("tournament_id", tid), slog.Any("error", err))
	}
	s.logger.Warn("pairing engine round generation failed",
		slog.Int("tournament_id", tid),
		slog.String("round", round),
		slog.Int("community_id", scope),
		slog.String("error_code", code),
		slog.String("message", msg),
		slog.Int("consecutive_failures", failures))

	if s.fallback.ShouldTriggerFallback(ctx, tid) {
		return s.runFallback(ctx, st, scope, round, fmt.Sprintf("pairing engine failed: %s", msg))
	}
	return nil, "", nil, fmt.Errorf("%w: %s: %s", ErrRoundGenerationFailed, code, msg)
}

func (s *progressionService) runFallback(ctx context.Context, st *models.ProgressionStatus, scope int, round, reason string) ([]models.MatchCreationData, models.MatchSource, []string, error) {
	candidates, err := s.fallbackCandidates(ctx, st, scope, round)
	if err != nil {
		return nil, "", nil, err
	}
	res, err := s.fallback.GenerateFallbackMatches(ctx, FallbackRequest{
		TournamentID:     st.TournamentID,
		Level:            st.CurrentLevel,
		Round:            round,
		CommunityID:      scopePointer(st.CurrentLevel, scope),
		Candidates:       candidates,
		StartMatchNumber: 1,
		IsLevelFinal:     IsFinalRound(st.CurrentLevel, round),
		DeterminesTop3:   IsFinalRound(st.CurrentLevel, round),
		Reason:           reason,
	})
	if err != nil {
		return nil, "", nil, fmt.Errorf("%w: fallback: %w", ErrRoundGenerationFailed, err)
	}
	if !res.Success {
		return nil, "", nil, fmt.Errorf("%w: %s", ErrManualInterventionRequired, strings.Join(res.Errors, "; "))
	}

	warnings := make([]string, 0, len(res.Warnings)+1)
	warnings = append(warnings, fmt.Sprintf("round %s generated by fallback (%s): %s", round, res.Method, reason))
	for _, w := range res.Warnings {
		warnings = append(warnings, "fallback: "+w)
	}
	return res.Matches, models.MatchSourceFallback, warnings, nil
}

// fallbackCandidates returns the players still in contention for a round: winners of the previous
// round (or of the previous level's final), or the roster when there is nothing to go on.
func (s *progressionService) fallbackCandidates(ctx context.Context, st *models.ProgressionStatus, scope int, round string) ([]models.Candidate, error) {
	roster, err := s.candidates.ListByTournament(ctx, st.TournamentID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster for tournament %d: %w", st.TournamentID, err)
	}
	inScope := func(c models.Candidate) bool {
		return scope == 0 || st.CurrentLevel != models.LevelCommunity || (c.CommunityID != nil && *c.CommunityID == scope)
	}

	var advancing []int
	if prev, ok := PreviousRound(st.CurrentLevel, round); ok {
		advancing, err = s.advancingPlayers(ctx, st.TournamentID, st.CurrentLevel, prev, scope, st.CurrentLevel == models.LevelCommunity)
	} else if i := st.CurrentLevel.Index(); i > 0 {
		prevLevel := models.Levels()[i-1]
		advancing, err = s.advancingPlayers(ctx, st.TournamentID, prevLevel, FinalRound(prevLevel), 0, false)
	}
	if err != nil {
		return nil, err
	}

	if len(advancing) == 0 {
		out := make([]models.Candidate, 0, len(roster))
		for _, c := range roster {
			if inScope(c) {
				out = append(out, c)
			}
		}
		return out, nil
	}

	byID := make(map[int]models.Candidate, len(roster))
	for _, c := range roster {
		byID[c.ID] = c
	}
	out := make([]models.Candidate, 0, len(advancing))
	for _, id := range advancing {
		c, ok := byID[id]
		if !ok {
			c = models.Candidate{ID: id, TournamentID: st.TournamentID, Name: fmt.Sprintf("Player %d", id), IsEligible: true, HasPaid: true}
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *progressionService) advancingPlayers(ctx context.Context, tournamentID int, level models.Level, round string, scope int, scoped bool) ([]int, error) {
	matches, err := s.matches.ListByTournamentAndRound(ctx, tournamentID, round)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches of round %s: %w", round, err)
	}
	var ids []int
	for _, m := range matches {
		if m.Level != level || (scoped && m.ScopeID() != scope) {
			continue
		}
		if id, ok := m.AdvancingPlayer(); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *progressionService) completedMatchIDs(ctx context.Context, st *models.ProgressionStatus, scope int, round string) ([]int, error) {
	prev, ok := PreviousRound(st.CurrentLevel, round)
	if !ok {
		return nil, nil
	}
	matches, err := s.matches.ListByTournamentAndRound(ctx, st.TournamentID, prev)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches of round %s: %w", prev, err)
	}
	var ids []int
	for _, m := range matches {
		if m.Level == st.CurrentLevel && m.ScopeID() == scope && m.Status.IsTerminal() {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

// fromDescriptors converts engine matches, dropping descriptors that break the one-or-two distinct
// players rule.
func (s *progressionService) fromDescriptors(ctx context.Context, st *models.ProgressionStatus, scope int, round string, descs []pairing.MatchDescriptor) ([]models.MatchCreationData, []string) {
	defaultType := s.fallback.Config(ctx, st.TournamentID).DefaultMatchType
	data := make([]models.MatchCreationData, 0, len(descs))
	var warnings []string
	for i, d := range descs {
		if d.Player1ID <= 0 || (d.Player2ID != nil && *d.Player2ID == d.Player1ID) {
			warnings = append(warnings, fmt.Sprintf("engine match %d in round %s has invalid players and was skipped", d.MatchNumber, round))
			continue
		}
		matchType := models.MatchType(d.MatchType)
		if matchType != models.MatchTypeSingles && matchType != models.MatchTypeDoubles {
			matchType = defaultType
		}
		number := d.MatchNumber
		if number <= 0 {
			number = i + 1
		}
		communityID := d.CommunityID
		if communityID == nil {
			communityID = scopePointer(st.CurrentLevel, scope)
		}
		data = append(data, models.MatchCreationData{
			TournamentID:        st.TournamentID,
			Level:               st.CurrentLevel,
			Round:               round,
			MatchNumber:         number,
			MatchType:           matchType,
			Player1ID:           d.Player1ID,
			Player2ID:           d.Player2ID,
			DeterminesPositions: append([]int(nil), d.DeterminesPositions...),
			IsLevelFinal:        d.IsLevelFinal || IsFinalRound(st.CurrentLevel, round),
			DeterminesTop3:      d.DeterminesTop3,
			IsByeMatch:          d.IsBye || d.Player2ID == nil,
			CommunityID:         communityID,
			CountyID:            d.CountyID,
			RegionID:            d.RegionID,
			Source:              models.MatchSourceEngine,
		})
	}
	return data, warnings
}

// roundComplete: at least one match and all of them terminal. scoped limits the check to one community.
func (s *progressionService) roundComplete(ctx context.Context, tournamentID int, level models.Level, round string, scope int, scoped bool) (bool, []*models.Match, error) {
	all, err := s.matches.ListByTournamentAndRound(ctx, tournamentID, round)
	if err != nil {
		return false, nil, fmt.Errorf("failed to list matches of round %s: %w", round, err)
	}
	matches := make([]*models.Match, 0, len(all))
	for _, m := range all {
		if m.Level == level && (!scoped || m.ScopeID() == scope) {
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return false, matches, nil
	}
	for _, m := range matches {
		if !m.Status.IsTerminal() {
			return false, matches, nil
		}
	}
	return true, matches, nil
}

func (s *progressionService) refreshCounters(ctx context.Context, st *models.ProgressionStatus) error {
	matches, err := s.matches.ListByTournament(ctx, st.TournamentID)
	if err != nil {
		return err
	}
	total, completed := 0, 0
	for _, m := range matches {
		if m.Level != st.CurrentLevel {
			continue
		}
		total++
		if m.Status.IsTerminal() {
			completed++
		}
	}
	st.TotalMatches, st.CompletedMatches, st.PendingMatches = total, completed, total-completed
	return nil
}

// appendError records the failure on the status and returns the matching error event.
func (s *progressionService) appendError(st *models.ProgressionStatus, code, message, round string) models.ProgressionEvent {
	now := s.sched.Now().UTC()
	st.Errors = append(st.Errors, models.ProgressionError{
		Code:      code,
		Message:   message,
		Level:     st.CurrentLevel,
		Round:     round,
		Timestamp: now,
	})
	st.State = models.StateError
	s.logger.Error("progression error",
		slog.Int("tournament_id", st.TournamentID),
		slog.String("code", code),
		slog.String("level", string(st.CurrentLevel)),
		slog.String("round", round),
		slog.String("message", message))
	return s.newEvent(st, models.EventError, round, map[string]interface{}{
		"code":    code,
		"message": message,
	})
}

func applyVenueDefaults(v *models.VenueSettings, data []models.MatchCreationData) {
	if v == nil {
		return
	}
	next := 0
	for i := range data {
		if v.DefaultVenue != "" && data[i].Venue == nil {
			venue := v.DefaultVenue
			data[i].Venue = &venue
		}
		if data[i].IsByeMatch || data[i].TableNumber != nil {
			continue
		}
		switch {
		case v.TablesAvailable > 0:
			base := v.DefaultTable
			if base <= 0 {
				base = 1
			}
			table := base + next%v.TablesAvailable
			next++
			data[i].TableNumber = &table
		case v.DefaultTable > 0:
			table := v.DefaultTable
			data[i].TableNumber = &table
		}
	}
}

// activeScopes lists the scopes that still play at the current level.
func activeScopes(st *models.ProgressionStatus) []int {
	if st.CurrentLevel != models.LevelCommunity || len(st.Communities) == 0 {
		return []int{0}
	}
	scopes := make([]int, 0, len(st.Communities))
	for _, id := range st.Communities {
		if !st.FinalizedScopes[id] {
			scopes = append(scopes, id)
		}
	}
	return scopes
}

func allScopesFinalized(st *models.ProgressionStatus) bool {
	if st.CurrentLevel != models.LevelCommunity || len(st.Communities) == 0 {
		return st.FinalizedScopes[0]
	}
	for _, id := range st.Communities {
		if !st.FinalizedScopes[id] {
			return false
		}
	}
	return true
}

func scopeRound(st *models.ProgressionStatus, scope int) string {
	if st.CurrentLevel == models.LevelCommunity && scope != 0 {
		if r, ok := st.CommunityRounds[scope]; ok {
			return r
		}
	}
	return st.CurrentRound
}

func scopePointer(level models.Level, scope int) *int {
	if level != models.LevelCommunity || scope == 0 {
		return nil
	}
	id := scope
	return &id
}

// lowestCommunityRound is the round of the least advanced community still playing.
func lowestCommunityRound(st *models.ProgressionStatus) string {
	best := -1
	for _, id := range st.Communities {
		if st.FinalizedScopes[id] {
			continue
		}
		if i := RoundIndex(st.CurrentLevel, st.CommunityRounds[id]); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	if best < 0 {
		return st.CurrentRound
	}
	return RoundsFor(st.CurrentLevel)[best]
}

func scopeMessage(scope int, err error) string {
	if scope == 0 {
		return err.Error()
	}
	return fmt.Sprintf("community %d: %v", scope, err)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
