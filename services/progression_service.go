package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/pairing"
	"github.com/Dosada05/tournament-progression/repositories"
	"golang.org/x/sync/errgroup"
)

const DefaultRecheckDelay = 5 * time.Minute

// PairingClient это контракт внешнего движка пар, который использует координатор.
type PairingClient interface {
	InitializeTournament(ctx context.Context, req pairing.InitializeRequest) *pairing.Result
	GenerateRound(ctx context.Context, req pairing.RoundRequest) *pairing.Result
	FinalizeWinners(ctx context.Context, req pairing.FinalizeRequest) *pairing.Result
	QueryPositions(ctx context.Context, req pairing.PositionsRequest) *pairing.Result
	HealthCheck(ctx context.Context) *pairing.HealthResult
}

type InitializeProgressionInput struct {
	TournamentID int                      `json:"tournament_id"`
	Config       models.ProgressionConfig `json:"config"`
	Fallback     *models.FallbackConfig   `json:"fallback,omitempty"`
	Initiator    string                   `json:"initiator"`
	Candidates   []models.Candidate       `json:"candidates,omitempty"`
}

type ProgressionOverview struct {
	Status              *models.ProgressionStatus `json:"status"`
	CurrentRoundMatches []*models.Match           `json:"current_round_matches"`
	FailureTracker      models.FailureTracker     `json:"failure_tracker"`
	FallbackConfig      models.FallbackConfig     `json:"fallback_config"`
}

type ProgressionService interface {
	InitializeProgression(ctx context.Context, in InitializeProgressionInput) (*models.ProgressionStatus, error)
	CheckAndProgressRound(ctx context.Context, tournamentID int, triggeredBy string) (bool, error)
	AdvanceToNextRound(ctx context.Context, tournamentID int, actor string) (bool, error)
	AdvanceToNextLevel(ctx context.Context, tournamentID int, actor string) (bool, error)
	CompleteTournament(ctx context.Context, tournamentID int, actor string) (bool, error)
	ApproveRound(ctx context.Context, tournamentID int, actor string) (bool, error)
	AdvanceCommunity(ctx context.Context, tournamentID, communityID int, actor string) (bool, error)
	FinalizeCommunity(ctx context.Context, tournamentID, communityID int, actor string) (bool, error)

	GetStatus(ctx context.Context, tournamentID int) (*models.ProgressionStatus, error)
	ListStatuses(ctx context.Context) ([]*models.ProgressionStatus, error)
	Overview(ctx context.Context, tournamentID int) (*ProgressionOverview, error)
	UpdateConfig(ctx context.Context, tournamentID int, cfg models.ProgressionConfig) (*models.ProgressionStatus, error)
	UpdateFallbackConfig(ctx context.Context, tournamentID int, cfg models.FallbackConfig) error
	StopProgression(ctx context.Context, tournamentID int, actor string) error
	ResetProgression(ctx context.Context, tournamentID int, level models.Level, round, actor string) (*models.ProgressionStatus, error)
	ResolveError(ctx context.Context, tournamentID int, code string) (int, error)
	QueryPositions(ctx context.Context, tournamentID int, level models.Level) (*pairing.Response, error)
	Shutdown()
}

// progressionSession сериализует операции над одним турниром.
// stateMu охраняет только stopped и таймер, поэтому Stop не ждёт сетевых вызовов.
type progressionSession struct {
	mu      sync.Mutex
	stateMu sync.Mutex
	stopped bool
	recheck Timer
}

func (sess *progressionSession) isStopped() bool {
	sess.stateMu.Lock()
	defer sess.stateMu.Unlock()
	return sess.stopped
}

type progressionService struct {
	statuses     repositories.StatusRepository
	matches      repositories.MatchRepository
	candidates   repositories.CandidateRepository
	pairing      PairingClient
	fallback     FallbackService
	events       *EventBus
	sched        Scheduler
	logger       *slog.Logger
	recheckDelay time.Duration

	mu       sync.Mutex
	sessions map[int]*progressionSession
}

func NewProgressionService(
	statuses repositories.StatusRepository,
	matches repositories.MatchRepository,
	candidates repositories.CandidateRepository,
	pairingClient PairingClient,
	fallback FallbackService,
	events *EventBus,
	sched Scheduler,
	logger *slog.Logger,
	recheckDelay time.Duration,
) ProgressionService {
	if recheckDelay <= 0 {
		recheckDelay = DefaultRecheckDelay
	}
	return &progressionService{
		statuses:     statuses,
		matches:      matches,
		candidates:   candidates,
		pairing:      pairingClient,
		fallback:     fallback,
		events:       events,
		sched:        sched,
		logger:       logger,
		recheckDelay: recheckDelay,
		sessions:     make(map[int]*progressionSession),
	}
}

func (s *progressionService) InitializeProgression(ctx context.Context, in InitializeProgressionInput) (*models.ProgressionStatus, error) {
	if in.TournamentID <= 0 {
		return nil, fmt.Errorf("%w: tournament id must be positive", ErrValidationFailed)
	}
	cfg, err := normalizeConfig(in.Config)
	if err != nil {
		return nil, err
	}
	if err := validateCandidates(in.Candidates); err != nil {
		return nil, err
	}
	fallbackCfg := models.DefaultFallbackConfig()
	if in.Fallback != nil {
		if fallbackCfg, err = ValidateFallbackConfig(*in.Fallback); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
		}
	}

	sess, err := s.acquire(in.TournamentID, true)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	if _, err := s.statuses.Get(ctx, in.TournamentID); err == nil {
		return nil, ErrAlreadyInitialized
	}

	if len(in.Candidates) > 0 {
		if err := s.candidates.UpsertBatch(ctx, in.TournamentID, in.Candidates); err != nil {
			return nil, fmt.Errorf("failed to register candidates for tournament %d: %w", in.TournamentID, err)
		}
	}
	if err := s.fallback.SetConfig(ctx, in.TournamentID, fallbackCfg); err != nil {
		return nil, err
	}
	communities, err := s.candidates.ListCommunityIDs(ctx, in.TournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve communities for tournament %d: %w", in.TournamentID, err)
	}

	now := s.sched.Now().UTC()
	first := FirstRound(models.LevelCommunity)
	st := &models.ProgressionStatus{
		TournamentID:      in.TournamentID,
		CurrentLevel:      models.LevelCommunity,
		CurrentRound:      first,
		State:             models.StateInitialized,
		IsProgressing:     true,
		StartedAt:         now,
		LastProgressionAt: now,
		InitiatedBy:       in.Initiator,
		Communities:       communities,
		Errors:            []models.ProgressionError{},
		Warnings:          []string{},
		Config:            cfg,
	}
	if len(communities) > 0 {
		st.CommunityRounds = make(map[int]string, len(communities))
		for _, id := range communities {
			st.CommunityRounds[id] = first
		}
	}
	if err := s.save(ctx, sess, st); err != nil {
		return nil, err
	}
	s.logger.Info("progression initialized",
		slog.Int("tournament_id", in.TournamentID),
		slog.String("initiated_by", in.Initiator),
		slog.Int("candidates", len(in.Candidates)),
		slog.Int("communities", len(communities)))

	if err := s.initializeEngine(ctx, sess, st, CodeEngineInitFailed, false); err != nil {
		return st.Clone(), err
	}
	if err := s.startNextRound(ctx, sess, st, activeScopes(st), in.Initiator); err != nil {
		return st.Clone(), err
	}
	return st.Clone(), nil
}

// CheckAndProgressRound returns true when the tournament moved forward.
func (s *progressionService) CheckAndProgressRound(ctx context.Context, tournamentID int, triggeredBy string) (bool, error) {
	return s.withSession(ctx, tournamentID, func(sess *progressionSession, st *models.ProgressionStatus) (bool, error) {
		if st.State == models.StateTournamentComplete || !st.Config.EnableAutomation {
			return false, nil
		}

		if attempted, err := s.retryMissingRound(ctx, sess, st, triggeredBy); attempted {
			return err == nil, err
		}

		complete, matches, err := s.roundComplete(ctx, st.TournamentID, st.CurrentLevel, st.CurrentRound, 0, false)
		if err != nil {
			return false, err
		}
		if !complete {
			if err := s.refreshCounters(ctx, st); err != nil {
				s.logger.Warn("failed to refresh match counters", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
			}
			return false, s.save(ctx, sess, st)
		}
		return s.onRoundComplete(ctx, sess, st, len(matches), triggeredBy)
	})
}

func (s *progressionService) AdvanceToNextRound(ctx context.Context, tournamentID int, actor string) (bool, error) {
	return s.withSession(ctx, tournamentID, func(sess *progressionSession, st *models.ProgressionStatus) (bool, error) {
		if st.State == models.StateTournamentComplete {
			return false, ErrTournamentCompleted
		}
		return s.advanceToNextRound(ctx, sess, st, actor)
	})
}

func (s *progressionService) AdvanceToNextLevel(ctx context.Context, tournamentID int, actor string) (bool, error) {
	return s.withSession(ctx, tournamentID, func(sess *progressionSession, st *models.ProgressionStatus) (bool, error) {
		if st.State == models.StateTournamentComplete {
			return false, ErrTournamentCompleted
		}
		return s.advanceToNextLevel(ctx, sess, st, actor)
	})
}

func (s *progressionService) CompleteTournament(ctx context.Context, tournamentID int, actor string) (bool, error) {
	return s.withSession(ctx, tournamentID, func(sess *progressionSession, st *models.ProgressionStatus) (bool, error) {
		return s.completeTournament(ctx, sess, st, actor)
	})
}

// ApproveRound advances a round that completed while manual approval was required.
func (s *progressionService) ApproveRound(ctx context.Context, tournamentID int, actor string) (bool, error) {
	return s.withSession(ctx, tournamentID, func(sess *progressionSession, st *models.ProgressionStatus) (bool, error) {
		if st.State != models.StateRoundComplete {
			return false, fmt.Errorf("%w: round %s is not awaiting approval (state %s)", ErrInvalidTransition, st.CurrentRound, st.State)
		}
		s.logger.Info("round approved",
			slog.Int("tournament_id", tournamentID),
			slog.String("round", st.CurrentRound),
			slog.String("actor", actor))
		return s.advanceToNextRound(ctx, sess, st, actor)
	})
}

// AdvanceCommunity moves a single community to its next round once its current round is over.
// Above the community level (or for community 0) it advances the whole level.
func (s *progressionService) AdvanceCommunity(ctx context.Context, tournamentID, communityID int, actor string) (bool, error) {
	return s.withSession(ctx, tournamentID, func(sess *progressionSession, st *models.ProgressionStatus) (bool, error) {
		if st.State == models.StateTournamentComplete {
			return false, ErrTournamentCompleted
		}
		if st.CurrentLevel != models.LevelCommunity || communityID == 0 || len(st.Communities) == 0 {
			complete, _, err := s.roundComplete(ctx, st.TournamentID, st.CurrentLevel, st.CurrentRound, 0, false)
			if err != nil || !complete {
				return false, err
			}
			return s.advanceToNextRound(ctx, sess, st, actor)
		}

		round, ok := st.CommunityRounds[communityID]
		if !ok {
			return false, fmt.Errorf("%w: %d", ErrUnknownCommunity, communityID)
		}
		if st.FinalizedScopes[communityID] {
			return false, nil
		}
		complete, matches, err := s.roundComplete(ctx, st.TournamentID, st.CurrentLevel, round, communityID, true)
		if err != nil || !complete {
			return false, err
		}
		next, ok := NextRound(st.CurrentLevel, round)
		if !ok {
			return s.finalizeScope(ctx, sess, st, communityID, actor)
		}

		completed := s.newEvent(st, models.EventRoundCompleted, round, map[string]interface{}{
			"community_id": communityID,
			"matches":      len(matches),
			"triggered_by": actor,
		})
		st.CommunityRounds[communityID] = next
		st.CurrentRound = lowestCommunityRound(st)
		if err := s.commit(ctx, sess, st, completed); err != nil {
			return false, err
		}
		if err := s.startNextRound(ctx, sess, st, []int{communityID}, actor); err != nil {
			return false, err
		}
		return true, nil
	})
}

// FinalizeCommunity asks the engine for the winners of a completed level final and, once every
// scope of the level is finalized, moves the tournament to the next level.
func (s *progressionService) FinalizeCommunity(ctx context.Context, tournamentID, communityID int, actor string) (bool, error) {
	return s.withSession(ctx, tournamentID, func(sess *progressionSession, st *models.ProgressionStatus) (bool, error) {
		if st.State == models.StateTournamentComplete {
			return false, ErrTournamentCompleted
		}
		scope := communityID
		if st.CurrentLevel != models.LevelCommunity || len(st.Communities) == 0 {
			scope = 0
		} else if _, ok := st.CommunityRounds[scope]; !ok {
			return false, fmt.Errorf("%w: %d", ErrUnknownCommunity, communityID)
		}
		if st.FinalizedScopes[scope] {
			return false, nil
		}
		round := scopeRound(st, scope)
		if !IsFinalRound(st.CurrentLevel, round) {
			return false, fmt.Errorf("%w: round %s is not the %s final", ErrInvalidTransition, round, st.CurrentLevel)
		}
		complete, _, err := s.roundComplete(ctx, st.TournamentID, st.CurrentLevel, round, scope, st.CurrentLevel == models.LevelCommunity)
		if err != nil || !complete {
			return false, err
		}
		return s.finalizeScope(ctx, sess, st, scope, actor)
	})
}

func (s *progressionService) GetStatus(ctx context.Context, tournamentID int) (*models.ProgressionStatus, error) {
	return s.load(ctx, tournamentID)
}

func (s *progressionService) ListStatuses(ctx context.Context) ([]*models.ProgressionStatus, error) {
	return s.statuses.List(ctx)
}

// Overview loads status, matches and the failure tracker concurrently.
func (s *progressionService) Overview(ctx context.Context, tournamentID int) (*ProgressionOverview, error) {
	var (
		st      *models.ProgressionStatus
		matches []*models.Match
		tracker models.FailureTracker
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		st, err = s.load(gctx, tournamentID)
		return err
	})
	g.Go(func() error {
		var err error
		matches, err = s.matches.ListByTournament(gctx, tournamentID)
		return err
	})
	g.Go(func() error {
		var err error
		tracker, err = s.fallback.Tracker(gctx, tournamentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	current := make([]*models.Match, 0)
	for _, m := range matches {
		if m.Level == st.CurrentLevel && m.Round == scopeRound(st, m.ScopeID()) {
			current = append(current, m)
		}
	}
	return &ProgressionOverview{
		Status:              st,
		CurrentRoundMatches: current,
		FailureTracker:      tracker,
		FallbackConfig:      s.fallback.Config(ctx, tournamentID),
	}, nil
}

func (s *progressionService) UpdateConfig(ctx context.Context, tournamentID int, cfg models.ProgressionConfig) (*models.ProgressionStatus, error) {
	cfg, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}
	var updated *models.ProgressionStatus
	_, err = s.withSession(ctx, tournamentID, func(sess *progressionSession, st *models.ProgressionStatus) (bool, error) {
		st.Config = cfg
		if !cfg.AutoAdvanceRounds || !cfg.EnableAutomation {
			s.clearRecheck(sess)
		}
		if err := s.save(ctx, sess, st); err != nil {
			return false, err
		}
		updated = st.Clone()
		return true, nil
	})
	return updated, err
}

func (s *progressionService) UpdateFallbackConfig(ctx context.Context, tournamentID int, cfg models.FallbackConfig) error {
	_, err := s.withSession(ctx, tournamentID, func(sess *progressionSession, st *models.ProgressionStatus) (bool, error) {
		if err := s.fallback.SetConfig(ctx, tournamentID, cfg); err != nil {
			return false, err
		}
		// Stop мог пройти во время записи: не оставляем настройки остановленного турнира
		if err := s.checkStopped(sess); err != nil {
			s.fallback.Forget(ctx, tournamentID)
			return false, err
		}
		return true, nil
	})
	return err
}

// StopProgression does not wait for in-flight operations; their results are discarded.
func (s *progressionService) StopProgression(ctx context.Context, tournamentID int, actor string) error {
	// Сессия остаётся в map помеченной как остановленная, пока статус не удалён:
	// иначе параллельный вызов поднял бы новую сессию из ещё не удалённого статуса.
	s.mu.Lock()
	sess, existed := s.sessions[tournamentID]
	if !existed {
		sess = &progressionSession{}
		s.sessions[tournamentID] = sess
	}
	s.mu.Unlock()

	sess.stateMu.Lock()
	sess.stopped = true
	if sess.recheck != nil {
		sess.recheck.Stop()
		sess.recheck = nil
	}
	err := s.statuses.Delete(ctx, tournamentID)
	sess.stateMu.Unlock()

	s.mu.Lock()
	if s.sessions[tournamentID] == sess {
		delete(s.sessions, tournamentID)
	}
	s.mu.Unlock()

	if errors.Is(err, repositories.ErrStatusNotFound) {
		if !existed {
			return ErrProgressionNotFound
		}
		err = nil
	}
	if err != nil {
		return fmt.Errorf("failed to remove progression status for tournament %d: %w", tournamentID, err)
	}

	s.fallback.Forget(ctx, tournamentID)
	s.logger.Info("progression stopped", slog.Int("tournament_id", tournamentID), slog.String("actor", actor))
	return nil
}

// ResetProgression is the only way to move a tournament backwards.
func (s *progressionService) ResetProgression(ctx context.Context, tournamentID int, level models.Level, round, actor string) (*models.ProgressionStatus, error) {
	round, err := ResolveRound(level, round)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	var updated *models.ProgressionStatus
	_, err = s.withSession(ctx, tournamentID, func(sess *progressionSession, st *models.ProgressionStatus) (bool, error) {
		s.clearRecheck(sess)

		st.CurrentLevel = level
		st.CurrentRound = round
		st.State = models.StateRoundInProgress
		st.IsProgressing = true
		st.CompletedAt = nil
		st.FinalizedScopes = nil
		st.Communities = nil
		st.CommunityRounds = nil
		if level == models.LevelCommunity {
			ids, err := s.candidates.ListCommunityIDs(ctx, tournamentID)
			if err != nil {
				return false, fmt.Errorf("failed to resolve communities for tournament %d: %w", tournamentID, err)
			}
			st.Communities = ids
			if len(ids) > 0 {
				st.CommunityRounds = make(map[int]string, len(ids))
				for _, id := range ids {
					st.CommunityRounds[id] = round
				}
			}
		}
		if err := s.refreshCounters(ctx, st); err != nil {
			return false, err
		}
		st.LastProgressionAt = s.sched.Now().UTC()
		st.Warnings = append(st.Warnings, fmt.Sprintf("progression reset to %s/%s by %s", level, round, actor))
		if err := s.save(ctx, sess, st); err != nil {
			return false, err
		}
		if st.Config.EnableAutomation && st.Config.AutoAdvanceRounds {
			s.armRecheck(sess, tournamentID)
		}
		s.logger.Warn("progression reset",
			slog.Int("tournament_id", tournamentID),
			slog.String("level", string(level)),
			slog.String("round", round),
			slog.String("actor", actor))
		updated = st.Clone()
		return true, nil
	})
	return updated, err
}

// ResolveError marks unresolved errors with the given code (all of them for an empty code) as resolved.
func (s *progressionService) ResolveError(ctx context.Context, tournamentID int, code string) (int, error) {
	resolved := 0
	_, err := s.withSession(ctx, tournamentID, func(sess *progressionSession, st *models.ProgressionStatus) (bool, error) {
		resolved = resolveErrors(st, code)
		if st.State == models.StateError && st.UnresolvedErrors() == 0 {
			st.State = models.StateRoundInProgress
		}
		return resolved > 0, s.save(ctx, sess, st)
	})
	return resolved, err
}

func (s *progressionService) QueryPositions(ctx context.Context, tournamentID int, level models.Level) (*pairing.Response, error) {
	if tournamentID <= 0 {
		return nil, fmt.Errorf("%w: tournament id must be positive", ErrValidationFailed)
	}
	if level != "" && !level.IsValid() {
		return nil, fmt.Errorf("%w: %w: %q", ErrValidationFailed, ErrInvalidLevel, level)
	}
	res := s.pairing.QueryPositions(ctx, pairing.PositionsRequest{TournamentID: tournamentID, Level: level})
	if !res.Success {
		return nil, fmt.Errorf("%w: %s: %s", ErrEngineRequestFailed, res.ErrorCode, res.Message)
	}
	return res.Response, nil
}

// Shutdown cancels every pending re-check timer. Statuses are kept.
func (s *progressionService) Shutdown() {
	s.mu.Lock()
	sessions := make([]*progressionSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		s.clearRecheck(sess)
	}
}

func (s *progressionService) acquire(tournamentID int, create bool) (*progressionSession, error) {
	s.mu.Lock()
	sess, ok := s.sessions[tournamentID]
	if !ok {
		if !create {
			s.mu.Unlock()
			return nil, ErrProgressionNotFound
		}
		sess = &progressionSession{}
		s.sessions[tournamentID] = sess
	}
	s.mu.Unlock()

	sess.mu.Lock()
	if sess.isStopped() {
		sess.mu.Unlock()
		return nil, ErrProgressionStopped
	}
	return sess, nil
}

func (s *progressionService) withSession(
	ctx context.Context,
	tournamentID int,
	fn func(sess *progressionSession, st *models.ProgressionStatus) (bool, error),
) (bool, error) {
	sess, err := s.acquire(tournamentID, false)
	if errors.Is(err, ErrProgressionNotFound) {
		// статус мог пережить рестарт процесса: поднимаем сессию заново
		if _, lerr := s.load(ctx, tournamentID); lerr != nil {
			return false, lerr
		}
		sess, err = s.acquire(tournamentID, true)
	}
	if err != nil {
		return false, err
	}
	defer sess.mu.Unlock()

	st, err := s.load(ctx, tournamentID)
	if err != nil {
		return false, err
	}
	return fn(sess, st)
}

func (s *progressionService) load(ctx context.Context, tournamentID int) (*models.ProgressionStatus, error) {
	st, err := s.statuses.Get(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrStatusNotFound) {
			return nil, ErrProgressionNotFound
		}
		return nil, fmt.Errorf("failed to load progression status for tournament %d: %w", tournamentID, err)
	}
	return st, nil
}

// save refuses to write once the tournament has been stopped.
func (s *progressionService) save(ctx context.Context, sess *progressionSession, st *models.ProgressionStatus) error {
	sess.stateMu.Lock()
	defer sess.stateMu.Unlock()
	if sess.stopped {
		return ErrProgressionStopped
	}
	return s.statuses.Save(ctx, st)
}

// commit saves the status and then publishes the events produced by the step.
func (s *progressionService) commit(ctx context.Context, sess *progressionSession, st *models.ProgressionStatus, events ...models.ProgressionEvent) error {
	if err := s.save(ctx, sess, st); err != nil {
		return err
	}
	for _, e := range events {
		s.events.Publish(ctx, e)
	}
	return nil
}

func (s *progressionService) checkStopped(sess *progressionSession) error {
	if sess.isStopped() {
		return ErrProgressionStopped
	}
	return nil
}

func (s *progressionService) newEvent(st *models.ProgressionStatus, eventType models.EventType, round string, payload map[string]interface{}) models.ProgressionEvent {
	return models.ProgressionEvent{
		Type:         eventType,
		TournamentID: st.TournamentID,
		Level:        st.CurrentLevel,
		Round:        round,
		Payload:      payload,
		Timestamp:    s.sched.Now().UTC(),
	}
}

func (s *progressionService) armRecheck(sess *progressionSession, tournamentID int) {
	sess.stateMu.Lock()
	defer sess.stateMu.Unlock()
	if sess.stopped {
		return
	}
	if sess.recheck != nil {
		sess.recheck.Stop()
	}
	sess.recheck = s.sched.AfterFunc(s.recheckDelay, func() {
		if _, err := s.CheckAndProgressRound(context.Background(), tournamentID, "recheck_timer"); err != nil &&
			!errors.Is(err, ErrProgressionStopped) && !errors.Is(err, ErrProgressionNotFound) {
			s.logger.Error("scheduled progression check failed", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		}
	})
}

func (s *progressionService) clearRecheck(sess *progressionSession) {
	sess.stateMu.Lock()
	defer sess.stateMu.Unlock()
	if sess.recheck != nil {
		sess.recheck.Stop()
		sess.recheck = nil
	}
}

func normalizeConfig(cfg models.ProgressionConfig) (models.ProgressionConfig, error) {
	switch cfg.SchedulingPreference {
	case "":
		cfg.SchedulingPreference = models.SchedulingBalanced
	case models.SchedulingImmediate, models.SchedulingBalanced, models.SchedulingWeekends:
	default:
		return cfg, fmt.Errorf("%w: unknown scheduling preference %q", ErrValidationFailed, cfg.SchedulingPreference)
	}
	if v := cfg.VenueSettings; v != nil && (v.DefaultTable < 0 || v.TablesAvailable < 0) {
		return cfg, fmt.Errorf("%w: venue table settings must not be negative", ErrValidationFailed)
	}
	cfg.AdminEmails = append([]string(nil), cfg.AdminEmails...)
	return cfg, nil
}

// validateCandidates only applies when a roster is supplied.
func validateCandidates(candidates []models.Candidate) error {
	if len(candidates) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(candidates))
	pairable := 0
	for _, c := range candidates {
		if c.ID <= 0 {
			return fmt.Errorf("%w: candidate id must be positive", ErrValidationFailed)
		}
		if seen[c.ID] {
			return fmt.Errorf("%w: %w: %d", ErrValidationFailed, ErrDuplicateCandidate, c.ID)
		}
		seen[c.ID] = true
		if c.CanBePaired() {
			pairable++
		}
	}
	if pairable < 2 {
		return fmt.Errorf("%w: %w (have %d)", ErrValidationFailed, ErrInsufficientPlayers, pairable)
	}
	return nil
}

func resolveErrors(st *models.ProgressionStatus, codes ...string) int {
	n := 0
	for i := range st.Errors {
		if st.Errors[i].Resolved {
			continue
		}
		for _, code := range codes {
			if code == "" || st.Errors[i].Code == code {
				st.Errors[i].Resolved = true
				n++
				break
			}
		}
	}
	return n
}

func hasUnresolved(st *models.ProgressionStatus, codes ...string) bool {
	for _, e := range st.Errors {
		if e.Resolved {
			continue
		}
		for _, code := range codes {
			if e.Code == code {
				return true
			}
		}
	}
	return false
}
