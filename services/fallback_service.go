package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Dosada05/tournament-progression/brackets"
	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/repositories"
)

type FallbackRequest struct {
	TournamentID     int
	Level            models.Level
	Round            string
	CommunityID      *int
	Candidates       []models.Candidate
	StartMatchNumber int
	IsLevelFinal     bool
	DeterminesTop3   bool
	Reason           string
}

type FallbackService interface {
	SetConfig(ctx context.Context, tournamentID int, cfg models.FallbackConfig) error
	Config(ctx context.Context, tournamentID int) models.FallbackConfig
	ShouldTriggerFallback(ctx context.Context, tournamentID int) bool
	RecordFailure(ctx context.Context, tournamentID int) (int, error)
	RecordSuccess(ctx context.Context, tournamentID int) error
	Tracker(ctx context.Context, tournamentID int) (models.FailureTracker, error)
	GenerateFallbackMatches(ctx context.Context, req FallbackRequest) (*brackets.PairingResult, error)
	Forget(ctx context.Context, tournamentID int)
}

// fallbackService держит настройки в репозитории, map служит только кэшем процесса.
type fallbackService struct {
	mu       sync.RWMutex
	cache    map[int]models.FallbackConfig
	configs  repositories.FallbackConfigRepository
	failures repositories.FailureStore
	notifier AdminNotifier
	shuffler brackets.Shuffler
	sched    Scheduler
	logger   *slog.Logger
}

func NewFallbackService(
	configs repositories.FallbackConfigRepository,
	failures repositories.FailureStore,
	notifier AdminNotifier,
	shuffler brackets.Shuffler,
	sched Scheduler,
	logger *slog.Logger,
) FallbackService {
	if notifier == nil {
		notifier = NewNoopNotifier()
	}
	if shuffler == nil {
		shuffler = brackets.NewRandomShuffler()
	}
	return &fallbackService{
		cache:    make(map[int]models.FallbackConfig),
		configs:  configs,
		failures: failures,
		notifier: notifier,
		shuffler: shuffler,
		sched:    sched,
		logger:   logger,
	}
}

// ValidateFallbackConfig fills zero values with defaults and rejects unusable settings.
func ValidateFallbackConfig(cfg models.FallbackConfig) (models.FallbackConfig, error) {
	def := models.DefaultFallbackConfig()
	if cfg.FallbackStrategy == "" {
		cfg.FallbackStrategy = def.FallbackStrategy
	}
	if !cfg.FallbackStrategy.IsValid() {
		return cfg, fmt.Errorf("%w: unknown strategy %q", ErrInvalidFallbackConfig, cfg.FallbackStrategy)
	}
	if cfg.TriggerThreshold < 0 {
		return cfg, fmt.Errorf("%w: trigger threshold must not be negative", ErrInvalidFallbackConfig)
	}
	if cfg.TriggerThreshold == 0 {
		cfg.TriggerThreshold = def.TriggerThreshold
	}
	if cfg.MaxPlayersPerMatch == 0 {
		cfg.MaxPlayersPerMatch = def.MaxPlayersPerMatch
	}
	if cfg.MaxPlayersPerMatch != 2 {
		return cfg, fmt.Errorf("%w: only two-player matches can be generated, got %d", ErrInvalidFallbackConfig, cfg.MaxPlayersPerMatch)
	}
	switch cfg.DefaultMatchType {
	case "":
		cfg.DefaultMatchType = def.DefaultMatchType
	case models.MatchTypeSingles, models.MatchTypeDoubles:
	default:
		return cfg, fmt.Errorf("%w: unknown match type %q", ErrInvalidFallbackConfig, cfg.DefaultMatchType)
	}
	return cfg, nil
}

func (s *fallbackService) SetConfig(ctx context.Context, tournamentID int, cfg models.FallbackConfig) error {
	cfg, err := ValidateFallbackConfig(cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	if err := s.configs.Save(ctx, tournamentID, cfg); err != nil {
		return fmt.Errorf("failed to save fallback config for tournament %d: %w", tournamentID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[tournamentID] = cfg
	return nil
}

// Config returns the stored settings, the defaults for a tournament that never had any, and a
// disabled config when the store cannot be read.
func (s *fallbackService) Config(ctx context.Context, tournamentID int) models.FallbackConfig {
	s.mu.RLock()
	cfg, ok := s.cache[tournamentID]
	s.mu.RUnlock()
	if ok {
		cfg.AdminEmails = append([]string(nil), cfg.AdminEmails...)
		return cfg
	}

	cfg, err := s.configs.Get(ctx, tournamentID)
	switch {
	case errors.Is(err, repositories.ErrFallbackConfigNotFound):
		return models.DefaultFallbackConfig()
	case err != nil:
		s.logger.Warn("could not read fallback config, fallback disabled for this call",
			slog.Int("tournament_id", tournamentID),
			slog.Any("error", err))
		cfg = models.DefaultFallbackConfig()
		cfg.Enabled = false
		return cfg
	}
	s.mu.Lock()
	s.cache[tournamentID] = cfg
	s.mu.Unlock()
	cfg.AdminEmails = append([]string(nil), cfg.AdminEmails...)
	return cfg
}

func (s *fallbackService) ShouldTriggerFallback(ctx context.Context, tournamentID int) bool {
	cfg := s.Config(ctx, tournamentID)
	if !cfg.Enabled {
		return false
	}
	tracker, err := s.failures.Get(ctx, tournamentID)
	if err != nil {
		s.logger.Warn("could not read failure tracker", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return false
	}
	return tracker.ConsecutiveFailures >= cfg.TriggerThreshold
}

func (s *fallbackService) RecordFailure(ctx context.Context, tournamentID int) (int, error) {
	n, err := s.failures.Increment(ctx, tournamentID)
	if err != nil {
		return 0, err
	}
	s.logger.Warn("pairing engine failure recorded",
		slog.Int("tournament_id", tournamentID),
		slog.Int("consecutive_failures", n))
	return n, nil
}

func (s *fallbackService) RecordSuccess(ctx context.Context, tournamentID int) error {
	return s.failures.Reset(ctx, tournamentID)
}

func (s *fallbackService) Tracker(ctx context.Context, tournamentID int) (models.FailureTracker, error) {
	return s.failures.Get(ctx, tournamentID)
}

func (s *fallbackService) Forget(ctx context.Context, tournamentID int) {
	s.mu.Lock()
	delete(s.cache, tournamentID)
	s.mu.Unlock()
	if err := s.configs.Delete(ctx, tournamentID); err != nil && !errors.Is(err, repositories.ErrFallbackConfigNotFound) {
		s.logger.Warn("failed to drop fallback config", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
	}
	if err := s.failures.Delete(ctx, tournamentID); err != nil {
		s.logger.Warn("failed to drop failure tracker", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
	}
}

// GenerateFallbackMatches runs the configured strategy. It does not decide whether fallback is due; callers do.
func (s *fallbackService) GenerateFallbackMatches(ctx context.Context, req FallbackRequest) (*brackets.PairingResult, error) {
	cfg := s.Config(ctx, req.TournamentID)
	if !cfg.Enabled {
		return nil, ErrFallbackDisabled
	}
	generator := brackets.NewGenerator(cfg.FallbackStrategy, s.shuffler)
	if generator == nil {
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidFallbackConfig, cfg.FallbackStrategy)
	}

	result, err := generator.GeneratePairings(ctx, brackets.GeneratePairingsParams{
		TournamentID:     req.TournamentID,
		Level:            req.Level,
		Round:            req.Round,
		Candidates:       req.Candidates,
		MatchType:        cfg.DefaultMatchType,
		StartMatchNumber: req.StartMatchNumber,
		IsLevelFinal:     req.IsLevelFinal,
		DeterminesTop3:   req.DeterminesTop3,
		DefaultCommunity: req.CommunityID,
	})
	if err != nil {
		if errors.Is(err, brackets.ErrNotEnoughCandidates) {
			return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
		}
		return nil, fmt.Errorf("fallback strategy %s failed: %w", cfg.FallbackStrategy, err)
	}

	if err := s.failures.MarkFallbackUsed(ctx, req.TournamentID, s.sched.Now()); err != nil {
		s.logger.Warn("failed to record fallback use", slog.Int("tournament_id", req.TournamentID), slog.Any("error", err))
	}
	s.logger.Info("fallback pairings generated",
		slog.Int("tournament_id", req.TournamentID),
		slog.String("level", string(req.Level)),
		slog.String("round", req.Round),
		slog.String("method", string(result.Method)),
		slog.Int("matches", len(result.Matches)),
		slog.Int("warnings", len(result.Warnings)))

	if cfg.NotifyAdmins && len(cfg.AdminEmails) > 0 {
		s.notifyAdmins(ctx, cfg, req, result)
	}
	return result, nil
}

// notifyAdmins is best-effort: a delivery failure is logged and never fails the pairing.
func (s *fallbackService) notifyAdmins(ctx context.Context, cfg models.FallbackConfig, req FallbackRequest, result *brackets.PairingResult) {
	subject := fmt.Sprintf("Tournament %d: fallback pairing used for %s %s", req.TournamentID, req.Level, req.Round)
	var body strings.Builder
	fmt.Fprintf(&body, "The pairing engine could not be used for tournament %d (%s).\n", req.TournamentID, req.Reason)
	fmt.Fprintf(&body, "Strategy: %s. Matches generated: %d. All of them require manual review.\n", result.Method, len(result.Matches))
	for _, w := range result.Warnings {
		fmt.Fprintf(&body, "Warning: %s\n", w)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(&body, "Error: %s\n", e)
	}
	if err := s.notifier.NotifyAdmins(ctx, cfg.AdminEmails, subject, body.String()); err != nil {
		s.logger.Warn("admin notification failed",
			slog.Int("tournament_id", req.TournamentID),
			slog.Any("error", err))
	}
}
