package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/repositories"
)

const (
	DefaultMonitorInterval = 30 * time.Second
	DefaultActionDelay     = time.Second
	monitorActor           = "completion_monitor"
)

type MonitorAction string

const (
	ActionNone     MonitorAction = "none"
	ActionCheck    MonitorAction = "check"
	ActionAdvance  MonitorAction = "advance"
	ActionFinalize MonitorAction = "finalize"
	ActionSkipped  MonitorAction = "skipped"
)

type ScopeCheck struct {
	CommunityID int           `json:"community_id"`
	Round       string        `json:"round"`
	Complete    bool          `json:"complete"`
	Action      MonitorAction `json:"action"`
	Advanced    bool          `json:"advanced"`
	Error       string        `json:"error,omitempty"`
}

type MonitorTickResult struct {
	TournamentID int          `json:"tournament_id"`
	Level        models.Level `json:"level"`
	Scopes       []ScopeCheck `json:"scopes"`
	Stopped      bool         `json:"stopped"`
}

type MonitorService interface {
	// StartMonitoring returns false when the tournament is already monitored.
	StartMonitoring(ctx context.Context, tournamentID int, interval time.Duration) (bool, error)
	StopMonitoring(tournamentID int) bool
	IsMonitoring(tournamentID int) bool
	ActiveTournaments() []int
	CheckNow(ctx context.Context, tournamentID int) (*MonitorTickResult, error)
	StopAll()
	Listener() EventListener
}

type monitorEntry struct {
	ticker   Timer
	interval time.Duration
	handled  map[string]bool
}

type monitorService struct {
	progression ProgressionService
	matches     repositories.MatchRepository
	candidates  repositories.CandidateRepository
	sched       Scheduler
	logger      *slog.Logger
	actionDelay time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc

	// mu никогда не удерживается во время вызовов координатора.
	mu      sync.Mutex
	entries map[int]*monitorEntry
	running map[int]bool
}

func NewMonitorService(
	progression ProgressionService,
	matches repositories.MatchRepository,
	candidates repositories.CandidateRepository,
	sched Scheduler,
	logger *slog.Logger,
	actionDelay time.Duration,
) MonitorService {
	if actionDelay < 0 {
		actionDelay = DefaultActionDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &monitorService{
		progression: progression,
		matches:     matches,
		candidates:  candidates,
		sched:       sched,
		logger:      logger,
		actionDelay: actionDelay,
		baseCtx:     ctx,
		cancel:      cancel,
		entries:     make(map[int]*monitorEntry),
		running:     make(map[int]bool),
	}
}

func (m *monitorService) StartMonitoring(ctx context.Context, tournamentID int, interval time.Duration) (bool, error) {
	if interval == 0 {
		interval = DefaultMonitorInterval
	}
	if interval < 0 {
		return false, ErrInvalidInterval
	}
	st, err := m.progression.GetStatus(ctx, tournamentID)
	if err != nil {
		return false, err
	}
	if st.State == models.StateTournamentComplete {
		return false, ErrTournamentCompleted
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[tournamentID]; ok {
		return false, nil
	}
	entry := &monitorEntry{interval: interval, handled: make(map[string]bool)}
	entry.ticker = m.sched.Every(interval, func() { m.tick(tournamentID) })
	m.entries[tournamentID] = entry

	m.logger.Info("completion monitoring started",
		slog.Int("tournament_id", tournamentID),
		slog.Duration("interval", interval))
	return true, nil
}

func (m *monitorService) StopMonitoring(tournamentID int) bool {
	m.mu.Lock()
	entry, ok := m.entries[tournamentID]
	delete(m.entries, tournamentID)
	m.mu.Unlock()
	if !ok {
		return false
	}
	entry.ticker.Stop()
	m.logger.Info("completion monitoring stopped", slog.Int("tournament_id", tournamentID))
	return true
}

func (m *monitorService) IsMonitoring(tournamentID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[tournamentID]
	return ok
}

func (m *monitorService) ActiveTournaments() []int {
	m.mu.Lock()
	ids := make([]int, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Ints(ids)
	return ids
}

func (m *monitorService) StopAll() {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[int]*monitorEntry)
	m.mu.Unlock()
	for _, entry := range entries {
		entry.ticker.Stop()
	}
	m.cancel()
}

// Listener stops monitoring once a tournament completes.
func (m *monitorService) Listener() EventListener {
	return func(ctx context.Context, event models.ProgressionEvent) error {
		if event.Type == models.EventTournamentCompleted {
			m.StopMonitoring(event.TournamentID)
		}
		return nil
	}
}

// CheckNow runs one completion check outside of the ticker.
func (m *monitorService) CheckNow(ctx context.Context, tournamentID int) (*MonitorTickResult, error) {
	if !m.begin(tournamentID) {
		return nil, ErrCheckInProgress
	}
	defer m.end(tournamentID)
	return m.check(ctx, tournamentID)
}

func (m *monitorService) tick(tournamentID int) {
	if !m.begin(tournamentID) {
		return
	}
	defer m.end(tournamentID)

	res, err := m.check(m.baseCtx, tournamentID)
	if err != nil {
		m.logger.Error("completion check failed", slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return
	}
	for _, sc := range res.Scopes {
		if sc.Error != "" {
			m.logger.Warn("completion action failed",
				slog.Int("tournament_id", tournamentID),
				slog.Int("community_id", sc.CommunityID),
				slog.String("round", sc.Round),
				slog.String("action", string(sc.Action)),
				slog.String("error", sc.Error))
		}
	}
}

func (m *monitorService) begin(tournamentID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running[tournamentID] {
		return false
	}
	m.running[tournamentID] = true
	return true
}

func (m *monitorService) end(tournamentID int) {
	m.mu.Lock()
	delete(m.running, tournamentID)
	m.mu.Unlock()
}

func (m *monitorService) check(ctx context.Context, tournamentID int) (*MonitorTickResult, error) {
	res := &MonitorTickResult{TournamentID: tournamentID, Scopes: []ScopeCheck{}}

	st, err := m.progression.GetStatus(ctx, tournamentID)
	if errors.Is(err, ErrProgressionNotFound) {
		res.Stopped = m.StopMonitoring(tournamentID)
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	res.Level = st.CurrentLevel
	if st.State == models.StateTournamentComplete {
		res.Stopped = m.StopMonitoring(tournamentID)
		return res, nil
	}
	if !st.Config.EnableAutomation {
		return res, nil
	}

	// Раунд без матчей после ошибки генерации перезапускает координатор.
	if st.State == models.StateError {
		advanced, err := m.progression.CheckAndProgressRound(ctx, tournamentID, monitorActor)
		sc := ScopeCheck{Round: st.CurrentRound, Action: ActionCheck, Advanced: advanced}
		if err != nil {
			sc.Error = err.Error()
		}
		res.Scopes = append(res.Scopes, sc)
		return res, nil
	}

	all, err := m.matches.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches for tournament %d: %w", tournamentID, err)
	}
	byScope := make(map[int][]*models.Match)
	for _, match := range all {
		if match.Level == st.CurrentLevel {
			byScope[match.ScopeID()] = append(byScope[match.ScopeID()], match)
		}
	}
	scopes, err := m.scopes(ctx, st, byScope)
	if err != nil {
		return nil, err
	}

	autoProgress := st.Config.AutoAdvanceRounds && !st.Config.RequireManualApproval
	checked := false
	acted := 0
	for _, scope := range scopes {
		if st.FinalizedScopes[scope] {
			continue
		}
		round, matches := latestRound(st.CurrentLevel, byScope[scope])
		sc := ScopeCheck{CommunityID: scope, Round: round, Action: ActionNone}
		sc.Complete = len(matches) > 0 && allTerminal(matches) && round == scopeRound(st, scope)
		if !sc.Complete {
			res.Scopes = append(res.Scopes, sc)
			continue
		}

		key := fmt.Sprintf("%s:%d:%s", st.CurrentLevel, scope, round)
		if m.wasHandled(tournamentID, key) {
			sc.Action = ActionSkipped
			res.Scopes = append(res.Scopes, sc)
			continue
		}

		if acted > 0 {
			if err := m.sched.Sleep(ctx, m.actionDelay); err != nil {
				return res, err
			}
		}

		var advanced bool
		switch {
		case !autoProgress:
			if checked {
				sc.Action = ActionSkipped
				res.Scopes = append(res.Scopes, sc)
				continue
			}
			checked = true
			sc.Action = ActionCheck
			advanced, err = m.progression.CheckAndProgressRound(ctx, tournamentID, monitorActor)
		case anyLevelFinal(matches):
			sc.Action = ActionFinalize
			advanced, err = m.progression.FinalizeCommunity(ctx, tournamentID, scope, monitorActor)
		default:
			sc.Action = ActionAdvance
			advanced, err = m.progression.AdvanceCommunity(ctx, tournamentID, scope, monitorActor)
		}
		acted++
		sc.Advanced = advanced
		if err != nil {
			sc.Error = err.Error()
		}
		if advanced {
			m.markHandled(tournamentID, key)
		}
		res.Scopes = append(res.Scopes, sc)

		if errors.Is(err, ErrProgressionStopped) || errors.Is(err, ErrTournamentCompleted) {
			break
		}
	}
	return res, nil
}

// scopes lists community ids seen in current-level matches, or the roster's communities before any match exists.
func (m *monitorService) scopes(ctx context.Context, st *models.ProgressionStatus, byScope map[int][]*models.Match) ([]int, error) {
	ids := make([]int, 0, len(byScope))
	for id := range byScope {
		ids = append(ids, id)
	}
	if len(ids) == 0 && st.CurrentLevel == models.LevelCommunity {
		roster, err := m.candidates.ListCommunityIDs(ctx, st.TournamentID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve communities for tournament %d: %w", st.TournamentID, err)
		}
		ids = append(ids, roster...)
	}
	if len(ids) == 0 {
		ids = append(ids, 0)
	}
	sort.Ints(ids)
	return ids, nil
}

func (m *monitorService) wasHandled(tournamentID int, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[tournamentID]
	return ok && entry.handled[key]
}

func (m *monitorService) markHandled(tournamentID int, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[tournamentID]; ok {
		entry.handled[key] = true
	}
}

// latestRound returns the most advanced round among the matches and that round's matches.
func latestRound(level models.Level, matches []*models.Match) (string, []*models.Match) {
	best := -1
	round := ""
	for _, match := range matches {
		if i := RoundIndex(level, match.Round); i > best {
			best, round = i, match.Round
		}
	}
	if best < 0 {
		return "", nil
	}
	out := make([]*models.Match, 0)
	for _, match := range matches {
		if match.Round == round {
			out = append(out, match)
		}
	}
	return round, out
}

func allTerminal(matches []*models.Match) bool {
	for _, match := range matches {
		if !match.Status.IsTerminal() {
			return false
		}
	}
	return true
}

func anyLevelFinal(matches []*models.Match) bool {
	for _, match := range matches {
		if match.IsLevelFinal {
			return true
		}
	}
	return false
}
