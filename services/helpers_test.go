package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/tournament-progression/brackets"
	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/pairing"
	"github.com/Dosada05/tournament-progression/repositories"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intPtr(v int) *int { return &v }

// --- scheduler ---

type fakeTimer struct {
	sched    *fakeScheduler
	delay    time.Duration
	f        func()
	periodic bool
	stopped  bool
}

func (t *fakeTimer) Stop() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeScheduler struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	sleeps []time.Duration
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return s.add(d, f, false)
}

func (s *fakeScheduler) Every(d time.Duration, f func()) Timer {
	return s.add(d, f, true)
}

func (s *fakeScheduler) add(d time.Duration, f func(), periodic bool) *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{sched: s, delay: d, f: f, periodic: periodic}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *fakeScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *fakeScheduler) active(periodic bool) []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && t.periodic == periodic {
			out = append(out, t)
		}
	}
	return out
}

// fireDelayed runs every pending one-shot timer once, outside the scheduler lock.
func (s *fakeScheduler) fireDelayed() int {
	due := s.active(false)
	s.mu.Lock()
	for _, t := range due {
		t.stopped = true
	}
	s.mu.Unlock()
	for _, t := range due {
		t.f()
	}
	return len(due)
}

func (s *fakeScheduler) tick() int {
	due := s.active(true)
	for _, t := range due {
		t.f()
	}
	return len(due)
}

// --- pairing engine ---

type fakePairing struct {
	mu sync.Mutex

	healthy   bool
	initFn    func(req pairing.InitializeRequest) *pairing.Result
	roundFn   func(req pairing.RoundRequest) *pairing.Result
	finalize  func(req pairing.FinalizeRequest) *pairing.Result
	positions *pairing.Result

	initCalls     []pairing.InitializeRequest
	roundCalls    []pairing.RoundRequest
	finalizeCalls []pairing.FinalizeRequest
	healthCalls   int

	// onRound runs after a round request is recorded; tests use it to simulate concurrent operations.
	onRound func()
}

func newFakePairing() *fakePairing {
	return &fakePairing{healthy: true}
}

func (p *fakePairing) InitializeTournament(ctx context.Context, req pairing.InitializeRequest) *pairing.Result {
	p.mu.Lock()
	p.initCalls = append(p.initCalls, req)
	fn := p.initFn
	p.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return &pairing.Result{Success: true, Response: &pairing.Response{Success: true, TournamentID: req.TournamentID}, Attempts: 1}
}

func (p *fakePairing) GenerateRound(ctx context.Context, req pairing.RoundRequest) *pairing.Result {
	p.mu.Lock()
	p.roundCalls = append(p.roundCalls, req)
	fn, hook := p.roundFn, p.onRound
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	if fn != nil {
		return fn(req)
	}
	return &pairing.Result{ErrorCode: pairing.ErrCodeEngineFailure, Message: "no round configured"}
}

func (p *fakePairing) FinalizeWinners(ctx context.Context, req pairing.FinalizeRequest) *pairing.Result {
	p.mu.Lock()
	p.finalizeCalls = append(p.finalizeCalls, req)
	fn := p.finalize
	p.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return &pairing.Result{Success: true, Response: &pairing.Response{Success: true, TournamentID: req.TournamentID}}
}

func (p *fakePairing) QueryPositions(ctx context.Context, req pairing.PositionsRequest) *pairing.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.positions != nil {
		return p.positions
	}
	return &pairing.Result{Success: true, Response: &pairing.Response{Success: true, TournamentID: req.TournamentID}}
}

func (p *fakePairing) HealthCheck(ctx context.Context) *pairing.HealthResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthCalls++
	if p.healthy {
		return &pairing.HealthResult{Healthy: true, Message: "ok"}
	}
	return &pairing.HealthResult{Healthy: false, Message: "engine down"}
}

func (p *fakePairing) roundRequests() []pairing.RoundRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pairing.RoundRequest(nil), p.roundCalls...)
}

func (p *fakePairing) setRound(fn func(req pairing.RoundRequest) *pairing.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.roundFn = fn
}

// pairsRound answers every round request with the given player pairs; 0 as second id means a bye.
func pairsRound(pairs ...[2]int) func(req pairing.RoundRequest) *pairing.Result {
	return func(req pairing.RoundRequest) *pairing.Result {
		descs := make([]pairing.MatchDescriptor, 0, len(pairs))
		for i, pr := range pairs {
			d := pairing.MatchDescriptor{MatchNumber: i + 1, Player1ID: pr[0]}
			if pr[1] != 0 {
				d.Player2ID = intPtr(pr[1])
			} else {
				d.IsBye = true
			}
			descs = append(descs, d)
		}
		return &pairing.Result{Success: true, Response: &pairing.Response{Success: true, TournamentID: req.TournamentID, Matches: descs}}
	}
}

func failingRound(code, msg string) func(req pairing.RoundRequest) *pairing.Result {
	return func(req pairing.RoundRequest) *pairing.Result {
		return &pairing.Result{ErrorCode: code, Message: msg, Transport: true, Attempts: 3}
	}
}

// --- match store ---

type fakeMatchRepo struct {
	mu      sync.Mutex
	nextID  int
	matches map[int]*models.Match
	failOn  error
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{matches: make(map[int]*models.Match)}
}

func (r *fakeMatchRepo) CreateBatch(ctx context.Context, data []models.MatchCreationData, actor string) ([]*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn != nil {
		return nil, r.failOn
	}
	out := make([]*models.Match, 0, len(data))
	for _, d := range data {
		r.nextID++
		m := &models.Match{ID: r.nextID, MatchCreationData: d, Status: models.MatchStatusPending, CreatedBy: actor}
		if d.IsByeMatch {
			m.Status = models.MatchStatusCompleted
			m.WinnerID = intPtr(d.Player1ID)
		}
		r.matches[m.ID] = m
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeMatchRepo) GetByID(ctx context.Context, id int) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMatchRepo) ListByTournamentAndRound(ctx context.Context, tournamentID int, round string) ([]*models.Match, error) {
	return r.filter(func(m *models.Match) bool { return m.TournamentID == tournamentID && m.Round == round }), nil
}

func (r *fakeMatchRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	return r.filter(func(m *models.Match) bool { return m.TournamentID == tournamentID }), nil
}

func (r *fakeMatchRepo) UpdateStatus(ctx context.Context, id int, status models.MatchStatus, winnerID *int) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	if !status.IsValid() {
		return nil, repositories.ErrMatchInvalidStatus
	}
	if winnerID != nil && *winnerID != m.Player1ID && (m.Player2ID == nil || *winnerID != *m.Player2ID) {
		return nil, repositories.ErrMatchWinnerNotPlaying
	}
	m.Status = status
	m.WinnerID = winnerID
	cp := *m
	return &cp, nil
}

func (r *fakeMatchRepo) filter(keep func(m *models.Match) bool) []*models.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Match, 0)
	for _, m := range r.matches {
		if keep(m) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// completeRound marks every open match of the round as won by player 1.
func (r *fakeMatchRepo) completeRound(tournamentID int, round string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.matches {
		if m.TournamentID == tournamentID && m.Round == round && !m.Status.IsTerminal() {
			m.Status = models.MatchStatusCompleted
			m.WinnerID = intPtr(m.Player1ID)
			n++
		}
	}
	return n
}

func (r *fakeMatchRepo) completeCommunity(tournamentID int, round string, communityID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.matches {
		if m.TournamentID == tournamentID && m.Round == round && m.ScopeID() == communityID && !m.Status.IsTerminal() {
			m.Status = models.MatchStatusCompleted
			m.WinnerID = intPtr(m.Player1ID)
			n++
		}
	}
	return n
}

func (r *fakeMatchRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matches)
}

// --- candidate roster ---

type fakeCandidateRepo struct {
	mu     sync.Mutex
	roster map[int][]models.Candidate
}

func newFakeCandidateRepo() *fakeCandidateRepo {
	return &fakeCandidateRepo{roster: make(map[int][]models.Candidate)}
}

func (r *fakeCandidateRepo) UpsertBatch(ctx context.Context, tournamentID int, candidates []models.Candidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range candidates {
		c.TournamentID = tournamentID
		r.roster[tournamentID] = append(r.roster[tournamentID], c)
	}
	return nil
}

func (r *fakeCandidateRepo) ListByTournament(ctx context.Context, tournamentID int, communityID *int) ([]models.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Candidate, 0)
	for _, c := range r.roster[tournamentID] {
		if communityID == nil || (c.CommunityID != nil && *c.CommunityID == *communityID) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Points > out[j].Points })
	return out, nil
}

func (r *fakeCandidateRepo) ListCommunityIDs(ctx context.Context, tournamentID int) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[int]bool)
	ids := make([]int, 0)
	for _, c := range r.roster[tournamentID] {
		if c.CommunityID != nil && !seen[*c.CommunityID] {
			seen[*c.CommunityID] = true
			ids = append(ids, *c.CommunityID)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

// --- notifier ---

type sentNotification struct {
	emails  []string
	subject string
	body    string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *fakeNotifier) NotifyAdmins(ctx context.Context, emails []string, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{emails: emails, subject: subject, body: body})
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// --- wiring ---

type identityShuffler struct{}

func (identityShuffler) Shuffle(n int, swap func(i, j int)) {}

type harness struct {
	sched      *fakeScheduler
	engine     *fakePairing
	matches    *fakeMatchRepo
	candidates *fakeCandidateRepo
	statuses   repositories.StatusRepository
	fbConfigs  repositories.FallbackConfigRepository
	failures   repositories.FailureStore
	notifier   *fakeNotifier
	fallback   FallbackService
	bus        *EventBus
	svc        ProgressionService

	evMu   sync.Mutex
	events []models.ProgressionEvent
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		sched:      newFakeScheduler(),
		engine:     newFakePairing(),
		matches:    newFakeMatchRepo(),
		candidates: newFakeCandidateRepo(),
		statuses:   repositories.NewMemoryStatusRepository(),
		fbConfigs:  repositories.NewMemoryFallbackConfigRepository(),
		failures:   repositories.NewMemoryFailureStore(),
		notifier:   &fakeNotifier{},
	}
	logger := discardLogger()
	h.fallback = NewFallbackService(h.fbConfigs, h.failures, h.notifier, identityShuffler{}, h.sched, logger)
	h.bus = NewEventBus(logger)
	h.bus.Subscribe(func(ctx context.Context, e models.ProgressionEvent) error {
		h.evMu.Lock()
		defer h.evMu.Unlock()
		h.events = append(h.events, e)
		return nil
	})
	h.svc = NewProgressionService(h.statuses, h.matches, h.candidates, h.engine, h.fallback, h.bus, h.sched, logger, time.Minute)
	t.Cleanup(h.svc.Shutdown)
	return h
}

func (h *harness) eventsOf(eventType models.EventType) []models.ProgressionEvent {
	h.evMu.Lock()
	defer h.evMu.Unlock()
	var out []models.ProgressionEvent
	for _, e := range h.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func autoConfig() models.ProgressionConfig {
	return models.ProgressionConfig{
		EnableAutomation:     true,
		AutoAdvanceRounds:    true,
		SchedulingPreference: models.SchedulingImmediate,
	}
}

func roster(ids ...int) []models.Candidate {
	out := make([]models.Candidate, 0, len(ids))
	for i, id := range ids {
		out = append(out, models.Candidate{ID: id, Name: "P", Points: 100 - i*10, IsEligible: true, HasPaid: true})
	}
	return out
}

var _ brackets.Shuffler = identityShuffler{}
