package brackets

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/Dosada05/tournament-progression/models"
)

// Shuffler перемешивает срез на месте. В тестах подменяется детерминированной реализацией.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (l *lockedRand) Shuffle(n int, swap func(i, j int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rnd.Shuffle(n, swap)
}

// NewRandomShuffler returns a goroutine-safe shuffler seeded from the clock.
func NewRandomShuffler() Shuffler {
	return &lockedRand{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

type SimplePairingGenerator struct {
	shuffler Shuffler
}

func NewSimplePairingGenerator(shuffler Shuffler) *SimplePairingGenerator {
	if shuffler == nil {
		shuffler = NewRandomShuffler()
	}
	return &SimplePairingGenerator{shuffler: shuffler}
}

func (g *SimplePairingGenerator) GetName() models.FallbackStrategy {
	return models.StrategySimplePairing
}

// GeneratePairings shuffles the pool and pairs neighbours. An odd player out gets a bye.
func (g *SimplePairingGenerator) GeneratePairings(ctx context.Context, params GeneratePairingsParams) (*PairingResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pool := pairable(params.Candidates)
	if len(pool) < 2 {
		return nil, fmt.Errorf("%w: have %d", ErrNotEnoughCandidates, len(pool))
	}

	g.shuffler.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	result := &PairingResult{
		Success:              true,
		Method:               g.GetName(),
		RequiresManualReview: true,
	}
	number := startNumber(params)
	for i := 0; i+1 < len(pool); i += 2 {
		p2 := pool[i+1]
		result.Matches = append(result.Matches, newMatch(params, number, pool[i], &p2, 0.5))
		number++
	}
	if len(pool)%2 == 1 {
		last := pool[len(pool)-1]
		result.Matches = append(result.Matches, newMatch(params, number, last, nil, 1.0))
		result.Warnings = append(result.Warnings, fmt.Sprintf("player %d receives a bye", last.ID))
	}
	result.Warnings = append(result.Warnings, "pairings were generated randomly and ignore rankings")
	return result, nil
}
