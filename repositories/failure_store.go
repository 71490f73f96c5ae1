package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/redis/go-redis/v9"
)

// FailureStore считает подряд идущие сбои движка пар для каждого турнира.
type FailureStore interface {
	Get(ctx context.Context, tournamentID int) (models.FailureTracker, error)
	// Increment returns the consecutive failure count after the increment.
	Increment(ctx context.Context, tournamentID int) (int, error)
	Reset(ctx context.Context, tournamentID int) error
	MarkFallbackUsed(ctx context.Context, tournamentID int, at time.Time) error
	Delete(ctx context.Context, tournamentID int) error
}

type memoryFailureStore struct {
	mu       sync.Mutex
	trackers map[int]models.FailureTracker
}

func NewMemoryFailureStore() FailureStore {
	return &memoryFailureStore{trackers: make(map[int]models.FailureTracker)}
}

func (s *memoryFailureStore) Get(ctx context.Context, tournamentID int) (models.FailureTracker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackers[tournamentID]
	if !ok {
		return models.FailureTracker{TournamentID: tournamentID}, nil
	}
	return copyTracker(t), nil
}

func (s *memoryFailureStore) Increment(ctx context.Context, tournamentID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.trackers[tournamentID]
	t.TournamentID = tournamentID
	t.ConsecutiveFailures++
	s.trackers[tournamentID] = t
	return t.ConsecutiveFailures, nil
}

func (s *memoryFailureStore) Reset(ctx context.Context, tournamentID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.trackers[tournamentID]; ok {
		t.ConsecutiveFailures = 0
		s.trackers[tournamentID] = t
	}
	return nil
}

func (s *memoryFailureStore) MarkFallbackUsed(ctx context.Context, tournamentID int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.trackers[tournamentID]
	t.TournamentID = tournamentID
	t.LastFallbackUsed = &at
	s.trackers[tournamentID] = t
	return nil
}

func (s *memoryFailureStore) Delete(ctx context.Context, tournamentID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trackers, tournamentID)
	return nil
}

func copyTracker(t models.FailureTracker) models.FailureTracker {
	if t.LastFallbackUsed != nil {
		at := *t.LastFallbackUsed
		t.LastFallbackUsed = &at
	}
	return t
}

const (
	failureField      = "consecutive_failures"
	fallbackUsedField = "last_fallback_used"
)

// redisFailureStore держит счётчики в хэше Redis, чтобы несколько реплик видели одно и то же значение.
type redisFailureStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisFailureStore keys trackers as "<prefix>:<tournament id>". A zero ttl keeps them forever.
func NewRedisFailureStore(client *redis.Client, prefix string, ttl time.Duration) FailureStore {
	if prefix == "" {
		prefix = "progression:failures"
	}
	return &redisFailureStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *redisFailureStore) key(tournamentID int) string {
	return s.prefix + ":" + strconv.Itoa(tournamentID)
}

func (s *redisFailureStore) Get(ctx context.Context, tournamentID int) (models.FailureTracker, error) {
	t := models.FailureTracker{TournamentID: tournamentID}
	fields, err := s.client.HGetAll(ctx, s.key(tournamentID)).Result()
	if err != nil {
		return t, fmt.Errorf("failed to read failure tracker for tournament %d: %w", tournamentID, err)
	}
	if v, ok := fields[failureField]; ok {
		n, convErr := strconv.Atoi(v)
		if convErr != nil {
			return t, fmt.Errorf("corrupt failure count %q for tournament %d: %w", v, tournamentID, convErr)
		}
		t.ConsecutiveFailures = n
	}
	if v, ok := fields[fallbackUsedField]; ok {
		at, parseErr := time.Parse(time.RFC3339Nano, v)
		if parseErr != nil {
			return t, fmt.Errorf("corrupt fallback timestamp %q for tournament %d: %w", v, tournamentID, parseErr)
		}
		t.LastFallbackUsed = &at
	}
	return t, nil
}

func (s *redisFailureStore) Increment(ctx context.Context, tournamentID int) (int, error) {
	key := s.key(tournamentID)
	pipe := s.client.TxPipeline()
	incr := pipe.HIncrBy(ctx, key, failureField, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment failures for tournament %d: %w", tournamentID, err)
	}
	return int(incr.Val()), nil
}

func (s *redisFailureStore) Reset(ctx context.Context, tournamentID int) error {
	if err := s.client.HSet(ctx, s.key(tournamentID), failureField, 0).Err(); err != nil {
		return fmt.Errorf("failed to reset failures for tournament %d: %w", tournamentID, err)
	}
	return nil
}

func (s *redisFailureStore) MarkFallbackUsed(ctx context.Context, tournamentID int, at time.Time) error {
	err := s.client.HSet(ctx, s.key(tournamentID), fallbackUsedField, at.UTC().Format(time.RFC3339Nano)).Err()
	if err != nil {
		return fmt.Errorf("failed to record fallback use for tournament %d: %w", tournamentID, err)
	}
	return nil
}

func (s *redisFailureStore) Delete(ctx context.Context, tournamentID int) error {
	if err := s.client.Del(ctx, s.key(tournamentID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to delete failure tracker for tournament %d: %w", tournamentID, err)
	}
	return nil
}
