package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Dosada05/tournament-progression/models"
)

var ErrFallbackConfigNotFound = errors.New("fallback config not found")

// FallbackConfigRepository хранит настройки резервного движка пар турнира.
type FallbackConfigRepository interface {
	Get(ctx context.Context, tournamentID int) (models.FallbackConfig, error)
	Save(ctx context.Context, tournamentID int, cfg models.FallbackConfig) error
	Delete(ctx context.Context, tournamentID int) error
}

type memoryFallbackConfigRepository struct {
	mu      sync.RWMutex
	configs map[int]models.FallbackConfig
}

func NewMemoryFallbackConfigRepository() FallbackConfigRepository {
	return &memoryFallbackConfigRepository{configs: make(map[int]models.FallbackConfig)}
}

func (r *memoryFallbackConfigRepository) Get(ctx context.Context, tournamentID int) (models.FallbackConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[tournamentID]
	if !ok {
		return models.FallbackConfig{}, ErrFallbackConfigNotFound
	}
	cfg.AdminEmails = append([]string(nil), cfg.AdminEmails...)
	return cfg, nil
}

func (r *memoryFallbackConfigRepository) Save(ctx context.Context, tournamentID int, cfg models.FallbackConfig) error {
	cfg.AdminEmails = append([]string(nil), cfg.AdminEmails...)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[tournamentID] = cfg
	return nil
}

func (r *memoryFallbackConfigRepository) Delete(ctx context.Context, tournamentID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.configs[tournamentID]; !ok {
		return ErrFallbackConfigNotFound
	}
	delete(r.configs, tournamentID)
	return nil
}

type postgresFallbackConfigRepository struct {
	db SQLExecutor
}

func NewPostgresFallbackConfigRepository(db SQLExecutor) FallbackConfigRepository {
	return &postgresFallbackConfigRepository{db: db}
}

func (r *postgresFallbackConfigRepository) Get(ctx context.Context, tournamentID int) (models.FallbackConfig, error) {
	query := `SELECT config FROM progression_fallback_configs WHERE tournament_id = $1`

	var raw []byte
	if err := r.db.QueryRowContext(ctx, query, tournamentID).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.FallbackConfig{}, ErrFallbackConfigNotFound
		}
		return models.FallbackConfig{}, err
	}
	var cfg models.FallbackConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return models.FallbackConfig{}, fmt.Errorf("failed to decode fallback config: %w", err)
	}
	return cfg, nil
}

func (r *postgresFallbackConfigRepository) Save(ctx context.Context, tournamentID int, cfg models.FallbackConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode fallback config: %w", err)
	}
	query := `
		INSERT INTO progression_fallback_configs (tournament_id, config, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (tournament_id) DO UPDATE SET
			config     = EXCLUDED.config,
			updated_at = NOW()`
	_, err = r.db.ExecContext(ctx, query, tournamentID, raw)
	return err
}

func (r *postgresFallbackConfigRepository) Delete(ctx context.Context, tournamentID int) error {
	query := `DELETE FROM progression_fallback_configs WHERE tournament_id = $1`
	result, err := r.db.ExecContext(ctx, query, tournamentID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrFallbackConfigNotFound)
}
