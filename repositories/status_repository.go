package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Dosada05/tournament-progression/models"
)

var ErrStatusNotFound = errors.New("progression status not found")

// StatusRepository хранит ровно один статус прогрессии на турнир.
// Реализации возвращают копии, поэтому вызывающий код не может изменить сохранённое состояние.
type StatusRepository interface {
	Get(ctx context.Context, tournamentID int) (*models.ProgressionStatus, error)
	Save(ctx context.Context, status *models.ProgressionStatus) error
	Delete(ctx context.Context, tournamentID int) error
	List(ctx context.Context) ([]*models.ProgressionStatus, error)
}

type memoryStatusRepository struct {
	mu       sync.RWMutex
	statuses map[int]*models.ProgressionStatus
}

func NewMemoryStatusRepository() StatusRepository {
	return &memoryStatusRepository{statuses: make(map[int]*models.ProgressionStatus)}
}

func (r *memoryStatusRepository) Get(ctx context.Context, tournamentID int) (*models.ProgressionStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.statuses[tournamentID]
	if !ok {
		return nil, ErrStatusNotFound
	}
	return st.Clone(), nil
}

func (r *memoryStatusRepository) Save(ctx context.Context, status *models.ProgressionStatus) error {
	if status == nil {
		return errors.New("nil progression status")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[status.TournamentID] = status.Clone()
	return nil
}

func (r *memoryStatusRepository) Delete(ctx context.Context, tournamentID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.statuses[tournamentID]; !ok {
		return ErrStatusNotFound
	}
	delete(r.statuses, tournamentID)
	return nil
}

func (r *memoryStatusRepository) List(ctx context.Context) ([]*models.ProgressionStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.ProgressionStatus, 0, len(r.statuses))
	for _, st := range r.statuses {
		out = append(out, st.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TournamentID < out[j].TournamentID })
	return out, nil
}

// postgresStatusRepository хранит статус целиком в JSONB; ключевые поля дублируются колонками для выборок.
type postgresStatusRepository struct {
	db *sql.DB
}

func NewPostgresStatusRepository(db *sql.DB) StatusRepository {
	return &postgresStatusRepository{db: db}
}

func (r *postgresStatusRepository) Get(ctx context.Context, tournamentID int) (*models.ProgressionStatus, error) {
	query := `SELECT document FROM progression_statuses WHERE tournament_id = $1`

	var raw []byte
	err := r.db.QueryRowContext(ctx, query, tournamentID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStatusNotFound
		}
		return nil, err
	}
	return decodeStatus(raw)
}

func (r *postgresStatusRepository) Save(ctx context.Context, status *models.ProgressionStatus) error {
	if status == nil {
		return errors.New("nil progression status")
	}
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode progression status: %w", err)
	}

	query := `
		INSERT INTO progression_statuses (tournament_id, current_level, current_round, state, document, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (tournament_id) DO UPDATE SET
			current_level = EXCLUDED.current_level,
			current_round = EXCLUDED.current_round,
			state         = EXCLUDED.state,
			document      = EXCLUDED.document,
			updated_at    = NOW()`

	_, err = r.db.ExecContext(ctx, query,
		status.TournamentID, status.CurrentLevel, status.CurrentRound, status.State, raw,
	)
	return err
}

func (r *postgresStatusRepository) Delete(ctx context.Context, tournamentID int) error {
	query := `DELETE FROM progression_statuses WHERE tournament_id = $1`
	result, err := r.db.ExecContext(ctx, query, tournamentID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrStatusNotFound)
}

func (r *postgresStatusRepository) List(ctx context.Context) ([]*models.ProgressionStatus, error) {
	query := `SELECT document FROM progression_statuses ORDER BY tournament_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*models.ProgressionStatus, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		st, err := decodeStatus(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeStatus(raw []byte) (*models.ProgressionStatus, error) {
	st := &models.ProgressionStatus{}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("failed to decode progression status: %w", err)
	}
	return st, nil
}
