package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/lib/pq"
)

var ErrCandidateTournamentMismatch = errors.New("candidate belongs to another tournament")

// CandidateRepository хранит ростер участников, из которого строятся пары.
type CandidateRepository interface {
	UpsertBatch(ctx context.Context, tournamentID int, candidates []models.Candidate) error
	// ListByTournament returns the roster; a non-nil communityID narrows it to one community.
	ListByTournament(ctx context.Context, tournamentID int, communityID *int) ([]models.Candidate, error)
	ListCommunityIDs(ctx context.Context, tournamentID int) ([]int, error)
}

type postgresCandidateRepository struct {
	db *sql.DB
}

func NewPostgresCandidateRepository(db *sql.DB) CandidateRepository {
	return &postgresCandidateRepository{db: db}
}

func (r *postgresCandidateRepository) UpsertBatch(ctx context.Context, tournamentID int, candidates []models.Candidate) (err error) {
	if len(candidates) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("UpsertBatch failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO progression_candidates
			(tournament_id, player_id, name, community_id, county_id, region_id, points, is_eligible, has_paid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tournament_id, player_id) DO UPDATE SET
			name = EXCLUDED.name,
			community_id = EXCLUDED.community_id,
			county_id = EXCLUDED.county_id,
			region_id = EXCLUDED.region_id,
			points = EXCLUDED.points,
			is_eligible = EXCLUDED.is_eligible,
			has_paid = EXCLUDED.has_paid`)
	if err != nil {
		return fmt.Errorf("UpsertBatch failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range candidates {
		if c.TournamentID != 0 && c.TournamentID != tournamentID {
			err = fmt.Errorf("%w: candidate %d", ErrCandidateTournamentMismatch, c.ID)
			return err
		}
		_, err = stmt.ExecContext(ctx, tournamentID, c.ID, c.Name, c.CommunityID, c.CountyID, c.RegionID,
			c.Points, c.IsEligible, c.HasPaid)
		if err != nil {
			return fmt.Errorf("UpsertBatch failed for candidate %d: %w", c.ID, err)
		}
	}
	return nil
}

func (r *postgresCandidateRepository) ListByTournament(ctx context.Context, tournamentID int, communityID *int) ([]models.Candidate, error) {
	query := `
		SELECT player_id, tournament_id, name, community_id, county_id, region_id, points, is_eligible, has_paid, created_at
		FROM progression_candidates
		WHERE tournament_id = $1 AND ($2::int IS NULL OR community_id = $2)
		ORDER BY points DESC, player_id ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID, communityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	candidates := make([]models.Candidate, 0)
	for rows.Next() {
		var (
			c                         models.Candidate
			community, county, region sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.TournamentID, &c.Name, &community, &county, &region,
			&c.Points, &c.IsEligible, &c.HasPaid, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan candidate row: %w", err)
		}
		c.CommunityID = nullableInt(community)
		c.CountyID = nullableInt(county)
		c.RegionID = nullableInt(region)
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func (r *postgresCandidateRepository) ListCommunityIDs(ctx context.Context, tournamentID int) ([]int, error) {
	var ids pq.Int64Array
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(array_agg(DISTINCT community_id ORDER BY community_id), '{}')
		FROM progression_candidates
		WHERE tournament_id = $1 AND community_id IS NOT NULL`, tournamentID).Scan(&ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list community ids for tournament %d: %w", tournamentID, err)
	}
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out, nil
}
