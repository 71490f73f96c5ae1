package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/lib/pq"
)

var (
	ErrMatchNotFound         = errors.New("match not found")
	ErrMatchNumberConflict   = errors.New("match number already used in this round")
	ErrMatchInvalidStatus    = errors.New("invalid match status")
	ErrMatchWinnerNotPlaying = errors.New("winner is not a participant of the match")
)

// MatchRepository это хранилище матчей, которое использует координатор прогрессии.
type MatchRepository interface {
	CreateBatch(ctx context.Context, matches []models.MatchCreationData, actor string) ([]*models.Match, error)
	GetByID(ctx context.Context, id int) (*models.Match, error)
	ListByTournamentAndRound(ctx context.Context, tournamentID int, round string) ([]*models.Match, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error)
	UpdateStatus(ctx context.Context, id int, status models.MatchStatus, winnerID *int) (*models.Match, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

const matchColumns = `id, tournament_id, level, round, match_number, match_type, player1_id, player2_id,
		determines_positions, is_level_final, determines_top3, is_bye_match, community_id, county_id, region_id,
		venue, table_number, requires_manual_review, source, confidence, status, winner_id, created_by,
		created_at, updated_at`

func (r *postgresMatchRepository) CreateBatch(ctx context.Context, matches []models.MatchCreationData, actor string) (created []*models.Match, err error) {
	if len(matches) == 0 {
		return []*models.Match{}, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("CreateBatch failed to begin transaction: %w", err)
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
		INSERT INTO progression_matches
			(tournament_id, level, round, match_number, match_type, player1_id, player2_id,
			 determines_positions, is_level_final, determines_top3, is_bye_match, community_id, county_id, region_id,
			 venue, table_number, requires_manual_review, source, confidence, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING `+matchColumns)
	if err != nil {
		return nil, fmt.Errorf("CreateBatch failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	created = make([]*models.Match, 0, len(matches))
	for _, m := range matches {
		status := models.MatchStatusPending
		if m.IsByeMatch {
			status = models.MatchStatusCompleted
		}
		row := stmt.QueryRowContext(ctx,
			m.TournamentID, m.Level, m.Round, m.MatchNumber, m.MatchType, m.Player1ID, m.Player2ID,
			pq.Array(m.DeterminesPositions), m.IsLevelFinal, m.DeterminesTop3, m.IsByeMatch,
			m.CommunityID, m.CountyID, m.RegionID, m.Venue, m.TableNumber,
			m.RequiresManualReview, m.Source, m.Confidence, status, actor,
		)
		match, scanErr := scanMatch(row)
		if scanErr != nil {
			err = handleMatchError(scanErr)
			return nil, fmt.Errorf("CreateBatch failed for match %d of round %s: %w", m.MatchNumber, m.Round, err)
		}
		created = append(created, match)
	}
	return created, nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM progression_matches WHERE id = $1`, id)
	match, err := scanMatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match by id %d: %w", id, err)
	}
	return match, nil
}

func (r *postgresMatchRepository) ListByTournamentAndRound(ctx context.Context, tournamentID int, round string) ([]*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM progression_matches
		WHERE tournament_id = $1 AND round = $2
		ORDER BY community_id NULLS FIRST, match_number ASC, id ASC`
	return r.list(ctx, query, tournamentID, round)
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM progression_matches
		WHERE tournament_id = $1
		ORDER BY id ASC`
	return r.list(ctx, query, tournamentID)
}

func (r *postgresMatchRepository) UpdateStatus(ctx context.Context, id int, status models.MatchStatus, winnerID *int) (*models.Match, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrMatchInvalidStatus, status)
	}
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if winnerID != nil && *winnerID != current.Player1ID && (current.Player2ID == nil || *winnerID != *current.Player2ID) {
		return nil, ErrMatchWinnerNotPlaying
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE progression_matches
		SET status = $1, winner_id = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING `+matchColumns, status, winnerID, id)
	match, err := scanMatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to update status of match %d: %w", id, handleMatchError(err))
	}
	return match, nil
}

func (r *postgresMatchRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Match, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		match, scanErr := scanMatch(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		matches = append(matches, match)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMatch(row rowScanner) (*models.Match, error) {
	var (
		m                                         models.Match
		player2, community, county, region, table sql.NullInt64
		winner                                    sql.NullInt64
		venue                                     sql.NullString
		confidence                                sql.NullFloat64
		positions                                 pq.Int64Array
	)
	err := row.Scan(
		&m.ID, &m.TournamentID, &m.Level, &m.Round, &m.MatchNumber, &m.MatchType, &m.Player1ID, &player2,
		&positions, &m.IsLevelFinal, &m.DeterminesTop3, &m.IsByeMatch, &community, &county, &region,
		&venue, &table, &m.RequiresManualReview, &m.Source, &confidence, &m.Status, &winner, &m.CreatedBy,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Player2ID = nullableInt(player2)
	m.CommunityID = nullableInt(community)
	m.CountyID = nullableInt(county)
	m.RegionID = nullableInt(region)
	m.TableNumber = nullableInt(table)
	m.WinnerID = nullableInt(winner)
	m.Venue = nullableString(venue)
	m.Confidence = nullableFloat(confidence)
	if len(positions) > 0 {
		m.DeterminesPositions = make([]int, len(positions))
		for i, p := range positions {
			m.DeterminesPositions[i] = int(p)
		}
	}
	return &m, nil
}

func handleMatchError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Constraint {
		case "progression_matches_round_number_key":
			return ErrMatchNumberConflict
		case "progression_matches_status_check":
			return ErrMatchInvalidStatus
		}
	}
	return err
}
