package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Минимальная схема: только то, что нужно оркестратору прогрессии.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS progression_candidates (
		tournament_id INT NOT NULL,
		player_id     INT NOT NULL,
		name          TEXT NOT NULL DEFAULT '',
		community_id  INT,
		county_id     INT,
		region_id     INT,
		points        INT NOT NULL DEFAULT 0,
		is_eligible   BOOLEAN NOT NULL DEFAULT TRUE,
		has_paid      BOOLEAN NOT NULL DEFAULT FALSE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT progression_candidates_pkey PRIMARY KEY (tournament_id, player_id)
	)`,
	`CREATE TABLE IF NOT EXISTS progression_matches (
		id                     SERIAL PRIMARY KEY,
		tournament_id          INT NOT NULL,
		level                  TEXT NOT NULL,
		round                  TEXT NOT NULL,
		match_number           INT NOT NULL,
		match_type             TEXT NOT NULL DEFAULT 'singles',
		player1_id             INT NOT NULL,
		player2_id             INT,
		determines_positions   INT[] NOT NULL DEFAULT '{}',
		is_level_final         BOOLEAN NOT NULL DEFAULT FALSE,
		determines_top3        BOOLEAN NOT NULL DEFAULT FALSE,
		is_bye_match           BOOLEAN NOT NULL DEFAULT FALSE,
		community_id           INT,
		county_id              INT,
		region_id              INT,
		venue                  TEXT,
		table_number           INT,
		requires_manual_review BOOLEAN NOT NULL DEFAULT FALSE,
		source                 TEXT NOT NULL,
		confidence             DOUBLE PRECISION,
		status                 TEXT NOT NULL DEFAULT 'pending',
		winner_id              INT,
		created_by             TEXT NOT NULL DEFAULT '',
		created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT progression_matches_status_check
			CHECK (status IN ('pending', 'scheduled', 'in_progress', 'completed', 'cancelled', 'disputed')),
		CONSTRAINT progression_matches_players_check
			CHECK (player2_id IS NULL OR player2_id <> player1_id)
	)`,
	`CREATE TABLE IF NOT EXISTS progression_statuses (
		tournament_id INT PRIMARY KEY,
		current_level TEXT NOT NULL,
		current_round TEXT NOT NULL,
		state         TEXT NOT NULL,
		document      JSONB NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS progression_fallback_configs (
		tournament_id INT PRIMARY KEY,
		config        JSONB NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS progression_matches_round_number_key
		ON progression_matches (tournament_id, level, round, COALESCE(community_id, 0), match_number)`,
	`CREATE INDEX IF NOT EXISTS progression_matches_tournament_round_idx
		ON progression_matches (tournament_id, round)`,
}

// ApplySchema creates the tables if they do not exist yet.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d failed: %w", i+1, err)
		}
	}
	return nil
}
