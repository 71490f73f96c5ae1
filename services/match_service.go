package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/repositories"
)

// ErrMatchesListFailed - общая ошибка для листинга матчей
var ErrMatchesListFailed = errors.New("failed to list matches")

type UpdateMatchStatusInput struct {
	Status   models.MatchStatus `json:"status"`
	WinnerID *int               `json:"winner_id,omitempty"`
}

type MatchService interface {
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error)
	ListByRound(ctx context.Context, tournamentID int, round string) ([]*models.Match, error)
	GetByID(ctx context.Context, matchID int) (*models.Match, error)
	// UpdateStatus записывает результат; продвижение раунда остаётся за монитором.
	UpdateStatus(ctx context.Context, matchID int, in UpdateMatchStatusInput, actor string) (*models.Match, error)
}

type matchService struct {
	matchRepo repositories.MatchRepository
	logger    *slog.Logger
}

func NewMatchService(matchRepo repositories.MatchRepository, logger *slog.Logger) MatchService {
	return &matchService{matchRepo: matchRepo, logger: logger}
}

func (s *matchService) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	matches, err := s.matchRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("%w: tournament %d: %w", ErrMatchesListFailed, tournamentID, err)
	}
	if matches == nil {
		return []*models.Match{}, nil
	}
	return matches, nil
}

func (s *matchService) ListByRound(ctx context.Context, tournamentID int, round string) ([]*models.Match, error) {
	matches, err := s.matchRepo.ListByTournamentAndRound(ctx, tournamentID, round)
	if err != nil {
		return nil, fmt.Errorf("%w: tournament %d round %s: %w", ErrMatchesListFailed, tournamentID, round, err)
	}
	if matches == nil {
		return []*models.Match{}, nil
	}
	return matches, nil
}

func (s *matchService) GetByID(ctx context.Context, matchID int) (*models.Match, error) {
	return s.matchRepo.GetByID(ctx, matchID)
}

func (s *matchService) UpdateStatus(ctx context.Context, matchID int, in UpdateMatchStatusInput, actor string) (*models.Match, error) {
	if !in.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown match status %q", ErrValidationFailed, in.Status)
	}
	current, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	winner := in.WinnerID
	if in.Status == models.MatchStatusCompleted && !current.IsByeMatch && winner == nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, ErrWinnerRequired)
	}
	if current.IsByeMatch && winner == nil {
		p1 := current.Player1ID
		winner = &p1
	}
	if in.Status != models.MatchStatusCompleted {
		winner = nil
	}

	updated, err := s.matchRepo.UpdateStatus(ctx, matchID, in.Status, winner)
	if err != nil {
		return nil, err
	}
	s.logger.Info("match status updated",
		slog.Int("match_id", matchID),
		slog.Int("tournament_id", updated.TournamentID),
		slog.String("round", updated.Round),
		slog.String("status", string(updated.Status)),
		slog.String("actor", actor))
	return updated, nil
}
