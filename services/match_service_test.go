package services

import (
	"context"
	"testing"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchService_UpdateStatus(t *testing.T) {
	repo := newFakeMatchRepo()
	created, err := repo.CreateBatch(context.Background(), []models.MatchCreationData{
		{TournamentID: 1, Level: models.LevelCommunity, Round: "R1", MatchNumber: 1, Player1ID: 10, Player2ID: intPtr(11)},
	}, "engine")
	require.NoError(t, err)
	svc := NewMatchService(repo, discardLogger())
	ctx := context.Background()
	id := created[0].ID

	_, err = svc.UpdateStatus(ctx, id, UpdateMatchStatusInput{Status: "finished"}, "referee")
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = svc.UpdateStatus(ctx, id, UpdateMatchStatusInput{Status: models.MatchStatusCompleted}, "referee")
	assert.ErrorIs(t, err, ErrWinnerRequired)

	_, err = svc.UpdateStatus(ctx, id, UpdateMatchStatusInput{Status: models.MatchStatusCompleted, WinnerID: intPtr(99)}, "referee")
	assert.ErrorIs(t, err, repositories.ErrMatchWinnerNotPlaying)

	m, err := svc.UpdateStatus(ctx, id, UpdateMatchStatusInput{Status: models.MatchStatusInProgress, WinnerID: intPtr(10)}, "referee")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusInProgress, m.Status)
	assert.Nil(t, m.WinnerID, "winner only recorded for completed matches")

	m, err = svc.UpdateStatus(ctx, id, UpdateMatchStatusInput{Status: models.MatchStatusCompleted, WinnerID: intPtr(11)}, "referee")
	require.NoError(t, err)
	assert.Equal(t, 11, *m.WinnerID)

	_, err = svc.UpdateStatus(ctx, 999, UpdateMatchStatusInput{Status: models.MatchStatusCancelled}, "referee")
	assert.ErrorIs(t, err, repositories.ErrMatchNotFound)
}

func TestMatchService_ByeDefaultsWinner(t *testing.T) {
	repo := newFakeMatchRepo()
	created, err := repo.CreateBatch(context.Background(), []models.MatchCreationData{
		{TournamentID: 1, Round: "R1", MatchNumber: 1, Player1ID: 10, IsByeMatch: true},
	}, "engine")
	require.NoError(t, err)

	m, err := NewMatchService(repo, discardLogger()).UpdateStatus(context.Background(), created[0].ID,
		UpdateMatchStatusInput{Status: models.MatchStatusCompleted}, "referee")
	require.NoError(t, err)
	assert.Equal(t, 10, *m.WinnerID)
}

func TestMatchService_ListReturnsEmptySlice(t *testing.T) {
	svc := NewMatchService(newFakeMatchRepo(), discardLogger())
	matches, err := svc.ListByTournament(context.Background(), 1)
	require.NoError(t, err)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
}
