package repositories

import (
	"context"
	"testing"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStatusRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStatusRepository()

	_, err := repo.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrStatusNotFound)

	st := &models.ProgressionStatus{
		TournamentID:    1,
		CurrentLevel:    models.LevelCommunity,
		CurrentRound:    "R1",
		Warnings:        []string{"first"},
		CommunityRounds: map[int]string{10: "R1"},
	}
	require.NoError(t, repo.Save(ctx, st))

	st.Warnings[0] = "mutated"
	st.CommunityRounds[10] = "R2"

	got, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Warnings[0])
	assert.Equal(t, "R1", got.CommunityRounds[10])

	got.CurrentRound = "R9"
	again, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "R1", again.CurrentRound)

	require.NoError(t, repo.Save(ctx, &models.ProgressionStatus{TournamentID: 3}))
	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].TournamentID)
	assert.Equal(t, 3, all[1].TournamentID)

	require.NoError(t, repo.Delete(ctx, 1))
	assert.ErrorIs(t, repo.Delete(ctx, 1), ErrStatusNotFound)
}
