package brackets

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Dosada05/tournament-progression/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_ProgressionListenerBroadcastsToTournamentRoom(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run(ctx)

	watcher := NewClient(hub, nil, RoomForTournament(5))
	other := NewClient(hub, nil, RoomForTournament(6))
	hub.Register <- watcher
	hub.Register <- other
	require.Eventually(t, func() bool { return hub.RoomSize("tournament_5") == 1 }, time.Second, 5*time.Millisecond)

	listener := hub.ProgressionListener()
	require.NoError(t, listener(ctx, models.ProgressionEvent{
		ID: "e1", Type: models.EventRoundStarted, TournamentID: 5, Level: models.LevelCommunity, Round: "R1",
	}))

	select {
	case raw := <-watcher.Send:
		var msg struct {
			Type    string                  `json:"type"`
			RoomID  string                  `json:"room_id"`
			Payload models.ProgressionEvent `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "PROGRESSION_ROUND_STARTED", msg.Type)
		assert.Equal(t, "tournament_5", msg.RoomID)
		assert.Equal(t, "R1", msg.Payload.Round)
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
	assert.Empty(t, other.Send)
}

func TestHub_UnregisterClosesSendChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	c := NewClient(hub, nil, "tournament_1")
	hub.Register <- c
	hub.Unregister <- c
	require.Eventually(t, func() bool { return hub.RoomSize("tournament_1") == 0 }, time.Second, 5*time.Millisecond)

	_, open := <-c.Send
	assert.False(t, open)
	assert.Zero(t, hub.BroadcastToRoom("tournament_1", "ignored"))
}
