package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Dosada05/tournament-progression/brackets"
	"github.com/Dosada05/tournament-progression/services"
	"github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	hub         *brackets.Hub
	progression services.ProgressionService
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

// NewWebSocketHandler: пустой allowedOrigins или "*" разрешает любой Origin.
func NewWebSocketHandler(hub *brackets.Hub, progression services.ProgressionService, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		progression: progression,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// ServeWs подключает клиента к комнате турнира: /ws/tournaments/{tournamentID}
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	// Комнату создаём только для турниров с прогрессией
	status, err := h.progression.GetStatus(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отвечает клиенту ошибкой
		h.logger.Warn("websocket upgrade failed",
			slog.Int("tournament_id", tournamentID),
			slog.Any("error", err))
		return
	}

	room := brackets.RoomForTournament(tournamentID)
	client := brackets.NewClient(h.hub, conn, room)

	// Первое сообщение: текущее состояние, чтобы клиенту не ждать следующего события
	if snapshot, err := json.Marshal(brackets.WebSocketMessage{Type: "PROGRESSION_SNAPSHOT", Payload: status, RoomID: room}); err == nil {
		client.Send <- snapshot
	}

	client.Hub.Register <- client

	go client.WritePump()
	go client.ReadPump()

	h.logger.Info("websocket client registered",
		slog.Int("tournament_id", tournamentID),
		slog.String("room", room))
}
