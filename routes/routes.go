package routes

import (
	"net/http"
	"time"

	"github.com/Dosada05/tournament-progression/handlers"
	"github.com/Dosada05/tournament-progression/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
)

type Handlers struct {
	Progression *handlers.ProgressionHandler
	Match       *handlers.MatchHandler
	Health      *handlers.HealthHandler
	WebSocket   *handlers.WebSocketHandler
}

func SetupRoutes(router chi.Router, h Handlers, jwtSecret []byte, allowedOrigins []string) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", h.Health.Healthz)

	// Websocket живёт дольше любого таймаута, поэтому вне группы с Timeout
	router.Get("/ws/tournaments/{tournamentID}", h.WebSocket.ServeWs)

	router.Route("/api/v1", func(r chi.Router) {
		// Вызовы движка пар на уровне county могут идти минутами
		r.Use(chiMiddleware.Timeout(11 * time.Minute))
		r.Use(middleware.Authenticate(jwtSecret))

		// Чтение доступно всем авторизованным
		r.Get("/progression", h.Progression.ListProgressions)
		r.Get("/monitor", h.Progression.ListMonitored)
		r.Get("/matches/{matchID}", h.Match.GetMatch)

		r.Route("/tournaments/{tournamentID}", func(r chi.Router) {
			r.Get("/progression", h.Progression.GetProgression)
			r.Get("/progression/overview", h.Progression.GetOverview)
			r.Get("/positions", h.Progression.GetPositions)
			r.Get("/matches", h.Match.ListTournamentMatches)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Authorize(middleware.RoleAdmin, middleware.RoleOrganizer))

				r.Post("/progression", h.Progression.InitializeProgression)
				r.Delete("/progression", h.Progression.StopProgression)
				r.Put("/progression/config", h.Progression.UpdateConfig)
				r.Put("/progression/fallback", h.Progression.UpdateFallbackConfig)
				r.Post("/progression/check", h.Progression.CheckRound())
				r.Post("/progression/advance-round", h.Progression.AdvanceRound())
				r.Post("/progression/advance-level", h.Progression.AdvanceLevel())
				r.Post("/progression/approve", h.Progression.ApproveRound())
				r.Post("/progression/complete", h.Progression.CompleteTournament())
				r.Post("/progression/reset", h.Progression.ResetProgression)
				r.Delete("/progression/errors/{code}", h.Progression.ResolveError)
				r.Post("/progression/communities/{communityID}/advance", h.Progression.AdvanceCommunity())
				r.Post("/progression/communities/{communityID}/finalize", h.Progression.FinalizeCommunity())

				r.Post("/monitor", h.Progression.StartMonitoring)
				r.Delete("/monitor", h.Progression.StopMonitoring)
				r.Post("/monitor/check", h.Progression.CheckNow)
			})
		})

		r.With(middleware.Authorize(middleware.RoleAdmin, middleware.RoleOrganizer)).
			Patch("/matches/{matchID}/status", h.Match.UpdateMatchStatus)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"the requested resource could not be found"}` + "\n"))
	})
}
