package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Dosada05/tournament-progression/middleware"
	"github.com/Dosada05/tournament-progression/models"
	"github.com/Dosada05/tournament-progression/services"
	"github.com/go-chi/chi/v5"
)

type ProgressionHandler struct {
	progression      services.ProgressionService
	monitor          services.MonitorService
	fallbackDefaults models.FallbackConfig
	monitorInterval  time.Duration
}

func NewProgressionHandler(
	progression services.ProgressionService,
	monitor services.MonitorService,
	fallbackDefaults models.FallbackConfig,
	monitorInterval time.Duration,
) *ProgressionHandler {
	return &ProgressionHandler{
		progression:      progression,
		monitor:          monitor,
		fallbackDefaults: fallbackDefaults,
		monitorInterval:  monitorInterval,
	}
}

type initializeProgressionRequest struct {
	Config          models.ProgressionConfig `json:"config"`
	Fallback        *models.FallbackConfig   `json:"fallback,omitempty"`
	Candidates      []models.Candidate       `json:"candidates,omitempty"`
	StartMonitoring *bool                    `json:"start_monitoring,omitempty"`
}

type resetProgressionRequest struct {
	Level models.Level `json:"level"`
	Round string       `json:"round"`
}

type startMonitoringRequest struct {
	IntervalSeconds int `json:"interval_seconds"`
}

func (h *ProgressionHandler) InitializeProgression(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input initializeProgressionRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	fallback := h.fallbackDefaults
	if input.Fallback != nil {
		fallback = *input.Fallback
	}

	status, initErr := h.progression.InitializeProgression(r.Context(), services.InitializeProgressionInput{
		TournamentID: tournamentID,
		Config:       input.Config,
		Fallback:     &fallback,
		Initiator:    middleware.ActorFromContext(r.Context()),
		Candidates:   input.Candidates,
	})
	if status == nil {
		mapServiceErrorToHTTP(w, r, initErr)
		return
	}

	// Мониторинг включаем по умолчанию, если автоматика не выключена.
	// Статус с ошибкой первого шага тоже ставим на мониторинг: тик монитора повторит шаг.
	monitoring := false
	if status.Config.EnableAutomation && (input.StartMonitoring == nil || *input.StartMonitoring) {
		started, err := h.monitor.StartMonitoring(r.Context(), tournamentID, h.monitorInterval)
		switch {
		case err != nil && initErr == nil:
			mapServiceErrorToHTTP(w, r, err)
			return
		case err != nil:
			slog.Warn("failed to start monitoring after partial initialization",
				slog.Int("tournament_id", tournamentID),
				slog.Any("error", err))
		default:
			monitoring = started
		}
	}
	if initErr != nil {
		mapServiceErrorToHTTP(w, r, initErr)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"progression": status, "monitoring": monitoring}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ProgressionHandler) GetProgression(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	status, err := h.progression.GetStatus(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"progression": status, "monitoring": h.monitor.IsMonitoring(tournamentID)}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ProgressionHandler) ListProgressions(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.progression.ListStatuses(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"progressions": statuses}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ProgressionHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	overview, err := h.progression.Overview(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"overview": overview}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ProgressionHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var cfg models.ProgressionConfig
	if err := readJSON(w, r, &cfg); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	status, err := h.progression.UpdateConfig(r.Context(), tournamentID, cfg)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"progression": status}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ProgressionHandler) UpdateFallbackConfig(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var cfg models.FallbackConfig
	if err := readJSON(w, r, &cfg); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.progression.UpdateFallbackConfig(r.Context(), tournamentID, cfg); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"fallback_config": cfg}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type progressionStep func(ctx context.Context, tournamentID int, actor string) (bool, error)

// runStep обслуживает все ручные шаги: check, advance-round, advance-level, approve, complete.
func (h *ProgressionHandler) runStep(step progressionStep) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tournamentID, err := getIDFromURL(r, "tournamentID")
		if err != nil {
			badRequestResponse(w, r, err)
			return
		}

		progressed, err := step(r.Context(), tournamentID, middleware.ActorFromContext(r.Context()))
		if err != nil {
			mapServiceErrorToHTTP(w, r, err)
			return
		}

		status, err := h.progression.GetStatus(r.Context(), tournamentID)
		if err != nil && !errors.Is(err, services.ErrProgressionNotFound) {
			mapServiceErrorToHTTP(w, r, err)
			return
		}

		if err := writeJSON(w, http.StatusOK, jsonResponse{"progressed": progressed, "progression": status}, nil); err != nil {
			serverErrorResponse(w, r, err)
		}
	}
}

func (h *ProgressionHandler) CheckRound() http.HandlerFunc {
	return h.runStep(h.progression.CheckAndProgressRound)
}

func (h *ProgressionHandler) AdvanceRound() http.HandlerFunc {
	return h.runStep(h.progression.AdvanceToNextRound)
}

func (h *ProgressionHandler) AdvanceLevel() http.HandlerFunc {
	return h.runStep(h.progression.AdvanceToNextLevel)
}

func (h *ProgressionHandler) ApproveRound() http.HandlerFunc {
	return h.runStep(h.progression.ApproveRound)
}

func (h *ProgressionHandler) CompleteTournament() http.HandlerFunc {
	return h.runStep(h.progression.CompleteTournament)
}

func (h *ProgressionHandler) communityStep(finalize bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		communityID, err := getIDFromURL(r, "communityID")
		if err != nil {
			badRequestResponse(w, r, err)
			return
		}
		step := func(ctx context.Context, tournamentID int, actor string) (bool, error) {
			if finalize {
				return h.progression.FinalizeCommunity(ctx, tournamentID, communityID, actor)
			}
			return h.progression.AdvanceCommunity(ctx, tournamentID, communityID, actor)
		}
		h.runStep(step)(w, r)
	}
}

func (h *ProgressionHandler) AdvanceCommunity() http.HandlerFunc {
	return h.communityStep(false)
}

func (h *ProgressionHandler) FinalizeCommunity() http.HandlerFunc {
	return h.communityStep(true)
}

func (h *ProgressionHandler) ResetProgression(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input resetProgressionRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	status, err := h.progression.ResetProgression(r.Context(), tournamentID, input.Level, input.Round, middleware.ActorFromContext(r.Context()))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"progression": status}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ProgressionHandler) StopProgression(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	monitoringStopped := h.monitor.StopMonitoring(tournamentID)
	if err := h.progression.StopProgression(r.Context(), tournamentID, middleware.ActorFromContext(r.Context())); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"stopped": true, "monitoring_stopped": monitoringStopped}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ProgressionHandler) ResolveError(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	code := chi.URLParam(r, "code")
	if code == "" {
		badRequestResponse(w, r, errors.New("missing error code in URL path"))
		return
	}

	resolved, err := h.progression.ResolveError(r.Context(), tournamentID, code)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"resolved": resolved}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ProgressionHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	level := models.Level(r.URL.Query().Get("level"))
	positions, err := h.progression.QueryPositions(r.Context(), tournamentID, level)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"positions": positions}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ProgressionHandler) StartMonitoring(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input startMonitoringRequest
	if err := readOptionalJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	interval := h.monitorInterval
	if input.IntervalSeconds != 0 {
		interval = time.Duration(input.IntervalSeconds) * time.Second
	}

	started, err := h.monitor.StartMonitoring(r.Context(), tournamentID, interval)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	status := http.StatusOK
	if started {
		status = http.StatusCreated
	}
	if err := writeJSON(w, status, jsonResponse{"started": started, "monitoring": true}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ProgressionHandler) StopMonitoring(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	stopped := h.monitor.StopMonitoring(tournamentID)
	if err := writeJSON(w, http.StatusOK, jsonResponse{"stopped": stopped}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ProgressionHandler) CheckNow(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.monitor.CheckNow(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *ProgressionHandler) ListMonitored(w http.ResponseWriter, r *http.Request) {
	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournaments": h.monitor.ActiveTournaments()}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
