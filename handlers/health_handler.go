package handlers

import (
	"context"
	"net/http"

	"github.com/Dosada05/tournament-progression/pairing"
)

type EngineHealthChecker interface {
	HealthCheck(ctx context.Context) *pairing.HealthResult
}

type HealthHandler struct {
	engine EngineHealthChecker
}

func NewHealthHandler(engine EngineHealthChecker) *HealthHandler {
	return &HealthHandler{engine: engine}
}

// Healthz всегда отвечает 200, пока процесс жив; недоступный движок даёт статус "degraded".
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	engine := h.engine.HealthCheck(r.Context())
	status := "ok"
	if !engine.Healthy {
		status = "degraded"
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"status": status, "pairing_engine": engine}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
