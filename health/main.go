package health

import (
	"context"
	"encoding/json"
	"fitcoachdev/logger"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type SessionCounter interface {
	Len() int
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthConnectProps struct {
	Logger   *logger.LogMiddleware
	Sessions SessionCounter
	// Database is optional.
	Database Pinger
}

type Health struct {
	logger   *logger.LogMiddleware
	sessions SessionCounter
	database Pinger
}

type Status struct {
	Status   string            `json:"status"`
	Sessions int               `json:"sessions"`
	Checks   map[string]string `json:"checks"`
}

func NewHealth(args HealthConnectProps) *Health {
	return &Health{logger: args.Logger, sessions: args.Sessions, database: args.Database}
}

func (h *Health) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Healthz)
}

func (h *Health) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := Status{
		Status:   "healthy",
		Sessions: h.sessions.Len(),
		Checks:   map[string]string{"bot": "ok"},
	}
	statusCode := http.StatusOK

	if h.database != nil {
		if err := h.database.Ping(ctx); err != nil {
			h.logger.Logger(ctx).Error("[Health] Database unreachable", zap.Error(err))
			status.Status = "degraded"
			status.Checks["database"] = "unreachable"
			statusCode = http.StatusServiceUnavailable
		} else {
			status.Checks["database"] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(status)
}
