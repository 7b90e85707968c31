package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/sourccey/kiosk-relay/internal/config"
)

// HealthChecker is satisfied by the redis client wrapper.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

type HealthHandler struct {
	redis HealthChecker
	now   func() time.Time
}

// NewHealthHandler takes an optional redis health checker; nil reports redis as disabled.
func NewHealthHandler(redis HealthChecker) *HealthHandler {
	return &HealthHandler{redis: redis, now: time.Now}
}

// GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"status":    "ok",
		"timestamp": h.now().UnixMilli(),
		"redis":     "disabled",
	}

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), config.RedisPingTimeout)
		defer cancel()

		if err := h.redis.Healthy(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["redis"] = "error"
		} else {
			body["redis"] = "ok"
		}
	}

	writeJSON(w, status, body)
}
