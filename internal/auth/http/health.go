package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/store"
	"github.com/aussiebroadwan/studyhub/pkg/authsdk"
	"github.com/aussiebroadwan/studyhub/pkg/httpx"
)

// PingFunc checks an optional dependency.
type PingFunc func(ctx context.Context) error

const readinessTimeout = 2 * time.Second

type HealthHandler struct {
	Started   time.Time
	Version   string
	Store     store.Store
	RedisPing PingFunc // nil when rate limiting is process-local
}

func (h *HealthHandler) report(status string, checks *authsdk.HealthChecks) authsdk.HealthResponse {
	return authsdk.HealthResponse{
		Status:  status,
		Uptime:  time.Since(h.Started).Round(time.Second).String(),
		Version: h.Version,
		Checks:  checks,
	}
}

// HandleLivez godoc
//
//	@Summary		Liveness probe
//	@Description	Returns 200 while the process is serving requests. No dependencies are checked.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version"
//	@Router			/livez [get].
func (h *HealthHandler) HandleLivez(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.report("ok", nil))
}

// HandleReadyz godoc
//
//	@Summary		Readiness probe
//	@Description	Pings the database and, when configured, the Redis rate limiter backend.
//	@Description	A database failure returns 503. Redis only backs rate limiting, which fails open, so a Redis failure reports degraded with 200.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	authsdk.HealthResponse	"database unreachable"
//	@Router			/readyz [get].
func (h *HealthHandler) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := &authsdk.HealthChecks{Database: "ok"}
	status, code := "ok", http.StatusOK

	if err := h.Store.Ping(ctx); err != nil {
		checks.Database = "error: " + err.Error()
		status, code = "degraded", http.StatusServiceUnavailable
	}

	if h.RedisPing != nil {
		checks.Redis = "ok"
		if err := h.RedisPing(ctx); err != nil {
			checks.Redis = "error: " + err.Error()
			status = "degraded"
		}
	}

	httpx.WriteJSON(w, code, h.report(status, checks))
}
