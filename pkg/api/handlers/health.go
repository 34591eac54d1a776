// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goclaw/fulfillment/pkg/api/response"
	"github.com/goclaw/fulfillment/pkg/version"
)

const defaultCheckTimeout = 2 * time.Second

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) error

type namedCheck struct {
	name  string
	check CheckFunc
}

// HealthOption configures a HealthHandler.
type HealthOption func(*HealthHandler)

// WithCheck adds a readiness check.
func WithCheck(name string, check CheckFunc) HealthOption {
	return func(h *HealthHandler) {
		h.checks = append(h.checks, namedCheck{name: name, check: check})
	}
}

// WithStatus adds component details to the /status response.
func WithStatus(status func() map[string]any) HealthOption {
	return func(h *HealthHandler) { h.status = status }
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	checks       []namedCheck
	status       func() map[string]any
	checkTimeout time.Duration
	startedAt    time.Time
	ready        atomic.Bool
}

// NewHealthHandler creates a new health handler. It starts ready.
func NewHealthHandler(opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{
		checkTimeout: defaultCheckTimeout,
		startedAt:    time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.ready.Store(true)
	return h
}

// SetReady flips readiness, e.g. to drain traffic during shutdown.
func (h *HealthHandler) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Health handles the /health endpoint (liveness probe).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Ready handles the /ready endpoint (readiness probe).
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		response.JSON(w, http.StatusServiceUnavailable, map[string]any{
			"ready":  false,
			"reason": "shutting down",
		})
		return
	}

	failures := h.runChecks(r.Context())
	if len(failures) > 0 {
		response.JSON(w, http.StatusServiceUnavailable, map[string]any{
			"ready":  false,
			"checks": failures,
		})
		return
	}
	response.JSON(w, http.StatusOK, map[string]bool{
		"ready": true,
	})
}

// Status handles the /status endpoint (detailed status).
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		checks[c.name] = "ok"
	}
	for name, msg := range h.runChecks(r.Context()) {
		checks[name] = msg
	}

	body := map[string]any{
		"version": version.Info(),
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
		"ready":   h.ready.Load(),
		"checks":  checks,
	}
	if h.status != nil {
		body["components"] = h.status()
	}
	response.JSON(w, http.StatusOK, body)
}

// runChecks returns the error message of every failing check.
func (h *HealthHandler) runChecks(ctx context.Context) map[string]string {
	failures := make(map[string]string)
	for _, c := range h.checks {
		checkCtx, cancel := context.WithTimeout(ctx, h.checkTimeout)
		err := c.check(checkCtx)
		cancel()
		if err != nil {
			failures[c.name] = err.Error()
		}
	}
	return failures
}
