// Package api provides HTTP API server components.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/goclaw/fulfillment/config"
	"github.com/goclaw/fulfillment/pkg/api/handlers"
	"github.com/goclaw/fulfillment/pkg/api/middleware"
	"github.com/goclaw/fulfillment/pkg/logger"
)

// Handlers holds all HTTP handlers. Nil handlers leave their routes unmounted.
type Handlers struct {
	// Orders handles order placement, cancellation and receipts
	Orders *handlers.OrderHandler

	// Providers handles provider listing, selection and webhooks
	Providers *handlers.ProviderHandler

	// Health handles health check endpoints
	Health *handlers.HealthHandler

	// WebSocket streams order events
	WebSocket *handlers.WebSocketHandler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder

	// MetricsHandler serves the scrape endpoint when metrics share the API port
	MetricsHandler http.Handler
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, h *Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(log))
	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	}
	r.Use(middleware.CORS(&cfg.Server.CORS))
	if cfg.Server.HTTP.MaxBodyBytes > 0 {
		r.Use(chimw.RequestSize(cfg.Server.HTTP.MaxBodyBytes))
	}

	// The event stream hijacks the connection, so it stays outside the
	// group whose wrapped writers cannot be hijacked.
	if h.WebSocket != nil {
		r.Get("/ws/events", h.WebSocket.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Logger(log))
		if h.Metrics != nil {
			r.Use(middleware.Metrics(h.Metrics, cfg.Metrics.Path))
		}
		r.Use(middleware.Timeout(cfg.Server.HTTP.RequestTimeout))

		RegisterRoutes(r, h)
	})

	if h.MetricsHandler != nil && cfg.Metrics.Enabled && cfg.Metrics.Port == 0 {
		r.Method(http.MethodGet, cfg.Metrics.Path, h.MetricsHandler)
	}

	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		if h.Orders != nil {
			r.Route("/orders", func(r chi.Router) {
				r.Post("/", h.Orders.PlaceOrder)
				r.Get("/", h.Orders.ListOrders)
				r.Get("/{id}", h.Orders.GetOrder)
				r.Post("/{id}/cancel", h.Orders.CancelOrder)
				r.Post("/{id}/interrupt", h.Orders.InterruptOrder)
			})
		}

		if h.Providers != nil {
			r.Get("/providers", h.Providers.ListProviders)
			r.Get("/providers/select", h.Providers.SelectProvider)
			r.Post("/webhooks/{provider}", h.Providers.Webhook)
		}
	})

	if h.Health != nil {
		r.Get("/health", h.Health.Health)
		r.Get("/ready", h.Health.Ready)
		r.Get("/status", h.Health.Status)
	}
}
