package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goclaw/fulfillment/pkg/api/models"
	"github.com/goclaw/fulfillment/pkg/api/response"
	"github.com/goclaw/fulfillment/pkg/logger"
	"github.com/goclaw/fulfillment/pkg/payment"
	"github.com/shopspring/decimal"
)

// WebhookSignatureHeader carries the provider signature of a webhook body.
const WebhookSignatureHeader = "X-Webhook-Signature"

// ProviderOperationRecorder records provider calls made outside a saga.
type ProviderOperationRecorder interface {
	RecordProviderOperation(provider, operation, status string)
}

// ProviderHandler handles payment provider endpoints.
type ProviderHandler struct {
	registry *payment.Registry
	logger   logger.Logger
	recorder ProviderOperationRecorder
}

// NewProviderHandler creates a provider handler. recorder may be nil.
func NewProviderHandler(registry *payment.Registry, log logger.Logger, recorder ProviderOperationRecorder) *ProviderHandler {
	if log == nil {
		log = logger.Global()
	}
	return &ProviderHandler{
		registry: registry,
		logger:   log,
		recorder: recorder,
	}
}

// ListProviders handles GET /api/v1/providers.
func (h *ProviderHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	fallback := h.registry.Fallback()
	ids := h.registry.ListProviders()
	items := make([]models.ProviderSummary, 0, len(ids))
	for _, id := range ids {
		summary := models.ProviderSummary{ID: id, DisplayName: id, Fallback: id == fallback}
		family, err := h.registry.CreateFamily(id)
		if err != nil {
			h.logger.WarnContext(r.Context(), "provider family unavailable", "provider", id, "error", err)
		} else {
			summary.DisplayName = family.DisplayName()
		}
		items = append(items, summary)
	}
	response.JSON(w, http.StatusOK, models.ProviderListResponse{Providers: items})
}

// SelectProvider handles GET /api/v1/providers/select?country=&subtotal=.
// It reports the provider an order with no explicit provider would use.
func (h *ProviderHandler) SelectProvider(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())
	query := r.URL.Query()

	country := strings.ToUpper(strings.TrimSpace(query.Get("country")))
	if len(country) != 2 {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed,
			"country must be a two letter country code", requestID)
		return
	}
	subtotal, err := decimal.NewFromString(strings.TrimSpace(query.Get("subtotal")))
	if err != nil || subtotal.IsNegative() {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed,
			"subtotal must be a non-negative decimal amount", requestID)
		return
	}

	criteria := h.registry.CriteriaFor(country, subtotal)
	provider := h.registry.SelectProvider(criteria)
	if provider == "" {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable,
			"no payment providers are registered", requestID)
		return
	}

	response.JSON(w, http.StatusOK, models.ProviderSelectionResponse{
		Provider:        provider,
		Country:         country,
		Region:          criteria.Region,
		TransactionSize: string(criteria.TransactionSize),
		Subtotal:        subtotal.StringFixed(2),
	})
}

// Webhook handles POST /api/v1/webhooks/{provider}. The signature is checked
// by the webhook validator of the provider's own family.
func (h *ProviderHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())
	provider := chi.URLParam(r, "provider")

	family, err := h.registry.CreateFamily(provider)
	if err != nil {
		response.HandleError(w, err, requestID)
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDecodeError(w, err, requestID)
			return
		}
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "failed to read webhook body", requestID)
		return
	}

	signature := strings.TrimSpace(r.Header.Get(WebhookSignatureHeader))
	if !family.WebhookValidator().ValidateWebhook(signature, payload) {
		h.record(family.Provider(), "rejected")
		h.logger.WarnContext(r.Context(), "webhook signature rejected",
			"provider", family.Provider(),
			"request_id", requestID,
		)
		response.Error(w, http.StatusUnauthorized, response.ErrCodeUnauthorized, "invalid webhook signature", requestID)
		return
	}

	h.record(family.Provider(), "success")
	h.logger.InfoContext(r.Context(), "webhook accepted",
		"provider", family.Provider(),
		"bytes", len(payload),
	)
	response.JSON(w, http.StatusOK, models.WebhookResponse{
		Provider: family.Provider(),
		Accepted: true,
		Bytes:    len(payload),
	})
}

func (h *ProviderHandler) record(provider, status string) {
	if h.recorder != nil {
		h.recorder.RecordProviderOperation(provider, "webhook", status)
	}
}
