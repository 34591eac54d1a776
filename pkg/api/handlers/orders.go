package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goclaw/fulfillment/pkg/api/models"
	"github.com/goclaw/fulfillment/pkg/api/response"
	"github.com/goclaw/fulfillment/pkg/fulfillment"
	"github.com/goclaw/fulfillment/pkg/logger"
	"github.com/goclaw/fulfillment/pkg/order"
	"github.com/goclaw/fulfillment/pkg/storage"
)

const defaultInterruptReason = "interrupted via API"

// OrderService is the fulfillment facade used by the order endpoints.
type OrderService interface {
	PlaceOrder(ctx context.Context, req order.Request) (*order.Result, error)
	CancelOrder(ctx context.Context, orderID, reservationRef, paymentRef string) (*order.CancelResult, error)
	Interrupt(ctx context.Context, orderID, reason string) error
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	orders    OrderService
	receipts  storage.Storage
	logger    logger.Logger
	validator *validator.Validate
}

// NewOrderHandler creates an order handler. receipts may be nil, in which
// case the read endpoints report 503.
func NewOrderHandler(orders OrderService, receipts storage.Storage, log logger.Logger) *OrderHandler {
	if log == nil {
		log = logger.Global()
	}
	return &OrderHandler{
		orders:    orders,
		receipts:  receipts,
		logger:    log,
		validator: validator.New(),
	}
}

// PlaceOrder handles POST /api/v1/orders.
//
// A completed order is a 201. A business decline or a transport failure
// that was rolled back is a 422 carrying the result with its compensation
// log. A failed rollback is a 500 carrying the same result.
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())

	var req models.PlaceOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err, requestID)
		return
	}

	result, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		var compErr *order.CompensationFailedError
		if errors.As(err, &compErr) {
			h.logger.ErrorContext(r.Context(), "order needs manual intervention",
				"order_id", compErr.SagaID,
				"error", err,
			)
			response.ErrorWithDetails(w, http.StatusInternalServerError, response.ErrCodeCompensationFailed,
				err.Error(), map[string]interface{}{"result": result}, requestID)
			return
		}
		response.HandleError(w, err, requestID)
		return
	}

	if !result.Success {
		response.JSON(w, http.StatusUnprocessableEntity, result)
		return
	}
	w.Header().Set("Location", "/api/v1/orders/"+result.OrderID)
	response.JSON(w, http.StatusCreated, result)
}

// CancelOrder handles POST /api/v1/orders/{id}/cancel.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())
	orderID := chi.URLParam(r, "id")

	var req models.CancelOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err, requestID)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), requestID)
		return
	}

	result, err := h.orders.CancelOrder(r.Context(), orderID, req.ReservationRef, req.PaymentRef)
	if err != nil {
		var incomplete *order.CancellationIncompleteError
		if !errors.As(err, &incomplete) && errors.Is(err, order.ErrInvalidRequest) {
			response.HandleError(w, err, requestID)
			return
		}
		details := map[string]interface{}{}
		if result != nil {
			details["result"] = result
		}
		response.ErrorWithDetails(w, http.StatusInternalServerError, response.ErrCodeCancelIncomplete,
			err.Error(), details, requestID)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// InterruptOrder handles POST /api/v1/orders/{id}/interrupt.
func (h *OrderHandler) InterruptOrder(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())
	orderID := chi.URLParam(r, "id")

	var req models.InterruptOrderRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
			writeDecodeError(w, err, requestID)
			return
		}
	}
	if err := h.validator.Struct(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), requestID)
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = defaultInterruptReason
	}

	if err := h.orders.Interrupt(r.Context(), orderID, reason); err != nil {
		if errors.Is(err, fulfillment.ErrInterruptsDisabled) {
			response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, err.Error(), requestID)
			return
		}
		response.HandleError(w, err, requestID)
		return
	}

	response.JSON(w, http.StatusAccepted, models.InterruptOrderResponse{
		OrderID:     orderID,
		Reason:      reason,
		RequestedAt: time.Now().UTC(),
	})
}

// GetOrder handles GET /api/v1/orders/{id}. Only completed orders leave a
// receipt, so a declined order is reported as not found.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())
	if h.receipts == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "receipt store unavailable", requestID)
		return
	}

	orderID := chi.URLParam(r, "id")
	receipt, err := h.receipts.GetReceipt(r.Context(), orderID)
	if err != nil {
		var nf *storage.NotFoundError
		if errors.As(err, &nf) {
			response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "order not found", requestID)
			return
		}
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, err.Error(), requestID)
		return
	}
	response.JSON(w, http.StatusOK, receipt)
}

// ListOrders handles GET /api/v1/orders.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r.Context())
	if h.receipts == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "receipt store unavailable", requestID)
		return
	}

	filter := &storage.ReceiptFilter{
		Provider: strings.ToLower(strings.TrimSpace(r.URL.Query().Get("provider"))),
		Limit:    queryInt(r, "limit", 20),
		Offset:   queryInt(r, "offset", 0),
	}
	items, total, err := h.receipts.ListReceipts(r.Context(), filter)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, err.Error(), requestID)
		return
	}
	if items == nil {
		items = []*order.Receipt{}
	}

	response.JSON(w, http.StatusOK, models.ReceiptListResponse{
		Items:  items,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}
