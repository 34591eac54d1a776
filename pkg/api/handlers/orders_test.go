package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goclaw/fulfillment/pkg/api/response"
	"github.com/goclaw/fulfillment/pkg/fulfillment"
	"github.com/goclaw/fulfillment/pkg/logger"
	"github.com/goclaw/fulfillment/pkg/order"
	"github.com/goclaw/fulfillment/pkg/storage/memory"
	"github.com/shopspring/decimal"
)

type fakeOrderService struct {
	placeResult  *order.Result
	placeErr     error
	cancelResult *order.CancelResult
	cancelErr    error
	interruptErr error

	gotRequest   order.Request
	gotCancel    [3]string
	gotInterrupt [2]string
}

func (f *fakeOrderService) PlaceOrder(_ context.Context, req order.Request) (*order.Result, error) {
	f.gotRequest = req
	return f.placeResult, f.placeErr
}

func (f *fakeOrderService) CancelOrder(_ context.Context, orderID, reservationRef, paymentRef string) (*order.CancelResult, error) {
	f.gotCancel = [3]string{orderID, reservationRef, paymentRef}
	return f.cancelResult, f.cancelErr
}

func (f *fakeOrderService) Interrupt(_ context.Context, orderID, reason string) error {
	f.gotInterrupt = [2]string{orderID, reason}
	return f.interruptErr
}

func testLogger() logger.Logger {
	return logger.New(&logger.Config{Level: logger.ErrorLevel, Format: "json", Output: "stderr"})
}

func newOrderRouter(h *OrderHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/orders", h.PlaceOrder)
	r.Get("/api/v1/orders", h.ListOrders)
	r.Get("/api/v1/orders/{id}", h.GetOrder)
	r.Post("/api/v1/orders/{id}/cancel", h.CancelOrder)
	r.Post("/api/v1/orders/{id}/interrupt", h.InterruptOrder)
	return r
}

const placeOrderBody = `{
	"product_id": "SKU-1",
	"quantity": 2,
	"unit_price": "19.99",
	"customer_email": "ada@example.com",
	"payment_token": "tok_visa",
	"shipping_address": {"street": "1 Main St", "city": "Austin", "zip": "73301", "country": "US"}
}`

func TestOrderHandler_PlaceOrder(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		result     *order.Result
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "completed",
			body:       placeOrderBody,
			result:     &order.Result{Success: true, OrderID: "ORD-1", Status: "completed"},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "business decline",
			body:       placeOrderBody,
			result:     &order.Result{Success: false, OrderID: "ORD-2", Status: "compensated"},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "validation error",
			body:       placeOrderBody,
			result:     &order.Result{OrderID: "ORD-3"},
			err:        &order.ValidationError{Fields: []order.FieldError{{Field: "quantity", Message: "must be at least 1"}}},
			wantStatus: http.StatusBadRequest,
			wantCode:   response.ErrCodeValidationFailed,
		},
		{
			name:       "unknown provider",
			body:       placeOrderBody,
			result:     &order.Result{OrderID: "ORD-4"},
			err:        &order.UnknownProviderError{Provider: "venmo"},
			wantStatus: http.StatusNotFound,
			wantCode:   response.ErrCodeUnknownProvider,
		},
		{
			name:   "compensation failed",
			body:   placeOrderBody,
			result: &order.Result{OrderID: "ORD-5", Status: "compensation_failed"},
			err: &order.CompensationFailedError{
				SagaID:   "ORD-5",
				Original: &order.PaymentDeclinedError{Provider: "stripe", Reason: "card declined"},
				Failures: []order.CompensationFailure{{Step: "reserve-inventory", Action: "release-reservation", Err: errors.New("inventory down")}},
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   response.ErrCodeCompensationFailed,
		},
		{
			name:       "malformed body",
			body:       `{"quantity": "two"`,
			wantStatus: http.StatusBadRequest,
			wantCode:   response.ErrCodeBadRequest,
		},
		{
			name:       "empty body",
			body:       "",
			wantStatus: http.StatusBadRequest,
			wantCode:   response.ErrCodeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeOrderService{placeResult: tt.result, placeErr: tt.err}
			router := newOrderRouter(NewOrderHandler(svc, nil, testLogger()))

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(tt.body)))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantCode != "" {
				var errResp response.ErrorResponse
				if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
					t.Fatalf("decode error body: %v", err)
				}
				if errResp.Error.Code != tt.wantCode {
					t.Errorf("code = %s, want %s", errResp.Error.Code, tt.wantCode)
				}
				if tt.wantCode == response.ErrCodeCompensationFailed && errResp.Error.Details["result"] == nil {
					t.Error("expected result in compensation failure details")
				}
				return
			}

			var result order.Result
			if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
				t.Fatalf("decode result: %v", err)
			}
			if result.OrderID != tt.result.OrderID {
				t.Errorf("order id = %s, want %s", result.OrderID, tt.result.OrderID)
			}
			if tt.result.Success && w.Header().Get("Location") != "/api/v1/orders/"+tt.result.OrderID {
				t.Errorf("Location = %q", w.Header().Get("Location"))
			}
			if !svc.gotRequest.UnitPrice.Equal(decimal.RequireFromString("19.99")) || svc.gotRequest.ShippingAddress.Country != "US" {
				t.Errorf("request not decoded: %+v", svc.gotRequest)
			}
		})
	}
}

func TestOrderHandler_CancelOrder(t *testing.T) {
	t.Run("cancelled", func(t *testing.T) {
		svc := &fakeOrderService{cancelResult: &order.CancelResult{Success: true, OrderID: "ORD-1", RefundRef: "re_1"}}
		router := newOrderRouter(NewOrderHandler(svc, nil, testLogger()))

		body := `{"reservation_ref":"RES-1","payment_ref":"ch_1"}`
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/orders/ORD-1/cancel", strings.NewReader(body)))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body=%s", w.Code, w.Body.String())
		}
		if svc.gotCancel != [3]string{"ORD-1", "RES-1", "ch_1"} {
			t.Errorf("cancel args = %v", svc.gotCancel)
		}
	})

	t.Run("missing refs", func(t *testing.T) {
		svc := &fakeOrderService{}
		router := newOrderRouter(NewOrderHandler(svc, nil, testLogger()))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/orders/ORD-1/cancel", strings.NewReader(`{}`)))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
		if svc.gotCancel[0] != "" {
			t.Error("service should not be called")
		}
	})

	t.Run("mismatched refs", func(t *testing.T) {
		svc := &fakeOrderService{
			cancelResult: &order.CancelResult{OrderID: "ORD-1"},
			cancelErr:    order.NewValidationError("payment %q does not belong to order ORD-1", "ch_x"),
		}
		router := newOrderRouter(NewOrderHandler(svc, nil, testLogger()))

		body := `{"reservation_ref":"RES-1","payment_ref":"ch_x"}`
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/orders/ORD-1/cancel", strings.NewReader(body)))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})

	t.Run("incomplete", func(t *testing.T) {
		svc := &fakeOrderService{
			cancelResult: &order.CancelResult{OrderID: "ORD-1", Steps: []string{"Refund of ch_1 failed"}},
			cancelErr:    errors.New("refund-payment: provider unavailable"),
		}
		router := newOrderRouter(NewOrderHandler(svc, nil, testLogger()))

		body := `{"reservation_ref":"RES-1","payment_ref":"ch_1"}`
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/orders/ORD-1/cancel", strings.NewReader(body)))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", w.Code)
		}
		var errResp response.ErrorResponse
		_ = json.Unmarshal(w.Body.Bytes(), &errResp)
		if errResp.Error.Code != response.ErrCodeCancelIncomplete {
			t.Errorf("code = %s", errResp.Error.Code)
		}
	})

	t.Run("release done but refund rejected", func(t *testing.T) {
		svc := &fakeOrderService{
			cancelResult: &order.CancelResult{
				OrderID: "ORD-1",
				Steps:   []string{"Reservation RES-1 released", "Refund of ch_1 failed"},
			},
			cancelErr: &order.CancellationIncompleteError{
				OrderID:  "ORD-1",
				Failures: []error{order.NewValidationError("refund amount exceeds captured")},
			},
		}
		router := newOrderRouter(NewOrderHandler(svc, nil, testLogger()))

		body := `{"reservation_ref":"RES-1","payment_ref":"ch_1"}`
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/orders/ORD-1/cancel", strings.NewReader(body)))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", w.Code)
		}
		var errResp response.ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if errResp.Error.Code != response.ErrCodeCancelIncomplete {
			t.Errorf("code = %s", errResp.Error.Code)
		}
		result, ok := errResp.Error.Details["result"].(map[string]interface{})
		if !ok {
			t.Fatalf("details carry no result: %v", errResp.Error.Details)
		}
		if !strings.Contains(fmt.Sprint(result["steps"]), "Reservation RES-1 released") {
			t.Errorf("result steps = %v", result["steps"])
		}
	})
}

func TestOrderHandler_InterruptOrder(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantReason string
	}{
		{name: "with reason", body: `{"reason":"customer called"}`, wantStatus: http.StatusAccepted, wantReason: "customer called"},
		{name: "without body", body: "", wantStatus: http.StatusAccepted, wantReason: defaultInterruptReason},
		{name: "interrupts disabled", body: `{}`, err: fulfillment.ErrInterruptsDisabled, wantStatus: http.StatusServiceUnavailable, wantReason: defaultInterruptReason},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeOrderService{interruptErr: tt.err}
			router := newOrderRouter(NewOrderHandler(svc, nil, testLogger()))

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/orders/ORD-9/interrupt", strings.NewReader(tt.body)))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}
			if svc.gotInterrupt != [2]string{"ORD-9", tt.wantReason} {
				t.Errorf("interrupt args = %v", svc.gotInterrupt)
			}
		})
	}
}

func TestOrderHandler_Receipts(t *testing.T) {
	store := memory.NewMemoryStorage()
	ctx := context.Background()
	for i, provider := range []string{"stripe", "paypal", "stripe"} {
		err := store.SaveReceipt(ctx, &order.Receipt{
			OrderID:   "ORD-" + string(rune('A'+i)),
			Provider:  provider,
			Amount:    decimal.NewFromInt(10),
			Currency:  "USD",
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("save receipt: %v", err)
		}
	}
	router := newOrderRouter(NewOrderHandler(&fakeOrderService{}, store, testLogger()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/orders/ORD-A", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GetOrder status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/orders/ORD-Z", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("GetOrder unknown status = %d, want 404", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/orders?provider=stripe&limit=1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("ListOrders status = %d", w.Code)
	}
	var page struct {
		Items []order.Receipt `json:"items"`
		Total int             `json:"total"`
		Limit int             `json:"limit"`
	}
	if err := json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Total != 2 || len(page.Items) != 1 || page.Limit != 1 {
		t.Errorf("page = %+v", page)
	}
}

func TestOrderHandler_ReceiptsUnavailable(t *testing.T) {
	router := newOrderRouter(NewOrderHandler(&fakeOrderService{}, nil, testLogger()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}
