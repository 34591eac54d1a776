package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goclaw/fulfillment/pkg/api/response"
)

func TestRecovery(t *testing.T) {
	tests := []struct {
		name        string
		handler     http.HandlerFunc
		shouldPanic bool
		wantStatus  int
	}{
		{
			name: "no panic",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "panic with string",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic("card number 4242 leaked")
			},
			shouldPanic: true,
			wantStatus:  http.StatusInternalServerError,
		},
		{
			name: "panic with error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic(errors.New("gateway exploded"))
			},
			shouldPanic: true,
			wantStatus:  http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, entries := fileLogger(t)

			handler := RequestID()(Recovery(log)(tt.handler))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
			req.Header.Set(RequestIDHeader, "test-123")
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}

			logged := entries()
			if !tt.shouldPanic {
				if len(logged) != 0 {
					t.Errorf("expected no log entries, got %d", len(logged))
				}
				return
			}

			var errResp response.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
				t.Fatalf("failed to unmarshal error response: %v", err)
			}
			if errResp.Error.Code != response.ErrCodeInternalServer {
				t.Errorf("error code = %v, want %v", errResp.Error.Code, response.ErrCodeInternalServer)
			}
			if errResp.Error.RequestID != "test-123" {
				t.Errorf("request id = %q, want test-123", errResp.Error.RequestID)
			}
			if strings.Contains(w.Body.String(), "4242") || strings.Contains(w.Body.String(), "exploded") {
				t.Errorf("panic value leaked to client: %s", w.Body.String())
			}
			if len(logged) != 1 || logged[0]["message"] != "panic recovered" {
				t.Errorf("expected one panic log entry, got %v", logged)
			}
		})
	}
}

func TestRecovery_AbortHandlerPropagates(t *testing.T) {
	log, _ := fileLogger(t)
	handler := Recovery(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Errorf("expected ErrAbortHandler to propagate, got %v", r)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
