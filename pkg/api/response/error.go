package response

import (
	"errors"
	"net/http"

	"github.com/goclaw/fulfillment/pkg/order"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id"`
}

// Common error codes
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	ErrCodeConflict           = "CONFLICT"
	ErrCodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeUnprocessable      = "UNPROCESSABLE"
	ErrCodeUnknownProvider    = "UNKNOWN_PROVIDER"
	ErrCodeCompensationFailed = "COMPENSATION_FAILED"
	ErrCodeCancelIncomplete   = "CANCELLATION_INCOMPLETE"
	ErrCodeInternalServer     = "INTERNAL_SERVER_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeGatewayTimeout     = "GATEWAY_TIMEOUT"
)

// Common errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrValidationFailed   = errors.New("validation failed")
	ErrConflict           = errors.New("resource conflict")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("request timeout")
	ErrInternalServer     = errors.New("internal server error")
)

// HTTPStatusFromError maps common errors and order failures to HTTP status codes.
func HTTPStatusFromError(err error) int {
	var (
		unknown *order.UnknownProviderError
		comp    *order.CompensationFailedError
	)
	switch {
	case errors.As(err, &comp):
		return http.StatusInternalServerError
	case errors.Is(err, order.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.As(err, &unknown):
		return http.StatusNotFound
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCodeFromStatus returns an error code for the given HTTP status.
func ErrorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeBadRequest
	case http.StatusUnauthorized:
		return ErrCodeUnauthorized
	case http.StatusForbidden:
		return ErrCodeForbidden
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusMethodNotAllowed:
		return ErrCodeMethodNotAllowed
	case http.StatusConflict:
		return ErrCodeConflict
	case http.StatusRequestEntityTooLarge:
		return ErrCodePayloadTooLarge
	case http.StatusUnprocessableEntity:
		return ErrCodeUnprocessable
	case http.StatusServiceUnavailable:
		return ErrCodeServiceUnavailable
	case http.StatusGatewayTimeout:
		return ErrCodeGatewayTimeout
	default:
		return ErrCodeInternalServer
	}
}

// errorCode refines the status code for order failures.
func errorCode(err error, status int) string {
	var (
		ve      *order.ValidationError
		unknown *order.UnknownProviderError
		comp    *order.CompensationFailedError
	)
	switch {
	case errors.As(err, &comp):
		return ErrCodeCompensationFailed
	case errors.As(err, &ve):
		return ErrCodeValidationFailed
	case errors.As(err, &unknown):
		return ErrCodeUnknownProvider
	}
	return ErrorCodeFromStatus(status)
}

// HandleError is a convenience function to handle errors and write appropriate responses.
// Field level validation failures are reported under details.fields.
func HandleError(w http.ResponseWriter, err error, requestID string) {
	status := HTTPStatusFromError(err)
	code := errorCode(err, status)

	var ve *order.ValidationError
	if errors.As(err, &ve) && len(ve.Fields) > 0 {
		ErrorWithDetails(w, status, code, err.Error(), map[string]interface{}{"fields": ve.Fields}, requestID)
		return
	}
	Error(w, status, code, err.Error(), requestID)
}
