package dto

import (
	"net/http"

	"github.com/musicschool/ledger/internal/domain/shared"
)

// Transport-level error codes. Domain codes come from the shared package.
const (
	ErrCodeInternal              = "INTERNAL_ERROR"
	ErrCodeBadRequest            = "BAD_REQUEST"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeRouteNotFound         = "ROUTE_NOT_FOUND"
	ErrCodeRequestTooLarge       = "REQUEST_TOO_LARGE"
	ErrCodeIdempotencyInProgress = "IDEMPOTENCY_IN_PROGRESS"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	shared.CodeValidation:                  http.StatusBadRequest,
	shared.CodeInvalidStateTransition:      http.StatusUnprocessableEntity,
	shared.CodeInsufficientRemainingAmount: http.StatusUnprocessableEntity,
	shared.CodeInvalidInvoiceState:         http.StatusUnprocessableEntity,
	shared.CodeOverpayment:                 http.StatusUnprocessableEntity,
	shared.CodeApplicationNotFound:         http.StatusNotFound,
	shared.CodeNotFound:                    http.StatusNotFound,
	shared.CodeConcurrencyConflict:         http.StatusConflict,
	shared.CodeStorage:                     http.StatusServiceUnavailable,

	ErrCodeInternal:              http.StatusInternalServerError,
	ErrCodeBadRequest:            http.StatusBadRequest,
	ErrCodeUnauthorized:          http.StatusUnauthorized,
	ErrCodeRouteNotFound:         http.StatusNotFound,
	ErrCodeRequestTooLarge:       http.StatusRequestEntityTooLarge,
	ErrCodeIdempotencyInProgress: http.StatusConflict,
}

// GetHTTPStatus returns the HTTP status code for an error code, 500 when the
// code is unknown
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
