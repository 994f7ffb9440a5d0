package dto

import (
	"net/http"
	"testing"

	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{shared.CodeValidation, http.StatusBadRequest},
		{shared.CodeInvalidStateTransition, http.StatusUnprocessableEntity},
		{shared.CodeInsufficientRemainingAmount, http.StatusUnprocessableEntity},
		{shared.CodeInvalidInvoiceState, http.StatusUnprocessableEntity},
		{shared.CodeOverpayment, http.StatusUnprocessableEntity},
		{shared.CodeApplicationNotFound, http.StatusNotFound},
		{shared.CodeNotFound, http.StatusNotFound},
		{shared.CodeConcurrencyConflict, http.StatusConflict},
		{shared.CodeStorage, http.StatusServiceUnavailable},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeIdempotencyInProgress, http.StatusConflict},
		{"SOMETHING_NEW", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, GetHTTPStatus(tt.code))
		})
	}
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(shared.CodeOverpayment, "too much", "req-1")
	assert.False(t, resp.Success)
	assert.Nil(t, resp.Data)
	assert.Equal(t, &ErrorInfo{Code: shared.CodeOverpayment, Message: "too much", RequestID: "req-1"}, resp.Error)
}

func TestNewSuccessResponseWithMeta(t *testing.T) {
	resp := NewSuccessResponseWithMeta([]int{1, 2}, 12, 2, 5, 3)
	assert.True(t, resp.Success)
	assert.Equal(t, &Meta{Total: 12, Page: 2, PageSize: 5, TotalPages: 3}, resp.Meta)
}
