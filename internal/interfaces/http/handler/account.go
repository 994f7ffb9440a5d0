package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/application/reconciliation"
	"github.com/musicschool/ledger/internal/domain/shared"
)

// AccountHandler serves the transaction ledger of a student
type AccountHandler struct {
	BaseHandler
	coordinator *reconciliation.Coordinator
}

// NewAccountHandler creates an AccountHandler
func NewAccountHandler(coordinator *reconciliation.Coordinator) *AccountHandler {
	return &AccountHandler{coordinator: coordinator}
}

// Transactions handles GET /students/:studentId/transactions
func (h *AccountHandler) Transactions(c *gin.Context) {
	studentID, ok := h.PathUUID(c, "studentId")
	if !ok {
		return
	}
	var filter reconciliation.TransactionHistoryFilter
	if !h.BindQuery(c, &filter) {
		return
	}
	if raw := c.Query("invoice_id"); raw != "" {
		invoiceID, err := uuid.Parse(raw)
		if err != nil {
			h.HandleError(c, shared.NewValidationError("invoice_id must be a UUID"))
			return
		}
		filter.InvoiceID = &invoiceID
	}

	page, err := h.coordinator.GetTransactionHistory(c.Request.Context(), studentID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, page)
}

// Balance handles GET /students/:studentId/balance. The optional as_of query
// parameter is an RFC 3339 timestamp or a date, which means the end of that day.
func (h *AccountHandler) Balance(c *gin.Context) {
	studentID, ok := h.PathUUID(c, "studentId")
	if !ok {
		return
	}
	var asOf *time.Time
	if raw := c.Query("as_of"); raw != "" {
		t, err := parseAsOf(raw)
		if err != nil {
			h.HandleError(c, shared.NewValidationError("as_of must be RFC 3339 or YYYY-MM-DD"))
			return
		}
		asOf = &t
	}

	balance, err := h.coordinator.GetStudentBalance(c.Request.Context(), studentID, asOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, balance)
}

func parseAsOf(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}
