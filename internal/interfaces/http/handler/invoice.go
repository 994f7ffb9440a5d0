package handler

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/musicschool/ledger/internal/application/reconciliation"
)

// InvoiceHandler serves invoices, payments and credit invoices
type InvoiceHandler struct {
	BaseHandler
	coordinator *reconciliation.Coordinator
}

// NewInvoiceHandler creates an InvoiceHandler
func NewInvoiceHandler(coordinator *reconciliation.Coordinator) *InvoiceHandler {
	return &InvoiceHandler{coordinator: coordinator}
}

// bindOptionalJSON binds a body that may be absent entirely
func (h *InvoiceHandler) bindOptionalJSON(c *gin.Context, req any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		h.bindingError(c, err)
		return false
	}
	return true
}

// Create handles POST /students/:studentId/invoices
func (h *InvoiceHandler) Create(c *gin.Context) {
	studentID, ok := h.PathUUID(c, "studentId")
	if !ok {
		return
	}
	var req reconciliation.CreateInvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.StudentID = studentID
	req.ActorID = h.Actor(c)

	invoice, err := h.coordinator.CreateInvoice(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, invoice)
}

// ListByStudent handles GET /students/:studentId/invoices
func (h *InvoiceHandler) ListByStudent(c *gin.Context) {
	studentID, ok := h.PathUUID(c, "studentId")
	if !ok {
		return
	}
	var filter reconciliation.InvoiceListFilter
	if !h.BindQuery(c, &filter) {
		return
	}

	page, err := h.coordinator.GetInvoicesByStudent(c.Request.Context(), studentID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, page)
}

// Get handles GET /invoices/:id
func (h *InvoiceHandler) Get(c *gin.Context) {
	invoiceID, ok := h.PathUUID(c, "id")
	if !ok {
		return
	}
	invoice, err := h.coordinator.GetInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// Send handles POST /invoices/:id/send
func (h *InvoiceHandler) Send(c *gin.Context) {
	invoiceID, ok := h.PathUUID(c, "id")
	if !ok {
		return
	}
	var req reconciliation.SendInvoiceRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	req.InvoiceID = invoiceID
	req.ActorID = h.Actor(c)

	invoice, err := h.coordinator.SendInvoice(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// Recalculate handles POST /invoices/:id/recalculate
func (h *InvoiceHandler) Recalculate(c *gin.Context) {
	invoiceID, ok := h.PathUUID(c, "id")
	if !ok {
		return
	}
	var req reconciliation.RecalculateInvoiceRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	req.InvoiceID = invoiceID
	req.ActorID = h.Actor(c)

	invoice, err := h.coordinator.RecalculateInvoice(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// RecordPayment handles POST /invoices/:id/payments
func (h *InvoiceHandler) RecordPayment(c *gin.Context) {
	invoiceID, ok := h.PathUUID(c, "id")
	if !ok {
		return
	}
	var req reconciliation.RecordPaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.InvoiceID = invoiceID
	req.ActorID = h.Actor(c)

	result, err := h.coordinator.RecordPayment(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// Cancel handles POST /invoices/:id/cancel
func (h *InvoiceHandler) Cancel(c *gin.Context) {
	invoiceID, ok := h.PathUUID(c, "id")
	if !ok {
		return
	}
	var req reconciliation.CancelInvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.InvoiceID = invoiceID
	req.ActorID = h.Actor(c)

	invoice, err := h.coordinator.CancelInvoice(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// CreateCreditInvoice handles POST /invoices/:id/credit-invoices
func (h *InvoiceHandler) CreateCreditInvoice(c *gin.Context) {
	invoiceID, ok := h.PathUUID(c, "id")
	if !ok {
		return
	}
	var req reconciliation.CreateCreditInvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.InvoiceID = invoiceID
	req.ActorID = h.Actor(c)

	creditInvoice, err := h.coordinator.CreateCreditInvoice(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, creditInvoice)
}

// ConfirmCreditInvoice handles POST /invoices/:id/confirm
func (h *InvoiceHandler) ConfirmCreditInvoice(c *gin.Context) {
	invoiceID, ok := h.PathUUID(c, "id")
	if !ok {
		return
	}
	result, err := h.coordinator.ConfirmCreditInvoice(c.Request.Context(), reconciliation.ConfirmCreditInvoiceRequest{
		InvoiceID: invoiceID,
		ActorID:   h.Actor(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ApplyCreditInvoices handles POST /invoices/:id/apply-credit
func (h *InvoiceHandler) ApplyCreditInvoices(c *gin.Context) {
	invoiceID, ok := h.PathUUID(c, "id")
	if !ok {
		return
	}
	result, err := h.coordinator.ApplyCreditInvoices(c.Request.Context(), reconciliation.ApplyCreditInvoicesRequest{
		InvoiceID: invoiceID,
		ActorID:   h.Actor(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Verify handles GET /invoices/:id/verify
func (h *InvoiceHandler) Verify(c *gin.Context) {
	invoiceID, ok := h.PathUUID(c, "id")
	if !ok {
		return
	}
	result, err := h.coordinator.VerifyInvoiceBalance(c.Request.Context(), invoiceID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
