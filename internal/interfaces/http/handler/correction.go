package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/musicschool/ledger/internal/application/reconciliation"
)

// CorrectionHandler serves ledger entries (corrections) and their
// applications to invoices
type CorrectionHandler struct {
	BaseHandler
	coordinator *reconciliation.Coordinator
}

// NewCorrectionHandler creates a CorrectionHandler
func NewCorrectionHandler(coordinator *reconciliation.Coordinator) *CorrectionHandler {
	return &CorrectionHandler{coordinator: coordinator}
}

// Create handles POST /students/:studentId/corrections
func (h *CorrectionHandler) Create(c *gin.Context) {
	studentID, ok := h.PathUUID(c, "studentId")
	if !ok {
		return
	}
	var req reconciliation.CreateCorrectionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.StudentID = studentID
	req.ActorID = h.Actor(c)

	entry, err := h.coordinator.CreateCorrection(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, entry)
}

// ListByStudent handles GET /students/:studentId/corrections
func (h *CorrectionHandler) ListByStudent(c *gin.Context) {
	studentID, ok := h.PathUUID(c, "studentId")
	if !ok {
		return
	}
	var filter reconciliation.LedgerListFilter
	if !h.BindQuery(c, &filter) {
		return
	}

	page, err := h.coordinator.GetLedgerByStudent(c.Request.Context(), studentID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Page(c, page)
}

// Summary handles GET /students/:studentId/corrections/summary
func (h *CorrectionHandler) Summary(c *gin.Context) {
	studentID, ok := h.PathUUID(c, "studentId")
	if !ok {
		return
	}
	summary, err := h.coordinator.GetLedgerSummary(c.Request.Context(), studentID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// Get handles GET /corrections/:id
func (h *CorrectionHandler) Get(c *gin.Context) {
	entryID, ok := h.PathUUID(c, "id")
	if !ok {
		return
	}
	entry, err := h.coordinator.GetLedgerEntry(c.Request.Context(), entryID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// Reverse handles POST /corrections/:id/reverse
func (h *CorrectionHandler) Reverse(c *gin.Context) {
	entryID, ok := h.PathUUID(c, "id")
	if !ok {
		return
	}
	var req reconciliation.ReverseCorrectionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.EntryID = entryID
	req.ActorID = h.Actor(c)

	result, err := h.coordinator.ReverseCorrection(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// Apply handles POST /corrections/:id/apply
func (h *CorrectionHandler) Apply(c *gin.Context) {
	entryID, ok := h.PathUUID(c, "id")
	if !ok {
		return
	}
	var req reconciliation.ApplyCreditRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.EntryID = entryID
	req.ActorID = h.Actor(c)

	result, err := h.coordinator.ApplyCredit(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Decouple handles POST /applications/:id/decouple
func (h *CorrectionHandler) Decouple(c *gin.Context) {
	applicationID, ok := h.PathUUID(c, "id")
	if !ok {
		return
	}
	var req reconciliation.DecoupleApplicationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.ApplicationID = applicationID
	req.ActorID = h.Actor(c)

	result, err := h.coordinator.DecoupleApplication(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
