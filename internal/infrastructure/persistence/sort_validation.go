package persistence

import (
	"strings"
)

// ValidateSortOrder normalizes the sort direction to ASC or DESC, defaulting to DESC
func ValidateSortOrder(orderDir string) string {
	if strings.EqualFold(strings.TrimSpace(orderDir), "ASC") {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField returns sortField if whitelisted, defaultField otherwise.
// The result is interpolated into ORDER BY, so only whitelisted names may pass.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// InvoiceSortFields are the columns invoice lists may be ordered by
var InvoiceSortFields = map[string]bool{
	"issue_date":     true,
	"due_date":       true,
	"invoice_number": true,
	"total":          true,
	"status":         true,
	"created_at":     true,
}

// invoiceOrder builds the ORDER BY clause of an invoice list. invoice_number
// breaks ties so pages are stable.
func invoiceOrder(sortBy, sortOrder string) string {
	field := ValidateSortField(sortBy, InvoiceSortFields, "issue_date")
	dir := ValidateSortOrder(sortOrder)
	if field == "invoice_number" {
		return "invoice_number " + dir
	}
	return field + " " + dir + ", invoice_number " + dir
}
