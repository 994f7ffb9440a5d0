package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSortOrder(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string returns DESC", "", "DESC"},
		{"ASC uppercase returns ASC", "ASC", "ASC"},
		{"asc lowercase returns ASC", "asc", "ASC"},
		{"desc returns DESC", "desc", "DESC"},
		{"invalid value returns DESC", "INVALID", "DESC"},
		{"sql injection attempt returns DESC", "ASC; DROP TABLE invoices;--", "DESC"},
		{"whitespace around ASC returns ASC", "  asc  ", "ASC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortOrder(tt.input))
		})
	}
}

func TestValidateSortField(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"whitelisted field", "due_date", "due_date"},
		{"whitespace is trimmed", " total ", "total"},
		{"empty falls back to default", "", "issue_date"},
		{"unknown column falls back", "student_id", "issue_date"},
		{"injection falls back", "total; DELETE FROM invoices", "issue_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortField(tt.input, InvoiceSortFields, "issue_date"))
		})
	}
}

func TestInvoiceOrder(t *testing.T) {
	assert.Equal(t, "issue_date DESC, invoice_number DESC", invoiceOrder("", ""))
	assert.Equal(t, "due_date ASC, invoice_number ASC", invoiceOrder("due_date", "asc"))
	assert.Equal(t, "invoice_number ASC", invoiceOrder("invoice_number", "ASC"))
	assert.Equal(t, "issue_date DESC, invoice_number DESC", invoiceOrder("paid_at", "sideways"))
}
