package invoicing

import (
	"fmt"
	"time"
)

// NumberPrefix distinguishes the invoice number series
type NumberPrefix string

const (
	NumberPrefixInvoice       NumberPrefix = "INV"
	NumberPrefixCreditInvoice NumberPrefix = "CRN"
)

// FormatNumber renders an invoice number such as INV-2024-00042
func FormatNumber(prefix NumberPrefix, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%05d", prefix, year, seq)
}

// NumberYear returns the year a number series is keyed on
func NumberYear(issueDate time.Time) int {
	return issueDate.UTC().Year()
}
