package invoicing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/musicschool/ledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// PricingItem is one priced position of an enrollment, e.g. a course term
type PricingItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	CourseID    *uuid.UUID      `json:"course_id,omitempty"`
}

// PricingSnapshot freezes course pricing and VAT at the moment an invoice is
// created. Recalculation only ever reads the snapshot, never live prices.
type PricingSnapshot struct {
	Items           []PricingItem   `json:"items"`
	VATRate         decimal.Decimal `json:"vat_rate"`         // flat percentage, e.g. 21
	DiscountPercent decimal.Decimal `json:"discount_percent"` // applied to the net subtotal
}

// Validate checks the snapshot can produce invoice lines
func (p PricingSnapshot) Validate() error {
	if len(p.Items) == 0 {
		return shared.NewValidationError("pricing snapshot has no items")
	}
	if p.VATRate.IsNegative() || p.VATRate.GreaterThan(decimal.NewFromInt(100)) {
		return shared.NewValidationError("VAT rate must be between 0 and 100")
	}
	if p.DiscountPercent.IsNegative() || p.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
		return shared.NewValidationError("discount must be between 0 and 100 percent")
	}
	for i, item := range p.Items {
		if strings.TrimSpace(item.Description) == "" {
			return shared.NewValidationError("item %d: description cannot be empty", i+1)
		}
		if !item.Quantity.IsPositive() {
			return shared.NewValidationError("item %d: quantity must be positive", i+1)
		}
		if item.UnitPrice.IsNegative() {
			return shared.NewValidationError("item %d: unit price cannot be negative", i+1)
		}
	}
	return nil
}

// InvoiceLine is one line of an invoice. Lines are regenerated as a whole,
// never patched in place.
type InvoiceLine struct {
	ID           uuid.UUID       `json:"id"`
	Position     int             `json:"position"`
	Description  string          `json:"description"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	VATRate      decimal.Decimal `json:"vat_rate"`
	LineTotal    decimal.Decimal `json:"line_total"` // quantity × unit price, net
	VATAmount    decimal.Decimal `json:"vat_amount"`
	SourceLineID *uuid.UUID      `json:"source_line_id,omitempty"` // credited original line
}

// Negated returns the credit copy of the line
func (l InvoiceLine) Negated(invoiceID uuid.UUID, position int) InvoiceLine {
	source := l.ID
	return InvoiceLine{
		ID:           lineID(invoiceID, position),
		Position:     position,
		Description:  fmt.Sprintf("Credit: %s", l.Description),
		Quantity:     l.Quantity,
		UnitPrice:    l.UnitPrice.Neg(),
		VATRate:      l.VATRate,
		LineTotal:    l.LineTotal.Neg(),
		VATAmount:    l.VATAmount.Neg(),
		SourceLineID: &source,
	}
}

// InvoiceLines is a slice of InvoiceLine that implements GORM Scanner/Valuer for JSONB storage
type InvoiceLines []InvoiceLine

// Value implements driver.Valuer interface for GORM to store as JSONB
func (l InvoiceLines) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (l *InvoiceLines) Scan(value any) error {
	if value == nil {
		*l = InvoiceLines{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan InvoiceLines: unsupported type")
	}

	if len(bytes) == 0 {
		*l = InvoiceLines{}
		return nil
	}

	return json.Unmarshal(bytes, l)
}

// Totals are the derived sums of a set of lines
type Totals struct {
	Subtotal  decimal.Decimal
	VATAmount decimal.Decimal
	Total     decimal.Decimal
}

// SumLines derives subtotal, VAT and total from lines
func SumLines(lines []InvoiceLine) Totals {
	t := Totals{Subtotal: decimal.Zero, VATAmount: decimal.Zero}
	for _, l := range lines {
		t.Subtotal = t.Subtotal.Add(l.LineTotal)
		t.VATAmount = t.VATAmount.Add(l.VATAmount)
	}
	t.Total = t.Subtotal.Add(t.VATAmount)
	return t
}

// BuildLines generates invoice lines from a pricing snapshot. The output only
// depends on the invoice ID and the snapshot, so rebuilding is idempotent.
// A discount becomes its own negative line taxed at the same rate.
func BuildLines(invoiceID uuid.UUID, snapshot PricingSnapshot) []InvoiceLine {
	lines := make([]InvoiceLine, 0, len(snapshot.Items)+1)
	net := decimal.Zero
	for i, item := range snapshot.Items {
		total := valueobject.NewMoneyEUR(item.Quantity.Mul(item.UnitPrice)).Settle()
		lines = append(lines, InvoiceLine{
			ID:          lineID(invoiceID, i),
			Position:    i,
			Description: strings.TrimSpace(item.Description),
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			VATRate:     snapshot.VATRate,
			LineTotal:   total.Amount(),
			VATAmount:   total.VAT(snapshot.VATRate).Amount(),
		})
		net = net.Add(total.Amount())
	}

	if snapshot.DiscountPercent.IsPositive() {
		discount := valueobject.NewMoneyEUR(net).Discount(snapshot.DiscountPercent).Negate()
		position := len(lines)
		lines = append(lines, InvoiceLine{
			ID:          lineID(invoiceID, position),
			Position:    position,
			Description: fmt.Sprintf("Discount %s%%", snapshot.DiscountPercent.String()),
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   discount.Amount(),
			VATRate:     snapshot.VATRate,
			LineTotal:   discount.Amount(),
			VATAmount:   discount.VAT(snapshot.VATRate).Amount(),
		})
	}
	return lines
}

// lineID derives a stable line ID from the invoice and the line position.
func lineID(invoiceID uuid.UUID, position int) uuid.UUID {
	return uuid.NewSHA1(invoiceID, []byte(fmt.Sprintf("line:%d", position)))
}
