package invoicing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func snapshotOf(vat string, prices ...string) PricingSnapshot {
	items := make([]PricingItem, len(prices))
	for i, p := range prices {
		items[i] = PricingItem{Description: "Lesson block " + p, Quantity: dec("1"), UnitPrice: dec(p)}
	}
	return PricingSnapshot{Items: items, VATRate: dec(vat), DiscountPercent: decimal.Zero}
}

func TestBuildLines(t *testing.T) {
	invoiceID := uuid.New()

	t.Run("per-line VAT", func(t *testing.T) {
		lines := BuildLines(invoiceID, snapshotOf("21", "30", "20", "50"))
		require.Len(t, lines, 3)
		assert.True(t, lines[0].LineTotal.Equal(dec("30")))
		assert.True(t, lines[0].VATAmount.Equal(dec("6.30")))
		assert.True(t, lines[2].VATAmount.Equal(dec("10.50")))

		totals := SumLines(lines)
		assert.True(t, totals.Subtotal.Equal(dec("100")))
		assert.True(t, totals.VATAmount.Equal(dec("21")))
		assert.True(t, totals.Total.Equal(dec("121")))
	})

	t.Run("quantity and rounding", func(t *testing.T) {
		snapshot := PricingSnapshot{
			Items:   []PricingItem{{Description: "Guitar lesson", Quantity: dec("3"), UnitPrice: dec("33.33")}},
			VATRate: dec("21"),
		}
		lines := BuildLines(invoiceID, snapshot)
		require.Len(t, lines, 1)
		assert.True(t, lines[0].LineTotal.Equal(dec("99.99")))
		assert.True(t, lines[0].VATAmount.Equal(dec("21.00")), "20.9979 rounds to 21.00, got %s", lines[0].VATAmount)
	})

	t.Run("discount becomes a negative line", func(t *testing.T) {
		snapshot := snapshotOf("21", "100")
		snapshot.DiscountPercent = dec("10")
		lines := BuildLines(invoiceID, snapshot)
		require.Len(t, lines, 2)
		assert.Equal(t, "Discount 10%", lines[1].Description)
		assert.True(t, lines[1].LineTotal.Equal(dec("-10")))
		assert.True(t, lines[1].VATAmount.Equal(dec("-2.10")))
		assert.True(t, SumLines(lines).Total.Equal(dec("108.90")))
	})

	t.Run("deterministic", func(t *testing.T) {
		snapshot := snapshotOf("21", "30", "20")
		assert.Equal(t, BuildLines(invoiceID, snapshot), BuildLines(invoiceID, snapshot))

		other := BuildLines(uuid.New(), snapshot)
		assert.NotEqual(t, BuildLines(invoiceID, snapshot)[0].ID, other[0].ID)
	})
}

func TestPricingSnapshot_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PricingSnapshot)
	}{
		{"no items", func(s *PricingSnapshot) { s.Items = nil }},
		{"negative VAT", func(s *PricingSnapshot) { s.VATRate = dec("-1") }},
		{"VAT above 100", func(s *PricingSnapshot) { s.VATRate = dec("101") }},
		{"discount above 100", func(s *PricingSnapshot) { s.DiscountPercent = dec("150") }},
		{"empty description", func(s *PricingSnapshot) { s.Items[0].Description = " " }},
		{"zero quantity", func(s *PricingSnapshot) { s.Items[0].Quantity = decimal.Zero }},
		{"negative price", func(s *PricingSnapshot) { s.Items[0].UnitPrice = dec("-1") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := snapshotOf("21", "10")
			tt.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}

	assert.NoError(t, snapshotOf("0", "10").Validate())
}

func TestInvoiceLines_ScanValue(t *testing.T) {
	lines := InvoiceLines(BuildLines(uuid.New(), snapshotOf("21", "30")))

	v, err := lines.Value()
	require.NoError(t, err)

	var scanned InvoiceLines
	require.NoError(t, scanned.Scan([]byte(v.(string))))
	require.Len(t, scanned, 1)
	assert.Equal(t, lines[0].ID, scanned[0].ID)
	assert.True(t, scanned[0].VATAmount.Equal(dec("6.30")))

	var empty InvoiceLines
	require.NoError(t, empty.Scan(nil))
	assert.Empty(t, empty)
	assert.Error(t, empty.Scan(42))

	nilValue, err := InvoiceLines(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", nilValue)
}
