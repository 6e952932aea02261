package receipt

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automatpos/backend/internal/domain"
)

func TestNumberIsZeroPaddedPerYear(t *testing.T) {
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, "AMP-2024-000042", Number("AMP", 42, at))
	assert.Equal(t, "AMP-2024-000042", Number("", 42, at))
	assert.Equal(t, "KIOSK-2024-1234567", Number("KIOSK", 1234567, at))
	assert.NotEqual(t, Number("AMP", 41, at), Number("AMP", 42, at))
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "3.00 EUR", FormatCents(300, "EUR"))
	assert.Equal(t, "0.05", FormatCents(5, ""))
	assert.Equal(t, "-1.20", FormatCents(-120, ""))
}

func TestPaymentLabel(t *testing.T) {
	assert.Equal(t, "Cash", PaymentLabel(domain.PaymentCash))
	assert.Equal(t, "Cash & Card", PaymentLabel(domain.PaymentMixed))
}

func TestRenderProducesPDF(t *testing.T) {
	ended := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	session := domain.SalesSession{
		ID:                   42,
		EndedAt:              &ended,
		TotalNetCents:        252,
		TotalVATCents:        48,
		TotalGrossCents:      300,
		PaymentMethod:        domain.PaymentCash,
		PaymentReceivedCents: 500,
		ChangeCents:          200,
		Items: []domain.LineItem{{
			ProductName: "Cola", Quantity: 2, UnitPriceCents: 150, VATRate: 19,
			NetCents: 252, VATCents: 48, GrossCents: 300, TotalCents: 300,
		}},
	}

	out, err := Renderer{ShopName: "Automat POS", Currency: "EUR"}.Render(session, "AMP-2024-000042")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestCoreFontTextIsTranslated(t *testing.T) {
	tr := cp1252()
	assert.Equal(t, "M\xfcsli 2.00 \x80", tr("Müsli 2.00 €"))
	assert.Equal(t, "Cola", tr("Cola"))

	ended := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	out, err := Renderer{ShopName: "Kiosk Süd", Currency: "€"}.Render(domain.SalesSession{
		ID:      7,
		EndedAt: &ended,
		Items:   []domain.LineItem{{ProductName: "Würzige Brezel", Quantity: 1, UnitPriceCents: 200, GrossCents: 200, TotalCents: 200}},
	}, "AMP-2024-000007")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}
