package receipt

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-pdf/fpdf"

	"automatpos/backend/internal/domain"
)

const DefaultPrefix = "AMP"

// Number formats the receipt number for a session: PREFIX-<year>-<id padded to 6 digits>.
func Number(prefix string, sessionID int64, at time.Time) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s-%d-%06d", prefix, at.Year(), sessionID)
}

func PaymentLabel(method string) string {
	switch method {
	case domain.PaymentCash:
		return "Cash"
	case domain.PaymentCard:
		return "Card"
	case domain.PaymentMixed:
		return "Cash & Card"
	default:
		return method
	}
}

// FormatCents renders an amount like "3.00 EUR".
func FormatCents(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	out := fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
	if currency != "" {
		out += " " + currency
	}
	return out
}

// cp1252 maps UTF-8 text onto the code page of the core PDF fonts, so
// umlauts and the euro sign print correctly.
var cp1252 = sync.OnceValue(func() func(string) string {
	return fpdf.New("P", "mm", "A4", "").UnicodeTranslatorFromDescriptor("")
})

type Renderer struct {
	ShopName string
	Currency string
	Location *time.Location
}

// Render produces a single-page A4 PDF for a completed session with its items loaded.
func (r Renderer) Render(session domain.SalesSession, number string) ([]byte, error) {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	issued := session.LastActivity
	if session.EndedAt != nil {
		issued = *session.EndedAt
	}

	tr := cp1252()
	money := func(cents int64, currency string) string { return tr(FormatCents(cents, currency)) }

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Receipt "+number, true)
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 8, tr(r.ShopName), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, tr("Receipt "+number), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, issued.In(loc).Format("02.01.2006 15:04"), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(80, 7, "Item", "B", 0, "L", false, 0, "")
	pdf.CellFormat(15, 7, "Qty", "B", 0, "R", false, 0, "")
	pdf.CellFormat(25, 7, "Unit", "B", 0, "R", false, 0, "")
	pdf.CellFormat(20, 7, "VAT", "B", 0, "R", false, 0, "")
	pdf.CellFormat(40, 7, "Total", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range session.Items {
		pdf.CellFormat(80, 6, tr(item.ProductName), "", 0, "L", false, 0, "")
		pdf.CellFormat(15, 6, fmt.Sprintf("%d", item.Quantity), "", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, money(item.UnitPriceCents, ""), "", 0, "R", false, 0, "")
		pdf.CellFormat(20, 6, fmt.Sprintf("%.0f%%", item.VATRate), "", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, money(item.GrossCents, r.Currency), "", 1, "R", false, 0, "")
		if item.DepositCents > 0 {
			pdf.SetFont("Helvetica", "I", 9)
			pdf.CellFormat(140, 5, "  deposit", "", 0, "L", false, 0, "")
			pdf.CellFormat(40, 5, money(item.DepositCents, r.Currency), "", 1, "R", false, 0, "")
			pdf.SetFont("Helvetica", "", 10)
		}
	}
	pdf.Ln(3)

	rows := []struct {
		label string
		cents int64
	}{
		{"Net", session.TotalNetCents},
		{"VAT", session.TotalVATCents},
		{"Deposit", session.TotalDepositCents},
	}
	for _, row := range rows {
		pdf.CellFormat(140, 6, row.label, "", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, money(row.cents, r.Currency), "", 1, "R", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(140, 8, "Total", "T", 0, "R", false, 0, "")
	pdf.CellFormat(40, 8, money(session.TotalGrossCents, r.Currency), "T", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(140, 6, tr("Paid ("+PaymentLabel(session.PaymentMethod)+")"), "", 0, "R", false, 0, "")
	pdf.CellFormat(40, 6, money(session.PaymentReceivedCents, r.Currency), "", 1, "R", false, 0, "")
	pdf.CellFormat(140, 6, "Change", "", 0, "R", false, 0, "")
	pdf.CellFormat(40, 6, money(session.ChangeCents, r.Currency), "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt %s: %w", number, err)
	}
	return buf.Bytes(), nil
}
