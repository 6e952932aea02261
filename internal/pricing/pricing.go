// Package pricing holds the cent arithmetic shared by the stores and the service.
package pricing

import (
	"math"

	"automatpos/backend/internal/domain"
)

// NetFromGross strips VAT from a gross amount, rounding half away from zero.
func NetFromGross(grossCents int64, vatRate float64) int64 {
	if vatRate <= 0 {
		return grossCents
	}
	return int64(math.Round(float64(grossCents) / (1 + vatRate/100)))
}

// Line snapshots a product into a line item for qty units.
func Line(product domain.Product, qty int) domain.LineItem {
	item := domain.LineItem{
		ProductID:        product.ID,
		ProductName:      product.Name,
		Barcode:          product.Barcode,
		Quantity:         qty,
		UnitPriceCents:   product.PriceCents,
		UnitDepositCents: product.DepositCents,
		VATRate:          product.VATRate,
	}
	Compute(&item)
	return item
}

// Compute fills the derived money fields of item from its quantity and unit snapshot.
func Compute(item *domain.LineItem) {
	qty := int64(item.Quantity)
	item.GrossCents = qty * item.UnitPriceCents
	item.NetCents = NetFromGross(item.GrossCents, item.VATRate)
	item.VATCents = item.GrossCents - item.NetCents
	item.DepositCents = qty * item.UnitDepositCents
	item.TotalCents = item.GrossCents + item.DepositCents
}

type Totals struct {
	ItemCount    int
	NetCents     int64
	VATCents     int64
	DepositCents int64
	GrossCents   int64
}

func Sum(items []domain.LineItem) Totals {
	var t Totals
	for _, item := range items {
		t.ItemCount += item.Quantity
		t.NetCents += item.NetCents
		t.VATCents += item.VATCents
		t.DepositCents += item.DepositCents
		t.GrossCents += item.TotalCents
	}
	return t
}

// Apply overwrites the aggregate columns of session with t.
func Apply(session *domain.SalesSession, t Totals) {
	session.ItemCount = t.ItemCount
	session.TotalNetCents = t.NetCents
	session.TotalVATCents = t.VATCents
	session.TotalDepositCents = t.DepositCents
	session.TotalGrossCents = t.GrossCents
}

// Change returns the amount handed back for received against total, never negative.
func Change(receivedCents, totalCents int64) int64 {
	if receivedCents <= totalCents {
		return 0
	}
	return receivedCents - totalCents
}
