package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automatpos/backend/internal/domain"
	"automatpos/backend/internal/events"
	"automatpos/backend/internal/lookup"
)

type fakeLookup struct {
	product *domain.LookupProduct
	err     error
	calls   int
}

func (l *fakeLookup) Lookup(_ context.Context, barcode string) (*domain.LookupProduct, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	found := *l.product
	found.Barcode = barcode
	return &found, nil
}

func TestCreateProductAppliesDefaults(t *testing.T) {
	f := newFixture(t, Options{DefaultVATRate: 19, DefaultMinStock: 5})

	created, err := f.svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Barcode:      " 4000000000073 ",
		Name:         "Iced Tea 0.5l",
		PriceCents:   190,
		DepositCents: 25,
		InitialStock: 12,
	})
	require.NoError(t, err)
	assert.Equal(t, "4000000000073", created.Barcode)
	assert.Equal(t, 19.0, created.VATRate)
	assert.Equal(t, 5, created.MinStock)
	assert.True(t, created.Active)

	_, err = f.svc.CreateProduct(cashierCtx(), domain.ProductCreateRequest{Name: "Nope", PriceCents: 1})
	require.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{Barcode: "4000000000011", Name: "Cola clone", PriceCents: 150})
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{PriceCents: -1})
	var validation *ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Len(t, validation.Problems, 2)
}

func TestListProductsAndLowStock(t *testing.T) {
	f := newFixture(t, Options{})

	products, err := f.svc.ListProducts(cashierCtx())
	require.NoError(t, err)
	assert.Len(t, products, 6)

	low, err := f.svc.ListLowStock(cashierCtx())
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, gummyID, low[0].ID)
}

func TestProcessScanSellAndRestock(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := cashierCtx()

	sold, err := f.svc.ProcessScan(ctx, domain.ScanRequest{Barcode: "4000000000066", Action: domain.ScanSell})
	require.NoError(t, err)
	assert.Equal(t, 4, sold.OldStock)
	assert.Equal(t, 3, sold.NewStock)
	assert.Equal(t, 3, sold.Product.Stock)
	assert.True(t, sold.LowStock)
	assert.Len(t, f.events.named(events.StockLow), 1)

	_, err = f.svc.ProcessScan(ctx, domain.ScanRequest{Barcode: "4000000000066", Action: domain.ScanSell, Quantity: 10})
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 3, f.stock(t, gummyID))

	restocked, err := f.svc.ProcessScan(ctx, domain.ScanRequest{Barcode: "4000000000011", Action: domain.ScanRestock, Quantity: 12})
	require.NoError(t, err)
	assert.Equal(t, 60, restocked.NewStock)
	assert.False(t, restocked.LowStock)

	movements, err := f.repo.ListStockMovements(context.Background(), colaID, 10)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, "scan_restock", movements[0].Reason)

	scans := f.repo.ScanLogs()
	require.Len(t, scans, 2)
	assert.Equal(t, domain.ScanSell, scans[0].Action)
	assert.Equal(t, domain.ScanRestock, scans[1].Action)
	assert.Equal(t, cashierID, scans[1].UserID)

	_, err = f.svc.ProcessScan(ctx, domain.ScanRequest{Barcode: "4000000000011", Action: "steal"})
	require.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.ProcessScan(ctx, domain.ScanRequest{Barcode: "0000", Action: domain.ScanSell})
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestCheckBarcodeFallsBackToLookup(t *testing.T) {
	external := &fakeLookup{product: &domain.LookupProduct{Name: "Mystery Soda", Source: "openfoodfacts"}}
	f := newFixture(t, Options{LookupEnabled: true}, WithLookup(external))
	ctx := cashierCtx()

	local, err := f.svc.CheckBarcode(ctx, "4000000000011")
	require.NoError(t, err)
	assert.True(t, local.Found)
	require.NotNil(t, local.Product)
	assert.Equal(t, "Cola 0.33l", local.Product.Name)
	assert.Zero(t, external.calls)

	remote, err := f.svc.CheckBarcode(ctx, "7612345678900")
	require.NoError(t, err)
	assert.False(t, remote.Found)
	require.NotNil(t, remote.Suggestion)
	assert.Equal(t, "Mystery Soda", remote.Suggestion.Name)
	assert.Equal(t, "7612345678900", remote.Suggestion.Barcode)

	external.err = lookup.ErrNotFound
	missing, err := f.svc.CheckBarcode(ctx, "7612345678901")
	require.NoError(t, err)
	assert.Nil(t, missing.Suggestion)

	_, err = f.svc.CheckBarcode(ctx, "  ")
	require.ErrorIs(t, err, ErrValidation)
}

func TestCheckBarcodeSkipsDisabledLookup(t *testing.T) {
	external := &fakeLookup{product: &domain.LookupProduct{Name: "Mystery Soda"}}
	f := newFixture(t, Options{}, WithLookup(external))

	result, err := f.svc.CheckBarcode(cashierCtx(), "7612345678900")
	require.NoError(t, err)
	assert.False(t, result.Found)
	assert.Nil(t, result.Suggestion)
	assert.Zero(t, external.calls)
}
