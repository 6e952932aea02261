package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automatpos/backend/internal/domain"
	"automatpos/backend/internal/events"
	"automatpos/backend/internal/store"
)

type fakeRenderer struct {
	err   error
	calls int
}

func (r *fakeRenderer) Render(session domain.SalesSession, number string) ([]byte, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-1.3 " + number), nil
}

type fakeDisk struct {
	puts map[string][]byte
}

func (d *fakeDisk) Put(_ context.Context, key string, content []byte, _ string) (string, error) {
	if d.puts == nil {
		d.puts = map[string][]byte{}
	}
	d.puts[key] = content
	return key, nil
}

func (d *fakeDisk) URL(path string) string {
	return "/receipts/" + path
}

type fakeNotifier struct {
	enabled   bool
	deliver   bool
	receipts  []string
	pdfs      [][]byte
	summaries []domain.SalesAnalytics
	lowStock  []domain.Product
}

func (n *fakeNotifier) ReceiptsEnabled() bool { return n.enabled }

func (n *fakeNotifier) SendReceipt(_ context.Context, _ domain.SalesSession, number string, pdf []byte) bool {
	n.receipts = append(n.receipts, number)
	n.pdfs = append(n.pdfs, pdf)
	return n.deliver
}

func (n *fakeNotifier) SendDailySummary(_ context.Context, _ time.Time, analytics domain.SalesAnalytics, lowStock []domain.Product) error {
	n.summaries = append(n.summaries, analytics)
	n.lowStock = lowStock
	return nil
}

func TestFinalizeSaleColaScenario(t *testing.T) {
	f := newFixture(t, Options{})
	vat := 19.0
	cola, err := f.svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Barcode:      "5000000000001",
		Name:         "Cola",
		PriceCents:   150,
		VATRate:      &vat,
		InitialStock: 10,
	})
	require.NoError(t, err)

	resp, err := f.svc.FinalizeSale(cashierCtx(), domain.FinalizeSaleRequest{
		Items:                []domain.CartItem{{ProductID: cola.ID, Quantity: 2}},
		PaymentMethod:        "cash",
		PaymentReceivedCents: 500,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(300), resp.TotalCents)
	assert.Equal(t, int64(252), resp.TotalNetCents)
	assert.Equal(t, int64(48), resp.TotalVATCents)
	assert.Equal(t, int64(200), resp.ChangeCents)
	assert.Equal(t, 2, resp.ItemCount)
	assert.Equal(t, "Cash", resp.PaymentMethodLabel)
	assert.Equal(t, "AMP-2024-000010", resp.ReceiptNumber)
	assert.False(t, resp.EmailSent)
	assert.Empty(t, resp.PDFURL)

	session, err := f.repo.GetSession(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, session.Status)
	assert.Equal(t, int64(300), session.TotalGrossCents)
	require.Len(t, session.Items, 1)
	line := session.Items[0]
	assert.Equal(t, int64(252), line.NetCents)
	assert.Equal(t, int64(48), line.VATCents)
	assert.Equal(t, int64(300), line.TotalCents)
	assert.Equal(t, "Cola", line.ProductName)
	assert.Equal(t, "5000000000001", line.Barcode)

	assert.Equal(t, 8, f.stock(t, cola.ID))
}

func TestFinalizeSaleDecrementsStockAndRecordsMovement(t *testing.T) {
	f := newFixture(t, Options{})

	resp, err := f.svc.FinalizeSale(cashierCtx(), domain.FinalizeSaleRequest{
		Items:         []domain.CartItem{{ProductID: colaID, Quantity: 3}},
		PaymentMethod: domain.PaymentCard,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(525), resp.TotalCents)
	assert.Equal(t, int64(75), resp.TotalDepositCents)
	assert.Equal(t, int64(525), resp.PaymentReceivedCents)
	assert.Zero(t, resp.ChangeCents)
	assert.Equal(t, "Card", resp.PaymentMethodLabel)

	assert.Equal(t, 45, f.stock(t, colaID))

	movements, err := f.repo.ListStockMovements(context.Background(), colaID, 10)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, 48, movements[0].OldStock)
	assert.Equal(t, 45, movements[0].NewStock)
	assert.Equal(t, -3, movements[0].Change)
	assert.Equal(t, "sale", movements[0].Reason)
	require.NotNil(t, movements[0].SessionID)
	assert.Equal(t, resp.SessionID, *movements[0].SessionID)

	session, err := f.repo.GetSession(context.Background(), resp.SessionID)
	require.NoError(t, err)
	require.Len(t, session.Items, 1)
	assert.Equal(t, 3, session.Items[0].Quantity)
	require.Len(t, f.events.named(events.SaleCompleted), 1)
	assert.Equal(t, int64(525), f.events.named(events.SaleCompleted)[0].Amount)
}

func TestFinalizeSaleInsufficientStockIsNoop(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.FinalizeSale(cashierCtx(), domain.FinalizeSaleRequest{
		Items: []domain.CartItem{
			{ProductID: colaID, Quantity: 1},
			{ProductID: gummyID, Quantity: 5},
		},
		PaymentMethod:        domain.PaymentCash,
		PaymentReceivedCents: 10000,
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, "insufficient_stock", ErrorCode(err))

	var shortage *store.InsufficientStockError
	require.True(t, errors.As(err, &shortage))
	require.Len(t, shortage.Items, 1)
	assert.Equal(t, gummyID, shortage.Items[0].ProductID)
	assert.Equal(t, 5, shortage.Items[0].Requested)
	assert.Equal(t, 4, shortage.Items[0].Available)

	assert.Equal(t, 48, f.stock(t, colaID))
	assert.Equal(t, 4, f.stock(t, gummyID))
	completed, err := f.repo.ListSessionsByStatus(context.Background(), domain.SessionCompleted)
	require.NoError(t, err)
	assert.Empty(t, completed)
	assert.Len(t, f.events.named(events.SaleFailed), 1)
}

func TestFinalizeSaleCollectsEveryProblem(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.FinalizeSale(cashierCtx(), domain.FinalizeSaleRequest{
		Items: []domain.CartItem{
			{ProductID: 0, Quantity: 1},
			{ProductID: colaID, Quantity: 0},
			{ProductID: 999999, Quantity: 2},
		},
		PaymentMethod: "bitcoin",
	})
	require.ErrorIs(t, err, ErrValidation)
	var validation *ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Len(t, validation.Problems, 3)
	assert.Contains(t, validation.Problems[0], "item 1")
	assert.Contains(t, validation.Problems[1], "item 2")
	assert.Contains(t, validation.Problems[2], "999999")

	_, err = f.svc.FinalizeSale(cashierCtx(), domain.FinalizeSaleRequest{PaymentMethod: domain.PaymentCash})
	require.ErrorIs(t, err, ErrValidation)
}

func TestFinalizeSaleReportsZeroTotalAlongsideOtherProblems(t *testing.T) {
	f := newFixture(t, Options{})
	sample, err := f.repo.CreateProduct(context.Background(), domain.Product{Name: "Free Sample", Stock: 10})
	require.NoError(t, err)

	_, err = f.svc.FinalizeSale(cashierCtx(), domain.FinalizeSaleRequest{
		Items: []domain.CartItem{
			{ProductID: sample.ID, Quantity: 1},
			{ProductID: 0, Quantity: 1},
		},
		PaymentMethod: domain.PaymentCash,
	})
	var validation *ValidationError
	require.True(t, errors.As(err, &validation))
	require.Len(t, validation.Problems, 2)
	assert.Contains(t, validation.Problems[0], "item 2")
	assert.Equal(t, "total must be greater than zero", validation.Problems[1])
}

func TestFinalizeSaleValidatesPayment(t *testing.T) {
	f := newFixture(t, Options{})
	cart := []domain.CartItem{{ProductID: colaID, Quantity: 1}}

	_, err := f.svc.FinalizeSale(cashierCtx(), domain.FinalizeSaleRequest{Items: cart, PaymentMethod: "bitcoin"})
	require.ErrorIs(t, err, ErrInvalidPaymentMethod)

	_, err = f.svc.FinalizeSale(cashierCtx(), domain.FinalizeSaleRequest{
		Items:                cart,
		PaymentMethod:        domain.PaymentCash,
		PaymentReceivedCents: 100,
	})
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 48, f.stock(t, colaID))

	resp, err := f.svc.FinalizeSale(cashierCtx(), domain.FinalizeSaleRequest{
		Items:                cart,
		PaymentMethod:        " Mixed ",
		PaymentReceivedCents: 200,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentMixed, resp.PaymentMethod)
	assert.Equal(t, "Cash & Card", resp.PaymentMethodLabel)
	assert.Equal(t, int64(25), resp.ChangeCents)
}

func TestFinalizeSaleFromSession(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := cashierCtx()
	session := f.openSession(t, ctx,
		domain.CartItem{ProductID: colaID, Quantity: 2},
		domain.CartItem{ProductID: waterID, Quantity: 1},
	)
	sessionID := session.ID

	_, err := f.svc.FinalizeSale(ctx, domain.FinalizeSaleRequest{
		SessionID:     &sessionID,
		Items:         []domain.CartItem{{ProductID: colaID, Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
	})
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.FinalizeSale(adminCtx(), domain.FinalizeSaleRequest{SessionID: &sessionID, PaymentMethod: domain.PaymentCard})
	require.ErrorIs(t, err, ErrSessionAccessDenied)

	resp, err := f.svc.FinalizeSale(ctx, domain.FinalizeSaleRequest{
		SessionID:            &sessionID,
		PaymentMethod:        domain.PaymentCash,
		PaymentReceivedCents: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, sessionID, resp.SessionID)
	assert.Equal(t, int64(495), resp.TotalCents)
	assert.Equal(t, int64(5), resp.ChangeCents)
	assert.Equal(t, 3, resp.ItemCount)

	completed, err := f.repo.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, completed.Status)
	assert.Nil(t, completed.LockedAt)
	require.NotNil(t, completed.EndedAt)
	assert.Len(t, completed.Items, 2)
	assert.Equal(t, 46, f.stock(t, colaID))
	assert.Equal(t, 35, f.stock(t, waterID))

	_, err = f.svc.FinalizeSale(ctx, domain.FinalizeSaleRequest{SessionID: &sessionID, PaymentMethod: domain.PaymentCard})
	require.ErrorIs(t, err, ErrSessionState)

	empty := f.openSession(t, ctx)
	emptyID := empty.ID
	_, err = f.svc.FinalizeSale(ctx, domain.FinalizeSaleRequest{SessionID: &emptyID, PaymentMethod: domain.PaymentCard})
	require.ErrorIs(t, err, ErrValidation)
}

func TestFinalizeSaleFromSessionKeepsSessionOnShortage(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := cashierCtx()
	session := f.openSession(t, ctx, domain.CartItem{ProductID: gummyID, Quantity: 5})
	sessionID := session.ID

	_, err := f.svc.FinalizeSale(ctx, domain.FinalizeSaleRequest{SessionID: &sessionID, PaymentMethod: domain.PaymentCard})
	require.ErrorIs(t, err, ErrInsufficientStock)

	unchanged, err := f.repo.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, unchanged.Status)
	assert.Equal(t, 4, f.stock(t, gummyID))
}

func TestFinalizeSaleStoresAndMailsReceipt(t *testing.T) {
	renderer := &fakeRenderer{}
	disk := &fakeDisk{}
	notifier := &fakeNotifier{enabled: true, deliver: true}
	f := newFixture(t, Options{ReceiptPrefix: "KIOSK"}, WithReceipts(renderer, disk), WithNotifier(notifier))

	resp, err := f.svc.FinalizeSale(cashierCtx(), domain.FinalizeSaleRequest{
		Items:         []domain.CartItem{{ProductID: chocolateID, Quantity: 1}},
		PaymentMethod: domain.PaymentCard,
	})
	require.NoError(t, err)

	assert.Equal(t, "KIOSK-2024-000009", resp.ReceiptNumber)
	assert.Equal(t, "/receipts/2024/KIOSK-2024-000009.pdf", resp.PDFURL)
	assert.True(t, resp.EmailSent)
	require.Contains(t, disk.puts, "2024/KIOSK-2024-000009.pdf")
	assert.Equal(t, []string{"KIOSK-2024-000009"}, notifier.receipts)
	assert.Equal(t, disk.puts["2024/KIOSK-2024-000009.pdf"], notifier.pdfs[0])

	session, err := f.repo.GetSession(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "2024/KIOSK-2024-000009.pdf", session.ReceiptPath)

	mails := f.events.named(events.ReceiptEmailed)
	require.Len(t, mails, 1)
	assert.Equal(t, "sent", mails[0].Attrs["status"])
}

func TestFinalizeSaleSurvivesReceiptFailures(t *testing.T) {
	renderer := &fakeRenderer{err: errors.New("font missing")}
	disk := &fakeDisk{}
	notifier := &fakeNotifier{enabled: true, deliver: false}
	f := newFixture(t, Options{}, WithReceipts(renderer, disk), WithNotifier(notifier))

	resp, err := f.svc.FinalizeSale(cashierCtx(), domain.FinalizeSaleRequest{
		Items:         []domain.CartItem{{ProductID: colaID, Quantity: 1}},
		PaymentMethod: domain.PaymentCard,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.PDFURL)
	assert.False(t, resp.EmailSent)
	assert.Equal(t, 1, renderer.calls)
	assert.Empty(t, disk.puts)
	require.Len(t, notifier.pdfs, 1)
	assert.Nil(t, notifier.pdfs[0])

	session, err := f.repo.GetSession(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, session.Status)
	assert.Equal(t, 47, f.stock(t, colaID))
	assert.Equal(t, "failed", f.events.named(events.ReceiptEmailed)[0].Attrs["status"])
}

func TestFinalizeSaleReportsLowStock(t *testing.T) {
	f := newFixture(t, Options{})

	resp, err := f.svc.FinalizeSale(cashierCtx(), domain.FinalizeSaleRequest{
		Items:         []domain.CartItem{{ProductID: gummyID, Quantity: 1}},
		PaymentMethod: domain.PaymentCard,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(110), resp.TotalCents)

	low := f.events.named(events.StockLow)
	require.Len(t, low, 1)
	assert.Equal(t, "Gummy Bears", low[0].Attrs["product"])
	assert.Equal(t, 3, low[0].Count)
}
