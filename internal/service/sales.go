package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"automatpos/backend/internal/domain"
	"automatpos/backend/internal/events"
	"automatpos/backend/internal/notify"
	"automatpos/backend/internal/pricing"
	"automatpos/backend/internal/receipt"
	"automatpos/backend/internal/store"
)

func validPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentMixed:
		return true
	default:
		return false
	}
}

// FinalizeSale turns a cart into a completed session and decremented stock in
// one transaction. The cart is either sent by the client in Items or is the
// persisted content of an active session named by SessionID.
//
// Receipt rendering, storage and email run after commit. Their failures are
// logged and reported through PDFURL and EmailSent; the sale stays final.
func (s *Service) FinalizeSale(ctx context.Context, req domain.FinalizeSaleRequest) (domain.FinalizeSaleResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.FinalizeSaleResponse{}, err
	}

	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	req.Notes = strings.TrimSpace(req.Notes)

	params := store.FinalizeParams{
		UserID:        actor.UserID,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	}
	var total int64
	if req.SessionID != nil && *req.SessionID > 0 {
		if len(req.Items) > 0 {
			return domain.FinalizeSaleResponse{}, invalid("items must be empty when session_id is given")
		}
		session, err := s.sessionForSale(ctx, *req.SessionID, actor)
		if err != nil {
			return domain.FinalizeSaleResponse{}, err
		}
		params.SessionID = session.ID
		params.ExpectedTotalCents = session.TotalGrossCents
		total = session.TotalGrossCents
	} else {
		lines, err := s.cartLines(ctx, req.Items)
		if err != nil {
			return domain.FinalizeSaleResponse{}, err
		}
		params.Items = lines
		total = pricing.Sum(lines).GrossCents
	}

	if !validPaymentMethod(req.PaymentMethod) {
		return domain.FinalizeSaleResponse{}, ErrInvalidPaymentMethod
	}
	received := req.PaymentReceivedCents
	if received == 0 && req.PaymentMethod == domain.PaymentCard {
		received = total
	}
	if received < total {
		return domain.FinalizeSaleResponse{}, invalid("payment_received_cents %d is less than the total %d", received, total)
	}
	params.PaymentReceivedCents = received
	params.Now = s.now()

	completed, err := s.repo.FinalizeSale(ctx, params)
	if err != nil {
		return domain.FinalizeSaleResponse{}, s.finalizeError(ctx, params, err)
	}

	resp := domain.FinalizeSaleResponse{
		SessionID:            completed.ID,
		ReceiptNumber:        receipt.Number(s.opts.ReceiptPrefix, completed.ID, completed.EndedAt.In(s.opts.Location)),
		ItemCount:            completed.ItemCount,
		TotalNetCents:        completed.TotalNetCents,
		TotalVATCents:        completed.TotalVATCents,
		TotalDepositCents:    completed.TotalDepositCents,
		TotalCents:           completed.TotalGrossCents,
		PaymentMethod:        completed.PaymentMethod,
		PaymentMethodLabel:   receipt.PaymentLabel(completed.PaymentMethod),
		PaymentReceivedCents: completed.PaymentReceivedCents,
		ChangeCents:          completed.ChangeCents,
	}

	s.logActivity(ctx, completed.ID, "sale_completed", map[string]any{
		"receipt_number": resp.ReceiptNumber,
		"total_cents":    resp.TotalCents,
		"payment_method": resp.PaymentMethod,
	})
	s.emit(events.Event{
		Name:      events.SaleCompleted,
		SessionID: completed.ID,
		UserID:    actor.UserID,
		Count:     completed.ItemCount,
		Amount:    completed.TotalGrossCents,
	})

	pdf := s.storeReceipt(ctx, completed, resp.ReceiptNumber, &resp)
	if s.notifier != nil && s.notifier.ReceiptsEnabled() {
		resp.EmailSent = s.notifier.SendReceipt(ctx, *completed, resp.ReceiptNumber, pdf)
		status := notify.StatusFailed
		if resp.EmailSent {
			status = notify.StatusSent
		}
		s.emit(events.Event{
			Name:      events.ReceiptEmailed,
			SessionID: completed.ID,
			Attrs:     map[string]string{"status": status},
		})
	}

	s.checkLowStock(ctx, completed.Items, actor.UserID)
	return resp, nil
}

// cartLines validates a client cart and snapshots each entry into a line item.
// Every problem is collected before returning.
func (s *Service) cartLines(ctx context.Context, items []domain.CartItem) ([]domain.LineItem, error) {
	if len(items) == 0 {
		return nil, invalid("cart has no items")
	}

	var problems []string
	ids := make([]int64, 0, len(items))
	for i, item := range items {
		if item.ProductID <= 0 {
			problems = append(problems, fmt.Sprintf("item %d: product reference is missing", i+1))
		} else {
			ids = append(ids, item.ProductID)
		}
		if item.Quantity <= 0 {
			problems = append(problems, fmt.Sprintf("item %d: quantity must be positive", i+1))
		}
	}

	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, s.dbError("load cart products", err)
	}

	lines := make([]domain.LineItem, 0, len(items))
	for i, item := range items {
		if item.ProductID <= 0 {
			continue
		}
		product, ok := products[item.ProductID]
		if !ok || !product.Active {
			problems = append(problems, fmt.Sprintf("item %d: product %d not found", i+1, item.ProductID))
			continue
		}
		if item.Quantity > 0 {
			lines = append(lines, pricing.Line(product, item.Quantity))
		}
	}

	if (len(lines) > 0 || len(problems) == 0) && pricing.Sum(lines).GrossCents <= 0 {
		problems = append(problems, "total must be greater than zero")
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return lines, nil
}

func (s *Service) sessionForSale(ctx context.Context, id int64, actor domain.Actor) (*domain.SalesSession, error) {
	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, s.dbError("load session", err, zap.Int64("session_id", id))
	}
	if session.UserID != actor.UserID {
		return nil, ErrSessionAccessDenied
	}
	if session.Status != domain.SessionActive {
		return nil, ErrSessionState
	}
	if len(session.Items) == 0 {
		return nil, invalid("session %d has no items", id)
	}
	if session.TotalGrossCents <= 0 {
		return nil, invalid("total must be greater than zero")
	}
	return session, nil
}

func (s *Service) finalizeError(ctx context.Context, params store.FinalizeParams, err error) error {
	s.emit(events.Event{Name: events.SaleFailed, SessionID: params.SessionID, UserID: params.UserID})

	switch {
	case errors.Is(err, store.ErrInsufficientStock):
		return err
	case errors.Is(err, store.ErrInvalidTransaction):
		return invalid("cart has no items")
	case params.SessionID > 0 && errors.Is(err, store.ErrNotFound):
		return ErrSessionNotFound
	case params.SessionID > 0 && errors.Is(err, store.ErrNotOwner):
		return ErrSessionAccessDenied
	case params.SessionID > 0 && errors.Is(err, store.ErrSessionState):
		return ErrSessionState
	}

	wrapped := s.dbError("finalize sale", err, zap.Int64("session_id", params.SessionID), zap.Int64("user_id", params.UserID))
	if params.SessionID > 0 {
		if markErr := s.repo.UpdateSessionStatus(ctx, params.SessionID, domain.SessionActive, domain.SessionError, s.now()); markErr != nil {
			s.logger.Warn("mark session as error failed", zap.Int64("session_id", params.SessionID), zap.Error(markErr))
		} else {
			s.logActivity(ctx, params.SessionID, "sale_failed", nil)
		}
	}
	return wrapped
}

// storeReceipt renders the PDF and writes it to receipt storage. It returns
// the rendered bytes, or nil when rendering is not configured or failed.
func (s *Service) storeReceipt(ctx context.Context, session *domain.SalesSession, number string, resp *domain.FinalizeSaleResponse) []byte {
	if s.renderer == nil {
		return nil
	}
	pdf, err := s.renderer.Render(*session, number)
	if err != nil {
		s.logger.Warn("receipt render failed", zap.Int64("session_id", session.ID), zap.Error(err))
		return nil
	}
	if s.disk == nil {
		return pdf
	}

	key := fmt.Sprintf("%d/%s.pdf", session.EndedAt.In(s.opts.Location).Year(), number)
	path, err := s.disk.Put(ctx, key, pdf, "application/pdf")
	if err != nil {
		s.logger.Warn("receipt store failed", zap.Int64("session_id", session.ID), zap.Error(err))
		return pdf
	}
	if err := s.repo.SetReceiptPath(ctx, session.ID, path); err != nil {
		s.logger.Warn("receipt path update failed", zap.Int64("session_id", session.ID), zap.Error(err))
	}
	session.ReceiptPath = path
	resp.PDFURL = s.disk.URL(path)
	return pdf
}

// checkLowStock emits one event per sold product that is now at or below its minimum.
func (s *Service) checkLowStock(ctx context.Context, items []domain.LineItem, userID int64) {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("low stock check failed", zap.Error(err))
		return
	}
	seen := make(map[int64]bool, len(products))
	for _, item := range items {
		if seen[item.ProductID] {
			continue
		}
		seen[item.ProductID] = true
		if product, ok := products[item.ProductID]; ok && product.LowStock() {
			s.emitLowStock(product, userID)
		}
	}
}
