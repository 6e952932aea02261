package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"automatpos/backend/internal/domain"
	"automatpos/backend/internal/events"
	"automatpos/backend/internal/lookup"
	"automatpos/backend/internal/store"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, s.dbError("list products", err)
	}
	return products, nil
}

func (s *Service) ListLowStock(ctx context.Context) ([]domain.Product, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	products, err := s.repo.ListLowStockProducts(ctx)
	if err != nil {
		return nil, s.dbError("list low stock products", err)
	}
	return products, nil
}

// CreateProduct adds a catalog entry. VAT rate and minimum stock fall back to
// the configured product defaults when omitted. Admin only.
func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		Barcode:            strings.TrimSpace(req.Barcode),
		Name:               strings.TrimSpace(req.Name),
		PriceCents:         req.PriceCents,
		DepositCents:       req.DepositCents,
		VATRate:            s.opts.DefaultVATRate,
		PurchasePriceCents: req.PurchasePriceCents,
		Stock:              req.InitialStock,
		MinStock:           s.opts.DefaultMinStock,
		Category:           strings.TrimSpace(req.Category),
	}
	if req.VATRate != nil {
		product.VATRate = *req.VATRate
	}
	if req.MinStock != nil {
		product.MinStock = *req.MinStock
	}

	var problems []string
	if product.Name == "" {
		problems = append(problems, "name is required")
	}
	if product.PriceCents < 0 {
		problems = append(problems, "price_cents must not be negative")
	}
	if product.DepositCents < 0 {
		problems = append(problems, "deposit_cents must not be negative")
	}
	if product.PurchasePriceCents < 0 {
		problems = append(problems, "purchase_price_cents must not be negative")
	}
	if product.VATRate < 0 || product.VATRate > 100 {
		problems = append(problems, "vat_rate must be between 0 and 100")
	}
	if product.Stock < 0 {
		problems = append(problems, "initial_stock must not be negative")
	}
	if product.MinStock < 0 {
		problems = append(problems, "min_stock must not be negative")
	}
	if len(problems) > 0 {
		return domain.Product{}, &ValidationError{Problems: problems}
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransaction) {
			return domain.Product{}, invalid("barcode %q is already in use", product.Barcode)
		}
		return domain.Product{}, s.dbError("create product", err, zap.Int64("user_id", actor.UserID))
	}
	return *created, nil
}

// CheckBarcode resolves a barcode against the local catalog and, when it is
// unknown locally and the external API is enabled, asks the lookup service
// for a suggestion. Lookup failures are logged and reported as not found.
func (s *Service) CheckBarcode(ctx context.Context, barcode string) (domain.BarcodeCheck, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.BarcodeCheck{}, err
	}
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.BarcodeCheck{}, invalid("barcode is required")
	}

	product, err := s.repo.GetProductByBarcode(ctx, barcode)
	switch {
	case err == nil:
		return domain.BarcodeCheck{Found: true, Product: product}, nil
	case !errors.Is(err, store.ErrNotFound):
		return domain.BarcodeCheck{}, s.dbError("check barcode", err, zap.String("barcode", barcode))
	}

	if !s.opts.LookupEnabled || s.lookup == nil {
		return domain.BarcodeCheck{}, nil
	}
	suggestion, err := s.lookup.Lookup(ctx, barcode)
	if err != nil {
		if !errors.Is(err, lookup.ErrNotFound) {
			s.logger.Warn("external barcode lookup failed", zap.String("barcode", barcode), zap.Error(err))
		}
		return domain.BarcodeCheck{}, nil
	}
	return domain.BarcodeCheck{Suggestion: suggestion}, nil
}

// ProcessScan sells or restocks qty units of the scanned product as one
// stock movement and records the scan.
func (s *Service) ProcessScan(ctx context.Context, req domain.ScanRequest) (domain.ScanResult, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.ScanResult{}, err
	}

	req.Barcode = strings.TrimSpace(req.Barcode)
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	var problems []string
	if req.Barcode == "" {
		problems = append(problems, "barcode is required")
	}
	if req.Action != domain.ScanSell && req.Action != domain.ScanRestock {
		problems = append(problems, "action must be sell or restock")
	}
	if req.Quantity < 0 {
		problems = append(problems, "quantity must be positive")
	}
	if len(problems) > 0 {
		return domain.ScanResult{}, &ValidationError{Problems: problems}
	}

	product, err := s.findProduct(ctx, 0, req.Barcode)
	if err != nil {
		return domain.ScanResult{}, err
	}

	delta := req.Quantity
	reason := "scan_restock"
	if req.Action == domain.ScanSell {
		delta = -req.Quantity
		reason = "scan_sell"
	}

	now := s.now()
	movement, err := s.repo.AdjustStock(ctx, domain.StockAdjustment{
		ProductID: product.ID,
		Delta:     delta,
		Reason:    reason,
		UserID:    actor.UserID,
		At:        now,
	})
	if err != nil {
		if errors.Is(err, store.ErrInsufficientStock) {
			return domain.ScanResult{}, err
		}
		return domain.ScanResult{}, s.dbError("adjust stock", err, zap.Int64("product_id", product.ID))
	}

	productID := product.ID
	if err := s.repo.CreateScanLog(ctx, domain.ScanLog{
		Barcode:   req.Barcode,
		ProductID: &productID,
		Action:    req.Action,
		Quantity:  req.Quantity,
		UserID:    actor.UserID,
		CreatedAt: now,
	}); err != nil {
		s.logger.Warn("scan log write failed", zap.Int64("product_id", product.ID), zap.Error(err))
	}

	product.Stock = movement.NewStock
	result := domain.ScanResult{
		Product:  *product,
		Action:   req.Action,
		OldStock: movement.OldStock,
		NewStock: movement.NewStock,
		LowStock: product.LowStock(),
	}
	if req.Action == domain.ScanSell && result.LowStock {
		s.emitLowStock(*product, actor.UserID)
	}
	return result, nil
}

func (s *Service) findProduct(ctx context.Context, id int64, barcode string) (*domain.Product, error) {
	var (
		product *domain.Product
		err     error
	)
	if id > 0 {
		product, err = s.repo.GetProduct(ctx, id)
	} else {
		product, err = s.repo.GetProductByBarcode(ctx, barcode)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, s.dbError("load product", err, zap.Int64("product_id", id), zap.String("barcode", barcode))
	}
	if !product.Active {
		return nil, ErrProductNotFound
	}
	return product, nil
}

func (s *Service) emitLowStock(product domain.Product, userID int64) {
	s.emit(events.Event{
		Name:   events.StockLow,
		UserID: userID,
		Count:  product.Stock,
		Attrs:  map[string]string{"product": product.Name, "barcode": product.Barcode},
	})
}
