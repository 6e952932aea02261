package cache

import (
	"context"
	"time"

	"automatpos/backend/internal/domain"
)

// LookupCache stores external barcode lookups keyed by barcode.
type LookupCache interface {
	Get(ctx context.Context, barcode string) (*domain.LookupProduct, bool, error)
	Set(ctx context.Context, barcode string, value *domain.LookupProduct, ttl time.Duration) error
}

type NoopLookupCache struct{}

func (NoopLookupCache) Get(_ context.Context, _ string) (*domain.LookupProduct, bool, error) {
	return nil, false, nil
}

func (NoopLookupCache) Set(_ context.Context, _ string, _ *domain.LookupProduct, _ time.Duration) error {
	return nil
}
