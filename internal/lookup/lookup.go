// Package lookup queries an external product database by barcode.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"automatpos/backend/internal/cache"
	"automatpos/backend/internal/config"
	"automatpos/backend/internal/domain"
)

var ErrNotFound = errors.New("barcode not known to external api")

type Client struct {
	http     *http.Client
	baseURL  string
	cache    cache.LookupCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

func New(settings config.ExternalAPISettings, lookupCache cache.LookupCache, logger *zap.Logger) *Client {
	if lookupCache == nil {
		lookupCache = cache.NoopLookupCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:     &http.Client{Timeout: settings.Timeout()},
		baseURL:  strings.TrimRight(settings.BaseURL, "/"),
		cache:    lookupCache,
		cacheTTL: settings.CacheTTL(),
		logger:   logger,
	}
}

type productResponse struct {
	Status  int `json:"status"`
	Product struct {
		ProductName string `json:"product_name"`
		Brands      string `json:"brands"`
		Categories  string `json:"categories"`
		ImageURL    string `json:"image_url"`
	} `json:"product"`
}

// Lookup returns the external record for barcode. Results are cached; a single
// request is made per miss, bounded by the configured timeout.
func (c *Client) Lookup(ctx context.Context, barcode string) (*domain.LookupProduct, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, ErrNotFound
	}

	if cached, ok, err := c.cache.Get(ctx, barcode); err != nil {
		c.logger.Warn("lookup cache get failed", zap.String("barcode", barcode), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	endpoint := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(barcode))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "automatpos/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", barcode, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lookup %s: unexpected status %d", barcode, resp.StatusCode)
	}

	var payload productResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("lookup %s: decode: %w", barcode, err)
	}
	if payload.Status != 1 || strings.TrimSpace(payload.Product.ProductName) == "" {
		return nil, ErrNotFound
	}

	product := &domain.LookupProduct{
		Barcode:  barcode,
		Name:     strings.TrimSpace(payload.Product.ProductName),
		Brand:    firstOf(payload.Product.Brands),
		Category: firstOf(payload.Product.Categories),
		ImageURL: payload.Product.ImageURL,
		Source:   "external_api",
	}
	if err := c.cache.Set(ctx, barcode, product, c.cacheTTL); err != nil {
		c.logger.Warn("lookup cache set failed", zap.String("barcode", barcode), zap.Error(err))
	}
	return product, nil
}

// firstOf takes the first entry of a comma separated list.
func firstOf(list string) string {
	first, _, _ := strings.Cut(list, ",")
	return strings.TrimSpace(first)
}
