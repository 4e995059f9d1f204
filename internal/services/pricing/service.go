// Package pricing provides display-only USD quotes for the settlement
// currency. Quotes never feed a ledger or settlement decision; a stale or
// missing quote degrades the UI, nothing else.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"crest/internal/repositories/cache"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const quoteCacheKey = "pricing:usd:rate"

// Service quotes settlement currency amounts in USD.
type Service interface {
	// QuoteUSD converts amount to USD at the current cached rate.
	QuoteUSD(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error)
}

type service struct {
	baseURL  string
	http     *http.Client
	cache    *cache.CacheService
	cacheTTL time.Duration
}

// NewService creates a pricing service over the given rates endpoint. Cache
// may be nil, in which case every quote hits the endpoint.
func NewService(baseURL string, cacheService *cache.CacheService) Service {
	return &service{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 5 * time.Second},
		cache:    cacheService,
		cacheTTL: time.Minute,
	}
}

type rateResponse struct {
	USD string `json:"usd"`
}

func (s *service) QuoteUSD(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	rate, err := s.rate(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate).Round(2), nil
}

func (s *service) rate(ctx context.Context) (decimal.Decimal, error) {
	if s.cache != nil {
		var cached string
		if found, err := s.cache.Get(ctx, quoteCacheKey, &cached); err == nil && found {
			if rate, err := decimal.NewFromString(cached); err == nil {
				return rate, nil
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/rates/usd", nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build rate request: %w", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rates endpoint responded %d", resp.StatusCode)
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode rate response: %w", err)
	}

	rate, err := decimal.NewFromString(body.USD)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rates endpoint returned malformed rate %q: %w", body.USD, err)
	}

	if s.cache != nil {
		if err := s.cache.SetWithTTL(ctx, quoteCacheKey, rate.String(), s.cacheTTL); err != nil {
			zap.L().Debug("Failed to cache USD rate", zap.Error(err))
		}
	}

	return rate, nil
}
