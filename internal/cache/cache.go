package cache

import (
	"context"
	"time"

	"kiostara/backend/internal/domain"
)

type SummaryCache interface {
	Get(ctx context.Context, key string) (*domain.LowStockSummary, bool, error)
	Set(ctx context.Context, key string, value *domain.LowStockSummary, ttl time.Duration) error
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(_ context.Context, _ string) (*domain.LowStockSummary, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) Set(_ context.Context, _ string, _ *domain.LowStockSummary, _ time.Duration) error {
	return nil
}
