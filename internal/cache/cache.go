package cache

import (
	"context"
	"time"

	"apotekpos/backend/internal/domain"
)

// SaleListCache keeps the recent-sales list warm between settlements.
// Settling a sale or a return invalidates it so cashiers always see the
// fresh list.
type SaleListCache interface {
	GetSales(ctx context.Context, key string) ([]domain.Sale, bool, error)
	SetSales(ctx context.Context, key string, sales []domain.Sale, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopSaleListCache struct{}

func (NoopSaleListCache) GetSales(_ context.Context, _ string) ([]domain.Sale, bool, error) {
	return nil, false, nil
}

func (NoopSaleListCache) SetSales(_ context.Context, _ string, _ []domain.Sale, _ time.Duration) error {
	return nil
}

func (NoopSaleListCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
