package cache

import (
	"context"
	"time"

	"apotekpos/backend/internal/domain"
)

// SummaryCache holds derived read models only (stock summaries, alert
// reports). The order-processing path never reads it; stock-summary keys are
// invalidated on every mutation of the product and alert reports rely on TTL.
type SummaryCache interface {
	GetStockSummary(ctx context.Context, productID string) (*domain.StockSummary, bool, error)
	SetStockSummary(ctx context.Context, productID string, summary *domain.StockSummary, ttl time.Duration) error
	InvalidateProduct(ctx context.Context, productID string) error
	GetAlertReport(ctx context.Context, windowDays int) (*domain.AlertReport, bool, error)
	SetAlertReport(ctx context.Context, windowDays int, report *domain.AlertReport, ttl time.Duration) error
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) GetStockSummary(_ context.Context, _ string) (*domain.StockSummary, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) SetStockSummary(_ context.Context, _ string, _ *domain.StockSummary, _ time.Duration) error {
	return nil
}

func (NoopSummaryCache) InvalidateProduct(_ context.Context, _ string) error {
	return nil
}

func (NoopSummaryCache) GetAlertReport(_ context.Context, _ int) (*domain.AlertReport, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) SetAlertReport(_ context.Context, _ int, _ *domain.AlertReport, _ time.Duration) error {
	return nil
}
