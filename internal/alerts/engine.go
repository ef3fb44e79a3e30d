package alerts

import (
	"context"
	"sort"
	"time"

	"apotekpos/backend/internal/cache"
	"apotekpos/backend/internal/domain"
)

// Engine builds operational alert reports (batches close to expiry, products
// under the low-stock threshold) from store snapshots handed in by the caller.
type Engine struct {
	cache    cache.SummaryCache
	cacheTTL time.Duration
}

func NewEngine(cacheStore cache.SummaryCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopSummaryCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

func (e *Engine) Report(
	ctx context.Context,
	windowDays int,
	products []domain.Product,
	batches []domain.Batch,
) domain.AlertReport {
	if cached, ok, err := e.cache.GetAlertReport(ctx, windowDays); err == nil && ok {
		return *cached
	}

	today := domain.Today()
	cutoff := domain.NewDate(today.AddDate(0, 0, windowDays))

	names := make(map[string]string, len(products))
	for _, product := range products {
		names[product.ID] = product.Name
	}

	expiring := make([]domain.ExpiryAlert, 0, len(batches))
	for _, batch := range batches {
		if batch.Qty <= 0 || batch.ExpiryDate.After(cutoff) {
			continue
		}
		expiring = append(expiring, domain.ExpiryAlert{
			BatchID:     batch.BatchID,
			ProductID:   batch.ProductID,
			ProductName: names[batch.ProductID],
			Qty:         batch.Qty,
			ExpiryDate:  batch.ExpiryDate,
			DaysLeft:    today.DaysUntil(batch.ExpiryDate),
		})
	}
	sort.Slice(expiring, func(i, j int) bool {
		if !expiring[i].ExpiryDate.Equal(expiring[j].ExpiryDate) {
			return expiring[i].ExpiryDate.Before(expiring[j].ExpiryDate)
		}
		return expiring[i].BatchID < expiring[j].BatchID
	})

	lowStock := make([]domain.LowStockAlert, 0, len(products))
	for _, product := range products {
		if product.Qty >= domain.LowStockThreshold {
			continue
		}
		lowStock = append(lowStock, domain.LowStockAlert{
			ProductID: product.ID,
			Name:      product.Name,
			Qty:       product.Qty,
			Threshold: domain.LowStockThreshold,
		})
	}
	sort.Slice(lowStock, func(i, j int) bool {
		if lowStock[i].Qty != lowStock[j].Qty {
			return lowStock[i].Qty < lowStock[j].Qty
		}
		return lowStock[i].ProductID < lowStock[j].ProductID
	})

	report := domain.AlertReport{
		GeneratedAt:  today,
		WindowDays:   windowDays,
		ExpiringSoon: expiring,
		LowStock:     lowStock,
	}
	_ = e.cache.SetAlertReport(ctx, windowDays, &report, e.cacheTTL)
	return report
}
