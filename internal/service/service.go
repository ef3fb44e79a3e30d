package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"apotekpos/backend/internal/alerts"
	"apotekpos/backend/internal/allocator"
	"apotekpos/backend/internal/cache"
	"apotekpos/backend/internal/domain"
	"apotekpos/backend/internal/logger"
	"apotekpos/backend/internal/metrics"
	"apotekpos/backend/internal/store"
	"apotekpos/backend/internal/xid"
)

type Service struct {
	repo        store.Repository
	summaries   cache.SummaryCache
	alertEngine *alerts.Engine
	summaryTTL  time.Duration
}

func New(repo store.Repository, summaries cache.SummaryCache, alertEngine *alerts.Engine, summaryTTL time.Duration) *Service {
	if summaries == nil {
		summaries = cache.NoopSummaryCache{}
	}
	if summaryTTL <= 0 {
		summaryTTL = 30 * time.Second
	}
	if alertEngine == nil {
		alertEngine = alerts.NewEngine(summaries, summaryTTL)
	}

	return &Service{
		repo:        repo,
		summaries:   summaries,
		alertEngine: alertEngine,
		summaryTTL:  summaryTTL,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return s.repo.GetProductByID(ctx, strings.TrimSpace(productID))
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: product name is required", store.ErrInvalidInput)
	}
	if req.Price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", store.ErrInvalidInput)
	}

	if _, err := s.repo.FindProductByName(ctx, req.Name); err == nil {
		return nil, fmt.Errorf("product name %q: %w", req.Name, store.ErrConflict)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	today := domain.Today()
	product := domain.Product{
		ID:        xid.New("prod"),
		Name:      req.Name,
		Price:     req.Price,
		Qty:       0,
		CreatedAt: today,
		UpdatedAt: today,
	}
	return s.repo.CreateProduct(ctx, product)
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	productID = strings.TrimSpace(productID)
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: product name is required", store.ErrInvalidInput)
	}
	if req.Price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", store.ErrInvalidInput)
	}

	existing, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	if other, err := s.repo.FindProductByName(ctx, req.Name); err == nil && other.ID != existing.ID {
		return nil, fmt.Errorf("product name %q: %w", req.Name, store.ErrConflict)
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	updated := *existing
	updated.Name = req.Name
	updated.Price = req.Price
	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.invalidateSummary(ctx, productID)
	return saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if err := s.repo.DeleteProduct(ctx, productID); err != nil {
		return err
	}
	s.invalidateSummary(ctx, productID)
	return nil
}

func (s *Service) ListBatches(ctx context.Context) ([]domain.Batch, error) {
	return s.repo.ListBatches(ctx)
}

func (s *Service) GetBatch(ctx context.Context, batchID string) (*domain.Batch, error) {
	return s.repo.GetBatchByID(ctx, strings.TrimSpace(batchID))
}

func (s *Service) AddBatch(ctx context.Context, productID string, req domain.BatchCreateRequest) (*domain.Batch, error) {
	productID = strings.TrimSpace(productID)
	if _, err := s.repo.GetProductByID(ctx, productID); err != nil {
		return nil, err
	}
	if req.Qty < 1 {
		return nil, fmt.Errorf("%w: qty must be a positive integer", store.ErrInvalidInput)
	}

	expiry, err := domain.ParseDate(req.ExpiryDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	today := domain.Today()
	if !expiry.After(today) {
		return nil, fmt.Errorf("%w: expiry date must be in the future", store.ErrInvalidInput)
	}

	batch := domain.Batch{
		BatchID:    xid.New("batch"),
		ProductID:  productID,
		Qty:        req.Qty,
		ExpiryDate: expiry,
		CreatedAt:  today,
		UpdatedAt:  today,
	}
	created, err := s.repo.CreateBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.RecalculateProductStock(ctx, productID); err != nil {
		return nil, err
	}
	s.invalidateSummary(ctx, productID)
	return created, nil
}

// UpdateBatch adds the requested quantity to the batch. An expired batch is
// removed on touch: it gets deleted, the product recalculated, and the update
// rejected without applying the delta.
func (s *Service) UpdateBatch(ctx context.Context, batchID string, req domain.BatchUpdateRequest) (*domain.Batch, error) {
	batch, err := s.repo.GetBatchByID(ctx, strings.TrimSpace(batchID))
	if err != nil {
		return nil, err
	}

	if batch.Expired(domain.Today()) {
		if err := s.repo.DeleteBatch(ctx, batch.BatchID); err != nil {
			return nil, err
		}
		if _, err := s.repo.RecalculateProductStock(ctx, batch.ProductID); err != nil {
			return nil, err
		}
		s.invalidateSummary(ctx, batch.ProductID)
		metrics.BatchesExpiredTotal.Inc()
		return nil, fmt.Errorf("%w: batch deleted and product quantity updated", store.ErrBatchExpired)
	}

	if req.Qty < 1 {
		return nil, fmt.Errorf("%w: qty must be a positive integer", store.ErrInvalidInput)
	}
	updated, err := s.repo.SetBatchQty(ctx, batch.BatchID, batch.Qty+req.Qty)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.RecalculateProductStock(ctx, batch.ProductID); err != nil {
		return nil, err
	}
	s.invalidateSummary(ctx, batch.ProductID)
	return updated, nil
}

func (s *Service) DeleteBatch(ctx context.Context, batchID string) error {
	batch, err := s.repo.GetBatchByID(ctx, strings.TrimSpace(batchID))
	if err != nil {
		return err
	}
	if err := s.repo.DeleteBatch(ctx, batch.BatchID); err != nil {
		return err
	}
	if _, err := s.repo.RecalculateProductStock(ctx, batch.ProductID); err != nil {
		return err
	}
	s.invalidateSummary(ctx, batch.ProductID)
	return nil
}

func (s *Service) GetProductStock(ctx context.Context, productID string) (*domain.StockSummary, error) {
	productID = strings.TrimSpace(productID)

	if cached, ok, err := s.summaries.GetStockSummary(ctx, productID); err == nil && ok {
		return cached, nil
	} else if err != nil {
		logger.Get().Warnw("stock summary cache read failed", "product_id", productID, "error", err)
	}

	if _, err := s.repo.GetProductByID(ctx, productID); err != nil {
		return nil, err
	}
	batches, err := s.repo.ListBatchesByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, batch := range batches {
		total += batch.Qty
	}
	alert := domain.AlertEnoughStock
	if total < domain.LowStockThreshold {
		alert = domain.AlertAddStock
	}

	summary := &domain.StockSummary{
		Batches:       batches,
		TotalQuantity: total,
		AlertMessage:  alert,
	}
	if err := s.summaries.SetStockSummary(ctx, productID, summary, s.summaryTTL); err != nil {
		logger.Get().Warnw("stock summary cache write failed", "product_id", productID, "error", err)
	}
	return summary, nil
}

func (s *Service) ExpiryAlerts(ctx context.Context, windowDays int) (*domain.AlertReport, error) {
	if windowDays < 1 {
		return nil, fmt.Errorf("%w: days must be a positive integer", store.ErrInvalidInput)
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	batches, err := s.repo.ListBatches(ctx)
	if err != nil {
		return nil, err
	}
	report := s.alertEngine.Report(ctx, windowDays, products, batches)
	return &report, nil
}

// ProcessOrder runs the sale state machine: Validating, Allocating, Pricing,
// then Persisting+Deducting inside one repository transaction. A failure in
// any of the first three stages rejects the whole request with nothing
// applied.
func (s *Service) ProcessOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderReceipt, error) {
	receipt, err := s.processOrder(ctx, req)
	if err != nil {
		outcome := metrics.OrderOutcomeFailed
		if errors.Is(err, store.ErrInvalidInput) || errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInsufficientStock) {
			outcome = metrics.OrderOutcomeRejected
		}
		metrics.RecordOrder(outcome)
		return nil, err
	}
	metrics.RecordOrder(metrics.OrderOutcomeCompleted)
	return receipt, nil
}

func (s *Service) processOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderReceipt, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: order has no items", store.ErrInvalidInput)
	}

	// Validating.
	products := make(map[string]*domain.Product, len(req.Items))
	for i, line := range req.Items {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("line %d: %w: productId is required", i+1, store.ErrInvalidInput)
		}
		if line.Quantity < 1 {
			return nil, fmt.Errorf("line %d: %w: quantity must be a positive integer", i+1, store.ErrInvalidInput)
		}
		if _, seen := products[productID]; seen {
			continue
		}
		product, err := s.repo.GetProductByID(ctx, productID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("line %d: product %s: %w", i+1, productID, store.ErrNotFound)
			}
			return nil, err
		}
		products[productID] = product
	}

	// Allocating. Each line plans against a per-product snapshot that is
	// decremented as earlier lines consume it, so repeated products in one
	// order cannot double-spend the same batch.
	snapshots := make(map[string][]domain.Batch, len(products))
	deductions := make([]domain.BatchDeduction, 0, len(req.Items))
	units := 0
	for i, line := range req.Items {
		productID := strings.TrimSpace(line.ProductID)
		snapshot, ok := snapshots[productID]
		if !ok {
			fresh, err := s.repo.ListSellableBatches(ctx, productID)
			if err != nil {
				return nil, err
			}
			snapshot = fresh
		}

		plan, err := allocator.Plan(line.Quantity, snapshot)
		if err != nil {
			if errors.Is(err, allocator.ErrInsufficientStock) {
				return nil, fmt.Errorf("line %d: product %s: %w", i+1, productID, store.ErrInsufficientStock)
			}
			return nil, fmt.Errorf("line %d: %w: %v", i+1, store.ErrInvalidInput, err)
		}

		snapshots[productID] = applyPlan(snapshot, plan)
		deductions = append(deductions, plan...)
		units += line.Quantity
	}
	deductions = mergeDeductions(deductions)

	// Pricing. Subtotals keep full precision; only the sale total is rounded.
	today := domain.Today()
	total := 0.0
	items := make([]domain.SaleItem, 0, len(req.Items))
	for _, line := range req.Items {
		product := products[strings.TrimSpace(line.ProductID)]
		subtotal := product.Price * float64(line.Quantity)
		items = append(items, domain.SaleItem{
			SaleItemID: xid.New("item"),
			ProductID:  product.ID,
			Quantity:   line.Quantity,
			UnitPrice:  product.Price,
			Subtotal:   subtotal,
			CreatedAt:  today,
		})
		total += subtotal
	}

	sale := domain.Sale{
		SaleID:      xid.New("sale"),
		SaleDate:    today,
		TotalAmount: domain.Round2(total),
		CreatedAt:   today,
	}

	// Persisting + Deducting: atomic in the repository, which re-checks the
	// plan against current batch quantities under lock.
	created, err := s.repo.CreateSale(ctx, sale, items, deductions)
	if err != nil {
		return nil, err
	}

	for productID := range products {
		s.invalidateSummary(ctx, productID)
	}
	metrics.UnitsDeductedTotal.Add(float64(units))

	return &domain.OrderReceipt{
		SaleID:      created.SaleID,
		SaleDate:    created.SaleDate,
		TotalAmount: created.TotalAmount,
		CreatedAt:   created.CreatedAt,
	}, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx)
}

func (s *Service) ListSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	saleID = strings.TrimSpace(saleID)
	if _, err := s.repo.GetSaleByID(ctx, saleID); err != nil {
		return nil, err
	}
	return s.repo.ListSaleItems(ctx, saleID)
}

func (s *Service) invalidateSummary(ctx context.Context, productID string) {
	if err := s.summaries.InvalidateProduct(ctx, productID); err != nil {
		logger.Get().Warnw("stock summary invalidation failed", "product_id", productID, "error", err)
	}
}

// applyPlan returns a copy of the snapshot with the plan's deductions taken
// out, for the next line of the same product to allocate against.
func applyPlan(snapshot []domain.Batch, plan []domain.BatchDeduction) []domain.Batch {
	taken := make(map[string]int, len(plan))
	for _, d := range plan {
		taken[d.BatchID] += d.Qty
	}
	remaining := make([]domain.Batch, 0, len(snapshot))
	for _, batch := range snapshot {
		batch.Qty -= taken[batch.BatchID]
		if batch.Qty > 0 {
			remaining = append(remaining, batch)
		}
	}
	return remaining
}

// mergeDeductions aggregates plan entries that hit the same batch, keeping
// first-seen order.
func mergeDeductions(deductions []domain.BatchDeduction) []domain.BatchDeduction {
	index := make(map[string]int, len(deductions))
	merged := make([]domain.BatchDeduction, 0, len(deductions))
	for _, d := range deductions {
		if at, seen := index[d.BatchID]; seen {
			merged[at].Qty += d.Qty
			continue
		}
		index[d.BatchID] = len(merged)
		merged = append(merged, d)
	}
	return merged
}
