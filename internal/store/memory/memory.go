package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"apotekpos/backend/internal/domain"
	"apotekpos/backend/internal/store"
	"apotekpos/backend/internal/xid"
)

// Store is an in-memory Repository used by tests and no-database deployments.
// A single RWMutex guards all state; the write lock is the serialization
// point that keeps sale deduction and stock recalculation atomic.
type Store struct {
	mu          sync.RWMutex
	products    map[string]domain.Product
	batches     map[string]domain.Batch
	sales       map[string]domain.Sale
	itemsBySale map[string][]domain.SaleItem
	saleOrder   []string
}

func New() *Store {
	return &Store{
		products:    make(map[string]domain.Product),
		batches:     make(map[string]domain.Batch),
		sales:       make(map[string]domain.Sale),
		itemsBySale: make(map[string][]domain.SaleItem),
		saleOrder:   make([]string, 0, 32),
	}
}

// NewSeeded returns a store preloaded with a small pharmacy catalog so the
// server is usable out of the box in dev mode.
func NewSeeded() *Store {
	s := New()
	today := domain.Today()

	seed := []struct {
		name    string
		price   float64
		batches []struct {
			qty  int
			days int
		}
	}{
		{"Paracetamol 500mg", 2.50, []struct {
			qty  int
			days int
		}{{80, 120}, {40, 300}}},
		{"Amoxicillin 250mg", 5.75, []struct {
			qty  int
			days int
		}{{30, 90}}},
		{"Ibuprofen 400mg", 3.20, []struct {
			qty  int
			days int
		}{{25, 60}, {25, 200}}},
		{"Cetirizine 10mg", 1.95, []struct {
			qty  int
			days int
		}{{6, 45}}},
		{"Oral Rehydration Salts", 0.80, nil},
	}

	for _, entry := range seed {
		product := domain.Product{
			ID:        xid.New("prod"),
			Name:      entry.name,
			Price:     entry.price,
			CreatedAt: today,
			UpdatedAt: today,
		}
		for _, b := range entry.batches {
			batch := domain.Batch{
				BatchID:    xid.New("batch"),
				ProductID:  product.ID,
				Qty:        b.qty,
				ExpiryDate: domain.NewDate(today.AddDate(0, 0, b.days)),
				CreatedAt:  today,
				UpdatedAt:  today,
			}
			s.batches[batch.BatchID] = batch
			product.Qty += batch.Qty
		}
		s.products[product.ID] = product
	}

	return s
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Price <= 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	for _, existing := range s.products {
		if equalFoldTrim(existing.Name, product.Name) {
			return nil, fmt.Errorf("product name %q: %w", product.Name, store.ErrConflict)
		}
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = domain.Today()
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = product.CreatedAt
	}

	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.ID, b.ID)
	})
	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := product
	return &found, nil
}

func (s *Store) FindProductByName(_ context.Context, name string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, product := range s.products {
		if equalFoldTrim(product.Name, name) {
			found := product
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Price <= 0 {
		return nil, store.ErrInvalidInput
	}
	current, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	for id, other := range s.products {
		if id != product.ID && equalFoldTrim(other.Name, product.Name) {
			return nil, fmt.Errorf("product name %q: %w", product.Name, store.ErrConflict)
		}
	}

	// Qty stays derived: only RecalculateProductStock writes it.
	product.Qty = current.Qty
	product.CreatedAt = current.CreatedAt
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[productID]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, productID)
	for batchID, batch := range s.batches {
		if batch.ProductID == productID {
			delete(s.batches, batchID)
		}
	}
	return nil
}

func (s *Store) CreateBatch(_ context.Context, batch domain.Batch) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if batch.Qty < 1 || batch.ExpiryDate.IsZero() {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.products[batch.ProductID]; !exists {
		return nil, store.ErrNotFound
	}
	for _, existing := range s.batches {
		if existing.ProductID == batch.ProductID && existing.ExpiryDate.Equal(batch.ExpiryDate) {
			return nil, fmt.Errorf("batch with expiry %s: %w", batch.ExpiryDate, store.ErrConflict)
		}
	}

	if batch.BatchID == "" {
		batch.BatchID = xid.New("batch")
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = domain.Today()
	}
	if batch.UpdatedAt.IsZero() {
		batch.UpdatedAt = batch.CreatedAt
	}

	s.batches[batch.BatchID] = batch
	created := batch
	return &created, nil
}

func (s *Store) ListBatches(_ context.Context) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batches := make([]domain.Batch, 0, len(s.batches))
	for _, b := range s.batches {
		batches = append(batches, b)
	}
	sortBatchesFEFO(batches)
	return batches, nil
}

func (s *Store) ListBatchesByProduct(_ context.Context, productID string) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batchesByProductLocked(productID, false), nil
}

func (s *Store) ListSellableBatches(_ context.Context, productID string) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batchesByProductLocked(productID, true), nil
}

func (s *Store) batchesByProductLocked(productID string, sellableOnly bool) []domain.Batch {
	batches := make([]domain.Batch, 0, 8)
	for _, b := range s.batches {
		if b.ProductID != productID {
			continue
		}
		if sellableOnly && b.Qty <= 0 {
			continue
		}
		batches = append(batches, b)
	}
	sortBatchesFEFO(batches)
	return batches
}

func (s *Store) GetBatchByID(_ context.Context, batchID string) (*domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, exists := s.batches[batchID]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := batch
	return &found, nil
}

func (s *Store) SetBatchQty(_ context.Context, batchID string, qty int) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qty < 0 {
		return nil, store.ErrInvalidInput
	}
	batch, exists := s.batches[batchID]
	if !exists {
		return nil, store.ErrNotFound
	}
	batch.Qty = qty
	batch.UpdatedAt = domain.Today()
	s.batches[batchID] = batch
	updated := batch
	return &updated, nil
}

func (s *Store) DeleteBatch(_ context.Context, batchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.batches[batchID]; !exists {
		return store.ErrNotFound
	}
	delete(s.batches, batchID)
	return nil
}

func (s *Store) RecalculateProductStock(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recalculateLocked(productID)
}

// recalculateLocked derives product.qty from the product's batches, including
// zero-quantity ones. Callers must hold the write lock.
func (s *Store) recalculateLocked(productID string) (*domain.Product, error) {
	product, exists := s.products[productID]
	if !exists {
		return nil, store.ErrNotFound
	}

	total := 0
	for _, batch := range s.batches {
		if batch.ProductID == productID {
			total += batch.Qty
		}
	}
	product.Qty = total
	product.UpdatedAt = domain.Today()
	s.products[productID] = product
	updated := product
	return &updated, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale, items []domain.SaleItem, deductions []domain.BatchDeduction) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(items) == 0 || len(deductions) == 0 {
		return nil, store.ErrInvalidInput
	}

	// Re-check every batch against the plan before touching anything: the
	// snapshot the plan was computed from may be stale by now.
	for _, d := range deductions {
		batch, exists := s.batches[d.BatchID]
		if !exists || batch.Qty < d.Qty {
			return nil, store.ErrInsufficientStock
		}
	}

	today := domain.Today()
	for _, d := range deductions {
		batch := s.batches[d.BatchID]
		batch.Qty -= d.Qty
		batch.UpdatedAt = today
		s.batches[d.BatchID] = batch
	}

	touched := make(map[string]struct{}, len(deductions))
	for _, d := range deductions {
		touched[d.ProductID] = struct{}{}
	}
	for productID := range touched {
		if _, err := s.recalculateLocked(productID); err != nil {
			return nil, err
		}
	}

	if sale.SaleID == "" {
		sale.SaleID = xid.New("sale")
	}
	if sale.SaleDate.IsZero() {
		sale.SaleDate = today
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = today
	}

	stored := make([]domain.SaleItem, len(items))
	copy(stored, items)
	for i := range stored {
		if stored[i].SaleItemID == "" {
			stored[i].SaleItemID = xid.New("item")
		}
		stored[i].SaleID = sale.SaleID
		if stored[i].CreatedAt.IsZero() {
			stored[i].CreatedAt = today
		}
	}

	s.sales[sale.SaleID] = sale
	s.itemsBySale[sale.SaleID] = stored
	s.saleOrder = append(s.saleOrder, sale.SaleID)

	created := sale
	return &created, nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.saleOrder))
	for _, saleID := range s.saleOrder {
		sales = append(sales, s.sales[saleID])
	}
	return sales, nil
}

func (s *Store) GetSaleByID(_ context.Context, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.sales[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := sale
	return &found, nil
}

func (s *Store) ListSaleItems(_ context.Context, saleID string) ([]domain.SaleItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.itemsBySale[saleID]
	result := make([]domain.SaleItem, len(items))
	copy(result, items)
	slices.SortFunc(result, func(a, b domain.SaleItem) int {
		return cmpString(a.SaleItemID, b.SaleItemID)
	})
	return result, nil
}

func sortBatchesFEFO(batches []domain.Batch) {
	slices.SortFunc(batches, func(a, b domain.Batch) int {
		if !a.ExpiryDate.Equal(b.ExpiryDate) {
			if a.ExpiryDate.Before(b.ExpiryDate) {
				return -1
			}
			return 1
		}
		return cmpString(a.BatchID, b.BatchID)
	})
}

func equalFoldTrim(a string, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func cmpString(a string, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
