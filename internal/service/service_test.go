package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"apotekpos/backend/internal/domain"
	"apotekpos/backend/internal/store"
	"apotekpos/backend/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.New()
	return New(repo, nil, nil, time.Second), repo
}

func createProduct(t *testing.T, svc *Service, name string, price float64) *domain.Product {
	t.Helper()
	product, err := svc.CreateProduct(context.Background(), domain.ProductCreateRequest{Name: name, Price: price})
	if err != nil {
		t.Fatalf("CreateProduct(%q): %v", name, err)
	}
	return product
}

func addBatch(t *testing.T, svc *Service, productID string, qty int, expiry string) *domain.Batch {
	t.Helper()
	batch, err := svc.AddBatch(context.Background(), productID, domain.BatchCreateRequest{Qty: qty, ExpiryDate: expiry})
	if err != nil {
		t.Fatalf("AddBatch: %v", err)
	}
	return batch
}

// injectBatch bypasses the future-expiry check so tests can plant batches that
// are already expired.
func injectBatch(t *testing.T, repo *memory.Store, productID string, qty int, expiry domain.Date) *domain.Batch {
	t.Helper()
	batch, err := repo.CreateBatch(context.Background(), domain.Batch{
		ProductID:  productID,
		Qty:        qty,
		ExpiryDate: expiry,
	})
	if err != nil {
		t.Fatalf("inject batch: %v", err)
	}
	if _, err := repo.RecalculateProductStock(context.Background(), productID); err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	return batch
}

func futureDate(days int) string {
	return domain.NewDate(time.Now().AddDate(0, 0, days)).String()
}

func TestCreateProductValidation(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []struct {
		name string
		req  domain.ProductCreateRequest
	}{
		{"blank name", domain.ProductCreateRequest{Name: "   ", Price: 2.0}},
		{"zero price", domain.ProductCreateRequest{Name: "Aspirin", Price: 0}},
		{"negative price", domain.ProductCreateRequest{Name: "Aspirin", Price: -1}},
	}
	for _, tc := range cases {
		if _, err := svc.CreateProduct(context.Background(), tc.req); !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("%s: err = %v, want ErrInvalidInput", tc.name, err)
		}
	}
}

func TestCreateProductDuplicateName(t *testing.T) {
	svc, _ := newTestService(t)
	createProduct(t, svc, "Paracetamol 500mg", 2.50)

	_, err := svc.CreateProduct(context.Background(), domain.ProductCreateRequest{Name: "paracetamol 500mg", Price: 3.0})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestUpdateProductDuplicateNameExcludesSelf(t *testing.T) {
	svc, _ := newTestService(t)
	product := createProduct(t, svc, "Paracetamol 500mg", 2.50)
	createProduct(t, svc, "Ibuprofen 400mg", 3.20)

	// Renaming to its own name is fine.
	if _, err := svc.UpdateProduct(context.Background(), product.ID, domain.ProductUpdateRequest{Name: "Paracetamol 500mg", Price: 2.75}); err != nil {
		t.Fatalf("self rename: %v", err)
	}

	// Renaming onto another product is not.
	_, err := svc.UpdateProduct(context.Background(), product.ID, domain.ProductUpdateRequest{Name: "Ibuprofen 400mg", Price: 2.75})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestAddBatchRejectsPastOrTodayExpiry(t *testing.T) {
	svc, _ := newTestService(t)
	product := createProduct(t, svc, "Paracetamol 500mg", 2.50)

	for _, expiry := range []string{domain.Today().String(), "2020-01-01"} {
		_, err := svc.AddBatch(context.Background(), product.ID, domain.BatchCreateRequest{Qty: 5, ExpiryDate: expiry})
		if !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("expiry %s: err = %v, want ErrInvalidInput", expiry, err)
		}
	}
}

func TestAddBatchUnknownProduct(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AddBatch(context.Background(), "prod-missing", domain.BatchCreateRequest{Qty: 5, ExpiryDate: futureDate(30)})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAddBatchUpdatesProductQty(t *testing.T) {
	svc, _ := newTestService(t)
	product := createProduct(t, svc, "Paracetamol 500mg", 2.50)
	addBatch(t, svc, product.ID, 8, futureDate(60))
	addBatch(t, svc, product.ID, 4, futureDate(120))

	refreshed, err := svc.GetProduct(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if refreshed.Qty != 12 {
		t.Fatalf("qty = %d, want 12", refreshed.Qty)
	}
}

func TestUpdateBatchAddsQuantity(t *testing.T) {
	svc, _ := newTestService(t)
	product := createProduct(t, svc, "Paracetamol 500mg", 2.50)
	batch := addBatch(t, svc, product.ID, 8, futureDate(60))

	updated, err := svc.UpdateBatch(context.Background(), batch.BatchID, domain.BatchUpdateRequest{Qty: 5})
	if err != nil {
		t.Fatalf("UpdateBatch: %v", err)
	}
	if updated.Qty != 13 {
		t.Fatalf("batch qty = %d, want 13", updated.Qty)
	}

	refreshed, _ := svc.GetProduct(context.Background(), product.ID)
	if refreshed.Qty != 13 {
		t.Fatalf("product qty = %d, want 13", refreshed.Qty)
	}
}

func TestUpdateBatchDeletesExpiredOnTouch(t *testing.T) {
	svc, repo := newTestService(t)
	product := createProduct(t, svc, "Paracetamol 500mg", 2.50)
	addBatch(t, svc, product.ID, 8, futureDate(60))
	expired := injectBatch(t, repo, product.ID, 5, domain.NewDate(time.Now().AddDate(0, 0, -1)))

	_, err := svc.UpdateBatch(context.Background(), expired.BatchID, domain.BatchUpdateRequest{Qty: 3})
	if !errors.Is(err, store.ErrBatchExpired) {
		t.Fatalf("err = %v, want ErrBatchExpired", err)
	}

	if _, err := svc.GetBatch(context.Background(), expired.BatchID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expired batch still present: %v", err)
	}
	refreshed, _ := svc.GetProduct(context.Background(), product.ID)
	if refreshed.Qty != 8 {
		t.Fatalf("product qty = %d, want 8 after expired batch removal", refreshed.Qty)
	}
}

func TestDeleteBatchRecalculates(t *testing.T) {
	svc, _ := newTestService(t)
	product := createProduct(t, svc, "Paracetamol 500mg", 2.50)
	batch := addBatch(t, svc, product.ID, 8, futureDate(60))
	addBatch(t, svc, product.ID, 4, futureDate(120))

	if err := svc.DeleteBatch(context.Background(), batch.BatchID); err != nil {
		t.Fatalf("DeleteBatch: %v", err)
	}
	refreshed, _ := svc.GetProduct(context.Background(), product.ID)
	if refreshed.Qty != 4 {
		t.Fatalf("product qty = %d, want 4", refreshed.Qty)
	}
}

func TestGetProductStockAlertThreshold(t *testing.T) {
	svc, _ := newTestService(t)
	low := createProduct(t, svc, "Cetirizine 10mg", 1.95)
	addBatch(t, svc, low.ID, 9, futureDate(60))
	ok := createProduct(t, svc, "Paracetamol 500mg", 2.50)
	addBatch(t, svc, ok.ID, 10, futureDate(60))

	lowSummary, err := svc.GetProductStock(context.Background(), low.ID)
	if err != nil {
		t.Fatalf("GetProductStock: %v", err)
	}
	if lowSummary.TotalQuantity != 9 || lowSummary.AlertMessage != domain.AlertAddStock {
		t.Fatalf("summary = %+v, want total 9 with %q", lowSummary, domain.AlertAddStock)
	}

	okSummary, err := svc.GetProductStock(context.Background(), ok.ID)
	if err != nil {
		t.Fatalf("GetProductStock: %v", err)
	}
	if okSummary.TotalQuantity != 10 || okSummary.AlertMessage != domain.AlertEnoughStock {
		t.Fatalf("summary = %+v, want total 10 with %q", okSummary, domain.AlertEnoughStock)
	}
}

func TestProcessOrderDeductsFEFOAcrossBatches(t *testing.T) {
	svc, _ := newTestService(t)
	product := createProduct(t, svc, "Paracetamol 500mg", 2.50)
	sooner := addBatch(t, svc, product.ID, 5, futureDate(30))
	later := addBatch(t, svc, product.ID, 5, futureDate(90))

	receipt, err := svc.ProcessOrder(context.Background(), domain.OrderRequest{
		Items: []domain.OrderLine{{ProductID: product.ID, Quantity: 7}},
	})
	if err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}
	if receipt.SaleID == "" {
		t.Fatal("expected a sale id")
	}
	if math.Abs(receipt.TotalAmount-17.50) > 1e-9 {
		t.Fatalf("total = %v, want 17.50", receipt.TotalAmount)
	}

	soonerAfter, _ := svc.GetBatch(context.Background(), sooner.BatchID)
	laterAfter, _ := svc.GetBatch(context.Background(), later.BatchID)
	if soonerAfter.Qty != 0 || laterAfter.Qty != 3 {
		t.Fatalf("batch qtys = %d/%d, want 0/3 (soonest expiry drained first)", soonerAfter.Qty, laterAfter.Qty)
	}

	refreshed, _ := svc.GetProduct(context.Background(), product.ID)
	if refreshed.Qty != 3 {
		t.Fatalf("product qty = %d, want 3", refreshed.Qty)
	}
}

func TestProcessOrderConservation(t *testing.T) {
	svc, _ := newTestService(t)
	product := createProduct(t, svc, "Paracetamol 500mg", 2.50)
	addBatch(t, svc, product.ID, 6, futureDate(30))
	addBatch(t, svc, product.ID, 6, futureDate(90))

	before, _ := svc.GetProduct(context.Background(), product.ID)
	if _, err := svc.ProcessOrder(context.Background(), domain.OrderRequest{
		Items: []domain.OrderLine{{ProductID: product.ID, Quantity: 8}},
	}); err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}
	after, _ := svc.GetProduct(context.Background(), product.ID)

	if before.Qty-after.Qty != 8 {
		t.Fatalf("stock dropped by %d, want exactly the ordered 8", before.Qty-after.Qty)
	}
}

func TestProcessOrderRejectionLeavesNothingApplied(t *testing.T) {
	svc, _ := newTestService(t)
	first := createProduct(t, svc, "Paracetamol 500mg", 2.50)
	addBatch(t, svc, first.ID, 10, futureDate(60))
	second := createProduct(t, svc, "Ibuprofen 400mg", 3.20)
	addBatch(t, svc, second.ID, 2, futureDate(60))
	third := createProduct(t, svc, "Cetirizine 10mg", 1.95)
	addBatch(t, svc, third.ID, 10, futureDate(60))

	// Line 2 asks for more than is on hand, so the whole order must fail.
	_, err := svc.ProcessOrder(context.Background(), domain.OrderRequest{
		Items: []domain.OrderLine{
			{ProductID: first.ID, Quantity: 3},
			{ProductID: second.ID, Quantity: 5},
			{ProductID: third.ID, Quantity: 3},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}

	want := map[string]int{first.ID: 10, second.ID: 2, third.ID: 10}
	for _, product := range []*domain.Product{first, second, third} {
		refreshed, _ := svc.GetProduct(context.Background(), product.ID)
		if refreshed.Qty != want[product.ID] {
			t.Fatalf("product %s qty = %d, want untouched %d", product.Name, refreshed.Qty, want[product.ID])
		}
	}
	sales, _ := svc.ListSales(context.Background())
	if len(sales) != 0 {
		t.Fatalf("expected no sales, got %d", len(sales))
	}
}

func TestProcessOrderDuplicateProductLines(t *testing.T) {
	svc, _ := newTestService(t)
	product := createProduct(t, svc, "Paracetamol 500mg", 2.50)
	addBatch(t, svc, product.ID, 5, futureDate(30))
	addBatch(t, svc, product.ID, 5, futureDate(90))

	// Two lines for the same product must allocate against a shared view of
	// the stock, not each against the full snapshot.
	receipt, err := svc.ProcessOrder(context.Background(), domain.OrderRequest{
		Items: []domain.OrderLine{
			{ProductID: product.ID, Quantity: 4},
			{ProductID: product.ID, Quantity: 4},
		},
	})
	if err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}
	if math.Abs(receipt.TotalAmount-20.0) > 1e-9 {
		t.Fatalf("total = %v, want 20.00", receipt.TotalAmount)
	}

	refreshed, _ := svc.GetProduct(context.Background(), product.ID)
	if refreshed.Qty != 2 {
		t.Fatalf("product qty = %d, want 2", refreshed.Qty)
	}

	// A further order that overdraws the shared view must fail whole.
	_, err = svc.ProcessOrder(context.Background(), domain.OrderRequest{
		Items: []domain.OrderLine{
			{ProductID: product.ID, Quantity: 2},
			{ProductID: product.ID, Quantity: 1},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	refreshed, _ = svc.GetProduct(context.Background(), product.ID)
	if refreshed.Qty != 2 {
		t.Fatalf("product qty = %d, want still 2 after rejection", refreshed.Qty)
	}
}

func TestProcessOrderValidation(t *testing.T) {
	svc, _ := newTestService(t)
	product := createProduct(t, svc, "Paracetamol 500mg", 2.50)
	addBatch(t, svc, product.ID, 10, futureDate(60))

	cases := []struct {
		name string
		req  domain.OrderRequest
		want error
	}{
		{"empty order", domain.OrderRequest{}, store.ErrInvalidInput},
		{"zero quantity", domain.OrderRequest{Items: []domain.OrderLine{{ProductID: product.ID, Quantity: 0}}}, store.ErrInvalidInput},
		{"negative quantity", domain.OrderRequest{Items: []domain.OrderLine{{ProductID: product.ID, Quantity: -2}}}, store.ErrInvalidInput},
		{"blank product", domain.OrderRequest{Items: []domain.OrderLine{{ProductID: "  ", Quantity: 1}}}, store.ErrInvalidInput},
		{"unknown product", domain.OrderRequest{Items: []domain.OrderLine{{ProductID: "prod-missing", Quantity: 1}}}, store.ErrNotFound},
	}
	for _, tc := range cases {
		if _, err := svc.ProcessOrder(context.Background(), tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}

	refreshed, _ := svc.GetProduct(context.Background(), product.ID)
	if refreshed.Qty != 10 {
		t.Fatalf("product qty = %d, want untouched 10", refreshed.Qty)
	}
}

func TestProcessOrderRoundsTotalOnly(t *testing.T) {
	svc, _ := newTestService(t)
	product := createProduct(t, svc, "Vitamin C 1000mg", 12.995)
	addBatch(t, svc, product.ID, 10, futureDate(60))

	receipt, err := svc.ProcessOrder(context.Background(), domain.OrderRequest{
		Items: []domain.OrderLine{{ProductID: product.ID, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}
	if math.Abs(receipt.TotalAmount-38.98) > 0.005 {
		t.Fatalf("total = %v, want about 38.98", receipt.TotalAmount)
	}

	items, err := svc.ListSaleItems(context.Background(), receipt.SaleID)
	if err != nil {
		t.Fatalf("ListSaleItems: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	// The line subtotal keeps full precision.
	if math.Abs(items[0].Subtotal-12.995*3) > 1e-9 {
		t.Fatalf("subtotal = %v, want full precision %v", items[0].Subtotal, 12.995*3)
	}
}

func TestListSaleItemsUnknownSale(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.ListSaleItems(context.Background(), "sale-missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestExpiryAlertsValidation(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.ExpiryAlerts(context.Background(), 0); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}
