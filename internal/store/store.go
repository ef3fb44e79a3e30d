package store

import (
	"context"
	"errors"

	"apotekpos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrBatchExpired      = errors.New("batch expired")
)

// Repository is the persistence boundary. CreateSale is the only compound
// operation: it must insert the sale and its items, apply every batch
// deduction, and recalculate each touched product atomically, re-checking
// batch quantities so a stale allocation snapshot can never oversell.
type Repository interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, productID string) (*domain.Product, error)
	FindProductByName(ctx context.Context, name string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, productID string) error

	CreateBatch(ctx context.Context, batch domain.Batch) (*domain.Batch, error)
	ListBatches(ctx context.Context) ([]domain.Batch, error)
	ListBatchesByProduct(ctx context.Context, productID string) ([]domain.Batch, error)
	ListSellableBatches(ctx context.Context, productID string) ([]domain.Batch, error)
	GetBatchByID(ctx context.Context, batchID string) (*domain.Batch, error)
	SetBatchQty(ctx context.Context, batchID string, qty int) (*domain.Batch, error)
	DeleteBatch(ctx context.Context, batchID string) error

	RecalculateProductStock(ctx context.Context, productID string) (*domain.Product, error)

	CreateSale(ctx context.Context, sale domain.Sale, items []domain.SaleItem, deductions []domain.BatchDeduction) (*domain.Sale, error)
	ListSales(ctx context.Context) ([]domain.Sale, error)
	GetSaleByID(ctx context.Context, saleID string) (*domain.Sale, error)
	ListSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error)
}
