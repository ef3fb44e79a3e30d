package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"apotekpos/backend/internal/domain"
	"apotekpos/backend/internal/store"
	"apotekpos/backend/internal/xid"
)

// Store is the PostgreSQL Repository. Expected tables: products, batches,
// sales, sale_items, with a unique index on LOWER(products.name) and on
// (batches.product_id, batches.expiry_date).
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Price <= 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = domain.Today()
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = product.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, qty, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, product.ID, product.Name, product.Price, product.Qty, product.CreatedAt.Time, product.UpdatedAt.Time)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("product name %q: %w", product.Name, store.ErrConflict)
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, qty, created_at, updated_at
		FROM products
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, productID string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, price, qty, created_at, updated_at
		FROM products
		WHERE id = $1
	`, productID)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) FindProductByName(ctx context.Context, name string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, price, qty, created_at, updated_at
		FROM products
		WHERE LOWER(name) = LOWER(TRIM($1))
	`, name)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Price <= 0 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, price = $3, updated_at = $4
		WHERE id = $1
	`, product.ID, product.Name, product.Price, domain.Today().Time)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("product name %q: %w", product.Name, store.ErrConflict)
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetProductByID(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, productID string) error {
	// batches carry ON DELETE CASCADE on product_id.
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateBatch(ctx context.Context, batch domain.Batch) (*domain.Batch, error) {
	if batch.Qty < 1 || batch.ExpiryDate.IsZero() {
		return nil, store.ErrInvalidInput
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batches (batch_id, product_id, qty, expiry_date, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, batch.BatchID, batch.ProductID, batch.Qty, batch.ExpiryDate.Time, batch.CreatedAt.Time, batch.UpdatedAt.Time)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("batch with expiry %s: %w", batch.ExpiryDate, store.ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	created := batch
	return &created, nil
}

func (s *Store) ListBatches(ctx context.Context) ([]domain.Batch, error) {
	return s.queryBatches(ctx, `
		SELECT batch_id, product_id, qty, expiry_date, created_at, updated_at
		FROM batches
		ORDER BY expiry_date ASC, batch_id ASC
	`)
}

func (s *Store) ListBatchesByProduct(ctx context.Context, productID string) ([]domain.Batch, error) {
	return s.queryBatches(ctx, `
		SELECT batch_id, product_id, qty, expiry_date, created_at, updated_at
		FROM batches
		WHERE product_id = $1
		ORDER BY expiry_date ASC, batch_id ASC
	`, productID)
}

func (s *Store) ListSellableBatches(ctx context.Context, productID string) ([]domain.Batch, error) {
	return s.queryBatches(ctx, `
		SELECT batch_id, product_id, qty, expiry_date, created_at, updated_at
		FROM batches
		WHERE product_id = $1 AND qty > 0
		ORDER BY expiry_date ASC, batch_id ASC
	`, productID)
}

func (s *Store) queryBatches(ctx context.Context, query string, args ...any) ([]domain.Batch, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]domain.Batch, 0, 16)
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func (s *Store) GetBatchByID(ctx context.Context, batchID string) (*domain.Batch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT batch_id, product_id, qty, expiry_date, created_at, updated_at
		FROM batches
		WHERE batch_id = $1
	`, batchID)
	batch, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

func (s *Store) SetBatchQty(ctx context.Context, batchID string, qty int) (*domain.Batch, error) {
	if qty < 0 {
		return nil, store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE batches
		SET qty = $2, updated_at = $3
		WHERE batch_id = $1
	`, batchID, qty, domain.Today().Time)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetBatchByID(ctx, batchID)
}

func (s *Store) DeleteBatch(ctx context.Context, batchID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM batches WHERE batch_id = $1`, batchID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RecalculateProductStock(ctx context.Context, productID string) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET qty = (SELECT COALESCE(SUM(qty), 0) FROM batches WHERE product_id = $1),
		    updated_at = $2
		WHERE id = $1
	`, productID, domain.Today().Time)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProductByID(ctx, productID)
}

// CreateSale applies a FEFO deduction plan and records the sale in one
// transaction. The touched batch rows are locked with FOR UPDATE and their
// quantities re-checked, so a plan computed from a stale snapshot fails with
// ErrInsufficientStock instead of overselling.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, items []domain.SaleItem, deductions []domain.BatchDeduction) (*domain.Sale, error) {
	if len(items) == 0 || len(deductions) == 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	batchIDs := uniqueBatchIDs(deductions)
	rows, err := tx.QueryContext(ctx, `
		SELECT batch_id, qty
		FROM batches
		WHERE batch_id = ANY($1)
		ORDER BY batch_id
		FOR UPDATE
	`, batchIDs)
	if err != nil {
		return nil, err
	}
	qtyByBatch := make(map[string]int, len(batchIDs))
	for rows.Next() {
		var batchID string
		var qty int
		if err := rows.Scan(&batchID, &qty); err != nil {
			_ = rows.Close()
			return nil, err
		}
		qtyByBatch[batchID] = qty
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for _, d := range deductions {
		current, exists := qtyByBatch[d.BatchID]
		if !exists || current < d.Qty {
			return nil, store.ErrInsufficientStock
		}
		qtyByBatch[d.BatchID] = current - d.Qty
	}

	today := domain.Today()
	for _, d := range deductions {
		if _, err := tx.ExecContext(ctx, `
			UPDATE batches
			SET qty = qty - $2, updated_at = $3
			WHERE batch_id = $1
		`, d.BatchID, d.Qty, today.Time); err != nil {
			return nil, err
		}
	}

	touched := make(map[string]struct{}, len(deductions))
	for _, d := range deductions {
		touched[d.ProductID] = struct{}{}
	}
	productIDs := make([]string, 0, len(touched))
	for productID := range touched {
		productIDs = append(productIDs, productID)
	}
	sort.Strings(productIDs)
	for _, productID := range productIDs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE products
			SET qty = (SELECT COALESCE(SUM(qty), 0) FROM batches WHERE product_id = $1),
			    updated_at = $2
			WHERE id = $1
		`, productID, today.Time); err != nil {
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

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sales (sale_id, sale_date, total_amount, created_at)
		VALUES ($1,$2,$3,$4)
	`, sale.SaleID, sale.SaleDate.Time, sale.TotalAmount, sale.CreatedAt.Time); err != nil {
		return nil, err
	}

	for _, item := range items {
		if item.SaleItemID == "" {
			item.SaleItemID = xid.New("item")
		}
		if item.CreatedAt.IsZero() {
			item.CreatedAt = today
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_item_id, sale_id, product_id, quantity, unit_price, subtotal, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, item.SaleItemID, sale.SaleID, item.ProductID, item.Quantity, item.UnitPrice, item.Subtotal, item.CreatedAt.Time); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, sale_date, total_amount, created_at
		FROM sales
		ORDER BY sale_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		var saleDate, createdAt time.Time
		if err := rows.Scan(&sale.SaleID, &saleDate, &sale.TotalAmount, &createdAt); err != nil {
			return nil, err
		}
		sale.SaleDate = domain.NewDate(saleDate)
		sale.CreatedAt = domain.NewDate(createdAt)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) GetSaleByID(ctx context.Context, saleID string) (*domain.Sale, error) {
	var sale domain.Sale
	var saleDate, createdAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT sale_id, sale_date, total_amount, created_at
		FROM sales
		WHERE sale_id = $1
	`, saleID).Scan(&sale.SaleID, &saleDate, &sale.TotalAmount, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.SaleDate = domain.NewDate(saleDate)
	sale.CreatedAt = domain.NewDate(createdAt)
	return &sale, nil
}

func (s *Store) ListSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_item_id, sale_id, product_id, quantity, unit_price, subtotal, created_at
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY sale_item_id ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		var createdAt time.Time
		if err := rows.Scan(&item.SaleItemID, &item.SaleID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.Subtotal, &createdAt); err != nil {
			return nil, err
		}
		item.CreatedAt = domain.NewDate(createdAt)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var product domain.Product
	var createdAt, updatedAt time.Time
	if err := row.Scan(&product.ID, &product.Name, &product.Price, &product.Qty, &createdAt, &updatedAt); err != nil {
		return domain.Product{}, err
	}
	product.CreatedAt = domain.NewDate(createdAt)
	product.UpdatedAt = domain.NewDate(updatedAt)
	return product, nil
}

func scanBatch(row rowScanner) (domain.Batch, error) {
	var batch domain.Batch
	var expiry, createdAt, updatedAt time.Time
	if err := row.Scan(&batch.BatchID, &batch.ProductID, &batch.Qty, &expiry, &createdAt, &updatedAt); err != nil {
		return domain.Batch{}, err
	}
	batch.ExpiryDate = domain.NewDate(expiry)
	batch.CreatedAt = domain.NewDate(createdAt)
	batch.UpdatedAt = domain.NewDate(updatedAt)
	return batch, nil
}

func uniqueBatchIDs(deductions []domain.BatchDeduction) []string {
	set := make(map[string]struct{}, len(deductions))
	for _, d := range deductions {
		set[d.BatchID] = struct{}{}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
