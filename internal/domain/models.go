package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the wire format for all calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar date with no time-of-day component. All persisted
// timestamps in this system are dates (stock paperwork works in days, not
// instants), and they serialize as YYYY-MM-DD.
type Date struct {
	time.Time
}

func NewDate(t time.Time) Date {
	u := t.UTC()
	return Date{Time: time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)}
}

func Today() Date {
	return NewDate(time.Now())
}

func ParseDate(value string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: expected %s", value, DateLayout)
	}
	return NewDate(t), nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

func (d Date) After(other Date) bool {
	return d.Time.After(other.Time)
}

// DaysUntil returns the number of whole days from d to other. Negative when
// other is in the past relative to d.
func (d Date) DaysUntil(other Date) int {
	return int(other.Time.Sub(d.Time).Hours() / 24)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Round2 rounds a monetary amount to 2 decimal places. Internal accumulation
// keeps full precision; rounding happens only at the storage/response boundary.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type Product struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Qty       int     `json:"qty"`
	CreatedAt Date    `json:"created_at"`
	UpdatedAt Date    `json:"updated_at"`
}

type Batch struct {
	BatchID    string `json:"batch_id"`
	ProductID  string `json:"product_id"`
	Qty        int    `json:"qty"`
	ExpiryDate Date   `json:"expiry_date"`
	CreatedAt  Date   `json:"created_at"`
	UpdatedAt  Date   `json:"updated_at"`
}

// Expired reports whether the batch is expired as of the given date. A batch
// expiring today is already expired.
func (b Batch) Expired(asOf Date) bool {
	return !b.ExpiryDate.After(asOf)
}

type Sale struct {
	SaleID      string  `json:"sale_id"`
	SaleDate    Date    `json:"sale_date"`
	TotalAmount float64 `json:"total_amount"`
	CreatedAt   Date    `json:"created_at"`
}

type SaleItem struct {
	SaleItemID string  `json:"sale_item_id"`
	SaleID     string  `json:"sale_id"`
	ProductID  string  `json:"product_id"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	Subtotal   float64 `json:"subtotal"`
	CreatedAt  Date    `json:"created_at"`
}

// BatchDeduction is one entry of a FEFO allocation plan: take Qty units from
// the given batch.
type BatchDeduction struct {
	BatchID   string `json:"batch_id"`
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type ProductCreateRequest struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type ProductUpdateRequest struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type BatchCreateRequest struct {
	Qty        int    `json:"qty"`
	ExpiryDate string `json:"expiry_date"`
}

type BatchUpdateRequest struct {
	Qty int `json:"qty"`
}

type OrderLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type OrderRequest struct {
	Items []OrderLine `json:"items"`
}

type OrderReceipt struct {
	SaleID      string  `json:"saleId"`
	SaleDate    Date    `json:"saleDate"`
	TotalAmount float64 `json:"totalAmount"`
	CreatedAt   Date    `json:"createdAt"`
}

type StockSummary struct {
	Batches       []Batch `json:"batches"`
	TotalQuantity int     `json:"totalQuantity"`
	AlertMessage  string  `json:"alertMessage"`
}

type ExpiryAlert struct {
	BatchID     string `json:"batch_id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Qty         int    `json:"qty"`
	ExpiryDate  Date   `json:"expiry_date"`
	DaysLeft    int    `json:"days_left"`
}

type LowStockAlert struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Qty       int    `json:"qty"`
	Threshold int    `json:"threshold"`
}

type AlertReport struct {
	GeneratedAt  Date            `json:"generated_at"`
	WindowDays   int             `json:"window_days"`
	ExpiringSoon []ExpiryAlert   `json:"expiring_soon"`
	LowStock     []LowStockAlert `json:"low_stock"`
}

// LowStockThreshold is the fixed alert threshold for a product's total stock.
const LowStockThreshold = 10

const (
	AlertAddStock    = "Add stock"
	AlertEnoughStock = "Enough stock"
)
