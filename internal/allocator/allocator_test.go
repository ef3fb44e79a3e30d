package allocator

import (
	"errors"
	"testing"

	"apotekpos/backend/internal/domain"
)

func mustDate(t *testing.T, value string) domain.Date {
	t.Helper()
	d, err := domain.ParseDate(value)
	if err != nil {
		t.Fatalf("parse date %q: %v", value, err)
	}
	return d
}

func batch(t *testing.T, id string, qty int, expiry string) domain.Batch {
	t.Helper()
	return domain.Batch{
		BatchID:    id,
		ProductID:  "prod-1",
		Qty:        qty,
		ExpiryDate: mustDate(t, expiry),
	}
}

func TestPlanTakesSoonestExpiryFirst(t *testing.T) {
	batches := []domain.Batch{
		batch(t, "batch-2", 5, "2025-02-01"),
		batch(t, "batch-1", 5, "2025-01-01"),
	}

	plan, err := Plan(7, batches)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan) != 2 {
		t.Fatalf("expected 2 deductions, got %d", len(plan))
	}
	if plan[0].BatchID != "batch-1" || plan[0].Qty != 5 {
		t.Fatalf("first deduction = %+v, want batch-1 qty 5", plan[0])
	}
	if plan[1].BatchID != "batch-2" || plan[1].Qty != 2 {
		t.Fatalf("second deduction = %+v, want batch-2 qty 2", plan[1])
	}
}

func TestPlanBreaksExpiryTiesByBatchID(t *testing.T) {
	batches := []domain.Batch{
		batch(t, "batch-b", 4, "2025-03-01"),
		batch(t, "batch-a", 4, "2025-03-01"),
	}

	plan, err := Plan(5, batches)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan[0].BatchID != "batch-a" || plan[0].Qty != 4 {
		t.Fatalf("first deduction = %+v, want batch-a qty 4", plan[0])
	}
	if plan[1].BatchID != "batch-b" || plan[1].Qty != 1 {
		t.Fatalf("second deduction = %+v, want batch-b qty 1", plan[1])
	}
}

func TestPlanExactlyDrainsOneBatch(t *testing.T) {
	batches := []domain.Batch{batch(t, "batch-1", 5, "2025-01-01")}

	plan, err := Plan(5, batches)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan) != 1 || plan[0].Qty != 5 {
		t.Fatalf("plan = %+v, want single full deduction", plan)
	}
}

func TestPlanFailsWholeWhenStockInsufficient(t *testing.T) {
	batches := []domain.Batch{
		batch(t, "batch-1", 3, "2025-01-01"),
		batch(t, "batch-2", 3, "2025-02-01"),
	}

	plan, err := Plan(7, batches)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	if plan != nil {
		t.Fatalf("expected no partial plan, got %+v", plan)
	}
}

func TestPlanIgnoresEmptyBatches(t *testing.T) {
	batches := []domain.Batch{
		batch(t, "batch-1", 0, "2025-01-01"),
		batch(t, "batch-2", 4, "2025-02-01"),
	}

	plan, err := Plan(4, batches)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan) != 1 || plan[0].BatchID != "batch-2" {
		t.Fatalf("plan = %+v, want only batch-2", plan)
	}
}

func TestPlanRejectsNonPositiveQuantity(t *testing.T) {
	for _, requested := range []int{0, -3} {
		if _, err := Plan(requested, nil); !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("Plan(%d) err = %v, want ErrInvalidQuantity", requested, err)
		}
	}
}

func TestPlanDoesNotMutateSnapshot(t *testing.T) {
	batches := []domain.Batch{
		batch(t, "batch-1", 5, "2025-01-01"),
		batch(t, "batch-2", 5, "2025-02-01"),
	}

	if _, err := Plan(7, batches); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if batches[0].BatchID != "batch-1" || batches[0].Qty != 5 {
		t.Fatalf("snapshot mutated: %+v", batches[0])
	}
	if batches[1].BatchID != "batch-2" || batches[1].Qty != 5 {
		t.Fatalf("snapshot mutated: %+v", batches[1])
	}

	again, err := Plan(7, batches)
	if err != nil {
		t.Fatalf("Plan again: %v", err)
	}
	if again[0].Qty != 5 || again[1].Qty != 2 {
		t.Fatalf("second plan differs: %+v", again)
	}
}
