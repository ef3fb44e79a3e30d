// Package allocator computes first-expiry-first-out deduction plans.
// It is a pure computation over a snapshot of batch state: callers own the
// snapshot's freshness and the application of the resulting plan.
package allocator

import (
	"errors"
	"sort"

	"apotekpos/backend/internal/domain"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("requested quantity must be positive")
)

// Plan walks the candidate batches soonest-expiry-first and deducts
// min(remaining, batch.qty) from each until the requested quantity is covered.
// Ties on expiry date break by batch id ascending so the plan is deterministic
// regardless of storage order. If the candidates cannot cover the request the
// plan fails whole: no partial deductions are returned.
func Plan(requested int, batches []domain.Batch) ([]domain.BatchDeduction, error) {
	if requested < 1 {
		return nil, ErrInvalidQuantity
	}

	candidates := make([]domain.Batch, 0, len(batches))
	available := 0
	for _, batch := range batches {
		if batch.Qty <= 0 {
			continue
		}
		candidates = append(candidates, batch)
		available += batch.Qty
	}
	if available < requested {
		return nil, ErrInsufficientStock
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].ExpiryDate.Equal(candidates[j].ExpiryDate) {
			return candidates[i].ExpiryDate.Before(candidates[j].ExpiryDate)
		}
		return candidates[i].BatchID < candidates[j].BatchID
	})

	plan := make([]domain.BatchDeduction, 0, len(candidates))
	remaining := requested
	for _, batch := range candidates {
		if remaining == 0 {
			break
		}
		take := remaining
		if take > batch.Qty {
			take = batch.Qty
		}
		plan = append(plan, domain.BatchDeduction{
			BatchID:   batch.BatchID,
			ProductID: batch.ProductID,
			Qty:       take,
		})
		remaining -= take
	}

	return plan, nil
}
