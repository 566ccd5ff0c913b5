// Package fefo allocates sale quantities across stock batches in
// first-expiry-first-out order. It is pure bookkeeping: callers pass a
// snapshot of batches already sorted by expiry and apply the resulting
// deductions themselves.
package fefo

import (
	"fmt"
	"time"
)

type Batch struct {
	ID          string
	BatchNumber string
	Quantity    int
	ExpiryDate  time.Time
}

type Deduction struct {
	BatchID     string
	BatchNumber string
	Quantity    int
	ExpiryDate  time.Time
}

// InsufficientStockError reports that the batches for a product cannot
// cover the requested quantity. Available is the total on hand so the
// caller can surface it to the cashier.
type InsufficientStockError struct {
	Product   string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.Product, e.Requested, e.Available)
}

// Allocate walks batches in the order given and deducts from each until
// quantity is covered. Batches with zero or negative quantity are skipped.
// If the batches cannot cover the request, no partial allocation is
// returned. The input slice is never modified.
func Allocate(product string, quantity int, batches []Batch) ([]Deduction, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("allocate %s: quantity must be positive, got %d", product, quantity)
	}

	available := 0
	for _, b := range batches {
		if b.Quantity > 0 {
			available += b.Quantity
		}
	}
	if available < quantity {
		return nil, &InsufficientStockError{Product: product, Requested: quantity, Available: available}
	}

	deductions := make([]Deduction, 0, 2)
	remaining := quantity
	for _, b := range batches {
		if remaining == 0 {
			break
		}
		if b.Quantity <= 0 {
			continue
		}
		take := b.Quantity
		if take > remaining {
			take = remaining
		}
		deductions = append(deductions, Deduction{
			BatchID:     b.ID,
			BatchNumber: b.BatchNumber,
			Quantity:    take,
			ExpiryDate:  b.ExpiryDate,
		})
		remaining -= take
	}
	return deductions, nil
}
