package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"apotekpos/backend/internal/domain"
	"apotekpos/backend/internal/store"
)

func seedSaleWithBatch(t *testing.T, s *Store) (domain.Sale, domain.StockBatch) {
	t.Helper()
	ctx := context.Background()

	product, err := s.CreateProduct(ctx, domain.Product{Name: "Paracetamol 500mg"})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	batch, err := s.CreateBatch(ctx, domain.StockBatch{
		ProductID:    product.ID,
		BatchNumber:  "BN-1",
		Quantity:     10,
		CostPrice:    decimal.NewFromInt(1),
		SellingPrice: decimal.NewFromInt(2),
		ExpiryDate:   time.Now().UTC().AddDate(1, 0, 0),
	})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	sale, err := s.CreateSale(ctx, domain.Sale{
		ReceiptNumber: "INV-00001",
		Total:         decimal.NewFromInt(6),
		PaymentMethod: "cash",
		CashierID:     "cashier",
		Items: []domain.SaleItem{{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    3,
			UnitPrice:   decimal.NewFromInt(2),
			LineTotal:   decimal.NewFromInt(6),
			Deductions: []domain.BatchDeduction{{
				BatchID:     batch.ID,
				BatchNumber: batch.BatchNumber,
				Quantity:    3,
			}},
		}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	return *sale, *batch
}

func TestCreateReturnUnknownBatchFails(t *testing.T) {
	s := New()
	sale, batch := seedSaleWithBatch(t, s)

	bogus := "no-such-batch"
	_, err := s.CreateReturn(context.Background(), domain.SalesReturn{
		SaleID:        sale.ID,
		ReceiptNumber: "RET-1",
		Items: []domain.ReturnItem{{
			SaleItemID: sale.Items[0].ID,
			ProductID:  sale.Items[0].ProductID,
			BatchID:    &bogus,
			Quantity:   2,
		}},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown batch, got %v", err)
	}

	batches, err := s.GetAvailableBatches(context.Background(), batch.ProductID)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	if len(batches) != 1 || batches[0].Quantity != 7 {
		t.Fatalf("batch quantities changed by failed return: %+v", batches)
	}
}

func TestCreateReturnFailureRestoresNothing(t *testing.T) {
	s := New()
	sale, batch := seedSaleWithBatch(t, s)

	bogus := "no-such-batch"
	_, err := s.CreateReturn(context.Background(), domain.SalesReturn{
		SaleID:        sale.ID,
		ReceiptNumber: "RET-2",
		Items: []domain.ReturnItem{
			{SaleItemID: sale.Items[0].ID, ProductID: sale.Items[0].ProductID, BatchID: &batch.ID, Quantity: 1},
			{SaleItemID: sale.Items[0].ID, ProductID: sale.Items[0].ProductID, BatchID: &bogus, Quantity: 1},
		},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// The valid first item must not have been applied either.
	batches, err := s.GetAvailableBatches(context.Background(), batch.ProductID)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	if len(batches) != 1 || batches[0].Quantity != 7 {
		t.Fatalf("partial restore leaked through: %+v", batches)
	}

	returned, err := s.GetReturnedQuantities(context.Background(), sale.ID)
	if err != nil {
		t.Fatalf("returned quantities: %v", err)
	}
	if returned[sale.Items[0].ID] != 0 {
		t.Fatalf("failed return recorded quantities: %v", returned)
	}
}
