package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"apotekpos/backend/internal/domain"
)

func TestSaleAndReturnRoundTrip(t *testing.T) {
	databaseURL := os.Getenv("APOTEKPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set APOTEKPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prd-it-%d", stamp)
	batchA := fmt.Sprintf("bat-it-a-%d", stamp)
	batchB := fmt.Sprintf("bat-it-b-%d", stamp)
	saleID := fmt.Sprintf("sale-it-%d", stamp)
	receipt := fmt.Sprintf("IT-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales_return_items WHERE return_id IN (SELECT id FROM sales_returns WHERE sale_id = $1)`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales_returns WHERE sale_id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_batches WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.CreateProduct(ctx, domain.Product{ID: productID, Name: "Integration Paracetamol"}); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	expiryA := time.Now().UTC().AddDate(0, 6, 0)
	expiryB := time.Now().UTC().AddDate(1, 0, 0)
	if _, err := s.CreateBatch(ctx, domain.StockBatch{
		ID: batchA, ProductID: productID, BatchNumber: "IT-A", Quantity: 3,
		CostPrice: decimal.NewFromInt(1), SellingPrice: decimal.NewFromInt(2),
		ExpiryDate: expiryA, PurchaseDate: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("insert batch a: %v", err)
	}
	if _, err := s.CreateBatch(ctx, domain.StockBatch{
		ID: batchB, ProductID: productID, BatchNumber: "IT-B", Quantity: 10,
		CostPrice: decimal.NewFromInt(1), SellingPrice: decimal.NewFromInt(2),
		ExpiryDate: expiryB, PurchaseDate: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("insert batch b: %v", err)
	}

	available, err := s.GetAvailableBatches(ctx, productID)
	if err != nil {
		t.Fatalf("available batches: %v", err)
	}
	if len(available) != 2 || available[0].ID != batchA {
		t.Fatalf("expected batch a first by expiry, got %+v", available)
	}

	sale := domain.Sale{
		ID:            saleID,
		ReceiptNumber: receipt,
		Total:         decimal.NewFromInt(10),
		PaymentMethod: domain.PaymentMethodCash,
		CashierID:     "it-cashier",
		CreatedAt:     time.Now().UTC(),
		Items: []domain.SaleItem{{
			ProductID:   productID,
			ProductName: "Integration Paracetamol",
			Quantity:    5,
			UnitPrice:   decimal.NewFromInt(2),
			LineTotal:   decimal.NewFromInt(10),
			Deductions: []domain.BatchDeduction{
				{BatchID: batchA, BatchNumber: "IT-A", Quantity: 3, ExpiryDate: expiryA},
				{BatchID: batchB, BatchNumber: "IT-B", Quantity: 2, ExpiryDate: expiryB},
			},
		}},
	}
	created, err := s.CreateSale(ctx, sale)
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	totals, err := s.GetStockTotals(ctx, []string{productID})
	if err != nil {
		t.Fatalf("stock totals: %v", err)
	}
	if totals[productID] != 8 {
		t.Fatalf("expected stock 8 after sale, got %d", totals[productID])
	}

	batchID := batchA
	ret := domain.SalesReturn{
		SaleID:        saleID,
		ReceiptNumber: fmt.Sprintf("RET-IT-%d", stamp),
		Reason:        "integration test return",
		ReturnedBy:    "it-cashier",
		CreatedAt:     time.Now().UTC(),
		Items: []domain.ReturnItem{{
			SaleItemID: created.Items[0].ID,
			ProductID:  productID,
			BatchID:    &batchID,
			Quantity:   3,
		}},
	}
	if _, err := s.CreateReturn(ctx, ret); err != nil {
		t.Fatalf("create return: %v", err)
	}

	totals, err = s.GetStockTotals(ctx, []string{productID})
	if err != nil {
		t.Fatalf("stock totals after return: %v", err)
	}
	if totals[productID] != 11 {
		t.Fatalf("expected stock 11 after return, got %d", totals[productID])
	}

	returned, err := s.GetReturnedQuantities(ctx, saleID)
	if err != nil {
		t.Fatalf("returned quantities: %v", err)
	}
	if returned[created.Items[0].ID] != 3 {
		t.Fatalf("expected 3 returned for sale item, got %d", returned[created.Items[0].ID])
	}
}
