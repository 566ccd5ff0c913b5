package sales

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"apotekpos/backend/internal/domain"
	"apotekpos/backend/internal/fefo"
	"apotekpos/backend/internal/store"
	"apotekpos/backend/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.New()
	svc := New(repo, nil, "INV", 30*time.Second)
	return svc, repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: domain.RoleCashier})
}

type testBatch struct {
	number string
	qty    int
	expiry string
}

func seedProduct(t *testing.T, svc *Service, name string, batches []testBatch) domain.Product {
	t.Helper()
	ctx := adminCtx()

	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: name})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	for _, b := range batches {
		_, err := svc.ReceiveBatch(ctx, domain.BatchReceiveRequest{
			ProductID:    product.ID,
			BatchNumber:  b.number,
			Quantity:     b.qty,
			CostPrice:    decimal.NewFromInt(1),
			SellingPrice: decimal.NewFromInt(2),
			ExpiryDate:   b.expiry,
		})
		if err != nil {
			t.Fatalf("receive batch %s: %v", b.number, err)
		}
	}
	return product
}

func batchQuantities(t *testing.T, svc *Service, productID string) map[string]int {
	t.Helper()
	batches, err := svc.ListBatches(adminCtx(), productID, true, 0)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	result := make(map[string]int, len(batches))
	for _, b := range batches {
		result[b.BatchNumber] = b.Quantity
	}
	return result
}

func TestSettleSaleAllocatesAcrossBatches(t *testing.T) {
	svc, _ := newTestService()
	product := seedProduct(t, svc, "Paracetamol 500mg", []testBatch{
		{"BN-1", 3, "2027-01-01"},
		{"BN-2", 10, "2027-06-01"},
	})

	sale, err := svc.SettleSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod: "cash",
		CartItems: []domain.CartItem{{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    5,
			UnitPrice:   decimal.NewFromInt(2),
			LineTotal:   decimal.NewFromInt(10),
		}},
	})
	if err != nil {
		t.Fatalf("settle sale: %v", err)
	}

	if sale.ReceiptNumber != "INV-00001" {
		t.Fatalf("receipt = %s, want INV-00001", sale.ReceiptNumber)
	}
	if len(sale.Items) != 1 {
		t.Fatalf("expected 1 sale item, got %d", len(sale.Items))
	}
	deductions := sale.Items[0].Deductions
	if len(deductions) != 2 {
		t.Fatalf("expected 2 deductions, got %d", len(deductions))
	}
	if deductions[0].BatchNumber != "BN-1" || deductions[0].Quantity != 3 {
		t.Fatalf("first deduction = %+v, want BN-1 qty 3", deductions[0])
	}
	if deductions[1].BatchNumber != "BN-2" || deductions[1].Quantity != 2 {
		t.Fatalf("second deduction = %+v, want BN-2 qty 2", deductions[1])
	}

	quantities := batchQuantities(t, svc, product.ID)
	if quantities["BN-1"] != 0 || quantities["BN-2"] != 8 {
		t.Fatalf("batch quantities after sale = %v, want BN-1=0 BN-2=8", quantities)
	}
}

func TestSettleSaleReceiptNumbersIncrement(t *testing.T) {
	svc, _ := newTestService()
	product := seedProduct(t, svc, "ORS Sachet", []testBatch{{"ORS-1", 50, "2027-03-01"}})

	cart := []domain.CartItem{{
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    1,
		UnitPrice:   decimal.NewFromInt(1),
		LineTotal:   decimal.NewFromInt(1),
	}}

	first, err := svc.SettleSale(cashierCtx(), domain.SaleRequest{PaymentMethod: "cash", CartItems: cart})
	if err != nil {
		t.Fatalf("first sale: %v", err)
	}
	second, err := svc.SettleSale(cashierCtx(), domain.SaleRequest{PaymentMethod: "card", CartItems: cart})
	if err != nil {
		t.Fatalf("second sale: %v", err)
	}
	if first.ReceiptNumber != "INV-00001" || second.ReceiptNumber != "INV-00002" {
		t.Fatalf("receipts = %s, %s; want INV-00001, INV-00002", first.ReceiptNumber, second.ReceiptNumber)
	}
}

func TestSettleSaleTotalsSumLineTotals(t *testing.T) {
	svc, _ := newTestService()
	paracetamol := seedProduct(t, svc, "Paracetamol 500mg", []testBatch{{"PCM-1", 20, "2027-01-01"}})
	ibuprofen := seedProduct(t, svc, "Ibuprofen 400mg", []testBatch{{"IBU-1", 20, "2027-01-01"}})

	sale, err := svc.SettleSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod: "cash",
		Discount:      decimal.NewFromInt(1),
		CartItems: []domain.CartItem{
			{ProductID: paracetamol.ID, ProductName: paracetamol.Name, Quantity: 2, UnitPrice: decimal.NewFromInt(2), LineTotal: decimal.NewFromInt(4)},
			{ProductID: ibuprofen.ID, ProductName: ibuprofen.Name, Quantity: 3, UnitPrice: decimal.RequireFromString("3.80"), LineTotal: decimal.RequireFromString("11.40")},
		},
	})
	if err != nil {
		t.Fatalf("settle sale: %v", err)
	}
	want := decimal.RequireFromString("15.40")
	if !sale.Total.Equal(want) {
		t.Fatalf("total = %s, want %s", sale.Total, want)
	}
	if !sale.Discount.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("discount = %s, want 1", sale.Discount)
	}
}

func TestSettleSaleInsufficientStockWritesNothing(t *testing.T) {
	svc, _ := newTestService()
	paracetamol := seedProduct(t, svc, "Paracetamol 500mg", []testBatch{{"PCM-1", 20, "2027-01-01"}})
	amoxicillin := seedProduct(t, svc, "Amoxicillin 250mg", []testBatch{{"AMX-1", 4, "2027-01-01"}})

	_, err := svc.SettleSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod: "cash",
		CartItems: []domain.CartItem{
			{ProductID: paracetamol.ID, ProductName: paracetamol.Name, Quantity: 5, UnitPrice: decimal.NewFromInt(2), LineTotal: decimal.NewFromInt(10)},
			{ProductID: amoxicillin.ID, ProductName: "Amoxicillin 250mg", Quantity: 10, UnitPrice: decimal.NewFromInt(7), LineTotal: decimal.NewFromInt(70)},
		},
	})
	var insufficient *fefo.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if insufficient.Product != "Amoxicillin 250mg" || insufficient.Available != 4 {
		t.Fatalf("unexpected error detail %+v", insufficient)
	}

	if quantities := batchQuantities(t, svc, paracetamol.ID); quantities["PCM-1"] != 20 {
		t.Fatalf("paracetamol stock changed on failed sale: %v", quantities)
	}
	sales, err := svc.ListSales(context.Background(), 10)
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("expected no persisted sales, got %d", len(sales))
	}
}

func TestSettleSaleRejectsInvalidCartItems(t *testing.T) {
	svc, _ := newTestService()
	product := seedProduct(t, svc, "Cetirizine 10mg", []testBatch{{"CTZ-1", 10, "2027-01-01"}})

	cases := []domain.SaleRequest{
		{PaymentMethod: "cash", CartItems: nil},
		{PaymentMethod: "cash", CartItems: []domain.CartItem{{ProductID: "", ProductName: product.Name, Quantity: 1}}},
		{PaymentMethod: "cash", CartItems: []domain.CartItem{{ProductID: product.ID, ProductName: "", Quantity: 1}}},
		{PaymentMethod: "cash", CartItems: []domain.CartItem{{ProductID: product.ID, ProductName: "  ", Quantity: 1}}},
		{PaymentMethod: "cash", CartItems: []domain.CartItem{{ProductID: product.ID, ProductName: product.Name, Quantity: 0}}},
		{PaymentMethod: "cheque", CartItems: []domain.CartItem{{ProductID: product.ID, ProductName: product.Name, Quantity: 1}}},
	}
	for i, req := range cases {
		if _, err := svc.SettleSale(cashierCtx(), req); !errors.Is(err, store.ErrInvalidCartItem) {
			t.Fatalf("case %d: expected ErrInvalidCartItem, got %v", i, err)
		}
	}
}

func TestReturnRestoresBatchQuantities(t *testing.T) {
	svc, _ := newTestService()
	product := seedProduct(t, svc, "Paracetamol 500mg", []testBatch{
		{"BN-1", 3, "2027-01-01"},
		{"BN-2", 10, "2027-06-01"},
	})

	sale, err := svc.SettleSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod: "cash",
		CartItems: []domain.CartItem{{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    5,
			UnitPrice:   decimal.NewFromInt(2),
			LineTotal:   decimal.NewFromInt(10),
		}},
	})
	if err != nil {
		t.Fatalf("settle sale: %v", err)
	}

	ret, err := svc.SettleReturn(cashierCtx(), domain.ReturnRequest{
		SaleID: sale.ID,
		Reason: "customer changed mind",
		Items:  []domain.ReturnRequestItem{{SaleItemID: sale.Items[0].ID, Quantity: 5}},
	})
	if err != nil {
		t.Fatalf("settle return: %v", err)
	}

	if len(ret.Items) != 2 {
		t.Fatalf("expected 2 return items, got %d", len(ret.Items))
	}
	for _, item := range ret.Items {
		if item.BatchID == nil {
			t.Fatalf("return item has no batch attribution: %+v", item)
		}
	}

	quantities := batchQuantities(t, svc, product.ID)
	if quantities["BN-1"] != 3 || quantities["BN-2"] != 10 {
		t.Fatalf("batch quantities after return = %v, want BN-1=3 BN-2=10", quantities)
	}

	returned, err := svc.ReturnedQuantities(context.Background(), sale.ID)
	if err != nil {
		t.Fatalf("returned quantities: %v", err)
	}
	if returned[sale.Items[0].ID] != 5 {
		t.Fatalf("returned quantity = %d, want 5", returned[sale.Items[0].ID])
	}
}

func TestPartialReturnsAccumulate(t *testing.T) {
	svc, _ := newTestService()
	product := seedProduct(t, svc, "Ibuprofen 400mg", []testBatch{{"IBU-1", 10, "2027-01-01"}})

	sale, err := svc.SettleSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod: "cash",
		CartItems: []domain.CartItem{{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    4,
			UnitPrice:   decimal.NewFromInt(4),
			LineTotal:   decimal.NewFromInt(16),
		}},
	})
	if err != nil {
		t.Fatalf("settle sale: %v", err)
	}
	item := sale.Items[0]

	if _, err := svc.SettleReturn(cashierCtx(), domain.ReturnRequest{
		SaleID: sale.ID,
		Items:  []domain.ReturnRequestItem{{SaleItemID: item.ID, Quantity: 3}},
	}); err != nil {
		t.Fatalf("first return: %v", err)
	}

	returned, err := svc.ReturnedQuantities(context.Background(), sale.ID)
	if err != nil {
		t.Fatalf("returned quantities: %v", err)
	}
	if got := MaxReturnable(item, returned[item.ID]); got != 1 {
		t.Fatalf("max returnable after partial return = %d, want 1", got)
	}

	if _, err := svc.SettleReturn(cashierCtx(), domain.ReturnRequest{
		SaleID: sale.ID,
		Items:  []domain.ReturnRequestItem{{SaleItemID: item.ID, Quantity: 1}},
	}); err != nil {
		t.Fatalf("second return: %v", err)
	}

	returned, _ = svc.ReturnedQuantities(context.Background(), sale.ID)
	if got := MaxReturnable(item, returned[item.ID]); got != 0 {
		t.Fatalf("max returnable after full return = %d, want 0", got)
	}
}

func TestReturnWithoutLedgerIsUnattributed(t *testing.T) {
	svc, repo := newTestService()
	product := seedProduct(t, svc, "Omeprazole 20mg", []testBatch{{"OMP-1", 10, "2027-01-01"}})

	// Sales persisted before batch ledgers existed carry no deductions.
	sale, err := repo.CreateSale(context.Background(), domain.Sale{
		ReceiptNumber: "INV-90001",
		Total:         decimal.NewFromInt(12),
		PaymentMethod: "cash",
		CashierID:     "cashier",
		Items: []domain.SaleItem{{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    2,
			UnitPrice:   decimal.NewFromInt(6),
			LineTotal:   decimal.NewFromInt(12),
		}},
	})
	if err != nil {
		t.Fatalf("create legacy sale: %v", err)
	}

	ret, err := svc.SettleReturn(cashierCtx(), domain.ReturnRequest{
		SaleID: sale.ID,
		Items:  []domain.ReturnRequestItem{{SaleItemID: sale.Items[0].ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("settle return: %v", err)
	}
	if len(ret.Items) != 1 {
		t.Fatalf("expected 1 return item, got %d", len(ret.Items))
	}
	if ret.Items[0].BatchID != nil {
		t.Fatalf("expected unattributed return item, got batch %s", *ret.Items[0].BatchID)
	}
	if ret.Items[0].Quantity != 2 {
		t.Fatalf("return quantity = %d, want 2", ret.Items[0].Quantity)
	}

	// Unattributed restores must not inflate any batch.
	if quantities := batchQuantities(t, svc, product.ID); quantities["OMP-1"] != 10 {
		t.Fatalf("batch quantity changed by unattributed return: %v", quantities)
	}
}

func TestSettleReturnRejectsInvalidRequests(t *testing.T) {
	svc, _ := newTestService()
	product := seedProduct(t, svc, "Cetirizine 10mg", []testBatch{{"CTZ-1", 10, "2027-01-01"}})

	sale, err := svc.SettleSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod: "cash",
		CartItems: []domain.CartItem{{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    2,
			UnitPrice:   decimal.NewFromInt(1),
			LineTotal:   decimal.NewFromInt(2),
		}},
	})
	if err != nil {
		t.Fatalf("settle sale: %v", err)
	}

	cases := []domain.ReturnRequest{
		{SaleID: sale.ID, Items: nil},
		{SaleID: sale.ID, Items: []domain.ReturnRequestItem{{SaleItemID: sale.Items[0].ID, Quantity: 0}}},
		{SaleID: sale.ID, Items: []domain.ReturnRequestItem{{SaleItemID: "missing-item", Quantity: 1}}},
	}
	for i, req := range cases {
		if _, err := svc.SettleReturn(cashierCtx(), req); !errors.Is(err, store.ErrInvalidReturnRequest) {
			t.Fatalf("case %d: expected ErrInvalidReturnRequest, got %v", i, err)
		}
	}

	if _, err := svc.SettleReturn(cashierCtx(), domain.ReturnRequest{
		SaleID: "missing-sale",
		Items:  []domain.ReturnRequestItem{{SaleItemID: "x", Quantity: 1}},
	}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing sale, got %v", err)
	}
}

func TestIsReturnEligibleBoundary(t *testing.T) {
	soldAt := time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC)

	if !IsReturnEligible(soldAt, soldAt.Add(24*time.Hour)) {
		t.Fatal("sale should be eligible within the window")
	}
	if !IsReturnEligible(soldAt, soldAt.Add(48*time.Hour)) {
		t.Fatal("sale should be eligible at exactly the window boundary")
	}
	if IsReturnEligible(soldAt, soldAt.Add(48*time.Hour+time.Second)) {
		t.Fatal("sale should not be eligible past the window")
	}
}

func TestFindSaleByReceiptMissingIsNil(t *testing.T) {
	svc, _ := newTestService()

	sale, err := svc.FindSaleByReceipt(context.Background(), "INV-99999")
	if err != nil {
		t.Fatalf("find sale: %v", err)
	}
	if sale != nil {
		t.Fatalf("expected nil sale, got %+v", sale)
	}
}

func TestSettleSaleRecordsAudit(t *testing.T) {
	svc, _ := newTestService()
	product := seedProduct(t, svc, "ORS Sachet", []testBatch{{"ORS-1", 5, "2027-01-01"}})

	if _, err := svc.SettleSale(cashierCtx(), domain.SaleRequest{
		PaymentMethod: "cash",
		CartItems: []domain.CartItem{{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    1,
			UnitPrice:   decimal.NewFromInt(1),
			LineTotal:   decimal.NewFromInt(1),
		}},
	}); err != nil {
		t.Fatalf("settle sale: %v", err)
	}

	logs, err := svc.ListAuditLogs(adminCtx(), time.Now().UTC().Format("2006-01-02"), 50)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	found := false
	for _, entry := range logs {
		if entry.Action == "sale_settle" && entry.ActorUsername == "cashier" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a sale_settle audit entry")
	}
}
