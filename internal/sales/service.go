// Package sales holds the settlement engine: cart validation, FEFO batch
// allocation, receipt numbering and the time-boxed returns workflow.
package sales

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"apotekpos/backend/internal/cache"
	"apotekpos/backend/internal/domain"
	"apotekpos/backend/internal/fefo"
	"apotekpos/backend/internal/receipt"
	"apotekpos/backend/internal/store"
)

// ReturnWindow is how long after settlement a sale stays eligible for
// returns. A return at exactly the window boundary is still accepted.
const ReturnWindow = 48 * time.Hour

const saleListCacheKey = "sales:recent"

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo          store.Repository
	saleCache     cache.SaleListCache
	receiptPrefix string
	saleCacheTTL  time.Duration
}

func New(repo store.Repository, saleCache cache.SaleListCache, receiptPrefix string, saleCacheTTL time.Duration) *Service {
	if receiptPrefix == "" {
		receiptPrefix = "INV"
	}
	if saleCache == nil {
		saleCache = cache.NoopSaleListCache{}
	}
	if saleCacheTTL <= 0 {
		saleCacheTTL = 30 * time.Second
	}

	return &Service{
		repo:          repo,
		saleCache:     saleCache,
		receiptPrefix: receiptPrefix,
		saleCacheTTL:  saleCacheTTL,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.SearchProducts(ctx, query, limit)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.SaltFormula = strings.TrimSpace(req.SaltFormula)
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))

	if req.Name == "" {
		return domain.Product{}, store.ErrInvalidInput
	}

	product := domain.Product{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Barcode:     req.Barcode,
		SaltFormula: req.SaltFormula,
		Category:    req.Category,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,barcode=%s", created.Name, created.Barcode))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.SaltFormula != nil {
		updated.SaltFormula = strings.TrimSpace(*req.SaltFormula)
	}
	if req.Category != nil {
		updated.Category = strings.ToLower(strings.TrimSpace(*req.Category))
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("name=%s,active=%t", saved.Name, saved.Active))
	return *saved, nil
}

func (s *Service) ReceiveBatch(ctx context.Context, req domain.BatchReceiveRequest) (domain.StockBatch, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.StockBatch{}, fmt.Errorf("admin role required")
	}

	req.ProductID = strings.TrimSpace(req.ProductID)
	req.BatchNumber = strings.TrimSpace(req.BatchNumber)
	if req.ProductID == "" || req.Quantity < 1 {
		return domain.StockBatch{}, store.ErrInvalidInput
	}
	if req.SellingPrice.Cmp(decimal.Zero) <= 0 || req.CostPrice.Cmp(decimal.Zero) < 0 {
		return domain.StockBatch{}, store.ErrInvalidInput
	}

	expiry, err := time.Parse("2006-01-02", req.ExpiryDate)
	if err != nil {
		return domain.StockBatch{}, store.ErrInvalidInput
	}
	purchaseDate := time.Now().UTC()
	if req.PurchaseDate != "" {
		purchaseDate, err = time.Parse("2006-01-02", req.PurchaseDate)
		if err != nil {
			return domain.StockBatch{}, store.ErrInvalidInput
		}
	}

	batch := domain.StockBatch{
		ID:           uuid.NewString(),
		ProductID:    req.ProductID,
		BatchNumber:  req.BatchNumber,
		Quantity:     req.Quantity,
		CostPrice:    req.CostPrice,
		SellingPrice: req.SellingPrice,
		ExpiryDate:   expiry,
		PurchaseDate: purchaseDate,
	}

	created, err := s.repo.CreateBatch(ctx, batch)
	if err != nil {
		return domain.StockBatch{}, err
	}

	s.logAudit(ctx, "batch_receive", "batch", created.ID, fmt.Sprintf("product=%s,batch=%s,qty=%d", created.ProductID, created.BatchNumber, created.Quantity))
	return *created, nil
}

func (s *Service) AvailableBatches(ctx context.Context, productID string) ([]domain.StockBatch, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.GetAvailableBatches(ctx, productID)
}

func (s *Service) ListBatches(ctx context.Context, productID string, includeEmpty bool, limit int) ([]domain.StockBatch, error) {
	if limit < 1 {
		limit = 200
	}
	return s.repo.ListBatches(ctx, productID, includeEmpty, limit)
}

func (s *Service) ExpiringBatches(ctx context.Context, withinDays int, limit int) ([]domain.StockBatch, error) {
	if withinDays < 1 {
		withinDays = 90
	}
	if limit < 1 {
		limit = 100
	}
	before := time.Now().UTC().AddDate(0, 0, withinDays)
	return s.repo.ListExpiringBatches(ctx, before, limit)
}

func (s *Service) StockTotals(ctx context.Context, productIDs []string) (map[string]int, error) {
	return s.repo.GetStockTotals(ctx, productIDs)
}

// SettleSale validates the whole cart and allocates every line against
// batch stock before anything is written. The allocation walks batches
// soonest expiry first and records one deduction per batch drawn on, so
// the persisted sale carries the ledger a later return needs.
func (s *Service) SettleSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Sale{}, fmt.Errorf("authenticated actor required")
	}

	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if !isSupportedPaymentMethod(req.PaymentMethod) {
		return domain.Sale{}, store.ErrInvalidCartItem
	}
	if req.Discount.Cmp(decimal.Zero) < 0 {
		return domain.Sale{}, store.ErrInvalidCartItem
	}
	if len(req.CartItems) == 0 {
		return domain.Sale{}, store.ErrInvalidCartItem
	}

	now := time.Now().UTC()
	total := decimal.Zero
	items := make([]domain.SaleItem, 0, len(req.CartItems))

	for _, item := range req.CartItems {
		item.ProductID = strings.TrimSpace(item.ProductID)
		item.ProductName = strings.TrimSpace(item.ProductName)
		if item.ProductID == "" || item.ProductName == "" || item.Quantity < 1 {
			return domain.Sale{}, store.ErrInvalidCartItem
		}

		batches, err := s.repo.GetAvailableBatches(ctx, item.ProductID)
		if err != nil {
			return domain.Sale{}, fmt.Errorf("load batches for %s: %w", item.ProductID, err)
		}

		deductions, err := fefo.Allocate(item.ProductName, item.Quantity, toFefoBatches(batches))
		if err != nil {
			return domain.Sale{}, err
		}

		items = append(items, domain.SaleItem{
			ID:          uuid.NewString(),
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal,
			Deductions:  toDomainDeductions(deductions),
		})
		total = total.Add(item.LineTotal)
	}

	receiptNumber := s.nextReceiptNumber(ctx, now)

	sale := domain.Sale{
		ID:            uuid.NewString(),
		ReceiptNumber: receiptNumber,
		Total:         total,
		Discount:      req.Discount,
		PaymentMethod: req.PaymentMethod,
		CashierID:     actor.Username,
		CreatedAt:     now,
		Items:         items,
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}

	if err := s.saleCache.Invalidate(ctx, saleListCacheKey); err != nil {
		log.Printf("[sales] WARN: failed to invalidate sale list cache: %v", err)
	}
	s.logAudit(ctx, "sale_settle", "sale", created.ID, fmt.Sprintf("receipt=%s,total=%s,items=%d", created.ReceiptNumber, created.Total.StringFixed(2), len(created.Items)))

	return *created, nil
}

func (s *Service) nextReceiptNumber(ctx context.Context, now time.Time) string {
	latest, err := s.repo.LatestReceiptNumber(ctx, s.receiptPrefix)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Printf("[sales] WARN: failed to read latest receipt number, using fallback: %v", err)
		return receipt.Fallback(s.receiptPrefix, now)
	}
	next, err := receipt.Next(s.receiptPrefix, latest)
	if err != nil {
		log.Printf("[sales] WARN: malformed latest receipt number %q, using fallback: %v", latest, err)
		return receipt.Fallback(s.receiptPrefix, now)
	}
	return next
}

func (s *Service) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	cached, hit, err := s.saleCache.GetSales(ctx, saleListCacheKey)
	if err != nil {
		log.Printf("[sales] WARN: sale list cache read failed: %v", err)
	}
	if hit && len(cached) >= limit {
		return cached[:limit], nil
	}

	sales, err := s.repo.ListSales(ctx, limit)
	if err != nil {
		return nil, err
	}
	if err := s.saleCache.SetSales(ctx, saleListCacheKey, sales, s.saleCacheTTL); err != nil {
		log.Printf("[sales] WARN: sale list cache write failed: %v", err)
	}
	return sales, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.GetSaleByID(ctx, id)
}

// FindSaleByReceipt returns (nil, nil) when no sale matches, so lookups
// from the returns screen can distinguish "not found" from a storage
// failure.
func (s *Service) FindSaleByReceipt(ctx context.Context, receiptNumber string) (*domain.Sale, error) {
	receiptNumber = strings.TrimSpace(receiptNumber)
	if receiptNumber == "" {
		return nil, store.ErrInvalidInput
	}
	sale, err := s.repo.GetSaleByReceipt(ctx, receiptNumber)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sale, nil
}

func (s *Service) ReturnedQuantities(ctx context.Context, saleID string) (map[string]int, error) {
	return s.repo.GetReturnedQuantities(ctx, saleID)
}

// IsReturnEligible reports whether a sale settled at soldAt can still be
// returned at the given instant. The boundary itself is inclusive.
func IsReturnEligible(soldAt time.Time, at time.Time) bool {
	return !at.After(soldAt.Add(ReturnWindow))
}

// MaxReturnable is the quantity of a sale item still open for return
// after earlier partial returns.
func MaxReturnable(item domain.SaleItem, alreadyReturned int) int {
	remaining := item.Quantity - alreadyReturned
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SettleReturn restores stock by walking each sale item's deduction
// ledger in its original order, so quantities go back to the batches
// they were drawn from. Sales persisted without a ledger are restored
// without batch attribution. Eligibility and per-item ceilings are the
// caller's responsibility.
func (s *Service) SettleReturn(ctx context.Context, req domain.ReturnRequest) (domain.SalesReturn, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.SalesReturn{}, fmt.Errorf("authenticated actor required")
	}

	req.SaleID = strings.TrimSpace(req.SaleID)
	if req.SaleID == "" || len(req.Items) == 0 {
		return domain.SalesReturn{}, store.ErrInvalidReturnRequest
	}

	sale, err := s.repo.GetSaleByID(ctx, req.SaleID)
	if err != nil {
		return domain.SalesReturn{}, err
	}

	itemsByID := make(map[string]domain.SaleItem, len(sale.Items))
	for _, item := range sale.Items {
		itemsByID[item.ID] = item
	}

	now := time.Now().UTC()
	returnItems := make([]domain.ReturnItem, 0, len(req.Items))
	for _, reqItem := range req.Items {
		if reqItem.Quantity < 1 {
			return domain.SalesReturn{}, store.ErrInvalidReturnRequest
		}
		saleItem, exists := itemsByID[reqItem.SaleItemID]
		if !exists {
			return domain.SalesReturn{}, store.ErrInvalidReturnRequest
		}

		remaining := reqItem.Quantity
		for _, d := range saleItem.Deductions {
			if remaining == 0 {
				break
			}
			restore := d.Quantity
			if restore > remaining {
				restore = remaining
			}
			batchID := d.BatchID
			returnItems = append(returnItems, domain.ReturnItem{
				ID:         uuid.NewString(),
				SaleItemID: saleItem.ID,
				ProductID:  saleItem.ProductID,
				BatchID:    &batchID,
				Quantity:   restore,
			})
			remaining -= restore
		}
		if remaining > 0 {
			// Ledger missing or shorter than the request: put the rest
			// back without attributing it to a batch.
			returnItems = append(returnItems, domain.ReturnItem{
				ID:         uuid.NewString(),
				SaleItemID: saleItem.ID,
				ProductID:  saleItem.ProductID,
				Quantity:   remaining,
			})
		}
	}

	ret := domain.SalesReturn{
		ID:            uuid.NewString(),
		SaleID:        sale.ID,
		ReceiptNumber: receipt.ReturnNumber(now),
		Reason:        strings.TrimSpace(req.Reason),
		ReturnedBy:    actor.Username,
		CreatedAt:     now,
		Items:         returnItems,
	}

	created, err := s.repo.CreateReturn(ctx, ret)
	if err != nil {
		return domain.SalesReturn{}, err
	}

	if err := s.saleCache.Invalidate(ctx, saleListCacheKey); err != nil {
		log.Printf("[sales] WARN: failed to invalidate sale list cache: %v", err)
	}
	s.logAudit(ctx, "sale_return", "return", created.ID, fmt.Sprintf("sale=%s,receipt=%s,items=%d", created.SaleID, created.ReceiptNumber, len(created.Items)))

	return *created, nil
}

func (s *Service) SalesSummary(ctx context.Context, date string) (domain.SalesSummary, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		day = time.Now().UTC()
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	return s.repo.GetSalesSummary(ctx, from, to)
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("admin role required")
	}

	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		day = time.Now().UTC()
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	if limit < 1 {
		limit = 200
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            uuid.NewString(),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func toFefoBatches(batches []domain.StockBatch) []fefo.Batch {
	result := make([]fefo.Batch, 0, len(batches))
	for _, b := range batches {
		result = append(result, fefo.Batch{
			ID:          b.ID,
			BatchNumber: b.BatchNumber,
			Quantity:    b.Quantity,
			ExpiryDate:  b.ExpiryDate,
		})
	}
	return result
}

func toDomainDeductions(deductions []fefo.Deduction) []domain.BatchDeduction {
	result := make([]domain.BatchDeduction, 0, len(deductions))
	for _, d := range deductions {
		result = append(result, domain.BatchDeduction{
			BatchID:     d.BatchID,
			BatchNumber: d.BatchNumber,
			Quantity:    d.Quantity,
			ExpiryDate:  d.ExpiryDate,
		})
	}
	return result
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentMethodCash, domain.PaymentMethodCard, domain.PaymentMethodTransfer:
		return true
	default:
		return false
	}
}
