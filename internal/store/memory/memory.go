package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"apotekpos/backend/internal/domain"
	"apotekpos/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	batchesByID     map[string]*domain.StockBatch
	batchesByProd   map[string][]string
	salesByID       map[string]*domain.Sale
	salesByReceipt  map[string]string
	returnsByID     map[string]domain.SalesReturn
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		batchesByID:     make(map[string]*domain.StockBatch),
		batchesByProd:   make(map[string][]string),
		salesByID:       make(map[string]*domain.Sale),
		salesByReceipt:  make(map[string]string),
		returnsByID:     make(map[string]domain.SalesReturn),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

// NewSeeded returns a store with a small pharmacy catalog and stocked
// batches for dev/demo mode.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	type seedBatch struct {
		number   string
		qty      int
		cost     string
		price    string
		expiryIn time.Duration
	}
	seeds := []struct {
		name    string
		barcode string
		salt    string
		cat     string
		batches []seedBatch
	}{
		{"Paracetamol 500mg", "8964000111013", "Paracetamol", "analgesic", []seedBatch{
			{"PCM-2403", 40, "1.10", "2.00", 60 * 24 * time.Hour},
			{"PCM-2409", 120, "1.15", "2.00", 300 * 24 * time.Hour},
		}},
		{"Amoxicillin 250mg", "8964000111020", "Amoxicillin", "antibiotic", []seedBatch{
			{"AMX-2401", 60, "4.60", "7.50", 120 * 24 * time.Hour},
		}},
		{"Cetirizine 10mg", "8964000111037", "Cetirizine HCl", "antihistamine", []seedBatch{
			{"CTZ-2312", 25, "0.80", "1.50", 45 * 24 * time.Hour},
			{"CTZ-2406", 90, "0.85", "1.50", 400 * 24 * time.Hour},
		}},
		{"Ibuprofen 400mg", "8964000111044", "Ibuprofen", "analgesic", []seedBatch{
			{"IBU-2405", 75, "2.20", "3.80", 200 * 24 * time.Hour},
		}},
		{"Omeprazole 20mg", "8964000111051", "Omeprazole", "antacid", []seedBatch{
			{"OMP-2402", 50, "3.40", "6.00", 150 * 24 * time.Hour},
		}},
		{"ORS Sachet", "8964000111068", "Oral Rehydration Salts", "supplement", []seedBatch{
			{"ORS-2404", 200, "0.40", "0.90", 500 * 24 * time.Hour},
		}},
	}

	for _, sp := range seeds {
		product := domain.Product{
			ID:          uuid.NewString(),
			Name:        sp.name,
			Barcode:     sp.barcode,
			SaltFormula: sp.salt,
			Category:    sp.cat,
			Active:      true,
			CreatedAt:   now,
		}
		s.products[product.ID] = product
		for _, sb := range sp.batches {
			batch := domain.StockBatch{
				ID:           uuid.NewString(),
				ProductID:    product.ID,
				BatchNumber:  sb.number,
				Quantity:     sb.qty,
				CostPrice:    decimal.RequireFromString(sb.cost),
				SellingPrice: decimal.RequireFromString(sb.price),
				ExpiryDate:   now.Add(sb.expiryIn),
				PurchaseDate: now.Add(-30 * 24 * time.Hour),
			}
			s.batchesByID[batch.ID] = &batch
			s.batchesByProd[product.ID] = append(s.batchesByProd[product.ID], batch.ID)
		}
	}
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})

	return products, nil
}

func (s *Store) SearchProducts(_ context.Context, query string, limit int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 50
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	result := make([]domain.Product, 0, limit)
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.SaltFormula), needle) &&
			p.Barcode != query {
			continue
		}
		result = append(result, p)
	}
	slices.SortFunc(result, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	if product.Barcode != "" {
		for _, existing := range s.products {
			if existing.Barcode == product.Barcode {
				return nil, store.ErrInvalidInput
			}
		}
	}

	product.Active = true
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}

	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) CreateBatch(_ context.Context, batch domain.StockBatch) (*domain.StockBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if batch.ProductID == "" || batch.Quantity < 1 || batch.ExpiryDate.IsZero() {
		return nil, store.ErrInvalidInput
	}
	if batch.SellingPrice.Cmp(decimal.Zero) <= 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.products[batch.ProductID]; !exists {
		return nil, store.ErrNotFound
	}
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if strings.TrimSpace(batch.BatchNumber) == "" {
		batch.BatchNumber = "MANUAL-" + batch.ID[:8]
	}
	if batch.PurchaseDate.IsZero() {
		batch.PurchaseDate = time.Now().UTC()
	}

	stored := batch
	s.batchesByID[batch.ID] = &stored
	s.batchesByProd[batch.ProductID] = append(s.batchesByProd[batch.ProductID], batch.ID)
	created := batch
	return &created, nil
}

func (s *Store) GetAvailableBatches(_ context.Context, productID string) ([]domain.StockBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockBatch, 0, len(s.batchesByProd[productID]))
	for _, id := range s.batchesByProd[productID] {
		batch := s.batchesByID[id]
		if batch == nil || batch.Quantity < 1 {
			continue
		}
		result = append(result, *batch)
	}
	slices.SortFunc(result, compareBatchForFEFO)
	return result, nil
}

func (s *Store) ListBatches(_ context.Context, productID string, includeEmpty bool, limit int) ([]domain.StockBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 200
	}
	result := make([]domain.StockBatch, 0, limit)
	appendBatch := func(batch *domain.StockBatch) {
		if batch == nil {
			return
		}
		if !includeEmpty && batch.Quantity < 1 {
			return
		}
		result = append(result, *batch)
	}

	if productID != "" {
		for _, id := range s.batchesByProd[productID] {
			appendBatch(s.batchesByID[id])
		}
	} else {
		for _, batch := range s.batchesByID {
			appendBatch(batch)
		}
	}

	slices.SortFunc(result, compareBatchForFEFO)
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListExpiringBatches(_ context.Context, before time.Time, limit int) ([]domain.StockBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.StockBatch, 0, limit)
	for _, batch := range s.batchesByID {
		if batch.Quantity < 1 || batch.ExpiryDate.After(before) {
			continue
		}
		result = append(result, *batch)
	}
	slices.SortFunc(result, compareBatchForFEFO)
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetStockTotals(_ context.Context, productIDs []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]int, len(productIDs))
	for _, productID := range productIDs {
		total := 0
		for _, id := range s.batchesByProd[productID] {
			if batch := s.batchesByID[id]; batch != nil && batch.Quantity > 0 {
				total += batch.Quantity
			}
		}
		totals[productID] = total
	}
	return totals, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ReceiptNumber == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidCartItem
	}
	if _, exists := s.salesByReceipt[sale.ReceiptNumber]; exists {
		return nil, fmt.Errorf("receipt %s already issued", sale.ReceiptNumber)
	}

	// Verify every deduction still fits before touching any batch, so a
	// failed sale leaves quantities untouched.
	needed := map[string]int{}
	for _, item := range sale.Items {
		for _, d := range item.Deductions {
			if d.Quantity < 1 {
				return nil, store.ErrInvalidCartItem
			}
			needed[d.BatchID] += d.Quantity
		}
	}
	for batchID, qty := range needed {
		batch, exists := s.batchesByID[batchID]
		if !exists {
			return nil, store.ErrNotFound
		}
		if batch.Quantity < qty {
			return nil, store.ErrInsufficientStock
		}
	}

	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	for i := range sale.Items {
		if sale.Items[i].ID == "" {
			sale.Items[i].ID = uuid.NewString()
		}
		sale.Items[i].SaleID = sale.ID
	}

	for batchID, qty := range needed {
		s.batchesByID[batchID].Quantity -= qty
	}

	saved := cloneSale(&sale)
	s.salesByID[sale.ID] = saved
	s.salesByReceipt[sale.ReceiptNumber] = sale.ID

	return cloneSale(saved), nil
}

func (s *Store) ListSales(_ context.Context, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		result = append(result, *cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ReceiptNumber, a.ReceiptNumber)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) GetSaleByReceipt(_ context.Context, receiptNumber string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.salesByReceipt[receiptNumber]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(s.salesByID[id]), nil
}

func (s *Store) LatestReceiptNumber(_ context.Context, prefix string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := ""
	var latestAt time.Time
	for receiptNumber, id := range s.salesByReceipt {
		if !strings.HasPrefix(receiptNumber, prefix+"-") {
			continue
		}
		sale := s.salesByID[id]
		if latest == "" || sale.CreatedAt.After(latestAt) ||
			(sale.CreatedAt.Equal(latestAt) && receiptNumber > latest) {
			latest = receiptNumber
			latestAt = sale.CreatedAt
		}
	}
	if latest == "" {
		return "", store.ErrNotFound
	}
	return latest, nil
}

func (s *Store) GetSalesSummary(_ context.Context, from time.Time, to time.Time) (domain.SalesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.SalesSummary{
		From:          from.Format("2006-01-02"),
		To:            to.Format("2006-01-02"),
		GrossTotal:    decimal.Zero,
		DiscountTotal: decimal.Zero,
		ByPayment:     make([]domain.SummaryPayment, 0, 3),
	}
	byPayment := map[string]*domain.SummaryPayment{}

	for _, sale := range s.salesByID {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		summary.Sales++
		summary.GrossTotal = summary.GrossTotal.Add(sale.Total)
		summary.DiscountTotal = summary.DiscountTotal.Add(sale.Discount)
		for _, item := range sale.Items {
			summary.ItemsSold += int64(item.Quantity)
		}

		payment := byPayment[sale.PaymentMethod]
		if payment == nil {
			payment = &domain.SummaryPayment{PaymentMethod: sale.PaymentMethod, Total: decimal.Zero}
			byPayment[sale.PaymentMethod] = payment
		}
		payment.Sales++
		payment.Total = payment.Total.Add(sale.Total)
	}

	for _, entry := range byPayment {
		summary.ByPayment = append(summary.ByPayment, *entry)
	}
	slices.SortFunc(summary.ByPayment, func(a, b domain.SummaryPayment) int {
		return cmpString(a.PaymentMethod, b.PaymentMethod)
	})

	return summary, nil
}

func (s *Store) CreateReturn(_ context.Context, ret domain.SalesReturn) (*domain.SalesReturn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(ret.SaleID) == "" || len(ret.Items) == 0 {
		return nil, store.ErrInvalidReturnRequest
	}
	sale, exists := s.salesByID[ret.SaleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	for _, item := range ret.Items {
		if item.Quantity < 1 {
			return nil, store.ErrInvalidReturnRequest
		}
	}

	if ret.ID == "" {
		ret.ID = uuid.NewString()
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	for i := range ret.Items {
		if ret.Items[i].ID == "" {
			ret.Items[i].ID = uuid.NewString()
		}
		ret.Items[i].ReturnID = ret.ID
	}

	for _, item := range ret.Items {
		if item.BatchID == nil {
			continue
		}
		if _, ok := s.batchesByID[*item.BatchID]; !ok {
			return nil, store.ErrNotFound
		}
	}
	for _, item := range ret.Items {
		if item.BatchID == nil {
			continue
		}
		s.batchesByID[*item.BatchID].Quantity += item.Quantity
	}

	saved := cloneReturn(ret)
	s.returnsByID[ret.ID] = saved
	sale.Returns = append(sale.Returns, saved)

	created := cloneReturn(saved)
	return &created, nil
}

func (s *Store) GetReturnedQuantities(_ context.Context, saleID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]int)
	for _, ret := range s.returnsByID {
		if ret.SaleID != saleID {
			continue
		}
		for _, item := range ret.Items {
			result[item.SaleItemID] += item.Quantity
		}
	}
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func compareBatchForFEFO(a domain.StockBatch, b domain.StockBatch) int {
	if a.ExpiryDate.Before(b.ExpiryDate) {
		return -1
	}
	if a.ExpiryDate.After(b.ExpiryDate) {
		return 1
	}
	if a.PurchaseDate.Before(b.PurchaseDate) {
		return -1
	}
	if a.PurchaseDate.After(b.PurchaseDate) {
		return 1
	}
	return cmpString(a.ID, b.ID)
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	items := make([]domain.SaleItem, len(src.Items))
	copy(items, src.Items)
	for i := range items {
		deductions := make([]domain.BatchDeduction, len(items[i].Deductions))
		copy(deductions, items[i].Deductions)
		items[i].Deductions = deductions
	}
	dup.Items = items
	returns := make([]domain.SalesReturn, len(src.Returns))
	for i, ret := range src.Returns {
		returns[i] = cloneReturn(ret)
	}
	dup.Returns = returns
	return &dup
}

func cloneReturn(src domain.SalesReturn) domain.SalesReturn {
	dup := src
	items := make([]domain.ReturnItem, len(src.Items))
	copy(items, src.Items)
	for i := range items {
		if items[i].BatchID != nil {
			id := *items[i].BatchID
			items[i].BatchID = &id
		}
	}
	dup.Items = items
	return dup
}
