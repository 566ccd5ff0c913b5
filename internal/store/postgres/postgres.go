package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"apotekpos/backend/internal/domain"
	"apotekpos/backend/internal/store"
)

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

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(barcode,''), COALESCE(salt_formula,''), COALESCE(category,''), active, created_at
		FROM products
		WHERE active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Barcode, &p.SaltFormula, &p.Category, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 50
	}
	pattern := "%" + strings.TrimSpace(query) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(barcode,''), COALESCE(salt_formula,''), COALESCE(category,''), active, created_at
		FROM products
		WHERE active = true
			AND (name ILIKE $1 OR barcode ILIKE $1 OR salt_formula ILIKE $1)
		ORDER BY name
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, limit)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Barcode, &p.SaltFormula, &p.Category, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, barcode, salt_formula, category, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
	`, product.ID, product.Name, nullIfEmpty(product.Barcode), nullIfEmpty(product.SaltFormula), nullIfEmpty(product.Category), product.Active, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(barcode,''), COALESCE(salt_formula,''), COALESCE(category,''), active, created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &product.Barcode, &product.SaltFormula, &product.Category, &product.Active, &product.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	product.CreatedAt = product.CreatedAt.UTC()
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.ID == "" || product.Name == "" {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, barcode = $3, salt_formula = $4, category = $5, active = $6, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, nullIfEmpty(product.Barcode), nullIfEmpty(product.SaltFormula), nullIfEmpty(product.Category), product.Active)
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

	updated := product
	return &updated, nil
}

func (s *Store) CreateBatch(ctx context.Context, batch domain.StockBatch) (*domain.StockBatch, error) {
	batch.BatchNumber = strings.TrimSpace(batch.BatchNumber)
	if batch.ProductID == "" || batch.BatchNumber == "" || batch.Quantity < 1 {
		return nil, store.ErrInvalidInput
	}
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.PurchaseDate.IsZero() {
		batch.PurchaseDate = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_batches (
			id, product_id, batch_number, quantity, cost_price, selling_price,
			expiry_date, purchase_date, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
	`, batch.ID, batch.ProductID, batch.BatchNumber, batch.Quantity, batch.CostPrice, batch.SellingPrice, dateOnly(batch.ExpiryDate), dateOnly(batch.PurchaseDate))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := batch
	return &created, nil
}

func (s *Store) GetAvailableBatches(ctx context.Context, productID string) ([]domain.StockBatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, batch_number, quantity, cost_price, selling_price, expiry_date, purchase_date
		FROM stock_batches
		WHERE product_id = $1 AND quantity > 0
		ORDER BY expiry_date ASC, purchase_date ASC
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBatches(rows, 8)
}

func (s *Store) ListBatches(ctx context.Context, productID string, includeEmpty bool, limit int) ([]domain.StockBatch, error) {
	if limit < 1 {
		limit = 200
	}

	query := `
		SELECT id, product_id, batch_number, quantity, cost_price, selling_price, expiry_date, purchase_date
		FROM stock_batches
		WHERE ($1 = '' OR product_id = $1)
	`
	if !includeEmpty {
		query += ` AND quantity > 0`
	}
	query += `
		ORDER BY expiry_date ASC, purchase_date ASC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBatches(rows, limit)
}

func (s *Store) ListExpiringBatches(ctx context.Context, before time.Time, limit int) ([]domain.StockBatch, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, batch_number, quantity, cost_price, selling_price, expiry_date, purchase_date
		FROM stock_batches
		WHERE quantity > 0 AND expiry_date < $1
		ORDER BY expiry_date ASC
		LIMIT $2
	`, dateOnly(before), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBatches(rows, limit)
}

func (s *Store) GetStockTotals(ctx context.Context, productIDs []string) (map[string]int, error) {
	totals := make(map[string]int, len(productIDs))
	if len(productIDs) == 0 {
		return totals, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, COALESCE(SUM(quantity), 0)::int
		FROM stock_batches
		WHERE product_id = ANY($1)
		GROUP BY product_id
	`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var productID string
		var qty int
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		totals[productID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range productIDs {
		if _, ok := totals[id]; !ok {
			totals[id] = 0
		}
	}
	return totals, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ReceiptNumber == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidCartItem
	}
	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, receipt_number, total, discount, payment_method, cashier_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, sale.ID, sale.ReceiptNumber, sale.Total, sale.Discount, sale.PaymentMethod, sale.CashierID, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	for i := range sale.Items {
		item := &sale.Items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.SaleID = sale.ID

		deductionsJSON, err := json.Marshal(item.Deductions)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, product_name, quantity, unit_price, line_total, deductions)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, item.ID, item.SaleID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.LineTotal, deductionsJSON)
		if err != nil {
			return nil, err
		}

		// A conditional decrement keeps a concurrent sale from driving a
		// batch below zero even under read anomalies.
		for _, deduction := range item.Deductions {
			res, err := tx.ExecContext(ctx, `
				UPDATE stock_batches
				SET quantity = quantity - $1, updated_at = now()
				WHERE id = $2 AND quantity >= $1
			`, deduction.Quantity, deduction.BatchID)
			if err != nil {
				return nil, err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return nil, err
			}
			if affected == 0 {
				return nil, store.ErrInsufficientStock
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, receipt_number, total, discount, payment_method, cashier_id, created_at
		FROM sales
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.ReceiptNumber, &sale.Total, &sale.Discount, &sale.PaymentMethod, &sale.CashierID, &sale.CreatedAt); err != nil {
			return nil, err
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sales {
		items, err := s.loadSaleItems(ctx, sales[i].ID)
		if err != nil {
			return nil, err
		}
		sales[i].Items = items
	}
	return sales, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	return s.findSale(ctx, "id", id)
}

func (s *Store) GetSaleByReceipt(ctx context.Context, receiptNumber string) (*domain.Sale, error) {
	return s.findSale(ctx, "receipt_number", receiptNumber)
}

func (s *Store) findSale(ctx context.Context, column string, value string) (*domain.Sale, error) {
	if column != "id" && column != "receipt_number" {
		return nil, store.ErrInvalidInput
	}

	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT id, receipt_number, total, discount, payment_method, cashier_id, created_at
		FROM sales
		WHERE `+column+` = $1
	`, value).Scan(&sale.ID, &sale.ReceiptNumber, &sale.Total, &sale.Discount, &sale.PaymentMethod, &sale.CashierID, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()

	items, err := s.loadSaleItems(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Items = items

	returns, err := s.loadReturns(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Returns = returns

	return &sale, nil
}

func (s *Store) loadSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, product_name, quantity, unit_price, line_total, deductions
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		var deductionsRaw []byte
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice, &item.LineTotal, &deductionsRaw); err != nil {
			return nil, err
		}
		if len(deductionsRaw) > 0 {
			if err := json.Unmarshal(deductionsRaw, &item.Deductions); err != nil {
				return nil, err
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) loadReturns(ctx context.Context, saleID string) ([]domain.SalesReturn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, receipt_number, reason, returned_by, created_at
		FROM sales_returns
		WHERE sale_id = $1
		ORDER BY created_at ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	returns := make([]domain.SalesReturn, 0, 2)
	for rows.Next() {
		var ret domain.SalesReturn
		if err := rows.Scan(&ret.ID, &ret.SaleID, &ret.ReceiptNumber, &ret.Reason, &ret.ReturnedBy, &ret.CreatedAt); err != nil {
			return nil, err
		}
		ret.CreatedAt = ret.CreatedAt.UTC()
		returns = append(returns, ret)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range returns {
		itemRows, err := s.db.QueryContext(ctx, `
			SELECT id, return_id, sale_item_id, product_id, batch_id, quantity
			FROM sales_return_items
			WHERE return_id = $1
			ORDER BY id ASC
		`, returns[i].ID)
		if err != nil {
			return nil, err
		}
		items := make([]domain.ReturnItem, 0, 4)
		for itemRows.Next() {
			var item domain.ReturnItem
			var batchID sql.NullString
			if err := itemRows.Scan(&item.ID, &item.ReturnID, &item.SaleItemID, &item.ProductID, &batchID, &item.Quantity); err != nil {
				_ = itemRows.Close()
				return nil, err
			}
			if batchID.Valid {
				id := batchID.String
				item.BatchID = &id
			}
			items = append(items, item)
		}
		if err := itemRows.Err(); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		_ = itemRows.Close()
		returns[i].Items = items
	}
	return returns, nil
}

func (s *Store) LatestReceiptNumber(ctx context.Context, prefix string) (string, error) {
	var receipt string
	err := s.db.QueryRowContext(ctx, `
		SELECT receipt_number
		FROM sales
		WHERE receipt_number LIKE $1
		ORDER BY created_at DESC, receipt_number DESC
		LIMIT 1
	`, prefix+"-%").Scan(&receipt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", store.ErrNotFound
		}
		return "", err
	}
	return receipt, nil
}

func (s *Store) GetSalesSummary(ctx context.Context, from time.Time, to time.Time) (domain.SalesSummary, error) {
	summary := domain.SalesSummary{
		From:      from.Format("2006-01-02"),
		To:        to.Format("2006-01-02"),
		ByPayment: make([]domain.SummaryPayment, 0, 4),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint, COALESCE(SUM(total),0), COALESCE(SUM(discount),0)
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&summary.Sales, &summary.GrossTotal, &summary.DiscountTotal)
	if err != nil {
		return summary, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(si.quantity),0)::bigint
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE s.created_at >= $1 AND s.created_at < $2
	`, from, to).Scan(&summary.ItemsSold)
	if err != nil {
		return summary, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payment_method, COUNT(*)::bigint, COALESCE(SUM(total),0)
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY payment_method
		ORDER BY payment_method
	`, from, to)
	if err != nil {
		return summary, err
	}
	defer rows.Close()

	for rows.Next() {
		var row domain.SummaryPayment
		if err := rows.Scan(&row.PaymentMethod, &row.Sales, &row.Total); err != nil {
			return summary, err
		}
		summary.ByPayment = append(summary.ByPayment, row)
	}
	if err := rows.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (s *Store) CreateReturn(ctx context.Context, ret domain.SalesReturn) (*domain.SalesReturn, error) {
	if ret.SaleID == "" || len(ret.Items) == 0 {
		return nil, store.ErrInvalidReturnRequest
	}
	if ret.ID == "" {
		ret.ID = uuid.NewString()
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var saleExists bool
	err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sales WHERE id = $1)`, ret.SaleID).Scan(&saleExists)
	if err != nil {
		return nil, err
	}
	if !saleExists {
		return nil, store.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales_returns (id, sale_id, receipt_number, reason, returned_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, ret.ID, ret.SaleID, ret.ReceiptNumber, ret.Reason, ret.ReturnedBy, ret.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidReturnRequest
		}
		return nil, err
	}

	for i := range ret.Items {
		item := &ret.Items[i]
		if item.Quantity < 1 {
			return nil, store.ErrInvalidReturnRequest
		}
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.ReturnID = ret.ID

		var batchID any
		if item.BatchID != nil {
			batchID = *item.BatchID
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sales_return_items (id, return_id, sale_item_id, product_id, batch_id, quantity)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, item.ID, item.ReturnID, item.SaleItemID, item.ProductID, batchID, item.Quantity)
		if err != nil {
			return nil, err
		}

		if item.BatchID == nil {
			continue
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE stock_batches
			SET quantity = quantity + $1, updated_at = now()
			WHERE id = $2
		`, item.Quantity, *item.BatchID)
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
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := ret
	return &created, nil
}

func (s *Store) GetReturnedQuantities(ctx context.Context, saleID string) (map[string]int, error) {
	result := make(map[string]int)
	rows, err := s.db.QueryContext(ctx, `
		SELECT sri.sale_item_id, COALESCE(SUM(sri.quantity), 0)::int
		FROM sales_returns sr
		JOIN sales_return_items sri ON sri.return_id = sr.id
		WHERE sr.sale_id = $1
		GROUP BY sri.sale_item_id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var saleItemID string
		var qty int
		if err := rows.Scan(&saleItemID, &qty); err != nil {
			return nil, err
		}
		result[saleItemID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1
			AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
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

func scanBatches(rows *sql.Rows, capacity int) ([]domain.StockBatch, error) {
	batches := make([]domain.StockBatch, 0, capacity)
	for rows.Next() {
		var batch domain.StockBatch
		if err := rows.Scan(&batch.ID, &batch.ProductID, &batch.BatchNumber, &batch.Quantity, &batch.CostPrice, &batch.SellingPrice, &batch.ExpiryDate, &batch.PurchaseDate); err != nil {
			return nil, err
		}
		batch.ExpiryDate = dateOnly(batch.ExpiryDate)
		batch.PurchaseDate = dateOnly(batch.PurchaseDate)
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
