package store

import (
	"context"
	"errors"
	"time"

	"apotekpos/backend/internal/domain"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrInvalidCartItem      = errors.New("invalid cart item")
	ErrInvalidReturnRequest = errors.New("invalid return request")
	ErrInvalidInput         = errors.New("invalid input")
)

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	CreateBatch(ctx context.Context, batch domain.StockBatch) (*domain.StockBatch, error)
	// GetAvailableBatches returns batches with quantity above zero for the
	// product, ordered by expiry date ascending then purchase date.
	GetAvailableBatches(ctx context.Context, productID string) ([]domain.StockBatch, error)
	ListBatches(ctx context.Context, productID string, includeEmpty bool, limit int) ([]domain.StockBatch, error)
	ListExpiringBatches(ctx context.Context, before time.Time, limit int) ([]domain.StockBatch, error)
	GetStockTotals(ctx context.Context, productIDs []string) (map[string]int, error)

	// CreateSale persists the sale with its items and applies every batch
	// deduction recorded on the items, all inside one transaction. It
	// fails with ErrInsufficientStock if any batch no longer covers its
	// deduction.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	ListSales(ctx context.Context, limit int) ([]domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	GetSaleByReceipt(ctx context.Context, receiptNumber string) (*domain.Sale, error)
	LatestReceiptNumber(ctx context.Context, prefix string) (string, error)
	GetSalesSummary(ctx context.Context, from time.Time, to time.Time) (domain.SalesSummary, error)

	// CreateReturn persists the return and restores the quantity of each
	// return item to its batch, unattributed items to no batch, inside
	// one transaction.
	CreateReturn(ctx context.Context, ret domain.SalesReturn) (*domain.SalesReturn, error)
	GetReturnedQuantities(ctx context.Context, saleID string) (map[string]int, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
