package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Barcode     string    `json:"barcode,omitempty"`
	SaltFormula string    `json:"salt_formula,omitempty"`
	Category    string    `json:"category,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	Name        string `json:"name"`
	Barcode     string `json:"barcode,omitempty"`
	SaltFormula string `json:"salt_formula,omitempty"`
	Category    string `json:"category,omitempty"`
}

type ProductUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Barcode     *string `json:"barcode,omitempty"`
	SaltFormula *string `json:"salt_formula,omitempty"`
	Category    *string `json:"category,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

type StockBatch struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"product_id"`
	BatchNumber  string          `json:"batch_number"`
	Quantity     int             `json:"quantity"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	ExpiryDate   time.Time       `json:"expiry_date"`
	PurchaseDate time.Time       `json:"purchase_date"`
}

type BatchReceiveRequest struct {
	ProductID    string          `json:"product_id"`
	BatchNumber  string          `json:"batch_number"`
	Quantity     int             `json:"quantity"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	ExpiryDate   string          `json:"expiry_date"`
	PurchaseDate string          `json:"purchase_date,omitempty"`
}

// BatchDeduction records how much of a sale line was taken from one batch.
// The slice of deductions stored with a sale item is the ledger a later
// return walks to put stock back where it came from.
type BatchDeduction struct {
	BatchID     string    `json:"batch_id"`
	BatchNumber string    `json:"batch_number"`
	Quantity    int       `json:"quantity"`
	ExpiryDate  time.Time `json:"expiry_date"`
}

type CartItem struct {
	ProductID      string          `json:"product_id"`
	ProductName    string          `json:"product_name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	LineTotal      decimal.Decimal `json:"line_total"`
	AvailableStock int             `json:"available_stock,omitempty"`
}

type Sale struct {
	ID            string          `json:"id"`
	ReceiptNumber string          `json:"receipt_number"`
	Total         decimal.Decimal `json:"total"`
	Discount      decimal.Decimal `json:"discount"`
	PaymentMethod string          `json:"payment_method"`
	CashierID     string          `json:"cashier_id"`
	CreatedAt     time.Time       `json:"created_at"`
	Items         []SaleItem      `json:"items"`
	Returns       []SalesReturn   `json:"returns,omitempty"`
}

type SaleItem struct {
	ID          string           `json:"id"`
	SaleID      string           `json:"sale_id"`
	ProductID   string           `json:"product_id"`
	ProductName string           `json:"product_name"`
	Quantity    int              `json:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	LineTotal   decimal.Decimal  `json:"line_total"`
	Deductions  []BatchDeduction `json:"deductions"`
}

type SaleRequest struct {
	PaymentMethod string          `json:"payment_method"`
	Discount      decimal.Decimal `json:"discount"`
	CartItems     []CartItem      `json:"cart_items"`
}

type SalesReturn struct {
	ID            string       `json:"id"`
	SaleID        string       `json:"sale_id"`
	ReceiptNumber string       `json:"receipt_number"`
	Reason        string       `json:"reason"`
	ReturnedBy    string       `json:"returned_by"`
	CreatedAt     time.Time    `json:"created_at"`
	Items         []ReturnItem `json:"items"`
}

// ReturnItem restores quantity for one sale item, attributed to the batch
// it originally came from. BatchID is nil when the sale predates batch
// ledgers and the quantity was restored without attribution.
type ReturnItem struct {
	ID         string  `json:"id"`
	ReturnID   string  `json:"return_id"`
	SaleItemID string  `json:"sale_item_id"`
	ProductID  string  `json:"product_id"`
	BatchID    *string `json:"batch_id,omitempty"`
	Quantity   int     `json:"quantity"`
}

type ReturnRequestItem struct {
	SaleItemID string `json:"sale_item_id"`
	Quantity   int    `json:"quantity"`
}

type ReturnRequest struct {
	SaleID string              `json:"sale_id"`
	Reason string              `json:"reason"`
	Items  []ReturnRequestItem `json:"items"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type SummaryPayment struct {
	PaymentMethod string          `json:"payment_method"`
	Sales         int64           `json:"sales"`
	Total         decimal.Decimal `json:"total"`
}

type SalesSummary struct {
	From          string           `json:"from"`
	To            string           `json:"to"`
	Sales         int64            `json:"sales"`
	GrossTotal    decimal.Decimal  `json:"gross_total"`
	DiscountTotal decimal.Decimal  `json:"discount_total"`
	ItemsSold     int64            `json:"items_sold"`
	ByPayment     []SummaryPayment `json:"by_payment"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	PaymentMethodCash     = "cash"
	PaymentMethodCard     = "card"
	PaymentMethodTransfer = "transfer"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

// ValidRole reports whether role is one the application grants.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleCashier
}
