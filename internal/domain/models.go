package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

const (
	PaymentCash        = "cash"
	PaymentInstallment = "installment"
)

const (
	PriceModeSale      = "sale"
	PriceModeWholesale = "wholesale"
)

const (
	InvoiceStatusCompleted         = "completed"
	InvoiceStatusPartiallyReturned = "partially_returned"
	InvoiceStatusReturned          = "returned"
)

const (
	PartitionLive     = "live"
	PartitionArchived = "archived"
)

const (
	RefundPolicyPricePaid    = "price_paid"
	RefundPolicyCurrentPrice = "current_price"
)

type Product struct {
	ID             string          `json:"id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	CostPrice      decimal.Decimal `json:"cost_price"`
	WholesalePrice decimal.Decimal `json:"wholesale_price"`
	SalePrice      decimal.Decimal `json:"sale_price"`
	StockQuantity  int             `json:"stock_quantity"`
	MinStock       int             `json:"min_stock,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (p Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{
		ID:             p.ID,
		Code:           p.Code,
		Name:           p.Name,
		CostPrice:      p.CostPrice,
		WholesalePrice: p.WholesalePrice,
		SalePrice:      p.SalePrice,
	}
}

// PriceFor returns the catalog price used for the given price mode.
func (p Product) PriceFor(mode string) decimal.Decimal {
	if mode == PriceModeWholesale {
		return p.WholesalePrice
	}
	return p.SalePrice
}

type ProductSnapshot struct {
	ID             string          `json:"id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	CostPrice      decimal.Decimal `json:"cost_price"`
	WholesalePrice decimal.Decimal `json:"wholesale_price"`
	SalePrice      decimal.Decimal `json:"sale_price"`
}

type ProductCreateRequest struct {
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	CostPrice      decimal.Decimal `json:"cost_price"`
	WholesalePrice decimal.Decimal `json:"wholesale_price"`
	SalePrice      decimal.Decimal `json:"sale_price"`
	StockQuantity  int             `json:"stock_quantity"`
	MinStock       int             `json:"min_stock"`
}

type ProductUpdateRequest struct {
	Code           *string          `json:"code,omitempty"`
	Name           *string          `json:"name,omitempty"`
	CostPrice      *decimal.Decimal `json:"cost_price,omitempty"`
	WholesalePrice *decimal.Decimal `json:"wholesale_price,omitempty"`
	SalePrice      *decimal.Decimal `json:"sale_price,omitempty"`
	MinStock       *int             `json:"min_stock,omitempty"`
}

type InvoiceItem struct {
	Product          ProductSnapshot `json:"product"`
	Quantity         int             `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	LineTotal        decimal.Decimal `json:"line_total"`
	ReturnedQuantity int             `json:"returned_quantity"`
}

func (i InvoiceItem) RemainingQuantity() int {
	remaining := i.Quantity - i.ReturnedQuantity
	if remaining < 0 {
		return 0
	}
	return remaining
}

type Installment struct {
	Number   int             `json:"installment_number"`
	Amount   decimal.Decimal `json:"amount"`
	DueDate  string          `json:"due_date"`
	Paid     bool            `json:"paid"`
	PaidDate *time.Time      `json:"paid_date,omitempty"`
}

type Invoice struct {
	ID              string          `json:"id"`
	InvoiceNumber   string          `json:"invoice_number"`
	Epoch           int64           `json:"epoch"`
	CreatedAt       time.Time       `json:"created_at"`
	CashierID       string          `json:"cashier_id"`
	CashierName     string          `json:"cashier_name"`
	CustomerName    string          `json:"customer_name"`
	CustomerPhone   string          `json:"customer_phone,omitempty"`
	CustomerEmail   string          `json:"customer_email,omitempty"`
	Items           []InvoiceItem   `json:"items"`
	PriceMode       string          `json:"price_mode"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	Total           decimal.Decimal `json:"total"`
	ManualTotal     bool            `json:"manual_total"`
	Status          string          `json:"status"`
	PaymentMethod   string          `json:"payment_method"`
	Installments    []Installment   `json:"installments,omitempty"`
	RefundedAmount  decimal.Decimal `json:"refunded_amount"`
	ReturnIDs       []string        `json:"return_ids,omitempty"`
}

// Reference pairs the epoch-scoped number with its epoch.
func (inv Invoice) Reference() string {
	return fmt.Sprintf("%d-%s", inv.Epoch, inv.InvoiceNumber)
}

func (inv Invoice) FullyReturned() bool {
	for _, item := range inv.Items {
		if item.RemainingQuantity() > 0 {
			return false
		}
	}
	return len(inv.Items) > 0
}

type InvoiceLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CustomerInput struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type InstallmentInput struct {
	Amount  decimal.Decimal `json:"amount"`
	DueDate string          `json:"due_date"`
}

type InvoiceCreateRequest struct {
	Items           []InvoiceLineRequest `json:"items"`
	Customer        CustomerInput        `json:"customer"`
	DiscountPercent decimal.Decimal      `json:"discount_percent"`
	PaymentMethod   string               `json:"payment_method"`
	PriceMode       string               `json:"price_mode,omitempty"`
	Installments    []InstallmentInput   `json:"installments,omitempty"`
	ManualTotal     *decimal.Decimal     `json:"manual_total,omitempty"`
}

type Customer struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone"`
	Email          string    `json:"email,omitempty"`
	InvoiceIDs     []string  `json:"invoice_ids"`
	CreatedAt      time.Time `json:"created_at"`
	LastPurchaseAt time.Time `json:"last_purchase_at"`
}

type ReturnLine struct {
	Line       int             `json:"line"`
	Product    ProductSnapshot `json:"product"`
	Quantity   int             `json:"quantity"`
	UnitRefund decimal.Decimal `json:"unit_refund"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason,omitempty"`
}

type ReturnRecord struct {
	ID              string          `json:"id"`
	InvoiceID       string          `json:"invoice_id"`
	InvoiceNumber   string          `json:"invoice_number"`
	InvoiceEpoch    int64           `json:"invoice_epoch"`
	CreatedAt       time.Time       `json:"created_at"`
	ProcessedBy     string          `json:"processed_by"`
	ProcessedByName string          `json:"processed_by_name"`
	Items           []ReturnLine    `json:"items"`
	RefundAmount    decimal.Decimal `json:"refund_amount"`
	RefundPolicy    string          `json:"refund_policy"`
	Reason          string          `json:"reason,omitempty"`
	SettlesInvoice  bool            `json:"settles_invoice"`
}

type ReturnLineRequest struct {
	Line     int    `json:"line"`
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason,omitempty"`
}

type ReturnRequest struct {
	InvoiceID  string              `json:"invoice_id"`
	Locator    *InvoiceLocator     `json:"locator,omitempty"`
	Lines      []ReturnLineRequest `json:"lines"`
	Reason     string              `json:"reason,omitempty"`
	ManagerPIN string              `json:"manager_pin,omitempty"`
}

type InvoiceLocator struct {
	Partition   string `json:"partition"`
	ArchiveDate string `json:"archive_date,omitempty"`
	Index       int    `json:"index"`
}

type InvoiceMatch struct {
	Invoice Invoice        `json:"invoice"`
	Locator InvoiceLocator `json:"locator"`
}

type CashierBreakdown struct {
	CashierKey   string          `json:"cashier_key"`
	CashierID    string          `json:"cashier_id"`
	CashierName  string          `json:"cashier_name"`
	InvoiceIDs   []string        `json:"invoice_ids"`
	ReturnIDs    []string        `json:"return_ids"`
	InvoiceCount int             `json:"invoice_count"`
	TotalSales   decimal.Decimal `json:"total_sales"`
	TotalRefunds decimal.Decimal `json:"total_refunds"`
}

type ArchivedDay struct {
	ID           string             `json:"id"`
	Date         string             `json:"date"`
	Epoch        int64              `json:"epoch"`
	ClosedAt     time.Time          `json:"closed_at"`
	ClosedBy     string             `json:"closed_by"`
	PerCashier   []CashierBreakdown `json:"per_cashier_breakdown"`
	Invoices     []Invoice          `json:"invoices"`
	Returns      []ReturnRecord     `json:"returns"`
	TotalSales   decimal.Decimal    `json:"total_sales"`
	TotalRefunds decimal.Decimal    `json:"total_refunds"`
	Cleared      bool               `json:"cleared"`
}

type InvoiceCounter struct {
	Epoch int64 `json:"epoch"`
	Value int64 `json:"value"`
}

type CashierSummary struct {
	CashierKey   string          `json:"cashier_key"`
	CashierName  string          `json:"cashier_name"`
	Invoices     int             `json:"invoices"`
	Returns      int             `json:"returns"`
	TotalSales   decimal.Decimal `json:"total_sales"`
	TotalRefunds decimal.Decimal `json:"total_refunds"`
}

type DailyReport struct {
	Date         string           `json:"date"`
	Invoices     []Invoice        `json:"invoices"`
	Returns      []ReturnRecord   `json:"returns"`
	InvoiceCount int              `json:"invoice_count"`
	ReturnCount  int              `json:"return_count"`
	TotalSales   decimal.Decimal  `json:"total_sales"`
	TotalRefunds decimal.Decimal  `json:"total_refunds"`
	NetSales     decimal.Decimal  `json:"net_sales"`
	ByCashier    []CashierSummary `json:"by_cashier"`
}

type DaySummary struct {
	Date         string          `json:"date"`
	InvoiceCount int             `json:"invoice_count"`
	ReturnCount  int             `json:"return_count"`
	TotalSales   decimal.Decimal `json:"total_sales"`
	TotalRefunds decimal.Decimal `json:"total_refunds"`
}

type MonthlyReport struct {
	Year           int             `json:"year"`
	Month          int             `json:"month"`
	PerDay         []DaySummary    `json:"per_day"`
	TotalSales     decimal.Decimal `json:"total_sales"`
	TotalRefunds   decimal.Decimal `json:"total_refunds"`
	NetSales       decimal.Decimal `json:"net_sales"`
	InvoiceCount   int             `json:"invoice_count"`
	AverageInvoice decimal.Decimal `json:"average_invoice"`
}

type UpcomingInstallment struct {
	InvoiceID         string          `json:"invoice_id"`
	InvoiceNumber     string          `json:"invoice_number"`
	Epoch             int64           `json:"epoch"`
	CustomerName      string          `json:"customer_name"`
	CustomerPhone     string          `json:"customer_phone,omitempty"`
	InstallmentNumber int             `json:"installment_number"`
	Amount            decimal.Decimal `json:"amount"`
	DueDate           string          `json:"due_date"`
	DaysRemaining     int             `json:"days_remaining"`
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

// Actor is the authenticated cashier or admin performing an operation.
type Actor struct {
	Username    string
	DisplayName string
	Role        string
}

type CashierCreateRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Password    string `json:"password"`
}

type CashierUser struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	Role        string    `json:"role"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username    string
	DisplayName string
	Password    string
	Role        string
	Active      bool
	CreatedAt   time.Time
}
