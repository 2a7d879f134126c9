// internal/domain/cart/dto.go
package cart

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// AddItemRequest represents add to cart request. A zero quantity is
// normalized to 1 by the handler before it reaches the engine.
type AddItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"min=0,max=99"`
}

// UpdateItemRequest represents an absolute quantity update. Quantity is a
// pointer so 0 (park the item) survives binding.
type UpdateItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  *int `json:"quantity" binding:"required,min=0,max=99"`
}

// RemoveItemRequest represents remove from cart request
type RemoveItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
}

// ProductMini is the lightweight product payload embedded in cart items
type ProductMini struct {
	ID           uint            `json:"id"`
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	Price        decimal.Decimal `json:"price"`
	Stock        int             `json:"stock"`
	PrimaryImage string          `json:"primary_image,omitempty"`
	SellerName   string          `json:"seller_name"`
	IsAvailable  bool            `json:"is_available"`
	IsLowStock   bool            `json:"is_low_stock"`
}

// ItemView is a line item joined against live product data
type ItemView struct {
	ID                 uint            `json:"id"`
	Product            ProductMini     `json:"product"`
	Quantity           int             `json:"quantity"`
	PriceAtAddition    decimal.Decimal `json:"price_at_addition"`
	CurrentPrice       decimal.Decimal `json:"current_price"`
	TotalPrice         decimal.Decimal `json:"total_price"`
	PriceChanged       bool            `json:"price_changed"`
	PriceDifference    decimal.Decimal `json:"price_difference"`
	IsAvailable        bool            `json:"is_available"`
	HasSufficientStock bool            `json:"has_sufficient_stock"`
	StockStatus        string          `json:"stock_status"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// CartView is the full cart with derived totals and consistency flags
type CartView struct {
	ID                  uint            `json:"id"`
	User                string          `json:"user"`
	Items               []ItemView      `json:"items"`
	TotalItems          int             `json:"total_items"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	HasUnavailableItems bool            `json:"has_unavailable_items"`
	HasStockIssues      bool            `json:"has_stock_issues"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	Warnings            []string        `json:"warnings,omitempty"`
}

// SummaryView is the lightweight aggregate used for badge polling
type SummaryView struct {
	ID         uint            `json:"id"`
	TotalItems int             `json:"total_items"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

// ClearResult reports how many line items a clear removed
type ClearResult struct {
	ItemsRemoved int `json:"items_removed"`
}

// ItemIssues lists the problems found with one line item during validation
type ItemIssues struct {
	ProductID   uint     `json:"product_id"`
	ProductName string   `json:"product_name"`
	Issues      []string `json:"issues"`
}

// ValidationResult is the pre-checkout gate verdict. Price drift shows up
// in Issues but does not flip Valid; only availability and stock problems do.
type ValidationResult struct {
	Valid  bool         `json:"valid"`
	Issues []ItemIssues `json:"issues,omitempty"`
}

// AuditLogView is one audit entry enriched with user and product names
type AuditLogView struct {
	ID          uint            `json:"id"`
	User        string          `json:"user"`
	Action      AuditAction     `json:"action"`
	ProductID   *uint           `json:"product_id,omitempty"`
	ProductName string          `json:"product_name,omitempty"`
	Changes     json.RawMessage `json:"changes"`
	Timestamp   time.Time       `json:"timestamp"`
	IPAddress   string          `json:"ip_address,omitempty"`
}
