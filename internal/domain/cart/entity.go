// internal/domain/cart/entity.go
package cart

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/your-org/marketplace-backend/internal/domain/product"
)

// Stock status values for a cart line item
const (
	StockStatusInStock           = "in_stock"
	StockStatusLowStock          = "low_stock"
	StockStatusInsufficientStock = "insufficient_stock"
	StockStatusUnavailable       = "unavailable"
)

// Cart represents a user's shopping cart, 1:1 with the user and created
// lazily on first access
type Cart struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Items []CartItem `gorm:"foreignKey:CartID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items,omitempty"`
}

// CartItem represents a (cart, product) line item. Quantity 0 is a valid
// "parked" state: the row stays until an explicit remove or clear.
// PriceAtAddition is captured on creation and never refreshed; rows are
// hard-deleted so the (cart_id, product_id) unique index always holds.
type CartItem struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	CartID          uint            `gorm:"not null;uniqueIndex:idx_cart_items_cart_product" json:"-"`
	ProductID       uint            `gorm:"not null;index;uniqueIndex:idx_cart_items_cart_product" json:"product_id"`
	Quantity        int             `gorm:"not null;default:1" json:"quantity"`
	PriceAtAddition decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price_at_addition"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	// Relationships
	Product product.Product `gorm:"foreignKey:ProductID" json:"-"`
}

// AuditAction identifies the kind of cart mutation being logged
type AuditAction string

// Audit actions
const (
	ActionAdd    AuditAction = "ADD"
	ActionUpdate AuditAction = "UPDATE"
	ActionRemove AuditAction = "REMOVE"
	ActionClear  AuditAction = "CLEAR"
)

// AuditLog is an append-only record of a cart mutation, written in the
// same transaction as the mutation itself
type AuditLog struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	CartID    uint            `gorm:"not null;index:idx_cart_audit_logs_cart_ts" json:"-"`
	UserID    *uint           `gorm:"index" json:"user_id"`
	Action    AuditAction     `gorm:"size:10;not null" json:"action"`
	ProductID *uint           `gorm:"index" json:"product_id,omitempty"`
	Changes   json.RawMessage `gorm:"type:jsonb" json:"changes"`
	IPAddress string          `gorm:"size:45" json:"ip_address"`
	CreatedAt time.Time       `gorm:"index:idx_cart_audit_logs_cart_ts,sort:desc" json:"timestamp"`

	// Relationships
	Product *product.Product `gorm:"foreignKey:ProductID" json:"-"`
}

// TableName overrides
func (Cart) TableName() string     { return "carts" }
func (CartItem) TableName() string { return "cart_items" }
func (AuditLog) TableName() string { return "cart_audit_logs" }

// Derived line-item state. All of these require Item.Product to be loaded;
// they diff the stored snapshot against the live product row instead of
// ever mutating the snapshot.

// TotalPrice is quantity times the snapshot price, not the live price.
func (i *CartItem) TotalPrice() decimal.Decimal {
	return i.PriceAtAddition.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CurrentPrice is the live catalog price.
func (i *CartItem) CurrentPrice() decimal.Decimal {
	return i.Product.Price
}

// PriceChanged reports whether the live price has drifted from the snapshot.
func (i *CartItem) PriceChanged() bool {
	return !i.PriceAtAddition.Equal(i.Product.Price)
}

// PriceDifference is live minus snapshot: positive when the price went up.
func (i *CartItem) PriceDifference() decimal.Decimal {
	return i.Product.Price.Sub(i.PriceAtAddition)
}

// IsAvailable reports whether the underlying product can still be purchased.
func (i *CartItem) IsAvailable() bool {
	return !i.Product.DeletedAt.Valid && i.Product.IsAvailable()
}

// HasSufficientStock reports whether the live stock covers this quantity.
// The check is optimistic: stock carted by other users is not reserved.
func (i *CartItem) HasSufficientStock() bool {
	return i.Quantity <= i.Product.Stock
}

// StockStatus classifies the item's fulfillability.
func (i *CartItem) StockStatus() string {
	if !i.IsAvailable() {
		return StockStatusUnavailable
	}
	if !i.HasSufficientStock() {
		return StockStatusInsufficientStock
	}
	if i.Product.IsLowStock() {
		return StockStatusLowStock
	}
	return StockStatusInStock
}
