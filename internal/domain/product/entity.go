// internal/domain/product/entity.go
package product

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product represents a seller listing in the catalog
type Product struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	SellerID          uint            `gorm:"not null;index" json:"seller_id"`
	CategoryID        *uint           `gorm:"index" json:"category_id"`
	Name              string          `gorm:"not null;size:255" json:"name"`
	Slug              string          `gorm:"uniqueIndex;not null;size:255" json:"slug"`
	Description       string          `gorm:"type:text" json:"description"`
	Price             decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Stock             int             `gorm:"not null;default:0" json:"stock"`
	LowStockThreshold int             `gorm:"default:5" json:"low_stock_threshold"`
	IsActive          bool            `gorm:"default:true" json:"is_active"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`

	// Relationships
	Category *Category       `gorm:"foreignKey:CategoryID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"category,omitempty"`
	Images   []ProductImage  `gorm:"foreignKey:ProductID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"images,omitempty"`
	Reviews  []ProductReview `gorm:"foreignKey:ProductID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"reviews,omitempty"`
}

// Category represents product categories
type Category struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"not null;size:255" json:"name"`
	Slug        string         `gorm:"uniqueIndex;not null;size:255" json:"slug"`
	Description string         `gorm:"size:500" json:"description"`
	IsActive    bool           `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Products []Product `gorm:"foreignKey:CategoryID" json:"products,omitempty"`
}

// ProductImage represents product images
type ProductImage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProductID uint      `gorm:"not null;index" json:"product_id"`
	URL       string    `gorm:"not null;size:500" json:"url"`
	AltText   string    `gorm:"size:255" json:"alt_text"`
	SortOrder int       `gorm:"default:0" json:"sort_order"`
	IsPrimary bool      `gorm:"default:false" json:"is_primary"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductReview represents a customer review on a product
type ProductReview struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	ProductID  uint           `gorm:"not null;index;uniqueIndex:idx_product_reviews_product_user" json:"product_id"`
	UserID     uint           `gorm:"not null;index;uniqueIndex:idx_product_reviews_product_user" json:"user_id"`
	Rating     int            `gorm:"not null;check:rating >= 1 AND rating <= 5" json:"rating"`
	Title      string         `gorm:"size:255" json:"title"`
	Content    string         `gorm:"type:text" json:"content"`
	IsVerified bool           `gorm:"default:false" json:"is_verified"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides
func (Product) TableName() string       { return "products" }
func (Category) TableName() string      { return "categories" }
func (ProductImage) TableName() string  { return "product_images" }
func (ProductReview) TableName() string { return "product_reviews" }

// Business methods for Product

// IsAvailable reports whether the product can currently be purchased.
func (p *Product) IsAvailable() bool {
	return p.IsActive && p.Stock > 0
}

// IsLowStock reports whether stock has fallen to or below the seller's threshold.
func (p *Product) IsLowStock() bool {
	return p.Stock > 0 && p.Stock <= p.LowStockThreshold
}

// PrimaryImageURL returns the primary image URL, or the first image as a fallback.
func (p *Product) PrimaryImageURL() string {
	for _, img := range p.Images {
		if img.IsPrimary {
			return img.URL
		}
	}
	if len(p.Images) > 0 {
		return p.Images[0].URL
	}
	return ""
}
