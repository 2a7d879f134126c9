// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"github.com/your-org/marketplace-backend/internal/domain/cart"
	"github.com/your-org/marketplace-backend/internal/domain/product"
	"github.com/your-org/marketplace-backend/internal/domain/user"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Migration handles database migrations
type Migration struct {
	db *gorm.DB
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB) *Migration {
	return &Migration{
		db: db,
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	log.Println("🔄 Running database auto-migrations...")

	// Models in dependency order
	models := []interface{}{
		// User domain - base tables
		&user.User{},

		// Product domain
		&product.Category{},
		&product.Product{},
		&product.ProductImage{},
		&product.ProductReview{},

		// Cart domain
		&cart.Cart{},
		&cart.CartItem{},
		&cart.AuditLog{},
	}

	for _, model := range models {
		log.Printf("Migrating model: %T", model)
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	log.Println("✅ Database auto-migrations completed successfully")
	return nil
}

// CreateIndexes creates additional indexes for better performance
func (m *Migration) CreateIndexes() error {
	log.Println("🔄 Creating additional database indexes...")

	indexes := []string{
		// User indexes
		"CREATE INDEX IF NOT EXISTS idx_users_email_active ON users(email, is_active)",

		// Product indexes
		"CREATE INDEX IF NOT EXISTS idx_products_seller_active ON products(seller_id, is_active)",
		"CREATE INDEX IF NOT EXISTS idx_products_category_active ON products(category_id, is_active)",
		"CREATE INDEX IF NOT EXISTS idx_products_created_at ON products(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_products_slug ON products(slug)",

		// Cart indexes
		"CREATE INDEX IF NOT EXISTS idx_carts_user ON carts(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_cart_items_product ON cart_items(product_id)",
		"CREATE INDEX IF NOT EXISTS idx_cart_audit_logs_user_ts ON cart_audit_logs(user_id, created_at DESC)",

		// Review indexes
		"CREATE INDEX IF NOT EXISTS idx_product_reviews_product ON product_reviews(product_id, created_at DESC)",
	}

	for _, index := range indexes {
		if err := m.db.Exec(index).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	log.Println("✅ Database indexes created successfully")
	return nil
}

// SeedInitialData seeds development data: an admin, a seller with a few
// listings and a buyer account.
func (m *Migration) SeedInitialData() error {
	log.Println("🔄 Seeding initial data...")

	var userCount int64
	if err := m.db.Model(&user.User{}).Count(&userCount).Error; err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if userCount > 0 {
		log.Println("Data already seeded, skipping")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("ChangeMe123"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash seed password: %w", err)
	}

	users := []user.User{
		{Email: "admin@example.com", Username: "admin", Password: string(hash), FirstName: "Admin", IsActive: true, IsAdmin: true},
		{Email: "seller@example.com", Username: "seller", Password: string(hash), FirstName: "Sample", LastName: "Seller", IsActive: true},
		{Email: "buyer@example.com", Username: "buyer", Password: string(hash), FirstName: "Sample", LastName: "Buyer", IsActive: true},
	}
	if err := m.db.Create(&users).Error; err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	category := product.Category{Name: "General", Slug: "general", IsActive: true}
	if err := m.db.Create(&category).Error; err != nil {
		return fmt.Errorf("failed to seed category: %w", err)
	}

	sellerID := users[1].ID
	products := []product.Product{
		{
			SellerID:          sellerID,
			CategoryID:        &category.ID,
			Name:              "Widget",
			Slug:              "widget",
			Description:       "A sample widget",
			Price:             decimal.NewFromFloat(10.00),
			Stock:             25,
			LowStockThreshold: 5,
			IsActive:          true,
		},
		{
			SellerID:          sellerID,
			CategoryID:        &category.ID,
			Name:              "Gadget",
			Slug:              "gadget",
			Description:       "A sample gadget",
			Price:             decimal.NewFromFloat(24.50),
			Stock:             8,
			LowStockThreshold: 5,
			IsActive:          true,
		},
	}
	if err := m.db.Create(&products).Error; err != nil {
		return fmt.Errorf("failed to seed products: %w", err)
	}

	log.Println("✅ Initial data seeded successfully")
	return nil
}

// GetTableInfo logs row counts for the main tables (development helper)
func (m *Migration) GetTableInfo() {
	tables := []string{"users", "categories", "products", "carts", "cart_items", "cart_audit_logs", "product_reviews"}

	for _, table := range tables {
		var count int64
		if err := m.db.Table(table).Count(&count).Error; err != nil {
			log.Printf("Table %s: error counting rows: %v", table, err)
			continue
		}
		log.Printf("Table %s: %d rows", table, count)
	}
}
