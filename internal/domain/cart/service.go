// internal/domain/cart/service.go
package cart

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/your-org/marketplace-backend/internal/config"
	"github.com/your-org/marketplace-backend/internal/domain/product"
	"github.com/your-org/marketplace-backend/internal/domain/user"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service handles cart business logic. It holds no in-process cart state:
// every operation re-reads under the transaction so concurrent requests
// only ever coordinate through the database.
type Service struct {
	db     *gorm.DB
	config *config.Config
}

// NewService creates a new cart service
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:     db,
		config: cfg,
	}
}

// GetCart retrieves the user's cart with all line items joined against live
// product data. The cart is created lazily, so this never fails for an
// authenticated user.
func (s *Service) GetCart(userID uint) (*CartView, error) {
	userCart, err := s.getOrCreateCart(s.db, userID)
	if err != nil {
		return nil, err
	}

	items, err := s.loadItems(userCart.ID)
	if err != nil {
		return nil, err
	}

	sellerNames, err := s.sellerNames(items)
	if err != nil {
		return nil, err
	}

	view := &CartView{
		ID:        userCart.ID,
		User:      s.username(userID),
		Items:     make([]ItemView, 0, len(items)),
		CreatedAt: userCart.CreatedAt,
		UpdatedAt: userCart.UpdatedAt,
	}

	for i := range items {
		item := &items[i]
		view.Items = append(view.Items, buildItemView(item, sellerNames[item.Product.SellerID]))

		view.TotalItems += item.Quantity
		view.Subtotal = view.Subtotal.Add(item.TotalPrice())
		if !item.IsAvailable() {
			view.HasUnavailableItems = true
		}
		if !item.HasSufficientStock() {
			view.HasStockIssues = true
		}
	}

	if view.HasUnavailableItems {
		view.Warnings = append(view.Warnings, "Some items in your cart are no longer available")
	}
	if view.HasStockIssues {
		view.Warnings = append(view.Warnings, "Some items have insufficient stock")
	}

	return view, nil
}

// GetSummary returns the cheap aggregate used for cart badge polling. It
// never loads product rows.
func (s *Service) GetSummary(userID uint) (*SummaryView, error) {
	userCart, err := s.getOrCreateCart(s.db, userID)
	if err != nil {
		return nil, err
	}

	summary := SummaryView{ID: userCart.ID}
	err = s.db.Model(&CartItem{}).
		Select("COALESCE(SUM(quantity), 0) AS total_items, COALESCE(SUM(price_at_addition * quantity), 0) AS subtotal").
		Where("cart_id = ?", userCart.ID).
		Scan(&summary).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate cart summary: %w", err)
	}

	return &summary, nil
}

// AddItem adds a product to the cart, or increments the existing line item.
// The product row is locked for the whole check-then-write sequence so
// concurrent adds for the same (cart, product) pair cannot lose updates.
// The price snapshot is captured only when the line item is created.
// Returns the resulting item view and whether a new line item was created.
func (s *Service) AddItem(userID uint, req *AddItemRequest, ip string) (*ItemView, bool, error) {
	maxQty := s.config.Cart.MaxQuantityPerItem
	if req.Quantity < 1 {
		return nil, false, &ValidationError{Field: "quantity", Message: "Quantity must be at least 1"}
	}
	if req.Quantity > maxQty {
		return nil, false, &LimitError{Max: maxQty}
	}

	var itemID uint
	var created bool

	err := s.db.Transaction(func(tx *gorm.DB) error {
		userCart, err := s.getOrCreateCart(tx, userID)
		if err != nil {
			return err
		}

		var prod product.Product
		err = s.lockForUpdate(tx).
			Where("id = ? AND is_active = ?", req.ProductID, true).
			First(&prod).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Resource: "Product"}
		}
		if err != nil {
			return fmt.Errorf("failed to retrieve product: %w", err)
		}

		if prod.SellerID == userID {
			return &OwnershipError{}
		}

		var item CartItem
		err = s.lockForUpdate(tx).
			Where("cart_id = ? AND product_id = ?", userCart.ID, prod.ID).
			First(&item).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if req.Quantity > prod.Stock {
				return &StockError{Available: prod.Stock}
			}

			item = CartItem{
				CartID:          userCart.ID,
				ProductID:       prod.ID,
				Quantity:        req.Quantity,
				PriceAtAddition: prod.Price,
			}
			if err := tx.Create(&item).Error; err != nil {
				return fmt.Errorf("failed to create cart item: %w", err)
			}
			created = true

			if err := s.recordAudit(tx, userCart.ID, userID, ActionAdd, &prod.ID, map[string]interface{}{
				"quantity": item.Quantity,
				"price":    item.PriceAtAddition.StringFixed(2),
			}, ip); err != nil {
				return err
			}

		case err != nil:
			return fmt.Errorf("failed to retrieve cart item: %w", err)

		default:
			newQuantity := item.Quantity + req.Quantity
			if newQuantity > maxQty {
				return &LimitError{Max: maxQty}
			}
			if newQuantity > prod.Stock {
				return &StockError{Available: prod.Stock}
			}

			oldQuantity := item.Quantity
			// Only the quantity moves; the snapshot price is immutable.
			if err := tx.Model(&item).Update("quantity", newQuantity).Error; err != nil {
				return fmt.Errorf("failed to update cart item: %w", err)
			}

			if err := s.recordAudit(tx, userCart.ID, userID, ActionUpdate, &prod.ID, map[string]interface{}{
				"old_quantity": oldQuantity,
				"new_quantity": newQuantity,
			}, ip); err != nil {
				return err
			}
		}

		itemID = item.ID
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	view, err := s.getItemView(itemID)
	if err != nil {
		return nil, false, err
	}
	return view, created, nil
}

// UpdateItem sets a line item's quantity to an absolute value. Quantity 0
// parks the item: the row and its price snapshot stay put for later
// reactivation, and checkout is expected to prune parked rows itself.
func (s *Service) UpdateItem(userID uint, req *UpdateItemRequest, ip string) (*ItemView, error) {
	maxQty := s.config.Cart.MaxQuantityPerItem
	quantity := *req.Quantity
	if quantity < 0 {
		return nil, &ValidationError{Field: "quantity", Message: "Quantity cannot be negative"}
	}
	if quantity > maxQty {
		return nil, &LimitError{Max: maxQty}
	}

	var itemID uint

	err := s.db.Transaction(func(tx *gorm.DB) error {
		userCart, err := s.getOrCreateCart(tx, userID)
		if err != nil {
			return err
		}

		// Lock the product row first to keep the same lock order as AddItem.
		var prod product.Product
		prodErr := s.lockForUpdate(tx).Where("id = ?", req.ProductID).First(&prod).Error
		if prodErr != nil && !errors.Is(prodErr, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to retrieve product: %w", prodErr)
		}

		var item CartItem
		err = s.lockForUpdate(tx).
			Where("cart_id = ? AND product_id = ?", userCart.ID, req.ProductID).
			First(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Resource: "Item"}
		}
		if err != nil {
			return fmt.Errorf("failed to retrieve cart item: %w", err)
		}

		if quantity > 0 {
			if prodErr != nil {
				return &NotFoundError{Resource: "Product"}
			}
			if quantity > prod.Stock {
				return &StockError{Available: prod.Stock}
			}
		}

		oldQuantity := item.Quantity
		if err := tx.Model(&item).Update("quantity", quantity).Error; err != nil {
			return fmt.Errorf("failed to update cart item: %w", err)
		}

		if err := s.recordAudit(tx, userCart.ID, userID, ActionUpdate, &item.ProductID, map[string]interface{}{
			"old_quantity": oldQuantity,
			"new_quantity": quantity,
		}, ip); err != nil {
			return err
		}

		itemID = item.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.getItemView(itemID)
}

// RemoveItem deletes the line item. Removing an absent item is an error,
// not a silent no-op, so callers can detect double removes.
func (s *Service) RemoveItem(userID uint, req *RemoveItemRequest, ip string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		userCart, err := s.getOrCreateCart(tx, userID)
		if err != nil {
			return err
		}

		var item CartItem
		err = s.lockForUpdate(tx).
			Where("cart_id = ? AND product_id = ?", userCart.ID, req.ProductID).
			First(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{Resource: "Item"}
		}
		if err != nil {
			return fmt.Errorf("failed to retrieve cart item: %w", err)
		}

		if err := tx.Delete(&item).Error; err != nil {
			return fmt.Errorf("failed to delete cart item: %w", err)
		}

		return s.recordAudit(tx, userCart.ID, userID, ActionRemove, &item.ProductID, map[string]interface{}{
			"quantity": item.Quantity,
			"price":    item.PriceAtAddition.StringFixed(2),
		}, ip)
	})
}

// ClearCart deletes every line item in one transaction. Clearing an empty
// cart succeeds with a zero count.
func (s *Service) ClearCart(userID uint, ip string) (*ClearResult, error) {
	var removed int64

	err := s.db.Transaction(func(tx *gorm.DB) error {
		userCart, err := s.getOrCreateCart(tx, userID)
		if err != nil {
			return err
		}

		if err := tx.Model(&CartItem{}).Where("cart_id = ?", userCart.ID).Count(&removed).Error; err != nil {
			return fmt.Errorf("failed to count cart items: %w", err)
		}
		if removed == 0 {
			return nil
		}

		if err := tx.Where("cart_id = ?", userCart.ID).Delete(&CartItem{}).Error; err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}

		return s.recordAudit(tx, userCart.ID, userID, ActionClear, nil, map[string]interface{}{
			"items_removed": removed,
		}, ip)
	})
	if err != nil {
		return nil, err
	}

	return &ClearResult{ItemsRemoved: int(removed)}, nil
}

// ValidateCart is the read-only pre-checkout gate. It reports availability,
// stock and price-drift issues per item; only availability and stock
// problems make the cart invalid.
func (s *Service) ValidateCart(userID uint) (*ValidationResult, error) {
	userCart, err := s.getOrCreateCart(s.db, userID)
	if err != nil {
		return nil, err
	}

	items, err := s.loadItems(userCart.ID)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{Valid: true}

	for i := range items {
		item := &items[i]
		var issues []string

		if !item.IsAvailable() {
			issues = append(issues, "Product is no longer available")
			result.Valid = false
		}

		if !item.HasSufficientStock() {
			issues = append(issues, fmt.Sprintf("Insufficient stock. Only %d available", item.Product.Stock))
			result.Valid = false
		}

		if item.PriceChanged() {
			diff := item.PriceDifference()
			if diff.IsPositive() {
				issues = append(issues, fmt.Sprintf("Price increased by %s", diff.StringFixed(2)))
			} else {
				issues = append(issues, fmt.Sprintf("Price decreased by %s", diff.Abs().StringFixed(2)))
			}
		}

		if len(issues) > 0 {
			result.Issues = append(result.Issues, ItemIssues{
				ProductID:   item.ProductID,
				ProductName: item.Product.Name,
				Issues:      issues,
			})
		}
	}

	return result, nil
}

// GetAuditLogs returns the most recent audit entries for the user's cart,
// newest first.
func (s *Service) GetAuditLogs(userID uint) ([]AuditLogView, error) {
	userCart, err := s.getOrCreateCart(s.db, userID)
	if err != nil {
		return nil, err
	}

	var logs []AuditLog
	err = s.db.Preload("Product", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Where("cart_id = ?", userCart.ID).
		Order("created_at DESC, id DESC").
		Limit(s.config.Cart.AuditLogPageSize).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve audit logs: %w", err)
	}

	username := s.username(userID)
	views := make([]AuditLogView, 0, len(logs))
	for i := range logs {
		entry := &logs[i]
		view := AuditLogView{
			ID:        entry.ID,
			User:      username,
			Action:    entry.Action,
			ProductID: entry.ProductID,
			Changes:   entry.Changes,
			Timestamp: entry.CreatedAt,
			IPAddress: entry.IPAddress,
		}
		if entry.Product != nil {
			view.ProductName = entry.Product.Name
		}
		views = append(views, view)
	}

	return views, nil
}

// Private helper methods

// getOrCreateCart fetches the user's cart, creating it on first access.
// The unique index on user_id keeps the 1:1 invariant.
func (s *Service) getOrCreateCart(tx *gorm.DB, userID uint) (*Cart, error) {
	var userCart Cart
	err := tx.Where("user_id = ?", userID).FirstOrCreate(&userCart, Cart{UserID: userID}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve cart: %w", err)
	}
	return &userCart, nil
}

// lockForUpdate applies a FOR UPDATE row lock where the dialect supports it.
// SQLite has no FOR UPDATE syntax; its single-writer transactions already
// serialize the read-check-write sequence.
func (s *Service) lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// loadItems loads line items with their products. Products are loaded
// unscoped so soft-deleted listings still surface as unavailable instead
// of disappearing from the cart.
func (s *Service) loadItems(cartID uint) ([]CartItem, error) {
	var items []CartItem
	err := s.db.Preload("Product", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("Product.Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("is_primary DESC, sort_order ASC, id ASC")
		}).
		Where("cart_id = ?", cartID).
		Order("created_at DESC, id DESC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve cart items: %w", err)
	}
	return items, nil
}

func (s *Service) getItemView(itemID uint) (*ItemView, error) {
	var item CartItem
	err := s.db.Preload("Product", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("Product.Images").
		First(&item, itemID).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve cart item: %w", err)
	}

	var seller user.User
	sellerName := ""
	if err := s.db.Select("id, username").First(&seller, item.Product.SellerID).Error; err == nil {
		sellerName = seller.Username
	}

	view := buildItemView(&item, sellerName)
	return &view, nil
}

// sellerNames resolves the usernames for every distinct seller in one query.
func (s *Service) sellerNames(items []CartItem) (map[uint]string, error) {
	if len(items) == 0 {
		return map[uint]string{}, nil
	}

	sellerIDs := make([]uint, 0, len(items))
	seen := make(map[uint]bool, len(items))
	for i := range items {
		id := items[i].Product.SellerID
		if !seen[id] {
			seen[id] = true
			sellerIDs = append(sellerIDs, id)
		}
	}

	var sellers []user.User
	if err := s.db.Select("id, username").Where("id IN ?", sellerIDs).Find(&sellers).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve sellers: %w", err)
	}

	names := make(map[uint]string, len(sellers))
	for i := range sellers {
		names[sellers[i].ID] = sellers[i].Username
	}
	return names, nil
}

func (s *Service) username(userID uint) string {
	var u user.User
	if err := s.db.Select("id, username").First(&u, userID).Error; err != nil {
		return ""
	}
	return u.Username
}

// recordAudit appends one audit entry inside the caller's transaction so
// the mutation and its audit record commit or roll back together.
func (s *Service) recordAudit(tx *gorm.DB, cartID, userID uint, action AuditAction, productID *uint, changes map[string]interface{}, ip string) error {
	payload, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("failed to encode audit changes: %w", err)
	}

	entry := AuditLog{
		CartID:    cartID,
		UserID:    &userID,
		Action:    action,
		ProductID: productID,
		Changes:   payload,
		IPAddress: ip,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to record audit log: %w", err)
	}
	return nil
}

func buildItemView(item *CartItem, sellerName string) ItemView {
	return ItemView{
		ID: item.ID,
		Product: ProductMini{
			ID:           item.Product.ID,
			Name:         item.Product.Name,
			Slug:         item.Product.Slug,
			Price:        item.Product.Price,
			Stock:        item.Product.Stock,
			PrimaryImage: item.Product.PrimaryImageURL(),
			SellerName:   sellerName,
			IsAvailable:  item.IsAvailable(),
			IsLowStock:   item.Product.IsLowStock(),
		},
		Quantity:           item.Quantity,
		PriceAtAddition:    item.PriceAtAddition,
		CurrentPrice:       item.CurrentPrice(),
		TotalPrice:         item.TotalPrice(),
		PriceChanged:       item.PriceChanged(),
		PriceDifference:    item.PriceDifference(),
		IsAvailable:        item.IsAvailable(),
		HasSufficientStock: item.HasSufficientStock(),
		StockStatus:        item.StockStatus(),
		CreatedAt:          item.CreatedAt,
		UpdatedAt:          item.UpdatedAt,
	}
}
