// internal/domain/cart/service_test.go
package cart

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/your-org/marketplace-backend/internal/config"
	"github.com/your-org/marketplace-backend/internal/domain/product"
	"github.com/your-org/marketplace-backend/internal/domain/user"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testIP = "127.0.0.1"

func testConfig() *config.Config {
	return &config.Config{
		Cart: config.CartConfig{
			MaxQuantityPerItem: 99,
			AuditLogPageSize:   50,
		},
	}
}

// newTestDB opens an in-memory SQLite database limited to a single
// connection, so transactions from concurrent goroutines serialize at the
// pool instead of failing with SQLITE_BUSY.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&user.User{},
		&product.Category{},
		&product.Product{},
		&product.ProductImage{},
		&product.ProductReview{},
		&Cart{},
		&CartItem{},
		&AuditLog{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test schema: %v", err)
	}

	return db
}

type fixture struct {
	db      *gorm.DB
	service *Service
	seller  user.User
	buyer   user.User
	widget  product.Product
	gadget  product.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)

	f := &fixture{
		db:      db,
		service: NewService(db, testConfig()),
		seller:  user.User{Email: "seller@example.com", Username: "seller", Password: "x", IsActive: true},
		buyer:   user.User{Email: "buyer@example.com", Username: "buyer", Password: "x", IsActive: true},
	}
	if err := db.Create(&f.seller).Error; err != nil {
		t.Fatalf("failed to create seller: %v", err)
	}
	if err := db.Create(&f.buyer).Error; err != nil {
		t.Fatalf("failed to create buyer: %v", err)
	}

	f.widget = product.Product{
		SellerID:          f.seller.ID,
		Name:              "Widget",
		Slug:              "widget",
		Price:             decimal.RequireFromString("10.00"),
		Stock:             25,
		LowStockThreshold: 5,
		IsActive:          true,
	}
	f.gadget = product.Product{
		SellerID:          f.seller.ID,
		Name:              "Gadget",
		Slug:              "gadget",
		Price:             decimal.RequireFromString("24.50"),
		Stock:             8,
		LowStockThreshold: 5,
		IsActive:          true,
	}
	if err := db.Create(&f.widget).Error; err != nil {
		t.Fatalf("failed to create widget: %v", err)
	}
	if err := db.Create(&f.gadget).Error; err != nil {
		t.Fatalf("failed to create gadget: %v", err)
	}

	return f
}

func (f *fixture) setPrice(t *testing.T, productID uint, price string) {
	t.Helper()
	err := f.db.Model(&product.Product{}).Where("id = ?", productID).
		Update("price", decimal.RequireFromString(price)).Error
	if err != nil {
		t.Fatalf("failed to update price: %v", err)
	}
}

func (f *fixture) setStock(t *testing.T, productID uint, stock int) {
	t.Helper()
	err := f.db.Model(&product.Product{}).Where("id = ?", productID).
		Update("stock", stock).Error
	if err != nil {
		t.Fatalf("failed to update stock: %v", err)
	}
}

func TestGetCartCreatesLazily(t *testing.T) {
	f := newFixture(t)

	view, err := f.service.GetCart(f.buyer.ID)
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if view.ID == 0 {
		t.Fatal("expected a cart to be created on first access")
	}
	if len(view.Items) != 0 || view.TotalItems != 0 {
		t.Fatalf("expected empty cart, got %d items", len(view.Items))
	}

	again, err := f.service.GetCart(f.buyer.ID)
	if err != nil {
		t.Fatalf("GetCart (second): %v", err)
	}
	if again.ID != view.ID {
		t.Fatalf("expected the same cart on repeat access, got %d then %d", view.ID, again.ID)
	}
}

func TestAddItemCapturesPriceSnapshot(t *testing.T) {
	f := newFixture(t)

	item, created, err := f.service.AddItem(f.buyer.ID, &AddItemRequest{ProductID: f.widget.ID, Quantity: 2}, testIP)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if !created {
		t.Fatal("expected created=true on first add")
	}
	if !item.PriceAtAddition.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("snapshot = %s, want 10.00", item.PriceAtAddition)
	}
	if !item.TotalPrice.Equal(decimal.RequireFromString("20.00")) {
		t.Fatalf("total = %s, want 20.00", item.TotalPrice)
	}

	// The catalog price moves; the snapshot must not.
	f.setPrice(t, f.widget.ID, "12.00")

	view, err := f.service.GetCart(f.buyer.ID)
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	got := view.Items[0]
	if !got.PriceAtAddition.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("snapshot drifted to %s", got.PriceAtAddition)
	}
	if !got.CurrentPrice.Equal(decimal.RequireFromString("12.00")) {
		t.Fatalf("current price = %s, want 12.00", got.CurrentPrice)
	}
	if !got.PriceChanged {
		t.Fatal("expected price_changed=true")
	}
	if !got.PriceDifference.Equal(decimal.RequireFromString("2.00")) {
		t.Fatalf("price difference = %s, want 2.00", got.PriceDifference)
	}
	// Subtotal is computed from snapshots.
	if !view.Subtotal.Equal(decimal.RequireFromString("20.00")) {
		t.Fatalf("subtotal = %s, want 20.00", view.Subtotal)
	}
}

func TestAddItemIncrementsExistingLine(t *testing.T) {
	f := newFixture(t)

	if _, _, err := f.service.AddItem(f.buyer.ID, &AddItemRequest{ProductID: f.widget.ID, Quantity: 2}, testIP); err != nil {
		t.Fatalf("first AddItem: %v", err)
	}

	// Price changes between the two adds; the merged line keeps the
	// original snapshot.
	f.setPrice(t, f.widget.ID, "11.00")

	item, created, err := f.service.AddItem(f.buyer.ID, &AddItemRequest{ProductID: f.widget.ID, Quantity: 3}, testIP)
	if err != nil {
		t.Fatalf("second AddItem: %v", err)
	}
	if created {
		t.Fatal("expected created=false on increment")
	}
	if item.Quantity != 5 {
		t.Fatalf("quantity = %d, want 5", item.Quantity)
	}
	if !item.PriceAtAddition.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("snapshot = %s, want original 10.00", item.PriceAtAddition)
	}

	var count int64
	f.db.Model(&CartItem{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected a single line item, got %d", count)
	}
}

func TestAddItemRejectsSellerOwnListing(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.service.AddItem(f.seller.ID, &AddItemRequest{ProductID: f.widget.ID, Quantity: 1}, testIP)
	var ownership *OwnershipError
	if !errors.As(err, &ownership) {
		t.Fatalf("expected OwnershipError, got %v", err)
	}
}

func TestAddItemStockAndLimitChecks(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.service.AddItem(f.buyer.ID, &AddItemRequest{ProductID: f.gadget.ID, Quantity: 9}, testIP)
	var stockErr *StockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected StockError, got %v", err)
	}
	if stockErr.Available != 8 {
		t.Fatalf("available = %d, want 8", stockErr.Available)
	}

	// The combined quantity is checked on increment too.
	if _, _, err := f.service.AddItem(f.buyer.ID, &AddItemRequest{ProductID: f.gadget.ID, Quantity: 5}, testIP); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	_, _, err = f.service.AddItem(f.buyer.ID, &AddItemRequest{ProductID: f.gadget.ID, Quantity: 5}, testIP)
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected StockError on combined quantity, got %v", err)
	}

	// Per-item cap applies before stock.
	_, _, err = f.service.AddItem(f.buyer.ID, &AddItemRequest{ProductID: f.widget.ID, Quantity: 100}, testIP)
	var limitErr *LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected LimitError, got %v", err)
	}
	if limitErr.Max != 99 {
		t.Fatalf("max = %d, want 99", limitErr.Max)
	}
}

func TestAddItemInactiveProductNotFound(t *testing.T) {
	f := newFixture(t)

	f.db.Model(&product.Product{}).Where("id = ?", f.widget.ID).Update("is_active", false)

	_, _, err := f.service.AddItem(f.buyer.ID, &AddItemRequest{ProductID: f.widget.ID, Quantity: 1}, testIP)
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if notFound.Resource != "Product" {
		t.Fatalf("resource = %q, want Product", notFound.Resource)
	}
}

func TestUpdateItemParksAtZero(t *testing.T) {
	f := newFixture(t)

	if _, _, err := f.service.AddItem(f.buyer.ID, &AddItemRequest{ProductID: f.widget.ID, Quantity: 3}, testIP); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	zero := 0
	item, err := f.service.UpdateItem(f.buyer.ID, &UpdateItemRequest{ProductID: f.widget.ID, Quantity: &zero}, testIP)
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if item.Quantity != 0 {
		t.Fatalf("quantity = %d, want 0", item.Quantity)
	}

	// The parked row survives with its snapshot and contributes nothing
	// to the totals.
	view, err := f.service.GetCart(f.buyer.ID)
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(view.Items) != 1 {
		t.Fatalf("expected parked item to remain, got %d items", len(view.Items))
	}
	if view.TotalItems != 0 || !view.Subtotal.IsZero() {
		t.Fatalf("totals = %d / %s, want 0 / 0", view.TotalItems, view.Subtotal)
	}
	if !view.Items[0].PriceAtAddition.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("parked snapshot = %s, want 10.00", view.Items[0].PriceAtAddition)
	}

	// Reactivation restores the quantity against the original snapshot.
	three := 3
	item, err = f.service.UpdateItem(f.buyer.ID, &UpdateItemRequest{ProductID: f.widget.ID, Quantity: &three}, testIP)
	if err != nil {
		t.Fatalf("UpdateItem (reactivate): %v", err)
	}
	if item.Quantity != 3 {
		t.Fatalf("quantity = %d, want 3", item.Quantity)
	}
}

func TestUpdateItemAbsent(t *testing.T) {
	f := newFixture(t)

	one := 1
	_, err := f.service.UpdateItem(f.buyer.ID, &UpdateItemRequest{ProductID: f.widget.ID, Quantity: &one}, testIP)
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if notFound.Resource != "Item" {
		t.Fatalf("resource = %q, want Item", notFound.Resource)
	}
}

func TestUpdateItemStockCheck(t *testing.T) {
	f := newFixture(t)

	if _, _, err := f.service.AddItem(f.buyer.ID, &AddItemRequest{ProductID: f.gadget.ID, Quantity: 2}, testIP); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	nine := 9
	_, err := f.service.UpdateItem(f.buyer.ID, &UpdateItemRequest{ProductID: f.gadget.ID, Quantity: &nine}, testIP)
	var stockErr *StockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected StockError, got %v", err)
	}

	// Parking to zero skips the stock check entirely.
	f.setStock(t, f.gadget.ID, 0)
	zero := 0
	if _, err := f.service.UpdateItem(f.buyer.ID, &UpdateItemRequest{ProductID: f.gadget.ID, Quantity: &zero}, testIP); err != nil {
		t.Fatalf("UpdateItem to 0 with no stock: %v", err)
	}
}

func TestRemoveItemTwice(t *testing.T) {
	f := newFixture(t)

	if _, _, err := f.service.AddItem(f.buyer.ID, &AddItemRequest{ProductID: f.widget.ID, Quantity: 1}, testIP); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	if err := f.service.RemoveItem(f.buyer.ID, &RemoveItemRequest{ProductID: f.widget.ID}, testIP); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}

	err := f.service.RemoveItem(f.buyer.ID, &RemoveItemRequest{ProductID: f.widget.ID}, testIP)
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError on double remove, got %v", err)
	}
}

func TestClearCart(t *testing.T) {
	f := newFixture(t)

	// Clearing an empty cart is a successful no-op.
	result, err := f.service.ClearCart(f.buyer.ID, testIP)
	if err != nil {
		t.Fatalf("ClearCart (empty): %v", err)
	}
	if result.ItemsRemoved != 0 {
		t.Fatalf("items_removed = %d, want 0", result.ItemsRemoved)
	}

	if _, _, err := f.service.AddItem(f.buyer.ID, &AddItemRequest{ProductID: f.widget.ID, Quantity: 2}, testIP); err != nil {
		t.Fatalf("AddItem widget: %v", err)
	}
	if _, _, err := f.service.AddItem(f.buyer.ID, &AddItemRequest{ProductID: f.gadget.ID, Quantity: 1}, testIP); err != nil {
		t.Fatalf("AddItem gadget: %v", err)
	}

	result, err = f.service.ClearCart(f.buyer.ID, testIP)
	if err != nil {
		t.Fatalf("ClearCart: %v", err)
	}
	if result.ItemsRemoved != 2 {
		t.Fatalf("items_removed = %d, want 2", result.ItemsRemoved)
	}

	view, err := f.service.GetCart(f.buyer.ID)
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(view.Items) != 0 {
		t.Fatalf("expected empty cart after clear, got %d items", len(view.Items))
	}

	// A CLEAR entry was logged; the empty-cart clear was not.
	var clears int64
	f.db.Model(&AuditLog{}).Where("action = ?", ActionClear).Count(&clears)
	if clears != 1 {
		t.Fatalf("CLEAR audit entries = %d, want 1", clears)
	}
}

func TestValidateCartPriceDriftStaysValid(t *testing.T) {
	f := newFixture(t)

	if _, _, err := f.service.AddItem(f.buyer.ID, &AddItemRequest{ProductID: f.widget.ID, Quantity: 2}, testIP); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	f.setPrice(t, f.widget.ID, "12.00")

	result, err := f.service.ValidateCart(f.buyer.ID)
	if err != nil {
		t.Fatalf("ValidateCart: %v", err)
	}
	if !result.Valid {
		t.Fatal("price drift alone must not invalidate the cart")
	}
	if len(result.Issues) != 1 || len(result.Issues[0].Issues) != 1 {
		t.Fatalf("unexpected issues: %+v", result.Issues)
	}
	if got := result.Issues[0].Issues[0]; got != "Price increased by 2.00" {
		t.Fatalf("issue = %q, want %q", got, "Price increased by 2.00")
	}

	f.setPrice(t, f.widget.ID, "9.50")
	result, err = f.service.ValidateCart(f.buyer.ID)
	if err != nil {
		t.Fatalf("ValidateCart: %v", err)
	}
	if got := result.Issues[0].Issues[0]; got != "Price decreased by 0.50" {
		t.Fatalf("issue = %q, want %q", got, "Price decreased by 0.50")
	}
}

func TestValidateCartStockAndAvailability(t *testing.T) {
	f := newFixture(t)

	if _, _, err := f.service.AddItem(f.buyer.ID, &AddItemRequest{ProductID: f.gadget.ID, Quantity: 5}, testIP); err != nil {
		t.Fatalf("AddItem gadget: %v", err)
	}
	if _, _, err := f.service.AddItem(f.buyer.ID, &AddItemRequest{ProductID: f.widget.ID, Quantity: 1}, testIP); err != nil {
		t.Fatalf("AddItem widget: %v", err)
	}

	// Stock drops below the carted quantity and the other listing is
	// soft-deleted after the add.
	f.setStock(t, f.gadget.ID, 3)
	if err := f.db.Delete(&product.Product{}, f.widget.ID).Error; err != nil {
		t.Fatalf("failed to soft-delete widget: %v", err)
	}

	result, err := f.service.ValidateCart(f.buyer.ID)
	if err != nil {
		t.Fatalf("ValidateCart: %v", err)
	}
	if result.Valid {
		t.Fatal("expected invalid cart")
	}
	if len(result.Issues) != 2 {
		t.Fatalf("expected issues for both items, got %+v", result.Issues)
	}

	byProduct := map[uint][]string{}
	for _, issue := range result.Issues {
		byProduct[issue.ProductID] = issue.Issues
	}
	if got := byProduct[f.gadget.ID]; len(got) != 1 || got[0] != "Insufficient stock. Only 3 available" {
		t.Fatalf("gadget issues = %v", got)
	}
	if got := byProduct[f.widget.ID]; len(got) != 1 || got[0] != "Product is no longer available" {
		t.Fatalf("widget issues = %v", got)
	}

	// The soft-deleted listing still shows in the cart view, flagged.
	view, err := f.service.GetCart(f.buyer.ID)
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(view.Items) != 2 {
		t.Fatalf("expected both items in view, got %d", len(view.Items))
	}
	if !view.HasUnavailableItems || !view.HasStockIssues {
		t.Fatalf("flags = unavailable:%v stock:%v, want both true", view.HasUnavailableItems, view.HasStockIssues)
	}
}

func TestGetSummary(t *testing.T) {
	f := newFixture(t)

	summary, err := f.service.GetSummary(f.buyer.ID)
	if err != nil {
		t.Fatalf("GetSummary (empty): %v", err)
	}
	if summary.TotalItems != 0 || !summary.Subtotal.IsZero() {
		t.Fatalf("empty summary = %d / %s", summary.TotalItems, summary.Subtotal)
	}

	if _, _, err := f.service.AddItem(f.buyer.ID, &AddItemRequest{ProductID: f.widget.ID, Quantity: 2}, testIP); err != nil {
		t.Fatalf("AddItem widget: %v", err)
	}
	if _, _, err := f.service.AddItem(f.buyer.ID, &AddItemRequest{ProductID: f.gadget.ID, Quantity: 1}, testIP); err != nil {
		t.Fatalf("AddItem gadget: %v", err)
	}

	summary, err = f.service.GetSummary(f.buyer.ID)
	if err != nil {
		t.Fatalf("GetSummary: %v", err)
	}
	if summary.TotalItems != 3 {
		t.Fatalf("total_items = %d, want 3", summary.TotalItems)
	}
	if !summary.Subtotal.Equal(decimal.RequireFromString("44.50")) {
		t.Fatalf("subtotal = %s, want 44.50", summary.Subtotal)
	}
}

func TestAuditLogTrail(t *testing.T) {
	f := newFixture(t)

	if _, _, err := f.service.AddItem(f.buyer.ID, &AddItemRequest{ProductID: f.widget.ID, Quantity: 2}, testIP); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	five := 5
	if _, err := f.service.UpdateItem(f.buyer.ID, &UpdateItemRequest{ProductID: f.widget.ID, Quantity: &five}, testIP); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if err := f.service.RemoveItem(f.buyer.ID, &RemoveItemRequest{ProductID: f.widget.ID}, testIP); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}

	logs, err := f.service.GetAuditLogs(f.buyer.ID)
	if err != nil {
		t.Fatalf("GetAuditLogs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(logs))
	}

	// Newest first.
	wantActions := []AuditAction{ActionRemove, ActionUpdate, ActionAdd}
	for i, want := range wantActions {
		if logs[i].Action != want {
			t.Fatalf("logs[%d].Action = %s, want %s", i, logs[i].Action, want)
		}
	}

	for _, entry := range logs {
		if entry.User != "buyer" {
			t.Fatalf("entry user = %q, want buyer", entry.User)
		}
		if entry.ProductName != "Widget" {
			t.Fatalf("entry product = %q, want Widget", entry.ProductName)
		}
		if entry.IPAddress != testIP {
			t.Fatalf("entry ip = %q, want %s", entry.IPAddress, testIP)
		}
	}
}

func TestFailedAddLeavesNoAuditEntry(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.service.AddItem(f.buyer.ID, &AddItemRequest{ProductID: f.gadget.ID, Quantity: 50}, testIP)
	var stockErr *StockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected StockError, got %v", err)
	}

	var count int64
	f.db.Model(&AuditLog{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no audit entries after failed add, got %d", count)
	}
}

func TestConcurrentAddsMergeIntoOneLine(t *testing.T) {
	f := newFixture(t)

	const workers = 10

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := f.service.AddItem(f.buyer.ID, &AddItemRequest{ProductID: f.widget.ID, Quantity: 1}, testIP); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent AddItem: %v", err)
	}

	view, err := f.service.GetCart(f.buyer.ID)
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(view.Items) != 1 {
		t.Fatalf("expected a single merged line, got %d", len(view.Items))
	}
	if view.Items[0].Quantity != workers {
		t.Fatalf("quantity = %d, want %d (lost updates)", view.Items[0].Quantity, workers)
	}
}

func TestCartsAreIsolatedPerUser(t *testing.T) {
	f := newFixture(t)

	other := user.User{Email: "other@example.com", Username: "other", Password: "x", IsActive: true}
	if err := f.db.Create(&other).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	if _, _, err := f.service.AddItem(f.buyer.ID, &AddItemRequest{ProductID: f.widget.ID, Quantity: 2}, testIP); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	view, err := f.service.GetCart(other.ID)
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(view.Items) != 0 {
		t.Fatalf("expected other user's cart to be empty, got %d items", len(view.Items))
	}

	err = f.service.RemoveItem(other.ID, &RemoveItemRequest{ProductID: f.widget.ID}, testIP)
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError removing from another user's cart, got %v", err)
	}
}
