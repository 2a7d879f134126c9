// internal/domain/cart/entity_test.go
package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/your-org/marketplace-backend/internal/domain/product"
	"gorm.io/gorm"
)

func testItem(price string, quantity, stock int) CartItem {
	return CartItem{
		Quantity:        quantity,
		PriceAtAddition: decimal.RequireFromString(price),
		Product: product.Product{
			Price:             decimal.RequireFromString(price),
			Stock:             stock,
			LowStockThreshold: 5,
			IsActive:          true,
		},
	}
}

func TestItemDerivedTotals(t *testing.T) {
	item := testItem("10.00", 3, 25)

	if !item.TotalPrice().Equal(decimal.RequireFromString("30.00")) {
		t.Fatalf("total = %s, want 30.00", item.TotalPrice())
	}
	if item.PriceChanged() {
		t.Fatal("no drift expected when snapshot matches live price")
	}

	item.Product.Price = decimal.RequireFromString("12.50")
	if !item.PriceChanged() {
		t.Fatal("expected drift after live price moved")
	}
	if !item.PriceDifference().Equal(decimal.RequireFromString("2.50")) {
		t.Fatalf("difference = %s, want 2.50", item.PriceDifference())
	}
	// Totals keep following the snapshot.
	if !item.TotalPrice().Equal(decimal.RequireFromString("30.00")) {
		t.Fatalf("total drifted to %s", item.TotalPrice())
	}
}

func TestItemStockStatus(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CartItem)
		want   string
	}{
		{
			name:   "in stock",
			mutate: func(i *CartItem) {},
			want:   StockStatusInStock,
		},
		{
			name:   "low stock",
			mutate: func(i *CartItem) { i.Product.Stock = 4 },
			want:   StockStatusLowStock,
		},
		{
			name:   "insufficient stock",
			mutate: func(i *CartItem) { i.Product.Stock = 2 },
			want:   StockStatusInsufficientStock,
		},
		{
			name:   "inactive product",
			mutate: func(i *CartItem) { i.Product.IsActive = false },
			want:   StockStatusUnavailable,
		},
		{
			name:   "zero stock",
			mutate: func(i *CartItem) { i.Product.Stock = 0 },
			want:   StockStatusUnavailable,
		},
		{
			name:   "soft deleted product",
			mutate: func(i *CartItem) { i.Product.DeletedAt = gorm.DeletedAt{Valid: true} },
			want:   StockStatusUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := testItem("10.00", 3, 25)
			tt.mutate(&item)
			if got := item.StockStatus(); got != tt.want {
				t.Fatalf("status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParkedItemStockStatus(t *testing.T) {
	// Quantity 0 always has sufficient stock, even at zero live stock the
	// item only becomes unavailable, never insufficient.
	item := testItem("10.00", 0, 0)
	if item.HasSufficientStock() != true {
		t.Fatal("parked item must report sufficient stock")
	}
	if got := item.StockStatus(); got != StockStatusUnavailable {
		t.Fatalf("status = %s, want %s", got, StockStatusUnavailable)
	}

	item.Product.Stock = 10
	if got := item.StockStatus(); got != StockStatusInStock {
		t.Fatalf("status = %s, want %s", got, StockStatusInStock)
	}
}
