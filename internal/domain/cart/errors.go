// internal/domain/cart/errors.go
package cart

import "fmt"

// Domain errors carry enough type information for the HTTP layer to pick a
// status code with errors.As. None of them are retryable; they all describe
// a caller/state mismatch.

// NotFoundError indicates the product or line item does not exist (or, for
// products, is inactive or deleted).
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

// ValidationError indicates malformed input on a named field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// StockError indicates the requested quantity exceeds the live stock.
type StockError struct {
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("Only %d unit(s) available", e.Available)
}

// LimitError indicates the resulting quantity would exceed the per-item cap.
type LimitError struct {
	Max int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("Maximum %d units allowed per item", e.Max)
}

// OwnershipError indicates a seller tried to cart their own listing.
type OwnershipError struct{}

func (e *OwnershipError) Error() string {
	return "You cannot add your own products to cart"
}
