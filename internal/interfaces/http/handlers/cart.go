// internal/interfaces/http/handlers/cart.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/marketplace-backend/internal/config"
	"github.com/your-org/marketplace-backend/internal/domain/cart"
	"github.com/your-org/marketplace-backend/internal/interfaces/http/middleware"
	"github.com/your-org/marketplace-backend/internal/pkg/response"
	"gorm.io/gorm"
)

// CartHandler handles cart endpoints
type CartHandler struct {
	cartService *cart.Service
	config      *config.Config
}

// NewCartHandler creates a new cart handler
func NewCartHandler(db *gorm.DB, cfg *config.Config) *CartHandler {
	return &CartHandler{
		cartService: cart.NewService(db, cfg),
		config:      cfg,
	}
}

// cartErrorStatus maps domain errors to HTTP status codes
func cartErrorStatus(err error) int {
	var notFound *cart.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound
	}
	var validation *cart.ValidationError
	var stock *cart.StockError
	var limit *cart.LimitError
	var ownership *cart.OwnershipError
	if errors.As(err, &validation) || errors.As(err, &stock) ||
		errors.As(err, &limit) || errors.As(err, &ownership) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// handleCartError writes the envelope for a failed cart operation
func handleCartError(c *gin.Context, err error) {
	status := cartErrorStatus(err)
	if status == http.StatusInternalServerError {
		response.Error(c, status, "Internal server error", nil)
		return
	}
	response.Error(c, status, err.Error(), nil)
}

// GetCart handles GET /cart
func (h *CartHandler) GetCart(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		response.Error(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	view, err := h.cartService.GetCart(userID)
	if err != nil {
		handleCartError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "Cart retrieved successfully", view)
}

// GetSummary handles GET /cart/summary
func (h *CartHandler) GetSummary(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		response.Error(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	summary, err := h.cartService.GetSummary(userID)
	if err != nil {
		handleCartError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "Cart summary retrieved successfully", summary)
}

// AddItem handles POST /cart/add
func (h *CartHandler) AddItem(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		response.Error(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req cart.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid request data", err.Error())
		return
	}

	// An omitted quantity means one unit
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	item, created, err := h.cartService.AddItem(userID, &req, c.ClientIP())
	if err != nil {
		handleCartError(c, err)
		return
	}

	status := http.StatusOK
	message := "Cart item quantity updated"
	if created {
		status = http.StatusCreated
		message = "Item added to cart"
	}
	response.Success(c, status, message, item)
}

// UpdateItem handles PATCH /cart/update
func (h *CartHandler) UpdateItem(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		response.Error(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req cart.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid request data", err.Error())
		return
	}

	item, err := h.cartService.UpdateItem(userID, &req, c.ClientIP())
	if err != nil {
		handleCartError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "Cart item updated", item)
}

// RemoveItem handles DELETE /cart/remove
func (h *CartHandler) RemoveItem(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		response.Error(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req cart.RemoveItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid request data", err.Error())
		return
	}

	if err := h.cartService.RemoveItem(userID, &req, c.ClientIP()); err != nil {
		handleCartError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "Item removed from cart", nil)
}

// ClearCart handles DELETE /cart/clear
func (h *CartHandler) ClearCart(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		response.Error(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	result, err := h.cartService.ClearCart(userID, c.ClientIP())
	if err != nil {
		handleCartError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "Cart cleared", result)
}

// ValidateCart handles GET /cart/validate
func (h *CartHandler) ValidateCart(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		response.Error(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	result, err := h.cartService.ValidateCart(userID)
	if err != nil {
		handleCartError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "Cart validated", result)
}

// GetAuditLogs handles GET /cart/audit-logs
func (h *CartHandler) GetAuditLogs(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		response.Error(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	logs, err := h.cartService.GetAuditLogs(userID)
	if err != nil {
		handleCartError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "Audit logs retrieved successfully", logs)
}
