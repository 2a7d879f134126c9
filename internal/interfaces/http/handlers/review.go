// internal/interfaces/http/handlers/review.go
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/your-org/marketplace-backend/internal/config"
	"github.com/your-org/marketplace-backend/internal/domain/product"
	"github.com/your-org/marketplace-backend/internal/interfaces/http/middleware"
	"github.com/your-org/marketplace-backend/internal/pkg/response"
	"gorm.io/gorm"
)

// ReviewHandler handles product review endpoints
type ReviewHandler struct {
	reviewService *product.ReviewService
	config        *config.Config
}

// NewReviewHandler creates a new review handler
func NewReviewHandler(db *gorm.DB, cfg *config.Config) *ReviewHandler {
	return &ReviewHandler{
		reviewService: product.NewReviewService(db, cfg),
		config:        cfg,
	}
}

// GetReviews handles GET /products/:id/reviews
func (h *ReviewHandler) GetReviews(c *gin.Context) {
	productID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid product ID", nil)
		return
	}

	result, err := h.reviewService.GetReviews(uint(productID))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Failed to retrieve reviews", nil)
		return
	}

	response.Success(c, http.StatusOK, "Reviews retrieved successfully", result)
}

// CreateReview handles POST /products/:id/reviews
func (h *ReviewHandler) CreateReview(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		response.Error(c, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	productID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid product ID", nil)
		return
	}

	var req product.CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid request data", err.Error())
		return
	}

	review, err := h.reviewService.CreateReview(userID, uint(productID), &req)
	if err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "not found"):
			response.Error(c, http.StatusNotFound, "Product not found", nil)
		case strings.Contains(msg, "your own product"), strings.Contains(msg, "already reviewed"):
			response.Error(c, http.StatusBadRequest, msg, nil)
		default:
			response.Error(c, http.StatusInternalServerError, "Failed to create review", nil)
		}
		return
	}

	response.Success(c, http.StatusCreated, "Review created successfully", review)
}
