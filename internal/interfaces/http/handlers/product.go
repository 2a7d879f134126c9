// internal/interfaces/http/handlers/product.go
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/your-org/marketplace-backend/internal/config"
	"github.com/your-org/marketplace-backend/internal/domain/product"
	"github.com/your-org/marketplace-backend/internal/pkg/response"
	"gorm.io/gorm"
)

// ProductHandler handles catalog endpoints
type ProductHandler struct {
	productService *product.Service
	config         *config.Config
}

// NewProductHandler creates a new product handler
func NewProductHandler(db *gorm.DB, cfg *config.Config) *ProductHandler {
	return &ProductHandler{
		productService: product.NewService(db, cfg),
		config:         cfg,
	}
}

// GetProducts handles GET /products
func (h *ProductHandler) GetProducts(c *gin.Context) {
	var req product.ProductListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid query parameters", err.Error())
		return
	}

	result, err := h.productService.GetProducts(&req)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Failed to retrieve products", nil)
		return
	}

	response.Success(c, http.StatusOK, "Products retrieved successfully", result)
}

// GetProduct handles GET /products/:id
// The parameter is either a numeric ID or a slug.
func (h *ProductHandler) GetProduct(c *gin.Context) {
	param := c.Param("id")

	var prod *product.Product
	var err error
	if id, parseErr := strconv.ParseUint(param, 10, 32); parseErr == nil {
		prod, err = h.productService.GetProduct(uint(id))
	} else {
		prod, err = h.productService.GetProductBySlug(param)
	}
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			response.Error(c, http.StatusNotFound, "Product not found", nil)
			return
		}
		response.Error(c, http.StatusInternalServerError, "Failed to retrieve product", nil)
		return
	}

	response.Success(c, http.StatusOK, "Product retrieved successfully", prod)
}
