// internal/domain/product/review_service.go
package product

import (
	"fmt"

	"github.com/your-org/marketplace-backend/internal/config"
	"gorm.io/gorm"
)

// ReviewService handles product review business logic
type ReviewService struct {
	db     *gorm.DB
	config *config.Config
}

// NewReviewService creates a new review service
func NewReviewService(db *gorm.DB, cfg *config.Config) *ReviewService {
	return &ReviewService{
		db:     db,
		config: cfg,
	}
}

// CreateReviewRequest represents review creation data
type CreateReviewRequest struct {
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Title   string `json:"title" binding:"max=255"`
	Content string `json:"content"`
}

// ReviewListResponse represents reviews for a product with aggregates
type ReviewListResponse struct {
	Reviews       []ProductReview `json:"reviews"`
	AverageRating float64         `json:"average_rating"`
	ReviewCount   int64           `json:"review_count"`
}

// GetReviews retrieves reviews for a product, newest first
func (s *ReviewService) GetReviews(productID uint) (*ReviewListResponse, error) {
	var prod Product
	if err := s.db.Where("id = ? AND is_active = ?", productID, true).First(&prod).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("product not found")
		}
		return nil, fmt.Errorf("failed to retrieve product: %w", err)
	}

	var reviews []ProductReview
	err := s.db.Where("product_id = ?", productID).
		Order("created_at DESC").
		Find(&reviews).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve reviews: %w", err)
	}

	var avg float64
	var count int64
	row := s.db.Model(&ProductReview{}).
		Where("product_id = ?", productID).
		Select("COALESCE(AVG(rating), 0), COUNT(*)").
		Row()
	if err := row.Scan(&avg, &count); err != nil {
		return nil, fmt.Errorf("failed to aggregate ratings: %w", err)
	}

	return &ReviewListResponse{
		Reviews:       reviews,
		AverageRating: avg,
		ReviewCount:   count,
	}, nil
}

// CreateReview creates a review for a product. One review per user per product;
// sellers cannot review their own listings.
func (s *ReviewService) CreateReview(userID, productID uint, req *CreateReviewRequest) (*ProductReview, error) {
	var prod Product
	if err := s.db.Where("id = ? AND is_active = ?", productID, true).First(&prod).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("product not found")
		}
		return nil, fmt.Errorf("failed to retrieve product: %w", err)
	}

	if prod.SellerID == userID {
		return nil, fmt.Errorf("you cannot review your own product")
	}

	var existing ProductReview
	result := s.db.Where("product_id = ? AND user_id = ?", productID, userID).First(&existing)
	if result.Error == nil {
		return nil, fmt.Errorf("you have already reviewed this product")
	}

	review := ProductReview{
		ProductID: productID,
		UserID:    userID,
		Rating:    req.Rating,
		Title:     req.Title,
		Content:   req.Content,
	}

	if err := s.db.Create(&review).Error; err != nil {
		return nil, fmt.Errorf("failed to create review: %w", err)
	}

	return &review, nil
}
