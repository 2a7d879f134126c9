// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/your-org/marketplace-backend/internal/config"
	"github.com/your-org/marketplace-backend/internal/interfaces/http/handlers"
	"github.com/your-org/marketplace-backend/internal/interfaces/http/middleware"
	"gorm.io/gorm"
)

// SetupRoutes wires every API route group under the given router group
func SetupRoutes(rg *gin.RouterGroup, db *gorm.DB, redisClient *redis.Client, cfg *config.Config) {
	SetupAuthRoutes(rg, db, cfg)
	SetupProductRoutes(rg, db, cfg)
	SetupCartRoutes(rg, db, cfg)
}

// SetupAuthRoutes sets up authentication related routes
func SetupAuthRoutes(rg *gin.RouterGroup, db *gorm.DB, cfg *config.Config) {
	authHandler := handlers.NewAuthHandler(db, cfg)

	auth := rg.Group("/auth")
	{
		// Public auth endpoints
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)

		// Protected auth endpoints
		protected := auth.Group("")
		protected.Use(middleware.AuthMiddleware(cfg))
		{
			protected.GET("/profile", authHandler.GetProfile)
		}
	}
}

// SetupProductRoutes sets up catalog related routes
func SetupProductRoutes(rg *gin.RouterGroup, db *gorm.DB, cfg *config.Config) {
	productHandler := handlers.NewProductHandler(db, cfg)
	reviewHandler := handlers.NewReviewHandler(db, cfg)

	products := rg.Group("/products")
	products.Use(middleware.OptionalAuthMiddleware(cfg))
	{
		products.GET("", productHandler.GetProducts)
		products.GET("/:id", productHandler.GetProduct)
		products.GET("/:id/reviews", reviewHandler.GetReviews)

		// Reviews require a logged-in buyer
		protected := products.Group("")
		protected.Use(middleware.AuthMiddleware(cfg))
		{
			protected.POST("/:id/reviews", reviewHandler.CreateReview)
		}
	}
}

// SetupCartRoutes sets up cart related routes. Every cart endpoint requires
// authentication; carts are strictly per-user.
func SetupCartRoutes(rg *gin.RouterGroup, db *gorm.DB, cfg *config.Config) {
	cartHandler := handlers.NewCartHandler(db, cfg)

	carts := rg.Group("/cart")
	carts.Use(middleware.AuthMiddleware(cfg))
	{
		carts.GET("", cartHandler.GetCart)
		carts.GET("/summary", cartHandler.GetSummary)
		carts.POST("/add", cartHandler.AddItem)
		carts.PATCH("/update", cartHandler.UpdateItem)
		carts.DELETE("/remove", cartHandler.RemoveItem)
		carts.DELETE("/clear", cartHandler.ClearCart)
		carts.GET("/validate", cartHandler.ValidateCart)
		carts.GET("/audit-logs", cartHandler.GetAuditLogs)
	}
}
