package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"stockalert/config"
	"stockalert/controllers"
	"stockalert/middleware"
	"stockalert/services"
	"stockalert/services/mailer"
)

// SetupRoutes wires all API routes.
func SetupRoutes(router *gin.Engine, db *gorm.DB, cfg *config.Config, quotes *services.QuoteService, stream *services.QuoteStream, mail *mailer.Mailer, log *zap.Logger) {
	loginLimiter := middleware.NewLoginRateLimiter(5, 15*time.Minute, 30*time.Minute)

	authController := controllers.NewAuthController(db, cfg.SecretKey, mail, loginLimiter, log)
	stockController := controllers.NewStockController(db, quotes, log)
	alertController := controllers.NewAlertController(db, quotes, cfg.AlertsPerUser, log)
	userController := controllers.NewUserController(db)

	api := router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authController.Register)
			auth.POST("/reset-password/request", authController.RequestPasswordReset)
			auth.POST("/reset-password/confirm", authController.ResetPassword)
		}

		api.POST("/tokens", loginLimiter.Middleware(), authController.IssueToken)
		api.DELETE("/tokens", middleware.TokenAuth(db), authController.RevokeToken)

		stocks := api.Group("/stocks", middleware.TokenAuth(db))
		{
			stocks.GET("", stockController.ListStocks)
			stocks.GET("/:symbol/quote", stockController.GetQuote)
		}

		alerts := api.Group("/alerts", middleware.TokenAuth(db))
		{
			alerts.GET("", alertController.ListAlerts)
			alerts.POST("", alertController.CreateAlert)
			alerts.DELETE("/:id", alertController.DeleteAlert)
		}

		api.GET("/users/me", middleware.TokenAuth(db), userController.GetMe)

		api.GET("/stream/quotes", stream.ServeWS)
	}
}
