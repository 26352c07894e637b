package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"stockalert/middleware"
	"stockalert/models"
)

// UserController serves the authenticated user's own resource.
type UserController struct {
	db *gorm.DB
}

// NewUserController creates a user controller.
func NewUserController(db *gorm.DB) *UserController {
	return &UserController{db: db}
}

// GetMe returns the caller's account along with an alert summary.
// GET /api/v1/users/me
func (uc *UserController) GetMe(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var alerts []models.Alert
	err := uc.db.Preload("Stock").Where("user_id = ?", user.ID).Find(&alerts).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch user data"})
		return
	}

	summaries := make([]gin.H, 0, len(alerts))
	for _, alert := range alerts {
		summaries = append(summaries, gin.H{
			"id":                alert.ID,
			"symbol":            alert.Stock.Symbol,
			"price_at_creation": alert.PriceAtCreation,
			"desired_price":     alert.DesiredPrice,
			"status":            alert.Status,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
		"alerts":   summaries,
	})
}
