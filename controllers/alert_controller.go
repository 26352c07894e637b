package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"stockalert/middleware"
	"stockalert/models"
	"stockalert/services"
	"stockalert/services/pricefeed"
)

// AlertController handles alert CRUD for the authenticated user.
type AlertController struct {
	db            *gorm.DB
	quotes        *services.QuoteService
	alertsPerUser int
	log           *zap.Logger
}

// NewAlertController creates an alert controller.
func NewAlertController(db *gorm.DB, quotes *services.QuoteService, alertsPerUser int, log *zap.Logger) *AlertController {
	return &AlertController{db: db, quotes: quotes, alertsPerUser: alertsPerUser, log: log}
}

type alertResponse struct {
	ID              uint    `json:"id"`
	Symbol          string  `json:"symbol"`
	StockName       string  `json:"stock_name"`
	PriceAtCreation string  `json:"price_at_creation"`
	DesiredPrice    string  `json:"desired_price"`
	Status          string  `json:"status"`
	TriggeredAt     *string `json:"triggered_at,omitempty"`
}

// ListAlerts returns the caller's alerts.
// GET /api/v1/alerts
func (ctrl *AlertController) ListAlerts(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var alerts []models.Alert
	err := ctrl.db.Preload("Stock").
		Where("user_id = ?", user.ID).
		Order("created_at DESC").
		Find(&alerts).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch alerts"})
		return
	}

	out := make([]alertResponse, 0, len(alerts))
	for _, alert := range alerts {
		resp := alertResponse{
			ID:              alert.ID,
			Symbol:          alert.Stock.Symbol,
			StockName:       alert.Stock.Name,
			PriceAtCreation: alert.PriceAtCreation.String(),
			DesiredPrice:    alert.DesiredPrice.String(),
			Status:          alert.Status,
		}
		if alert.TriggeredAt != nil {
			t := alert.TriggeredAt.Format("2006-01-02T15:04:05Z07:00")
			resp.TriggeredAt = &t
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, gin.H{"data": out, "count": len(out)})
}

type createAlertRequest struct {
	Symbol       string `json:"symbol" binding:"required"`
	DesiredPrice string `json:"desired_price" binding:"required"`
}

// CreateAlert sets a new price watch. The current quote is resolved through
// the cache policy and captured as the alert's baseline, which fixes the
// watch direction for the life of the alert.
// POST /api/v1/alerts
func (ctrl *AlertController) CreateAlert(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	desired, err := decimal.NewFromString(req.DesiredPrice)
	if err != nil || desired.Sign() <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "desired_price must be a positive number"})
		return
	}

	var count int64
	if err := ctrl.db.Model(&models.Alert{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create alert"})
		return
	}
	if count >= int64(ctrl.alertsPerUser) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "maximum number of alerts reached, delete an existing alert first",
		})
		return
	}

	stock, price, err := ctrl.quotes.CurrentPriceBySymbol(c.Request.Context(), req.Symbol)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol"})
			return
		}
		if errors.Is(err, pricefeed.ErrPriceUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "there is an issue accessing data for this stock, please try another",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create alert"})
		return
	}

	alert := models.Alert{
		UserID:          user.ID,
		StockID:         stock.ID,
		PriceAtCreation: price,
		DesiredPrice:    desired,
		Status:          models.AlertStatusOpen,
	}
	if err := ctrl.db.Create(&alert).Error; err != nil {
		ctrl.log.Error("failed to create alert", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create alert"})
		return
	}

	c.JSON(http.StatusCreated, alertResponse{
		ID:              alert.ID,
		Symbol:          stock.Symbol,
		StockName:       stock.Name,
		PriceAtCreation: alert.PriceAtCreation.String(),
		DesiredPrice:    alert.DesiredPrice.String(),
		Status:          alert.Status,
	})
}

// DeleteAlert removes one of the caller's alerts. Deletion is allowed at
// any time, including while a scan pass is evaluating the alert; the
// scanner's compare-and-set handles that race.
// DELETE /api/v1/alerts/:id
func (ctrl *AlertController) DeleteAlert(c *gin.Context) {
	user := middleware.CurrentUser(c)

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return
	}

	res := ctrl.db.Where("id = ? AND user_id = ?", id, user.ID).Delete(&models.Alert{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete alert"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		return
	}

	c.Status(http.StatusNoContent)
}
