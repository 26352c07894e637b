package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"stockalert/models"
	"stockalert/services"
	"stockalert/services/pricefeed"
)

// StockController serves the stock catalog and on-demand quotes.
type StockController struct {
	db     *gorm.DB
	quotes *services.QuoteService
	log    *zap.Logger
}

// NewStockController creates a stock controller.
func NewStockController(db *gorm.DB, quotes *services.QuoteService, log *zap.Logger) *StockController {
	return &StockController{db: db, quotes: quotes, log: log}
}

// ListStocks returns the active catalog, optionally filtered by a search
// term on symbol or name.
// GET /api/v1/stocks
func (sc *StockController) ListStocks(c *gin.Context) {
	query := sc.db.Model(&models.Stock{}).Where("active = ?", true)

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		like := "%" + strings.ToUpper(search) + "%"
		query = query.Where("UPPER(symbol) LIKE ? OR UPPER(name) LIKE ?", like, like)
	}

	var stocks []models.Stock
	if err := query.Order("symbol").Limit(100).Find(&stocks).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch stocks"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stocks, "count": len(stocks)})
}

// GetQuote resolves the current price for a symbol through the cache
// policy. The alert creation flow calls this first so the user confirms
// the price their baseline will be captured from.
// GET /api/v1/stocks/:symbol/quote
func (sc *StockController) GetQuote(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))

	stock, price, err := sc.quotes.CurrentPriceBySymbol(c.Request.Context(), symbol)
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
		sc.log.Error("quote lookup failed", zap.String("symbol", symbol), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch quote"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":     stock.Symbol,
		"name":       stock.Name,
		"price":      price,
		"updated_at": stock.LastUpdateTime,
	})
}
