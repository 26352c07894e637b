package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"stockalert/models"
	"stockalert/services/pricefeed"
)

// IssueNotifier reports price provider problems out of band.
type IssueNotifier interface {
	SendPriceFeedIssue(stock models.Stock)
}

// QuoteService implements the price cache policy: a cached price is served
// until it is older than the refresh interval, which bounds provider calls
// to roughly one per symbol per interval no matter how many alerts
// reference the symbol.
type QuoteService struct {
	db              *gorm.DB
	fetcher         pricefeed.Fetcher
	notifier        IssueNotifier
	stream          *QuoteStream // optional, may be nil
	refreshInterval time.Duration
	log             *zap.Logger

	mu          sync.Mutex
	lastIssueAt map[uint]time.Time
}

// NewQuoteService creates the quote service.
func NewQuoteService(db *gorm.DB, fetcher pricefeed.Fetcher, notifier IssueNotifier, stream *QuoteStream, refreshInterval time.Duration, log *zap.Logger) *QuoteService {
	return &QuoteService{
		db:              db,
		fetcher:         fetcher,
		notifier:        notifier,
		stream:          stream,
		refreshInterval: refreshInterval,
		log:             log,
		lastIssueAt:     make(map[uint]time.Time),
	}
}

// CurrentPrice resolves the stock's current price, refreshing the cached
// quote through the provider when it has gone stale. A quote that has never
// been fetched (nil timestamp) is always stale. On provider failure the
// timestamp is left untouched so the next check retries immediately instead
// of waiting out a full interval, and the failure is reported at most once
// per symbol per refresh window.
func (s *QuoteService) CurrentPrice(ctx context.Context, stock *models.Stock) (decimal.Decimal, error) {
	now := time.Now().UTC()
	if stock.LastUpdateTime != nil && now.Sub(*stock.LastUpdateTime) < s.refreshInterval {
		return stock.LastPrice, nil
	}

	price, err := s.fetcher.FetchPrice(ctx, stock.Symbol)
	if err != nil {
		s.reportIssue(*stock)
		return decimal.Zero, err
	}

	updated := time.Now().UTC()
	// Price and timestamp move together in one statement; a reader never
	// observes a fresh timestamp with a stale price.
	err = s.db.Model(&models.Stock{}).Where("id = ?", stock.ID).
		Updates(map[string]interface{}{
			"last_price":       price,
			"last_update_time": updated,
		}).Error
	if err != nil {
		s.log.Error("failed to persist quote", zap.String("symbol", stock.Symbol), zap.Error(err))
		return decimal.Zero, fmt.Errorf("persist quote for %s: %w", stock.Symbol, err)
	}

	stock.LastPrice = price
	stock.LastUpdateTime = &updated

	if s.stream != nil {
		s.stream.Broadcast(QuoteUpdate{Symbol: stock.Symbol, Price: price, At: updated})
	}
	return price, nil
}

// CurrentPriceBySymbol is the lookup used by the web layer when a user
// confirms a quote before creating an alert.
func (s *QuoteService) CurrentPriceBySymbol(ctx context.Context, symbol string) (*models.Stock, decimal.Decimal, error) {
	var stock models.Stock
	if err := s.db.Where("symbol = ?", symbol).First(&stock).Error; err != nil {
		return nil, decimal.Zero, err
	}
	price, err := s.CurrentPrice(ctx, &stock)
	if err != nil {
		return &stock, decimal.Zero, err
	}
	return &stock, price, nil
}

// reportIssue emails the administrator about a failed refresh, suppressing
// repeats for the same symbol within one refresh window so a symbol with
// many alerts does not flood the inbox.
func (s *QuoteService) reportIssue(stock models.Stock) {
	now := time.Now().UTC()

	s.mu.Lock()
	last, seen := s.lastIssueAt[stock.ID]
	if seen && now.Sub(last) < s.refreshInterval {
		s.mu.Unlock()
		return
	}
	s.lastIssueAt[stock.ID] = now
	s.mu.Unlock()

	s.log.Warn("price provider returned no usable data", zap.String("symbol", stock.Symbol))
	s.notifier.SendPriceFeedIssue(stock)
}
