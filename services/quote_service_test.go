package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stockalert/models"
)

type stubFetcher struct {
	mu    sync.Mutex
	price decimal.Decimal
	err   error
	calls int
}

func (s *stubFetcher) FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return decimal.Zero, s.err
	}
	return s.price, nil
}

type stubIssueNotifier struct {
	mu     sync.Mutex
	issues []string
}

func (s *stubIssueNotifier) SendPriceFeedIssue(stock models.Stock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues = append(s.issues, stock.Symbol)
}

func newQuoteTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := models.MigrateStockModels(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func createStock(t *testing.T, db *gorm.DB, symbol string, price string, updatedAgo time.Duration) models.Stock {
	t.Helper()
	stock := models.Stock{Symbol: symbol, Name: symbol + " Inc.", Active: true}
	if price != "" {
		stock.LastPrice = decimal.RequireFromString(price)
		at := time.Now().UTC().Add(-updatedAgo)
		stock.LastUpdateTime = &at
	}
	if err := db.Create(&stock).Error; err != nil {
		t.Fatal(err)
	}
	return stock
}

func TestCurrentPriceServesFreshQuoteFromCache(t *testing.T) {
	db := newQuoteTestDB(t)
	fetcher := &stubFetcher{price: decimal.RequireFromString("200")}
	notifier := &stubIssueNotifier{}
	svc := NewQuoteService(db, fetcher, notifier, nil, 9*time.Minute, zap.NewNop())

	stock := createStock(t, db, "AAPL", "150.25", 2*time.Minute)

	price, err := svc.CurrentPrice(context.Background(), &stock)
	if err != nil {
		t.Fatalf("CurrentPrice returned error: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("150.25")) {
		t.Errorf("price = %s, want cached 150.25", price)
	}
	if fetcher.calls != 0 {
		t.Errorf("gateway calls = %d, want 0 for a fresh quote", fetcher.calls)
	}
}

func TestCurrentPriceRefreshesStaleQuote(t *testing.T) {
	db := newQuoteTestDB(t)
	fetcher := &stubFetcher{price: decimal.RequireFromString("200")}
	notifier := &stubIssueNotifier{}
	svc := NewQuoteService(db, fetcher, notifier, nil, 9*time.Minute, zap.NewNop())

	stock := createStock(t, db, "AAPL", "150.25", 15*time.Minute)
	before := *stock.LastUpdateTime

	price, err := svc.CurrentPrice(context.Background(), &stock)
	if err != nil {
		t.Fatalf("CurrentPrice returned error: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("200")) {
		t.Errorf("price = %s, want refreshed 200", price)
	}
	if fetcher.calls != 1 {
		t.Errorf("gateway calls = %d, want 1", fetcher.calls)
	}

	var fresh models.Stock
	if err := db.First(&fresh, stock.ID).Error; err != nil {
		t.Fatal(err)
	}
	if !fresh.LastPrice.Equal(decimal.RequireFromString("200")) {
		t.Errorf("persisted price = %s, want 200", fresh.LastPrice)
	}
	if fresh.LastUpdateTime == nil || !fresh.LastUpdateTime.After(before) {
		t.Error("quote timestamp was not advanced on refresh")
	}
}

func TestCurrentPriceFetchesWhenNeverUpdated(t *testing.T) {
	db := newQuoteTestDB(t)
	fetcher := &stubFetcher{price: decimal.RequireFromString("42")}
	notifier := &stubIssueNotifier{}
	svc := NewQuoteService(db, fetcher, notifier, nil, 9*time.Minute, zap.NewNop())

	stock := createStock(t, db, "NEWCO", "", 0)

	price, err := svc.CurrentPrice(context.Background(), &stock)
	if err != nil {
		t.Fatalf("CurrentPrice returned error: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("42")) {
		t.Errorf("price = %s, want 42", price)
	}
	if fetcher.calls != 1 {
		t.Errorf("gateway calls = %d, want 1", fetcher.calls)
	}
}

func TestCurrentPriceFailureKeepsTimestampAndDedupesIssues(t *testing.T) {
	db := newQuoteTestDB(t)
	fetcher := &stubFetcher{err: errors.New("provider down")}
	notifier := &stubIssueNotifier{}
	svc := NewQuoteService(db, fetcher, notifier, nil, 9*time.Minute, zap.NewNop())

	stock := createStock(t, db, "AAPL", "150.25", 15*time.Minute)
	before := *stock.LastUpdateTime

	// Two alerts on the same symbol both resolve the price in one pass.
	if _, err := svc.CurrentPrice(context.Background(), &stock); err == nil {
		t.Fatal("expected error from failed refresh")
	}
	if _, err := svc.CurrentPrice(context.Background(), &stock); err == nil {
		t.Fatal("expected error from failed refresh")
	}

	var fresh models.Stock
	if err := db.First(&fresh, stock.ID).Error; err != nil {
		t.Fatal(err)
	}
	if fresh.LastUpdateTime == nil || !fresh.LastUpdateTime.Equal(before) {
		t.Error("failed refresh must not advance the quote timestamp")
	}
	if !fresh.LastPrice.Equal(decimal.RequireFromString("150.25")) {
		t.Error("failed refresh must not change the stored price")
	}

	// Both failures fetch (retry is immediate), but only one issue email
	// goes out per symbol per refresh window.
	if fetcher.calls != 2 {
		t.Errorf("gateway calls = %d, want 2", fetcher.calls)
	}
	if len(notifier.issues) != 1 {
		t.Errorf("issue notifications = %d, want 1", len(notifier.issues))
	}
}

func TestCurrentPriceBySymbolUnknownSymbol(t *testing.T) {
	db := newQuoteTestDB(t)
	svc := NewQuoteService(db, &stubFetcher{}, &stubIssueNotifier{}, nil, 9*time.Minute, zap.NewNop())

	_, _, err := svc.CurrentPriceBySymbol(context.Background(), "NOPE")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("err = %v, want gorm.ErrRecordNotFound", err)
	}
}
