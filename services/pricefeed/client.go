package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrPriceUnavailable is returned for every gateway failure mode: transport
// errors, timeouts, provider rate limits and unknown symbols all look the
// same to callers.
var ErrPriceUnavailable = errors.New("price unavailable")

// Fetcher retrieves the current price for a symbol.
type Fetcher interface {
	FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Client fetches quotes from a Yahoo-style chart API. Calls are paced by a
// local rate limiter so a large catalog refresh cannot hammer the provider.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
}

// NewClient creates a price feed client. The timeout bounds each request so
// one unresponsive symbol cannot stall an entire scan pass.
func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		log:        log,
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchPrice returns the current market price for symbol.
func (c *Client) FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	req.Header.Set("User-Agent", "stockalert/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("price feed request failed", zap.String("symbol", symbol), zap.Error(err))
		return decimal.Zero, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("price feed returned non-200",
			zap.String("symbol", symbol),
			zap.Int("status", resp.StatusCode),
		)
		return decimal.Zero, fmt.Errorf("%w: status %d", ErrPriceUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}

	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	if parsed.Chart.Error != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrPriceUnavailable, parsed.Chart.Error.Code)
	}
	if len(parsed.Chart.Result) == 0 || parsed.Chart.Result[0].Meta.RegularMarketPrice <= 0 {
		return decimal.Zero, fmt.Errorf("%w: no usable price for %s", ErrPriceUnavailable, symbol)
	}

	return decimal.NewFromFloat(parsed.Chart.Result[0].Meta.RegularMarketPrice), nil
}
