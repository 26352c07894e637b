package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func TestFetchPriceParsesQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/AAPL" {
			t.Errorf("request path = %q, want /AAPL", r.URL.Path)
		}
		fmt.Fprint(w, `{"chart":{"result":[{"meta":{"symbol":"AAPL","regularMarketPrice":187.42}}]}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, 2*time.Second, zap.NewNop())
	price, err := client.FetchPrice(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("FetchPrice returned error: %v", err)
	}
	if !price.Equal(decimal.NewFromFloat(187.42)) {
		t.Errorf("price = %s, want 187.42", price)
	}
}

func TestFetchPriceFoldsFailuresIntoUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
		},
		{
			name: "malformed payload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "not json")
			},
		},
		{
			name: "provider error body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"chart":{"result":[],"error":{"code":"Not Found","description":"No data found"}}}`)
			},
		},
		{
			name: "empty result",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"chart":{"result":[]}}`)
			},
		},
		{
			name: "zero price",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"chart":{"result":[{"meta":{"symbol":"AAPL","regularMarketPrice":0}}]}}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewClient(server.URL, 2*time.Second, zap.NewNop())
			_, err := client.FetchPrice(context.Background(), "AAPL")
			if !errors.Is(err, ErrPriceUnavailable) {
				t.Errorf("err = %v, want ErrPriceUnavailable", err)
			}
		})
	}
}

func TestFetchPriceTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(server.URL, 50*time.Millisecond, zap.NewNop())
	_, err := client.FetchPrice(context.Background(), "AAPL")
	if !errors.Is(err, ErrPriceUnavailable) {
		t.Errorf("err = %v, want ErrPriceUnavailable on timeout", err)
	}
}
