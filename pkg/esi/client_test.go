package esi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/eve-esi-pager/internal/testutil"
	"github.com/Sternrassler/eve-esi-pager/pkg/ratelimit"
	"github.com/rs/zerolog"
)

const testUserAgent = "TestApp/1.0.0 (test@example.com)"

// newTestClient returns a client against the mock with fast retries.
func newTestClient(t *testing.T, mock *testutil.MockESI) *Client {
	t.Helper()

	cfg := DefaultConfig(testUserAgent)
	cfg.BaseURL = mock.URL()
	cfg.Retry = fastRetry(3)

	client, err := New(cfg, ratelimit.NewTracker(nil, zerolog.Nop()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{name: "valid config", config: DefaultConfig(testUserAgent)},
		{name: "missing user agent", config: DefaultConfig(""), expectError: true},
		{name: "empty base url uses default", config: Config{UserAgent: testUserAgent}},
		{name: "invalid base url", config: Config{UserAgent: testUserAgent, BaseURL: "http://[::1"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config, nil)
			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if client.rateLimiter == nil {
				t.Error("client should create its own tracker")
			}
			if client.retry.MaxAttempts == 0 {
				t.Error("retry config should default")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(testUserAgent)
	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.UserAgent != testUserAgent {
		t.Errorf("UserAgent = %q, want %q", cfg.UserAgent, testUserAgent)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
}

func TestPageURL(t *testing.T) {
	client, err := New(Config{UserAgent: testUserAgent, BaseURL: "https://esi.example/"}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	query := url.Values{"order_type": {"sell"}}
	got := client.pageURL("v1/markets/10000002/orders/", query, 3)
	want := "https://esi.example/v1/markets/10000002/orders/?order_type=sell&page=3"
	if got != want {
		t.Errorf("pageURL() = %q, want %q", got, want)
	}
	if query.Has("page") {
		t.Error("pageURL must not modify the caller's query")
	}
}

func TestFetchPage(t *testing.T) {
	mock := testutil.NewMockESI()
	defer mock.Close()
	mock.SetMarketOrders(10000002, 25, 10)

	client := newTestClient(t, mock)
	page, err := client.FetchPage(context.Background(), testutil.MarketOrdersPath(10000002), nil, 2)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}

	if page.Number != 2 {
		t.Errorf("Number = %d, want 2", page.Number)
	}
	if page.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", page.TotalPages)
	}
	if page.Expires.IsZero() {
		t.Error("Expires should be parsed")
	}
	if !strings.Contains(string(page.Body), `"order_id":11`) {
		t.Errorf("page 2 should start at order 11, got %s", page.Body)
	}
	if ua := mock.LastRequestHeader().Get("User-Agent"); ua != testUserAgent {
		t.Errorf("User-Agent = %q, want %q", ua, testUserAgent)
	}
}

func TestFetchPage_RetryOnServerError(t *testing.T) {
	mock := testutil.NewMockESI()
	defer mock.Close()
	path := testutil.MarketOrdersPath(1)
	mock.SetMarketOrders(1, 5, 10)
	mock.FailTimes(path, 2, testutil.NewServerErrorResponse())

	client := newTestClient(t, mock)
	page, err := client.FetchPage(context.Background(), path, nil, 1)
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if page.TotalPages != 1 {
		t.Errorf("TotalPages = %d, want 1", page.TotalPages)
	}
	if n := mock.RequestCount(); n != 3 {
		t.Errorf("requests = %d, want 3", n)
	}
}

func TestFetchPage_RetryOnRateLimit(t *testing.T) {
	mock := testutil.NewMockESI()
	defer mock.Close()
	path := testutil.MarketOrdersPath(1)
	mock.SetMarketOrders(1, 5, 10)
	mock.FailTimes(path, 1, testutil.NewESIRateLimitResponse())

	client := newTestClient(t, mock)
	if _, err := client.FetchPage(context.Background(), path, nil, 1); err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if n := mock.RequestCount(); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
}

func TestFetchPage_NoRetryOnClientError(t *testing.T) {
	mock := testutil.NewMockESI()
	defer mock.Close()
	path := testutil.MarketOrdersPath(1)
	mock.SetResponse(path, testutil.NewClientErrorResponse())

	client := newTestClient(t, mock)
	_, err := client.FetchPage(context.Background(), path, nil, 1)

	var esiErr *Error
	if !errors.As(err, &esiErr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if esiErr.Class != ErrorClassClient {
		t.Errorf("ErrorClass = %q, want %q", esiErr.Class, ErrorClassClient)
	}
	if n := mock.RequestCount(); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestFetchPage_RetryExhausted(t *testing.T) {
	mock := testutil.NewMockESI()
	defer mock.Close()
	path := testutil.MarketOrdersPath(1)
	mock.SetResponse(path, testutil.NewServerErrorResponse())

	client := newTestClient(t, mock)
	_, err := client.FetchPage(context.Background(), path, nil, 1)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("error = %v, want %v", err, ErrRetryExhausted)
	}
	if n := mock.RequestCount(); n != 3 {
		t.Errorf("requests = %d, want 3", n)
	}
}

func TestFetchPage_RateLimitBlock(t *testing.T) {
	mock := testutil.NewMockESI()
	defer mock.Close()
	path := testutil.MarketOrdersPath(1)
	mock.SetMarketOrders(1, 5, 10)

	client := newTestClient(t, mock)

	h := http.Header{}
	h.Set("X-ESI-Error-Limit-Remain", "1")
	h.Set("X-ESI-Error-Limit-Reset", "60")
	if err := client.rateLimiter.UpdateFromHeaders(context.Background(), h); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}

	_, err := client.FetchPage(context.Background(), path, nil, 1)
	if !errors.Is(err, ErrBlocked) {
		t.Errorf("error = %v, want %v", err, ErrBlocked)
	}
	if n := mock.RequestCount(); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestFetchPage_ContextCancelled(t *testing.T) {
	mock := testutil.NewMockESI()
	defer mock.Close()
	path := testutil.MarketOrdersPath(1)
	mock.SetResponse(path, testutil.MockESIResponse{StatusCode: http.StatusOK, Body: "[]", Delay: time.Second})

	client := newTestClient(t, mock)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.FetchPage(ctx, path, nil, 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want %v", err, context.DeadlineExceeded)
	}
}
