// Package testutil provides a paginated mock ESI server for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockESIResponse defines the behavior for a mock ESI endpoint response.
type MockESIResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MarketOrder is the subset of an ESI market order the mock serves.
type MarketOrder struct {
	OrderID      int64   `json:"order_id"`
	TypeID       int32   `json:"type_id"`
	Price        float64 `json:"price"`
	VolumeRemain int32   `json:"volume_remain"`
	IsBuyOrder   bool    `json:"is_buy_order"`
}

// MockESI is a configurable mock ESI server for testing.
type MockESI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	requestCount int
	pageRequests map[string][]int
	lastHeader   http.Header
}

// NewMockESI creates a new mock ESI server.
func NewMockESI() *MockESI {
	mock := &MockESI{
		handlers:     make(map[string]http.HandlerFunc),
		pageRequests: make(map[string][]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))

		mock.mu.Lock()
		mock.requestCount++
		mock.lastHeader = r.Header.Clone()
		mock.pageRequests[r.URL.Path] = append(mock.pageRequests[r.URL.Path], page)
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if !exists {
			writeESIHeaders(w, 100)
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": "Requested page does not exist!"}`))
			return
		}
		handler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockESI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockESI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockESI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pageRequests = make(map[string][]int)
	m.lastHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockESI) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path, whatever the page.
func (m *MockESI) SetResponse(path string, resp MockESIResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetPagedResponse serves items split into pages of perPage, the way ESI
// serves collections: ?page=N is 1-based, every page carries X-Pages and
// pages past the last one are 404.
func SetPagedResponse[T any](m *MockESI, path string, items []T, perPage int) {
	pages := (len(items) + perPage - 1) / perPage
	if pages == 0 {
		pages = 1
	}

	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if v := r.URL.Query().Get("page"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeESIHeaders(w, 99)
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error": "page must be a positive integer"}`))
				return
			}
			page = n
		}

		writeESIHeaders(w, 100)
		w.Header().Set("X-Pages", strconv.Itoa(pages))
		if page > pages {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": "Requested page does not exist!"}`))
			return
		}

		lo := (page - 1) * perPage
		hi := min(lo+perPage, len(items))
		body, err := json.Marshal(items[lo:hi])
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Expires", time.Now().Add(5*time.Minute).Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	})
}

// SetMarketOrders serves count generated orders for a region.
func (m *MockESI) SetMarketOrders(regionID, count, perPage int) []MarketOrder {
	orders := MarketOrders(count)
	SetPagedResponse(m, MarketOrdersPath(regionID), orders, perPage)
	return orders
}

// MarketOrdersPath returns the market orders endpoint for a region.
func MarketOrdersPath(regionID int) string {
	return fmt.Sprintf("/v1/markets/%d/orders/", regionID)
}

// MarketOrders generates count orders with order IDs 1..count.
func MarketOrders(count int) []MarketOrder {
	orders := make([]MarketOrder, count)
	for i := range orders {
		orders[i] = MarketOrder{
			OrderID:      int64(i + 1),
			TypeID:       34,
			Price:        5.0 + float64(i)/100,
			VolumeRemain: int32(1000 + i),
			IsBuyOrder:   i%2 == 0,
		}
	}
	return orders
}

// RequestCount returns the number of requests made to the server.
func (m *MockESI) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PageRequests returns the page numbers requested for path, in order.
func (m *MockESI) PageRequests(path string) []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.pageRequests[path]...)
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockESI) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader
}

// FailTimes wraps the handler for path so its first n requests get resp.
func (m *MockESI) FailTimes(path string, n int, resp MockESIResponse) {
	m.mu.Lock()
	next := m.handlers[path]
	m.mu.Unlock()

	var mu sync.Mutex
	remaining := n
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		fail := remaining > 0
		if fail {
			remaining--
		}
		mu.Unlock()

		if fail || next == nil {
			for key, value := range resp.Headers {
				w.Header().Set(key, value)
			}
			w.WriteHeader(resp.StatusCode)
			w.Write([]byte(resp.Body))
			return
		}
		next(w, r)
	})
}

func writeESIHeaders(w http.ResponseWriter, remain int) {
	w.Header().Set("X-ESI-Error-Limit-Remain", strconv.Itoa(remain))
	w.Header().Set("X-ESI-Error-Limit-Reset", "60")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockESIResponse {
	return MockESIResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"X-ESI-Error-Limit-Remain": "95",
			"X-ESI-Error-Limit-Reset":  "60",
			"Content-Type":             "application/json; charset=utf-8",
		},
	}
}

// NewESIRateLimitResponse creates a 520 ESI error limit response.
func NewESIRateLimitResponse() MockESIResponse {
	return MockESIResponse{
		StatusCode: 520,
		Body:       `{"error": "ESI rate limit exceeded"}`,
		Headers: map[string]string{
			"X-ESI-Error-Limit-Remain": "30",
			"X-ESI-Error-Limit-Reset":  "120",
			"Content-Type":             "application/json; charset=utf-8",
		},
	}
}

// NewClientErrorResponse creates a 400 Bad Request response.
func NewClientErrorResponse() MockESIResponse {
	return MockESIResponse{
		StatusCode: http.StatusBadRequest,
		Body:       `{"error": "Bad request"}`,
		Headers: map[string]string{
			"X-ESI-Error-Limit-Remain": "99",
			"X-ESI-Error-Limit-Reset":  "60",
			"Content-Type":             "application/json; charset=utf-8",
		},
	}
}

// NewCriticalErrorLimitResponse creates a 500 that leaves the error limit critical.
func NewCriticalErrorLimitResponse() MockESIResponse {
	return MockESIResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"X-ESI-Error-Limit-Remain": "2",
			"X-ESI-Error-Limit-Reset":  "60",
			"Content-Type":             "application/json; charset=utf-8",
		},
	}
}
