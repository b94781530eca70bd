// Package esi fetches paginated collections from EVE Swagger Interface
// endpoints and exposes them as page sources for the pagination package.
package esi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/eve-esi-pager/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the public ESI endpoint.
const DefaultBaseURL = "https://esi.evetech.net"

// Prometheus metrics for page requests.
var (
	esiPageRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esi_page_requests_total",
		Help: "Total ESI page requests by status",
	}, []string{"status"})

	esiPageRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "esi_page_request_duration_seconds",
		Help:    "ESI page request duration in seconds, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})

	esiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "esi_errors_total",
		Help: "Total ESI errors by class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is prefixed to every endpoint (default: DefaultBaseURL).
	BaseURL string

	// User-Agent header (REQUIRED by ESI)
	// Format: "AppName/Version (contact@example.com)"
	UserAgent string

	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client

	// Timeout bounds a single HTTP attempt when HTTPClient is nil.
	Timeout time.Duration

	// Retry configures backoff for server, network and error limit failures.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// Page is one page of an ESI collection.
type Page struct {
	// Number is the 1-based page index.
	Number int

	// Body is the raw JSON array.
	Body []byte

	// TotalPages is the X-Pages header, or 0 if absent.
	TotalPages int

	// Expires is the Expires header, or zero if absent.
	Expires time.Time
}

// Client performs ESI page requests.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	retry       RetryConfig
	rateLimiter *ratelimit.Tracker
	logger      zerolog.Logger
}

// New creates a new ESI client. tracker may be nil, in which case the
// client keeps its own in-memory error limit state.
func New(cfg Config, tracker *ratelimit.Tracker) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	logger := log.With().Str("component", "esi-client").Logger()

	if tracker == nil {
		tracker = ratelimit.NewTracker(nil, logger)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:   cfg.UserAgent,
		retry:       cfg.Retry,
		rateLimiter: tracker,
		logger:      logger,
	}, nil
}

// FetchPage GETs one page of endpoint. query is copied and gets the page
// parameter added.
func (c *Client) FetchPage(ctx context.Context, endpoint string, query url.Values, page int) (*Page, error) {
	start := time.Now()
	defer func() {
		esiPageRequestDuration.Observe(time.Since(start).Seconds())
	}()

	allowed, err := c.rateLimiter.Allow(ctx)
	if err != nil {
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		c.logger.Warn().Str("endpoint", endpoint).Int("page", page).Msg("Page request blocked by rate limiter")
		esiPageRequestsTotal.WithLabelValues("rate_limited").Inc()
		return nil, ErrBlocked
	}

	target := c.pageURL(endpoint, query, page)

	var result *Page
	err = retryWithBackoff(ctx, c.retry, c.logger, func() (ErrorClass, error) {
		p, errorClass, err := c.do(ctx, endpoint, target, page)
		if err != nil {
			return errorClass, err
		}
		result = p
		return "", nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("page", page).
		Int("total_pages", result.TotalPages).
		Int("bytes", len(result.Body)).
		Msg("Fetched ESI page")

	return result, nil
}

// do performs a single attempt.
func (c *Client) do(ctx context.Context, endpoint, target string, page int) (*Page, ErrorClass, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, ErrorClassClient, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
		errorClass := classify(0, err)
		esiErrorsTotal.WithLabelValues(string(errorClass)).Inc()
		esiPageRequestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Error().Err(err).Str("url", target).Msg("HTTP request failed")
		return nil, errorClass, &Error{Endpoint: endpoint, Page: page, Class: errorClass, Err: err}
	}
	defer resp.Body.Close()

	if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
	}

	esiPageRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if errorClass := classify(resp.StatusCode, nil); errorClass != "" {
		esiErrorsTotal.WithLabelValues(string(errorClass)).Inc()
		c.logger.Warn().
			Str("url", target).
			Int("status", resp.StatusCode).
			Str("error_class", string(errorClass)).
			Msg("ESI page request error")
		return nil, errorClass, &Error{
			Endpoint:   endpoint,
			Page:       page,
			StatusCode: resp.StatusCode,
			Class:      errorClass,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
		return nil, ErrorClassNetwork, &Error{
			Endpoint:   endpoint,
			Page:       page,
			StatusCode: resp.StatusCode,
			Class:      ErrorClassNetwork,
			Err:        fmt.Errorf("read body: %w", err),
		}
	}

	p := &Page{Number: page, Body: body}
	if v := resp.Header.Get("X-Pages"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.TotalPages = n
		} else {
			c.logger.Warn().Str("x_pages", v).Msg("Ignoring malformed X-Pages header")
		}
	}
	if v := resp.Header.Get("Expires"); v != "" {
		if t, err := http.ParseTime(v); err == nil {
			p.Expires = t
		}
	}
	return p, "", nil
}

func (c *Client) pageURL(endpoint string, query url.Values, page int) string {
	q := url.Values{}
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	q.Set("page", strconv.Itoa(page))

	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.baseURL + endpoint + "?" + q.Encode()
}

// isContextErr reports whether err came from the caller's context.
func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrContextCancelled)
}
