// Command esi-pager streams every item of a paginated ESI endpoint as JSON
// lines, fetching one page at a time.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/eve-esi-pager/pkg/esi"
	"github.com/Sternrassler/eve-esi-pager/pkg/logging"
	"github.com/Sternrassler/eve-esi-pager/pkg/metrics"
	"github.com/Sternrassler/eve-esi-pager/pkg/pagecache"
	"github.com/Sternrassler/eve-esi-pager/pkg/pagination"
	"github.com/Sternrassler/eve-esi-pager/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
)

// options collects the flags of the iterate command.
type options struct {
	BaseURL      string
	UserAgent    string
	RedisURL     string
	Endpoint     string
	Query        url.Values
	PageSize     int
	Limit        int
	FetchTimeout time.Duration
	CacheTTL     time.Duration
	Refresh      bool
}

func main() {
	app := &cli.Command{
		Name:    "esi-pager",
		Usage:   "Stream paginated EVE ESI collections one page at a time",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (debug, info, warn, error, disabled)",
				Sources: cli.EnvVars("LOG_LEVEL"),
				Value:   "info",
			},
			&cli.BoolFlag{
				Name:    "log-pretty",
				Usage:   "human-readable console logs instead of JSON",
				Sources: cli.EnvVars("LOG_PRETTY"),
			},
			&cli.StringFlag{
				Name:    "esi-base-url",
				Usage:   "ESI base URL",
				Sources: cli.EnvVars("ESI_BASE_URL"),
				Value:   esi.DefaultBaseURL,
			},
			&cli.StringFlag{
				Name:    "user-agent",
				Usage:   "User-Agent sent to ESI (AppName/Version (contact))",
				Sources: cli.EnvVars("USER_AGENT"),
				Value:   "eve-esi-pager/" + version,
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis address or redis:// URL for the page cache and shared error limit; empty disables",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "address serving /metrics and /health; empty disables",
				Sources: cli.EnvVars("METRICS_ADDR"),
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			level := logging.LogLevel(c.String("log-level"))
			if err := logging.ValidateLevel(level); err != nil {
				return ctx, fmt.Errorf("failed to parse log level: %w", err)
			}

			logging.Setup(logging.Config{
				Level:  level,
				Pretty: c.Bool("log-pretty"),
				Output: os.Stderr,
			})

			if addr := c.String("metrics-addr"); addr != "" {
				go serveMetrics(addr)
			}

			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:      "iterate",
				Usage:     "Print every item of a paginated endpoint as a JSON line",
				ArgsUsage: " ",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "endpoint",
						Usage:    "ESI path, e.g. /v1/markets/10000002/orders/",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "query",
						Usage: "fixed query parameter as key=value (repeatable)",
					},
					&cli.IntFlag{
						Name:  "page-size",
						Usage: "items per ESI page for this endpoint; must equal its page length",
						Value: 1000,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "stop after this many items; 0 reads everything",
					},
					&cli.DurationFlag{
						Name:  "fetch-timeout",
						Usage: "bound for a single page fetch, retries included",
						Value: 2 * time.Minute,
					},
					&cli.DurationFlag{
						Name:  "cache-ttl",
						Usage: "lifetime of cached pages",
						Value: pagecache.DefaultTTL,
					},
					&cli.BoolFlag{
						Name:  "refresh",
						Usage: "purge cached pages of this endpoint first",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					query, err := parseQuery(c.StringSlice("query"))
					if err != nil {
						return err
					}

					opts := options{
						BaseURL:      c.String("esi-base-url"),
						UserAgent:    c.String("user-agent"),
						RedisURL:     c.String("redis-url"),
						Endpoint:     c.String("endpoint"),
						Query:        query,
						PageSize:     int(c.Int("page-size")),
						Limit:        int(c.Int("limit")),
						FetchTimeout: c.Duration("fetch-timeout"),
						CacheTTL:     c.Duration("cache-ttl"),
						Refresh:      c.Bool("refresh"),
					}

					ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
					defer stop()

					n, err := iterate(ctx, opts, os.Stdout)
					log.Info().Str("endpoint", opts.Endpoint).Int("items", n).Msg("Iteration finished")
					return err
				},
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("esi-pager failed")
	}
}

// iterate writes the items of opts.Endpoint to out, one JSON document per
// line, and returns how many it wrote.
func iterate(ctx context.Context, opts options, out io.Writer) (int, error) {
	var redisClient *redis.Client
	if opts.RedisURL != "" {
		var err error
		redisClient, err = connectRedis(ctx, opts.RedisURL)
		if err != nil {
			return 0, err
		}
		defer redisClient.Close()
	}

	tracker := ratelimit.NewTracker(redisClient, logging.NewLogger("ratelimit"))

	cfg := esi.DefaultConfig(opts.UserAgent)
	cfg.BaseURL = opts.BaseURL
	client, err := esi.New(cfg, tracker)
	if err != nil {
		return 0, fmt.Errorf("create ESI client: %w", err)
	}

	var fetcher pagination.Fetcher[json.RawMessage] = esi.NewPageFetcher[json.RawMessage](client, opts.Endpoint, opts.Query)
	if redisClient != nil {
		cached := pagecache.NewCached(fetcher, pagecache.NewManager(redisClient), opts.Endpoint, opts.Query, opts.CacheTTL)
		if opts.Refresh {
			n, err := cached.Purge(ctx)
			if err != nil {
				return 0, fmt.Errorf("purge page cache: %w", err)
			}
			log.Info().Int("pages", n).Str("endpoint", opts.Endpoint).Msg("Purged cached pages")
		}
		fetcher = cached
	}

	it, err := pagination.New(fetcher, pagination.Config{
		Page:         1,
		PageSize:     opts.PageSize,
		FetchTimeout: opts.FetchTimeout,
		Name:         opts.Endpoint,
	})
	if err != nil {
		return 0, err
	}
	defer it.Close()

	enc := json.NewEncoder(out)
	written := 0
	for item, err := range it.All(ctx) {
		if err != nil {
			return written, err
		}
		if err := enc.Encode(item); err != nil {
			return written, fmt.Errorf("write item: %w", err)
		}
		written++
		if opts.Limit > 0 && written >= opts.Limit {
			break
		}
	}
	return written, nil
}

// parseQuery turns key=value pairs into query parameters.
func parseQuery(pairs []string) (url.Values, error) {
	query := url.Values{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid query parameter %q: want key=value", pair)
		}
		if key == "page" {
			return nil, errors.New("the page query parameter is set by the pager")
		}
		query.Add(key, value)
	}
	return query, nil
}

// connectRedis accepts a plain host:port or a redis:// URL.
func connectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts := &redis.Options{Addr: redisURL}
	if strings.Contains(redisURL, "://") {
		var err error
		opts, err = redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	log.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	return client, nil
}

func serveMetrics(addr string) {
	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := http.ListenAndServe(addr, newMetricsMux()); err != nil {
		log.Error().Err(err).Str("addr", addr).Msg("Metrics server stopped")
	}
}

func newMetricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}
