package riot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"

	"github.com/riot-match-ingestor/internal/domain"
	"github.com/riot-match-ingestor/internal/metrics"
)

const (
	defaultRequestTimeout     = 10 * time.Second
	defaultMaxAttempts        = 3
	defaultBackoffBase        = time.Second
	defaultRetryAfterFallback = 60 * time.Second

	// Match detail payloads are ~100KB; anything past this is not a Riot response
	maxBodyBytes = 16 << 20

	tokenHeader = "X-Riot-Token"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Options configures a Client
type Options struct {
	APIKey             string
	BaseURL            string // overrides https://{routing}.api.riotgames.com
	RequestTimeout     time.Duration
	PacingDelay        time.Duration
	MaxAttempts        int
	BackoffBase        time.Duration
	RetryAfterFallback time.Duration
	HTTPClient         *http.Client
	Metrics            *metrics.Metrics
}

// Client is a paced, retrying Riot API client. One Client owns one pacing
// gate: every goroutine issuing requests through it shares the same limiter.
type Client struct {
	apiKey             string
	baseURL            string
	httpClient         *http.Client
	limiter            *rate.Limiter
	maxAttempts        int
	backoffBase        time.Duration
	retryAfterFallback time.Duration
	metrics            *metrics.Metrics
	logger             *slog.Logger

	// sleep blocks for d or until ctx is done
	sleep func(ctx context.Context, d time.Duration) error
}

// FetchError is returned when a request exhausted its attempt budget
type FetchError struct {
	Endpoint   string
	Attempts   int
	LastStatus int
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("failed to fetch %s after %d attempts", e.Endpoint, e.Attempts)
	if e.LastStatus != 0 {
		msg += fmt.Sprintf(" (last status %d)", e.LastStatus)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{domain.ErrFetchExhausted}
	}
	return []error{domain.ErrFetchExhausted, e.Err}
}

// NewClient creates a new Riot API client
func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: riot api key is required", domain.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.PacingDelay > 0 {
		limit = rate.Every(opts.PacingDelay)
	}

	c := &Client{
		apiKey:             opts.APIKey,
		baseURL:            strings.TrimRight(opts.BaseURL, "/"),
		httpClient:         httpClient,
		limiter:            rate.NewLimiter(limit, 1),
		maxAttempts:        opts.MaxAttempts,
		backoffBase:        opts.BackoffBase,
		retryAfterFallback: opts.RetryAfterFallback,
		metrics:            opts.Metrics,
		logger:             logger,
		sleep:              sleepContext,
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.backoffBase <= 0 {
		c.backoffBase = defaultBackoffBase
	}
	if c.retryAfterFallback <= 0 {
		c.retryAfterFallback = defaultRetryAfterFallback
	}

	return c, nil
}

// Endpoint builds the absolute URL of path on the routing's regional host
func (c *Client) Endpoint(routing, path string) string {
	if c.baseURL != "" {
		return c.baseURL + path
	}
	return fmt.Sprintf("https://%s.api.riotgames.com%s", routing, path)
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// Request issues a paced GET against endpoint. A 404 is reported as
// NotFound, not as an error. 429, other statuses and transport errors are
// retried until the attempt budget runs out, which yields a *FetchError.
func (c *Client) Request(ctx context.Context, endpoint string, query url.Values) (domain.Lookup[[]byte], error) {
	fullURL := endpoint
	if encoded := query.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	var (
		lastStatus int
		lastErr    error
	)
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.NotFound[[]byte](), fmt.Errorf("waiting for pacing gate: %w", err)
		}

		resp, err := c.do(ctx, fullURL)
		var wait time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return domain.NotFound[[]byte](), ctx.Err()
			}
			c.metrics.ObserveAPIResponse(0)
			lastStatus, lastErr = 0, err
			wait = c.backoff(attempt)
			c.logger.Warn("riot request failed",
				"endpoint", endpoint,
				"attempt", attempt+1,
				"error", err,
			)
			c.metrics.IncAPIRetry("transport")

		case resp.status == http.StatusOK:
			c.metrics.ObserveAPIResponse(resp.status)
			return domain.Found(resp.body), nil

		case resp.status == http.StatusNotFound:
			c.metrics.ObserveAPIResponse(resp.status)
			c.logger.Warn("resource not found", "endpoint", endpoint)
			return domain.NotFound[[]byte](), nil

		case resp.status == http.StatusTooManyRequests:
			c.metrics.ObserveAPIResponse(resp.status)
			lastStatus, lastErr = resp.status, nil
			wait = c.retryAfter(resp.header)
			c.logger.Warn("rate limit hit",
				"endpoint", endpoint,
				"attempt", attempt+1,
				"wait", wait,
			)
			c.metrics.IncAPIRetry("rate_limited")

		default:
			c.metrics.ObserveAPIResponse(resp.status)
			lastStatus, lastErr = resp.status, nil
			wait = c.backoff(attempt)
			c.logger.Error("riot api error",
				"endpoint", endpoint,
				"status", resp.status,
				"attempt", attempt+1,
				"body", abbreviate(resp.body),
			)
			c.metrics.IncAPIRetry("status")
		}

		if attempt == c.maxAttempts-1 {
			break
		}
		if err := c.sleep(ctx, wait); err != nil {
			return domain.NotFound[[]byte](), err
		}
	}

	return domain.NotFound[[]byte](), &FetchError{
		Endpoint:   endpoint,
		Attempts:   c.maxAttempts,
		LastStatus: lastStatus,
		Err:        lastErr,
	}
}

func (c *Client) do(ctx context.Context, fullURL string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(tokenHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
}

// backoff returns base * 2^attempt for a zero-based attempt
func (c *Client) backoff(attempt int) time.Duration {
	return c.backoffBase * time.Duration(1<<attempt)
}

// retryAfter reads the Retry-After seconds the server asked for
func (c *Client) retryAfter(h http.Header) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return c.retryAfterFallback
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return c.retryAfterFallback
	}
	return time.Duration(secs) * time.Second
}

func (c *Client) decode(body []byte, target any) error {
	if err := jsonAPI.Unmarshal(body, target); err != nil {
		return fmt.Errorf("decode riot payload: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func abbreviate(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
