package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/dexgate/internal/config"
	"github.com/GoPolymarket/dexgate/internal/pkg/logger"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned for 404 responses. It does not count against the breaker.
var ErrNotFound = errors.New("resource not found")

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Body)
}

// Client is a rate-limited JSON GET client for one upstream API. Calls are grouped into
// scopes, each behind its own circuit breaker, so a failing chain or endpoint family cannot
// trip the breaker for the others.
type Client struct {
	name     string
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	failures uint32
	cooldown time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewClient(name string, cfg config.HTTPSourceConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	qps := cfg.QPS
	if qps <= 0 {
		qps = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = time.Minute
	}

	return &Client{
		name:     name,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     httpClient,
		limiter:  rate.NewLimiter(rate.Limit(qps), burst),
		failures: failures,
		cooldown: cooldown,
		log:      logger.Component("datasource").With("source", name),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (c *Client) Name() string { return c.name }

// breaker returns the scope's breaker, creating it on first use.
func (c *Client) breaker(scope string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[scope]; ok {
		return cb
	}
	name := c.name
	if scope != "" {
		name += ":" + scope
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     c.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.failures
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	c.breakers[scope] = cb
	return cb
}

// isBreakerSuccess treats caller mistakes as healthy upstream responses. Only transport
// errors, 5xx and 429 count toward tripping.
func isBreakerSuccess(err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
	}
	return false
}

// GetJSON waits for a rate-limit token, then fetches path through scope's breaker and
// decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, scope, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s rate limit wait: %w", c.name, err)
	}
	_, err := c.breaker(scope).Execute(func() (interface{}, error) {
		return nil, c.do(ctx, path, query, out)
	})
	if err != nil {
		return fmt.Errorf("%s %s: %w", c.name, path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
