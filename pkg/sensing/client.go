package sensing

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

	"golang.org/x/time/rate"
)

// Scan is the payload returned by the sensing collaborator for one parcel.
type Scan struct {
	Satellite SatelliteReport  `json:"satellite"`
	Elevation *ElevationReport `json:"elevation,omitempty"`
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithRetry sets the retry budget and the first backoff step.
func WithRetry(maxRetries int, baseBackoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.baseBackoff = baseBackoff
	}
}

// Client fetches scans from the remote sensing collaborator.
type Client struct {
	baseURL     string
	http        *http.Client
	limiter     *rate.Limiter
	breaker     *breaker
	maxRetries  int
	baseBackoff time.Duration
	logger      *slog.Logger
}

// NewClient returns a Client for the collaborator at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Limit(5), 10),
		breaker:     newBreaker(5, 30*time.Second),
		maxRetries:  3,
		baseBackoff: 100 * time.Millisecond,
		logger:      slog.Default().With("component", "sensing_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ErrCircuitOpen is returned while the collaborator is considered down.
var ErrCircuitOpen = errors.New("sensing collaborator circuit open")

// Fetch retrieves the raw scan for an application.
// Server errors and transport failures are retried with exponential backoff.
func (c *Client) Fetch(ctx context.Context, applicationID string) (Scan, error) {
	ok, trial := c.breaker.allow()
	if !ok {
		return Scan{}, ErrCircuitOpen
	}
	if trial {
		defer c.breaker.release()
	}

	endpoint := c.baseURL + "/v1/scans/" + url.PathEscape(applicationID)
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.baseBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return Scan{}, ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return Scan{}, err
		}

		scan, retry, err := c.fetchOnce(ctx, endpoint)
		if err == nil {
			c.breaker.success()
			return scan, nil
		}
		lastErr = err
		if !retry {
			return Scan{}, err
		}
		c.logger.Warn("sensing fetch failed", "application_id", applicationID, "attempt", attempt+1, "error", err)
	}

	c.breaker.failure()
	return Scan{}, fmt.Errorf("fetch scan %s: %w", applicationID, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, endpoint string) (Scan, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Scan{}, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Scan{}, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Scan{}, true, fmt.Errorf("sensing collaborator returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Scan{}, false, fmt.Errorf("sensing collaborator returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var scan Scan
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&scan); err != nil {
		return Scan{}, false, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	return scan, false, nil
}

// breaker opens after threshold consecutive failed fetches. Once resetAfter
// has elapsed it admits a single trial fetch; the others keep failing fast
// until that trial settles.
type breaker struct {
	mu         sync.Mutex
	failures   int
	threshold  int
	open       bool
	trial      bool
	openedAt   time.Time
	resetAfter time.Duration
	now        func() time.Time
}

func newBreaker(threshold int, resetAfter time.Duration) *breaker {
	return &breaker{threshold: threshold, resetAfter: resetAfter, now: time.Now}
}

// allow reports whether a fetch may proceed and whether it is the trial
// fetch of a half-open breaker.
func (b *breaker) allow() (ok, trial bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true, false
	}
	if b.trial || b.now().Sub(b.openedAt) <= b.resetAfter {
		return false, false
	}
	b.trial = true
	return true, true
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.open = false
	b.trial = false
}

func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.trial = false
	if b.failures >= b.threshold {
		b.open = true
		b.openedAt = b.now()
	}
}

// release ends a trial that settled without a verdict on the collaborator,
// such as a cancelled context.
func (b *breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trial = false
}
