// Package reddit fetches recent posts and comments from Reddit's public
// JSON listings and normalizes them into candidates.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pingbase/pingbase/internal/config"
	"github.com/pingbase/pingbase/internal/domain"
)

// ErrStatus is wrapped by every non-2xx response error.
var ErrStatus = errors.New("reddit: unexpected status")

// StatusError carries the HTTP status of a failed listing request.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("reddit fetch failed: %d %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// Limiter spaces outbound requests. *rate.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// NewThrottle returns a limiter that lets one request through immediately
// and then enforces at least interval between consecutive requests.
func NewThrottle(interval time.Duration) Limiter {
	if interval <= 0 {
		return NoopLimiter{}
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// NoopLimiter never waits.
type NoopLimiter struct{}

func (NoopLimiter) Wait(ctx context.Context) error { return ctx.Err() }

// Client talks to the Reddit JSON endpoints. All requests made through one
// Client share its limiter.
type Client struct {
	baseURL        string
	userAgent      string
	httpClient     *http.Client
	limiter        Limiter
	requestTimeout time.Duration
	excerptMax     int
	perSubLimit    int
	searchLimit    int
	now            func() time.Time
}

// NewClient builds a client from the reddit config section. A nil limiter
// gets a throttle built from cfg.RequestThrottleMs.
func NewClient(cfg config.RedditConfig, limiter Limiter) *Client {
	if limiter == nil {
		limiter = NewThrottle(cfg.ThrottleInterval())
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:      cfg.UserAgent,
		httpClient:     &http.Client{},
		limiter:        limiter,
		requestTimeout: cfg.RequestTimeout(),
		excerptMax:     cfg.ContentExcerptMax,
		perSubLimit:    cfg.PerSubredditLimit,
		searchLimit:    cfg.DefaultRequestLimit,
		now:            time.Now,
	}
}

// SubredditNew returns the newest items of one subreddit. A leading "r/"
// is accepted; a blank name yields no items and no request.
func (c *Client) SubredditNew(ctx context.Context, subreddit string, limit int) ([]domain.Candidate, error) {
	clean := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(subreddit), "r/"))
	if clean == "" {
		return nil, nil
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	endpoint := fmt.Sprintf("%s/r/%s/new.json?%s", c.baseURL, url.PathEscape(clean), q.Encode())
	return c.fetchListing(ctx, endpoint)
}

// Search runs a site-wide search. A blank query yields no items and no
// request.
func (c *Client) Search(ctx context.Context, query, sort string, limit int) ([]domain.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if sort == "" {
		sort = "new"
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("sort", sort)
	q.Set("limit", strconv.Itoa(limit))
	return c.fetchListing(ctx, c.baseURL+"/search.json?"+q.Encode())
}

func (c *Client) fetchListing(ctx context.Context, endpoint string) ([]domain.Candidate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for reddit throttle: %w", err)
	}

	reqCtx := ctx
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reddit request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var l listing
	if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
		return nil, fmt.Errorf("decoding reddit listing: %w", err)
	}
	return c.parseListing(l), nil
}
