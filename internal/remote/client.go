// Package remote fetches records from the remote CRM, one page or one
// record at a time, under the shared rate limiter and retry policy.
package remote

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/agentstation/crmsync/internal/transport"
	"github.com/agentstation/crmsync/pkg/backoff"
	"github.com/agentstation/crmsync/pkg/constants"
	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/logging"
	"github.com/agentstation/crmsync/pkg/ratelimit"
	"github.com/agentstation/crmsync/pkg/records"
)

// Config describes the remote CRM endpoints.
type Config struct {
	BaseURL      string
	ListPath     string
	DetailPath   string // may contain {id}; otherwise the id is appended
	Token        string
	APIKey       string
	APIKeyHeader string
	PageSize     int
	PageParam    string
	LimitParam   string
	Timeout      time.Duration
}

// Validate checks that the endpoint configuration is usable.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.NewConfigError("remote", "base URL is required", nil)
	}
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return errors.NewConfigError("remote", "base URL is invalid", err)
	}
	if strings.TrimSpace(c.Token) == "" && strings.TrimSpace(c.APIKey) == "" {
		return errors.NewConfigError("remote", "a bearer token or API key is required", nil)
	}
	if c.PageSize < 1 || c.PageSize > constants.MaxPageSize {
		return errors.NewConfigError("remote", "page size must be between 1 and "+strconv.Itoa(constants.MaxPageSize), nil)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.ListPath == "" {
		c.ListPath = "/clients"
	}
	if c.DetailPath == "" {
		c.DetailPath = strings.TrimRight(c.ListPath, "/") + "/{id}"
	}
	if c.APIKeyHeader == "" {
		c.APIKeyHeader = constants.DefaultAPIKeyHeader
	}
	if c.PageSize == 0 {
		c.PageSize = constants.DefaultPageSize
	}
	if c.PageParam == "" {
		c.PageParam = "page"
	}
	if c.LimitParam == "" {
		c.LimitParam = "limit"
	}
}

// Page is one list response.
type Page struct {
	Number  int
	Records []records.Raw
	HasMore bool
}

// RateLimitEvent describes a 401/429 response about to be retried.
type RateLimitEvent struct {
	Endpoint string
	Page     int
	RecordID string
	Status   int
	Attempt  int
	Wait     time.Duration
}

// Client talks to the remote CRM.
type Client struct {
	cfg     Config
	http    *transport.Client
	limiter *ratelimit.Limiter
	policy  backoff.Policy

	onRateLimited func(RateLimitEvent)

	listCalls   atomic.Int64
	detailCalls atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithLimiter shares a rate limiter with the client.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithPolicy sets the retry policy for 401/429 responses.
func WithPolicy(p backoff.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = transport.New(c.auth(), transport.WithHTTPClient(h))
	}
}

// WithRateLimitHook registers a callback invoked before each cooldown.
func WithRateLimitHook(fn func(RateLimitEvent)) Option {
	return func(c *Client) { c.onRateLimited = fn }
}

// New creates a remote client. The configuration is validated first, so a
// missing endpoint or credential fails before any network activity.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		policy: backoff.Default(),
	}
	c.http = transport.New(c.auth(), transport.WithTimeout(cfg.Timeout))
	for _, opt := range opts {
		opt(c)
	}
	if err := c.policy.Validate(); err != nil {
		return nil, errors.NewConfigError("remote", "invalid retry policy", err)
	}
	return c, nil
}

func (c *Client) auth() transport.Authenticator {
	return transport.BearerWithKey(c.cfg.Token, c.cfg.APIKeyHeader, c.cfg.APIKey)
}

// PageSize returns the configured page size.
func (c *Client) PageSize() int {
	return c.cfg.PageSize
}

// ListCalls returns the number of list requests issued, retries included.
func (c *Client) ListCalls() int {
	return int(c.listCalls.Load())
}

// DetailCalls returns the number of detail requests issued, retries included.
func (c *Client) DetailCalls() int {
	return int(c.detailCalls.Load())
}

// FetchPage fetches one page (1-based). HasMore is true iff the page came
// back full, so a last page that is exactly full costs one extra empty call.
// On 401/429 the same page is retried after the policy's cooldown.
func (c *Client) FetchPage(ctx context.Context, page int) (Page, error) {
	query := url.Values{}
	query.Set(c.cfg.PageParam, strconv.Itoa(page))
	query.Set(c.cfg.LimitParam, strconv.Itoa(c.cfg.PageSize))

	body, err := c.call(ctx, c.cfg.ListPath, query, &c.listCalls, RateLimitEvent{Page: page})
	if err != nil {
		return Page{Number: page}, err
	}

	recs, err := ParseEnvelope(c.cfg.ListPath, body)
	if err != nil {
		return Page{Number: page}, err
	}

	return Page{
		Number:  page,
		Records: recs,
		HasMore: len(recs) == c.cfg.PageSize,
	}, nil
}

// FetchDetail fetches the full field set of one record.
func (c *Client) FetchDetail(ctx context.Context, id string) (records.Raw, error) {
	path := c.detailPath(id)
	body, err := c.call(ctx, path, nil, &c.detailCalls, RateLimitEvent{RecordID: id})
	if err != nil {
		return nil, err
	}
	return ParseDetail(path, body)
}

func (c *Client) detailPath(id string) string {
	escaped := url.PathEscape(id)
	if strings.Contains(c.cfg.DetailPath, "{id}") {
		return strings.ReplaceAll(c.cfg.DetailPath, "{id}", escaped)
	}
	return strings.TrimRight(c.cfg.DetailPath, "/") + "/" + escaped
}

// call performs one logical request with limiter and retry handling.
func (c *Client) call(ctx context.Context, path string, query url.Values, counter *atomic.Int64, event RateLimitEvent) ([]byte, error) {
	logger := logging.FromContext(ctx)

	for attempt := 1; ; attempt++ {
		if err := c.limiter.Allow(ctx); err != nil {
			return nil, err
		}

		req, err := transport.NewRequest(ctx, http.MethodGet, c.cfg.BaseURL, path, query)
		if err != nil {
			return nil, err
		}

		counter.Add(1)
		resp, err := c.http.DoWithContext(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.WrapAPI(path, 0, err)
		}

		body, err := transport.ReadBody(resp)
		if err != nil {
			return nil, errors.WrapAPI(path, resp.StatusCode, err)
		}

		switch {
		case transport.IsSuccess(resp.StatusCode):
			return body, nil

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusTooManyRequests:
			if c.policy.Exhausted(attempt) {
				return nil, &errors.RateLimitError{
					Endpoint:   path,
					StatusCode: resp.StatusCode,
					Attempts:   attempt,
					Cooldown:   c.policy.Delay(attempt),
				}
			}

			ev := event
			ev.Endpoint = path
			ev.Status = resp.StatusCode
			ev.Attempt = attempt
			ev.Wait = c.policy.Delay(attempt)
			logger.Warn().
				Str("endpoint", path).
				Int("status", resp.StatusCode).
				Int("attempt", attempt).
				Dur("cooldown", ev.Wait).
				Msg("Remote rate limited, cooling down")
			if c.onRateLimited != nil {
				c.onRateLimited(ev)
			}

			if err := c.policy.Wait(ctx, ev.Wait); err != nil {
				return nil, err
			}

		default:
			return nil, errors.NewAPIError(path, resp.StatusCode, truncate(strings.TrimSpace(string(body)), 256))
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
