// Package postgrest implements the relational store over a PostgREST-style
// HTTP API.
//
// Synced records are stored flattened: one column per canonical field plus
// id and synced_at. Masters keep their attributes in a JSON column.
package postgrest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/crmsync/internal/transport"
	"github.com/agentstation/crmsync/pkg/constants"
	"github.com/agentstation/crmsync/pkg/errors"
	"github.com/agentstation/crmsync/pkg/logging"
	"github.com/agentstation/crmsync/pkg/store"
)

var _ store.Store = (*Store)(nil)

// Config holds the endpoint and credentials of a PostgREST API.
type Config struct {
	URL          string        `yaml:"url" json:"url"`
	Token        string        `yaml:"token" json:"-"`
	APIKey       string        `yaml:"api_key" json:"-"`
	Schema       string        `yaml:"schema" json:"schema"`
	Tables       store.Tables  `yaml:"tables" json:"tables"`
	SourceOrder  string        `yaml:"source_order" json:"source_order"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	DeleteChunk  int           `yaml:"delete_chunk" json:"delete_chunk"`
	ListPageSize int           `yaml:"list_page_size" json:"list_page_size"`
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return errors.NewConfigError("postgrest", "store URL is required", nil)
	}
	if _, err := url.ParseRequestURI(c.URL); err != nil {
		return errors.NewConfigError("postgrest", "store URL is invalid", err)
	}
	if c.Token == "" && c.APIKey == "" {
		return errors.NewConfigError("postgrest", "a token or API key is required", nil)
	}
	if c.Schema == "" {
		c.Schema = constants.DefaultSchema
	}
	if c.SourceOrder == "" {
		c.SourceOrder = "id.asc"
	}
	if c.DeleteChunk <= 0 {
		c.DeleteChunk = constants.DeleteChunkSize
	}
	if c.ListPageSize <= 0 {
		c.ListPageSize = constants.ListIDsPageSize
	}
	c.Tables = c.Tables.WithDefaults()
	return nil
}

// Store talks to PostgREST through the shared transport client.
type Store struct {
	cfg    Config
	client *transport.Client
}

// Option configures a Store.
type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(o *options) {
		o.httpClient = h
	}
}

// New validates cfg and returns a Store.
func New(cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	auth := transport.ChainAuth{
		&transport.BearerAuth{Token: cfg.Token},
		&transport.HeaderAuth{Header: "apikey", Value: cfg.APIKey},
	}
	client := transport.New(auth,
		transport.WithTimeout(cfg.Timeout),
		transport.WithHTTPClient(o.httpClient),
		transport.WithHeader("Accept-Profile", cfg.Schema),
		transport.WithHeader("Content-Profile", cfg.Schema),
	)
	return &Store{cfg: cfg, client: client}, nil
}

// Tables returns the table names in use.
func (s *Store) Tables() store.Tables {
	return s.cfg.Tables
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// call issues one request and decodes a 2xx body into target. Failures
// become PersistenceErrors carrying the HTTP status.
func (s *Store) call(ctx context.Context, op, table, id, method string, query url.Values, target any, reqOpts ...transport.RequestOption) (int, error) {
	req, err := transport.NewRequest(ctx, method, s.cfg.URL, table, query, reqOpts...)
	if err != nil {
		return 0, errors.NewPersistenceError(op, table, id, 0, err)
	}

	resp, err := s.client.DoWithContext(ctx, req)
	if err != nil {
		return 0, errors.NewPersistenceError(op, table, id, 0, err)
	}

	if err := transport.DecodeResponse(resp, target); err != nil {
		var apiErr *errors.APIError
		if errors.As(err, &apiErr) {
			return resp.StatusCode, &errors.PersistenceError{
				Operation:  op,
				Table:      table,
				ID:         id,
				StatusCode: resp.StatusCode,
				Message:    truncate(apiErr.Message, 256),
			}
		}
		return resp.StatusCode, errors.NewPersistenceError(op, table, id, resp.StatusCode, err)
	}

	logging.FromContext(ctx).Trace().
		Str("method", method).
		Str("table", table).
		Int("status", resp.StatusCode).
		Msg("Store request")
	return resp.StatusCode, nil
}

func minimal() transport.RequestOption {
	return transport.WithRequestHeader("Prefer", "return=minimal")
}

func eq(v string) string {
	return "eq." + v
}

// in renders a PostgREST in-list with every value double-quoted.
func in(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return "in.(" + strings.Join(quoted, ",") + ")"
}

func pageQuery(selectCols, order string, limit, offset int) url.Values {
	q := url.Values{}
	q.Set("select", selectCols)
	if order != "" {
		q.Set("order", order)
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	return q
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += size {
		out = append(out, ids[start:min(start+size, len(ids))])
	}
	return out
}

func describeIDs(ids []string) string {
	if len(ids) == 1 {
		return ids[0]
	}
	return fmt.Sprintf("%d ids", len(ids))
}
