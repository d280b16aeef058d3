// Package jobtread is a client for the JobTread Pave API.
//
// Pave queries are JSON trees: each key selects a field, "$" holds the
// arguments of the node it sits in, and an empty object requests a scalar.
// Every request is a POST of {"query": <tree>} to a single endpoint, with the
// grant key passed as a root argument.
package jobtread

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the public Pave endpoint.
const DefaultBaseURL = "https://api.jobtread.com/pave"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 10 * 1024 * 1024

// ErrNoAPIKey is returned by New when no grant key is configured.
var ErrNoAPIKey = errors.New("jobtread: API key is required (set JOBTREAD_API_KEY)")

// APIError is a failed Pave request: a non-2xx response or a response
// carrying an "errors" member.
type APIError struct {
	StatusCode int
	Body       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("jobtread: pave query error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("jobtread: API error (HTTP %d): %s", e.StatusCode, truncate(e.Body, 200))
}

// Query is a Pave query tree.
type Query map[string]any

// Fields builds a selection of scalar fields.
func Fields(names ...string) Query {
	q := make(Query, len(names))
	for _, n := range names {
		q[n] = Query{}
	}
	return q
}

// With returns a copy of q with extra selections merged in.
func (q Query) With(extra Query) Query {
	out := make(Query, len(q)+len(extra))
	for k, v := range q {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Config configures a Client.
type Config struct {
	APIKey         string
	BaseURL        string
	OrganizationID string
	Timeout        time.Duration
}

// Client executes Pave queries.
type Client struct {
	apiKey         string
	baseURL        string
	organizationID string
	http           *http.Client
	logger         *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l.Named("jobtread") }
}

// New creates a Client. The base URL defaults to DefaultBaseURL.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		apiKey:         cfg.APIKey,
		baseURL:        baseURL,
		organizationID: cfg.OrganizationID,
		http:           &http.Client{Timeout: timeout},
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// OrganizationID returns the organization the client queries by default.
func (c *Client) OrganizationID() string {
	return c.organizationID
}

// Do executes a query and decodes the response into out (which may be nil).
// The grant key is added to the root arguments unless q already sets one;
// q itself is not modified.
func (c *Client) Do(ctx context.Context, q Query, out any) error {
	root := q.With(nil)
	args := Query{}
	if existing, ok := q["$"].(Query); ok {
		args = existing.With(nil)
	} else if existing, ok := q["$"].(map[string]any); ok {
		args = Query(existing).With(nil)
	}
	if _, ok := args["grantKey"]; !ok {
		args["grantKey"] = c.apiKey
	}
	root["$"] = args

	body, err := json.Marshal(map[string]any{"query": root})
	if err != nil {
		return fmt.Errorf("jobtread: marshaling query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("jobtread: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("request failed", zap.Error(err))
		return fmt.Errorf("jobtread: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("jobtread: reading response: %w", err)
	}
	c.logger.Debug("pave query",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
		zap.Int("bytes", len(respBytes)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(respBytes)}
		c.logger.Error("api error", zap.Int("status", resp.StatusCode), zap.String("body", truncate(apiErr.Body, 200)))
		return apiErr
	}

	var envelope struct {
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(respBytes, &envelope); err != nil {
		return fmt.Errorf("jobtread: parsing response (HTTP %d, body: %s): %w",
			resp.StatusCode, truncate(string(respBytes), 200), err)
	}
	if len(envelope.Errors) > 0 && string(envelope.Errors) != "null" {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(respBytes), Message: string(envelope.Errors)}
		c.logger.Error("pave query error", zap.String("errors", apiErr.Message))
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBytes, out); err != nil {
		return fmt.Errorf("jobtread: decoding response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// maxDownloadBytes bounds the size of a downloaded file.
const maxDownloadBytes = 200 * 1024 * 1024

var errTooLarge = errors.New("response exceeds size limit")

func readAllLimit(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errTooLarge
	}
	return data, nil
}
