// Package anon is the HTTP adapter for the anonymized repository service.
package anon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tilsley/anonmirror/apps/mirror/internal/remote"
	"github.com/tilsley/anonmirror/pkg/repotree"
)

const instrName = "github.com/tilsley/anonmirror/anon"

// Compile-time check: *Client implements remote.Client.
var _ remote.Client = (*Client)(nil)

// Client talks to the anonymized repository API (or mock-anon).
type Client struct {
	baseURL    *url.URL
	headers    http.Header
	httpClient *http.Client
	timeout    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets a per-request timeout. Zero leaves the transport default.
// It applies regardless of option order and never mutates a client passed to
// WithHTTPClient.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient creates a client pointing at baseURL that sends headers with every
// request. Compressed responses are decoded by the transport.
func NewClient(baseURL string, headers http.Header, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL:    u,
		headers:    headers.Clone(),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c, nil
}

// FetchTree returns the repository layout from GET /api/repo/<name>/files.
func (c *Client) FetchTree(ctx context.Context, repo remote.Repo) (repotree.Tree, error) {
	u := c.endpoint("api", "repo", repo.Name, "files")

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, &remote.FetchError{Op: remote.OpFetchStructure, Path: "/api/repo/" + repo.Name + "/files", Err: err}
	}

	var tree repotree.Tree
	if err := json.Unmarshal(body, &tree); err != nil {
		return nil, &remote.FetchError{Op: remote.OpFetchStructure, Path: "/api/repo/" + repo.Name + "/files", Err: err}
	}
	return tree, nil
}

// FetchFile returns the raw bytes of remotePath from GET /api/repo/<name>/file<remotePath>.
func (c *Client) FetchFile(ctx context.Context, repo remote.Repo, remotePath string) ([]byte, error) {
	segs := append([]string{"api", "repo", repo.Name, "file"}, strings.Split(strings.TrimPrefix(remotePath, "/"), "/")...)
	u := c.endpoint(segs...)

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, &remote.FetchError{Op: remote.OpFetchFile, Path: remotePath, Err: err}
	}
	return body, nil
}

// endpoint joins escaped path segments onto the base URL.
func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.baseURL.JoinPath(escaped...).String()
}

func (c *Client) get(ctx context.Context, u string) (_ []byte, err error) {
	ctx, span := otel.Tracer(instrName).Start(ctx, "GET",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("url.full", u)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	defer func() { //nolint:errcheck // response body close errors are non-actionable after reading
		_ = resp.Body.Close()
	}()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &remote.StatusError{Method: http.MethodGet, URL: u, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}
	return body, nil
}
