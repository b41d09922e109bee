// Package gateway wraps outbound HTTP calls to the support desk API.
// It carries no business logic: callers get back raw bodies plus a
// classified error so synchronizers can tell a cancelled long poll from
// a dead network from a denied session.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client issues requests against a single API base URL.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	logger     *log.Logger
}

// Option applies configuration to the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. The per-request
// timeout still comes from Request.Timeout via context.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithHeader sets a header sent on every request (session cookie, API key).
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithLogger injects a custom logger implementation.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a gateway client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		// No client-wide timeout: long polls set their own deadline
		// through the request context.
		httpClient: &http.Client{},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		headers:    make(map[string]string),
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request describes one HTTP call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any // marshalled to JSON when non-nil
	// Timeout is the client-side hard abort. Zero means the context
	// deadline (if any) is the only bound.
	Timeout time.Duration
}

// Response is the raw outcome of a successful (2xx) request.
type Response struct {
	StatusCode int
	RawData    []byte
}

// Decode unmarshals the response body into v. A body that does not
// parse is a KindDecode error; the raw content is logged for diagnosis.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.RawData, v); err != nil {
		return &Error{Kind: KindDecode, Err: fmt.Errorf("failed to decode response: %w (body: %.200s)", err, string(r.RawData))}
	}
	return nil
}

// Do executes the request. Non-2xx statuses come back as *Error with
// KindHTTP; transport failures are classified into network, timeout or
// cancelled. The response body is fully read before returning.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	fullURL := c.baseURL + req.Path
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		bodyBytes, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(bodyBytes)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Kind:       KindHTTP,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d for %s %s", resp.StatusCode, req.Method, req.Path),
		}
	}

	return &Response{StatusCode: resp.StatusCode, RawData: respBody}, nil
}

// Get is shorthand for a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values, timeout time.Duration) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query, Timeout: timeout})
}

// Post is shorthand for a JSON POST request.
func (c *Client) Post(ctx context.Context, path string, body any, timeout time.Duration) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body, Timeout: timeout})
}
