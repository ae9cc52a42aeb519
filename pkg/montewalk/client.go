// Package montewalk is a Go client for the montewalk-server HTTP API.
package montewalk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client provides a Go SDK for interacting with the montewalk-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a new montewalk API client.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tool describes one server tool.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// APIError is a non-2xx response. Kind is the server's error kind, such as
// "InvalidParameterError", and Subject names the offending asset or field.
type APIError struct {
	StatusCode int
	Kind       string `json:"kind"`
	Subject    string `json:"subject"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("montewalk: %d %s [%s]: %s", e.StatusCode, e.Kind, e.Subject, e.Message)
	}
	return fmt.Sprintf("montewalk: %d %s: %s", e.StatusCode, e.Kind, e.Message)
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// ListTools retrieves the available tools.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var out struct {
		Tools []Tool `json:"tools"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tools", nil, &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

// Call runs tool with args and decodes its result into result. args may be
// any JSON-serializable value; result may be nil.
func (c *Client) Call(ctx context.Context, tool string, args, result any) error {
	var out struct {
		Result json.RawMessage `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/tools/"+url.PathEscape(tool), args, &out); err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(out.Result, result); err != nil {
		return fmt.Errorf("decode %s result: %w", tool, err)
	}
	return nil
}

// BacktestChart renders the equity curve of a backtest as PNG.
func (c *Client) BacktestChart(ctx context.Context, args any) ([]byte, error) {
	return c.png(ctx, "/api/charts/backtest", args)
}

// SimulationChart renders the percentile fan of a simulation as PNG.
func (c *Client) SimulationChart(ctx context.Context, args any) ([]byte, error) {
	return c.png(ctx, "/api/charts/simulation", args)
}

func (c *Client) png(ctx context.Context, path string, args any) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.do(ctx, http.MethodPost, path, args, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// do sends a request and decodes the response into out: a *bytes.Buffer
// receives the raw body, anything else is JSON-decoded.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	switch dst := out.(type) {
	case nil:
		return nil
	case *bytes.Buffer:
		_, err = dst.ReadFrom(resp.Body)
	default:
		err = json.NewDecoder(resp.Body).Decode(dst)
	}
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	return nil
}
