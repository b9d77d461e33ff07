package vapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dealer-crm/internal/metrics"
)

var ErrNotFound = errors.New("vapi: not found")

// APIError is a non-2xx provider response other than 404.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vapi: unexpected status %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	BaseURL       string
	APIKey        string
	Version       string
	WebhookSecret string
	Timeout       time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Client talks to the provider's REST API. It never retries; every failure is
// returned to the caller and logged.
type Client struct {
	base    string
	apiKey  string
	secret  []byte
	http    *http.Client
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("vapi: base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("vapi: invalid base url: %w", err)
	}
	version := strings.Trim(cfg.Version, "/")
	if version == "" {
		version = "v1"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/") + "/" + version,
		apiKey:  cfg.APIKey,
		secret:  []byte(cfg.WebhookSecret),
		http:    hc,
		log:     log.With("component", "vapi"),
		metrics: cfg.Metrics,
	}, nil
}

func (c *Client) ListCalls(ctx context.Context, filters url.Values) ([]Call, error) {
	var out []Call
	err := c.do(ctx, "list_calls", http.MethodGet, "/calls", filters, nil, &out)
	return out, err
}

func (c *Client) GetCall(ctx context.Context, id string) (Call, error) {
	if id == "" {
		return Call{}, errors.New("vapi: call id is required")
	}
	var out Call
	err := c.do(ctx, "get_call", http.MethodGet, "/calls/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

func (c *Client) CreateCall(ctx context.Context, req CreateCallRequest) (Call, error) {
	var out Call
	err := c.do(ctx, "create_call", http.MethodPost, "/calls", nil, req, &out)
	return out, err
}

func (c *Client) ListAssistants(ctx context.Context) ([]Assistant, error) {
	var out []Assistant
	err := c.do(ctx, "list_assistants", http.MethodGet, "/assistants", nil, nil, &out)
	return out, err
}

func (c *Client) GetAssistant(ctx context.Context, id string) (Assistant, error) {
	if id == "" {
		return Assistant{}, errors.New("vapi: assistant id is required")
	}
	var out Assistant
	err := c.do(ctx, "get_assistant", http.MethodGet, "/assistants/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) (err error) {
	defer func() {
		c.metrics.RecordProviderRequest(op, err)
		if err != nil {
			c.log.ErrorContext(ctx, "vapi request failed", "operation", op, "method", method, "path", path, "error", err)
		}
	}()

	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("vapi: encode %s: %w", op, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("vapi: build %s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("vapi: %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("vapi: read %s response: %w", op, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &APIError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("vapi: decode %s response: %w", op, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
