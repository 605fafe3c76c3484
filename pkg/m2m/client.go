package m2m

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultTimeout = 10 * time.Second

	// ty=4 marks the body as a new content instance (leaf record).
	contentInstanceType = "application/json;ty=4"

	originHeader = "X-M2M-Origin"
	maxErrorBody = 512
)

type Config struct {
	BaseURL    string
	Origin     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client reads and writes content instances on a oneM2M CSE.
type Client struct {
	base    *url.URL
	origin  string
	timeout time.Duration
	http    *http.Client
}

// StatusError is returned when the store answers with a non-2xx status.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("empty base url")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}

	return &Client{
		base:    base,
		origin:  cfg.Origin,
		timeout: timeout,
		http:    hc,
	}, nil
}

// Resolve turns a resource path (or an absolute URL) into a request URL.
func (c *Client) Resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	ref, err := url.Parse(path)
	if err != nil {
		return strings.TrimRight(c.base.String(), "/") + path
	}
	return c.base.ResolveReference(ref).String()
}

// Fetch GETs a resource and decodes it into a generic JSON value. Numbers are
// kept as json.Number so the value re-encodes byte for byte. An empty or
// undecodable body yields nil with no error.
func (c *Client) Fetch(ctx context.Context, path string) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.Resolve(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: http.MethodGet, URL: target, Code: resp.StatusCode, Body: truncate(body)}
	}

	log.Debug("Fetched", "url", target, "bytes", len(body))

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		log.Warn("Undecodable response, treating as empty", "url", target, "err", err)
		return nil, nil
	}

	return v, nil
}

// Write creates a content instance holding content under path.
func (c *Client) Write(ctx context.Context, path, content string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(map[string]any{
		"m2m:cin": map[string]string{"con": content},
	})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	target := c.Resolve(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", contentInstanceType)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: http.MethodPost, URL: target, Code: resp.StatusCode, Body: truncate(body)}
	}

	log.Debug("Written", "url", target, "status", resp.StatusCode)
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.origin != "" {
		req.Header.Set(originHeader, c.origin)
	}
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return strings.TrimSpace(string(b))
}
