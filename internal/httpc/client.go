// Package httpc provides a shared HTTP client for the dms tools.
// Use this instead of http.DefaultClient to ensure timeouts are set.
package httpc

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout         = 10 * time.Second
	DefaultConnectTimeout  = 5 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
)

// MaxBodySize caps responses read by GetBytes. A 4K JPEG fits comfortably.
const MaxBodySize = 16 << 20

// Client is the shared HTTP client.
var Client = NewClient(DefaultTimeout)

// NewClient creates a new HTTP client with the specified timeout.
// For most cases, use the shared Client variable instead.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DefaultConnectTimeout,
				KeepAlive: DefaultKeepAlive,
			}).DialContext,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     DefaultIdleConnTimeout,
		},
	}
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("httpc: GET %s: %d %s", e.URL, e.Code, e.Body)
	}
	return fmt.Sprintf("httpc: GET %s: %d", e.URL, e.Code)
}

// GetBytes fetches url with the shared client and returns the body along
// with its Content-Type.
func GetBytes(ctx context.Context, url string) ([]byte, string, error) {
	return get(ctx, Client, url)
}

func get(ctx context.Context, c *http.Client, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, "", fmt.Errorf("httpc: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, "", &StatusError{URL: url, Code: resp.StatusCode, Body: msg}
	}
	return body, resp.Header.Get("Content-Type"), nil
}
