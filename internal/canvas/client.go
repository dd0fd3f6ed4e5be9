// Package canvas reads the remote catalog over the Canvas REST and GraphQL
// APIs. Every list call drains pagination before returning.
package canvas

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cs-go/internal/cs"
)

const (
	restPrefix      = "/api/v1"
	graphqlEndpoint = "/api/graphql"

	// DefaultTimeout bounds catalog requests. Downloads use StreamTimeout.
	DefaultTimeout = 60 * time.Second
	// StreamTimeout bounds a whole download.
	StreamTimeout = 30 * time.Minute

	perPage = "100"
)

// Client implements cs.Catalog.
type Client struct {
	base        *url.URL
	token       string
	httpClient  *http.Client
	streamer    *http.Client
	maxRequests int
}

// NewClient creates a client for the Canvas instance at baseURL.
func NewClient(baseURL, accessToken string) (*Client, error) {
	return NewClientWithHTTP(baseURL, accessToken, &http.Client{Timeout: DefaultTimeout})
}

// NewClientWithHTTP creates a client using httpClient for catalog calls.
// Downloads use a copy of it with StreamTimeout.
func NewClientWithHTTP(baseURL, accessToken string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, &cs.ConfigurationError{Key: "url", Err: err}
	}
	if u.Host == "" {
		return nil, &cs.ConfigurationError{Key: "url", Reason: "missing host"}
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}

	streamer := *httpClient
	streamer.Timeout = StreamTimeout

	return &Client{
		base:        u,
		token:       accessToken,
		httpClient:  httpClient,
		streamer:    &streamer,
		maxRequests: 1000,
	}, nil
}

func (c *Client) String() string {
	return fmt.Sprintf("canvas.Client(%s)", c.base.Host)
}

// resolve turns a path or absolute URL into a URL on the configured host.
// Absolute URLs for any other host are refused so the token never leaves it.
// Both failures are transport errors scoped to the one item that named raw.
func (c *Client) resolve(raw string) (*url.URL, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return nil, &cs.TransportError{
			Method:  http.MethodGet,
			Message: fmt.Sprintf("invalid url: %v", err),
		}
	}
	if ref.Host != "" && ref.Host != c.base.Host {
		return nil, &cs.TransportError{
			Method:  http.MethodGet,
			URL:     redact(ref),
			Message: fmt.Sprintf("refusing url for host %s, client is for %s", ref.Host, c.base.Host),
		}
	}
	return c.base.ResolveReference(ref), nil
}

// do sends req with the bearer token. A non-2xx response is closed and
// returned as a *cs.TransportError.
func (c *Client) do(client *http.Client, req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &cs.TransportError{Method: req.Method, URL: redact(req.URL), Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &cs.TransportError{
			Method:  req.Method,
			URL:     redact(req.URL),
			Status:  resp.StatusCode,
			Message: statusMessage(resp.StatusCode, body),
		}
	}
	return resp, nil
}

// Stream opens a download on the configured host.
func (c *Client) Stream(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	u, err := c.resolve(rawURL)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "*/*")

	resp, err := c.do(c.streamer, req)
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}

func statusMessage(status int, body []byte) string {
	msg := http.StatusText(status)
	if detail := strings.TrimSpace(string(body)); detail != "" {
		msg += " - " + detail
	}
	return msg
}

// redact drops the query so verifiers and tokens stay out of logs.
func redact(u *url.URL) string {
	clean := *u
	clean.RawQuery = ""
	return clean.String()
}

var _ cs.Catalog = (*Client)(nil)
