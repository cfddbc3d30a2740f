// Package httpclient performs the blocking requests behind http.getSync and
// http.postSync.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sliverarmory/rosaserver/collab"
)

// MaxBody bounds how much of a response body is read.
const MaxBody = 32 << 20

type Client struct {
	http *http.Client
}

// New returns a client whose requests give up after timeout. Callers may
// shorten it per request through the context.
func New(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*collab.HTTPResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, headers)
}

func (c *Client) Post(ctx context.Context, url string, headers map[string]string, body []byte, contentType string) (*collab.HTTPResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(req, headers)
}

func (c *Client) do(req *http.Request, headers map[string]string) (*collab.HTTPResponse, error) {
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.URL, err)
	}
	out := &collab.HTTPResponse{Status: resp.StatusCode, Body: body, Headers: make(map[string]string, len(resp.Header))}
	for k := range resp.Header {
		out.Headers[k] = resp.Header.Get(k)
	}
	return out, nil
}
