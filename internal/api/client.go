// Package api talks to the chat server's request/response endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/christopherjohns/groupchat/internal/message"
)

const (
	messagesPath = "/api/messages"

	// DefaultTimeout bounds a single request.
	DefaultTimeout = 10 * time.Second

	maxErrorBody = 512
)

// ErrRejected is returned when the server answers a send with success=false.
var ErrRejected = errors.New("message rejected by server")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("server returned %d %s: %s", e.Code, http.StatusText(e.Code), e.Body)
}

// Client issues snapshot and send requests against a chat server.
type Client struct {
	base *url.URL
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http = &http.Client{Timeout: d}
	}
}

// New creates a Client for the server at baseURL (scheme and host; any
// path is used as a prefix).
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", baseURL)
	}
	c := &Client{
		base: u,
		http: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint() string {
	return strings.TrimSuffix(c.base.String(), "/") + messagesPath
}

// FetchMessages retrieves the full current message list.
func (c *Client) FetchMessages(ctx context.Context) ([]message.Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	var body message.ListResponse
	if err := c.do(req, &body); err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	if body.Messages == nil {
		body.Messages = []message.Message{}
	}
	return body.Messages, nil
}

// PostMessage sends d and returns the server's response, whose Message
// carries the server-assigned id.
func (c *Client) PostMessage(ctx context.Context, d message.Draft) (*message.SendResponse, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("post message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var body message.SendResponse
	if err := c.do(req, &body); err != nil {
		return nil, fmt.Errorf("post message: %w", err)
	}
	if !body.Success {
		if body.Error != "" {
			return &body, fmt.Errorf("%w: %s", ErrRejected, body.Error)
		}
		return &body, ErrRejected
	}
	return &body, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
