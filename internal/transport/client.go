// Package transport talks HTTP to the agent daemon: the two long-lived
// event streams and the plain request/response calls.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DirectoryHeader scopes a request to a working directory on the daemon.
const DirectoryHeader = "x-agent-core-directory"

// Config holds the connection settings for a Client.
type Config struct {
	BaseURL   string
	Directory string
	Token     string
	// Timeout bounds request/response calls. Streams are unbounded and
	// rely on context cancellation instead.
	Timeout time.Duration
	// HandshakeTimeout bounds the wait for a stream's response headers.
	HandshakeTimeout time.Duration
}

// StatusError reports a non-2xx response from the daemon.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client is a daemon HTTP client. It is safe for concurrent use.
type Client struct {
	config       Config
	httpClient   *http.Client
	streamClient *http.Client
}

// New creates a Client for the daemon at cfg.BaseURL.
func New(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}
	streamTransport := http.DefaultTransport.(*http.Transport).Clone()
	streamTransport.ResponseHeaderTimeout = cfg.HandshakeTimeout
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		streamClient: &http.Client{Transport: streamTransport},
	}
}

// BaseURL returns the daemon address the client was configured with.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.Directory != "" {
		req.Header.Set(DirectoryHeader, c.config.Directory)
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}
	return req, nil
}

// do sends a request/response call and decodes the JSON reply into out,
// which may be nil when the body is not needed.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// openStream performs the handshake for a streaming call and hands back the
// open body. The caller owns the body and must close it.
func (c *Client) openStream(ctx context.Context, method, path string, body any) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening stream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return resp.Body, nil
}

// Subscribe opens the daemon's global event stream. The returned body
// yields raw wire bytes until the daemon closes it, a read fails or ctx is
// cancelled.
func (c *Client) Subscribe(ctx context.Context) (io.ReadCloser, error) {
	return c.openStream(ctx, http.MethodGet, "/event", nil)
}

// SendMessageStream posts a message to a session and returns the
// message-generation stream for the reply.
func (c *Client) SendMessageStream(ctx context.Context, sessionID string, req SendMessageRequest) (io.ReadCloser, error) {
	return c.openStream(ctx, http.MethodPost, "/session/"+sessionID+"/message", req)
}
