// Package ctl implements signalctl, a small operator CLI for a running
// room-signal instance.
package ctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wilsonzlin/aero/proxy/room-signal/internal/httpserver"
)

const defaultHTTPTimeout = 10 * time.Second

// Client talks to the HTTP surface of one room-signal server.
type Client struct {
	base   *url.URL
	apiKey string
	http   *http.Client
}

// NewClient parses baseURL (http or https, no query string).
func NewClient(baseURL, apiKey string) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q: missing host", baseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("invalid server url %q: must not include query or fragment", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	return &Client{
		base:   u,
		apiKey: apiKey,
		http:   &http.Client{Timeout: defaultHTTPTimeout},
	}, nil
}

func (c *Client) endpoint(path string) *url.URL {
	u := *c.base
	u.Path = c.base.Path + path
	return &u
}

// signalURL maps the base URL onto the WebSocket signaling endpoint.
func (c *Client) signalURL() string {
	u := c.endpoint("/webrtc/signal")
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path).String(), nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// StatusError is returned for any non-200 response.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s: %s", e.Path, http.StatusText(e.Code))
	}
	return fmt.Sprintf("GET %s: %s: %s", e.Path, http.StatusText(e.Code), e.Body)
}

// ErrRoomsDisabled means the server does not expose the monitoring snapshot.
var ErrRoomsDisabled = errors.New("server does not expose /rooms")

// Rooms fetches the monitoring snapshot.
func (c *Client) Rooms(ctx context.Context) (httpserver.RoomsReport, error) {
	var report httpserver.RoomsReport
	err := c.getJSON(ctx, "/rooms", &report)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return report, ErrRoomsDisabled
	}
	return report, err
}

// Version fetches the server's build info.
func (c *Client) Version(ctx context.Context) (httpserver.BuildInfo, error) {
	var info httpserver.BuildInfo
	err := c.getJSON(ctx, "/version", &info)
	return info, err
}
