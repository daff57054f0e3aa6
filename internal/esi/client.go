package esi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
)

const baseURL = "https://esi.evetech.net/latest"

// Sentinel error kinds for non-2xx ESI responses. Callers classify with
// errors.Is; anything not wrapped in one of these is unclassified and is
// retried on the next scheduled run.
var (
	// ErrUnauthorized means the access token was rejected (expired or invalid).
	ErrUnauthorized = errors.New("esi: token rejected")
	// ErrForbidden means the ACL denies this character access to the resource.
	ErrForbidden = errors.New("esi: access denied")
	// ErrTransient means the upstream is temporarily unavailable.
	ErrTransient = errors.New("esi: upstream unavailable")
)

// Client is a rate-limited ESI HTTP client. The singleflight group
// coalesces duplicate in-flight region order fetches within one run.
type Client struct {
	http  *http.Client
	sem   chan struct{}
	base  string
	group singleflight.Group
}

// NewClient creates an ESI client with rate limiting.
// Uses 50 concurrent connections (ESI allows up to 150 error-free requests/sec).
func NewClient() *Client {
	return &Client{
		http: &http.Client{Timeout: 30 * time.Second},
		sem:  make(chan struct{}, 50),
		base: baseURL,
	}
}

// SetBase overrides the ESI base URL. Tests point this at a local server.
func (c *Client) SetBase(base string) {
	c.base = base
}

func newRequest(method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "eve-market-watch/1.0 (github.com)")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// statusError maps a non-2xx response to a classified error.
func statusError(status int, body string) error {
	switch {
	case status == 401:
		return fmt.Errorf("ESI %d: %s: %w", status, body, ErrUnauthorized)
	case status == 403:
		return fmt.Errorf("ESI %d: %s: %w", status, body, ErrForbidden)
	case status >= 500:
		return fmt.Errorf("ESI %d: %s: %w", status, body, ErrTransient)
	default:
		return fmt.Errorf("ESI %d: %s", status, body)
	}
}

// do executes a request under the semaphore and decodes the JSON response
// into dst (dst may be nil to discard the body). token is optional.
func (c *Client) do(req *http.Request, token string, dst interface{}) error {
	c.sem <- struct{}{}
	defer func() { <-c.sem }()

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrTransient)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return statusError(resp.StatusCode, string(body))
	}
	if dst == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// GetJSON fetches a public URL and decodes JSON into dst.
func (c *Client) GetJSON(url string, dst interface{}) error {
	req, err := newRequest("GET", url, nil)
	if err != nil {
		return err
	}
	return c.do(req, "", dst)
}

// AuthGetJSON performs an authenticated GET and decodes JSON into dst.
func (c *Client) AuthGetJSON(url, accessToken string, dst interface{}) error {
	req, err := newRequest("GET", url, nil)
	if err != nil {
		return err
	}
	return c.do(req, accessToken, dst)
}
