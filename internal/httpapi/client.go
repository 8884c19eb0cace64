// Package httpapi is the JSON-over-HTTP client shared by the CI backends.
package httpapi

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
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Config holds connection and authentication settings for one backend.
type Config struct {
	BaseURL  string
	Username string
	Token    string

	Timeout time.Duration
	// RequestsPerSecond throttles requests; zero disables throttling.
	RequestsPerSecond float64
	// CacheTTL keeps GET responses for the session; zero disables caching.
	CacheTTL time.Duration
}

// Client talks to one backend.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter

	cache      map[string]*cacheEntry
	cacheMutex sync.Mutex
}

type cacheEntry struct {
	Value       []byte
	Expiration  time.Time
	AccessCount int
}

func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      make(map[string]*cacheEntry),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code       int
	URL        string
	RetryAfter string
}

func (e *StatusError) Error() string {
	switch e.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Sprintf("authentication failed (%d) for %s; check the source credentials", e.Code, e.URL)
	case http.StatusNotFound:
		return fmt.Sprintf("%s not found", e.URL)
	case http.StatusTooManyRequests:
		if e.RetryAfter != "" {
			return fmt.Sprintf("rate limit exceeded (429) for %s; retry after %s seconds", e.URL, e.RetryAfter)
		}
		return fmt.Sprintf("rate limit exceeded (429) for %s", e.URL)
	default:
		return fmt.Sprintf("%s returned status %d", e.URL, e.Code)
	}
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

func (c *Client) getFromCache(key string) ([]byte, bool) {
	if c.cfg.CacheTTL == 0 {
		return nil, false
	}
	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()

	entry, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.Expiration) {
		delete(c.cache, key)
		return nil, false
	}

	// Sliding window extension
	if entry.AccessCount < 6 {
		entry.Expiration = time.Now().Add(c.cfg.CacheTTL)
		entry.AccessCount++
	}
	log.Trace().Str("key", key).Int("count", entry.AccessCount).Msg("Cache hit")
	return entry.Value, true
}

func (c *Client) addToCache(key string, value []byte) {
	if c.cfg.CacheTTL == 0 {
		return
	}
	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()

	c.cache[key] = &cacheEntry{
		Value:       value,
		Expiration:  time.Now().Add(c.cfg.CacheTTL),
		AccessCount: 1,
	}
}

func (c *Client) authenticateRequest(req *http.Request) {
	switch {
	case c.cfg.Username != "":
		req.SetBasicAuth(c.cfg.Username, c.cfg.Token)
	case c.cfg.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
}

// URL joins path and query parameters onto the base URL. An absolute path is
// returned unchanged.
func (c *Client) URL(path string, params url.Values) string {
	u := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		u = c.cfg.BaseURL + "/" + strings.TrimLeft(path, "/")
	}
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + params.Encode()
	}
	return u
}

// GetRaw fetches path and returns the body.
func (c *Client) GetRaw(ctx context.Context, path string, params url.Values) ([]byte, error) {
	target := c.URL(path, params)
	if body, ok := c.getFromCache(target); ok {
		return body, nil
	}

	body, err := c.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	c.addToCache(target, body)
	return body, nil
}

// GetJSON fetches path and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, out any) error {
	body, err := c.GetRaw(ctx, path, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", c.URL(path, params), err)
	}
	return nil
}

// PostJSON sends in as JSON and decodes the response into out. Responses are
// not cached.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	target := c.URL(path, nil)
	body, err := c.do(ctx, http.MethodPost, target, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", target, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authenticateRequest(req)

	log.Debug().Str("method", method).Str("url", target).Msg("Backend request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Code:       resp.StatusCode,
			URL:        target,
			RetryAfter: resp.Header.Get("Retry-After"),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", target, err)
	}
	return body, nil
}
