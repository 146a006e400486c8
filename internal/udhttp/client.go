// Package udhttp regroupe la plomberie commune aux appels des upstreams
// (OJS, Matomo, Crossref): timeout, retries avec backoff, décodage JSON.
package udhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"udsmanalytics/internal/udlog"
)

const maxErrorBody = 512

// StatusError est retournée pour toute réponse non 2xx
type StatusError struct {
	Source     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Source, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Source, e.StatusCode, e.Body)
}

// Retryable indique si la requête peut être rejouée
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Option modifie une requête sortante
type Option func(*http.Request)

func WithBearer(token string) Option {
	return func(r *http.Request) {
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(r *http.Request) {
		if ua != "" {
			r.Header.Set("User-Agent", ua)
		}
	}
}

type Client struct {
	Source  string
	BaseURL string
	Retries int
	Backoff time.Duration

	http    *http.Client
	options []Option
	log     *udlog.Upstream
}

func New(source, baseURL string, timeout time.Duration, retries int, opts ...Option) *Client {
	return &Client{
		Source:  source,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Retries: retries,
		Backoff: 100 * time.Millisecond,
		http:    &http.Client{Timeout: timeout},
		options: opts,
		log:     udlog.NewUpstream(source),
	}
}

// Configured indique si une url de base a été fournie
func (c *Client) Configured() bool {
	return c != nil && c.BaseURL != ""
}

// URL construit l'url absolue d'un chemin relatif à BaseURL
func (c *Client) URL(path string, query url.Values) string {
	u := c.BaseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any, opts ...Option) error {
	body, err := c.do(ctx, http.MethodGet, c.URL(path, query), nil, "", opts)
	if err != nil {
		return err
	}
	return c.decode(body, out)
}

// PostFormJSON envoie un formulaire urlencodé et décode la réponse JSON
func (c *Client) PostFormJSON(ctx context.Context, path string, form url.Values, out any, opts ...Option) error {
	body, err := c.do(ctx, http.MethodPost, c.URL(path, nil), []byte(form.Encode()), "application/x-www-form-urlencoded", opts)
	if err != nil {
		return err
	}
	return c.decode(body, out)
}

// GetBytes récupère une ressource brute, rawURL peut être absolue
func (c *Client) GetBytes(ctx context.Context, rawURL string, opts ...Option) ([]byte, error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = c.URL(rawURL, nil)
	}
	return c.do(ctx, http.MethodGet, rawURL, nil, "", opts)
}

func (c *Client) decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: réponse JSON invalide: %w", c.Source, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, payload []byte, contentType string, opts []Option) ([]byte, error) {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= c.Retries; attempt++ {
		if attempt > 0 {
			wait := c.Backoff << (attempt - 1)
			if se, ok := lastErr.(*retryAfterError); ok && se.after > 0 {
				wait = se.after
			}
			c.log.Retry(rawURL, attempt, wait, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		attempts++
		body, err := c.once(ctx, method, rawURL, payload, contentType, opts, attempt)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}

	if ra, ok := lastErr.(*retryAfterError); ok {
		lastErr = ra.StatusError
	}
	c.log.Failed(rawURL, attempts, lastErr)
	return nil, lastErr
}

// retryAfterError garde l'en-tête Retry-After d'une réponse 429/503
type retryAfterError struct {
	*StatusError
	after time.Duration
}

func (c *Client) once(ctx context.Context, method, rawURL string, payload []byte, contentType string, opts []Option, attempt int) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Source, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, opt := range c.options {
		opt(req)
	}
	for _, opt := range opts {
		opt(req)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Source, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: lecture réponse: %w", c.Source, err)
	}

	c.log.Attempt(method, rawURL, attempt, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{
			Source:     c.Source,
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(body)), maxErrorBody),
		}
		if after := parseRetryAfter(resp.Header.Get("Retry-After")); after > 0 {
			return nil, &retryAfterError{StatusError: se, after: after}
		}
		return nil, se
	}
	return body, nil
}

func retryable(err error) bool {
	switch e := err.(type) {
	case *retryAfterError:
		return e.Retryable()
	case *StatusError:
		return e.Retryable()
	}
	// erreurs de transport
	return true
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	if secs > 30 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
