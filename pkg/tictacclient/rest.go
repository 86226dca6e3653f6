package tictacclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/tictac-relay/pkg/tictacdto"
)

// APIError is a non-2xx answer from the REST endpoints.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tictac api error: status=%d body=%s", e.Status, e.Body)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == 404
}

// REST talks to /healthz and /games/{id}.
type REST struct {
	baseURL string
	http    *fasthttp.Client
	token   TokenProvider

	defaultTimeout time.Duration
	retryMax       int
}

type RESTOption func(*REST)

func WithTimeout(d time.Duration) RESTOption { return func(c *REST) { c.defaultTimeout = d } }

// WithRetry bounds attempts for idempotent reads.
func WithRetry(max int) RESTOption { return func(c *REST) { c.retryMax = max } }

func WithToken(p TokenProvider) RESTOption { return func(c *REST) { c.token = p } }

func NewREST(baseURL string, opts ...RESTOption) *REST {
	c := &REST{
		baseURL:        strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, o := range opts { o(c) }
	return c
}

func (c *REST) Health(ctx context.Context) error {
	return c.do(ctx, fasthttp.MethodGet, "/healthz", nil, true)
}

func (c *REST) GetGame(ctx context.Context, gameID string) (*tictacdto.GameState, error) {
	var st tictacdto.GameState
	if err := c.do(ctx, fasthttp.MethodGet, "/games/"+url.PathEscape(gameID), &st, true); err != nil {
		return nil, err
	}
	return &st, nil
}

// DeleteGame removes a finished or abandoned game the caller played in.
func (c *REST) DeleteGame(ctx context.Context, gameID string) error {
	return c.do(ctx, fasthttp.MethodDelete, "/games/"+url.PathEscape(gameID), nil, false)
}

func (c *REST) do(ctx context.Context, method, path string, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	if c.token != nil {
		if tok := strings.TrimSpace(c.token()); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleepWithContext(ctx, backoffDuration(attempt-1)); err != nil {
				return lastErr
			}
		}
		if err := c.http.DoDeadline(req, resp, c.deadline(ctx)); err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			lastErr = &APIError{Status: status, Body: truncate(string(resp.Body()), 512)}
			if !shouldRetryStatus(status) {
				return lastErr
			}
			continue
		}
		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
	return lastErr
}

func (c *REST) deadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
