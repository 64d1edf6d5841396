package dataconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/raterudder/dataconnect/pkg/log"
	"github.com/raterudder/dataconnect/pkg/metrics"
)

// Request describes one call to the API.
type Request struct {
	URL    string
	Header http.Header
	// Params are added to the query string of URL.
	Params url.Values
	// Data is sent form-encoded as the request body when not nil.
	Data url.Values
	// DisableAutoConnect stops the client from acquiring a token before the
	// call and from re-authenticating after a 401.
	DisableAutoConnect bool
}

type callIDKey struct{}

// GetData sends a GET and decodes the JSON response into dest.
func (c *Client) GetData(ctx context.Context, r Request, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.do(ctx, http.MethodGet, r, dest)
}

// PostDataWithResult sends a POST and decodes the JSON response into dest.
func (c *Client) PostDataWithResult(ctx context.Context, r Request, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.do(ctx, http.MethodPost, r, dest)
}

// PostDataWithoutResult sends a POST and ignores the response body.
func (c *Client) PostDataWithoutResult(ctx context.Context, r Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.do(ctx, http.MethodPost, r, nil)
}

// do runs the call with up to retriesCount attempts. It must be called with mu
// held. A 401 re-authenticates (when allowed) and uses up the attempt.
func (c *Client) do(ctx context.Context, method string, r Request, dest any) error {
	c.requestCount++
	metrics.Requests.WithLabelValues(method).Inc()
	// every line logged for this call, including a nested token exchange,
	// carries the same callID
	if _, ok := ctx.Value(callIDKey{}).(string); !ok {
		id := uuid.NewString()
		ctx = context.WithValue(ctx, callIDKey{}, id)
		ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("callID", id)))
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"requesting api",
		slog.String("method", method),
		slog.String("url", r.URL),
		slog.Any("params", r.Params),
		slog.Bool("autoConnect", !r.DisableAutoConnect),
	)

	var lastErr error
	for attempt := 1; attempt <= retriesCount; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !r.DisableAutoConnect {
			if c.token != nil && !c.token.Valid() {
				log.Ctx(ctx).InfoContext(ctx, "token expired, reconnecting")
				c.token = nil
			}
			if err := c.connect(ctx); err != nil {
				return err
			}
		}

		status, err := c.attempt(ctx, method, r, dest)
		if err != nil {
			log.Ctx(ctx).WarnContext(
				ctx,
				"api attempt failed",
				slog.String("url", r.URL),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
			lastErr = err
			continue
		}

		switch status {
		case http.StatusOK:
			return nil
		case http.StatusUnauthorized:
			if r.DisableAutoConnect {
				return &statusError{StatusCode: status}
			}
			log.Ctx(ctx).WarnContext(ctx, "token rejected, trying to re-authenticate", slog.Int("attempt", attempt))
			c.token = nil
			lastErr = &statusError{StatusCode: status}
			if err := c.connect(ctx); err != nil {
				lastErr = err
			}
		default:
			lastErr = &statusError{StatusCode: status}
		}
	}

	c.errorsCount++
	metrics.RequestErrors.WithLabelValues(method).Inc()
	log.Ctx(ctx).ErrorContext(
		ctx,
		"an error occurred while requesting the api",
		slog.String("method", method),
		slog.String("url", r.URL),
		slog.Any("error", lastErr),
	)
	return &RequestError{
		Method:   method,
		URL:      r.URL,
		Attempts: retriesCount,
		Err:      lastErr,
	}
}

// attempt performs a single HTTP exchange over a fresh session and returns
// the status code. The body is decoded into dest only on a 200.
func (c *Client) attempt(ctx context.Context, method string, r Request, dest any) (int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, err
		}
	}

	req, err := c.newRequest(ctx, method, r)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	session := c.newSession()
	defer session.CloseIdleConnections()

	logRequest(ctx, req, r.Data)
	start := time.Now()
	resp, err := session.Do(req)
	metrics.AttemptDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Attempts.WithLabelValues(method, "error").Inc()
		return 0, err
	}
	defer resp.Body.Close()
	metrics.Attempts.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	logResponse(ctx, resp, body)
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if dest != nil {
		if err := json.Unmarshal(body, dest); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) newRequest(ctx context.Context, method string, r Request) (*http.Request, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, err
	}
	if len(r.Params) > 0 {
		q := u.Query()
		for k, values := range r.Params {
			for _, v := range values {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if r.Data != nil {
		body = strings.NewReader(r.Data.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}

	for k, values := range r.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if r.Data != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.token != nil && c.token.TokenType != "" && c.token.AccessToken != "" {
		req.Header.Set("Authorization", c.token.TokenType+" "+c.token.AccessToken)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	return req, nil
}

func logRequest(ctx context.Context, req *http.Request, data url.Values) {
	if !log.Ctx(ctx).Enabled(ctx, slog.LevelDebug) {
		return
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"api request",
		slog.String("method", req.Method),
		slog.String("url", req.URL.String()),
		log.Header("headers", req.Header),
		log.Form("body", data),
	)
}

func logResponse(ctx context.Context, resp *http.Response, body []byte) {
	if !log.Ctx(ctx).Enabled(ctx, slog.LevelDebug) {
		return
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"api response",
		slog.Int("status", resp.StatusCode),
		slog.String("url", resp.Request.URL.String()),
		log.Cookies("cookies", resp.Cookies()),
		log.Body("body", body),
	)
}
