// Package dataconnect implements an authenticated client for the Enedis Data
// Connect API. It owns the OAuth2 client-credentials token and serializes
// every call made through it.
package dataconnect

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/raterudder/dataconnect/pkg/common"
	"github.com/raterudder/dataconnect/pkg/log"
	"github.com/raterudder/dataconnect/pkg/metrics"
)

const (
	retriesCount = 3

	tokenPath  = "oauth2/v3/token"
	revokePath = "oauth2/v3/revoke"
)

// Client talks to the Data Connect API on behalf of one application. Build a
// single Client per process and share it.
type Client struct {
	baseURL        string
	consumptionPRM string
	productionPRM  string
	clientID       string
	clientSecret   secret
	redirectURI    string
	timeout        time.Duration
	limiter        *rate.Limiter

	// newSession returns the transport used for a single attempt
	newSession func() *http.Client

	mu           sync.Mutex
	token        *oauth2.Token
	requestCount int64
	errorsCount  int64
}

// New validates cfg and returns a disconnected Client. No network I/O is
// performed.
func New(cfg Config) (*Client, error) {
	c := &Client{}
	if err := c.init(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) init(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("failed to parse api url (%s): %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api url must be http or https: %s", baseURL)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	c.baseURL = strings.TrimRight(baseURL, "/")
	c.consumptionPRM = cfg.ConsumptionPRM
	c.productionPRM = cfg.ProductionPRM
	c.clientID = cfg.ClientID
	c.clientSecret = newSecret(cfg.ClientSecret)
	c.redirectURI = cfg.RedirectURI
	c.timeout = timeout
	c.newSession = func() *http.Client {
		return common.NewSession(c.timeout)
	}
	if cfg.MinInterval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	return nil
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Endpoint joins path to the API root.
func (c *Client) Endpoint(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// ConsumptionPRM returns the consumption metering point, or "" if absent.
func (c *Client) ConsumptionPRM() string {
	return c.consumptionPRM
}

// ProductionPRM returns the production metering point, or "" if absent.
func (c *Client) ProductionPRM() string {
	return c.productionPRM
}

func (c *Client) ClientID() string {
	return c.clientID
}

// TokenData returns the current token, or nil when disconnected. Every field
// of the token response is reachable through Token.Extra.
func (c *Client) TokenData() *oauth2.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// RequestCount returns the number of calls made through the client.
func (c *Client) RequestCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestCount
}

// ErrorsCount returns the number of calls that failed after every attempt.
func (c *Client) ErrorsCount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errorsCount
}

// IsConnected reports whether a token has been acquired.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected()
}

func (c *Client) isConnected() bool {
	return c.token != nil
}

// Connect exchanges the client credentials for a token. It does nothing if the
// client is already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connect(ctx)
}

// connect must be called with mu held.
func (c *Client) connect(ctx context.Context) error {
	if c.isConnected() {
		log.Ctx(ctx).DebugContext(ctx, "client already connected")
		return nil
	}
	log.Ctx(ctx).InfoContext(ctx, "connecting client", slog.String("clientID", c.clientID))

	params := url.Values{}
	params.Set("redirect_uri", c.redirectURI)
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret.reveal())

	// auto-connect must stay off here or a rejected exchange would recurse
	var raw map[string]any
	err := c.do(ctx, http.MethodPost, Request{
		URL:                c.Endpoint(tokenPath),
		Header:             formHeader(),
		Params:             params,
		Data:               data,
		DisableAutoConnect: true,
	}, &raw)
	if err != nil {
		return fmt.Errorf("token exchange failed: %w", err)
	}

	token, err := newToken(raw)
	if err != nil {
		return err
	}
	c.token = token
	metrics.TokenExchanges.Inc()
	log.Ctx(ctx).DebugContext(
		ctx,
		"token acquired",
		slog.String("tokenType", token.TokenType),
		slog.Time("expiry", token.Expiry),
	)
	return nil
}

// Close revokes the token. A failed revocation is logged and otherwise
// ignored: the local token is always dropped.
func (c *Client) Close(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnected() {
		log.Ctx(ctx).DebugContext(ctx, "client already disconnected")
		return
	}
	log.Ctx(ctx).InfoContext(ctx, "closing client", slog.String("clientID", c.clientID))

	data := url.Values{}
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret.reveal())
	data.Set("token", c.token.AccessToken)

	err := c.do(ctx, http.MethodPost, Request{
		URL:                c.Endpoint(revokePath),
		Header:             formHeader(),
		Data:               data,
		DisableAutoConnect: true,
	}, nil)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to revoke token", slog.Any("error", err))
	}
	c.token = nil
}

func formHeader() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	return h
}

func newToken(raw map[string]any) (*oauth2.Token, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty token response", ErrInvalidToken)
	}

	t := &oauth2.Token{}
	t.TokenType, _ = raw["token_type"].(string)
	t.AccessToken, _ = raw["access_token"].(string)

	var expiresIn float64
	switch v := raw["expires_in"].(type) {
	case float64:
		expiresIn = v
	case string:
		// some gateways send numbers as strings
		expiresIn, _ = strconv.ParseFloat(v, 64)
	}
	if expiresIn > 0 {
		t.Expiry = time.Now().Add(time.Duration(expiresIn) * time.Second)
	}

	return t.WithExtra(raw), nil
}
