package dataconnect

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raterudder/dataconnect/pkg/log"
)

const (
	testConsumptionPRM = "22516914714270"
	testProductionPRM  = "10284856584123"
	testClientID       = "client-1"
	testClientSecret   = "client-1-secret-1"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

// testAPI fakes the token, revoke and data endpoints.
type testAPI struct {
	t *testing.T

	// tokenStatus and revokeStatus default to 200
	tokenStatus  int
	revokeStatus int
	expiresIn    int
	// data handles every path other than the oauth2 ones
	data http.HandlerFunc

	tokens  atomic.Int32
	revokes atomic.Int32

	mu         sync.Mutex
	authorized []string
}

func (a *testAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/oauth2/v3/token":
		n := a.tokens.Add(1)
		assert.Equal(a.t, http.MethodPost, r.Method)
		assert.Equal(a.t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(a.t, DefaultRedirectURI, r.URL.Query().Get("redirect_uri"))
		assert.NoError(a.t, r.ParseForm())
		assert.Equal(a.t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(a.t, testClientID, r.PostForm.Get("client_id"))
		assert.Equal(a.t, testClientSecret, r.PostForm.Get("client_secret"))
		if a.tokenStatus != 0 && a.tokenStatus != http.StatusOK {
			w.WriteHeader(a.tokenStatus)
			return
		}
		resp := map[string]any{
			"access_token": fmt.Sprintf("token-%d", n),
			"token_type":   "Bearer",
			"scope":        "am_application_scope default",
		}
		if a.expiresIn != 0 {
			resp["expires_in"] = a.expiresIn
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	case "/oauth2/v3/revoke":
		a.revokes.Add(1)
		assert.NoError(a.t, r.ParseForm())
		assert.Equal(a.t, testClientID, r.PostForm.Get("client_id"))
		assert.Equal(a.t, testClientSecret, r.PostForm.Get("client_secret"))
		assert.NotEmpty(a.t, r.PostForm.Get("token"))
		if a.revokeStatus != 0 {
			w.WriteHeader(a.revokeStatus)
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		a.mu.Lock()
		a.authorized = append(a.authorized, r.Header.Get("Authorization"))
		a.mu.Unlock()
		if a.data == nil {
			http.Error(w, "not found: "+r.URL.Path, http.StatusNotFound)
			return
		}
		a.data(w, r)
	}
}

func (a *testAPI) authorizations() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.authorized...)
}

func newTestAPI(t *testing.T) (*testAPI, *httptest.Server) {
	api := &testAPI{t: t}
	ts := httptest.NewServer(api)
	t.Cleanup(ts.Close)
	return api, ts
}

func newTestClient(t *testing.T, baseURL string) *Client {
	c, err := New(Config{
		ConsumptionPRM: testConsumptionPRM,
		ProductionPRM:  testProductionPRM,
		ClientID:       testClientID,
		ClientSecret:   testClientSecret,
		RedirectURI:    DefaultRedirectURI,
		BaseURL:        baseURL,
	})
	require.NoError(t, err)
	return c
}
