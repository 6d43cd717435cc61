package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nellyolofsson/wt2/internal/config"
	"github.com/nellyolofsson/wt2/internal/media"
	"github.com/nellyolofsson/wt2/internal/store"
	"github.com/nellyolofsson/wt2/pkg/metrics"
	"github.com/nellyolofsson/wt2/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

type staticToken map[string]interface{}

func (t staticToken) Claims(v interface{}) error {
	b, _ := json.Marshal(map[string]interface{}(t))
	return json.Unmarshal(b, v)
}

type verifierFunc func(raw string) (middleware.Token, error)

func (f verifierFunc) Verify(_ context.Context, raw string) (middleware.Token, error) { return f(raw) }

func testConfig() *config.Config {
	return &config.Config{Server: config.ServerConfig{Environment: "development"}}
}

func newRouter(t *testing.T, d Deps) *gin.Engine {
	t.Helper()
	if d.Config == nil {
		d.Config = testConfig()
	}
	if d.Store == nil {
		d.Store = store.NewMemoryStore(store.WithUniqueFields(media.TitleSchema.UniqueFields()...))
	}
	return NewRouter(d)
}

func do(r http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestOpsEndpoints(t *testing.T) {
	r := newRouter(t, Deps{})

	w := do(r, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "healthy", w.Body.String())

	w = do(r, http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ready struct {
		Status string                 `json:"status"`
		Deps   map[string]interface{} `json:"deps"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ready))
	require.Equal(t, "ready", ready.Status)
	require.Equal(t, "memory", ready.Deps["store"])

	w = do(r, http.MethodGet, "/api/v1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Welcome to version 1")
}

func TestCORS(t *testing.T) {
	r := newRouter(t, Deps{})

	w := do(r, http.MethodOptions, "/api/v1/netflix", "", map[string]string{
		"Origin":                         "http://client.test",
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": "Authorization, Content-Type",
	})
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "DELETE")
	require.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	w = do(r, http.MethodGet, "/api/v1", "", map[string]string{"Origin": "http://client.test"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	exposed := w.Header().Get("Access-Control-Expose-Headers")
	for _, h := range []string{"Link", "X-Total-Count", "X-Page", "X-Per-Page", "X-Total-Pages"} {
		require.Contains(t, exposed, h)
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := newRouter(t, Deps{})

	w := do(r, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
	require.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
	require.Equal(t, "noopen", w.Header().Get("X-Download-Options"))
}

func TestReady_VerifierMissing(t *testing.T) {
	cfg := testConfig()
	cfg.Keycloak = config.KeycloakConfig{URL: "http://kc", Realm: "catalog"}
	r := newRouter(t, Deps{Config: cfg})

	w := do(r, http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), "not_ready")
}

func TestNoRoute(t *testing.T) {
	r := newRouter(t, Deps{})

	w := do(r, http.MethodGet, "/nowhere?x=1", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	var body struct {
		Status  int                    `json:"status"`
		Message string                 `json:"message"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 404, body.Status)
	require.Equal(t, "The requested resource was not found.", body.Message)
	require.Equal(t, "/nowhere?x=1", body.Data["url"])

	cfg := testConfig()
	cfg.Server.Environment = "production"
	w = do(newRouter(t, Deps{Config: cfg}), http.MethodGet, "/nowhere", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.JSONEq(t, `{"status":404,"message":"The requested resource was not found."}`, w.Body.String())
}

func TestWriteRoutesRequireToken(t *testing.T) {
	ver := verifierFunc(func(raw string) (middleware.Token, error) {
		if raw == "editor" {
			return staticToken{"sub": "editor"}, nil
		}
		return nil, errors.New("bad token")
	})
	r := newRouter(t, Deps{Verifier: ver})
	title := `{"show_id":"s1","type":"Movie","title":"Dick Johnson Is Dead","country":"United States"}`

	w := do(r, http.MethodPost, "/api/v1/netflix", title, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/api/v1/netflix", title, map[string]string{"Authorization": "Bearer nope"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/api/v1/netflix", title, map[string]string{"Authorization": "Bearer editor"})
	require.Equal(t, http.StatusCreated, w.Code)

	// reads stay public
	w = do(r, http.MethodGet, "/api/v1/netflix/country/United%20States", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"country":"United States"`)
}

func TestRateLimitAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.RegisterCollectors(reg)

	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 0.01, Burst: 2}
	r := newRouter(t, Deps{Config: cfg, Gatherer: reg})

	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/health", "", nil).Code)
	w := do(r, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "catalog_rate_limit_allowed_total")

	require.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "/health", "", nil).Code)
}
