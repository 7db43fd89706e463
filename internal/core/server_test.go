package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindpoint/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, token string) *Server {
	t.Helper()
	cfg := &config.Config{Server: config.ServerConfig{Port: "8080", APIToken: token}}
	srv, err := NewServer(cfg, discardLogger())
	require.NoError(t, err)

	srv.V1RouteRegistrars = []RouteRegistrar{
		func(r chi.Router) {
			r.Get("/ping", func(w http.ResponseWriter, req *http.Request) {
				JSON(w, req, http.StatusOK, map[string]string{"pong": "ok"})
			})
			r.Get("/boom", func(w http.ResponseWriter, req *http.Request) {
				panic("handler exploded")
			})
		},
	}
	srv.MountRoutes()
	return srv
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return string(resp.Error.Code)
}

func TestServer_HealthIsPublic(t *testing.T) {
	srv := newTestServer(t, "secret")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

type failingProbe struct{}

func (failingProbe) Name() string { return "database" }
func (failingProbe) Check(_ context.Context) error { return errors.New("connection refused") }

type healthyProbe struct{}

func (healthyProbe) Name() string { return "database" }
func (healthyProbe) Check(_ context.Context) error { return nil }

func TestServer_HealthReportsUnhealthyProbe(t *testing.T) {
	srv := newTestServer(t, "secret")
	srv.HealthProbes = []HealthProbe{failingProbe{}}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestServer_HealthReportsHealthyProbe(t *testing.T) {
	srv := newTestServer(t, "secret")
	srv.HealthProbes = []HealthProbe{healthyProbe{}}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_MissingToken(t *testing.T) {
	srv := newTestServer(t, "secret")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ping", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "auth_token_missing", errorCode(t, rec.Body.Bytes()))
}

func TestAuth_InvalidToken(t *testing.T) {
	srv := newTestServer(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "auth_token_invalid", errorCode(t, rec.Body.Bytes()))
}

func TestAuth_ValidToken(t *testing.T) {
	srv := newTestServer(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pong")
}

func TestAuth_UnconfiguredTokenLocksAPIShut(t *testing.T) {
	srv := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "auth_token_invalid", errorCode(t, rec.Body.Bytes()))
}

func TestRequestID_GeneratedWhenAbsent(t *testing.T) {
	srv := newTestServer(t, "secret")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestID_Propagated(t *testing.T) {
	srv := newTestServer(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestRecoverer_ConvertsPanicTo500(t *testing.T) {
	srv := newTestServer(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/v1/boom", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_unexpected_error")
}
