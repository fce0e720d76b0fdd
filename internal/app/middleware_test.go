package app

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conductor-hq/conductor-stock/internal/shared"
)

func TestIdentityMiddlewareParsesHeaders(t *testing.T) {
	var got shared.Identity
	var ok bool
	handler := identityMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = shared.IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/stock/levels", nil)
	req.Header.Set("X-Tenant-ID", "42")
	req.Header.Set("X-Actor-ID", "7")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, ok)
	require.Equal(t, int64(42), got.TenantID)
	require.Equal(t, int64(7), got.ActorID)
}

func TestIdentityMiddlewareWithoutHeaders(t *testing.T) {
	var ok bool
	handler := identityMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok = shared.IdentityFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.False(t, ok)
}

func TestNewRouterHealthz(t *testing.T) {
	router := NewRouter(RouterParams{Logger: slog.Default(), Config: &Config{AppEnv: "test"}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
