// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-bioauth.
//
// go-bioauth is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jeremyhahn/go-bioauth/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.RateLimit.Enabled = false
	cfg.Tokens.Enabled = true

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	srv, err := New(cfg, "test", logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		srv.stopOnce.Do(func() { close(srv.stopCh) })
		srv.challenges.Stop()
		srv.tracker.Stop()
		srv.limiter.Stop()
	})
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(nil, "test", nil)
	require.Error(t, err)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "test", health.Version)
	assert.Zero(t, health.Identities)

	rec = doJSON(t, srv, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bioauth_")
}

func TestLogin_CreatesIdentity(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/auth/login",
		LoginRequest{Email: "demo@bioauth.test", Password: "hunter22"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "webauthn", resp.Next)
	assert.False(t, resp.Registered)
	assert.NotEmpty(t, resp.UserID)

	// Same email logs into the same identity.
	rec = doJSON(t, srv, http.MethodPost, "/api/auth/login",
		LoginRequest{Email: "Demo@bioauth.test", Password: "hunter22"})
	require.Equal(t, http.StatusOK, rec.Code)

	var again LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.Equal(t, resp.UserID, again.UserID)
	assert.Equal(t, 1, srv.store.IdentityCount())
}

func TestLogin_Validation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name       string
		request    LoginRequest
		wantStatus int
	}{
		{"missing email", LoginRequest{Password: "hunter22"}, http.StatusBadRequest},
		{"malformed email", LoginRequest{Email: "not-an-email", Password: "hunter22"}, http.StatusBadRequest},
		{"short password", LoginRequest{Email: "demo@bioauth.test", Password: "abc"}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, "/api/auth/login", tt.request)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/auth/login", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_LockedIdentityRefused(t *testing.T) {
	srv := newTestServer(t)

	const email = "locked@bioauth.test"
	for i := 0; i < srv.tracker.Threshold(); i++ {
		srv.tracker.RecordFailure(email)
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/auth/login",
		LoginRequest{Email: email, Password: "hunter22"})
	assert.Equal(t, http.StatusLocked, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "account_locked", resp.Error)
}

func TestWebAuthnRoutesMounted(t *testing.T) {
	srv := newTestServer(t)

	// Unknown identity maps to 404, proving the ceremony handler is wired.
	rec := doJSON(t, srv, http.MethodPost, "/api/webauthn/registration/begin",
		map[string]string{"email": "ghost@bioauth.test"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit_Returns429(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerMinute = 60
	cfg.RateLimit.Burst = 1

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	srv, err := New(cfg, "test", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	first := doJSON(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, first.Code)

	second := doJSON(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
