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

package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_Disabled(t *testing.T) {
	limiter := New(&Config{Enabled: false})
	defer limiter.Stop()

	for i := 0; i < 100; i++ {
		assert.True(t, limiter.Allow("client-1"))
	}
}

func TestLimiter_BurstThenDeny(t *testing.T) {
	limiter := New(&Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             3,
	})
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("client-1"))
	}
	assert.False(t, limiter.Allow("client-1"))

	// A different client has its own bucket.
	assert.True(t, limiter.Allow("client-2"))
}

func TestLimiter_Stats(t *testing.T) {
	limiter := New(&Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             1,
	})
	defer limiter.Stop()

	limiter.Allow("client-1")
	limiter.Allow("client-2")

	stats := limiter.Stats()
	assert.Equal(t, true, stats["enabled"])
	assert.Equal(t, 2, stats["active_clients"])
}

func TestMiddleware(t *testing.T) {
	limiter := New(&Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             1,
	})
	defer limiter.Stop()

	handler := Middleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "remote addr",
			remoteAddr: "10.0.0.1:1234",
			want:       "10.0.0.1",
		},
		{
			name:       "x-forwarded-for single",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7"},
			want:       "203.0.113.7",
		},
		{
			name:       "x-forwarded-for chain",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.2"},
			want:       "203.0.113.7",
		},
		{
			name:       "x-real-ip",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Real-IP": "203.0.113.9"},
			want:       "203.0.113.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}
