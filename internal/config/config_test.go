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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Success(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "0.0.0.0"
  port: 9090

logging:
  level: "debug"
  format: "json"

relying_party:
  id: "auth.example.com"
  display_name: "Example Auth"
  origins:
    - "https://auth.example.com"
    - "https://www.example.com"
  challenge_ttl_seconds: 120
  timeout_seconds: 30
  user_verification: "required"

lockout:
  threshold: 5
  window_minutes: 15

tokens:
  enabled: true
  issuer: "example-auth"
  ttl_minutes: 30

ratelimit:
  enabled: true
  requests_per_minute: 120
  burst: 20

metrics:
  enabled: true
  path: "/metrics"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "auth.example.com", cfg.RelyingParty.ID)
	assert.Len(t, cfg.RelyingParty.Origins, 2)
	assert.Equal(t, 5, cfg.Lockout.Threshold)
	assert.Equal(t, 15, cfg.Lockout.WindowMin)
	assert.Equal(t, "example-auth", cfg.Tokens.Issuer)
	assert.Equal(t, 120, cfg.RateLimit.RequestsPerMinute)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "server:\n  port: [not a port\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.RelyingParty.ID)
	assert.Equal(t, 3, cfg.Lockout.Threshold)
	assert.Equal(t, 30, cfg.Lockout.WindowMin)
	assert.Equal(t, 30, cfg.Lockout.SweepInterval)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
relying_party:
  id: "auth.example.com"
  origins:
    - "https://auth.example.com"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "auth.example.com", cfg.RelyingParty.ID)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Lockout.Threshold)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BIOAUTH_HOST", "0.0.0.0")
	t.Setenv("BIOAUTH_PORT", "9999")
	t.Setenv("BIOAUTH_LOG_LEVEL", "warn")
	t.Setenv("BIOAUTH_RP_ID", "env.example.com")
	t.Setenv("BIOAUTH_RP_ORIGINS", "https://env.example.com, https://alt.example.com")
	t.Setenv("BIOAUTH_LOCKOUT_THRESHOLD", "7")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "env.example.com", cfg.RelyingParty.ID)
	assert.Equal(t, []string{"https://env.example.com", "https://alt.example.com"}, cfg.RelyingParty.Origins)
	assert.Equal(t, 7, cfg.Lockout.Threshold)
}

func TestLoad_InvalidEnvPortKeepsDefault(t *testing.T) {
	t.Setenv("BIOAUTH_PORT", "not-a-port")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "invalid log format",
		},
		{
			name:    "tls without cert",
			mutate:  func(c *Config) { c.TLS.Enabled = true; c.TLS.KeyFile = "key.pem" },
			wantErr: "cert_file is required",
		},
		{
			name:    "missing relying party id",
			mutate:  func(c *Config) { c.RelyingParty.ID = "" },
			wantErr: "relying party id",
		},
		{
			name:    "no origins",
			mutate:  func(c *Config) { c.RelyingParty.Origins = nil },
			wantErr: "origin",
		},
		{
			name:    "zero lockout threshold",
			mutate:  func(c *Config) { c.Lockout.Threshold = 0 },
			wantErr: "lockout threshold",
		},
		{
			name:    "ratelimit without rate",
			mutate:  func(c *Config) { c.RateLimit.Enabled = true; c.RateLimit.RequestsPerMinute = 0 },
			wantErr: "requests_per_minute",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.RelyingParty.ChallengeTTLSec = 120
	cfg.Lockout.WindowMin = 15
	cfg.Tokens.TTLMin = 30

	cc := cfg.CeremonyConfig()
	assert.Equal(t, "localhost", cc.RPID)
	assert.Equal(t, 2*time.Minute, cc.ChallengeTTL)
	assert.False(t, cc.Debug)

	lc := cfg.LockoutConfig()
	assert.Equal(t, 3, lc.Threshold)
	assert.Equal(t, 15*time.Minute, lc.Window)

	tc := cfg.TokenConfig()
	assert.Equal(t, "go-bioauth", tc.Issuer)
	assert.Equal(t, 30*time.Minute, tc.TTL)

	rc := cfg.RateLimitConfig()
	assert.True(t, rc.Enabled)
	assert.Equal(t, 60, rc.RequestsPerMinute)
}

func TestCeremonyConfig_DebugFollowsLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "debug"
	assert.True(t, cfg.CeremonyConfig().Debug)
}
