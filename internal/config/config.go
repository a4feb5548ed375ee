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
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jeremyhahn/go-bioauth/pkg/ceremony"
	"github.com/jeremyhahn/go-bioauth/pkg/lockout"
	"github.com/jeremyhahn/go-bioauth/pkg/ratelimit"
	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	TLS          TLSConfig          `yaml:"tls"`
	Logging      LoggingConfig      `yaml:"logging"`
	RelyingParty RelyingPartyConfig `yaml:"relying_party"`
	Lockout      LockoutConfig      `yaml:"lockout"`
	Tokens       TokensConfig       `yaml:"tokens"`
	RateLimit    RateLimitConfig    `yaml:"ratelimit"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Health       HealthConfig       `yaml:"health"`
}

// ServerConfig contains server-level settings
type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ReadTimeoutSec  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSec int    `yaml:"write_timeout_seconds"`
	IdleTimeoutSec  int    `yaml:"idle_timeout_seconds"`
}

// TLSConfig controls TLS/SSL settings
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RelyingPartyConfig contains the WebAuthn relying party settings
type RelyingPartyConfig struct {
	ID                      string   `yaml:"id"`
	DisplayName             string   `yaml:"display_name"`
	Origins                 []string `yaml:"origins"`
	ChallengeTTLSec         int      `yaml:"challenge_ttl_seconds"`
	TimeoutSec              int      `yaml:"timeout_seconds"`
	UserVerification        string   `yaml:"user_verification"`
	Attestation             string   `yaml:"attestation"`
	ResidentKey             string   `yaml:"resident_key"`
	AuthenticatorAttachment string   `yaml:"authenticator_attachment"`
}

// LockoutConfig contains account lockout settings
type LockoutConfig struct {
	Threshold     int `yaml:"threshold"`
	WindowMin     int `yaml:"window_minutes"`
	SweepInterval int `yaml:"sweep_interval_minutes"`
}

// TokensConfig contains JWT issuance settings
type TokensConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
	TTLMin   int    `yaml:"ttl_minutes"`
	KeyFile  string `yaml:"key_file"`
}

// RateLimitConfig contains HTTP rate limiting settings
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// MetricsConfig contains prometheus metrics settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// HealthConfig contains health check endpoint settings
type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration populated with sensible defaults for
// local development: plaintext HTTP on localhost with the relying party
// pinned to localhost origins.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeoutSec:  15,
			WriteTimeoutSec: 15,
			IdleTimeoutSec:  60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		RelyingParty: RelyingPartyConfig{
			ID:               "localhost",
			DisplayName:      "go-bioauth",
			Origins:          []string{"http://localhost:8080"},
			ChallengeTTLSec:  300,
			TimeoutSec:       60,
			UserVerification: "preferred",
			Attestation:      "none",
			ResidentKey:      "preferred",
		},
		Lockout: LockoutConfig{
			Threshold:     lockout.DefaultThreshold,
			WindowMin:     int(lockout.DefaultWindow / time.Minute),
			SweepInterval: int(lockout.DefaultWindow / time.Minute),
		},
		Tokens: TokensConfig{
			Enabled: true,
			Issuer:  "go-bioauth",
			TTLMin:  60,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 60,
			Burst:             10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Health: HealthConfig{
			Enabled: true,
			Path:    "/health",
		},
	}
}

// Load reads configuration from a YAML file and applies environment variable overrides.
// An empty path returns the defaults with env overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - Config file path is provided by admin/user
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("BIOAUTH_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portEnv := os.Getenv("BIOAUTH_PORT"); portEnv != "" {
		port, err := strconv.Atoi(portEnv)
		if err != nil {
			log.Printf("Warning: invalid BIOAUTH_PORT value %q, using default %d: %v",
				portEnv, cfg.Server.Port, err)
		} else if port < 1 || port > 65535 {
			log.Printf("Warning: invalid BIOAUTH_PORT value %q (out of range 1-65535), using default %d",
				portEnv, cfg.Server.Port)
		} else {
			cfg.Server.Port = port
		}
	}

	// Logging
	if level := os.Getenv("BIOAUTH_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("BIOAUTH_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	// Relying party
	if rpID := os.Getenv("BIOAUTH_RP_ID"); rpID != "" {
		cfg.RelyingParty.ID = rpID
	}
	if rpName := os.Getenv("BIOAUTH_RP_NAME"); rpName != "" {
		cfg.RelyingParty.DisplayName = rpName
	}
	if origins := os.Getenv("BIOAUTH_RP_ORIGINS"); origins != "" {
		var parsed []string
		for _, origin := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				parsed = append(parsed, trimmed)
			}
		}
		if len(parsed) > 0 {
			cfg.RelyingParty.Origins = parsed
		}
	}

	// Lockout
	if thresholdEnv := os.Getenv("BIOAUTH_LOCKOUT_THRESHOLD"); thresholdEnv != "" {
		threshold, err := strconv.Atoi(thresholdEnv)
		if err != nil || threshold < 1 {
			log.Printf("Warning: invalid BIOAUTH_LOCKOUT_THRESHOLD value %q, using default %d",
				thresholdEnv, cfg.Lockout.Threshold)
		} else {
			cfg.Lockout.Threshold = threshold
		}
	}
	if windowEnv := os.Getenv("BIOAUTH_LOCKOUT_WINDOW_MINUTES"); windowEnv != "" {
		window, err := strconv.Atoi(windowEnv)
		if err != nil || window < 1 {
			log.Printf("Warning: invalid BIOAUTH_LOCKOUT_WINDOW_MINUTES value %q, using default %d",
				windowEnv, cfg.Lockout.WindowMin)
		} else {
			cfg.Lockout.WindowMin = window
		}
	}

	// Tokens
	if issuer := os.Getenv("BIOAUTH_TOKEN_ISSUER"); issuer != "" {
		cfg.Tokens.Issuer = issuer
	}
	if keyFile := os.Getenv("BIOAUTH_TOKEN_KEY_FILE"); keyFile != "" {
		cfg.Tokens.KeyFile = keyFile
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return fmt.Errorf("TLS cert_file is required when TLS is enabled")
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key_file is required when TLS is enabled")
		}
	}

	if c.RelyingParty.ID == "" {
		return fmt.Errorf("relying party id must be specified")
	}
	if len(c.RelyingParty.Origins) == 0 {
		return fmt.Errorf("at least one relying party origin must be specified")
	}

	if c.Lockout.Threshold < 1 {
		return fmt.Errorf("lockout threshold must be at least 1")
	}
	if c.Lockout.WindowMin < 1 {
		return fmt.Errorf("lockout window must be at least 1 minute")
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute < 1 {
		return fmt.Errorf("ratelimit requests_per_minute must be at least 1")
	}

	return nil
}

// CeremonyConfig converts the relying party section into the ceremony
// package's configuration.
func (c *Config) CeremonyConfig() *ceremony.Config {
	return &ceremony.Config{
		RPID:                    c.RelyingParty.ID,
		RPDisplayName:           c.RelyingParty.DisplayName,
		RPOrigins:               c.RelyingParty.Origins,
		ChallengeTTL:            time.Duration(c.RelyingParty.ChallengeTTLSec) * time.Second,
		Timeout:                 time.Duration(c.RelyingParty.TimeoutSec) * time.Second,
		UserVerification:        c.RelyingParty.UserVerification,
		AttestationPreference:   c.RelyingParty.Attestation,
		ResidentKeyRequirement:  c.RelyingParty.ResidentKey,
		AuthenticatorAttachment: c.RelyingParty.AuthenticatorAttachment,
		Debug:                   strings.EqualFold(c.Logging.Level, "debug"),
	}
}

// LockoutConfig converts the lockout section into the lockout package's
// configuration.
func (c *Config) LockoutConfig() *lockout.Config {
	return &lockout.Config{
		Threshold:     c.Lockout.Threshold,
		Window:        time.Duration(c.Lockout.WindowMin) * time.Minute,
		SweepInterval: time.Duration(c.Lockout.SweepInterval) * time.Minute,
	}
}

// TokenConfig converts the tokens section into a JWT generator configuration.
func (c *Config) TokenConfig() *ceremony.TokenConfig {
	return &ceremony.TokenConfig{
		Issuer:   c.Tokens.Issuer,
		Audience: c.Tokens.Audience,
		TTL:      time.Duration(c.Tokens.TTLMin) * time.Minute,
	}
}

// RateLimitConfig converts the ratelimit section into the ratelimit
// package's configuration.
func (c *Config) RateLimitConfig() *ratelimit.Config {
	return &ratelimit.Config{
		Enabled:           c.RateLimit.Enabled,
		RequestsPerMinute: c.RateLimit.RequestsPerMinute,
		Burst:             c.RateLimit.Burst,
	}
}

// Addr returns the host:port address the server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
