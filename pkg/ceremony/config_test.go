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

package ceremony

import (
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigins:     []string{"https://example.com"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "missing rpid",
			mutate:  func(c *Config) { c.RPID = "" },
			wantErr: "RPID is required",
		},
		{
			name:    "missing display name",
			mutate:  func(c *Config) { c.RPDisplayName = "" },
			wantErr: "RPDisplayName is required",
		},
		{
			name:    "missing origins",
			mutate:  func(c *Config) { c.RPOrigins = nil },
			wantErr: "at least one RPOrigin is required",
		},
		{
			name:    "bad user verification",
			mutate:  func(c *Config) { c.UserVerification = "always" },
			wantErr: "invalid user verification",
		},
		{
			name:    "bad attestation",
			mutate:  func(c *Config) { c.AttestationPreference = "full" },
			wantErr: "invalid attestation preference",
		},
		{
			name:    "bad resident key",
			mutate:  func(c *Config) { c.ResidentKeyRequirement = "maybe" },
			wantErr: "invalid resident key requirement",
		},
		{
			name:    "bad attachment",
			mutate:  func(c *Config) { c.AuthenticatorAttachment = "usb" },
			wantErr: "invalid authenticator attachment",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.SetDefaults()

	assert.Equal(t, 5*time.Minute, cfg.ChallengeTTL)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, "preferred", cfg.UserVerification)
	assert.Equal(t, "none", cfg.AttestationPreference)
	assert.Equal(t, "preferred", cfg.ResidentKeyRequirement)
	assert.Empty(t, cfg.AuthenticatorAttachment)
}

func TestConfig_ToWebAuthnConfig(t *testing.T) {
	cfg := validConfig()
	cfg.UserVerification = "required"
	cfg.AttestationPreference = "direct"
	cfg.ResidentKeyRequirement = "required"
	cfg.AuthenticatorAttachment = "platform"
	cfg.Timeout = 30 * time.Second

	wcfg := cfg.ToWebAuthnConfig()

	assert.Equal(t, "example.com", wcfg.RPID)
	assert.Equal(t, "Example Corp", wcfg.RPDisplayName)
	assert.Equal(t, []string{"https://example.com"}, wcfg.RPOrigins)
	assert.Equal(t, protocol.PreferDirectAttestation, wcfg.AttestationPreference)
	assert.Equal(t, protocol.VerificationRequired, wcfg.AuthenticatorSelection.UserVerification)
	assert.Equal(t, protocol.ResidentKeyRequirementRequired, wcfg.AuthenticatorSelection.ResidentKey)
	assert.Equal(t, protocol.Platform, wcfg.AuthenticatorSelection.AuthenticatorAttachment)
	assert.True(t, wcfg.Timeouts.Login.Enforce)
	assert.Equal(t, 30*time.Second, wcfg.Timeouts.Login.Timeout)
}
