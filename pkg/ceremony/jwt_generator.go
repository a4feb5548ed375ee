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
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenConfig configures session tokens minted after a verified
// authentication ceremony.
type TokenConfig struct {
	Issuer   string        `yaml:"issuer" json:"issuer" mapstructure:"issuer"`
	Audience string        `yaml:"audience" json:"audience" mapstructure:"audience"`
	TTL      time.Duration `yaml:"ttl" json:"ttl" mapstructure:"ttl"`
}

// JWTGenerator mints ES256-signed session tokens. It implements
// TokenGenerator.
type JWTGenerator struct {
	config TokenConfig
	key    *ecdsa.PrivateKey
}

// NewJWTGenerator creates a token generator with the given signing key. A
// nil key produces an ephemeral P-256 key, which is fine for a single
// process but invalidates tokens across restarts.
func NewJWTGenerator(config TokenConfig, key *ecdsa.PrivateKey) (*JWTGenerator, error) {
	if key == nil {
		var err error
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
	}
	if config.Issuer == "" {
		config.Issuer = "go-bioauth"
	}
	if config.Audience == "" {
		config.Audience = config.Issuer
	}
	if config.TTL == 0 {
		config.TTL = time.Hour
	}
	return &JWTGenerator{config: config, key: key}, nil
}

// GenerateToken mints a signed token for the identity. The subject is the
// identity's base64url-encoded user handle.
func (g *JWTGenerator) GenerateToken(ctx context.Context, identity *Identity) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":      g.config.Issuer,
		"aud":      g.config.Audience,
		"sub":      base64.RawURLEncoding.EncodeToString(identity.Handle),
		"iat":      now.Unix(),
		"nbf":      now.Unix(),
		"exp":      now.Add(g.config.TTL).Unix(),
		"username": identity.Key,
		"name":     identity.Name,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(g.key)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

// PublicKey returns the verification key for minted tokens.
func (g *JWTGenerator) PublicKey() *ecdsa.PublicKey {
	return &g.key.PublicKey
}

// ParseToken verifies a minted token and returns its claims.
func (g *JWTGenerator) ParseToken(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return &g.key.PublicKey, nil
	},
		jwt.WithIssuer(g.config.Issuer),
		jwt.WithAudience(g.config.Audience),
		jwt.WithValidMethods([]string{"ES256"}))
	if err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}
	return claims, nil
}
