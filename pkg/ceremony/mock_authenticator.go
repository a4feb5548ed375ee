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
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math/big"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

// MockAuthenticator simulates a WebAuthn authenticator for testing. It
// produces parsed attestation and assertion data that pass the service's
// verification, including a real ES256 signature over the assertion.
type MockAuthenticator struct {
	// AAGUID is the authenticator's model identifier (16 bytes).
	AAGUID []byte

	// CredentialID identifies the credential minted by this authenticator.
	CredentialID []byte

	// SignCount is the authenticator's signature counter.
	SignCount uint32

	// FrozenCounter stops the counter from advancing on assertions,
	// which makes every assertion after the first look replayed.
	FrozenCounter bool

	// UserPresent and UserVerified control the UP and UV flags.
	UserPresent  bool
	UserVerified bool

	privateKey *ecdsa.PrivateKey
	rpID       string
	rpIDHash   []byte
}

// MockAuthenticatorOption configures a MockAuthenticator.
type MockAuthenticatorOption func(*MockAuthenticator)

// WithAAGUID sets a custom AAGUID.
func WithAAGUID(aaguid []byte) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.AAGUID = aaguid
	}
}

// WithCredentialID sets a custom credential ID.
func WithCredentialID(credID []byte) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.CredentialID = credID
	}
}

// WithSignCount sets the initial signature counter.
func WithSignCount(count uint32) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.SignCount = count
	}
}

// WithFrozenCounter keeps the signature counter fixed across assertions.
func WithFrozenCounter() MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.FrozenCounter = true
	}
}

// WithUserVerified sets the UV flag.
func WithUserVerified(uv bool) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.UserVerified = uv
	}
}

// NewMockAuthenticator creates a mock authenticator bound to the given
// relying party ID.
func NewMockAuthenticator(rpID string, opts ...MockAuthenticatorOption) (*MockAuthenticator, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	aaguid := make([]byte, 16)
	if _, err := rand.Read(aaguid); err != nil {
		return nil, err
	}

	credID := make([]byte, 32)
	if _, err := rand.Read(credID); err != nil {
		return nil, err
	}

	rpIDHash := sha256.Sum256([]byte(rpID))

	m := &MockAuthenticator{
		AAGUID:       aaguid,
		CredentialID: credID,
		SignCount:    0,
		UserPresent:  true,
		UserVerified: true,
		privateKey:   privateKey,
		rpID:         rpID,
		rpIDHash:     rpIDHash[:],
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// PublicKey returns the authenticator's public key.
func (m *MockAuthenticator) PublicKey() crypto.PublicKey {
	return m.privateKey.Public()
}

// PublicKeyBytes returns the public key as a COSE EC2 key.
func (m *MockAuthenticator) PublicKeyBytes() ([]byte, error) {
	pubKey := m.privateKey.Public().(*ecdsa.PublicKey)

	coseKey := map[int]interface{}{
		1:  2,                          // kty: EC2
		3:  int(webauthncose.AlgES256), // alg: ES256
		-1: 1,                          // crv: P-256
		-2: pubKey.X.Bytes(),           // x coordinate
		-3: pubKey.Y.Bytes(),           // y coordinate
	}

	return webauthncbor.Marshal(coseKey)
}

// Attest produces parsed credential creation data for a registration
// ceremony, using the "none" attestation format.
func (m *MockAuthenticator) Attest(challenge []byte, origin string) (*protocol.ParsedCredentialCreationData, error) {
	authData, err := m.buildAuthenticatorData(true)
	if err != nil {
		return nil, err
	}

	clientDataJSON := m.buildClientDataJSON(challenge, origin, "webauthn.create")

	attestationObject := map[string]interface{}{
		"authData": authData,
		"fmt":      "none",
		"attStmt":  map[string]interface{}{},
	}
	attestationObjectBytes, err := webauthncbor.Marshal(attestationObject)
	if err != nil {
		return nil, err
	}

	pubKeyBytes, err := m.PublicKeyBytes()
	if err != nil {
		return nil, err
	}

	parsedAttObj := protocol.AttestationObject{
		Format:       "none",
		AttStatement: map[string]interface{}{},
		AuthData: protocol.AuthenticatorData{
			RPIDHash: m.rpIDHash,
			Flags:    m.buildFlags(true),
			Counter:  m.SignCount,
			AttData: protocol.AttestedCredentialData{
				AAGUID:              m.AAGUID,
				CredentialID:        m.CredentialID,
				CredentialPublicKey: pubKeyBytes,
			},
		},
	}

	credentialIDBase64 := base64.RawURLEncoding.EncodeToString(m.CredentialID)

	return &protocol.ParsedCredentialCreationData{
		ParsedPublicKeyCredential: protocol.ParsedPublicKeyCredential{
			ParsedCredential: protocol.ParsedCredential{
				ID:   credentialIDBase64,
				Type: "public-key",
			},
			RawID:                  m.CredentialID,
			ClientExtensionResults: protocol.AuthenticationExtensionsClientOutputs{},
		},
		Response: protocol.ParsedAttestationResponse{
			CollectedClientData: protocol.CollectedClientData{
				Type:      "webauthn.create",
				Challenge: base64.RawURLEncoding.EncodeToString(challenge),
				Origin:    origin,
			},
			AttestationObject: parsedAttObj,
			Transports:        []protocol.AuthenticatorTransport{protocol.USB},
		},
		Raw: protocol.CredentialCreationResponse{
			PublicKeyCredential: protocol.PublicKeyCredential{
				Credential: protocol.Credential{
					ID:   credentialIDBase64,
					Type: "public-key",
				},
				RawID:                  m.CredentialID,
				ClientExtensionResults: protocol.AuthenticationExtensionsClientOutputs{},
			},
			AttestationResponse: protocol.AuthenticatorAttestationResponse{
				AuthenticatorResponse: protocol.AuthenticatorResponse{
					ClientDataJSON: clientDataJSON,
				},
				AttestationObject: attestationObjectBytes,
				Transports:        []string{"usb"},
			},
		},
	}, nil
}

// Assert produces parsed credential assertion data for an authentication
// ceremony. Unless the counter is frozen, it advances before signing, the
// way hardware counters do.
func (m *MockAuthenticator) Assert(challenge, userHandle []byte, origin string) (*protocol.ParsedCredentialAssertionData, error) {
	if !m.FrozenCounter {
		m.SignCount++
	}

	authData, err := m.buildAuthenticatorData(false)
	if err != nil {
		return nil, err
	}

	clientDataJSON := m.buildClientDataJSON(challenge, origin, "webauthn.get")
	clientDataHash := sha256.Sum256(clientDataJSON)

	// Signature base is authData || SHA-256(clientDataJSON).
	signedData := append(authData, clientDataHash[:]...)
	signature, err := m.sign(signedData)
	if err != nil {
		return nil, err
	}

	parsedAuthData := protocol.AuthenticatorData{
		RPIDHash: m.rpIDHash,
		Flags:    m.buildFlags(false),
		Counter:  m.SignCount,
	}

	credentialIDBase64 := base64.RawURLEncoding.EncodeToString(m.CredentialID)

	return &protocol.ParsedCredentialAssertionData{
		ParsedPublicKeyCredential: protocol.ParsedPublicKeyCredential{
			ParsedCredential: protocol.ParsedCredential{
				ID:   credentialIDBase64,
				Type: "public-key",
			},
			RawID:                  m.CredentialID,
			ClientExtensionResults: protocol.AuthenticationExtensionsClientOutputs{},
		},
		Response: protocol.ParsedAssertionResponse{
			CollectedClientData: protocol.CollectedClientData{
				Type:      "webauthn.get",
				Challenge: base64.RawURLEncoding.EncodeToString(challenge),
				Origin:    origin,
			},
			AuthenticatorData: parsedAuthData,
			Signature:         signature,
			UserHandle:        userHandle,
		},
		Raw: protocol.CredentialAssertionResponse{
			PublicKeyCredential: protocol.PublicKeyCredential{
				Credential: protocol.Credential{
					ID:   credentialIDBase64,
					Type: "public-key",
				},
				RawID:                  m.CredentialID,
				ClientExtensionResults: protocol.AuthenticationExtensionsClientOutputs{},
			},
			AssertionResponse: protocol.AuthenticatorAssertionResponse{
				AuthenticatorResponse: protocol.AuthenticatorResponse{
					ClientDataJSON: clientDataJSON,
				},
				AuthenticatorData: authData,
				Signature:         signature,
				UserHandle:        userHandle,
			},
		},
	}, nil
}

func (m *MockAuthenticator) buildFlags(includeCredential bool) protocol.AuthenticatorFlags {
	var flags byte
	if m.UserPresent {
		flags |= 0x01 // UP
	}
	if m.UserVerified {
		flags |= 0x04 // UV
	}
	if includeCredential {
		flags |= 0x40 // AT
	}
	return protocol.AuthenticatorFlags(flags)
}

// buildAuthenticatorData serializes the authenticator data structure,
// including attested credential data when registering.
func (m *MockAuthenticator) buildAuthenticatorData(includeCredential bool) ([]byte, error) {
	var buf bytes.Buffer

	buf.Write(m.rpIDHash)
	buf.WriteByte(byte(m.buildFlags(includeCredential)))

	signCountBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(signCountBytes, m.SignCount)
	buf.Write(signCountBytes)

	if includeCredential {
		buf.Write(m.AAGUID)

		credIDLen := make([]byte, 2)
		binary.BigEndian.PutUint16(credIDLen, uint16(len(m.CredentialID)))
		buf.Write(credIDLen)
		buf.Write(m.CredentialID)

		pubKeyBytes, err := m.PublicKeyBytes()
		if err != nil {
			return nil, err
		}
		buf.Write(pubKeyBytes)
	}

	return buf.Bytes(), nil
}

func (m *MockAuthenticator) buildClientDataJSON(challenge []byte, origin, ceremonyType string) []byte {
	clientData := struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
		Origin    string `json:"origin"`
	}{
		Type:      ceremonyType,
		Challenge: base64.RawURLEncoding.EncodeToString(challenge),
		Origin:    origin,
	}

	jsonBytes, _ := json.Marshal(clientData)
	return jsonBytes
}

func (m *MockAuthenticator) sign(data []byte) ([]byte, error) {
	hash := sha256.Sum256(data)
	r, s, err := ecdsa.Sign(rand.Reader, m.privateKey, hash[:])
	if err != nil {
		return nil, err
	}
	return asn1MarshalSignature(r, s)
}

// asn1MarshalSignature encodes r and s as an ASN.1 DER ECDSA signature.
func asn1MarshalSignature(r, s *big.Int) ([]byte, error) {
	rBytes := r.Bytes()
	sBytes := s.Bytes()

	// A set high bit would read as negative; prepend a zero octet.
	if len(rBytes) > 0 && rBytes[0] >= 0x80 {
		rBytes = append([]byte{0x00}, rBytes...)
	}
	if len(sBytes) > 0 && sBytes[0] >= 0x80 {
		sBytes = append([]byte{0x00}, sBytes...)
	}

	rLen := len(rBytes)
	sLen := len(sBytes)
	seqLen := 2 + rLen + 2 + sLen

	sig := make([]byte, 0, 2+seqLen)
	sig = append(sig, 0x30)
	sig = append(sig, byte(seqLen))
	sig = append(sig, 0x02)
	sig = append(sig, byte(rLen))
	sig = append(sig, rBytes...)
	sig = append(sig, 0x02)
	sig = append(sig, byte(sLen))
	sig = append(sig, sBytes...)

	return sig, nil
}
