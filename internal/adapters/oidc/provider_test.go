package oidc

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/caseworks/report-engine/internal/errors"
)

// fakeIssuer serves a discovery document and a JWKS for one RSA key, and
// signs tokens with it.
type fakeIssuer struct {
	key    *rsa.PrivateKey
	server *httptest.Server
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeIssuer{key: key}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 f.server.URL,
			"jwks_uri":               f.server.URL + "/jwks",
			"authorization_endpoint": f.server.URL + "/auth",
			"token_endpoint":         f.server.URL + "/token",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, _ *http.Request) {
		pub := &f.key.PublicKey
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]any{{
				"kty": "RSA",
				"alg": "RS256",
				"use": "sig",
				"kid": "test-key",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	})

	// Unstarted so the server field is set before the accept loop spins up.
	f.server = httptest.NewUnstartedServer(mux)
	f.server.Start()
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeIssuer) sign(t *testing.T, claims map[string]any) string {
	t.Helper()

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT","kid":"test-key"}`))
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	body := base64.RawURLEncoding.EncodeToString(payload)

	signingInput := header + "." + body
	digest := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, f.key, crypto.SHA256, digest[:])
	require.NoError(t, err)

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)
}

func (f *fakeIssuer) claims(overrides map[string]any) map[string]any {
	claims := map[string]any{
		"iss": f.server.URL,
		"aud": "report-engine",
		"sub": "user-123",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Add(-time.Minute).Unix(),
	}
	for key, value := range overrides {
		claims[key] = value
	}
	return claims
}

func TestVerifyAcceptsSignedToken(t *testing.T) {
	issuer := newFakeIssuer(t)

	verifier, err := NewVerifier(context.Background(), Config{
		IssuerURL: issuer.server.URL,
		ClientID:  "report-engine",
	})
	require.NoError(t, err)

	token := issuer.sign(t, issuer.claims(nil))
	require.NoError(t, verifier.Verify(context.Background(), token))
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	issuer := newFakeIssuer(t)
	forger := newFakeIssuer(t)

	verifier, err := NewVerifier(context.Background(), Config{
		IssuerURL: issuer.server.URL,
		ClientID:  "report-engine",
	})
	require.NoError(t, err)

	// Claims name the real issuer but the signature comes from another key.
	token := forger.sign(t, issuer.claims(nil))
	err = verifier.Verify(context.Background(), token)

	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidToken(err))
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuer := newFakeIssuer(t)

	verifier, err := NewVerifier(context.Background(), Config{
		IssuerURL: issuer.server.URL,
		ClientID:  "report-engine",
	})
	require.NoError(t, err)

	token := issuer.sign(t, issuer.claims(map[string]any{
		"exp": time.Now().Add(-time.Hour).Unix(),
	}))
	err = verifier.Verify(context.Background(), token)

	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidToken(err))
}

func TestVerifyAudienceCheck(t *testing.T) {
	issuer := newFakeIssuer(t)
	token := issuer.sign(t, issuer.claims(map[string]any{"aud": "other-client"}))

	strict, err := NewVerifier(context.Background(), Config{
		IssuerURL: issuer.server.URL,
		ClientID:  "report-engine",
	})
	require.NoError(t, err)
	require.Error(t, strict.Verify(context.Background(), token))

	lax, err := NewVerifier(context.Background(), Config{IssuerURL: issuer.server.URL})
	require.NoError(t, err)
	require.NoError(t, lax.Verify(context.Background(), token))
}

func TestNewVerifierAcceptsDiscoveryURL(t *testing.T) {
	issuer := newFakeIssuer(t)

	verifier, err := NewVerifier(context.Background(), Config{
		IssuerURL: issuer.server.URL + "/.well-known/openid-configuration",
		ClientID:  "report-engine",
	})
	require.NoError(t, err)

	token := issuer.sign(t, issuer.claims(nil))
	require.NoError(t, verifier.Verify(context.Background(), token))
}

func TestNewVerifierValidation(t *testing.T) {
	_, err := NewVerifier(context.Background(), Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "issuer URL is required")
}

func TestNewVerifierDiscoveryFailure(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()

	_, err := NewVerifier(context.Background(), Config{IssuerURL: dead.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oidc new provider")
}
