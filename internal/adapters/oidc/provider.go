// Package oidc verifies admission bearer tokens against the identity
// provider. Inspection-mode deployments skip this layer and trust the decoded
// payload.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	apperrors "github.com/caseworks/report-engine/internal/errors"
)

// Config locates the identity provider for signature verification.
type Config struct {
	// IssuerURL is the realm issuer, e.g. https://sso.example.gov/realms/cmips.
	// A full discovery URL (.../.well-known/openid-configuration) is accepted
	// and trimmed.
	IssuerURL string
	// ClientID is the expected audience; empty skips the audience check.
	ClientID string

	HTTPClient *http.Client
}

// Verifier checks bearer signature, issuer, audience and expiry against the
// provider's published JWKS. It does not interpret claims; token inspection
// owns that.
type Verifier struct {
	verifier *gooidc.IDTokenVerifier
}

// NewVerifier discovers the provider and builds the token verifier. The
// single discovery fetch happens here, so construction needs the provider
// reachable.
func NewVerifier(ctx context.Context, cfg Config) (*Verifier, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("issuer URL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	issuer := strings.TrimSuffix(cfg.IssuerURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	issuer = strings.TrimSuffix(issuer, ".well-known/openid-configuration")
	issuer = strings.TrimSuffix(issuer, "/")

	provider, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	verifierCfg := &gooidc.Config{ClientID: cfg.ClientID}
	if cfg.ClientID == "" {
		verifierCfg.SkipClientIDCheck = true
	}

	return &Verifier{verifier: provider.Verifier(verifierCfg)}, nil
}

// Verify validates the raw bearer token. Failures surface as invalid_token
// so admission can answer 401 without leaking verifier internals.
func (v *Verifier) Verify(ctx context.Context, bearer string) error {
	if _, err := v.verifier.Verify(ctx, bearer); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidToken, "bearer verification failed")
	}
	return nil
}
