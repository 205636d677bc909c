package httpx

import (
	"context"
	"errors"

	"github.com/caseworks/report-engine/internal/domain/auth"
	"github.com/caseworks/report-engine/internal/domain/token"
)

// SignatureVerifier checks a bearer token's signature and issuer claims
// against the identity provider. Satisfied by the oidc adapter.
type SignatureVerifier interface {
	Verify(ctx context.Context, bearer string) error
}

// InspectAuthenticator trusts the decoded token payload without checking the
// signature. This is the dev-mode path: tokens are minted by a local identity
// provider and the network boundary is assumed closed.
type InspectAuthenticator struct {
	Inspector *token.Inspector
}

// Authenticate decodes the bearer token and projects its claims.
func (a InspectAuthenticator) Authenticate(_ context.Context, bearer string) (auth.Principal, error) {
	if a.Inspector == nil {
		return auth.Principal{}, errors.New("token inspector is not configured")
	}
	claims, err := a.Inspector.Inspect(bearer)
	if err != nil {
		return auth.Principal{}, err
	}
	return claims.Principal(), nil
}

// VerifiedAuthenticator checks the token signature before inspection. This is
// the oidc-mode path for deployments where admission faces callers directly.
type VerifiedAuthenticator struct {
	Verifier  SignatureVerifier
	Inspector *token.Inspector
}

// Authenticate verifies the signature, then decodes and projects the claims.
func (a VerifiedAuthenticator) Authenticate(ctx context.Context, bearer string) (auth.Principal, error) {
	if a.Verifier == nil || a.Inspector == nil {
		return auth.Principal{}, errors.New("token verifier is not configured")
	}
	if err := a.Verifier.Verify(ctx, bearer); err != nil {
		return auth.Principal{}, err
	}
	claims, err := a.Inspector.Inspect(bearer)
	if err != nil {
		return auth.Principal{}, err
	}
	return claims.Principal(), nil
}
