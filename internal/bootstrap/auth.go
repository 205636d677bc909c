package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/caseworks/report-engine/config"
	"github.com/caseworks/report-engine/internal/adapters/oidc"
	"github.com/caseworks/report-engine/internal/domain/token"
	httpx "github.com/caseworks/report-engine/internal/http"
)

// AuthConfig contains configuration for the admission authenticator.
type AuthConfig struct {
	Auth   config.AuthConfig
	Logger *slog.Logger
}

// BuildAuthenticator creates the bearer authenticator for the configured auth
// mode. Every admission route sits behind it, so a misconfigured oidc mode is
// a startup error rather than a silently open API.
//
//nolint:ireturn // returning httpx.TokenAuthenticator picks inspect or verified auth at runtime.
func BuildAuthenticator(ctx context.Context, cfg AuthConfig) (httpx.TokenAuthenticator, error) {
	inspector := token.NewInspector(cfg.Auth.ClientID)

	switch cfg.Auth.Mode {
	case config.AuthModeInspect:
		if cfg.Logger != nil {
			cfg.Logger.InfoContext(ctx, "token signature verification disabled", "auth_mode", cfg.Auth.Mode)
		}
		return httpx.InspectAuthenticator{Inspector: inspector}, nil

	case config.AuthModeOIDC:
		verifier, err := oidc.NewVerifier(ctx, oidc.Config{
			IssuerURL: cfg.Auth.IssuerURL,
			ClientID:  cfg.Auth.ClientID,
		})
		if err != nil {
			return nil, fmt.Errorf("build oidc verifier: %w", err)
		}
		if cfg.Logger != nil {
			cfg.Logger.InfoContext(ctx, "oidc token verification enabled", "issuer", cfg.Auth.IssuerURL)
		}
		return httpx.VerifiedAuthenticator{Verifier: verifier, Inspector: inspector}, nil

	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
}
