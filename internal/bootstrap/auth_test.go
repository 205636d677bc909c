package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/caseworks/report-engine/config"
	httpx "github.com/caseworks/report-engine/internal/http"
)

func TestBuildAuthenticatorInspectMode(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	authn, err := BuildAuthenticator(context.Background(), AuthConfig{
		Auth: config.AuthConfig{
			Mode:     config.AuthModeInspect,
			ClientID: "report-engine",
		},
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("BuildAuthenticator() error = %v", err)
	}
	if _, ok := authn.(httpx.InspectAuthenticator); !ok {
		t.Fatalf("BuildAuthenticator() = %T, want httpx.InspectAuthenticator", authn)
	}
}

func TestBuildAuthenticatorOIDCRequiresIssuer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := BuildAuthenticator(context.Background(), AuthConfig{
		Auth: config.AuthConfig{
			Mode:     config.AuthModeOIDC,
			ClientID: "report-engine",
		},
		Logger: logger,
	})
	if err == nil {
		t.Fatal("BuildAuthenticator() error = nil, want issuer error")
	}
}

func TestBuildAuthenticatorRejectsUnknownMode(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := BuildAuthenticator(context.Background(), AuthConfig{
		Auth: config.AuthConfig{
			Mode:     config.AuthMode("session"),
			ClientID: "report-engine",
		},
		Logger: logger,
	})
	if err == nil {
		t.Fatal("BuildAuthenticator() error = nil, want unsupported mode error")
	}
}
