package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode selects how admission treats bearer tokens.
type AuthMode string

const (
	// AuthModeOIDC verifies token signatures against the identity provider
	// before inspection.
	AuthModeOIDC AuthMode = "oidc"
	// AuthModeInspect trusts the decoded payload without verification
	// (for development behind a closed network boundary).
	AuthModeInspect AuthMode = "inspect"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oidc", "inspect":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oidc, inspect)", v)
	}
}

// AuthConfig groups admission authentication configuration.
type AuthConfig struct {
	// Mode determines whether bearer signatures are verified.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"inspect"`

	// ClientID is the OAuth client whose resource_access entry carries the
	// caller's roles. In oidc mode it doubles as the expected audience.
	ClientID string `env:"AUTH_CLIENT_ID" envDefault:"report-engine"`

	// IssuerURL is the realm issuer used for discovery. Required in oidc mode;
	// a full discovery URL is accepted.
	IssuerURL string `env:"OIDC_ISSUER_URL"`
}

// IdentityConfig locates the identity provider's admin API and the
// password-grant client used to mint service tokens for scheduled jobs.
// All variables carry the IDP_ prefix.
type IdentityConfig struct {
	// BaseURL is the identity-provider root, e.g. https://sso.example.gov.
	// Empty disables both the admin client and the minter.
	BaseURL string `env:"BASE_URL"`

	// Realm hosts the masking-rule roles and the cron service identities.
	Realm string `env:"REALM" envDefault:"cmips"`

	// ClientUUID is the internal id of the client whose roles carry masking
	// rules (not its clientId).
	ClientUUID string `env:"CLIENT_UUID"`

	// AdminUsername and AdminPassword authenticate against the master realm.
	AdminUsername string `env:"ADMIN_USERNAME"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	// AdminClientID is the public client the password grant runs under.
	AdminClientID string `env:"ADMIN_CLIENT_ID" envDefault:"admin-cli"`

	// RequestsPerSecond bounds admin API calls.
	RequestsPerSecond int `env:"REQUESTS_PER_SECOND" envDefault:"5"`

	// Timeout is the hard per-request timeout for identity-provider calls.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`

	// MinterClientID and MinterClientSecret identify the confidential client
	// used to mint per-county service tokens.
	MinterClientID     string `env:"MINTER_CLIENT_ID"`
	MinterClientSecret string `env:"MINTER_CLIENT_SECRET"`

	// ServicePassword is shared by the cron service identities.
	ServicePassword string `env:"SERVICE_PASSWORD"`
}

// AdminEnabled reports whether the admin API client can be constructed.
func (c *IdentityConfig) AdminEnabled() bool {
	return c.BaseURL != "" && c.ClientUUID != "" &&
		c.AdminUsername != "" && c.AdminPassword != ""
}

// MinterEnabled reports whether the token minter can be constructed.
func (c *IdentityConfig) MinterEnabled() bool {
	return c.BaseURL != "" && c.MinterClientID != "" && c.ServicePassword != ""
}

// Sanitize applies guardrails to identity-provider configuration values.
func (c *IdentityConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.RequestsPerSecond < 1 {
		c.RequestsPerSecond = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}
