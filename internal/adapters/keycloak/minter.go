package keycloak

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/caseworks/report-engine/internal/core"
)

// MinterConfig configures the per-county token minter.
type MinterConfig struct {
	// BaseURL is the identity-provider root.
	BaseURL string
	// Realm hosts the cron service identities.
	Realm string
	// ClientID and ClientSecret identify the confidential client the grant
	// runs under.
	ClientID     string
	ClientSecret string
	// Password is shared by the cron service identities.
	Password string

	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
}

// Minter exchanges cron service usernames (cron_<prefix>_<county>) for bearer
// tokens, caching each until five minutes before expiry.
type Minter struct {
	cfg      *oauth2.Config
	password string
	client   *http.Client
	logger   *slog.Logger

	mu     sync.Mutex
	tokens map[string]*oauth2.Token
}

var _ core.TokenMinter = (*Minter)(nil)

// NewMinter constructs a token minter.
func NewMinter(cfg MinterConfig) (*Minter, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("identity provider base URL is required")
	}
	if cfg.Realm == "" {
		return nil, errors.New("realm is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client id is required")
	}
	if cfg.Password == "" {
		return nil, errors.New("service identity password is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Minter{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL: fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token",
					baseURL, url.PathEscape(cfg.Realm)),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		password: cfg.Password,
		client:   httpClient,
		logger:   logger.With("component", "token_minter"),
		tokens:   map[string]*oauth2.Token{},
	}, nil
}

// Mint returns a bearer token for the given service username, reusing the
// cached token while it has more than five minutes to live.
func (m *Minter) Mint(ctx context.Context, username string) (string, error) {
	if username == "" {
		return "", errors.New("username is required")
	}

	m.mu.Lock()
	cached, ok := m.tokens[username]
	m.mu.Unlock()
	if ok && time.Until(cached.Expiry) > earlyRefresh {
		return cached.AccessToken, nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)
	tok, err := m.cfg.PasswordCredentialsToken(ctx, username, m.password)
	if err != nil {
		return "", fmt.Errorf("mint token for %s: %w", username, err)
	}

	m.mu.Lock()
	m.tokens[username] = tok
	m.mu.Unlock()

	m.logger.DebugContext(ctx, "service token minted",
		"username", username,
		"expires", tok.Expiry,
	)
	return tok.AccessToken, nil
}
