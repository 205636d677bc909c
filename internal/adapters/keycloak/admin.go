// Package keycloak implements the identity-provider integrations: the admin
// API that stores masking rules as client-role attributes and the token
// endpoint that mints service identities for scheduled reports.
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/caseworks/report-engine/internal/core"
)

const (
	// attrMaskingRules is the role attribute the masking engine reads.
	attrMaskingRules = "field_masking_rules"

	defaultTimeout   = 10 * time.Second
	defaultRateLimit = 5

	// earlyRefresh re-mints cached tokens five minutes before they expire.
	earlyRefresh = 5 * time.Minute

	// notFoundRetryDelay spaces the single retry after a 404 role read.
	notFoundRetryDelay = 500 * time.Millisecond
)

// AdminConfig configures the admin API client.
type AdminConfig struct {
	// BaseURL is the identity-provider root, e.g. https://sso.example.gov.
	BaseURL string
	// Realm is the realm whose client roles carry masking rules.
	Realm string
	// ClientUUID is the internal id of that client, not its clientId.
	ClientUUID string
	// Username and Password authenticate against the master realm.
	Username string
	Password string
	// AdminClientID is the public client used for the password grant;
	// defaults to admin-cli.
	AdminClientID string

	Timeout           time.Duration
	RequestsPerSecond int
	Client            *http.Client
	Logger            *slog.Logger
}

// AdminClient reads and writes masking rules stored as role attributes.
type AdminClient struct {
	baseURL    string
	realm      string
	clientUUID string
	logger     *slog.Logger
	client     *http.Client
	limiter    *rate.Limiter
	tokens     *passwordTokenSource
}

var (
	_ core.RuleSource = (*AdminClient)(nil)
	_ core.RuleWriter = (*AdminClient)(nil)
)

// NewAdminClient constructs an admin API client.
func NewAdminClient(cfg AdminConfig) (*AdminClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("identity provider base URL is required")
	}
	if cfg.Realm == "" {
		return nil, errors.New("realm is required")
	}
	if cfg.ClientUUID == "" {
		return nil, errors.New("client UUID is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("admin credentials are required")
	}

	adminClientID := cfg.AdminClientID
	if adminClientID == "" {
		adminClientID = "admin-cli"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRateLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tokens := &passwordTokenSource{
		cfg: &oauth2.Config{
			ClientID: adminClientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  baseURL + "/realms/master/protocol/openid-connect/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		username: cfg.Username,
		password: cfg.Password,
		client:   httpClient,
	}

	return &AdminClient{
		baseURL:    baseURL,
		realm:      cfg.Realm,
		clientUUID: cfg.ClientUUID,
		logger:     logger.With("component", "keycloak_admin"),
		client:     httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
		tokens:     tokens,
	}, nil
}

// passwordTokenSource mints access tokens with the resource-owner password
// grant and reuses them until five minutes before expiry. Refreshes hold the
// lock so concurrent callers do not stampede the token endpoint.
type passwordTokenSource struct {
	cfg      *oauth2.Config
	username string
	password string
	client   *http.Client

	mu  sync.Mutex
	tok *oauth2.Token
}

func (s *passwordTokenSource) token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tok != nil && time.Until(s.tok.Expiry) > earlyRefresh {
		return s.tok.AccessToken, nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	tok, err := s.cfg.PasswordCredentialsToken(ctx, s.username, s.password)
	if err != nil {
		return "", fmt.Errorf("password grant for %s: %w", s.username, err)
	}
	s.tok = tok
	return tok.AccessToken, nil
}

// roleRepresentation is the subset of the role payload we read and write.
type roleRepresentation struct {
	Name       string              `json:"name"`
	Attributes map[string][]string `json:"attributes,omitempty"`
}

// apiError is a non-2xx admin API response.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("admin API status %d", e.Status)
	}
	return fmt.Sprintf("admin API status %d: %s", e.Status, e.Body)
}

func statusOf(err error) int {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// FetchMaskingRules reads the masking-rule entries stored on the role. A role
// carrying no attribute yields an empty slice; whether that is fatal is the
// resolver's call.
func (c *AdminClient) FetchMaskingRules(ctx context.Context, role string) ([]string, error) {
	rep, err := c.getRoleRetryingNotFound(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("get role %s: %w", role, err)
	}

	entries := rep.Attributes[attrMaskingRules]
	c.logger.DebugContext(ctx, "masking rules fetched", "role", role, "entries", len(entries))
	return entries, nil
}

// UpdateMaskingRules writes the entries to the role attribute, preserving
// whatever other attributes the role carries. A server error on the read
// means current attributes are unknown; the write proceeds with ours alone
// rather than failing the update.
func (c *AdminClient) UpdateMaskingRules(ctx context.Context, role string, entries []string) error {
	rep, err := c.getRoleRetryingNotFound(ctx, role)
	switch {
	case err == nil:
	case statusOf(err) >= http.StatusInternalServerError:
		c.logger.WarnContext(ctx, "role read failed before update, writing fresh attributes",
			"role", role,
			"error", err,
		)
		rep = &roleRepresentation{Name: role}
	default:
		return fmt.Errorf("get role %s: %w", role, err)
	}

	if rep.Name == "" {
		rep.Name = role
	}
	if rep.Attributes == nil {
		rep.Attributes = map[string][]string{}
	}
	rep.Attributes[attrMaskingRules] = entries

	if err := c.do(ctx, http.MethodPut, c.roleURL(role), rep, nil); err != nil {
		return fmt.Errorf("put role %s: %w", role, err)
	}

	c.logger.InfoContext(ctx, "masking rules updated", "role", role, "entries", len(entries))
	return nil
}

// getRoleRetryingNotFound retries a single 404 once, half a second later:
// role visibility can lag a fresh realm import.
func (c *AdminClient) getRoleRetryingNotFound(ctx context.Context, role string) (*roleRepresentation, error) {
	rep, err := c.getRole(ctx, role)
	if statusOf(err) != http.StatusNotFound {
		return rep, err
	}

	if waitErr := sleepCtx(ctx, notFoundRetryDelay); waitErr != nil {
		return nil, waitErr
	}
	return c.getRole(ctx, role)
}

func (c *AdminClient) getRole(ctx context.Context, role string) (*roleRepresentation, error) {
	var rep roleRepresentation
	if err := c.do(ctx, http.MethodGet, c.roleURL(role), nil, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

func (c *AdminClient) roleURL(role string) string {
	return fmt.Sprintf("%s/admin/realms/%s/clients/%s/roles/%s",
		c.baseURL,
		url.PathEscape(c.realm),
		url.PathEscape(c.clientUUID),
		url.PathEscape(role),
	)
}

func (c *AdminClient) do(ctx context.Context, method, endpoint string, payload, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	token, err := c.tokens.token(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("admin API request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &apiError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
