// Package token decodes bearer tokens into the typed claims view the pipeline
// consumes. Decoding is pure and local: the payload segment is parsed, never
// verified. Signature verification is the admission layer's concern.
package token

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/caseworks/report-engine/internal/domain/auth"
	"github.com/caseworks/report-engine/internal/domain/model"
	apperrors "github.com/caseworks/report-engine/internal/errors"
)

const maskingRulesClaim = "field_masking_rules"

// Claims is the decoded view of a bearer token's payload segment.
type Claims struct {
	Role              string
	TenantID          string
	UserID            string
	PreferredUsername string
	MaskingRules      []model.MaskingRule

	raw map[string]any
}

// Principal projects the claims into the caller identity used for scoping.
func (c *Claims) Principal() auth.Principal {
	return auth.Principal{
		UserID:   c.UserID,
		Role:     auth.Role(c.Role),
		TenantID: c.TenantID,
	}
}

// Claim returns an arbitrary claim value by JMESPath expression.
func (c *Claims) Claim(expr string) (any, error) {
	return jmespath.Search(expr, c.raw)
}

// Inspector decodes bearer tokens for one OAuth client id. The client id
// selects which resource_access entry carries the caller's roles.
type Inspector struct {
	clientID string
}

// NewInspector creates an Inspector bound to the given client id.
func NewInspector(clientID string) *Inspector {
	return &Inspector{clientID: clientID}
}

// Inspect parses a bearer token structured as three base64url segments joined
// by dots. Only the middle (claims) segment is decoded. A leading
// "Bearer " prefix is tolerated.
func (i *Inspector) Inspect(bearer string) (*Claims, error) {
	raw, err := decodePayload(bearer)
	if err != nil {
		return nil, err
	}

	claims := &Claims{raw: raw}
	claims.PreferredUsername = stringClaim(raw, "preferred_username")
	claims.UserID = stringClaim(raw, "sub")
	if claims.UserID == "" {
		claims.UserID = claims.PreferredUsername
	}

	role, err := i.extractRole(raw)
	if err != nil {
		return nil, err
	}
	claims.Role = role
	claims.TenantID = extractTenant(raw)
	claims.MaskingRules = extractMaskingRules(raw)

	return claims, nil
}

// decodePayload splits the token and base64url-decodes the middle segment
// into a claim map.
func decodePayload(bearer string) (map[string]any, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(bearer), "Bearer "))
	if trimmed == "" {
		return nil, apperrors.InvalidToken("empty bearer token")
	}

	segments := strings.Split(trimmed, ".")
	if len(segments) != 3 {
		return nil, apperrors.InvalidToken(fmt.Sprintf("expected 3 token segments, got %d", len(segments)))
	}

	payload, err := decodeBase64URL(segments[1])
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidToken, "decode token payload")
	}

	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidToken, "parse token payload")
	}
	return raw, nil
}

// decodeBase64URL accepts both unpadded (standard JWT) and padded encodings.
func decodeBase64URL(segment string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(segment); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(segment)
}

// extractRole resolves the caller's role: first usable entry of
// resource_access.<clientId>.roles, falling back to realm_access.roles, then
// to preferred_username interpreted as a role.
func (i *Inspector) extractRole(raw map[string]any) (string, error) {
	clientRoles := fmt.Sprintf("resource_access.%q.roles", i.clientID)
	if role := firstUsableRole(raw, clientRoles); role != "" {
		return role, nil
	}
	if role := firstUsableRole(raw, "realm_access.roles"); role != "" {
		return role, nil
	}
	if username := stringClaim(raw, "preferred_username"); username != "" {
		return username, nil
	}
	return "", apperrors.MissingClaim("roles")
}

// firstUsableRole evaluates a JMESPath roles expression and returns the first
// element that is not a reserved identity-provider name.
func firstUsableRole(raw map[string]any, expr string) string {
	result, err := jmespath.Search(expr, raw)
	if err != nil {
		return ""
	}
	roles, ok := result.([]any)
	if !ok {
		return ""
	}
	for _, r := range roles {
		name, ok := r.(string)
		if !ok || name == "" || reservedRole(name) {
			continue
		}
		return name
	}
	return ""
}

// reservedRole filters the identity provider's bookkeeping roles.
func reservedRole(name string) bool {
	return strings.HasPrefix(name, "default-roles-") ||
		name == "offline_access" ||
		name == "uma_authorization"
}

// extractTenant resolves the tenant id: top-level countyId, else the first
// element of attributes.countyId, else county_id. Returns "" when absent;
// whether absence is fatal depends on the caller's role.
func extractTenant(raw map[string]any) string {
	if v := stringClaim(raw, "countyId"); v != "" {
		return v
	}
	if v, err := jmespath.Search("attributes.countyId", raw); err == nil {
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case []any:
			if len(t) > 0 {
				if s, ok := t[0].(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return stringClaim(raw, "county_id")
}

// extractMaskingRules decodes the field_masking_rules claim in either wire
// shape: Protocol-Mapper string lists or the legacy object form. Absent or
// undecodable claims yield nil; rule resolution falls back to the identity
// provider in that case.
func extractMaskingRules(raw map[string]any) []model.MaskingRule {
	claim, ok := raw[maskingRulesClaim]
	if !ok || claim == nil {
		return nil
	}

	switch v := claim.(type) {
	case []any:
		entries := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				entries = append(entries, s)
			}
		}
		return model.ParseRuleStrings(entries)
	case map[string]any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		rules, err := model.ParseRuleObject(encoded)
		if err != nil {
			return nil
		}
		return rules
	default:
		return nil
	}
}

// stringClaim returns a top-level string claim or "".
func stringClaim(raw map[string]any, key string) string {
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}
