package token

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseworks/report-engine/internal/domain/model"
	apperrors "github.com/caseworks/report-engine/internal/errors"
)

const testClientID = "report-engine"

// buildToken assembles a three-segment token whose payload is the given claim map.
func buildToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT"}`))
	body := base64.RawURLEncoding.EncodeToString(payload)
	return header + "." + body + ".sig"
}

func TestInspector_RoleExtraction(t *testing.T) {
	inspector := NewInspector(testClientID)

	tests := []struct {
		name     string
		claims   map[string]any
		wantRole string
	}{
		{
			name: "client roles skip reserved names",
			claims: map[string]any{
				"resource_access": map[string]any{
					testClientID: map[string]any{
						"roles": []any{"default-roles-platform", "offline_access", "CASE_WORKER"},
					},
				},
			},
			wantRole: "CASE_WORKER",
		},
		{
			name: "uma_authorization skipped",
			claims: map[string]any{
				"resource_access": map[string]any{
					testClientID: map[string]any{
						"roles": []any{"uma_authorization", "SUPERVISOR"},
					},
				},
			},
			wantRole: "SUPERVISOR",
		},
		{
			name: "falls back to realm roles",
			claims: map[string]any{
				"realm_access": map[string]any{
					"roles": []any{"default-roles-platform", "ADMIN"},
				},
			},
			wantRole: "ADMIN",
		},
		{
			name: "other client roles are ignored",
			claims: map[string]any{
				"resource_access": map[string]any{
					"another-client": map[string]any{
						"roles": []any{"PROVIDER"},
					},
				},
				"realm_access": map[string]any{
					"roles": []any{"RECIPIENT"},
				},
			},
			wantRole: "RECIPIENT",
		},
		{
			name: "falls back to preferred username",
			claims: map[string]any{
				"preferred_username": "SYSTEM_SCHEDULER",
			},
			wantRole: "SYSTEM_SCHEDULER",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := inspector.Inspect(buildToken(t, tt.claims))
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, claims.Role)
		})
	}
}

func TestInspector_MissingRole(t *testing.T) {
	inspector := NewInspector(testClientID)

	_, err := inspector.Inspect(buildToken(t, map[string]any{"countyId": "CT1"}))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMissingClaim, apperrors.GetCode(err))
}

func TestInspector_TenantExtraction(t *testing.T) {
	inspector := NewInspector(testClientID)

	base := map[string]any{"preferred_username": "CASE_WORKER"}

	tests := []struct {
		name       string
		extra      map[string]any
		wantTenant string
	}{
		{
			name:       "top level countyId",
			extra:      map[string]any{"countyId": "CT1"},
			wantTenant: "CT1",
		},
		{
			name: "attributes countyId array takes first",
			extra: map[string]any{
				"attributes": map[string]any{"countyId": []any{"CT2", "CT3"}},
			},
			wantTenant: "CT2",
		},
		{
			name: "attributes countyId plain string",
			extra: map[string]any{
				"attributes": map[string]any{"countyId": "CT3"},
			},
			wantTenant: "CT3",
		},
		{
			name:       "snake case fallback",
			extra:      map[string]any{"county_id": "CT4"},
			wantTenant: "CT4",
		},
		{
			name:       "absent tenant is empty, not an error",
			extra:      nil,
			wantTenant: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := map[string]any{}
			for k, v := range base {
				claims[k] = v
			}
			for k, v := range tt.extra {
				claims[k] = v
			}

			got, err := inspector.Inspect(buildToken(t, claims))
			require.NoError(t, err)
			assert.Equal(t, tt.wantTenant, got.TenantID)
		})
	}
}

func TestInspector_MaskingRules(t *testing.T) {
	inspector := NewInspector(testClientID)

	t.Run("protocol mapper shape", func(t *testing.T) {
		claims, err := inspector.Inspect(buildToken(t, map[string]any{
			"preferred_username": "CASE_WORKER",
			"field_masking_rules": []any{
				"timesheetId:NONE:FULL_ACCESS:true",
				"providerName:ANONYMIZE:MASKED_ACCESS:true",
				"providerEmail:HIDDEN:HIDDEN_ACCESS:true",
			},
		}))
		require.NoError(t, err)
		require.Len(t, claims.MaskingRules, 3)
		assert.Equal(t, model.MaskAnonymize, claims.MaskingRules[1].MaskingType)
		assert.Equal(t, model.AccessHidden, claims.MaskingRules[2].AccessLevel)
		assert.True(t, claims.MaskingRules[0].Enabled)
	})

	t.Run("legacy object shape", func(t *testing.T) {
		claims, err := inspector.Inspect(buildToken(t, map[string]any{
			"preferred_username": "CASE_WORKER",
			"field_masking_rules": map[string]any{
				"paymentAmount": map[string]any{
					"maskingType":    "AGGREGATE",
					"accessLevel":    "MASKED_ACCESS",
					"maskingPattern": "",
				},
				"ssn": map[string]any{
					"maskingType": "PARTIAL_MASK",
					"accessLevel": "MASKED_ACCESS",
					"enabled":     false,
				},
			},
		}))
		require.NoError(t, err)
		require.Len(t, claims.MaskingRules, 2)

		byField := map[string]model.MaskingRule{}
		for _, r := range claims.MaskingRules {
			byField[r.FieldName] = r
		}
		assert.Equal(t, model.MaskAggregate, byField["paymentAmount"].MaskingType)
		assert.True(t, byField["paymentAmount"].Enabled)
		assert.False(t, byField["ssn"].Enabled)
	})

	t.Run("malformed entries are skipped", func(t *testing.T) {
		claims, err := inspector.Inspect(buildToken(t, map[string]any{
			"preferred_username": "CASE_WORKER",
			"field_masking_rules": []any{
				"not-a-rule",
				"badType:SHRED:FULL_ACCESS:true",
				"providerName:HIDDEN:HIDDEN_ACCESS:true",
			},
		}))
		require.NoError(t, err)
		require.Len(t, claims.MaskingRules, 1)
		assert.Equal(t, "providerName", claims.MaskingRules[0].FieldName)
	})

	t.Run("absent claim yields nil", func(t *testing.T) {
		claims, err := inspector.Inspect(buildToken(t, map[string]any{
			"preferred_username": "CASE_WORKER",
		}))
		require.NoError(t, err)
		assert.Nil(t, claims.MaskingRules)
	})
}

func TestInspector_InvalidTokens(t *testing.T) {
	inspector := NewInspector(testClientID)

	tests := []struct {
		name   string
		bearer string
	}{
		{name: "empty", bearer: ""},
		{name: "two segments", bearer: "abc.def"},
		{name: "four segments", bearer: "a.b.c.d"},
		{name: "payload not base64url", bearer: "head.!!!.sig"},
		{name: "payload not json", bearer: "head." + base64.RawURLEncoding.EncodeToString([]byte("notjson")) + ".sig"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := inspector.Inspect(tt.bearer)
			require.Error(t, err)
			assert.True(t, apperrors.IsInvalidToken(err), "want invalid_token, got %v", apperrors.GetCode(err))
		})
	}
}

func TestInspector_BearerPrefixAndUserID(t *testing.T) {
	inspector := NewInspector(testClientID)

	claims, err := inspector.Inspect("Bearer " + buildToken(t, map[string]any{
		"sub":                "user-123",
		"preferred_username": "jdoe",
		"realm_access":       map[string]any{"roles": []any{"PROVIDER"}},
		"countyId":           "CT1",
	}))
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "PROVIDER", claims.Role)

	principal := claims.Principal()
	assert.Equal(t, "CT1", principal.TenantID)
	assert.Equal(t, "user-123", principal.UserID)
}
