package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caseworks/report-engine/internal/core"
	"github.com/caseworks/report-engine/internal/domain/model"
	"github.com/caseworks/report-engine/internal/domain/token"
	apperrors "github.com/caseworks/report-engine/internal/errors"
)

type stubRuleSource struct {
	entries []string
	err     error
	fetches int
}

func (s *stubRuleSource) FetchMaskingRules(_ context.Context, _ string) ([]string, error) {
	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	return s.entries, nil
}

type stubRuleWriter struct {
	stubRuleSource
	updatedRole    string
	updatedEntries []string
	updateErr      error
}

func (s *stubRuleWriter) UpdateMaskingRules(_ context.Context, role string, entries []string) error {
	s.updatedRole = role
	s.updatedEntries = entries
	return s.updateErr
}

func newResolver(t *testing.T, source core.RuleSource) (*MaskingResolver, *core.RuleCacheService) {
	t.Helper()
	cache := core.NewRuleCacheService(core.RuleCacheServiceOptions{})
	resolver, err := NewMaskingResolver(MaskingResolverOptions{Source: source, Cache: cache})
	require.NoError(t, err)
	return resolver, cache
}

func tokenClaims() *token.Claims {
	return &token.Claims{
		UserID: "user-1",
		MaskingRules: []model.MaskingRule{
			{FieldName: "providerName", MaskingType: model.MaskAnonymize, AccessLevel: model.AccessMasked, Enabled: true},
			{FieldName: "recipientId", MaskingType: model.MaskHash, AccessLevel: model.AccessMasked, Enabled: true},
		},
	}
}

func TestResolvePrefersTokenRules(t *testing.T) {
	ctx := context.Background()
	source := &stubRuleSource{err: errors.New("source must not be consulted")}
	resolver, _ := newResolver(t, source)

	set, err := resolver.Resolve(ctx, ResolveParams{
		Role:       "CASE_WORKER",
		ReportType: model.ReportTypeDailySummary,
		Claims:     tokenClaims(),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, source.fetches)
	assert.Len(t, set.Rules, 2)
	assert.Equal(t, model.MaskAnonymize, set.Rules["providerName"].MaskingType)

	// Token rules seed the cache for callers arriving without them.
	set, err = resolver.Resolve(ctx, ResolveParams{
		Role:       "CASE_WORKER",
		ReportType: model.ReportTypeDailySummary,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, source.fetches)
	assert.Len(t, set.Rules, 2)
}

func TestResolveFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	source := &stubRuleSource{err: errors.New("source must not be consulted")}
	resolver, cache := newResolver(t, source)

	cache.Put(ctx, "SUPERVISOR", model.ReportTypeWeeklySummary, []string{
		"paymentAmount:AGGREGATE:MASKED_ACCESS:true",
	})

	set, err := resolver.Resolve(ctx, ResolveParams{
		Role:       "SUPERVISOR",
		ReportType: model.ReportTypeWeeklySummary,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, source.fetches)
	assert.Equal(t, model.MaskAggregate, set.Rules["paymentAmount"].MaskingType)
}

func TestResolveFetchesFromSource(t *testing.T) {
	ctx := context.Background()
	source := &stubRuleSource{entries: []string{
		"providerName:ANONYMIZE:MASKED_ACCESS:true",
		"serviceDate:NONE:FULL_ACCESS:true",
	}}
	resolver, _ := newResolver(t, source)

	set, err := resolver.Resolve(ctx, ResolveParams{
		Role:       "PROVIDER",
		ReportType: model.ReportTypeMonthlyActivity,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, source.fetches)
	assert.Len(t, set.Rules, 2)
	assert.Equal(t, model.AccessFull, set.Rules["serviceDate"].AccessLevel)

	// Fetched rules land in the cache; the next resolution skips the source.
	_, err = resolver.Resolve(ctx, ResolveParams{
		Role:       "PROVIDER",
		ReportType: model.ReportTypeMonthlyActivity,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, source.fetches)
}

func TestResolveWrapsSourceFailure(t *testing.T) {
	ctx := context.Background()
	source := &stubRuleSource{err: errors.New("keycloak unreachable")}
	resolver, _ := newResolver(t, source)

	_, err := resolver.Resolve(ctx, ResolveParams{
		Role:       "CASE_WORKER",
		ReportType: model.ReportTypeDailySummary,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMaskingUnavailable, apperrors.GetCode(err))
	assert.Contains(t, err.Error(), "fetch masking rules for role CASE_WORKER")
	assert.Contains(t, err.Error(), "keycloak unreachable")
}

func TestResolveRejectsEmptyRuleSet(t *testing.T) {
	ctx := context.Background()
	// Entries below the minimum field:type:access shape parse to nothing.
	source := &stubRuleSource{entries: []string{"malformed", "also:bad"}}
	resolver, _ := newResolver(t, source)

	_, err := resolver.Resolve(ctx, ResolveParams{
		Role:       "RECIPIENT",
		ReportType: model.ReportTypeDailySummary,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsMaskingUnavailable(err))
}

func TestUpdateRulesWritesThroughAndInvalidates(t *testing.T) {
	ctx := context.Background()
	writer := &stubRuleWriter{
		stubRuleSource: stubRuleSource{entries: []string{"providerName:HIDDEN:HIDDEN_ACCESS:true"}},
	}
	cache := core.NewRuleCacheService(core.RuleCacheServiceOptions{})
	resolver, err := NewMaskingResolver(MaskingResolverOptions{Source: writer, Cache: cache})
	require.NoError(t, err)

	cache.Put(ctx, "CASE_WORKER", model.ReportTypeDailySummary, []string{
		"providerName:ANONYMIZE:MASKED_ACCESS:true",
	})

	rules := []model.MaskingRule{
		{FieldName: "providerName", MaskingType: model.MaskHidden, AccessLevel: model.AccessHidden, Enabled: true},
	}
	require.NoError(t, resolver.UpdateRules(ctx, "CASE_WORKER", model.ReportTypeDailySummary, rules))

	assert.Equal(t, "CASE_WORKER", writer.updatedRole)
	assert.Equal(t, []string{"providerName:HIDDEN:HIDDEN_ACCESS:true"}, writer.updatedEntries)

	// The stale cache entry is gone; resolution re-reads from the source.
	set, err := resolver.Resolve(ctx, ResolveParams{
		Role:       "CASE_WORKER",
		ReportType: model.ReportTypeDailySummary,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, writer.fetches)
	assert.Equal(t, model.MaskHidden, set.Rules["providerName"].MaskingType)
}

func TestUpdateRulesRequiresWriter(t *testing.T) {
	resolver, _ := newResolver(t, &stubRuleSource{})

	err := resolver.UpdateRules(context.Background(), "CASE_WORKER", model.ReportTypeDailySummary, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInternal, apperrors.GetCode(err))
	assert.Contains(t, err.Error(), "does not support updates")
}

func TestNewMaskingResolverValidation(t *testing.T) {
	_, err := NewMaskingResolver(MaskingResolverOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RuleSource is required")
}
