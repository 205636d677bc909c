// Tests live in core_test because internal/mocks imports core.
package core_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/caseworks/report-engine/internal/core"
	"github.com/caseworks/report-engine/internal/mocks"
)

const ruleKey = "maskrules:CASE_WORKER:DAILY_SUMMARY"

var ruleEntries = []string{
	"providerName:ANONYMIZE:MASKED:true",
	"recipientId:HASH:MASKED:true",
}

func TestRuleCacheService_Get(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		setup     func(t *testing.T, cache *mocks.MockCacheRepository, svc *core.RuleCacheService)
		wantRules []string
		wantOK    bool
	}{
		{
			name: "shared tier hit",
			setup: func(t *testing.T, cache *mocks.MockCacheRepository, _ *core.RuleCacheService) {
				raw, err := json.Marshal(ruleEntries)
				require.NoError(t, err)
				cache.EXPECT().Get(gomock.Any(), ruleKey).Return(raw, nil)
			},
			wantRules: ruleEntries,
			wantOK:    true,
		},
		{
			name: "miss in both tiers",
			setup: func(_ *testing.T, cache *mocks.MockCacheRepository, _ *core.RuleCacheService) {
				cache.EXPECT().Get(gomock.Any(), ruleKey).Return(nil, nil)
			},
			wantRules: nil,
			wantOK:    false,
		},
		{
			name: "shared tier error falls back to local tier",
			setup: func(_ *testing.T, cache *mocks.MockCacheRepository, svc *core.RuleCacheService) {
				cache.EXPECT().Set(gomock.Any(), ruleKey, gomock.Any(), gomock.Any()).Return(nil)
				svc.Put(context.Background(), "CASE_WORKER", "DAILY_SUMMARY", ruleEntries)
				cache.EXPECT().Get(gomock.Any(), ruleKey).Return(nil, errors.New("redis down"))
			},
			wantRules: ruleEntries,
			wantOK:    true,
		},
		{
			name: "corrupt shared payload falls back to local tier",
			setup: func(_ *testing.T, cache *mocks.MockCacheRepository, svc *core.RuleCacheService) {
				cache.EXPECT().Set(gomock.Any(), ruleKey, gomock.Any(), gomock.Any()).Return(nil)
				svc.Put(context.Background(), "CASE_WORKER", "DAILY_SUMMARY", ruleEntries)
				cache.EXPECT().Get(gomock.Any(), ruleKey).Return([]byte("not-json"), nil)
			},
			wantRules: ruleEntries,
			wantOK:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			cache := mocks.NewMockCacheRepository(ctrl)
			svc := core.NewRuleCacheService(core.RuleCacheServiceOptions{
				Cache:  cache,
				Config: core.DefaultRuleCacheConfig(),
			})
			tt.setup(t, cache, svc)

			got, ok := svc.Get(context.Background(), "CASE_WORKER", "DAILY_SUMMARY")
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantRules, got)
		})
	}
}

func TestRuleCacheService_Put_WritesThroughToSharedTier(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cache := mocks.NewMockCacheRepository(ctrl)
	raw, err := json.Marshal(ruleEntries)
	require.NoError(t, err)
	cache.EXPECT().Set(gomock.Any(), ruleKey, raw, 5*time.Minute).Return(nil)

	svc := core.NewRuleCacheService(core.RuleCacheServiceOptions{
		Cache:  cache,
		Config: core.RuleCacheConfig{TTL: 5 * time.Minute},
	})
	svc.Put(context.Background(), "CASE_WORKER", "DAILY_SUMMARY", ruleEntries)
}

func TestRuleCacheService_Put_SharedTierFailureKeepsLocal(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	cache := mocks.NewMockCacheRepository(ctrl)
	cache.EXPECT().Set(gomock.Any(), ruleKey, gomock.Any(), gomock.Any()).Return(errors.New("redis down"))
	cache.EXPECT().Get(gomock.Any(), ruleKey).Return(nil, errors.New("redis down"))

	svc := core.NewRuleCacheService(core.RuleCacheServiceOptions{
		Cache:  cache,
		Config: core.DefaultRuleCacheConfig(),
	})
	svc.Put(ctx, "CASE_WORKER", "DAILY_SUMMARY", ruleEntries)

	got, ok := svc.Get(ctx, "CASE_WORKER", "DAILY_SUMMARY")
	require.True(t, ok)
	assert.Equal(t, ruleEntries, got)
}

func TestRuleCacheService_Invalidate_DropsBothTiers(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	cache := mocks.NewMockCacheRepository(ctrl)
	cache.EXPECT().Set(gomock.Any(), ruleKey, gomock.Any(), gomock.Any()).Return(nil)
	cache.EXPECT().Delete(gomock.Any(), ruleKey).Return(true, nil)
	cache.EXPECT().Get(gomock.Any(), ruleKey).Return(nil, nil)

	svc := core.NewRuleCacheService(core.RuleCacheServiceOptions{
		Cache:  cache,
		Config: core.DefaultRuleCacheConfig(),
	})
	svc.Put(ctx, "CASE_WORKER", "DAILY_SUMMARY", ruleEntries)
	svc.Invalidate(ctx, "CASE_WORKER", "DAILY_SUMMARY")

	_, ok := svc.Get(ctx, "CASE_WORKER", "DAILY_SUMMARY")
	assert.False(t, ok)
}

func TestRuleCacheService_ZeroTTLUsesDefault(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cache := mocks.NewMockCacheRepository(ctrl)
	raw, err := json.Marshal(ruleEntries)
	require.NoError(t, err)
	cache.EXPECT().Set(gomock.Any(), ruleKey, raw, 10*time.Minute).Return(nil)

	svc := core.NewRuleCacheService(core.RuleCacheServiceOptions{Cache: cache})
	svc.Put(context.Background(), "CASE_WORKER", "DAILY_SUMMARY", ruleEntries)
}

func TestRuleCacheService_InProcessOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := core.NewRuleCacheService(core.RuleCacheServiceOptions{})

	_, ok := svc.Get(ctx, "CASE_WORKER", "DAILY_SUMMARY")
	require.False(t, ok)

	svc.Put(ctx, "CASE_WORKER", "DAILY_SUMMARY", ruleEntries)
	got, ok := svc.Get(ctx, "CASE_WORKER", "DAILY_SUMMARY")
	require.True(t, ok)
	assert.Equal(t, ruleEntries, got)

	svc.Invalidate(ctx, "CASE_WORKER", "DAILY_SUMMARY")
	_, ok = svc.Get(ctx, "CASE_WORKER", "DAILY_SUMMARY")
	assert.False(t, ok)
}

func TestRuleCacheService_LocalEntryExpires(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := core.NewRuleCacheService(core.RuleCacheServiceOptions{
		Config: core.RuleCacheConfig{TTL: 50 * time.Millisecond},
	})

	svc.Put(ctx, "CASE_WORKER", "DAILY_SUMMARY", ruleEntries)
	_, ok := svc.Get(ctx, "CASE_WORKER", "DAILY_SUMMARY")
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, ok := svc.Get(ctx, "CASE_WORKER", "DAILY_SUMMARY")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDefaultRuleCacheConfig(t *testing.T) {
	t.Parallel()

	cfg := core.DefaultRuleCacheConfig()
	assert.Equal(t, 10*time.Minute, cfg.TTL)
}
