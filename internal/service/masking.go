package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/caseworks/report-engine/internal/core"
	"github.com/caseworks/report-engine/internal/domain/model"
	"github.com/caseworks/report-engine/internal/domain/token"
	apperrors "github.com/caseworks/report-engine/internal/errors"
)

// MaskingResolverOptions groups dependencies for MaskingResolver.
type MaskingResolverOptions struct {
	Source core.RuleSource        // Required: identity-provider rule source
	Cache  *core.RuleCacheService // Optional: resolved rule-set cache
	Logger *slog.Logger           // Optional: structured logger
}

// MaskingResolver resolves the masking rule set for a (role, reportType) pair.
// Resolution order: rules carried in the bearer token, then the rule cache,
// then the identity provider's admin API. An empty result after all three is a
// hard error; no default rule set is ever substituted.
type MaskingResolver struct {
	source core.RuleSource
	cache  *core.RuleCacheService
	logger *slog.Logger
}

// NewMaskingResolver constructs a new MaskingResolver.
func NewMaskingResolver(opts MaskingResolverOptions) (*MaskingResolver, error) {
	if opts.Source == nil {
		return nil, errors.New("RuleSource is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "masking_resolver")
	}

	return &MaskingResolver{
		source: opts.Source,
		cache:  opts.Cache,
		logger: logger,
	}, nil
}

// ResolveParams groups the inputs of Resolve.
type ResolveParams struct {
	Role       string
	ReportType string
	Claims     *token.Claims
}

// Resolve returns the compiled rule set for the pair. Token-carried rules win
// and are cached for callers arriving without them.
func (r *MaskingResolver) Resolve(ctx context.Context, p ResolveParams) (model.RuleSet, error) {
	if p.Claims != nil && len(p.Claims.MaskingRules) > 0 {
		set := model.NewRuleSet(p.Role, p.ReportType, p.Claims.MaskingRules)
		if r.cache != nil {
			r.cache.Put(ctx, p.Role, p.ReportType, model.EncodeRuleStrings(p.Claims.MaskingRules))
		}
		return set, nil
	}

	if r.cache != nil {
		if entries, ok := r.cache.Get(ctx, p.Role, p.ReportType); ok {
			rules := model.ParseRuleStrings(entries)
			if len(rules) > 0 {
				return model.NewRuleSet(p.Role, p.ReportType, rules), nil
			}
		}
	}

	entries, err := r.source.FetchMaskingRules(ctx, p.Role)
	if err != nil {
		return model.RuleSet{}, apperrors.Wrapf(err, apperrors.ErrCodeMaskingUnavailable,
			"fetch masking rules for role %s", p.Role)
	}

	rules := model.ParseRuleStrings(entries)
	if len(rules) == 0 {
		if r.logger != nil {
			r.logger.WarnContext(ctx, "no masking rules resolved",
				"role", p.Role,
				"report_type", p.ReportType,
			)
		}
		return model.RuleSet{}, apperrors.MaskingUnavailable(p.Role, p.ReportType)
	}

	if r.cache != nil {
		r.cache.Put(ctx, p.Role, p.ReportType, entries)
	}
	return model.NewRuleSet(p.Role, p.ReportType, rules), nil
}

// UpdateRules writes a replacement rule list for a role back to the identity
// provider and invalidates the cached entry so the next resolution re-reads.
func (r *MaskingResolver) UpdateRules(ctx context.Context, role, reportType string, rules []model.MaskingRule) error {
	updater, ok := r.source.(core.RuleWriter)
	if !ok {
		return apperrors.Internal("rule source does not support updates")
	}
	if err := updater.UpdateMaskingRules(ctx, role, model.EncodeRuleStrings(rules)); err != nil {
		return fmt.Errorf("update masking rules for role %s: %w", role, err)
	}
	if r.cache != nil {
		r.cache.Invalidate(ctx, role, reportType)
	}
	return nil
}
