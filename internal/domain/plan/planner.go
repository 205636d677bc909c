// Package plan maps caller scope to bounded, parameterized extraction queries.
// A QueryPlan never carries SQL: it is a closed set of predicates the data
// fetcher knows how to bind.
package plan

import (
	"strings"

	"github.com/caseworks/report-engine/internal/domain/auth"
	"github.com/caseworks/report-engine/internal/domain/model"
	apperrors "github.com/caseworks/report-engine/internal/errors"
)

// OwnerColumn selects the ownership predicate for user-scoped roles.
type OwnerColumn string

const (
	// OwnerNone applies no ownership predicate.
	OwnerNone OwnerColumn = ""
	// OwnerProvider restricts rows to the caller's provider id.
	OwnerProvider OwnerColumn = "provider_id"
	// OwnerRecipient restricts rows to the caller's recipient id.
	OwnerRecipient OwnerColumn = "recipient_id"
)

// allowedFilters is the closed set of extra-filter keys a request may carry.
// Anything else is rejected: callers never reach raw SQL.
var allowedFilters = map[string]struct{}{
	"status":      {},
	"providerId":  {},
	"recipientId": {},
}

// QueryPlan is the bounded predicate set consumed by the data fetcher.
type QueryPlan struct {
	Role        auth.Role
	TenantID    string // "" means unrestricted
	OwnerColumn OwnerColumn
	OwnerID     string
	DateRange   *model.DateRange
	Filters     map[string]string
}

// BuildParams groups the inputs of Build.
type BuildParams struct {
	Role         auth.Role
	TenantID     string
	UserID       string
	DateRange    *model.DateRange
	ExtraFilters map[string]string
}

// Build applies the role scoping policy:
//   - ADMIN and SYSTEM_SCHEDULER: tenant optional; absent means unrestricted.
//   - SUPERVISOR and CASE_WORKER: tenant required, absence is MissingTenant.
//   - PROVIDER and RECIPIENT: user id required; rows restricted to ownership.
//
// The "ALL" sentinel normalizes to unrestricted before policy applies, so a
// tenant-restricted role holding it still fails with MissingTenant.
func Build(p BuildParams) (QueryPlan, error) {
	if !p.Role.Known() {
		return QueryPlan{}, apperrors.Validationf("unknown role %q", string(p.Role))
	}

	tenant := strings.TrimSpace(p.TenantID)
	if tenant == model.TenantAll {
		tenant = ""
	}

	plan := QueryPlan{
		Role:      p.Role,
		TenantID:  tenant,
		DateRange: p.DateRange,
	}

	switch {
	case p.Role.SeesAll():
		// Tenant stays optional.
	case p.Role.TenantRequired():
		if tenant == "" {
			return QueryPlan{}, apperrors.MissingTenant(string(p.Role))
		}
	case p.Role.UserScoped():
		if strings.TrimSpace(p.UserID) == "" {
			return QueryPlan{}, apperrors.ValidationField("userId", "user id is required for this role")
		}
		plan.OwnerID = p.UserID
		if p.Role == auth.RoleProvider {
			plan.OwnerColumn = OwnerProvider
		} else {
			plan.OwnerColumn = OwnerRecipient
		}
	}

	if p.DateRange != nil {
		if err := p.DateRange.Validate(); err != nil {
			return QueryPlan{}, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid date range")
		}
	}

	filters, err := checkFilters(p.ExtraFilters)
	if err != nil {
		return QueryPlan{}, err
	}
	plan.Filters = filters

	return plan, nil
}

// checkFilters validates extra filters against the allowlist.
func checkFilters(extra map[string]string) (map[string]string, error) {
	if len(extra) == 0 {
		return nil, nil
	}
	filters := make(map[string]string, len(extra))
	for key, value := range extra {
		if _, ok := allowedFilters[key]; !ok {
			return nil, apperrors.ValidationField(key, "unsupported filter")
		}
		if strings.TrimSpace(value) == "" {
			continue
		}
		filters[key] = value
	}
	return filters, nil
}
