// Package auth contains domain-level types for roles and caller identity.
// It is pure and free of framework/adapter concerns.
package auth

import "strings"

// Role represents a platform authorization role. Kept in string form for easy
// persistence and token round-trips. Valid values are defined as constants below.
type Role string

const (
	RoleAdmin           Role = "ADMIN"
	RoleSystemScheduler Role = "SYSTEM_SCHEDULER"
	RoleSupervisor      Role = "SUPERVISOR"
	RoleCaseWorker      Role = "CASE_WORKER"
	RoleProvider        Role = "PROVIDER"
	RoleRecipient       Role = "RECIPIENT"
)

// Known returns true when the role is one of the platform roles.
func (r Role) Known() bool {
	switch r {
	case RoleAdmin, RoleSystemScheduler, RoleSupervisor, RoleCaseWorker, RoleProvider, RoleRecipient:
		return true
	}
	return false
}

// SeesAll reports whether the role bypasses tenant and ownership scoping.
func (r Role) SeesAll() bool {
	return r == RoleAdmin || r == RoleSystemScheduler
}

// TenantRequired reports whether queries for this role must carry a tenant id.
func (r Role) TenantRequired() bool {
	return r == RoleSupervisor || r == RoleCaseWorker
}

// UserScoped reports whether queries for this role are restricted to rows
// owned by the caller's user id.
func (r Role) UserScoped() bool {
	return r == RoleProvider || r == RoleRecipient
}

// cronPrefixes maps roles to the short prefix used in cron service-identity
// usernames (cron_<prefix>_<countyCode>).
var cronPrefixes = map[Role]string{
	RoleAdmin:           "admin",
	RoleSystemScheduler: "sys",
	RoleSupervisor:      "sup",
	RoleCaseWorker:      "cw",
	RoleProvider:        "prov",
	RoleRecipient:       "rec",
}

// CronPrefix returns the service-identity prefix for the role. Unknown roles
// fall back to the lowercase role name.
func (r Role) CronPrefix() string {
	if p, ok := cronPrefixes[r]; ok {
		return p
	}
	return strings.ToLower(string(r))
}

// Principal is the authenticated caller derived from a bearer token.
// TenantID is empty for callers with no tenant restriction.
type Principal struct {
	UserID   string
	Role     Role
	TenantID string
}

// Unrestricted reports whether the principal carries no tenant restriction.
func (p Principal) Unrestricted() bool {
	return p.TenantID == ""
}
