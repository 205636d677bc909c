package auth

import "testing"

func TestRole_Known(t *testing.T) {
	for _, r := range []Role{
		RoleAdmin, RoleSystemScheduler, RoleSupervisor, RoleCaseWorker, RoleProvider, RoleRecipient,
	} {
		if !r.Known() {
			t.Fatalf("expected %s to be known", r)
		}
	}
	if Role("GUEST").Known() {
		t.Fatalf("did not expect GUEST to be known")
	}
}

func TestRole_ScopingIsPartitioned(t *testing.T) {
	// Every known role falls in exactly one scoping class.
	for _, r := range []Role{
		RoleAdmin, RoleSystemScheduler, RoleSupervisor, RoleCaseWorker, RoleProvider, RoleRecipient,
	} {
		n := 0
		if r.SeesAll() {
			n++
		}
		if r.TenantRequired() {
			n++
		}
		if r.UserScoped() {
			n++
		}
		if n != 1 {
			t.Fatalf("role %s matched %d scoping classes", r, n)
		}
	}

	if !RoleAdmin.SeesAll() || !RoleSystemScheduler.SeesAll() {
		t.Fatalf("admin and scheduler must bypass scoping")
	}
	if !RoleSupervisor.TenantRequired() || !RoleCaseWorker.TenantRequired() {
		t.Fatalf("supervisor and case worker must be tenant scoped")
	}
	if !RoleProvider.UserScoped() || !RoleRecipient.UserScoped() {
		t.Fatalf("provider and recipient must be user scoped")
	}
}

func TestRole_CronPrefix(t *testing.T) {
	if got := RoleCaseWorker.CronPrefix(); got != "cw" {
		t.Fatalf("unexpected prefix: %s", got)
	}
	if got := RoleSystemScheduler.CronPrefix(); got != "sys" {
		t.Fatalf("unexpected prefix: %s", got)
	}
	if got := Role("AUDITOR").CronPrefix(); got != "auditor" {
		t.Fatalf("unknown role should lowercase, got: %s", got)
	}
}

func TestPrincipal_Unrestricted(t *testing.T) {
	if !(Principal{Role: RoleAdmin}).Unrestricted() {
		t.Fatalf("empty tenant should be unrestricted")
	}
	if (Principal{Role: RoleCaseWorker, TenantID: "037"}).Unrestricted() {
		t.Fatalf("tenant-scoped principal should not be unrestricted")
	}
}
