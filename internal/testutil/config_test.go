package testutil

import "testing"

func TestDefaultTestDBConfig(t *testing.T) {
	t.Run("defaults to local test database port 55432", func(t *testing.T) {
		for _, key := range []string{
			"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_PASSWORD", "TEST_DB_NAME",
		} {
			t.Setenv(key, "")
		}

		cfg := DefaultTestDBConfig()

		want := TestDBConfig{
			Host:     "localhost",
			Port:     "55432",
			User:     "reportengine",
			Password: "reportengine",
			DBName:   "reportengine",
		}
		if cfg != want {
			t.Fatalf("DefaultTestDBConfig() = %+v, want %+v", cfg, want)
		}
	})

	t.Run("TEST_DB_ environment overrides win", func(t *testing.T) {
		t.Setenv("TEST_DB_HOST", "postgres")
		t.Setenv("TEST_DB_PORT", "5432")
		t.Setenv("TEST_DB_NAME", "report_engine_ci")

		cfg := DefaultTestDBConfig()

		if cfg.Host != "postgres" || cfg.Port != "5432" {
			t.Fatalf("expected postgres:5432, got %s:%s", cfg.Host, cfg.Port)
		}
		if cfg.DBName != "report_engine_ci" {
			t.Fatalf("expected DBName=report_engine_ci, got %s", cfg.DBName)
		}
		// Unset vars keep their defaults.
		if cfg.User != "reportengine" {
			t.Fatalf("expected default User, got %s", cfg.User)
		}
	})
}

func TestEnvBool(t *testing.T) {
	truthy := []string{"1", "true", "TRUE", "yes", "Y"}
	falsy := []string{"", "0", "false", "no", "off", "2"}

	for _, v := range truthy {
		t.Setenv("TEST_DB_EPHEMERAL", v)
		if !envBool("TEST_DB_EPHEMERAL") {
			t.Fatalf("envBool(%q) = false, want true", v)
		}
	}
	for _, v := range falsy {
		t.Setenv("TEST_DB_EPHEMERAL", v)
		if envBool("TEST_DB_EPHEMERAL") {
			t.Fatalf("envBool(%q) = true, want false", v)
		}
	}
}

func TestRequireInfraImpliesBoth(t *testing.T) {
	t.Setenv("TEST_REQUIRE_DB", "")
	t.Setenv("TEST_REQUIRE_REDIS", "")
	t.Setenv("TEST_REQUIRE_INFRA", "1")

	if !requireDB() || !requireRedis() {
		t.Fatal("TEST_REQUIRE_INFRA must imply both DB and Redis requirements")
	}
}
