package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"reportengine"`
	Password string `env:"PASSWORD" envDefault:"reportengine"`
	Name     string `env:"NAME"     envDefault:"reportengine"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrations controls whether startup applies embedded migrations
	// before serving.
	RunMigrations bool `env:"RUN_MIGRATIONS" envDefault:"true"`

	// Pool sizing. Workers stream whole reports through single connections,
	// so the open-conns ceiling bounds concurrent report execution too.
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"    envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"    envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
}

// Sanitize applies guardrails to pool sizing values.
func (d *DBConfig) Sanitize() {
	if d.MaxOpenConns < 1 {
		d.MaxOpenConns = 25
	}
	if d.MaxIdleConns < 0 {
		d.MaxIdleConns = 5
	}
	if d.MaxIdleConns > d.MaxOpenConns {
		d.MaxIdleConns = d.MaxOpenConns
	}
	if d.ConnMaxLifetime <= 0 {
		d.ConnMaxLifetime = 5 * time.Minute
	}
}

// RedisConfig contains Redis configuration for the masking rule cache.
// Standalone, sentinel, and cluster topologies are supported; an empty URI
// with neither sentinel nor cluster enabled leaves Redis unconfigured and the
// rule cache falls back to its in-process tier.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:""`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:""`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// Configured reports whether any Redis topology is selected.
func (r *RedisConfig) Configured() bool {
	return r.URI != "" || r.UseSentinel || r.UseCluster
}

// RuleCacheConfig tunes the resolved masking rule-set cache.
type RuleCacheConfig struct {
	// TTL bounds how long a resolved rule set is served without re-resolving.
	TTL time.Duration `env:"MASK_RULE_CACHE_TTL" envDefault:"10m"`
}

// Sanitize applies guardrails to rule cache configuration values.
func (r *RuleCacheConfig) Sanitize() {
	if r.TTL <= 0 {
		r.TTL = 10 * time.Minute
	}
}
