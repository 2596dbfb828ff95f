package config

import (
	"strings"
	"time"
)

// DBConfig holds the Postgres connection that stores accounts, profiles and
// revoked tokens.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"acadvault"`
	Password string `env:"PASSWORD" envDefault:"acadvault"`
	Name     string `env:"NAME"     envDefault:"acadvault"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"`

	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"    envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"    envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`

	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// Sanitize keeps the pool settings usable.
func (d *DBConfig) Sanitize() {
	if d.MaxOpenConns < 1 {
		d.MaxOpenConns = 25
	}
	d.MaxIdleConns = min(max(d.MaxIdleConns, 0), d.MaxOpenConns)
	if d.ConnMaxLifetime <= 0 {
		d.ConnMaxLifetime = 5 * time.Minute
	}
}

// RedisConfig selects one of three topologies: cluster when UseCluster is
// set, sentinel when UseSentinel is set, otherwise a direct connection to URI.
// URI may be a host:port or a redis:// / rediss:// URL.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`

	// KeyPrefix namespaces persisted sessions and cached profiles.
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"acadvault:"`
}

// Sanitize ensures KeyPrefix ends with a single separator.
func (r *RedisConfig) Sanitize() {
	prefix := strings.TrimRight(strings.TrimSpace(r.KeyPrefix), ":")
	if prefix == "" {
		prefix = "acadvault"
	}
	r.KeyPrefix = prefix + ":"
}
