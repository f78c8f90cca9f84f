// Package config loads deployment configuration from an optional YAML file
// with environment variable overrides. Required ledger identifiers are
// validated once at load; a missing value aborts startup instead of failing
// individual requests later.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tunevault/service_layer/internal/apperr"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePrefix string `yaml:"file_prefix"`
}

// DatabaseConfig holds the mirror database settings. When DSN is empty the
// application falls back to the in-memory mirror.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig holds the optional quote cache settings.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	QuoteTTL time.Duration `yaml:"quote_ttl"`
}

// LedgerConfig holds the RPC endpoint, signer key material and the deployed
// object identifiers every ledger call needs.
type LedgerConfig struct {
	RPCURL              string        `yaml:"rpc_url"`
	PrivateKey          string        `yaml:"-"` // env only, never from file
	PackageID           string        `yaml:"package_id"`
	TreasuryCapID       string        `yaml:"treasury_cap_id"`
	TrackSupplyRegistry string        `yaml:"track_supply_registry_id"`
	VaultRegistry       string        `yaml:"vault_registry_id"`
	YieldProtocolID     string        `yaml:"yield_protocol_id"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
	SubmitRatePerSec    float64       `yaml:"submit_rate_per_sec"`
}

// ReconcileConfig holds the mirror reconciler schedule.
type ReconcileConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

// Load reads config.yaml (path overridable via TUNEVAULT_CONFIG) when
// present, applies environment overrides and validates the result.
func Load() (*Config, error) {
	cfg := defaults()

	path := envOr("TUNEVAULT_CONFIG", "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperr.Config("config", "parse %s: %v", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server:  ServerConfig{Host: "0.0.0.0", Port: 8080},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
		Ledger: LedgerConfig{
			RequestTimeout:   30 * time.Second,
			SubmitRatePerSec: 5,
		},
		Redis:     RedisConfig{QuoteTTL: 2 * time.Second},
		Reconcile: ReconcileConfig{Schedule: "@every 1m"},
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Host, "TUNEVAULT_HOST")
	setInt(&cfg.Server.Port, "TUNEVAULT_PORT")

	setString(&cfg.Logging.Level, "TUNEVAULT_LOG_LEVEL")
	setString(&cfg.Logging.Format, "TUNEVAULT_LOG_FORMAT")
	setString(&cfg.Logging.Output, "TUNEVAULT_LOG_OUTPUT")

	setString(&cfg.Database.Driver, "TUNEVAULT_DB_DRIVER")
	setString(&cfg.Database.DSN, "TUNEVAULT_DB_DSN")

	setString(&cfg.Redis.Addr, "TUNEVAULT_REDIS_ADDR")

	setString(&cfg.Ledger.RPCURL, "SUI_RPC_URL")
	setString(&cfg.Ledger.PrivateKey, "SUI_PRIVATE_KEY")
	setString(&cfg.Ledger.PackageID, "SUI_PACKAGE_ID")
	setString(&cfg.Ledger.TreasuryCapID, "TREASURY_CAP_ID")
	setString(&cfg.Ledger.TrackSupplyRegistry, "TRACK_SUPPLY_REGISTRY_ID")
	setString(&cfg.Ledger.VaultRegistry, "VAULT_REGISTRY_ID")
	setString(&cfg.Ledger.YieldProtocolID, "YIELD_PROTOCOL_ID")

	setString(&cfg.Reconcile.Schedule, "TUNEVAULT_RECONCILE_SCHEDULE")
	if v := os.Getenv("TUNEVAULT_RECONCILE_ENABLED"); v != "" {
		cfg.Reconcile.Enabled = v == "true" || v == "1"
	}
}

func (c *Config) validate() error {
	required := []struct {
		field, value string
	}{
		{"SUI_RPC_URL", c.Ledger.RPCURL},
		{"SUI_PRIVATE_KEY", c.Ledger.PrivateKey},
		{"SUI_PACKAGE_ID", c.Ledger.PackageID},
		{"TREASURY_CAP_ID", c.Ledger.TreasuryCapID},
		{"TRACK_SUPPLY_REGISTRY_ID", c.Ledger.TrackSupplyRegistry},
		{"VAULT_REGISTRY_ID", c.Ledger.VaultRegistry},
		{"YIELD_PROTOCOL_ID", c.Ledger.YieldProtocolID},
	}
	for _, r := range required {
		if r.value == "" {
			return apperr.Config(r.field, "required value is missing")
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return apperr.Config("TUNEVAULT_PORT", "invalid port %d", c.Server.Port)
	}
	if c.Ledger.RequestTimeout <= 0 {
		return apperr.Config("ledger.request_timeout", "must be positive")
	}
	if c.Database.DSN != "" && c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
