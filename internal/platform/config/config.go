// Package config loads service configuration from environment variables with
// an optional YAML overlay.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	NATS      NATSConfig      `yaml:"nats"`
	Audit     AuditConfig     `yaml:"audit"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Selection SelectionConfig `yaml:"selection"`
}

type ServiceConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	GRPCPort        int           `yaml:"grpc_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

type DatabaseConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	User        string        `yaml:"user"`
	Password    string        `yaml:"password"`
	Database    string        `yaml:"database"`
	SSLMode     string        `yaml:"ssl_mode"`
	MaxConns    int32         `yaml:"max_conns"`
	MinConns    int32         `yaml:"min_conns"`
	MaxConnTime time.Duration `yaml:"max_conn_time"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	HealthCheck time.Duration `yaml:"health_check"`
}

// RedisConfig enables the constraint snapshot cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// NATSConfig enables notification publishing when URL is set.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// AuditConfig selects the selection-log sink. When SQLitePath is set the
// lite-mode SQLite sink is used instead of Postgres.
type AuditConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type TracingConfig struct {
	Stdout     bool   `yaml:"stdout"`
	OutputFile string `yaml:"output_file"`
}

// SelectionConfig carries the business rules of approver selection.
type SelectionConfig struct {
	EscalationThreshold int64  `yaml:"escalation_threshold"`
	TopTierLevel        int    `yaml:"top_tier_level"`
	TopTierRole         string `yaml:"top_tier_role"`
	LimitFallback       bool   `yaml:"limit_fallback"`
	// PolicyFile, when set, is watched and re-read on change.
	PolicyFile string `yaml:"policy_file"`
}

// DefaultSelection returns the reference deployment's rules: escalate to the
// ENTERPRISE_ADMIN tier (level 3) above 500000, and fall back to the
// unfiltered pool when limits exclude everyone.
func DefaultSelection() SelectionConfig {
	return SelectionConfig{
		EscalationThreshold: 500000,
		TopTierLevel:        3,
		TopTierRole:         "ENTERPRISE_ADMIN",
		LimitFallback:       true,
	}
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "be-ap-approver-selection",
			Version:     "0.1.0",
			Environment: "development",
		},
		Server: ServerConfig{
			Port:            8086,
			GRPCPort:        9086,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:        "localhost",
			Port:        5432,
			User:        "postgres",
			Database:    "erp",
			SSLMode:     "disable",
			MaxConns:    10,
			MinConns:    2,
			MaxConnTime: time.Hour,
			MaxIdleTime: 30 * time.Minute,
			HealthCheck: time.Minute,
		},
		Redis: RedisConfig{
			TTL: 30 * time.Second,
		},
		Selection: DefaultSelection(),
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []string
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	setInt64 := func(dst *int64, key string) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	setBool := func(dst *bool, key string) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = b
		}
	}
	setDur := func(dst *time.Duration, key string) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = d
		}
	}

	setStr(&c.Service.Name, "SERVICE_NAME")
	setStr(&c.Service.Version, "SERVICE_VERSION")
	setStr(&c.Service.Environment, "ENVIRONMENT")

	setInt(&c.Server.Port, "PORT")
	setInt(&c.Server.GRPCPort, "GRPC_PORT")
	setDur(&c.Server.ShutdownTimeout, "SHUTDOWN_TIMEOUT")
	setDur(&c.Server.RequestTimeout, "REQUEST_TIMEOUT")

	setStr(&c.Database.Host, "DB_HOST")
	setInt(&c.Database.Port, "DB_PORT")
	setStr(&c.Database.User, "DB_USER")
	setStr(&c.Database.Password, "DB_PASSWORD")
	setStr(&c.Database.Database, "DB_NAME")
	setStr(&c.Database.SSLMode, "DB_SSLMODE")

	setStr(&c.Redis.Addr, "REDIS_ADDR")
	setStr(&c.Redis.Password, "REDIS_PASSWORD")
	setInt(&c.Redis.DB, "REDIS_DB")
	setDur(&c.Redis.TTL, "REDIS_TTL")

	setStr(&c.NATS.URL, "NATS_URL")
	setStr(&c.Audit.SQLitePath, "AUDIT_SQLITE_PATH")
	setBool(&c.Tracing.Stdout, "OTEL_STDOUT")
	setStr(&c.Tracing.OutputFile, "OTEL_OUTPUT_FILE")

	setInt64(&c.Selection.EscalationThreshold, "ESCALATION_THRESHOLD")
	setInt(&c.Selection.TopTierLevel, "TOP_TIER_LEVEL")
	setStr(&c.Selection.TopTierRole, "TOP_TIER_ROLE")
	setBool(&c.Selection.LimitFallback, "LIMIT_FALLBACK")
	setStr(&c.Selection.PolicyFile, "SELECTION_POLICY_FILE")

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.GRPCPort <= 0 {
		return fmt.Errorf("server ports must be positive")
	}
	return c.Selection.Validate()
}

// Validate checks the selection rules.
func (s SelectionConfig) Validate() error {
	if s.EscalationThreshold < 0 {
		return fmt.Errorf("escalation_threshold must not be negative")
	}
	if s.TopTierLevel < 1 {
		return fmt.Errorf("top_tier_level must be at least 1, got %d", s.TopTierLevel)
	}
	if s.TopTierRole == "" {
		return fmt.Errorf("top_tier_role is required")
	}
	return nil
}

// DSN returns a libpq-style connection string for pgx.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode)
}

// LoadSelectionPolicy reads a selection policy YAML file on top of the
// defaults.
func LoadSelectionPolicy(path string) (SelectionConfig, error) {
	sel := DefaultSelection()
	data, err := os.ReadFile(path)
	if err != nil {
		return sel, fmt.Errorf("read selection policy %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &sel); err != nil {
		return sel, fmt.Errorf("parse selection policy %q: %w", path, err)
	}
	sel.PolicyFile = path
	if err := sel.Validate(); err != nil {
		return sel, err
	}
	return sel, nil
}
