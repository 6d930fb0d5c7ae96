// Package config loads policyguard settings. Environment variables
// (POLICYGUARD_ prefix) override the YAML file, which overrides defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PrateekKumar1709/policyguard/internal/incident"
	"github.com/PrateekKumar1709/policyguard/internal/storage"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. POLICYGUARD_STORAGE_DRIVER.
const EnvPrefix = "POLICYGUARD"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Policy     PolicyConfig     `mapstructure:"policy"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Compliance ComplianceConfig `mapstructure:"compliance"`
	Engine     EngineConfig     `mapstructure:"engine"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCHealthAddr  string        `mapstructure:"grpc_health_addr"` // empty disables the gRPC health server
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggerConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

type StorageConfig struct {
	Driver        string `mapstructure:"driver"` // memory, sqlite, postgres
	DataDir       string `mapstructure:"data_dir"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"` // empty logs decision events instead
}

// RedisConfig enables suspension broadcasts when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PolicyConfig struct {
	DefaultFile string `mapstructure:"default_file"`
}

type AuditConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
}

type ComplianceConfig struct {
	Window        time.Duration `mapstructure:"window"`
	PenaltyWeight float64       `mapstructure:"penalty_weight"`
}

type EngineConfig struct {
	SuspendedSeverity string `mapstructure:"suspended_severity"`
	DenySeverity      string `mapstructure:"deny_severity"`
	ApprovalSeverity  string `mapstructure:"approval_severity"`
}

// Load reads path if given, otherwise looks for policyguard.yaml in the
// working directory and ./configs. A missing file is only an error when path
// was given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("policyguard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.grpc_health_addr", ":9090")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("logger.level", "info")
	v.SetDefault("storage.driver", storage.DriverSQLite)
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.clickhouse_dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("policy.default_file", "")
	v.SetDefault("audit.default_limit", 50)
	v.SetDefault("compliance.window", 24*time.Hour)
	v.SetDefault("compliance.penalty_weight", 5.0)
	v.SetDefault("engine.suspended_severity", string(incident.SeverityHigh))
	v.SetDefault("engine.deny_severity", string(incident.SeverityMedium))
	v.SetDefault("engine.approval_severity", string(incident.SeverityLow))
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case storage.DriverMemory, storage.DriverSQLite:
	case storage.DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	for key, sev := range map[string]string{
		"engine.suspended_severity": c.Engine.SuspendedSeverity,
		"engine.deny_severity":      c.Engine.DenySeverity,
		"engine.approval_severity":  c.Engine.ApprovalSeverity,
	} {
		if _, err := incident.ParseSeverity(sev); err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
	}
	if c.Compliance.PenaltyWeight <= 0 {
		return fmt.Errorf("config: compliance.penalty_weight must be positive")
	}
	if c.Compliance.Window <= 0 {
		return fmt.Errorf("config: compliance.window must be positive")
	}
	return nil
}
