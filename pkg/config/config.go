// Package config loads emissionctl configuration from defaults, an optional
// YAML file and EMISSION_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// EMISSION_STORE_DSN for store.dsn.
const EnvPrefix = "EMISSION"

// Config holds the resolved configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Store   StoreConfig   `mapstructure:"store"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Redis   RedisConfig   `mapstructure:"redis"`
	OTel    OTelConfig    `mapstructure:"otel"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Intake  IntakeConfig  `mapstructure:"intake"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text | json
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"` // memory | sqlite | postgres
	DSN    string `mapstructure:"dsn"`
}

// LedgerConfig names the identities bound at init time.
type LedgerConfig struct {
	Admin    string `mapstructure:"admin"`
	Identity string `mapstructure:"identity"`
	Fleet    string `mapstructure:"fleet"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type OTelConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

type ArchiveConfig struct {
	Backend           string `mapstructure:"backend"` // fs | s3 | gcs
	Dir               string `mapstructure:"dir"`
	S3Bucket          string `mapstructure:"s3_bucket"`
	S3Region          string `mapstructure:"s3_region"`
	S3Prefix          string `mapstructure:"s3_prefix"`
	S3Endpoint        string `mapstructure:"s3_endpoint"`
	S3AccessKeyID     string `mapstructure:"s3_access_key_id"`
	S3SecretAccessKey string `mapstructure:"s3_secret_access_key"`
	GCSBucket         string `mapstructure:"gcs_bucket"`
	GCSPrefix         string `mapstructure:"gcs_prefix"`
}

type IntakeConfig struct {
	RatePerSecond float64 `mapstructure:"rate"`
	Burst         int     `mapstructure:"burst"`
}

var ErrInvalidConfig = errors.New("config: invalid configuration")

// SetDefaults registers every key with its default so environment overrides
// resolve even when no file sets the key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "emission.db")

	v.SetDefault("ledger.admin", "")
	v.SetDefault("ledger.identity", "emission-ledger")
	v.SetDefault("ledger.fleet", "")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "emission:")

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "localhost:4317")
	v.SetDefault("otel.insecure", true)
	v.SetDefault("otel.service_name", "emissionctl")

	v.SetDefault("archive.backend", "fs")
	v.SetDefault("archive.dir", "data/archive")
	v.SetDefault("archive.s3_bucket", "")
	v.SetDefault("archive.s3_region", "us-east-1")
	v.SetDefault("archive.s3_prefix", "bundles/")
	v.SetDefault("archive.s3_endpoint", "")
	v.SetDefault("archive.s3_access_key_id", "")
	v.SetDefault("archive.s3_secret_access_key", "")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.gcs_prefix", "bundles/")

	v.SetDefault("intake.rate", 0.0)
	v.SetDefault("intake.burst", 1)
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load resolves configuration. An empty path means defaults plus environment;
// a named file that cannot be read is an error.
func Load(path string) (*Config, error) {
	return LoadWith(New(), path)
}

// LoadWith resolves configuration from a prepared viper instance, typically
// one with CLI flags already bound.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q", c.Store.Driver))
	}
	if c.Store.Driver == "postgres" && c.Store.DSN == "" {
		errs = append(errs, errors.New("store.dsn is required for postgres"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q", c.Log.Format))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Archive.Backend {
	case "fs", "s3", "gcs":
	default:
		errs = append(errs, fmt.Errorf("archive.backend %q", c.Archive.Backend))
	}
	if c.Archive.Backend == "s3" && c.Archive.S3Bucket == "" {
		errs = append(errs, errors.New("archive.s3_bucket is required for s3"))
	}
	if c.Archive.Backend == "gcs" && c.Archive.GCSBucket == "" {
		errs = append(errs, errors.New("archive.gcs_bucket is required for gcs"))
	}
	if c.Intake.RatePerSecond < 0 {
		errs = append(errs, errors.New("intake.rate must not be negative"))
	}
	if c.Intake.Burst < 1 {
		errs = append(errs, errors.New("intake.burst must be at least 1"))
	}
	if c.Ledger.Identity == "" {
		errs = append(errs, errors.New("ledger.identity is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
