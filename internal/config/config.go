package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendCatalog  = "catalog"
	BackendPostgres = "postgres"
)

type Config struct {
	Port                    string        `mapstructure:"PORT"`
	Env                     string        `mapstructure:"ENV"`
	LogLevel                string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL             string        `mapstructure:"DATABASE_URL"`
	DBMaxConns              int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns              int32         `mapstructure:"DB_MIN_CONNS"`
	TerminologyBackend      string        `mapstructure:"TERMINOLOGY_BACKEND"`
	CatalogPath             string        `mapstructure:"CATALOG_PATH"`
	LoaderWorkers           int           `mapstructure:"LOADER_WORKERS"`
	AdapterTimeout          time.Duration `mapstructure:"ADAPTER_TIMEOUT"`
	RxNormMinInterval       time.Duration `mapstructure:"RXNORM_MIN_INTERVAL"`
	NDCMinInterval          time.Duration `mapstructure:"NDC_MIN_INTERVAL"`
	NDCSecondaryMinInterval time.Duration `mapstructure:"NDC_SECONDARY_MIN_INTERVAL"`
	UMLSMinInterval         time.Duration `mapstructure:"UMLS_MIN_INTERVAL"`
	AuthSigningKey          string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer              string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience            string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins             []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS            float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst          int           `mapstructure:"RATE_LIMIT_BURST"`
	MetricsEnabled          bool          `mapstructure:"METRICS_ENABLED"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"TERMINOLOGY_BACKEND", "CATALOG_PATH", "LOADER_WORKERS",
	"ADAPTER_TIMEOUT", "RXNORM_MIN_INTERVAL", "NDC_MIN_INTERVAL",
	"NDC_SECONDARY_MIN_INTERVAL", "UMLS_MIN_INTERVAL",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "METRICS_ENABLED",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("TERMINOLOGY_BACKEND", BackendCatalog)
	v.SetDefault("CATALOG_PATH", "data/catalog.yaml")
	v.SetDefault("LOADER_WORKERS", 8)
	v.SetDefault("ADAPTER_TIMEOUT", "10s")
	// Call spacing of the public terminology services.
	v.SetDefault("RXNORM_MIN_INTERVAL", "100ms")
	v.SetDefault("NDC_MIN_INTERVAL", "300ms")
	v.SetDefault("NDC_SECONDARY_MIN_INTERVAL", "300ms")
	v.SetDefault("UMLS_MIN_INTERVAL", "100ms")
	v.SetDefault("AUTH_ISSUER", "medxwalk")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("METRICS_ENABLED", true)

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}
	cfg.TerminologyBackend = strings.ToLower(strings.TrimSpace(cfg.TerminologyBackend))

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AuthEnabled reports whether API requests must carry a bearer token.
// Development servers without a signing key run open.
func (c *Config) AuthEnabled() bool {
	return !c.IsDev() || c.AuthSigningKey != ""
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.TerminologyBackend {
	case BackendCatalog:
		if c.CatalogPath == "" {
			return fmt.Errorf("CATALOG_PATH is required when TERMINOLOGY_BACKEND is %q", BackendCatalog)
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when TERMINOLOGY_BACKEND is %q", BackendPostgres)
		}
	default:
		return fmt.Errorf("TERMINOLOGY_BACKEND must be %q or %q, got %q", BackendCatalog, BackendPostgres, c.TerminologyBackend)
	}

	if c.LoaderWorkers < 1 {
		return fmt.Errorf("LOADER_WORKERS must be at least 1, got %d", c.LoaderWorkers)
	}
	if c.AdapterTimeout < 0 {
		return fmt.Errorf("ADAPTER_TIMEOUT must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"RXNORM_MIN_INTERVAL":        c.RxNormMinInterval,
		"NDC_MIN_INTERVAL":           c.NDCMinInterval,
		"NDC_SECONDARY_MIN_INTERVAL": c.NDCSecondaryMinInterval,
		"UMLS_MIN_INTERVAL":          c.UMLSMinInterval,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	if c.AuthEnabled() && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes outside development (ENV=%q)", c.Env)
	}
	return nil
}
