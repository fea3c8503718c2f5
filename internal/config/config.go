// Package config loads atlas configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Packs      PacksConfig      `yaml:"packs" mapstructure:"packs"`
	Boundaries BoundariesConfig `yaml:"boundaries" mapstructure:"boundaries"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	Legend     LegendConfig     `yaml:"legend" mapstructure:"legend"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// PacksConfig configures pack fetching.
type PacksConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// BoundariesConfig configures boundary loading.
type BoundariesConfig struct {
	URL     string `yaml:"url" mapstructure:"url"`
	Set     string `yaml:"set" mapstructure:"set"`
	TempDir string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// CatalogConfig points at the metric catalog file.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LegendConfig holds display defaults.
type LegendConfig struct {
	Steps int `yaml:"steps" mapstructure:"steps"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ATLAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "atlas.db")
	v.SetDefault("packs.base_url", "https://www2.census.gov/programs-surveys/packs")
	v.SetDefault("packs.timeout_secs", 30)
	v.SetDefault("packs.max_retries", 3)
	v.SetDefault("boundaries.url", "https://www2.census.gov/geo/tiger/TIGER2024/COUNTY/tl_2024_us_county.zip")
	v.SetDefault("boundaries.set", "county")
	v.SetDefault("boundaries.temp_dir", "/tmp/county-atlas")
	v.SetDefault("catalog.path", "catalog.yaml")
	v.SetDefault("legend.steps", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable for the given run
// mode ("serve", "sync", or "render").
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	switch c.Store.Driver {
	case "sqlite":
		check(c.Store.SQLitePath != "", "store.sqlite_path is required for the sqlite driver")
	case "postgres":
		check(c.Store.DatabaseURL != "", "store.database_url is required for the postgres driver")
	default:
		check(false, "store.driver must be sqlite or postgres")
	}

	check(c.Legend.Steps >= 2 && c.Legend.Steps <= 9, "legend.steps must be between 2 and 9")

	switch mode {
	case "serve":
		check(c.Server.Port > 0, "server.port must be > 0")
	case "sync":
		check(c.Packs.BaseURL != "", "packs.base_url is required")
		check(c.Boundaries.URL != "", "boundaries.url is required")
	case "render":
		check(c.Catalog.Path != "", "catalog.path is required")
	default:
		check(false, "unknown mode "+mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
