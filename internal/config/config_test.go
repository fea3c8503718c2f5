package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chtemp runs the rest of the test from an empty temp dir so no stray
// config.yaml is picked up.
func chtemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "atlas.db", cfg.Store.SQLitePath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Packs.TimeoutSecs)
	assert.Equal(t, 3, cfg.Packs.MaxRetries)
	assert.Equal(t, "county", cfg.Boundaries.Set)
	assert.Contains(t, cfg.Boundaries.URL, "TIGER2024")
	assert.Equal(t, "catalog.yaml", cfg.Catalog.Path)
	assert.Equal(t, 5, cfg.Legend.Steps)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chtemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/atlas
log:
  level: debug
  format: console
server:
  port: 9090
legend:
  steps: 7
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/atlas", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Legend.Steps)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Packs.MaxRetries)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chtemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("ATLAS_STORE_DRIVER", "postgres")
	t.Setenv("ATLAS_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chtemp(t)

	t.Setenv("ATLAS_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = "atlas.db"
	cfg.Packs.BaseURL = "https://packs.example.com"
	cfg.Boundaries.URL = "https://example.com/county.zip"
	cfg.Catalog.Path = "catalog.yaml"
	cfg.Legend.Steps = 5
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateServe_Valid(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidatePostgresRequiresURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/atlas"
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateUnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateSync_MissingURLs(t *testing.T) {
	cfg := validDefaults()
	cfg.Packs.BaseURL = ""
	cfg.Boundaries.URL = ""

	err := cfg.Validate("sync")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "packs.base_url is required")
	assert.Contains(t, err.Error(), "boundaries.url is required")
}

func TestValidateRender_MissingCatalog(t *testing.T) {
	cfg := validDefaults()
	cfg.Catalog.Path = ""

	err := cfg.Validate("render")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "catalog.path is required")
}

func TestValidateLegendStepsBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Legend.Steps = 1
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "legend.steps must be between 2 and 9")

	cfg.Legend.Steps = 10
	assert.Error(t, cfg.Validate("serve"))

	cfg.Legend.Steps = 9
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
