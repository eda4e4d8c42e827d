package config_test

import (
	"hello/internal/config"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("ALLOWED_HOSTS", "example.com")

	cfg, err := config.Load("")
	require.NoError(t, err)

	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := validConfig(t)

	require.Equal(t, "development", cfg.Environment)
	require.False(t, cfg.Debug)
	require.Equal(t, ":8000", cfg.HTTP.Addr)
	require.Equal(t, 3, cfg.Workers.Count)
	require.Equal(t, config.EngineSQLite, cfg.Database.Engine)
	require.Equal(t, config.SessionEngineDB, cfg.Session.Engine)
	require.Equal(t, "/static/", cfg.Static.URL)
	require.Equal(t, 14*24*time.Hour, cfg.Session.CookieAge)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("SECRET_KEY", "s")
	t.Setenv("DEBUG", "1")
	t.Setenv("ALLOWED_HOSTS", "localhost 127.0.0.1 [::1]")
	t.Setenv("SQL_ENGINE", "postgres")
	t.Setenv("SQL_DATABASE", "hello_prod")
	t.Setenv("SQL_USER", "hello")
	t.Setenv("SQL_PASSWORD", "pw")
	t.Setenv("SQL_HOST", "db")
	t.Setenv("SQL_PORT", "5433")
	t.Setenv("WEB_CONCURRENCY", "5")
	t.Setenv("STATIC_URL", "assets")

	cfg, err := config.Load("")
	require.NoError(t, err)

	require.True(t, cfg.Debug)
	require.Equal(t, []string{"localhost", "127.0.0.1", "[::1]"}, cfg.AllowedHosts)
	require.Equal(t, config.EnginePostgres, cfg.Database.Engine)
	require.Equal(t, "db", cfg.Database.Host)
	require.Equal(t, 5433, cfg.Database.Port)
	require.Equal(t, 5, cfg.Workers.Count)
	require.Equal(t, "/assets/", cfg.Static.URL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingSecretKey(t *testing.T) {
	t.Setenv("SECRET_KEY", "")
	require.NoError(t, os.Unsetenv("SECRET_KEY"))

	_, err := config.Load("")
	require.Error(t, err)
}

func TestLoad_EnvFileAndYAML(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env.test")
	require.NoError(t, os.WriteFile(envFile, []byte("SECRET_KEY=from-env-file\nWEB_CONCURRENCY=7\n"), 0o600))
	yamlFile := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(yamlFile, []byte("allowedHosts: [yaml.example]\nworkers:\n  backlog: 9\n"), 0o600))

	// godotenv never overrides variables that are already set, and t.Setenv
	// restores them after the test.
	t.Setenv("SECRET_KEY", "")
	require.NoError(t, os.Unsetenv("SECRET_KEY"))
	t.Setenv("WEB_CONCURRENCY", "")
	require.NoError(t, os.Unsetenv("WEB_CONCURRENCY"))

	cfg, err := config.Load(yamlFile, envFile)
	require.NoError(t, err)

	require.Equal(t, "from-env-file", cfg.SecretKey)
	require.Equal(t, 7, cfg.Workers.Count)
	require.Equal(t, 9, cfg.Workers.Backlog)
	require.Equal(t, []string{"yaml.example"}, cfg.AllowedHosts)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	_, err := config.Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
		errMsg string
	}{
		{"production needs hosts", func(c *config.Config) { c.AllowedHosts = nil }, "ALLOWED_HOSTS"},
		{"debug allows no hosts", func(c *config.Config) { c.AllowedHosts = nil; c.Debug = true }, ""},
		{"workers", func(c *config.Config) { c.Workers.Count = 0 }, "WEB_CONCURRENCY"},
		{"unknown engine", func(c *config.Config) { c.Database.Engine = "mysql" }, "SQL_ENGINE"},
		{"postgres needs user", func(c *config.Config) { c.Database.Engine = config.EnginePostgres }, "SQL_USER"},
		{"cache needs url", func(c *config.Config) { c.Session.Engine = config.SessionEngineCache }, "CACHE_URL"},
		{"unknown session engine", func(c *config.Config) { c.Session.Engine = "file" }, "SESSION_ENGINE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)

				return
			}
			require.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := validConfig(t)
	cfg.Database.Password = "pw"

	r := cfg.Redacted()
	require.NotContains(t, r.SecretKey, "test-secret")
	require.Equal(t, "********", r.Database.Password)
	require.Equal(t, "test-secret", cfg.SecretKey)
}
