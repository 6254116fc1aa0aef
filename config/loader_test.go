package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 100, cfg.Server.RateLimitRPS)

	assert.Equal(t, 10, cfg.Engine.MaxIterations)
	assert.Equal(t, 5*time.Minute, cfg.Engine.RunTimeout)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "workflow.db", cfg.Database.Name)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.False(t, cfg.Auth.Enabled)
	assert.False(t, cfg.Telemetry.Enabled)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 10, cfg.Engine.MaxIterations)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s
  rate_limit_rps: 50

engine:
  max_iterations: 25
  run_timeout: 90s

database:
  driver: "postgres"
  host: "db.example.com"
  port: 5432
  user: "workflow"
  name: "workflow"

redis:
  addr: "redis.example.com:6379"
  password: "secret"
  db: 1

log:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 50, cfg.Server.RateLimitRPS)

	assert.Equal(t, 25, cfg.Engine.MaxIterations)
	assert.Equal(t, 90*time.Second, cfg.Engine.RunTimeout)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.example.com", cfg.Database.Host)

	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 1, cfg.Redis.DB)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	// Untouched settings keep their defaults.
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 10*time.Minute, cfg.Engine.RunCacheTTL)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).
		Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_MalformedYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [not a map"), 0o644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("WORKFLOW_SERVER_HTTP_PORT", "7070")
	t.Setenv("WORKFLOW_ENGINE_MAX_ITERATIONS", "42")
	t.Setenv("WORKFLOW_ENGINE_RUN_TIMEOUT", "45s")
	t.Setenv("WORKFLOW_REDIS_ADDR", "cache:6379")
	t.Setenv("WORKFLOW_AUTH_ENABLED", "true")
	t.Setenv("WORKFLOW_AUTH_JWT_SECRET", "hunter2")
	t.Setenv("WORKFLOW_TELEMETRY_SAMPLE_RATE", "0.25")
	t.Setenv("WORKFLOW_LOG_OUTPUT_PATHS", "stdout, /var/log/workflow.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.HTTPPort)
	assert.Equal(t, 42, cfg.Engine.MaxIterations)
	assert.Equal(t, 45*time.Second, cfg.Engine.RunTimeout)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "hunter2", cfg.Auth.JWTSecret)
	assert.Equal(t, 0.25, cfg.Telemetry.SampleRate)
	assert.Equal(t, []string{"stdout", "/var/log/workflow.log"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: 8888\n"), 0o644))

	t.Setenv("WORKFLOW_SERVER_HTTP_PORT", "7070")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.HTTPPort)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("WFE_SERVER_HTTP_PORT", "6060")

	cfg, err := NewLoader().WithEnvPrefix("WFE").Load()
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.Server.HTTPPort)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("WORKFLOW_SERVER_HTTP_PORT", "not-a-number")

	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestLoader_Validators(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error { return c.Validate() }).
		Load()
	assert.NoError(t, err)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"bad http port", func(c *Config) { c.Server.HTTPPort = 0 }, false},
		{"bad metrics port", func(c *Config) { c.Server.MetricsPort = 99999 }, false},
		{"zero max iterations", func(c *Config) { c.Engine.MaxIterations = 0 }, false},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, false},
		{"mongo without uri", func(c *Config) {
			c.Database.Driver = "mongo"
			c.Mongo.URI = ""
		}, false},
		{"mongo with uri", func(c *Config) { c.Database.Driver = "mongo" }, true},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true }, false},
		{"auth with secret", func(c *Config) {
			c.Auth.Enabled = true
			c.Auth.JWTSecret = "s"
		}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Parallel()

	pg := DatabaseConfig{Driver: "postgres", Host: "h", Port: 5432, User: "u", Password: "p", Name: "db", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=db sslmode=disable", pg.DSN())

	my := DatabaseConfig{Driver: "mysql", Host: "h", Port: 3306, User: "u", Password: "p", Name: "db"}
	assert.Equal(t, "u:p@tcp(h:3306)/db?parseTime=true", my.DSN())

	sq := DatabaseConfig{Driver: "sqlite", Name: "workflow.db"}
	assert.Equal(t, "workflow.db", sq.DSN())

	mongo := DatabaseConfig{Driver: "mongo"}
	assert.Empty(t, mongo.DSN())
}
