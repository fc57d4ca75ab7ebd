package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/stashbox/config"
)

const secret32 = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	// Load with no config files should use defaults
	cfg, err := config.Load(nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, 5708, cfg.Server.Port)
	assert.Zero(t, cfg.Server.MaxUploadSize)
	assert.Empty(t, cfg.Server.PublicURL)
	assert.Equal(t, 300, cfg.Service.TokenTTL)
	assert.Equal(t, 30, cfg.Service.CleanupTimeout)
	assert.Empty(t, cfg.Token.Secret)
	assert.Equal(t, "stashbox", cfg.Auth.JWTIssuer)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "stashbox.db", cfg.Database.DSN)
	assert.Equal(t, "stashbox_objects", cfg.Database.Tables.Objects)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, "./data", cfg.Storage.Path)
	assert.False(t, cfg.CORS.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
env: prod
server:
  port: 8080
  max_upload_size: 1048576
  public_url: https://files.example.com
service:
  token_ttl: 60
  cleanup_timeout: 5
token:
  secret: `+secret32+`
auth:
  jwt_secret: `+secret32+`
  jwt_issuer: example
database:
  type: postgres
  dsn: postgres://localhost/test
  auto_migrate: false
  tables:
    objects: custom_objects
storage:
  path: /tmp/storage
log:
  level: debug
`)

	cfg, err := config.Load([]string{path}, nil)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(1048576), cfg.Server.MaxUploadSize)
	assert.Equal(t, "https://files.example.com", cfg.Server.PublicURL)
	assert.Equal(t, secret32, cfg.Token.Secret)
	assert.Equal(t, secret32, cfg.Auth.JWTSecret)
	assert.Equal(t, "example", cfg.Auth.JWTIssuer)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "postgres://localhost/test", cfg.Database.DSN)
	assert.Equal(t, "custom_objects", cfg.Database.Tables.Objects)
	assert.False(t, cfg.Database.AutoMigrate)
	assert.Equal(t, "/tmp/storage", cfg.Storage.Path)
	assert.Equal(t, "debug", cfg.Log.Level)

	svc := cfg.Service.StorageService()
	assert.Equal(t, time.Minute, svc.TokenTTL)
	assert.Equal(t, 5*time.Second, svc.CleanupTimeout)
}

func TestLoad_ConfigFileMerge(t *testing.T) {
	base := writeConfig(t, "base.yaml", `
server:
  port: 8080
database:
  dsn: base.db
`)
	override := writeConfig(t, "override.yaml", `
server:
  port: 9090
`)

	cfg, err := config.Load([]string{base, override}, nil)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "base.db", cfg.Database.DSN, "unset keys keep earlier values")
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := map[string]string{
		"port":          "server:\n  port: 70000\n",
		"db type":       "database:\n  type: mysql\n",
		"log level":     "log:\n  level: loud\n",
		"env":           "env: staging\n",
		"short secret":  "token:\n  secret: short\n",
		"short jwt":     "auth:\n  jwt_secret: short\n",
		"token ttl":     "service:\n  token_ttl: 0\n",
		"public url":    "server:\n  public_url: not a url\n",
		"table name":    "database:\n  tables:\n    objects: Bad-Name\n",
		"negative size": "server:\n  max_upload_size: -1\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, "config.yaml", content)

			_, err := config.Load([]string{path}, nil)
			assert.Error(t, err)
		})
	}
}

func TestLoad_WithCORS(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
cors:
  enabled: true
  allowed_origins:
    - https://example.com
    - https://app.example.com
  allowed_methods:
    - GET
    - PUT
  allowed_headers:
    - Authorization
  max_age: 600
`)

	cfg, err := config.Load([]string{path}, nil)
	require.NoError(t, err)

	assert.True(t, cfg.CORS.Enabled)
	assert.Equal(t, []string{"https://example.com", "https://app.example.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, []string{"GET", "PUT"}, cfg.CORS.AllowedMethods)
	assert.Equal(t, []string{"Authorization"}, cfg.CORS.AllowedHeaders)
	assert.Equal(t, 600, cfg.CORS.MaxAge)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("STASHBOX_SERVER_PORT", "9090")
	t.Setenv("STASHBOX_DATABASE_TYPE", "postgres")
	t.Setenv("STASHBOX_DATABASE_TABLES_OBJECTS", "tenant_objects")
	t.Setenv("STASHBOX_TOKEN_SECRET", secret32)

	cfg, err := config.Load(nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "tenant_objects", cfg.Database.Tables.Objects)
	assert.Equal(t, secret32, cfg.Token.Secret)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("STASHBOX_SERVER_PORT", "9090")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 5708, "")
	flags.String("db-dsn", "", "")
	flags.String("storage-path", "", "")
	require.NoError(t, flags.Parse([]string{"--port", "7070", "--db-dsn", "flag.db"}))

	cfg, err := config.Load(nil, flags)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "flag.db", cfg.Database.DSN)
	assert.Equal(t, "./data", cfg.Storage.Path, "unchanged flags don't override")
}

func TestContext(t *testing.T) {
	_, err := config.FromContext(context.Background())
	assert.Error(t, err)

	cfg := &config.Config{Env: "dev"}
	got, err := config.FromContext(config.WithContext(context.Background(), cfg))
	require.NoError(t, err)
	assert.Same(t, cfg, got)
}
