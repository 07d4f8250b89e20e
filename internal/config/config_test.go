package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
environment: production
server:
  port: 8080
jwt:
  secret: file-secret
  refresh_secret: file-refresh
rate_limit:
  general_max: 50
security:
  encryption_key: file-key
`

func writeConfig(t *testing.T, body string) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := writeConfig(t, sampleYAML)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 50, cfg.RateLimit.GeneralMax)
	assert.Equal(t, 10, cfg.RateLimit.AuthMax)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, int64(10<<20), cfg.Server.BodyLimit)
	assert.Equal(t, "file-secret", cfg.JWT.Secret)
}

func TestSecretsOverlay(t *testing.T) {
	dir := writeConfig(t, sampleYAML)
	t.Setenv("CODEVEDA_JWT_SECRET", "env-secret")
	t.Setenv("CODEVEDA_DATABASE_PASSWORD", "pg-pass")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.JWT.Secret)
	assert.Equal(t, "pg-pass", cfg.Database.Password)
	assert.Contains(t, cfg.Database.DSN(), "password=pg-pass")
}

func TestEnvOverridesNestedKeys(t *testing.T) {
	dir := writeConfig(t, sampleYAML)
	t.Setenv("CODEVEDA_SERVER_PORT", "9090")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	dir := writeConfig(t, "server:\n  port: 8080\n")

	_, err := LoadConfig(dir)
	assert.ErrorContains(t, err, "jwt secret")
}

func TestLoadDatabaseSkipsServerSecrets(t *testing.T) {
	dir := writeConfig(t, "database:\n  host: db.internal\n  name: records\n")

	db, err := LoadDatabase(dir)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", db.Host)
	assert.Equal(t, "records", db.Name)
	assert.Equal(t, 5432, db.Port)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Server:    ServerConfig{Port: 5000},
		JWT:       JWTConfig{Secret: "a", RefreshSecret: "b", AccessTTL: time.Minute, RefreshTTL: time.Hour},
		RateLimit: RateLimitConfig{Enabled: true, Window: time.Minute},
		Security:  SecurityConfig{EncryptionKey: "k"},
	}
	assert.NoError(t, cfg.Validate())

	cfg.Server.Port = 70000
	assert.Error(t, cfg.Validate())

	cfg.Server.Port = 5000
	cfg.SMTP.Enabled = true
	assert.ErrorContains(t, cfg.Validate(), "smtp host")
}
