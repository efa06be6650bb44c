package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "default.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  signing_key: file-secret
database:
  host: db.internal
  user: facerecon
  password: pw
  name: facerecon
detector:
  base_url: http://detector:8000
  confidence_threshold: 0.18
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-secret", cfg.Auth.SigningKey)
	assert.Equal(t, "postgres://facerecon:pw@db.internal:5432/facerecon?sslmode=disable", cfg.DSN())
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.DetectorTimeout())
	assert.Equal(t, time.Second, cfg.ProcessInterval())
	assert.Equal(t, "facerecon.detections", cfg.NATS.Subject)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
auth:
  signing_key: file-secret
detector:
  base_url: http://detector:8000
redis:
  addr: file-redis:6379
`)

	t.Setenv("JWT_SIGNING_KEY", "env-secret")
	t.Setenv("REDIS_ADDR", "env-redis:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Auth.SigningKey)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
}

func TestLoad_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "env-secret")
	t.Setenv("DETECTOR_URL", "http://detector:8000")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Auth.SigningKey)
}

func TestLoad_RequiresSigningKey(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "")
	path := writeConfig(t, `
detector:
  base_url: http://detector:8000
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SIGNING_KEY")
}

func TestLoad_RequiresDetectorURL(t *testing.T) {
	t.Setenv("DETECTOR_URL", "")
	path := writeConfig(t, `
auth:
  signing_key: secret
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}
