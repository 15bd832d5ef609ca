package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-notification-ws/internal/infrastructure/logger"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(New(""))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "/ws", cfg.Server.WSPath)
	assert.Equal(t, 256, cfg.Hub.SendBuffer)
	assert.Equal(t, 10*time.Second, cfg.Hub.WriteTimeout)
	assert.Equal(t, 3*time.Second, cfg.Client.Backoff)
	assert.False(t, cfg.Redis.Enabled)

	// No key material configured by default.
	assert.Error(t, cfg.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := []byte(`
server:
  addr: ":9090"
auth:
  secret: from-file
  issuer: dashboard
hub:
  send_buffer: 32
log:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, yaml, 0o600))
	t.Setenv("NOTIFY_AUTH_SECRET", "from-env")
	t.Setenv("NOTIFY_REDIS_ENABLED", "true")

	cfg, err := Load(New(path))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "from-env", cfg.Auth.Secret)
	assert.Equal(t, "dashboard", cfg.Auth.Issuer)
	assert.Equal(t, 32, cfg.Hub.SendBuffer)
	assert.True(t, cfg.Redis.Enabled)
	require.NoError(t, cfg.Validate())

	lc, err := cfg.LoggerConfig()
	require.NoError(t, err)
	assert.Equal(t, logger.LevelDebug, lc.Level)
	assert.NotEmpty(t, lc.Fields["go_version"])
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))

	_, err := Load(New(path))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())

	base := func() *Config {
		cfg, err := Load(New(""))
		require.NoError(t, err)
		cfg.Auth.Secret = "s"
		return cfg
	}

	require.NoError(t, base().Validate())

	cfg := base()
	cfg.Server.WSPath = "ws"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Hub.SendBuffer = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Log.Level = "loud"
	_, err := cfg.LoggerConfig()
	assert.Error(t, err)
}

func TestValidateClient(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(New(""))
	require.NoError(t, err)
	assert.Error(t, cfg.ValidateClient(), "no token source")

	cfg.Client.Token = "abc"
	require.NoError(t, cfg.ValidateClient())

	cfg.Client.Backoff = 0
	assert.Error(t, cfg.ValidateClient())
}
