package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const fullConfig = `
server:
  address: ":9000"
  name: "test-server"
  version: "1.2.3"
  log_level: "debug"
  instructions: "use the tools"
  endpoint_path: "/api/mcp"
  authorization: "users_only"
  allowed_origins:
    - "https://example.com"
  allowed_hosts:
    - "localhost:9000"
  session_timeout: "10m"
  cleanup_interval: "1m"
  ssl:
    enabled: true
    mode: "manual"
    cert_file: "/etc/ssl/cert.pem"
    key_file: "/etc/ssl/key.pem"
users:
  alice:
    keys:
      - "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
`

func TestNewYamlConfig(t *testing.T) {
	cfg, err := NewYamlConfig(writeConfig(t, fullConfig), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer cfg.Close()

	addr, err := cfg.ListenAddr()
	require.NoError(t, err)
	assert.Equal(t, ":9000", addr)

	name, err := cfg.ServerName()
	require.NoError(t, err)
	assert.Equal(t, "test-server", name)

	version, err := cfg.ServerVersion()
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", version)

	assert.Equal(t, "debug", cfg.LogLevel())
	assert.Equal(t, "use the tools", cfg.Instructions())
	assert.Equal(t, "/api/mcp", cfg.EndpointPath())
	assert.Equal(t, []string{"https://example.com"}, cfg.AllowedOrigins())
	assert.Equal(t, []string{"localhost:9000"}, cfg.AllowedHosts())
	assert.Equal(t, AuthorizedUsersOnly, cfg.AuthorizationType())
	assert.Equal(t, 10*time.Minute, cfg.SessionTimeout())
	assert.Equal(t, time.Minute, cfg.CleanupInterval())

	ssl := cfg.SSL()
	assert.True(t, ssl.Enabled)
	assert.Equal(t, "manual", ssl.Mode)
	assert.Equal(t, "/etc/ssl/cert.pem", ssl.CertFile)
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := NewYamlConfig(writeConfig(t, `
server:
  name: "minimal"
  version: "0.0.1"
`), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer cfg.Close()

	addr, err := cfg.ListenAddr()
	require.NoError(t, err)
	assert.Equal(t, ":4000", addr)
	assert.Equal(t, "/mcp", cfg.EndpointPath())
	assert.Equal(t, NotAuthorizedEverywhere, cfg.AuthorizationType())
	assert.Equal(t, 30*time.Minute, cfg.SessionTimeout())
	assert.Equal(t, 5*time.Minute, cfg.CleanupInterval())
	assert.False(t, cfg.SSL().Enabled)
}

func TestConfigMissingIdentity(t *testing.T) {
	cfg, err := NewYamlConfig(writeConfig(t, `server: {}`), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer cfg.Close()

	_, err = cfg.ServerName()
	assert.Error(t, err)
	_, err = cfg.ServerVersion()
	assert.Error(t, err)
}

func TestConfigMissingFile(t *testing.T) {
	_, err := NewYamlConfig(filepath.Join(t.TempDir(), "nope.yaml"), zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestConfigInvalidYAML(t *testing.T) {
	_, err := NewYamlConfig(writeConfig(t, "server: [not a map"), zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestGetUserIDByKeyHash(t *testing.T) {
	cfg, err := NewYamlConfig(writeConfig(t, fullConfig), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer cfg.Close()

	// The stored hash is HashAPIKey("test").
	userID, err := cfg.GetUserIDByKeyHash(HashAPIKey("test"))
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)

	_, err = cfg.GetUserIDByKeyHash(HashAPIKey("wrong"))
	assert.Error(t, err)

	_, err = cfg.GetUserIDByKeyHash("")
	assert.Error(t, err)
}

func TestHashAPIKey(t *testing.T) {
	assert.Equal(t, "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08", HashAPIKey("test"))
	assert.Equal(t, "", HashAPIKey(""))
	assert.Equal(t, HashAPIKey("a"), HashAPIKey("a"))
	assert.NotEqual(t, HashAPIKey("a"), HashAPIKey("b"))
}

func TestConfigUpdateReload(t *testing.T) {
	path := writeConfig(t, `
server:
  name: "before"
  version: "1"
`)
	cfg, err := NewYamlConfig(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer cfg.Close()

	require.NoError(t, os.WriteFile(path, []byte(`
server:
  name: "after"
  version: "2"
`), 0644))
	require.NoError(t, cfg.Update())

	name, err := cfg.ServerName()
	require.NoError(t, err)
	assert.Equal(t, "after", name)
}

func TestConfigWatchReloads(t *testing.T) {
	path := writeConfig(t, `
server:
  name: "before"
  version: "1"
`)
	cfg, err := NewYamlConfig(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer cfg.Close()

	reloaded := make(chan struct{}, 1)
	cfg.OnReload(func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})
	require.NoError(t, cfg.Watch())

	require.NoError(t, os.WriteFile(path, []byte(`
server:
  name: "after"
  version: "2"
`), 0644))

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("config watcher did not fire")
	}

	name, err := cfg.ServerName()
	require.NoError(t, err)
	assert.Equal(t, "after", name)
}
