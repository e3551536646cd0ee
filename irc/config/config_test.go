package config

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "localhost", cfg.Server.Name)
	assert.Equal(t, "0.0.0.0:6667", cfg.GetListenAddress())
	assert.Equal(t, "127.0.0.1:8080", cfg.GetAdminListenAddress())
	assert.Equal(t, "127.0.0.1:7070", cfg.GetMetricsListenAddress())
	assert.Zero(t, cfg.GetIdleTimeout())
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "ircd.yaml", `
server:
  name: irc.example.com
  port: 6668
  idle_timeout: 300
channels:
  - name: "#general"
    topic: General chat
  - name: "#staff"
    invite_only: true
    allowed: [alice]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "irc.example.com", cfg.Server.Name)
	assert.Equal(t, 6668, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 5*time.Minute, cfg.GetIdleTimeout())
	require.Len(t, cfg.Channels, 2)
	assert.Equal(t, "General chat", cfg.Channels[0].Topic)
	assert.Equal(t, []string{"alice"}, cfg.Channels[1].Allowed)
	assert.Equal(t, path, cfg.Source)
	assert.NoError(t, cfg.Validate())
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "ircd.toml", `
[server]
name = "irc.example.org"
motd = "be nice"

[store]
driver = "sqlite"
dsn = "ircd.db"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "irc.example.org", cfg.Server.Name)
	assert.Equal(t, "be nice", cfg.Server.MOTD)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.NoError(t, cfg.Validate())
}

func TestLoadJSONFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"server":{"name":"irc.remote"},"admin":{"enabled":true,"bearer_tokens":["t1"]}}`))
	}))
	defer srv.Close()

	cfg, err := Load(srv.URL + "/ircd.json")
	require.NoError(t, err)
	assert.Equal(t, "irc.remote", cfg.Server.Name)
	assert.True(t, cfg.Admin.Enabled)
	assert.Equal(t, []string{"t1"}, cfg.Admin.BearerTokens)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeFile(t, "bad.yaml", "server: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("IRCD_SERVER_NAME", "irc.env")
	t.Setenv("IRCD_PORT", "7000")
	t.Setenv("IRCD_PROXY_PROTOCOL", "yes")
	t.Setenv("IRCD_ADMIN_TOKENS", "a, b")
	t.Setenv("IRCD_BRIDGE_CHANNELS", "#one,#two")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "irc.env", cfg.Server.Name)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.True(t, cfg.Server.ProxyProtocol)
	assert.Equal(t, []string{"a", "b"}, cfg.Admin.BearerTokens)
	assert.Equal(t, []string{"#one", "#two"}, cfg.Bridge.Channels)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty server name", func(c *Config) { c.Server.Name = "" }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"unknown store driver", func(c *Config) { c.Store.Driver = "oracle"; c.Store.DSN = "x" }},
		{"store without dsn", func(c *Config) { c.Store.Driver = "sqlite" }},
		{"bridge without server", func(c *Config) { c.Bridge.Enabled = true }},
		{"channel without hash", func(c *Config) { c.Channels = []ChannelConfig{{Name: "general"}} }},
		{"account without hash", func(c *Config) { c.Accounts = []AccountConfig{{Nick: "alice"}} }},
		{"relative metrics path", func(c *Config) { c.Metrics.Path = "metrics" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.ErrorContains(t, cfg.Validate(), "invalid config")
		})
	}
}

func TestReload(t *testing.T) {
	path := writeFile(t, "ircd.yaml", "server:\n  name: first\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  name: second\n"), 0o600))
	require.NoError(t, cfg.Reload(""))
	assert.Equal(t, "second", cfg.Server.Name)
	assert.Equal(t, path, cfg.Source)
}
