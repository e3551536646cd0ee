package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/presbrey/ircengine/irc/config"
	"github.com/presbrey/ircengine/irc/directory"
	"github.com/presbrey/ircengine/irc/store"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCatalog(t *testing.T) {
	t.Run("static", func(t *testing.T) {
		cfg := config.Default()
		cfg.Channels = []config.ChannelConfig{{Name: "#go"}}

		cache, st, err := buildCatalog(cfg)
		require.NoError(t, err)
		assert.Nil(t, st)
		assert.IsType(t, &directory.Static{}, cache.Catalog())
		assert.True(t, cache.ChannelExists("#go"))
		assert.False(t, cache.ChannelExists("#rust"))
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.Driver = "sqlite"
		cfg.Store.DSN = "file:" + uuid.NewString() + "?mode=memory&cache=shared"

		cache, st, err := buildCatalog(cfg)
		require.NoError(t, err)
		require.NotNil(t, st)
		defer st.Close()
		assert.IsType(t, &store.Store{}, cache.Catalog())
		assert.False(t, cache.ChannelExists("#go"))
	})

	t.Run("bad driver", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.Driver = "oracle"
		_, _, err := buildCatalog(cfg)
		assert.Error(t, err)
	})
}

func TestAppRun(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	log, _ := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	a, err := newApp(cfg, log)
	require.NoError(t, err)
	assert.Nil(t, a.bridge)
	assert.Nil(t, a.admin)
	assert.Nil(t, a.metrics)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	require.Eventually(t, func() bool { return a.server.Addr() != nil }, 2*time.Second, 10*time.Millisecond)
	conn, err := net.Dial("tcp", a.server.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

// reloadFixture writes a config file, builds an app from it and returns a
// function that rewrites the file.
func reloadFixture(t *testing.T, body string) (*app, func(string)) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ircd.yaml")
	write := func(body string) {
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}
	write(body)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	log, _ := test.NewNullLogger()
	a, err := newApp(cfg, log)
	require.NoError(t, err)
	return a, write
}

const reloadBefore = `
server:
  host: 127.0.0.1
  port: 0
  motd: before
channels:
  - name: "#go"
`

const reloadAfter = `
server:
  host: 127.0.0.1
  port: 0
  motd: after
  bad_auth: try again
channels:
  - name: "#rust"
`

func TestAppReload(t *testing.T) {
	a, write := reloadFixture(t, reloadBefore)
	assert.True(t, a.cache.ChannelExists("#go"))
	assert.False(t, a.cache.ChannelExists("#rust"))
	assert.Equal(t, "before", a.server.SessionConfig().MOTD)

	write(reloadAfter)
	require.NoError(t, a.reload())
	assert.Equal(t, "after", a.server.SessionConfig().MOTD)
	assert.Equal(t, "try again", a.server.SessionConfig().BadAuth)
	assert.True(t, a.cache.ChannelExists("#rust"))
	assert.False(t, a.cache.ChannelExists("#go"))

	write("channels:\n  - name: rust\n")
	assert.ErrorContains(t, a.reload(), "invalid config")
	assert.Equal(t, "after", a.server.Config().Server.MOTD)
	assert.True(t, a.cache.ChannelExists("#rust"))
}

func TestAppReloadsOnSignal(t *testing.T) {
	a, write := reloadFixture(t, reloadBefore)
	reloads := make(chan os.Signal, 1)
	a.reloads = reloads

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	write(reloadAfter)
	reloads <- syscall.SIGHUP
	require.Eventually(t, func() bool {
		return a.server.SessionConfig().MOTD == "after"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRootCmdFlags(t *testing.T) {
	cmd := newRootCmd()
	assert.NotNil(t, cmd.Flags().Lookup("config"))
	assert.NotNil(t, cmd.Flags().Lookup("debug"))
	assert.Equal(t, "ircd", cmd.Use)
}
