package admind

import (
	"bufio"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/presbrey/ircengine/irc"
	"github.com/presbrey/ircengine/irc/config"
	"github.com/presbrey/ircengine/irc/directory"
	"github.com/presbrey/ircengine/irc/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "s3cret"

type testClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func (c *testClient) send(t *testing.T, line string) {
	t.Helper()
	_, err := c.conn.Write([]byte(line + "\r\n"))
	require.NoError(t, err)
}

// expect reads lines until one contains substr.
func (c *testClient) expect(t *testing.T, substr string) string {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	defer c.conn.SetReadDeadline(time.Time{})
	for {
		line, err := c.reader.ReadString('\n')
		require.NoError(t, err, "waiting for %q", substr)
		if strings.Contains(line, substr) {
			return strings.TrimRight(line, "\r\n")
		}
	}
}

type fixture struct {
	admin  *Server
	dir    *directory.Memory
	client *testClient
}

func newFixture(t *testing.T, st *store.Store) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Admin.BearerTokens = []string{testToken}

	var catalog directory.Catalog = directory.NewStatic(cfg)
	if st != nil {
		catalog = st
	}
	cache := directory.NewCached(catalog, time.Minute, time.Minute)
	dir := directory.NewMemory(cache, nil)

	srv := irc.NewServer(cfg, dir)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	client := &testClient{conn: conn, reader: bufio.NewReader(conn)}

	return &fixture{
		admin:  New(srv, dir, st, cache),
		dir:    dir,
		client: client,
	}
}

func (f *fixture) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.admin.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAuth(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	f.admin.Handler().ServeHTTP(rec, req)
	assert.NotEqual(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	f.admin.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.request(t, http.MethodGet, "/api/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionsAndChannels(t *testing.T) {
	f := newFixture(t, nil)
	f.client.send(t, "NICK alice")
	f.client.expect(t, " 004 alice ")
	f.client.send(t, "JOIN #go")
	f.client.expect(t, " 366 alice #go ")

	var stats statsResponse
	rec := f.request(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, "localhost", stats.ServerName)
	assert.Equal(t, irc.Version, stats.Version)
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, 1, stats.Online)
	assert.Equal(t, 1, stats.Channels)

	var sessions []sessionResponse
	rec = f.request(t, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "alice", sessions[0].Nick)
	assert.Equal(t, []string{"#go"}, sessions[0].Channels)

	var channels []channelResponse
	rec = f.request(t, http.MethodGet, "/api/channels", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &channels))
	require.Len(t, channels, 1)
	assert.Equal(t, "#go", channels[0].Name)
	assert.Equal(t, []string{"alice"}, channels[0].Members)
}

func TestChannelMessage(t *testing.T) {
	f := newFixture(t, nil)
	f.client.send(t, "NICK alice")
	f.client.send(t, "JOIN #go")
	f.client.expect(t, " 366 alice #go ")

	rec := f.request(t, http.MethodPost, "/api/channels/%23go/messages", `{"text":"maintenance at noon"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, messageResponse{Channel: "#go", Recipients: 1}, resp)

	line := f.client.expect(t, "PRIVMSG")
	assert.Equal(t, ":localhost!localhost@localhost PRIVMSG #go :maintenance at noon", line)

	rec = f.request(t, http.MethodPost, "/api/channels/go/messages", `{"text":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateChannelWithoutStore(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.request(t, http.MethodPost, "/api/channels", `{"name":"#new"}`)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestCreateChannel(t *testing.T) {
	st, err := store.Open("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := newFixture(t, st)

	// cache the negative answer first
	assert.False(t, f.dir.ChannelExists("#vip"))

	rec := f.request(t, http.MethodPost, "/api/channels", `{"name":"no-hash"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(t, http.MethodPost, "/api/channels",
		`{"name":"#vip","topic":"members only","invite_only":true,"invites":["alice"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, f.dir.ChannelExists("#vip"))

	f.client.send(t, "NICK bob")
	f.client.send(t, "JOIN #vip")
	f.client.expect(t, " 473 bob #vip :Cannot join channel (+i)")

	var channels []channelResponse
	rec = f.request(t, http.MethodGet, "/api/channels", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &channels))
	require.Len(t, channels, 1)
	assert.Equal(t, "members only", channels[0].Topic)
	assert.True(t, channels[0].InviteOnly)
	assert.Empty(t, channels[0].Members)
}

func TestMetricsRouter(t *testing.T) {
	f := newFixture(t, nil)
	f.request(t, http.MethodGet, "/api/stats", "")

	router := MetricsRouter("/metrics")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "ircengine_sessions_total")
	assert.Contains(t, body, `ircengine_admin_requests_total{code="200",method="GET"}`)
}
