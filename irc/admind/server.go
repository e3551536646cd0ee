// Package admind serves the JSON admin API and the Prometheus metrics
// endpoint for a running IRC server.
package admind

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/presbrey/ircengine/irc"
	"github.com/presbrey/ircengine/irc/directory"
	"github.com/presbrey/ircengine/irc/store"
	"github.com/sirupsen/logrus"
)

// ErrNoStore is returned by operations that need the SQL store when the
// server runs on the static catalog.
var ErrNoStore = errors.New("no channel store configured")

type Server struct {
	*irc.Server

	Directory *directory.Memory
	Store     *store.Store
	Cache     *directory.Cached

	echoServer *echo.Echo
	onceSetup  sync.Once
}

// New wraps srv. st and cache may be nil.
func New(srv *irc.Server, dir *directory.Memory, st *store.Store, cache *directory.Cached) *Server {
	return &Server{
		Server:    srv,
		Directory: dir,
		Store:     st,
		Cache:     cache,
	}
}

func (s *Server) setup() {
	s.onceSetup.Do(func() {
		e := echo.New()
		e.HideBanner = true
		e.HidePort = true
		e.Validator = NewValidator()
		e.Use(middleware.Recover())
		e.Use(requestMetrics)
		s.route(e)
		s.echoServer = e
	})
}

// Handler returns the admin API as an http.Handler.
func (s *Server) Handler() http.Handler {
	s.setup()
	return s.echoServer
}

// StartAdminServer serves the admin API on the configured address and
// blocks until Shutdown.
func (s *Server) StartAdminServer() error {
	s.setup()
	addr := s.Config().GetAdminListenAddress()
	s.Logger.WithField("addr", addr).Info("admin API started")
	if err := s.echoServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin API: %w", err)
	}
	return nil
}

// Shutdown stops the admin API.
func (s *Server) Shutdown(ctx context.Context) error {
	s.setup()
	return s.echoServer.Shutdown(ctx)
}

// RelayPrivmsgToChannel sends message from the server to every local member
// of channel and returns how many received it.
func (s *Server) RelayPrivmsgToChannel(channel, message string) (int, error) {
	if !s.Directory.ChannelExists(channel) {
		return 0, fmt.Errorf("channel %s does not exist", channel)
	}
	n := s.Directory.Deliver(channel, s.Config().Server.Name, message)
	s.Logger.WithFields(logrus.Fields{
		"channel":    channel,
		"recipients": n,
	}).Info("relayed admin message")
	return n, nil
}

// CreateChannel stores a channel with its invites and drops any cached
// answers about it.
func (s *Server) CreateChannel(ch store.Channel, invites []string) error {
	if s.Store == nil {
		return ErrNoStore
	}
	if err := s.Store.CreateChannel(ch); err != nil {
		return err
	}
	for _, nick := range invites {
		if err := s.Store.Invite(ch.Name, nick); err != nil {
			return err
		}
	}
	if s.Cache != nil {
		s.Cache.Invalidate(ch.Name)
	}
	return nil
}
