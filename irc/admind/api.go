package admind

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/presbrey/ircengine/irc"
	"github.com/presbrey/ircengine/irc/store"
)

type statsResponse struct {
	ServerName string    `json:"server_name"`
	Version    string    `json:"version"`
	StartTime  time.Time `json:"start_time"`
	Uptime     string    `json:"uptime"`
	Sessions   int       `json:"sessions"`
	Online     int       `json:"online"`
	Channels   int       `json:"channels"`
}

type sessionResponse struct {
	ID         string   `json:"id"`
	Nick       string   `json:"nick"`
	RemoteAddr string   `json:"remote_addr"`
	Channels   []string `json:"channels"`
}

type channelResponse struct {
	Name       string   `json:"name"`
	Topic      string   `json:"topic,omitempty"`
	InviteOnly bool     `json:"invite_only"`
	Members    []string `json:"members"`
}

type createChannelRequest struct {
	Name       string   `json:"name" validate:"required,startswith=#,max=200,excludesall=0x2C"`
	Topic      string   `json:"topic" validate:"max=390"`
	InviteOnly bool     `json:"invite_only"`
	Invites    []string `json:"invites" validate:"dive,required"`
}

type messageRequest struct {
	Text string `json:"text" validate:"required,max=400"`
}

type messageResponse struct {
	Channel    string `json:"channel"`
	Recipients int    `json:"recipients"`
}

func (s *Server) route(e *echo.Echo) {
	api := e.Group("/api", middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator:  s.validToken,
	}))
	api.GET("/stats", s.handleAPIStats)
	api.GET("/sessions", s.handleAPISessions)
	api.GET("/channels", s.handleAPIChannels)
	api.POST("/channels", s.handleAPICreateChannel)
	api.POST("/channels/:name/messages", s.handleAPIMessage)
}

func (s *Server) validToken(key string, c echo.Context) (bool, error) {
	for _, token := range s.Config().Admin.BearerTokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

func (s *Server) handleAPIStats(c echo.Context) error {
	start := s.StartTime()
	version := s.Config().Server.Version
	if version == "" {
		version = irc.Version
	}
	return c.JSON(http.StatusOK, statsResponse{
		ServerName: s.Config().Server.Name,
		Version:    version,
		StartTime:  start,
		Uptime:     time.Since(start).Round(time.Second).String(),
		Sessions:   len(s.Sessions()),
		Online:     s.Directory.OnlineCount(),
		Channels:   len(s.Directory.Snapshot()),
	})
}

func (s *Server) handleAPISessions(c echo.Context) error {
	sessions := s.Sessions()
	resp := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		channels := session.Channels()
		if channels == nil {
			channels = []string{}
		}
		resp = append(resp, sessionResponse{
			ID:         session.ID(),
			Nick:       session.Nick(),
			RemoteAddr: session.RemoteAddr(),
			Channels:   channels,
		})
	}
	sort.Slice(resp, func(i, j int) bool { return resp[i].Nick < resp[j].Nick })
	return c.JSON(http.StatusOK, resp)
}

// handleAPIChannels lists channels with members, plus every stored channel
// when a store is configured.
func (s *Server) handleAPIChannels(c echo.Context) error {
	channels := make(map[string]*channelResponse)
	for name, members := range s.Directory.Snapshot() {
		topic, _ := s.Directory.ChannelTopic(name)
		channels[name] = &channelResponse{Name: name, Topic: topic, Members: members}
	}

	if s.Store != nil {
		stored, err := s.Store.Channels()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		for _, ch := range stored {
			resp, ok := channels[ch.Name]
			if !ok {
				resp = &channelResponse{Name: ch.Name, Members: []string{}}
				channels[ch.Name] = resp
			}
			resp.Topic = ch.Topic
			resp.InviteOnly = ch.InviteOnly
		}
	}

	resp := make([]channelResponse, 0, len(channels))
	for _, ch := range channels {
		resp = append(resp, *ch)
	}
	sort.Slice(resp, func(i, j int) bool { return resp[i].Name < resp[j].Name })
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAPICreateChannel(c echo.Context) error {
	var req createChannelRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ch := store.Channel{Name: req.Name, Topic: req.Topic, InviteOnly: req.InviteOnly}
	if err := s.CreateChannel(ch, req.Invites); err != nil {
		if errors.Is(err, ErrNoStore) {
			return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, channelResponse{
		Name:       ch.Name,
		Topic:      ch.Topic,
		InviteOnly: ch.InviteOnly,
		Members:    s.Directory.ChannelNicks(ch.Name),
	})
}

// handleAPIMessage relays a server message. The channel may be given with
// its "#" escaped as %23 or left off.
func (s *Server) handleAPIMessage(c echo.Context) error {
	name, err := url.PathUnescape(c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !strings.HasPrefix(name, "#") {
		name = "#" + name
	}

	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	n, err := s.RelayPrivmsgToChannel(name, req.Text)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, messageResponse{Channel: name, Recipients: n})
}
