package irc

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Defaults for SessionConfig
const (
	DefaultServerName = "localhost"
	DefaultMOTD       = "Message of the day"
	DefaultBadAuth    = "Your username and password were not recognized"
	Version           = "ircengine-0.1"

	// CreatedLayout formats the creation time in RPL_CREATED.
	CreatedLayout = "2006-01-02 15:04:05.000000"
)

// Termination signals. A handler returning one of these stops the read loop
// cleanly; Serve then runs cleanup and returns nil.
var (
	ErrQuit       = errors.New("client quit")
	ErrMalformed  = errors.New("malformed command")
	ErrAuthFailed = fmt.Errorf("authentication failed: %w", ErrQuit)
)

// SessionConfig holds the per-server settings every session shares.
type SessionConfig struct {
	ServerName string
	MOTD       string
	BadAuth    string
	Version    string

	// Created is the server start time reported in RPL_CREATED.
	Created time.Time

	// IdleTimeout closes a session that sends nothing for this long.
	// Zero disables it.
	IdleTimeout time.Duration

	// RemoteAddr overrides conn.RemoteAddr(), e.g. after a PROXY header.
	RemoteAddr string

	Logger logrus.FieldLogger
	Hooks  *Hooks
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.ServerName == "" {
		c.ServerName = DefaultServerName
	}
	if c.MOTD == "" {
		c.MOTD = DefaultMOTD
	}
	if c.BadAuth == "" {
		c.BadAuth = DefaultBadAuth
	}
	if c.Version == "" {
		c.Version = Version
	}
	if c.Created.IsZero() {
		c.Created = time.Now().UTC()
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return c
}

// Session is the protocol state of one client connection. It is driven by a
// single goroutine running Serve; accessors and the Send family may be used
// by the Directory from other goroutines.
type Session struct {
	id     string
	conn   net.Conn
	framer *Framer
	dir    Directory
	cfg    SessionConfig
	log    *logrus.Entry
	remote string

	mu       sync.RWMutex
	nick     string
	password string
	channels []string
	joined   map[string]struct{}

	// owned by the Serve goroutine
	authenticated bool
}

// NewSession prepares a session for conn. Call Serve to run it.
func NewSession(conn net.Conn, dir Directory, cfg SessionConfig) *Session {
	cfg = cfg.withDefaults()
	if dir == nil {
		dir = NopDirectory{}
	}

	remote := cfg.RemoteAddr
	if remote == "" && conn.RemoteAddr() != nil {
		remote = conn.RemoteAddr().String()
	}

	s := &Session{
		id:     uuid.NewString(),
		conn:   conn,
		dir:    dir,
		cfg:    cfg,
		remote: remote,
		joined: make(map[string]struct{}),
	}
	s.log = cfg.Logger.WithFields(logrus.Fields{
		"session": s.id,
		"remote":  remote,
	})
	s.framer = NewFramer(conn, func(direction, line string) {
		s.log.Debugf("%s %q", direction, line)
	})
	return s
}

// ID returns the unique session id.
func (s *Session) ID() string { return s.id }

// ServerName returns the name the session announces itself as.
func (s *Session) ServerName() string { return s.cfg.ServerName }

// RemoteAddr returns the client address.
func (s *Session) RemoteAddr() string { return s.remote }

// CreatedAt returns the server start time reported to the client.
func (s *Session) CreatedAt() time.Time { return s.cfg.Created }

// Nick returns the current nick, or "" before NICK.
func (s *Session) Nick() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nick
}

// Password returns the password given by PASS, or "".
func (s *Session) Password() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.password
}

// Channels returns the joined channels in join order.
func (s *Session) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.channels...)
}

func (s *Session) setNick(nick string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nick = nick
}

func (s *Session) setPassword(password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.password = password
}

func (s *Session) addChannel(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.joined[channel]; ok {
		return false
	}
	s.joined[channel] = struct{}{}
	s.channels = append(s.channels, channel)
	return true
}

func (s *Session) clearChannels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	channels := s.channels
	s.channels = nil
	s.joined = make(map[string]struct{})
	return channels
}

// Send writes a numeric-style reply: ":<server> <code> <nick> <text>".
func (s *Session) Send(code, text string) error {
	repliesTotal.WithLabelValues(code).Inc()
	return s.framer.WriteLine(FormatNumeric(s.cfg.ServerName, code, s.Nick(), text))
}

// SendCommand writes a relay line attributed to fromNick.
func (s *Session) SendCommand(fromNick, command, target, message string) error {
	repliesTotal.WithLabelValues(command).Inc()
	return s.framer.WriteLine(FormatCommand(s.cfg.ServerName, fromNick, command, target, message))
}

// SendRaw writes line as-is.
func (s *Session) SendRaw(line string) error {
	return s.framer.WriteLine(line)
}

// Close closes the underlying connection, which ends Serve.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Serve runs the read loop until the client quits, sends a malformed
// command, fails authentication or the stream ends, then cleans up. It
// returns nil for every clean termination and the I/O error otherwise.
func (s *Session) Serve() (err error) {
	sessionsActive.Inc()
	sessionsTotal.Inc()
	s.log.Info("session started")

	reason := reasonClosed
	defer func() {
		s.cleanup()
		sessionsActive.Dec()
		terminationsTotal.WithLabelValues(reason).Inc()
		entry := s.log.WithField("reason", reason)
		if err != nil {
			entry.WithError(err).Warn("session terminated")
		} else {
			entry.Info("session terminated")
		}
	}()

	for {
		if s.cfg.IdleTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}

		line, rerr := s.framer.ReadLine()
		if rerr != nil {
			if errors.Is(rerr, io.EOF) || errors.Is(rerr, net.ErrClosed) {
				return nil
			}
			reason = reasonError
			return fmt.Errorf("read: %w", rerr)
		}

		herr := s.dispatch(line)
		switch {
		case herr == nil:
			continue
		case errors.Is(herr, ErrAuthFailed):
			reason = reasonAuth
			return nil
		case errors.Is(herr, ErrQuit):
			reason = reasonQuit
			return nil
		case errors.Is(herr, ErrMalformed):
			reason = reasonMalformed
			s.log.WithError(herr).Info("dropping client")
			return nil
		default:
			reason = reasonError
			return herr
		}
	}
}

// cleanup unsubscribes every joined channel, runs the end hooks and always
// closes the connection.
func (s *Session) cleanup() {
	defer func() {
		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.WithError(err).Debug("close failed")
		}
	}()

	for _, channel := range s.clearChannels() {
		s.safely("unsubscribe", func() { s.dir.ChannelUnsubscribe(s, channel) })
	}
	s.safely("session end", func() { s.dir.SessionEnd(s) })
	s.cfg.Hooks.runEnd(s)
}

func (s *Session) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("step", what).Errorf("cleanup panic: %v", r)
		}
	}()
	fn()
}
