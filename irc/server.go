package irc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/presbrey/ircengine/irc/config"
	"github.com/sirupsen/logrus"
)

// Server accepts connections and runs one Session per connection.
type Server struct {
	sync.RWMutex
	Hooks  *Hooks
	Logger logrus.FieldLogger

	cfg       *config.Config
	dir       Directory
	startTime time.Time
	listener  net.Listener
	sessions  map[string]*Session
	shutdown  chan struct{}
	wg        sync.WaitGroup
}

// NewServer creates a server for cfg backed by dir. The creation time
// reported to clients is captured here.
func NewServer(cfg *config.Config, dir Directory) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if dir == nil {
		dir = NopDirectory{}
	}
	return &Server{
		cfg:       cfg,
		Hooks:     NewHooks(),
		Logger:    logrus.StandardLogger(),
		dir:       dir,
		startTime: time.Now().UTC(),
		sessions:  make(map[string]*Session),
		shutdown:  make(chan struct{}),
	}
}

// Config returns the current configuration.
func (s *Server) Config() *config.Config {
	s.RLock()
	defer s.RUnlock()
	return s.cfg
}

// Reconfigure replaces the configuration. Sessions accepted afterwards use
// the new reply texts and timeouts; the listener keeps its address.
func (s *Server) Reconfigure(cfg *config.Config) {
	s.Lock()
	defer s.Unlock()
	s.cfg = cfg
}

// StartTime returns the time the server was created.
func (s *Server) StartTime() time.Time { return s.startTime }

// Start listens on the configured address and accepts in the background.
func (s *Server) Start() error {
	s.Lock()
	defer s.Unlock()

	if s.listener != nil {
		return nil
	}

	listener, err := net.Listen("tcp", s.cfg.GetListenAddress())
	if err != nil {
		return fmt.Errorf("failed to start IRC listener: %w", err)
	}
	s.listener = listener
	s.Logger.WithField("addr", listener.Addr().String()).Info("IRC server started")

	s.wg.Add(1)
	go s.acceptConnections(listener)
	return nil
}

// Addr returns the listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.RLock()
	defer s.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every live session, then waits for their
// goroutines to finish cleanup.
func (s *Server) Stop() error {
	s.Lock()
	select {
	case <-s.shutdown:
		s.Unlock()
		return nil
	default:
		close(s.shutdown)
	}

	var err error
	if s.listener != nil {
		if cerr := s.listener.Close(); cerr != nil {
			err = fmt.Errorf("error closing IRC listener: %w", cerr)
		}
	}
	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.Unlock()

	for _, session := range sessions {
		session.Close()
	}
	s.wg.Wait()

	s.Logger.Info("IRC server stopped")
	return err
}

// Sessions returns a snapshot of the live sessions.
func (s *Server) Sessions() []*Session {
	s.RLock()
	defer s.RUnlock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// SessionConfig returns the settings handed to every new session.
func (s *Server) SessionConfig() SessionConfig {
	cfg := s.Config()
	return SessionConfig{
		ServerName:  cfg.Server.Name,
		MOTD:        cfg.Server.MOTD,
		BadAuth:     cfg.Server.BadAuth,
		Version:     cfg.Server.Version,
		Created:     s.startTime,
		IdleTimeout: cfg.GetIdleTimeout(),
		Logger:      s.Logger,
		Hooks:       s.Hooks,
	}
}

func (s *Server) acceptConnections(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.Logger.WithError(err).Warn("error accepting connection")
			continue
		}

		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()

	cfg := s.SessionConfig()
	if s.Config().Server.ProxyProtocol {
		conn, cfg.RemoteAddr = s.handleProxyProtocol(conn)
	}

	session := NewSession(conn, s.dir, cfg)

	s.Lock()
	select {
	case <-s.shutdown:
		s.Unlock()
		conn.Close()
		return
	default:
	}
	s.sessions[session.ID()] = session
	s.Unlock()

	defer func() {
		s.Lock()
		delete(s.sessions, session.ID())
		s.Unlock()
	}()

	if err := session.Serve(); err != nil {
		s.Logger.WithField("session", session.ID()).WithError(err).Debug("session ended with error")
	}
}

// proxyConn keeps bytes the PROXY header reader buffered past the header.
type proxyConn struct {
	net.Conn
	reader *bufio.Reader
}

func (pc *proxyConn) Read(b []byte) (int, error) {
	if pc.reader.Buffered() > 0 {
		return pc.reader.Read(b)
	}
	return pc.Conn.Read(b)
}

// handleProxyProtocol consumes a PROXY protocol v1 header if one is sent
// and returns the connection to read from plus the client's real address.
func (s *Server) handleProxyProtocol(conn net.Conn) (net.Conn, string) {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	remote := conn.RemoteAddr().String()
	reader := bufio.NewReader(conn)
	wrapped := &proxyConn{Conn: conn, reader: reader}

	header, err := reader.Peek(6)
	if err != nil || string(header) != "PROXY " {
		if err != nil && !errors.Is(err, io.EOF) {
			s.Logger.WithField("remote", remote).WithError(err).Debug("no PROXY header")
		}
		return wrapped, remote
	}

	line, err := reader.ReadString('\n')
	if err != nil {
		s.Logger.WithField("remote", remote).WithError(err).Warn("error reading PROXY line")
		return wrapped, remote
	}

	// PROXY TCP4|TCP6 <src ip> <dst ip> <src port> <dst port>
	parts := strings.Fields(line)
	if len(parts) >= 6 && (parts[1] == "TCP4" || parts[1] == "TCP6") {
		client := net.JoinHostPort(parts[2], parts[4])
		s.Logger.WithFields(logrus.Fields{"remote": remote, "client": client}).Debug("PROXY protocol header")
		return wrapped, client
	}

	s.Logger.WithField("remote", remote).Warnf("invalid PROXY line %q", line)
	return wrapped, remote
}
