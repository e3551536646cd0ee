// Package directory provides Directory implementations for package irc:
// a shared in-memory membership index backed by a Catalog of channels and
// accounts.
package directory

import (
	"crypto/subtle"
	"strings"

	"github.com/presbrey/ircengine/irc/config"
	"golang.org/x/crypto/bcrypt"
)

// Catalog answers the static questions about channels and accounts.
// Implementations must be safe for concurrent use.
type Catalog interface {
	ChannelExists(name string) bool
	ChannelAllowed(name, nick string) bool
	ChannelTopic(name string) (string, bool)
	Authenticate(nick, password string) bool
}

// Static is a Catalog built from configuration. With no channels configured
// every channel exists and is open.
type Static struct {
	password string
	channels map[string]config.ChannelConfig
	accounts map[string][]byte
}

var _ Catalog = (*Static)(nil)

// NewStatic builds a catalog from cfg.Channels, cfg.Accounts and
// cfg.Server.Password.
func NewStatic(cfg *config.Config) *Static {
	s := &Static{
		password: cfg.Server.Password,
		channels: make(map[string]config.ChannelConfig),
		accounts: make(map[string][]byte),
	}
	for _, ch := range cfg.Channels {
		s.channels[ch.Name] = ch
	}
	for _, acct := range cfg.Accounts {
		s.accounts[strings.ToLower(acct.Nick)] = []byte(acct.PasswordHash)
	}
	return s
}

func (s *Static) ChannelExists(name string) bool {
	if len(s.channels) == 0 {
		return true
	}
	_, ok := s.channels[name]
	return ok
}

func (s *Static) ChannelAllowed(name, nick string) bool {
	ch, ok := s.channels[name]
	if !ok || !ch.InviteOnly {
		return true
	}
	for _, allowed := range ch.Allowed {
		if strings.EqualFold(allowed, nick) {
			return true
		}
	}
	return false
}

func (s *Static) ChannelTopic(name string) (string, bool) {
	ch, ok := s.channels[name]
	if !ok || ch.Topic == "" {
		return "", false
	}
	return ch.Topic, true
}

// Authenticate checks the server password when one is configured, then the
// account password when the nick has an account. Other nicks are accepted.
func (s *Static) Authenticate(nick, password string) bool {
	if s.password != "" && subtle.ConstantTimeCompare([]byte(s.password), []byte(password)) != 1 {
		return false
	}
	hash, ok := s.accounts[strings.ToLower(nick)]
	if !ok {
		return true
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
