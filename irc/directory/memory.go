package directory

import (
	"sort"
	"strings"
	"sync"

	"github.com/presbrey/ircengine/irc"
	"github.com/sirupsen/logrus"
)

// Relay receives channel traffic that should leave this server, such as a
// bridge to another network.
type Relay interface {
	RelayMessage(channel, nick, text string)
	RelayAction(channel, nick, text string)
}

// Memory is an irc.Directory that keeps membership and presence in memory
// and relays messages between the sessions it knows about. Channel
// existence, access, topics and authentication come from a Catalog.
//
// Nicks are claimed case-insensitively. A nick is pending while its session
// authenticates and online once the welcome burst is sent; either way no
// other session can take it.
type Memory struct {
	catalog Catalog
	log     logrus.FieldLogger

	mu      sync.RWMutex
	relay   Relay
	members map[string]map[*irc.Session]struct{}
	online  map[string]*irc.Session
	pending map[string]*irc.Session
}

var _ irc.Directory = (*Memory)(nil)

// NewMemory returns an empty directory. log may be nil.
func NewMemory(catalog Catalog, log logrus.FieldLogger) *Memory {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Memory{
		catalog: catalog,
		log:     log,
		members: make(map[string]map[*irc.Session]struct{}),
		online:  make(map[string]*irc.Session),
		pending: make(map[string]*irc.Session),
	}
}

// SetRelay installs r as the outbound relay. Pass nil to remove it.
func (m *Memory) SetRelay(r Relay) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relay = r
}

func (m *Memory) ChannelExists(name string) bool {
	return m.catalog.ChannelExists(name)
}

func (m *Memory) ChannelAllowed(s *irc.Session, name string) bool {
	return m.catalog.ChannelAllowed(name, s.Nick())
}

func (m *Memory) ChannelTopic(name string) (string, bool) {
	return m.catalog.ChannelTopic(name)
}

// ChannelNicks returns the members of name sorted by nick.
func (m *Memory) ChannelNicks(name string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	nicks := make([]string, 0, len(m.members[name]))
	for s := range m.members[name] {
		nicks = append(nicks, s.Nick())
	}
	sort.Strings(nicks)
	return nicks
}

func (m *Memory) ChannelSubscribe(s *irc.Session, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.members[name]
	if !ok {
		members = make(map[*irc.Session]struct{})
		m.members[name] = members
	}
	members[s] = struct{}{}
}

func (m *Memory) ChannelUnsubscribe(s *irc.Session, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeMember(s, name)
}

// removeMember drops s from name and forgets empty channels. Callers hold mu.
func (m *Memory) removeMember(s *irc.Session, name string) {
	members, ok := m.members[name]
	if !ok {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(m.members, name)
	}
}

// ChannelMessage relays text to the other members of channel and to the
// outbound relay.
func (m *Memory) ChannelMessage(channel, nick, text string) {
	m.deliver(channel, nick, func(s *irc.Session) error {
		return s.SendCommand(nick, irc.CMD_PRIVMSG, channel, text)
	})
	if relay := m.getRelay(); relay != nil {
		relay.RelayMessage(channel, nick, text)
	}
}

// ChannelAction relays a CTCP ACTION to the other members of channel and
// to the outbound relay. An action aimed at a nick goes to that nick only.
func (m *Memory) ChannelAction(channel, nick, text string) {
	action := ctcpAction(text)
	if !strings.HasPrefix(channel, "#") {
		m.UserMessage(channel, nick, action)
		return
	}
	m.deliver(channel, nick, func(s *irc.Session) error {
		return s.SendCommand(nick, irc.CMD_PRIVMSG, channel, action)
	})
	if relay := m.getRelay(); relay != nil {
		relay.RelayAction(channel, nick, text)
	}
}

// UserMessage delivers a private message to the session holding target.
func (m *Memory) UserMessage(target, nick, text string) {
	m.mu.RLock()
	s, ok := m.online[nickKey(target)]
	m.mu.RUnlock()
	if !ok {
		m.log.WithFields(logrus.Fields{"from": nick, "target": target}).Debug("private message to offline nick dropped")
		return
	}
	if err := s.SendCommand(nick, irc.CMD_PRIVMSG, target, text); err != nil {
		m.log.WithField("session", s.ID()).WithError(err).Debug("private message delivery failed")
	}
}

func (m *Memory) UserOnline(nick string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.online[nickKey(nick)]
	return ok
}

// Authenticate claims the session's nick, then defers to the catalog. The
// claim is taken before the catalog is asked, so two sessions racing for
// one nick cannot both pass. A rejected session gives the claim back.
func (m *Memory) Authenticate(s *irc.Session) bool {
	key := nickKey(s.Nick())

	m.mu.Lock()
	if holder, ok := m.online[key]; ok && holder != s {
		m.mu.Unlock()
		return false
	}
	if holder, ok := m.pending[key]; ok && holder != s {
		m.mu.Unlock()
		return false
	}
	m.pending[key] = s
	m.mu.Unlock()

	if m.catalog.Authenticate(s.Nick(), s.Password()) {
		return true
	}

	m.mu.Lock()
	if m.pending[key] == s {
		delete(m.pending, key)
	}
	m.mu.Unlock()
	return false
}

// SessionStart marks the session's nick online. A session that changed its
// nick loses the old one.
func (m *Memory) SessionStart(s *irc.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forget(s)
	m.online[nickKey(s.Nick())] = s
}

// SessionEnd takes the session offline and out of every channel.
func (m *Memory) SessionEnd(s *irc.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forget(s)
	for name := range m.members {
		m.removeMember(s, name)
	}
}

// forget releases every nick s holds or has pending. Callers hold mu.
func (m *Memory) forget(s *irc.Session) {
	for _, index := range []map[string]*irc.Session{m.online, m.pending} {
		for key, holder := range index {
			if holder == s {
				delete(index, key)
			}
		}
	}
}

func nickKey(nick string) string {
	return strings.ToLower(nick)
}

// Deliver sends a PRIVMSG from nick to every member of channel, for messages
// that originate outside this server. It returns the number of recipients.
func (m *Memory) Deliver(channel, nick, text string) int {
	return m.deliver(channel, "", func(s *irc.Session) error {
		return s.SendCommand(nick, irc.CMD_PRIVMSG, channel, text)
	})
}

// deliver calls send for every member of channel except the one holding
// exclude. Sends happen outside the lock.
func (m *Memory) deliver(channel, exclude string, send func(*irc.Session) error) int {
	m.mu.RLock()
	recipients := make([]*irc.Session, 0, len(m.members[channel]))
	for s := range m.members[channel] {
		if exclude != "" && s.Nick() == exclude {
			continue
		}
		recipients = append(recipients, s)
	}
	m.mu.RUnlock()

	delivered := 0
	for _, s := range recipients {
		if err := send(s); err != nil {
			m.log.WithFields(logrus.Fields{"session": s.ID(), "channel": channel}).WithError(err).Debug("channel delivery failed")
			continue
		}
		delivered++
	}
	return delivered
}

func ctcpAction(text string) string {
	return "\x01ACTION " + text + "\x01"
}

// Snapshot returns the members of every channel.
func (m *Memory) Snapshot() map[string][]string {
	m.mu.RLock()
	names := make([]string, 0, len(m.members))
	for name := range m.members {
		names = append(names, name)
	}
	m.mu.RUnlock()

	snapshot := make(map[string][]string, len(names))
	for _, name := range names {
		snapshot[name] = m.ChannelNicks(name)
	}
	return snapshot
}

// OnlineCount returns the number of authenticated sessions.
func (m *Memory) OnlineCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.online)
}

func (m *Memory) getRelay() Relay {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.relay
}
