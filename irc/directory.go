package irc

// ChannelDirectory answers channel questions and receives membership
// notifications. It is the source of truth for channel membership.
type ChannelDirectory interface {
	ChannelExists(name string) bool
	// ChannelAllowed reports whether s may join the channel.
	ChannelAllowed(s *Session, name string) bool
	// ChannelTopic returns the topic and whether one is set.
	ChannelTopic(name string) (string, bool)
	// ChannelNicks returns the member nicks in display order.
	ChannelNicks(name string) []string
	ChannelSubscribe(s *Session, name string)
	ChannelUnsubscribe(s *Session, name string)
}

// MessageSink receives messages sent by a session. No reply is expected.
type MessageSink interface {
	ChannelMessage(channel, nick, text string)
	ChannelAction(channel, nick, text string)
	UserMessage(target, nick, text string)
}

// UserDirectory knows which nicks are online.
type UserDirectory interface {
	UserOnline(nick string) bool
}

// Lifecycle hooks for a session.
type Lifecycle interface {
	// Authenticate is called once NICK has set the nick; the session's
	// nick and password are already populated.
	Authenticate(s *Session) bool
	// SessionStart runs after the welcome burst.
	SessionStart(s *Session)
	// SessionEnd runs during cleanup, after all channels are unsubscribed.
	SessionEnd(s *Session)
}

// Directory is everything a Session needs from its host application.
// Implementations must be safe for concurrent use by many sessions.
type Directory interface {
	ChannelDirectory
	MessageSink
	UserDirectory
	Lifecycle
}

// DefaultChannel is the only channel NopDirectory reports as existing.
const DefaultChannel = "#testing123"

// NopDirectory is a stand-alone Directory: every nick authenticates, only
// DefaultChannel exists, joins are always allowed, no channel has a topic or
// members, nobody is online and all notifications are dropped.
type NopDirectory struct{}

var _ Directory = NopDirectory{}

func (NopDirectory) ChannelExists(name string) bool { return name == DefaultChannel }
func (NopDirectory) ChannelAllowed(*Session, string) bool { return true }
func (NopDirectory) ChannelTopic(string) (string, bool) { return "", false }
func (NopDirectory) ChannelNicks(string) []string { return nil }
func (NopDirectory) ChannelSubscribe(*Session, string) {}
func (NopDirectory) ChannelUnsubscribe(*Session, string) {}
func (NopDirectory) ChannelMessage(string, string, string) {}
func (NopDirectory) ChannelAction(string, string, string) {}
func (NopDirectory) UserMessage(string, string, string) {}
func (NopDirectory) UserOnline(string) bool { return false }
func (NopDirectory) Authenticate(*Session) bool { return true }
func (NopDirectory) SessionStart(*Session) {}
func (NopDirectory) SessionEnd(*Session) {}
