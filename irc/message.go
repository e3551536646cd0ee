package irc

import (
	"fmt"
	"strings"
)

// Message is a fully parsed protocol line, used for lines that carry a
// ":prefix". Unprefixed client commands go through the dispatch table
// instead and are tokenized by their handlers.
type Message struct {
	Prefix  string
	Command string
	Params  []string
}

// ParseMessage parses a line of the form
//
//	[:prefix] COMMAND [params...] [:trailing]
//
// and returns nil for an empty line or a prefix with no command.
func ParseMessage(line string) *Message {
	if line == "" {
		return nil
	}

	msg := &Message{
		Params: make([]string, 0),
	}

	if line[0] == ':' {
		parts := strings.SplitN(line[1:], " ", 2)
		if len(parts) < 2 || parts[1] == "" {
			return nil
		}
		msg.Prefix = parts[0]
		line = parts[1]
	}

	parts := strings.SplitN(line, " ", 2)
	msg.Command = strings.ToUpper(parts[0])
	if len(parts) < 2 {
		return msg
	}

	rest := parts[1]
	for rest != "" {
		if rest[0] == ':' {
			msg.Params = append(msg.Params, rest[1:])
			break
		}
		param, tail, found := strings.Cut(rest, " ")
		if param != "" {
			msg.Params = append(msg.Params, param)
		}
		if !found {
			break
		}
		rest = tail
	}

	return msg
}

// String renders the message back to wire form (without CRLF).
func (m *Message) String() string {
	var builder strings.Builder

	if m.Prefix != "" {
		builder.WriteString(":")
		builder.WriteString(m.Prefix)
		builder.WriteString(" ")
	}

	builder.WriteString(m.Command)

	for i, param := range m.Params {
		builder.WriteString(" ")
		if i == len(m.Params)-1 && (param == "" || strings.Contains(param, " ") || strings.HasPrefix(param, ":")) {
			builder.WriteString(":")
		}
		builder.WriteString(param)
	}

	return builder.String()
}

// ParseHostmask parses a hostmask (nick!user@host)
func ParseHostmask(hostmask string) (nick, user, host string) {
	nick, userHost, found := strings.Cut(hostmask, "!")
	if !found {
		return hostmask, "", ""
	}
	user, host, _ = strings.Cut(userHost, "@")
	return nick, user, host
}

// FormatHostmask formats a hostmask
func FormatHostmask(nick, user, host string) string {
	return fmt.Sprintf("%s!%s@%s", nick, user, host)
}
