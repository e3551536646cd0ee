package irc

import (
	"strings"
)

type handlerFunc func(s *Session, line string) error

// handlers maps an uppercase command keyword to its handler.
var handlers map[string]handlerFunc

func init() {
	handlers = map[string]handlerFunc{
		"PASS":    (*Session).handlePass,
		"NICK":    (*Session).handleNick,
		"USER":    (*Session).handleUser,
		"PING":    (*Session).handlePing,
		"JOIN":    (*Session).handleJoin,
		"PRIVMSG": (*Session).handlePrivmsg,
		"WHO":     (*Session).handleWho,
		"MODE":    (*Session).handleMode,
		"QUIT":    (*Session).handleQuit,
		"ISON":    (*Session).handleIson,
	}
}

// dispatch routes one inbound line. Prefixed lines go to handleMessage;
// everything else is looked up by its first word, case-insensitively.
func (s *Session) dispatch(line string) error {
	if line == "" {
		return nil
	}
	if line[0] == ':' {
		return s.handleMessage(line)
	}

	command, _, _ := strings.Cut(line, " ")
	command = strings.ToUpper(command)
	commandsTotal.WithLabelValues(commandLabel(command)).Inc()

	handler, ok := handlers[command]
	if !ok {
		return s.handleUnknown(line)
	}
	return handler(s, line)
}
