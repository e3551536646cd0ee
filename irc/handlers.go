package irc

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// handlePass stores the connection password. Anything but exactly
// "PASS <password>" drops the client.
func (s *Session) handlePass(line string) error {
	tokens := strings.Split(line, " ")
	if len(tokens) != 2 {
		return fmt.Errorf("PASS expects exactly one parameter: %w", ErrMalformed)
	}
	s.setPassword(tokens[1])
	return nil
}

// handleNick sets the nick, authenticates and sends the welcome burst.
func (s *Session) handleNick(line string) error {
	tokens := strings.Split(line, " ")
	if len(tokens) < 2 {
		return fmt.Errorf("NICK without a nickname: %w", ErrMalformed)
	}
	nick := strings.TrimPrefix(tokens[1], ":")
	if nick == "" {
		return fmt.Errorf("NICK without a nickname: %w", ErrMalformed)
	}

	s.setNick(nick)
	if !s.dir.Authenticate(s) {
		if err := s.Send(ERR_NOTREGISTERED, ":"+s.cfg.BadAuth); err != nil {
			return err
		}
		return fmt.Errorf("%s: %w", nick, ErrAuthFailed)
	}
	s.authenticated = true

	name, version := s.cfg.ServerName, s.cfg.Version
	burst := []struct{ code, text string }{
		{RPL_MOTDSTART, motdStartText(s.cfg.MOTD)},
		{RPL_ENDOFMOTD, ":End of /MOTD command."},
		{RPL_WELCOME, welcomeText(name)},
		{RPL_YOURHOST, yourHostText(name, version)},
		{RPL_CREATED, createdText(s.cfg.Created.Format(CreatedLayout))},
		{RPL_MYINFO, myInfoText(name, version)},
	}
	for _, r := range burst {
		if err := s.Send(r.code, r.text); err != nil {
			return err
		}
	}

	s.log.WithField("nick", nick).Info("session authenticated")
	s.dir.SessionStart(s)
	s.cfg.Hooks.runStart(s)
	return nil
}

// handleUser is accepted for client compatibility and does nothing.
func (s *Session) handleUser(string) error {
	return nil
}

func (s *Session) handlePing(string) error {
	return s.Send(CMD_PONG, s.cfg.ServerName)
}

func (s *Session) handleQuit(string) error {
	return ErrQuit
}

// handleJoin joins a comma-separated channel list in order. The first
// channel that does not exist or may not be joined ends the whole command.
func (s *Session) handleJoin(line string) error {
	tokens := strings.Split(line, " ")
	if len(tokens) < 2 {
		return fmt.Errorf("JOIN without a channel: %w", ErrMalformed)
	}
	if !s.authenticated {
		return s.notRegistered()
	}

	for _, name := range strings.Split(tokens[1], ",") {
		channel, ok := normalizeChannel(name)
		if !ok {
			continue
		}
		if !s.dir.ChannelExists(channel) {
			return s.Send(ERR_NOSUCHCHANNEL, noSuchChannelText(channel))
		}
		if !s.dir.ChannelAllowed(s, channel) {
			return s.Send(ERR_INVITEONLYCHAN, inviteOnlyText(channel))
		}
		if err := s.join(channel); err != nil {
			return err
		}
	}
	return nil
}

// join subscribes to channel and sends the JOIN echo, topic and names.
// Joining a channel twice is a no-op.
func (s *Session) join(channel string) error {
	if !s.addChannel(channel) {
		return nil
	}
	s.dir.ChannelSubscribe(s, channel)

	nick := s.Nick()
	if err := s.SendCommand(nick, CMD_JOIN, channel, ""); err != nil {
		return err
	}

	var err error
	if topic, ok := s.dir.ChannelTopic(channel); ok {
		err = s.Send(RPL_TOPIC, topicText(channel, topic))
	} else {
		err = s.Send(RPL_NOTOPIC, noTopicText(channel))
	}
	if err != nil {
		return err
	}

	for _, batch := range BatchNames(s.dir.ChannelNicks(channel)) {
		if err := s.Send(RPL_NAMREPLY, namesText(channel, batch)); err != nil {
			return err
		}
	}
	return s.Send(RPL_ENDOFNAMES, endOfNamesText(channel))
}

// normalizeChannel maps "&name" to "#name" and rejects anything that is
// not a channel name.
func normalizeChannel(name string) (string, bool) {
	switch {
	case strings.HasPrefix(name, "#"):
		return name, true
	case strings.HasPrefix(name, "&"):
		return "#" + name[1:], true
	default:
		return "", false
	}
}

// handlePrivmsg hands the message to the Directory as an action, a channel
// message or a private message. Short lines are dropped silently.
func (s *Session) handlePrivmsg(line string) error {
	tokens := strings.Split(line, " ")
	if len(tokens) < 2 {
		return nil
	}
	if !s.authenticated {
		return s.notRegistered()
	}

	target := tokens[1]
	body := strings.TrimPrefix(strings.Join(tokens[2:], " "), ":")
	nick := s.Nick()

	switch text, isAction := actionText(body); {
	case isAction:
		s.dir.ChannelAction(target, nick, text)
	case strings.HasPrefix(target, "#"):
		s.dir.ChannelMessage(target, nick, body)
	default:
		s.dir.UserMessage(target, nick, body)
	}
	return nil
}

const ctcpAction = "\x01ACTION"

// actionText extracts the text of a CTCP ACTION ("\x01ACTION text\x01").
func actionText(body string) (string, bool) {
	if !strings.HasPrefix(body, ctcpAction) {
		return "", false
	}
	rest := strings.TrimSuffix(body[len(ctcpAction):], "\x01")
	if rest == "" {
		return "", true
	}
	if rest[0] != ' ' {
		return "", false
	}
	return rest[1:], true
}

// handleWho lists the members of one channel. The nick is repeated in the
// realname field; clients expect it there.
func (s *Session) handleWho(line string) error {
	tokens := strings.Split(line, " ")
	if len(tokens) < 2 || tokens[1] == "" {
		return nil
	}
	if !s.authenticated {
		return s.notRegistered()
	}

	channel := tokens[1]
	for _, nick := range s.dir.ChannelNicks(channel) {
		if err := s.Send(RPL_WHOREPLY, whoText(channel, nick, s.cfg.ServerName)); err != nil {
			return err
		}
	}
	return s.Send(RPL_ENDOFWHO, endOfWhoText(channel))
}

// handleMode rejects every mode request.
func (s *Session) handleMode(string) error {
	return s.Send(ERR_UNKNOWNMODE, ":Unknown MODE flag.")
}

// handleIson replies with the subset of the given nicks that are online.
func (s *Session) handleIson(line string) error {
	_, rest, _ := strings.Cut(line, " ")
	candidates := strings.Fields(strings.TrimPrefix(strings.TrimSpace(rest), ":"))
	if len(candidates) == 0 {
		return s.Send(ERR_NEEDMOREPARAMS, "ISON :Not enough parameters")
	}

	online := make([]string, 0, len(candidates))
	for _, nick := range candidates {
		if s.dir.UserOnline(nick) {
			online = append(online, nick)
		}
	}
	return s.Send(RPL_ISON, isonText(online))
}

// handleMessage receives lines carrying a prefix. Clients do not send them,
// so they are only logged.
func (s *Session) handleMessage(line string) error {
	msg := ParseMessage(line)
	if msg == nil {
		s.log.Debugf("ignoring unparsable prefixed line %q", line)
		return nil
	}
	from, _, _ := ParseHostmask(msg.Prefix)
	s.log.WithFields(logrus.Fields{
		"from":    from,
		"command": msg.Command,
	}).Debug("ignoring prefixed message")
	return nil
}

// handleUnknown ignores commands without a handler.
func (s *Session) handleUnknown(line string) error {
	s.log.Debugf("unknown command %q", line)
	return nil
}

func (s *Session) notRegistered() error {
	return s.Send(ERR_NOTREGISTERED, ":You have not registered")
}
