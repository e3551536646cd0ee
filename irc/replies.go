package irc

import (
	"fmt"
	"strings"
)

// Numeric replies
const (
	RPL_WELCOME    = "001"
	RPL_YOURHOST   = "002"
	RPL_CREATED    = "003"
	RPL_MYINFO     = "004"
	RPL_ISON       = "303"
	RPL_ENDOFWHO   = "315"
	RPL_NOTOPIC    = "331"
	RPL_TOPIC      = "332"
	RPL_WHOREPLY   = "352"
	RPL_NAMREPLY   = "353"
	RPL_ENDOFNAMES = "366"
	RPL_MOTDSTART  = "375"
	RPL_ENDOFMOTD  = "376"
)

// Error replies
const (
	ERR_NOSUCHCHANNEL  = "403"
	ERR_NOTREGISTERED  = "451"
	ERR_NEEDMOREPARAMS = "461"
	ERR_UNKNOWNMODE    = "472"
	ERR_INVITEONLYCHAN = "473"
)

// Command keywords the server emits in place of a numeric
const (
	CMD_PONG    = "PONG"
	CMD_JOIN    = "JOIN"
	CMD_PRIVMSG = "PRIVMSG"
)

// namesPerReply is the maximum number of nicks carried by one RPL_NAMREPLY.
const namesPerReply = 10

// FormatNumeric builds a server-to-client reply line:
//
//	:<serverName> <code> <nick> <text>
//
// An unset nick is rendered as "*".
func FormatNumeric(serverName, code, nick, text string) string {
	if nick == "" {
		nick = "*"
	}
	var sb strings.Builder
	sb.WriteString(":")
	sb.WriteString(serverName)
	sb.WriteString(" ")
	sb.WriteString(code)
	sb.WriteString(" ")
	sb.WriteString(nick)
	sb.WriteString(" ")
	sb.WriteString(text)
	return sb.String()
}

// FormatCommand builds a relay line attributed to fromNick:
//
//	:<nick>!<nick>@<serverName> <COMMAND> <target>[ :<message>]
func FormatCommand(serverName, fromNick, command, target, message string) string {
	line := fmt.Sprintf(":%s %s %s", FormatHostmask(fromNick, fromNick, serverName), command, target)
	if message != "" {
		line += " :" + message
	}
	return line
}

// BatchNames splits nicks into groups of at most ten, preserving order.
func BatchNames(nicks []string) [][]string {
	var batches [][]string
	for len(nicks) > 0 {
		n := namesPerReply
		if len(nicks) < n {
			n = len(nicks)
		}
		batches = append(batches, nicks[:n])
		nicks = nicks[n:]
	}
	return batches
}

// reply texts

func motdStartText(motd string) string { return ":" + motd }

func welcomeText(serverName string) string { return ":Welcome to " + serverName }

func yourHostText(serverName, version string) string {
	return fmt.Sprintf(":Your host is %s, running version %s", serverName, version)
}

func createdText(created string) string { return ":This server was created " + created }

func myInfoText(serverName, version string) string {
	return fmt.Sprintf("%s :%s w n", serverName, version)
}

func noSuchChannelText(channel string) string { return channel + " :No such channel" }

func inviteOnlyText(channel string) string { return channel + " :Cannot join channel (+i)" }

func topicText(channel, topic string) string { return channel + " :" + topic }

func noTopicText(channel string) string { return channel + " :No topic is set" }

func namesText(channel string, nicks []string) string {
	return fmt.Sprintf("= %s :%s", channel, strings.Join(nicks, " "))
}

func endOfNamesText(channel string) string { return channel + " :End of /NAMES list" }

func whoText(channel, nick, serverName string) string {
	return fmt.Sprintf("%s %s %s %s %s H :0 %s", channel, nick, serverName, serverName, nick, nick)
}

func endOfWhoText(channel string) string { return channel + " :End of /WHO list." }

func isonText(nicks []string) string { return ":" + strings.Join(nicks, " ") }
