/*
Package irc implements the client side of the IRC protocol as an embeddable
engine: it frames lines, authenticates a nick, tracks channel membership for
one connection and turns a small set of client commands into calls on a
Directory supplied by the host application (a chat bridge, a game lobby, a
bot framework).

# Commands

	PASS <password>        stores the password for Directory.Authenticate
	NICK <nick>            sets the nick, authenticates, sends the welcome burst
	USER ...               accepted and ignored
	PING ...               PONG
	JOIN <c1,c2,...>       joins channels; the first failure ends the command
	PRIVMSG <target> text  channel message, private message or CTCP ACTION
	WHO <channel>          one RPL_WHOREPLY per member
	MODE ...               always ERR_UNKNOWNMODE
	ISON <nick> ...        online subset of the given nicks
	QUIT                   ends the session

Anything else is ignored. A PASS, NICK or JOIN line missing its required
parameter drops the connection without a reply.

# Directory

The host owns channels, topics, membership and presence. A Session asks the
Directory whether a channel exists or may be joined, notifies it of
subscriptions and messages, and lets it decide authentication. NopDirectory
is a stand-alone implementation for tests; package irc/directory holds a
shared in-memory one.

# Usage

	cfg, _ := config.Load("ircd.yaml")
	dir := directory.NewMemory(directory.NewStatic(cfg), nil)
	server := irc.NewServer(cfg, dir)
	if err := server.Start(); err != nil {
	    log.Fatal(err)
	}
	defer server.Stop()

A single connection can also be served directly:

	session := irc.NewSession(conn, dir, irc.SessionConfig{ServerName: "irc.example.com"})
	err := session.Serve()

There are no timeouts unless SessionConfig.IdleTimeout is set, and no flood
control.
*/
package irc
