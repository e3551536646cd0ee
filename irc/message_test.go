package irc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		line    string
		prefix  string
		command string
		params  []string
	}{
		{"PING", "", "PING", []string{}},
		{"privmsg #a :hello world", "", "PRIVMSG", []string{"#a", "hello world"}},
		{":alice!a@host PRIVMSG #a :hi", "alice!a@host", "PRIVMSG", []string{"#a", "hi"}},
		{"USER alice 0 * :Alice Liddell", "", "USER", []string{"alice", "0", "*", "Alice Liddell"}},
		{"ISON a  b", "", "ISON", []string{"a", "b"}},
		{"TOPIC #a :", "", "TOPIC", []string{"#a", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			msg := ParseMessage(tt.line)
			require.NotNil(t, msg)
			assert.Equal(t, tt.prefix, msg.Prefix)
			assert.Equal(t, tt.command, msg.Command)
			assert.Equal(t, tt.params, msg.Params)
		})
	}

	assert.Nil(t, ParseMessage(""))
	assert.Nil(t, ParseMessage(":prefix-only"))
}

func TestMessageString(t *testing.T) {
	msg := &Message{Prefix: "irc.test", Command: "PRIVMSG", Params: []string{"#a", "hello world"}}
	assert.Equal(t, ":irc.test PRIVMSG #a :hello world", msg.String())

	msg = &Message{Command: "JOIN", Params: []string{"#a"}}
	assert.Equal(t, "JOIN #a", msg.String())
}

func TestHostmask(t *testing.T) {
	nick, user, host := ParseHostmask("alice!a@example.com")
	assert.Equal(t, []string{"alice", "a", "example.com"}, []string{nick, user, host})

	nick, user, host = ParseHostmask("irc.test")
	assert.Equal(t, []string{"irc.test", "", ""}, []string{nick, user, host})

	assert.Equal(t, "bob!bob@irc.test", FormatHostmask("bob", "bob", "irc.test"))
}
