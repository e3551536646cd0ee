package bridge

import (
	"fmt"
	"sync"
	"testing"

	"github.com/lrstanley/girc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct{ target, text string }

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeSender) Message(target, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{target, message})
}

type delivery struct{ channel, nick, text string }

type fakeLocal struct {
	delivered []delivery
}

func (f *fakeLocal) Deliver(channel, nick, text string) int {
	f.delivered = append(f.delivered, delivery{channel, nick, text})
	return 1
}

func newTestBridge() (*Bridge, *fakeLocal) {
	local := &fakeLocal{}
	b := New(Config{Nick: "relay", Channels: []string{"#go"}}, local, nil)
	return b, local
}

func TestRelayWhileConnected(t *testing.T) {
	b, _ := newTestBridge()
	s := &fakeSender{}
	b.online(s)
	assert.True(t, b.Connected())

	b.RelayMessage("#go", "alice", "hello")
	b.RelayAction("#GO", "bob", "waves")
	b.RelayMessage("#other", "carol", "not bridged")

	assert.Equal(t, []sent{
		{"#go", "<alice> hello"},
		{"#GO", "* bob waves"},
	}, s.sent)
}

func TestBufferWhileDisconnected(t *testing.T) {
	b, _ := newTestBridge()
	assert.False(t, b.Connected())

	b.RelayMessage("#go", "alice", "one")
	b.RelayMessage("#go", "alice", "two")
	assert.Equal(t, 2, b.Buffered())

	s := &fakeSender{}
	b.online(s)
	assert.Equal(t, 0, b.Buffered())
	assert.Equal(t, []sent{
		{"#go", "<alice> one"},
		{"#go", "<alice> two"},
	}, s.sent)

	b.offline()
	b.RelayMessage("#go", "alice", "three")
	assert.Len(t, s.sent, 2)
	assert.Equal(t, 1, b.Buffered())
}

func TestBufferDropsOldest(t *testing.T) {
	b, _ := newTestBridge()
	for i := 0; i < bufferSize+5; i++ {
		b.RelayMessage("#go", "alice", fmt.Sprint(i))
	}
	assert.Equal(t, bufferSize, b.Buffered())

	s := &fakeSender{}
	b.online(s)
	require.Len(t, s.sent, bufferSize)
	assert.Equal(t, "<alice> 5", s.sent[0].text)
	assert.Equal(t, fmt.Sprintf("<alice> %d", bufferSize+4), s.sent[bufferSize-1].text)
}

func TestUpstream(t *testing.T) {
	b, local := newTestBridge()

	b.upstream(*girc.ParseEvent(":dave!d@example.net PRIVMSG #go :hi there"))
	b.upstream(*girc.ParseEvent(":relay!r@example.net PRIVMSG #go :echo"))
	b.upstream(*girc.ParseEvent(":dave!d@example.net PRIVMSG #elsewhere :nope"))
	b.upstream(*girc.ParseEvent(":dave!d@example.net PRIVMSG relay :private"))

	assert.Equal(t, []delivery{{"#go", "dave", "hi there"}}, local.delivered)
}
