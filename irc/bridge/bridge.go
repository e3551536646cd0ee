// Package bridge relays channel traffic between the local server and a
// channel of the same name on an upstream IRC network.
package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/girc"
	"github.com/sirupsen/logrus"
)

// bufferSize is how many lines are kept while the upstream is unreachable.
// The oldest line is dropped first.
const bufferSize = 100

// Config holds the upstream connection settings.
type Config struct {
	Server   string
	Port     int
	Nick     string
	User     string
	Password string
	TLS      bool
	Channels []string
}

// Deliverer receives upstream messages for local channel members.
// *directory.Memory satisfies it.
type Deliverer interface {
	Deliver(channel, nick, text string) int
}

// sender is the part of *girc.Commands the bridge writes through.
type sender interface {
	Message(target, message string)
}

type outbound struct {
	target string
	text   string
}

// Bridge is a directory.Relay that forwards to an upstream network and
// delivers what it hears back to local sessions.
type Bridge struct {
	cfg   Config
	local Deliverer
	log   logrus.FieldLogger

	mu     sync.Mutex
	send   sender
	buffer []outbound
}

// New creates a bridge. Call Run to connect.
func New(cfg Config, local Deliverer, log logrus.FieldLogger) *Bridge {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Bridge{
		cfg:    cfg,
		local:  local,
		log:    log.WithField("bridge", cfg.Server),
		buffer: make([]outbound, 0, bufferSize),
	}
}

// RelayMessage forwards a local channel message as "<nick> text".
func (b *Bridge) RelayMessage(channel, nick, text string) {
	if b.bridged(channel) {
		b.enqueue(channel, fmt.Sprintf("<%s> %s", nick, text))
	}
}

// RelayAction forwards a local action as "* nick text".
func (b *Bridge) RelayAction(channel, nick, text string) {
	if b.bridged(channel) {
		b.enqueue(channel, fmt.Sprintf("* %s %s", nick, text))
	}
}

// Connected reports whether the upstream connection is registered.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.send != nil
}

// Buffered returns the number of lines waiting for a connection.
func (b *Bridge) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

func (b *Bridge) bridged(channel string) bool {
	for _, ch := range b.cfg.Channels {
		if strings.EqualFold(ch, channel) {
			return true
		}
	}
	return false
}

func (b *Bridge) enqueue(target, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.send != nil {
		b.send.Message(target, text)
		return
	}
	if len(b.buffer) >= bufferSize {
		b.buffer = b.buffer[1:]
	}
	b.buffer = append(b.buffer, outbound{target: target, text: text})
}

// online switches to s and flushes the buffer through it in order.
func (b *Bridge) online(s sender) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.send = s
	if len(b.buffer) > 0 {
		b.log.Infof("sending %d buffered lines", len(b.buffer))
	}
	for _, line := range b.buffer {
		s.Message(line.target, line.text)
	}
	b.buffer = b.buffer[:0]
}

func (b *Bridge) offline() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.send = nil
}

// upstream delivers a message heard on the upstream network. Our own echoes
// and unbridged targets are ignored.
func (b *Bridge) upstream(e girc.Event) {
	if e.Source == nil || len(e.Params) == 0 {
		return
	}
	if strings.EqualFold(e.Source.Name, b.cfg.Nick) {
		return
	}
	channel := e.Params[0]
	if !b.bridged(channel) {
		return
	}
	n := b.local.Deliver(channel, e.Source.Name, e.Last())
	b.log.WithFields(logrus.Fields{"channel": channel, "from": e.Source.Name, "recipients": n}).Debug("upstream message delivered")
}

func (b *Bridge) newClient() *girc.Client {
	cfg := girc.Config{
		Server: b.cfg.Server,
		Port:   b.cfg.Port,
		Nick:   b.cfg.Nick,
		User:   b.cfg.User,
		Name:   b.cfg.User,
		SSL:    b.cfg.TLS,
	}
	if b.cfg.Password != "" {
		cfg.SASL = &girc.SASLPlain{User: b.cfg.Nick, Pass: b.cfg.Password}
	}

	client := girc.New(cfg)
	client.Handlers.Add(girc.CONNECTED, func(c *girc.Client, e girc.Event) {
		c.Cmd.Join(b.cfg.Channels...)
		b.log.WithField("channels", b.cfg.Channels).Info("connected upstream")
		b.online(c.Cmd)
	})
	client.Handlers.Add(girc.DISCONNECTED, func(c *girc.Client, e girc.Event) {
		b.offline()
		b.log.Warn("disconnected from upstream")
	})
	client.Handlers.Add(girc.ERROR, func(c *girc.Client, e girc.Event) {
		b.log.Warnf("upstream error: %s", e.Last())
	})
	client.Handlers.Add(girc.PRIVMSG, func(c *girc.Client, e girc.Event) {
		b.upstream(e)
	})
	return client
}

// Run connects and reconnects with backoff until ctx is done. girc clients
// cannot reconnect, so every attempt builds a new one.
func (b *Bridge) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		client := b.newClient()
		stop := context.AfterFunc(ctx, client.Close)
		err := client.Connect()
		stop()
		b.offline()

		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			b.log.WithError(err).Warnf("upstream connection failed, retrying in %s", backoff)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < time.Minute {
			backoff *= 2
		}
	}
}
