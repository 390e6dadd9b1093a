package mux

import (
	"io"
	"slices"
	"sync"

	"github.com/tifye/pitwall/assert"
)

// Session is one viewer, typically one browser, holding any number of
// open channels.
type Session struct {
	id       ID
	mu       sync.RWMutex
	channels []*Channel
}

func newSession(id ID) *Session {
	return &Session{
		id:       id,
		channels: []*Channel{},
	}
}

func (s *Session) ID() ID {
	return s.id
}

// Channel returns the channel with the corresponding
// channelID or nil if none exists.
func (s *Session) Channel(channelID ID) *Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := slices.IndexFunc(s.channels, func(c *Channel) bool { return c.id == channelID })
	if idx < 0 {
		return nil
	}
	return s.channels[idx]
}

func (s *Session) Channels() []*Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.channels)
}

func (s *Session) addChannel(c *Channel) {
	s.mu.Lock()
	s.channels = append(s.channels, c)
	s.mu.Unlock()
}

// removeChannel returns the number of channels left in the session.
func (s *Session) removeChannel(id ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = slices.DeleteFunc(s.channels, func(c *Channel) bool {
		return c.id == id
	})
	return len(s.channels)
}

// Channel is a single connection, usually a websocket, receiving the
// topics it subscribed to.
type Channel struct {
	id            ID
	session       *Session
	subscriptions []MessageType
	mu            sync.RWMutex

	writeMu sync.Mutex
	writer  io.Writer
}

func newChannel(id ID, session *Session, writer io.Writer) *Channel {
	assert.AssertNotNil(writer)
	return &Channel{
		id:            id,
		session:       session,
		writer:        writer,
		subscriptions: []MessageType{},
	}
}

func (c *Channel) ID() ID {
	return c.id
}

func (c *Channel) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Channel) IsSubscribedTo(typ MessageType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Contains(c.subscriptions, typ)
}

func (c *Channel) Subscriptions() []MessageType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.subscriptions)
}

func (c *Channel) addSubscription(typ MessageType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if slices.Contains(c.subscriptions, typ) {
		return
	}
	c.subscriptions = append(c.subscriptions, typ)
}

func (c *Channel) removeSubscription(typ MessageType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions = slices.DeleteFunc(c.subscriptions, func(t MessageType) bool {
		return t == typ
	})
}

// write serialises writes, websocket connections allow one writer at a
// time.
func (c *Channel) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.writer.Write(data)
	return err
}
