package mux

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/tifye/pitwall/assert"
)

var (
	idSeed = [...]byte{112, 105, 116, 119, 97, 108, 108, 0, 163, 125, 98, 19, 3, 1, 102, 17, 228, 84, 34, 216, 129, 91, 143, 122, 40, 166, 236, 206, 232, 87, 208, 244}
)

const (
	MessageSizeLimit  = 1 << 20
	MaxMessageTypeLen = 16

	muxMessageTypePrefix = "mux:"
	subscribeMessage     = "subscribe"
	unsubscribeMessage   = "unsubscribe"
)

var (
	ErrNoSession     = errors.New("session does not exist")
	ErrNoChannel     = errors.New("channel does not exist")
	ErrUnknownAction = errors.New("unknown mux action")
)

type ID = [16]byte

type MessageType = string

// Handler handles messages sent by a channel for a MessageType.
type Handler interface {
	HandleMessage(channel *Channel, msg []byte) error
}

type HandlerFunc func(c *Channel, data []byte) error

func (h HandlerFunc) HandleMessage(c *Channel, data []byte) error {
	return h(c, data)
}

type WriterFunc func(data []byte) (n int, err error)

func (w WriterFunc) Write(data []byte) (n int, err error) {
	return w(data)
}

type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Mux routes messages between websocket channels and the race topics.
// A session groups the channels of one browser; channels subscribe to
// MessageTypes and receive every broadcast for them.
type Mux struct {
	*hooks
	logger *log.Logger

	rndMu sync.Mutex
	rnd   *rand.ChaCha8

	mu                   sync.RWMutex
	sessions             map[ID]*Session
	channels             map[ID]*Channel
	channelSubscriptions map[MessageType][]*Channel
	handlers             map[MessageType]Handler
}

func NewMux(logger *log.Logger) *Mux {
	assert.AssertNotNil(logger)
	return &Mux{
		hooks:                newHooks(),
		logger:               logger,
		rnd:                  rand.NewChaCha8(idSeed),
		sessions:             map[ID]*Session{},
		channels:             map[ID]*Channel{},
		channelSubscriptions: map[MessageType][]*Channel{},
		handlers:             map[MessageType]Handler{},
	}
}

func (m *Mux) RegisterHandler(typ MessageType, handler Handler) {
	assert.AssertNotEmpty(typ)
	assert.Assert(len(typ) <= MaxMessageTypeLen, "message type too long")
	assert.AssertNotNil(handler)

	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.handlers[typ]
	assert.Assert(!exists, "handler already registered for this MessageType")
	m.handlers[typ] = handler
}

func (m *Mux) newID() ID {
	id := ID{}
	m.rndMu.Lock()
	_, _ = m.rnd.Read(id[:])
	m.rndMu.Unlock()
	return id
}

// Connect adds a channel writing to writer to the session with
// sessionID, creating the session if needed, and returns the channel's
// ID. Connect hooks run after the channel is added.
func (m *Mux) Connect(sessionID ID, writer io.Writer) ID {
	channel := newChannel(m.newID(), nil, writer)

	m.mu.Lock()
	session, exists := m.sessions[sessionID]
	if !exists {
		session = newSession(sessionID)
		m.sessions[sessionID] = session
	}
	channel.session = session
	session.addChannel(channel)
	m.channels[channel.id] = channel
	m.mu.Unlock()

	m.runConnectHooks(channel, !exists)
	return channel.id
}

// Disconnect removes a channel and its subscriptions. The session is
// removed with its last channel. Unknown IDs are a noop.
func (m *Mux) Disconnect(sessionID, channelID ID) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	channel := session.Channel(channelID)
	if channel == nil {
		m.mu.Unlock()
		return
	}

	left := session.removeChannel(channelID)
	for typ, channels := range m.channelSubscriptions {
		m.channelSubscriptions[typ] = slices.DeleteFunc(channels, func(c *Channel) bool {
			return c.ID() == channelID
		})
	}
	delete(m.channels, channelID)
	if left == 0 {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	m.runDisconnectHooks(channel, left == 0)
}

// Session returns the session with the corresponding
// sessionID or nil if none exists.
func (m *Mux) Session(sessionID ID) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionID]
}

func (m *Mux) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Message handles a raw message from a channel. mux: prefixed types
// manage subscriptions; others go to the registered handler.
func (m *Mux) Message(sessionID, channelID ID, data []byte) error {
	assert.AssertNotNil(data)

	session := m.Session(sessionID)
	if session == nil {
		return ErrNoSession
	}
	channel := session.Channel(channelID)
	if channel == nil {
		return ErrNoChannel
	}

	if len(data) > MessageSizeLimit {
		return fmt.Errorf("message too large, expected at most %d bytes but got %d", MessageSizeLimit, len(data))
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("unmarshal message: %s", err)
	}
	if len(msg.Type) == 0 {
		return fmt.Errorf("no message type provided")
	}
	if len(msg.Type) > MaxMessageTypeLen {
		return fmt.Errorf("message type too long, expect length of %d but got %d", MaxMessageTypeLen, len(msg.Type))
	}

	m.runMessageHooks(channel, msg.Type, msg.Payload)

	if strings.HasPrefix(msg.Type, muxMessageTypePrefix) {
		return m.handleMuxMessage(channel, msg)
	}
	return m.handleMessage(channel, msg)
}

type muxRegisterMessage struct {
	MessageType MessageType
}

func (m *Mux) handleMuxMessage(channel *Channel, msg Message) error {
	action := strings.TrimPrefix(msg.Type, muxMessageTypePrefix)
	if action != subscribeMessage && action != unsubscribeMessage {
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	var reg muxRegisterMessage
	if err := json.Unmarshal(msg.Payload, &reg); err != nil {
		return fmt.Errorf("unmarshal %s message: %s", action, err)
	}
	if len(reg.MessageType) == 0 {
		return fmt.Errorf("no MessageType provided to %s", action)
	}

	m.mu.Lock()
	if _, ok := m.handlers[reg.MessageType]; !ok {
		m.mu.Unlock()
		m.logger.Warn("subscription on MessageType with no registered handler", "messageType", reg.MessageType, "channelID", channel.ID())
		return nil
	}

	didSub := action == subscribeMessage
	if didSub {
		if channel.IsSubscribedTo(reg.MessageType) {
			m.mu.Unlock()
			return nil
		}
		m.channelSubscriptions[reg.MessageType] = append(m.channelSubscriptions[reg.MessageType], channel)
		channel.addSubscription(reg.MessageType)
	} else {
		m.channelSubscriptions[reg.MessageType] = slices.DeleteFunc(m.channelSubscriptions[reg.MessageType], func(c *Channel) bool {
			return c.ID() == channel.ID()
		})
		channel.removeSubscription(reg.MessageType)
	}
	m.mu.Unlock()

	m.runSubscriptionHooks(channel, reg.MessageType, didSub)
	return nil
}

func (m *Mux) handleMessage(channel *Channel, msg Message) error {
	m.mu.RLock()
	handler, ok := m.handlers[msg.Type]
	m.mu.RUnlock()
	if !ok {
		m.logger.Debug("no handler for message", "type", msg.Type, "channelID", channel.ID())
		return nil
	}

	if err := handler.HandleMessage(channel, msg.Payload); err != nil {
		return fmt.Errorf("handle %s: %s", msg.Type, err)
	}
	return nil
}

func (m *Mux) SubscribedChannels(typ MessageType) []*Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.channelSubscriptions[typ]) == 0 {
		return nil
	}
	return slices.Clone(m.channelSubscriptions[typ])
}

func encode(typ MessageType, payload []byte) ([]byte, error) {
	assert.AssertNotEmpty(typ)
	assert.Assert(len(typ) <= MaxMessageTypeLen, "message type too long")
	assert.AssertNotNil(payload)

	if len(payload) > MessageSizeLimit {
		return nil, fmt.Errorf("payload too large: %d bytes", len(payload))
	}
	data, err := json.Marshal(Message{Type: typ, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("json marshal: %s", err)
	}
	return data, nil
}

func (m *Mux) write(channel *Channel, data []byte) {
	if err := channel.write(data); err != nil {
		m.logger.Warn("write on channel", "channelID", channel.ID(), "sessionID", channel.Session().ID(), "err", err)
	}
}

// SendSession writes to the subscribed channels of one session.
func (m *Mux) SendSession(sessionID ID, typ MessageType, payload []byte, exclude func(c *Channel) bool) error {
	session := m.Session(sessionID)
	if session == nil {
		return ErrNoSession
	}

	data, err := encode(typ, payload)
	if err != nil {
		return err
	}
	for _, channel := range session.Channels() {
		if !channel.IsSubscribedTo(typ) || (exclude != nil && exclude(channel)) {
			continue
		}
		m.write(channel, data)
	}
	return nil
}

// SendChannel writes to a single channel if it is subscribed to typ.
func (m *Mux) SendChannel(channelID ID, typ MessageType, payload []byte) error {
	m.mu.RLock()
	channel, ok := m.channels[channelID]
	m.mu.RUnlock()
	if !ok {
		return ErrNoChannel
	}
	if !channel.IsSubscribedTo(typ) {
		return nil
	}

	data, err := encode(typ, payload)
	if err != nil {
		return err
	}
	m.write(channel, data)
	return nil
}

// Broadcast writes to every channel subscribed to typ.
func (m *Mux) Broadcast(typ MessageType, payload []byte, exclude func(c *Channel) bool) error {
	data, err := encode(typ, payload)
	if err != nil {
		return err
	}

	for _, channel := range m.SubscribedChannels(typ) {
		if exclude != nil && exclude(channel) {
			continue
		}
		m.write(channel, data)
	}
	return nil
}
