package mux

import (
	"slices"
	"sync"
)

// DisconnectHook is called after a channel is disconnected.
//
// lastChannel is true if the channel was the last one in the session
// causing the session to be removed.
type DisconnectHook func(c *Channel, lastChannel bool)

// ConnectHook is called after a channel is connected.
//
// firstChannel is true if the connection also created a new session.
type ConnectHook func(c *Channel, firstChannel bool)

// MessageHook sees every decoded message before it is routed.
type MessageHook func(c *Channel, typ MessageType, payload []byte)

// SubscriptionHook is called when a channel has subscribed or
// unsubscribed from a MessageType. The standings topic uses it to send
// the current snapshot to new subscribers.
//
// didSub is true when the channel has subscribed and false when the
// channel has unsubscribed.
type SubscriptionHook func(c *Channel, typ MessageType, didSub bool)

type hooks struct {
	mu           sync.RWMutex
	disconnect   []DisconnectHook
	connect      []ConnectHook
	message      []MessageHook
	subscription map[MessageType][]SubscriptionHook
}

func newHooks() *hooks {
	return &hooks{
		subscription: map[MessageType][]SubscriptionHook{},
	}
}

// snapshot copies a hook list under the read lock so hooks run unlocked
// and may call back into the mux.
func snapshot[T any](h *hooks, list func() []T) []T {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(list())
}

func (h *hooks) AddMessageHook(f MessageHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.message = append(h.message, f)
}

func (h *hooks) AddConnectHook(f ConnectHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connect = append(h.connect, f)
}

func (h *hooks) AddDisconnectHook(f DisconnectHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnect = append(h.disconnect, f)
}

func (h *hooks) AddSubscriptionHook(typ MessageType, f SubscriptionHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscription[typ] = append(h.subscription[typ], f)
}

func (h *hooks) runMessageHooks(c *Channel, typ MessageType, payload []byte) {
	for _, f := range snapshot(h, func() []MessageHook { return h.message }) {
		f(c, typ, payload)
	}
}

func (h *hooks) runConnectHooks(c *Channel, firstChannel bool) {
	for _, f := range snapshot(h, func() []ConnectHook { return h.connect }) {
		f(c, firstChannel)
	}
}

func (h *hooks) runDisconnectHooks(c *Channel, lastChannel bool) {
	for _, f := range snapshot(h, func() []DisconnectHook { return h.disconnect }) {
		f(c, lastChannel)
	}
}

func (h *hooks) runSubscriptionHooks(c *Channel, typ MessageType, didSub bool) {
	for _, f := range snapshot(h, func() []SubscriptionHook { return h.subscription[typ] }) {
		f(c, typ, didSub)
	}
}
