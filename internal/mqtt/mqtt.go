// Package mqtt carries the logger hub protocol over MQTT: remote calls in
// both directions, lifecycle events and automatic reconnect.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// Hub topics. Clients publish to TopicServer and receive on their own
// topic under TopicClients.
const (
	TopicServer  = "hubs/logger/server"
	TopicClients = "hubs/logger/clients/"
)

// ClientTopic returns the inbound topic for clientID.
func ClientTopic(clientID string) string {
	return TopicClients + clientID
}

var (
	// ErrNotConnected is returned by Invoke while the link is down.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrConnectionLost fails invocations still waiting when the link drops.
	ErrConnectionLost = errors.New("mqtt: connection lost")
)

// HandlerFunc answers a server-initiated call. The returned value is sent
// back as the call's result.
type HandlerFunc func(args []json.RawMessage) (any, error)

// Conn is a persistent, self-reconnecting, bidirectional hub connection.
type Conn interface {
	// Open starts connecting and returns without waiting. The outcome is
	// reported through OnOpen or OnError. Open on a live connection is a no-op.
	Open() error

	// Close disconnects and stops reconnecting.
	Close() error

	// Invoke calls method on the server and waits for its single result.
	Invoke(ctx context.Context, method string, args ...any) (json.RawMessage, error)

	// Send calls method on the server without waiting for a result.
	// Sends made while disconnected are queued and replayed on connect.
	Send(method string, args ...any) error

	// Handle routes server calls to method to h.
	Handle(method string, h HandlerFunc)

	OnOpen(f func())
	OnClose(f func(error))
	OnReconnecting(f func())
	OnError(f func(error))

	// IsConnected reports whether the link is currently up.
	IsConnected() bool
}

// hooks stores lifecycle callbacks. The zero value is ready to use.
type hooks struct {
	mu           sync.Mutex
	open         func()
	close        func(error)
	reconnecting func()
	err          func(error)
}

// OnOpen registers f to run each time the connection comes up.
func (h *hooks) OnOpen(f func()) {
	h.mu.Lock()
	h.open = f
	h.mu.Unlock()
}

// OnClose registers f to run each time an established connection is lost.
func (h *hooks) OnClose(f func(error)) {
	h.mu.Lock()
	h.close = f
	h.mu.Unlock()
}

// OnReconnecting registers f to run before each automatic reconnect attempt.
func (h *hooks) OnReconnecting(f func()) {
	h.mu.Lock()
	h.reconnecting = f
	h.mu.Unlock()
}

// OnError registers f to run when a connect attempt fails.
func (h *hooks) OnError(f func(error)) {
	h.mu.Lock()
	h.err = f
	h.mu.Unlock()
}

func (h *hooks) fireOpen() {
	h.mu.Lock()
	f := h.open
	h.mu.Unlock()
	if f != nil {
		f()
	}
}

func (h *hooks) fireClose(err error) {
	h.mu.Lock()
	f := h.close
	h.mu.Unlock()
	if f != nil {
		f(err)
	}
}

func (h *hooks) fireReconnecting() {
	h.mu.Lock()
	f := h.reconnecting
	h.mu.Unlock()
	if f != nil {
		f()
	}
}

func (h *hooks) fireError(err error) {
	h.mu.Lock()
	f := h.err
	h.mu.Unlock()
	if f != nil {
		f(err)
	}
}
