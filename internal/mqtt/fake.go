package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// FakeConn is an in-memory Conn for tests. Lifecycle events are driven by
// the test through Connect, Drop, Reconnecting and Fail, and run their
// callbacks synchronously on the calling goroutine.
type FakeConn struct {
	hooks
	router *router

	// InvokeFunc answers Invoke while connected. If nil, Invoke returns a
	// null result.
	InvokeFunc func(method string, args []json.RawMessage) (any, error)

	mu        sync.Mutex
	connected bool
	opened    int
	closed    bool
	invoked   []Message
	sent      []Message
	seq       int
}

// NewFakeConn creates a disconnected FakeConn.
func NewFakeConn() *FakeConn {
	return &FakeConn{router: newRouter()}
}

// Open counts the call. Use Connect to complete it.
func (f *FakeConn) Open() error {
	f.mu.Lock()
	f.opened++
	f.mu.Unlock()
	return nil
}

// Close marks the connection closed.
func (f *FakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.connected = false
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether Connect was called since the last drop.
func (f *FakeConn) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Handle routes server calls to method to h.
func (f *FakeConn) Handle(method string, h HandlerFunc) {
	f.router.handle(method, h)
}

// Invoke records the call and answers it with InvokeFunc.
func (f *FakeConn) Invoke(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	m, err := NewInvocation(f.nextID(), "fake", method, args...)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.invoked = append(f.invoked, m)
	connected := f.connected
	fn := f.InvokeFunc
	f.mu.Unlock()

	if !connected {
		return nil, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn == nil {
		return json.RawMessage("null"), nil
	}

	result, err := fn(method, m.Arguments)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return b, nil
}

// Send records a fire-and-forget call.
func (f *FakeConn) Send(method string, args ...any) error {
	m, err := NewInvocation("", "fake", method, args...)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, m)
	f.mu.Unlock()
	return nil
}

// Connect marks the link up and fires OnOpen.
func (f *FakeConn) Connect() {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	f.fireOpen()
}

// Drop marks the link down, fails waiting calls and fires OnClose.
func (f *FakeConn) Drop(err error) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.router.failAll(ErrConnectionLost)
	f.fireClose(err)
}

// Reconnecting marks the link down and fires OnReconnecting.
func (f *FakeConn) Reconnecting() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.fireReconnecting()
}

// Fail fires OnError.
func (f *FakeConn) Fail(err error) {
	f.fireError(err)
}

// Call simulates the server invoking method on this client and returns
// the handler's reply.
func (f *FakeConn) Call(method string, args ...any) (json.RawMessage, error) {
	m, err := NewInvocation(f.nextID(), "server", method, args...)
	if err != nil {
		return nil, err
	}
	reply, _ := f.router.dispatch(m)
	if reply == nil {
		return nil, fmt.Errorf("no reply to %s", method)
	}
	if reply.Error != "" {
		return nil, &RemoteError{Method: method, Message: reply.Error}
	}
	return reply.Result, nil
}

// Opened returns how many times Open was called.
func (f *FakeConn) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

// Closed reports whether Close was called.
func (f *FakeConn) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Invoked returns the invocations made so far.
func (f *FakeConn) Invoked() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.invoked...)
}

// Sent returns fire-and-forget calls to method, or all of them if method
// is empty.
func (f *FakeConn) Sent(method string) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Message
	for _, m := range f.sent {
		if method == "" || m.Target == method {
			out = append(out, m)
		}
	}
	return out
}

func (f *FakeConn) nextID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return strconv.Itoa(f.seq)
}
