package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
)

type completion struct {
	result json.RawMessage
	err    error
}

type pendingCall struct {
	method string
	done   chan completion
}

// router dispatches inbound frames: invocations to registered handlers,
// completions to the caller waiting on them.
type router struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
	pending  map[string]pendingCall
}

func newRouter() *router {
	return &router{
		handlers: make(map[string]HandlerFunc),
		pending:  make(map[string]pendingCall),
	}
}

func (r *router) handle(method string, h HandlerFunc) {
	r.mu.Lock()
	r.handlers[method] = h
	r.mu.Unlock()
}

// expect registers a call awaiting completion id.
func (r *router) expect(id, method string) <-chan completion {
	ch := make(chan completion, 1)
	r.mu.Lock()
	r.pending[id] = pendingCall{method: method, done: ch}
	r.mu.Unlock()
	return ch
}

func (r *router) forget(id string) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// failAll completes every waiting call with err.
func (r *router) failAll(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.pending {
		p.done <- completion{err: err}
		delete(r.pending, id)
	}
}

func (r *router) waiting() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// dispatch handles one inbound frame. For an invocation that carries an id
// it returns the completion to send back; a handler failure is also
// returned as err so the caller can log it.
func (r *router) dispatch(m Message) (reply *Message, err error) {
	switch m.Type {
	case TypeCompletion:
		r.mu.Lock()
		p, ok := r.pending[m.InvocationID]
		delete(r.pending, m.InvocationID)
		r.mu.Unlock()
		if !ok {
			return nil, nil
		}
		c := completion{result: m.Result}
		if m.Error != "" {
			c.err = &RemoteError{Method: p.method, Message: m.Error}
		}
		p.done <- c
		return nil, nil

	case TypeInvocation:
		r.mu.Lock()
		h, ok := r.handlers[m.Target]
		r.mu.Unlock()

		var result any
		if ok {
			result, err = h(m.Arguments)
		} else {
			err = fmt.Errorf("unknown method %q", m.Target)
		}
		if m.InvocationID == "" {
			return nil, err
		}
		c := NewCompletion(m.InvocationID, result, err)
		return &c, err
	}
	return nil, nil
}
