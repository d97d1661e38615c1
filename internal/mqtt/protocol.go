package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies a hub message.
type MessageType int

const (
	TypeInvocation MessageType = 1
	TypeCompletion MessageType = 3
)

// Message is one hub protocol frame.
//
// An invocation names a Target method and carries Arguments; without an
// InvocationID no completion is expected. A completion echoes the
// InvocationID and carries either Result or Error.
type Message struct {
	Type         MessageType       `json:"type"`
	InvocationID string            `json:"invocationId,omitempty"`
	Target       string            `json:"target,omitempty"`
	Arguments    []json.RawMessage `json:"arguments,omitempty"`
	Sender       string            `json:"sender,omitempty"`
	Result       json.RawMessage   `json:"result,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// RemoteError is an error reported by the other side in a completion.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %s", e.Method, e.Message)
}

// NewInvocation builds an invocation of target, encoding each argument.
func NewInvocation(id, sender, target string, args ...any) (Message, error) {
	m := Message{
		Type:         TypeInvocation,
		InvocationID: id,
		Target:       target,
		Sender:       sender,
		Arguments:    make([]json.RawMessage, 0, len(args)),
	}
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return Message{}, fmt.Errorf("encode argument %d of %s: %w", i, target, err)
		}
		m.Arguments = append(m.Arguments, b)
	}
	return m, nil
}

// NewCompletion builds the reply to invocation id.
func NewCompletion(id string, result any, err error) Message {
	m := Message{Type: TypeCompletion, InvocationID: id}
	if err != nil {
		m.Error = err.Error()
		return m
	}
	b, merr := json.Marshal(result)
	if merr != nil {
		m.Error = fmt.Sprintf("encode result: %v", merr)
		return m
	}
	m.Result = b
	return m
}

// Decode parses a frame and checks it is well formed.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	switch m.Type {
	case TypeInvocation:
		if m.Target == "" {
			return Message{}, errors.New("decode message: invocation without target")
		}
	case TypeCompletion:
		if m.InvocationID == "" {
			return Message{}, errors.New("decode message: completion without invocationId")
		}
	default:
		return Message{}, fmt.Errorf("decode message: unsupported type %d", m.Type)
	}
	return m, nil
}

// Arg decodes argument i into v.
func Arg(args []json.RawMessage, i int, v any) error {
	if i >= len(args) {
		return fmt.Errorf("missing argument %d", i)
	}
	if err := json.Unmarshal(args[i], v); err != nil {
		return fmt.Errorf("argument %d: %w", i, err)
	}
	return nil
}
