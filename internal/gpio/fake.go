package gpio

import "sync"

// FakeIndicator records every state the light was put in.
// Safe for concurrent use.
type FakeIndicator struct {
	mu      sync.Mutex
	state   State
	history []State
	closed  bool
}

// NewFakeIndicator creates a FakeIndicator that starts off.
func NewFakeIndicator() *FakeIndicator {
	return &FakeIndicator{}
}

func (f *FakeIndicator) apply(s State) {
	f.mu.Lock()
	f.state = s
	f.history = append(f.history, s)
	f.mu.Unlock()
}

func (f *FakeIndicator) SetRed(brightness float64)   { f.apply(redState(brightness)) }
func (f *FakeIndicator) SetGreen(brightness float64) { f.apply(greenState(brightness)) }
func (f *FakeIndicator) BlinkRed()                   { f.apply(StateBlinkRed) }
func (f *FakeIndicator) BlinkGreen()                 { f.apply(StateBlinkGreen) }
func (f *FakeIndicator) Off()                        { f.apply(StateOff) }

// Close marks the indicator as closed.
func (f *FakeIndicator) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// State returns the current state.
func (f *FakeIndicator) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// History returns a copy of every state applied so far.
func (f *FakeIndicator) History() []State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]State(nil), f.history...)
}

// Saw reports whether s was ever applied.
func (f *FakeIndicator) Saw(s State) bool {
	for _, h := range f.History() {
		if h == s {
			return true
		}
	}
	return false
}

// Closed reports whether Close was called.
func (f *FakeIndicator) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FakeButton lets tests press the button.
type FakeButton struct {
	onPress func()
	Closed  bool
}

// NewFakeButton creates a FakeButton that calls onPress on Press.
func NewFakeButton(onPress func()) *FakeButton {
	return &FakeButton{onPress: onPress}
}

// Press simulates one press.
func (b *FakeButton) Press() {
	if !b.Closed && b.onPress != nil {
		b.onPress()
	}
}

// Close marks the button as closed; later presses are ignored.
func (b *FakeButton) Close() error {
	b.Closed = true
	return nil
}
