// Package gpio drives the two status LEDs and watches the push button.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "time"

// Indicator is the red/green status light. Lighting one colour turns the
// other off, so the light always shows a single state.
type Indicator interface {
	// SetRed shows solid red at brightness in [0, 1].
	SetRed(brightness float64)

	// SetGreen shows solid green at brightness in [0, 1].
	SetGreen(brightness float64)

	// BlinkRed blinks red.
	BlinkRed()

	// BlinkGreen blinks green.
	BlinkGreen()

	// Off turns both channels off.
	Off()

	// Close turns the light off and releases the lines.
	Close() error
}

// Button is a momentary push button. Presses are delivered to the callback
// it was created with.
type Button interface {
	Close() error
}

// Pin definitions (BCM numbering)
const (
	PinRed    = 21
	PinGreen  = 26
	PinButton = 19
)

// BlinkInterval is both the on and the off time of a blink.
const BlinkInterval = 500 * time.Millisecond

// Mode is what a single LED channel is doing.
type Mode int

const (
	ModeOff Mode = iota
	ModeSolid
	ModeBlink
)

func (m Mode) String() string {
	switch m {
	case ModeSolid:
		return "solid"
	case ModeBlink:
		return "blink"
	}
	return "off"
}

// Channel is the state of one LED.
type Channel struct {
	Mode       Mode
	Brightness float64
}

// State is the state of the whole indicator.
type State struct {
	Red   Channel
	Green Channel
}

// Common indicator states.
var (
	StateOff        = State{}
	StateSolidRed   = State{Red: Channel{ModeSolid, 1}}
	StateSolidGreen = State{Green: Channel{ModeSolid, 1}}
	StateBlinkRed   = State{Red: Channel{ModeBlink, 1}}
	StateBlinkGreen = State{Green: Channel{ModeBlink, 1}}
)

func solid(brightness float64) Channel {
	if brightness <= 0 {
		return Channel{}
	}
	if brightness > 1 {
		brightness = 1
	}
	return Channel{Mode: ModeSolid, Brightness: brightness}
}

func redState(brightness float64) State   { return State{Red: solid(brightness)} }
func greenState(brightness float64) State { return State{Green: solid(brightness)} }
