//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealIndicator is not available on non-Linux platforms.
type RealIndicator struct{}

// NewRealIndicator returns an error on non-Linux platforms.
func NewRealIndicator(pinRed, pinGreen int) (*RealIndicator, error) {
	return nil, errUnsupported
}

func (r *RealIndicator) SetRed(float64)   {}
func (r *RealIndicator) SetGreen(float64) {}
func (r *RealIndicator) BlinkRed()        {}
func (r *RealIndicator) BlinkGreen()      {}
func (r *RealIndicator) Off()             {}
func (r *RealIndicator) Close() error     { return nil }

// RealButton is not available on non-Linux platforms.
type RealButton struct{}

// NewRealButton returns an error on non-Linux platforms.
func NewRealButton(pin int, onPress func()) (*RealButton, error) {
	return nil, errUnsupported
}

// Close is a no-op on non-Linux platforms.
func (b *RealButton) Close() error { return nil }
