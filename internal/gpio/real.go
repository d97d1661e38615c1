//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

const chipName = "gpiochip0"

// Software PWM period for fractional brightness.
const pwmPeriod = 20 * time.Millisecond

// RealIndicator drives the LEDs through the Linux GPIO character device.
type RealIndicator struct {
	mu     sync.Mutex
	chip   *gpiocdev.Chip
	red    *led
	green  *led
	closed bool
}

// NewRealIndicator requests the red and green lines as outputs, initially off.
func NewRealIndicator(pinRed, pinGreen int) (*RealIndicator, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	red, err := newLED(chip, pinRed)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request red pin %d: %w", pinRed, err)
	}

	green, err := newLED(chip, pinGreen)
	if err != nil {
		red.close()
		chip.Close()
		return nil, fmt.Errorf("request green pin %d: %w", pinGreen, err)
	}

	return &RealIndicator{chip: chip, red: red, green: green}, nil
}

func (r *RealIndicator) apply(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.red.apply(s.Red)
	r.green.apply(s.Green)
}

// SetRed shows solid red.
func (r *RealIndicator) SetRed(brightness float64) { r.apply(redState(brightness)) }

// SetGreen shows solid green.
func (r *RealIndicator) SetGreen(brightness float64) { r.apply(greenState(brightness)) }

// BlinkRed blinks red.
func (r *RealIndicator) BlinkRed() { r.apply(StateBlinkRed) }

// BlinkGreen blinks green.
func (r *RealIndicator) BlinkGreen() { r.apply(StateBlinkGreen) }

// Off turns both LEDs off.
func (r *RealIndicator) Off() { r.apply(StateOff) }

// Close stops both drivers, leaves the lines low and releases them.
// Safe to call more than once.
func (r *RealIndicator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if err := r.red.close(); err != nil {
		errs = append(errs, fmt.Errorf("close red: %w", err))
	}
	if err := r.green.close(); err != nil {
		errs = append(errs, fmt.Errorf("close green: %w", err))
	}
	if err := r.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// led owns one output line and the goroutine that drives it.
type led struct {
	line *gpiocdev.Line
	set  chan Channel
	done chan struct{}
}

func newLED(chip *gpiocdev.Chip, offset int) (*led, error) {
	line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, err
	}
	l := &led{
		line: line,
		set:  make(chan Channel, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// apply replaces any channel state the driver has not picked up yet.
// Callers serialize apply and close.
func (l *led) apply(c Channel) {
	select {
	case l.set <- c:
	default:
		select {
		case <-l.set:
		default:
		}
		l.set <- c
	}
}

func (l *led) run() {
	defer close(l.done)

	var (
		ch   Channel
		lit  bool
		next <-chan time.Time
	)
	for {
		select {
		case c, ok := <-l.set:
			if !ok {
				l.write(false)
				return
			}
			ch, lit = c, false
			next = l.step(ch, &lit)
		case <-next:
			next = l.step(ch, &lit)
		}
	}
}

// step drives the line for ch and returns when it needs driving again.
func (l *led) step(ch Channel, lit *bool) <-chan time.Time {
	switch {
	case ch.Mode == ModeBlink:
		*lit = !*lit
		l.write(*lit)
		return time.After(BlinkInterval)

	case ch.Mode == ModeSolid && ch.Brightness >= 1:
		l.write(true)
		return nil

	case ch.Mode == ModeSolid && ch.Brightness > 0:
		*lit = !*lit
		l.write(*lit)
		duty := ch.Brightness
		if !*lit {
			duty = 1 - duty
		}
		return time.After(time.Duration(duty * float64(pwmPeriod)))
	}

	l.write(false)
	return nil
}

func (l *led) write(on bool) {
	v := 0
	if on {
		v = 1
	}
	_ = l.line.SetValue(v)
}

func (l *led) close() error {
	close(l.set)
	<-l.done
	return l.line.Close()
}

// RealButton delivers debounced presses of an active-low push button.
type RealButton struct {
	line *gpiocdev.Line
}

// NewRealButton watches pin for falling edges and calls onPress for each.
// onPress runs on the gpiocdev event goroutine and must not block.
func NewRealButton(pin int, onPress func()) (*RealButton, error) {
	line, err := gpiocdev.RequestLine(chipName, pin,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithDebounce(50*time.Millisecond),
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { onPress() }),
	)
	if err != nil {
		return nil, fmt.Errorf("request button pin %d: %w", pin, err)
	}
	return &RealButton{line: line}, nil
}

// Close releases the button line.
func (b *RealButton) Close() error {
	if b.line == nil {
		return nil
	}
	err := b.line.Close()
	b.line = nil
	return err
}
