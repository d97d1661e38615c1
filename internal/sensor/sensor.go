// Package sensor reads the air (AM2320) and soil (MCP3008 channel 0)
// sensors. The real implementation uses periph.io I²C and SPI buses.
// The fake implementation allows testing without hardware.
package sensor

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Reader queries the logger's sensors.
type Reader interface {
	// Temperature returns the air temperature in °C.
	Temperature() (float64, error)

	// Humidity returns the relative air humidity in percent.
	Humidity() (float64, error)

	// Voltage returns the soil probe voltage.
	Voltage() (float64, error)

	// Close releases the buses.
	Close() error
}

// Reference voltage of the MCP3008 on the logger board.
const DefaultVref = 3.3

// The AM2320 must not be polled more than once every two seconds; reads
// inside that window return the previous sample.
const minAirInterval = 2 * time.Second

// Board is the real sensor set. All bus access is serialized, so a
// calibration read never interleaves with a tick.
type Board struct {
	mu   sync.Mutex
	air  *AM2320
	soil *MCP3008
	bus  i2c.BusCloser
	port spi.PortCloser

	last   Env
	lastAt time.Time
	now    func() time.Time
}

// Open initializes periph and opens the named I²C bus and SPI port.
// Empty names select the first bus/port available.
func Open(i2cName, spiName string) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host: %w", err)
	}

	bus, err := i2creg.Open(i2cName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", i2cName, err)
	}

	port, err := spireg.Open(spiName)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("open spi port %q: %w", spiName, err)
	}

	conn, err := port.Connect(physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		bus.Close()
		return nil, fmt.Errorf("connect spi: %w", err)
	}

	return &Board{
		air:  NewAM2320(bus),
		soil: NewMCP3008(conn, DefaultVref),
		bus:  bus,
		port: port,
		now:  time.Now,
	}, nil
}

func (b *Board) sense() (Env, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if !b.lastAt.IsZero() && now.Sub(b.lastAt) < minAirInterval {
		return b.last, nil
	}
	env, err := b.air.Sense()
	if err != nil {
		return Env{}, err
	}
	b.last, b.lastAt = env, now
	return env, nil
}

// Temperature returns the air temperature in °C.
func (b *Board) Temperature() (float64, error) {
	env, err := b.sense()
	return env.Temperature, err
}

// Humidity returns the relative air humidity in percent.
func (b *Board) Humidity() (float64, error) {
	env, err := b.sense()
	return env.Humidity, err
}

// Voltage returns the soil probe voltage.
func (b *Board) Voltage() (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.soil.Voltage(0)
}

// Close releases the I²C bus and SPI port.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	if b.port != nil {
		if err := b.port.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close spi: %w", err))
		}
		b.port = nil
	}
	if b.bus != nil {
		if err := b.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close i2c: %w", err))
		}
		b.bus = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
