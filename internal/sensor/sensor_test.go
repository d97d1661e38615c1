package sensor

import (
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// fakeBus is an i2c.Bus that answers reads with a scripted frame.
type fakeBus struct {
	frame  []byte
	writes [][]byte
	txErr  error
}

func (b *fakeBus) String() string                      { return "fake-i2c" }
func (b *fakeBus) SetSpeed(f physic.Frequency) error { return nil }
func (b *fakeBus) Halt() error                       { return nil }
func (b *fakeBus) Tx(addr uint16, w, r []byte) error {
	if addr != am2320Addr {
		return errors.New("wrong address")
	}
	if len(w) > 0 {
		b.writes = append(b.writes, append([]byte(nil), w...))
		if w[0] == 0x00 {
			return errors.New("nak") // wake-up write is always NAKed
		}
	}
	if b.txErr != nil {
		return b.txErr
	}
	copy(r, b.frame)
	return nil
}

// fakeSPI is an spi.Conn returning a fixed 10-bit value.
type fakeSPI struct {
	value int
	last  []byte
}

func (s *fakeSPI) String() string                  { return "fake-spi" }
func (s *fakeSPI) Duplex() conn.Duplex             { return conn.Full }
func (s *fakeSPI) TxPackets(p []spi.Packet) error { return errors.New("not supported") }
func (s *fakeSPI) Halt() error                     { return nil }
func (s *fakeSPI) Tx(w, r []byte) error {
	s.last = append([]byte(nil), w...)
	r[0] = 0
	r[1] = byte(s.value>>8) & 0x03
	r[2] = byte(s.value)
	return nil
}

func am2320Frame(hum, temp uint16, negative bool) []byte {
	tH := byte(temp >> 8)
	if negative {
		tH |= 0x80
	}
	f := []byte{0x03, 0x04, byte(hum >> 8), byte(hum), tH, byte(temp)}
	crc := crc16(f)
	return append(f, byte(crc), byte(crc>>8))
}

func TestCRC16Modbus(t *testing.T) {
	if got := crc16([]byte("123456789")); got != 0x4B37 {
		t.Errorf("crc16: got %#04x, want 0x4b37", got)
	}
}

func TestDecodeAM2320(t *testing.T) {
	env, err := decodeAM2320(am2320Frame(523, 215, false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Humidity != 52.3 {
		t.Errorf("Humidity: got %v, want 52.3", env.Humidity)
	}
	if env.Temperature != 21.5 {
		t.Errorf("Temperature: got %v, want 21.5", env.Temperature)
	}
}

func TestDecodeAM2320Negative(t *testing.T) {
	env, err := decodeAM2320(am2320Frame(800, 45, true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Temperature != -4.5 {
		t.Errorf("Temperature: got %v, want -4.5", env.Temperature)
	}
}

func TestDecodeAM2320BadCRC(t *testing.T) {
	f := am2320Frame(523, 215, false)
	f[6] ^= 0xFF
	if _, err := decodeAM2320(f); !errors.Is(err, ErrChecksum) {
		t.Errorf("expected ErrChecksum, got %v", err)
	}
}

func TestDecodeAM2320BadHeader(t *testing.T) {
	f := am2320Frame(523, 215, false)
	f[0] = 0x10
	if _, err := decodeAM2320(f); err == nil {
		t.Error("expected error for bad header")
	}
	if _, err := decodeAM2320(f[:5]); err == nil {
		t.Error("expected error for short frame")
	}
}

func TestAM2320Sense(t *testing.T) {
	bus := &fakeBus{frame: am2320Frame(400, 190, false)}
	a := NewAM2320(bus)
	a.sleep = func(time.Duration) {}

	env, err := a.Sense()
	if err != nil {
		t.Fatalf("Sense: %v", err)
	}
	if env.Temperature != 19 || env.Humidity != 40 {
		t.Errorf("got %+v, want {19 40}", env)
	}
	if len(bus.writes) != 2 {
		t.Fatalf("expected wake + request writes, got %d", len(bus.writes))
	}
	if w := bus.writes[1]; len(w) != 3 || w[0] != 0x03 || w[1] != 0x00 || w[2] != 0x04 {
		t.Errorf("unexpected request: % x", w)
	}
}

func TestAM2320SenseBusError(t *testing.T) {
	bus := &fakeBus{txErr: errors.New("bus down")}
	a := NewAM2320(bus)
	a.sleep = func(time.Duration) {}

	if _, err := a.Sense(); err == nil {
		t.Error("expected error")
	}
}

func TestMCP3008Voltage(t *testing.T) {
	tests := []struct {
		raw  int
		want float64
	}{
		{0, 0},
		{1023, 3.3},
		{512, 1.65},
		{890, 2.87},
	}
	for _, tt := range tests {
		spiConn := &fakeSPI{value: tt.raw}
		m := NewMCP3008(spiConn, DefaultVref)
		got, err := m.Voltage(0)
		if err != nil {
			t.Fatalf("raw %d: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Errorf("raw %d: got %v, want %v", tt.raw, got, tt.want)
		}
		if spiConn.last[0] != 0x01 || spiConn.last[1] != 0x80 {
			t.Errorf("raw %d: unexpected command % x", tt.raw, spiConn.last)
		}
	}
}

func TestMCP3008InvalidChannel(t *testing.T) {
	m := NewMCP3008(&fakeSPI{}, DefaultVref)
	if _, err := m.Read(8); err == nil {
		t.Error("expected error for channel 8")
	}
	if _, err := m.Read(-1); err == nil {
		t.Error("expected error for channel -1")
	}
}

func TestBoardCachesAirSample(t *testing.T) {
	bus := &fakeBus{frame: am2320Frame(400, 190, false)}
	air := NewAM2320(bus)
	air.sleep = func(time.Duration) {}

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := &Board{air: air, soil: NewMCP3008(&fakeSPI{value: 100}, DefaultVref), now: func() time.Time { return now }}

	if _, err := b.Temperature(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Humidity(); err != nil {
		t.Fatal(err)
	}
	if len(bus.writes) != 2 {
		t.Errorf("expected one sensor transaction inside the interval, got %d writes", len(bus.writes))
	}

	now = now.Add(minAirInterval)
	if _, err := b.Temperature(); err != nil {
		t.Fatal(err)
	}
	if len(bus.writes) != 4 {
		t.Errorf("expected a fresh transaction after the interval, got %d writes", len(bus.writes))
	}
}

func TestFakeReaderVoltages(t *testing.T) {
	f := NewFakeReader(20, 50, 1.5, 2.5)

	for i, want := range []float64{1.5, 2.5, 2.5} {
		got, err := f.Voltage()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if got != want {
			t.Errorf("read %d: got %v, want %v", i, got, want)
		}
	}
	if f.Reads() != 3 {
		t.Errorf("Reads: got %d, want 3", f.Reads())
	}
}

func TestFakeReaderError(t *testing.T) {
	f := NewFakeReader(20, 50, 1.5)
	f.ReadError = errors.New("i2c timeout")

	if _, err := f.Temperature(); err == nil {
		t.Error("expected temperature error")
	}
	if _, err := f.Humidity(); err == nil {
		t.Error("expected humidity error")
	}
	if _, err := f.Voltage(); err == nil {
		t.Error("expected voltage error")
	}
}
