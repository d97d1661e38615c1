package sensor

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
)

const am2320Addr = 0x5C

const (
	am2320ReadRegisters byte = 0x03
	am2320RegHumidity   byte = 0x00
	am2320RegCount      byte = 0x04
)

// ErrChecksum is returned when a sensor frame fails its CRC.
var ErrChecksum = errors.New("sensor checksum mismatch")

// Env is one air sample.
type Env struct {
	Temperature float64 // °C
	Humidity    float64 // %RH
}

// AM2320 is the air temperature/humidity sensor.
type AM2320 struct {
	dev   i2c.Dev
	sleep func(time.Duration)
}

// NewAM2320 returns a sensor on the given bus at its fixed address.
func NewAM2320(bus i2c.Bus) *AM2320 {
	return &AM2320{
		dev:   i2c.Dev{Bus: bus, Addr: am2320Addr},
		sleep: time.Sleep,
	}
}

// Sense wakes the sensor and reads humidity and temperature.
func (a *AM2320) Sense() (Env, error) {
	// The sensor sleeps between reads and NAKs the wake-up write.
	_, _ = a.dev.Write([]byte{0x00})
	a.sleep(10 * time.Millisecond)

	if err := a.dev.Tx([]byte{am2320ReadRegisters, am2320RegHumidity, am2320RegCount}, nil); err != nil {
		return Env{}, fmt.Errorf("am2320 request: %w", err)
	}
	a.sleep(2 * time.Millisecond)

	frame := make([]byte, 8)
	if err := a.dev.Tx(nil, frame); err != nil {
		return Env{}, fmt.Errorf("am2320 read: %w", err)
	}
	return decodeAM2320(frame)
}

// decodeAM2320 parses [func, count, hH, hL, tH, tL, crcL, crcH].
func decodeAM2320(frame []byte) (Env, error) {
	if len(frame) != 8 {
		return Env{}, fmt.Errorf("am2320: short frame (%d bytes)", len(frame))
	}
	if frame[0] != am2320ReadRegisters || frame[1] != am2320RegCount {
		return Env{}, fmt.Errorf("am2320: unexpected header % x", frame[:2])
	}
	if crc16(frame[:6]) != uint16(frame[7])<<8|uint16(frame[6]) {
		return Env{}, ErrChecksum
	}

	humidity := float64(uint16(frame[2])<<8|uint16(frame[3])) / 10
	temp := float64(uint16(frame[4]&0x7F)<<8|uint16(frame[5])) / 10
	if frame[4]&0x80 != 0 {
		temp = -temp
	}
	return Env{Temperature: temp, Humidity: humidity}, nil
}

// crc16 is CRC-16/MODBUS as used by the AM2320.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
