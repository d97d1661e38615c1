package sensor

import (
	"fmt"
	"math"

	"periph.io/x/conn/v3/spi"
)

// MCP3008 is the 10-bit ADC the soil probe is wired to.
type MCP3008 struct {
	conn spi.Conn
	vref float64
}

// NewMCP3008 returns an ADC on conn with the given reference voltage.
func NewMCP3008(conn spi.Conn, vref float64) *MCP3008 {
	return &MCP3008{conn: conn, vref: vref}
}

// Read returns the raw single-ended value of channel (0-7).
func (m *MCP3008) Read(channel int) (int, error) {
	if channel < 0 || channel > 7 {
		return 0, fmt.Errorf("mcp3008: invalid channel %d", channel)
	}
	w := []byte{0x01, byte(0x08|channel) << 4, 0x00}
	r := make([]byte, 3)
	if err := m.conn.Tx(w, r); err != nil {
		return 0, fmt.Errorf("mcp3008 read: %w", err)
	}
	return int(r[1]&0x03)<<8 | int(r[2]), nil
}

// Voltage returns channel's voltage rounded to two decimals.
func (m *MCP3008) Voltage(channel int) (float64, error) {
	raw, err := m.Read(channel)
	if err != nil {
		return 0, err
	}
	v := float64(raw) * m.vref / 1023
	return math.Round(v*100) / 100, nil
}
