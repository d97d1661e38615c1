package sensor

import "sync"

// FakeReader is a test double that returns scripted readings.
// Safe for concurrent use: the session reads from timer and handler goroutines.
type FakeReader struct {
	mu sync.Mutex

	// Temp and Humid are returned on every call.
	Temp  float64
	Humid float64

	// Voltages are consumed one per Voltage call; the last one repeats.
	Voltages []float64
	index    int

	// ReadError, if set, is returned by every read.
	ReadError error

	// VoltageReads counts Voltage calls.
	VoltageReads int

	Closed bool
}

// NewFakeReader creates a FakeReader with fixed air values and scripted voltages.
func NewFakeReader(temp, humid float64, voltages ...float64) *FakeReader {
	return &FakeReader{Temp: temp, Humid: humid, Voltages: voltages}
}

// Temperature returns Temp.
func (f *FakeReader) Temperature() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	return f.Temp, nil
}

// Humidity returns Humid.
func (f *FakeReader) Humidity() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	return f.Humid, nil
}

// Voltage returns the next scripted voltage.
func (f *FakeReader) Voltage() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.VoltageReads++
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Voltages) == 0 {
		return 0, nil
	}
	v := f.Voltages[f.index]
	if f.index < len(f.Voltages)-1 {
		f.index++
	}
	return v, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reads returns the number of Voltage calls so far.
func (f *FakeReader) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.VoltageReads
}
