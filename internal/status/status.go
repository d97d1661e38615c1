// Package status provides a thread-safe status tracker for the plant logger.
// It is read by the HTTP handlers and mirrored into Prometheus metrics.
package status

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/plant-logger/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	ConfigPath string
	SocketURL  string
	RestURL    string
	HTTPAddr   string
	IntervalMs int64
}

// Counts are running totals since start.
type Counts struct {
	Ticks      int
	Reports    int
	Skipped    int
	Failures   int
	Probes     int
	Reconnects int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	LoggerID      string
	PairingID     string
	Active        bool
	State         logic.State
	Connected     bool
	Authenticated bool
	LastReading   *logic.Reading
	LastReadingAt time.Time
	LastError     string
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu      sync.RWMutex
	snap    Snapshot
	metrics *Metrics
}

// NewTracker creates a Tracker. Metrics are registered on reg; a nil reg
// disables them.
func NewTracker(startTime time.Time, cfg Config, reg prometheus.Registerer) *Tracker {
	t := &Tracker{
		snap: Snapshot{
			State:     logic.StateInitializing,
			StartTime: startTime,
			Config:    cfg,
		},
	}
	if reg != nil {
		t.metrics = NewMetrics(reg)
		t.metrics.setState(logic.StateInitializing)
	}
	return t
}

// SetIdentity records the logger and pairing ids and the Active flag.
func (t *Tracker) SetIdentity(loggerID, pairingID string, active bool) {
	t.mu.Lock()
	t.snap.LoggerID = loggerID
	t.snap.PairingID = pairingID
	t.snap.Active = active
	t.mu.Unlock()
}

// SetState records a session state transition.
func (t *Tracker) SetState(s logic.State) {
	t.mu.Lock()
	t.snap.State = s
	t.snap.Authenticated = s == logic.StateActive
	t.mu.Unlock()
	if t.metrics != nil {
		t.metrics.setState(s)
	}
}

// SetConnected sets the hub connection status.
func (t *Tracker) SetConnected(connected bool) {
	t.mu.Lock()
	t.snap.Connected = connected
	t.mu.Unlock()
}

// RecordTick counts one tick.
func (t *Tracker) RecordTick() {
	t.mu.Lock()
	t.snap.Counts.Ticks++
	t.mu.Unlock()
	if t.metrics != nil {
		t.metrics.Ticks.Inc()
	}
}

// RecordReport stores a reading that was delivered to the backend.
func (t *Tracker) RecordReport(r logic.Reading, at time.Time) {
	t.mu.Lock()
	t.snap.LastReading = &r
	t.snap.LastReadingAt = at
	t.snap.Counts.Reports++
	t.mu.Unlock()
	if t.metrics != nil {
		t.metrics.Reports.WithLabelValues(ResultOK).Inc()
		t.metrics.observe(r)
	}
}

// RecordSkip counts a tick that produced no report.
func (t *Tracker) RecordSkip() {
	t.mu.Lock()
	t.snap.Counts.Skipped++
	t.mu.Unlock()
	if t.metrics != nil {
		t.metrics.Reports.WithLabelValues(ResultSkipped).Inc()
	}
}

// RecordFailure counts a failed report. result is ResultTimeout or ResultError.
func (t *Tracker) RecordFailure(result string, err error) {
	t.mu.Lock()
	t.snap.Counts.Failures++
	if err != nil {
		t.snap.LastError = err.Error()
	}
	t.mu.Unlock()
	if t.metrics != nil {
		t.metrics.Reports.WithLabelValues(result).Inc()
	}
}

// RecordProbe counts one endpoint check.
func (t *Tracker) RecordProbe(result string) {
	t.mu.Lock()
	t.snap.Counts.Probes++
	t.mu.Unlock()
	if t.metrics != nil {
		t.metrics.ProbeAttempts.WithLabelValues(result).Inc()
	}
}

// RecordReconnect counts one reconnect attempt.
func (t *Tracker) RecordReconnect() {
	t.mu.Lock()
	t.snap.Counts.Reconnects++
	t.mu.Unlock()
	if t.metrics != nil {
		t.metrics.Reconnects.Inc()
	}
}

// Metrics returns the tracker's collectors, or nil if disabled.
func (t *Tracker) Metrics() *Metrics {
	return t.metrics
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.LastReading != nil {
		r := *s.LastReading
		s.LastReading = &r
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
