package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	LoggerID      string       `json:"logger_id"`
	PairingID     string       `json:"pairing_id"`
	Active        bool         `json:"active"`
	State         string       `json:"state"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Hub           HubStatus    `json:"hub"`
	LastReading   *ReadingJSON `json:"last_reading,omitempty"`
	LastError     string       `json:"last_error,omitempty"`
	Counts        CountsJSON   `json:"counts"`
	Config        ConfigJSON   `json:"config"`
}

// HubStatus reports the realtime connection state.
type HubStatus struct {
	Connected     bool   `json:"connected"`
	Authenticated bool   `json:"authenticated"`
	URL           string `json:"url"`
}

// ReadingJSON is the last delivered reading.
type ReadingJSON struct {
	Timestamp   string  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Moisture    float64 `json:"moisture"`
}

// CountsJSON is the JSON representation of counts.
type CountsJSON struct {
	Ticks      int `json:"ticks"`
	Reports    int `json:"reports"`
	Skipped    int `json:"skipped"`
	Failures   int `json:"failures"`
	Probes     int `json:"probes"`
	Reconnects int `json:"reconnects"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	ConfigPath string `json:"config_path"`
	SocketURL  string `json:"socket_url"`
	RestURL    string `json:"rest_url"`
	HTTPAddr   string `json:"http_addr"`
	IntervalMs int64  `json:"interval_ms"`
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	state := string(snap.State)
	if state == "" {
		state = "UNKNOWN"
	}

	inner := StatusInner{
		LoggerID:      snap.LoggerID,
		PairingID:     snap.PairingID,
		Active:        snap.Active,
		State:         state,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Hub: HubStatus{
			Connected:     snap.Connected,
			Authenticated: snap.Authenticated,
			URL:           snap.Config.SocketURL,
		},
		LastError: snap.LastError,
		Counts: CountsJSON{
			Ticks:      snap.Counts.Ticks,
			Reports:    snap.Counts.Reports,
			Skipped:    snap.Counts.Skipped,
			Failures:   snap.Counts.Failures,
			Probes:     snap.Counts.Probes,
			Reconnects: snap.Counts.Reconnects,
		},
		Config: ConfigJSON{
			ConfigPath: snap.Config.ConfigPath,
			SocketURL:  snap.Config.SocketURL,
			RestURL:    snap.Config.RestURL,
			HTTPAddr:   snap.Config.HTTPAddr,
			IntervalMs: snap.Config.IntervalMs,
		},
	}
	if r := snap.LastReading; r != nil {
		inner.LastReading = &ReadingJSON{
			Timestamp:   snap.LastReadingAt.UTC().Format(time.RFC3339),
			Temperature: r.Temperature,
			Humidity:    r.Humidity,
			Moisture:    r.Moisture,
		}
	}

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}
