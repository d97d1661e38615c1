package status

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/plant-logger/internal/logic"
)

// Report and probe result labels.
const (
	ResultOK      = "ok"
	ResultSkipped = "skipped"
	ResultTimeout = "timeout"
	ResultError   = "error"
)

// Metrics are the Prometheus collectors for the logger.
type Metrics struct {
	Ticks         prometheus.Counter
	Reports       *prometheus.CounterVec
	ProbeAttempts *prometheus.CounterVec
	Reconnects    prometheus.Counter
	State         *prometheus.GaugeVec
	Moisture      prometheus.Gauge
	Temperature   prometheus.Gauge
	Humidity      prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plant_logger_ticks_total",
			Help: "Tick evaluations run.",
		}),
		Reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plant_logger_reports_total",
			Help: "Report cycles by result.",
		}, []string{"result"}),
		ProbeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plant_logger_probe_attempts_total",
			Help: "Endpoint reachability checks by result.",
		}, []string{"result"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plant_logger_reconnects_total",
			Help: "Hub reconnect attempts.",
		}),
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "plant_logger_session_state",
			Help: "1 for the current session state, 0 otherwise.",
		}, []string{"state"}),
		Moisture: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plant_logger_moisture_percent",
			Help: "Last reported soil moisture.",
		}),
		Temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plant_logger_temperature_celsius",
			Help: "Last reported air temperature.",
		}),
		Humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plant_logger_humidity_percent",
			Help: "Last reported relative humidity.",
		}),
	}
	reg.MustRegister(m.Ticks, m.Reports, m.ProbeAttempts, m.Reconnects,
		m.State, m.Moisture, m.Temperature, m.Humidity)
	return m
}

func (m *Metrics) setState(current logic.State) {
	for _, s := range logic.States() {
		v := 0.0
		if s == current {
			v = 1
		}
		m.State.WithLabelValues(string(s)).Set(v)
	}
}

func (m *Metrics) observe(r logic.Reading) {
	m.Moisture.Set(r.Moisture)
	m.Temperature.Set(r.Temperature)
	m.Humidity.Set(r.Humidity)
}
