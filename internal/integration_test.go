package internal

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/sweeney/plant-logger/internal/config"
	"github.com/sweeney/plant-logger/internal/gpio"
	"github.com/sweeney/plant-logger/internal/logic"
	"github.com/sweeney/plant-logger/internal/mqtt"
	"github.com/sweeney/plant-logger/internal/probe"
	"github.com/sweeney/plant-logger/internal/report"
	"github.com/sweeney/plant-logger/internal/sensor"
	"github.com/sweeney/plant-logger/internal/session"
	"github.com/sweeney/plant-logger/internal/status"
	"github.com/sweeney/plant-logger/internal/web"
)

// backend is a fake REST service. Every GET answers 200; POST /logs is
// answered by post, which defaults to 201.
type backend struct {
	*httptest.Server

	mu     sync.Mutex
	bodies []logic.Reading
	posts  atomic.Int32
	gets   atomic.Int32
	post   func(n int32, w http.ResponseWriter, r *http.Request)
}

func newBackend(t *testing.T) *backend {
	b := &backend{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			b.gets.Add(1)
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.URL.Path != "/logs" {
			http.NotFound(w, r)
			return
		}
		var rd logic.Reading
		json.NewDecoder(r.Body).Decode(&rd)
		io.Copy(io.Discard, r.Body)
		n := b.posts.Add(1)

		b.mu.Lock()
		b.bodies = append(b.bodies, rd)
		post := b.post
		b.mu.Unlock()

		if post != nil {
			post(n, w, r)
			return
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":1}`)
	}))
	t.Cleanup(b.Close)
	return b
}

func (b *backend) readings() []logic.Reading {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]logic.Reading(nil), b.bodies...)
}

type rig struct {
	cfg     *config.Store
	ind     *gpio.FakeIndicator
	conn    *mqtt.FakeConn
	tracker *status.Tracker
	reg     *prometheus.Registry
	client  *report.Client
	sess    *session.Session
	hook    *test.Hook
}

func newRig(t *testing.T, be *backend) *rig {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "config.ini"))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Set(config.SectionLogging, config.KeyLoggerID, "logger-7"); err != nil {
		t.Fatal(err)
	}
	cfg.Merge(config.Snapshot{
		config.SectionLogging: {
			config.KeyPairingID: "fern",
			config.KeyActive:    true,
			config.KeySocketURL: "tcp://" + be.Listener.Addr().String(),
			config.KeyRestURL:   be.URL + "/",
		},
	})
	if err := cfg.Save(); err != nil {
		t.Fatal(err)
	}

	logger, hook := test.NewNullLogger()
	reg := prometheus.NewRegistry()
	tracker := status.NewTracker(time.Now(), status.Config{
		ConfigPath: cfg.Path(),
		SocketURL:  cfg.SocketURL(),
		RestURL:    cfg.RestURL(),
	}, reg)

	ind := gpio.NewFakeIndicator()
	p := probe.New(ind, logger.WithField("component", "probe"))
	p.Timeout = 200 * time.Millisecond
	p.NewBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(5 * time.Millisecond) }
	p.OnAttempt = tracker.RecordProbe

	client := report.New(logger.WithField("component", "report"))
	client.Timeout = 100 * time.Millisecond

	conn := mqtt.NewFakeConn()
	conn.InvokeFunc = func(method string, args []json.RawMessage) (any, error) {
		var id string
		mqtt.Arg(args, 0, &id)
		return id == "logger-7", nil
	}

	r := &rig{
		cfg:     cfg,
		ind:     ind,
		conn:    conn,
		tracker: tracker,
		reg:     reg,
		client:  client,
		hook:    hook,
	}
	r.sess = session.New(session.Deps{
		Config:    cfg,
		Sensors:   sensor.NewFakeReader(19.5, 55, 1.62),
		Indicator: ind,
		Prober:    p,
		Reporter:  client,
		Conn:      conn,
		Status:    tracker,
		Log:       logger.WithField("component", "session"),
	}, session.Options{Interval: time.Hour})
	return r
}

func (r *rig) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.sess.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run did not return")
		}
	})

	waitFor(t, func() bool { return r.conn.Opened() == 1 })
	r.conn.Connect()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestIntegrationReportFlow runs a session against a live HTTP backend and
// reads the outcome back through the status server.
func TestIntegrationReportFlow(t *testing.T) {
	be := newBackend(t)
	r := newRig(t, be)
	r.run(t)

	waitFor(t, func() bool { return len(be.readings()) == 1 })

	got := be.readings()[0]
	want := logic.Reading{Pairing: "fern", Temperature: 19.5, Humidity: 55, Moisture: 80}
	if got != want {
		t.Errorf("posted reading: got %+v, want %+v", got, want)
	}
	if be.gets.Load() != 1 {
		t.Errorf("probe GETs: got %d, want 1", be.gets.Load())
	}
	waitFor(t, func() bool { return r.tracker.Snapshot().Counts.Reports == 1 })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := web.New("", r.tracker, r.reg)
	go srv.Serve(ln)
	defer srv.Shutdown(context.Background())
	base := "http://" + ln.Addr().String()

	resp, err := http.Get(base + "/index.json")
	if err != nil {
		t.Fatal(err)
	}
	var sj status.StatusJSON
	err = json.NewDecoder(resp.Body).Decode(&sj)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if sj.Status.LoggerID != "logger-7" || sj.Status.PairingID != "fern" {
		t.Errorf("identity: got %q/%q", sj.Status.LoggerID, sj.Status.PairingID)
	}
	if sj.Status.State != string(logic.StateActive) || !sj.Status.Hub.Authenticated {
		t.Errorf("state: got %s authenticated=%v", sj.Status.State, sj.Status.Hub.Authenticated)
	}
	if sj.Status.LastReading == nil || sj.Status.LastReading.Moisture != 80 {
		t.Errorf("last reading: got %+v", sj.Status.LastReading)
	}
	if sj.Status.Counts.Reports != 1 || sj.Status.Counts.Probes != 2 {
		t.Errorf("counts: got %+v", sj.Status.Counts)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, name := range []string{
		"plant_logger_reports_total",
		"plant_logger_probe_attempts_total",
		"plant_logger_moisture_percent 80",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics missing %q", name)
		}
	}
}

// TestIntegrationTimeoutRecovery stalls the first POST past the client
// timeout. The session must re-probe and report again without waiting an
// interval.
func TestIntegrationTimeoutRecovery(t *testing.T) {
	be := newBackend(t)
	be.post = func(n int32, w http.ResponseWriter, r *http.Request) {
		if n == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
	r := newRig(t, be)
	r.run(t)

	waitFor(t, func() bool { return r.tracker.Snapshot().Counts.Reports == 1 })

	if be.posts.Load() != 2 {
		t.Errorf("posts: got %d, want 2", be.posts.Load())
	}
	if be.gets.Load() != 2 {
		t.Errorf("probe GETs: got %d, want 2", be.gets.Load())
	}
	snap := r.tracker.Snapshot()
	if snap.Counts.Failures != 1 || snap.State != logic.StateActive {
		t.Errorf("after recovery: failures=%d state=%s", snap.Counts.Failures, snap.State)
	}
}

// TestIntegrationServerErrorsKeepTicking checks that 5xx responses are
// counted without leaving the active state.
func TestIntegrationServerErrorsKeepTicking(t *testing.T) {
	be := newBackend(t)
	be.post = func(n int32, w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}
	r := newRig(t, be)
	r.run(t)

	waitFor(t, func() bool { return r.tracker.Snapshot().Counts.Failures == 1 })
	r.sess.TickNow()
	waitFor(t, func() bool { return r.tracker.Snapshot().Counts.Failures == 2 })

	if r.sess.State() != logic.StateActive {
		t.Errorf("state: got %s, want ACTIVE", r.sess.State())
	}
	if r.tracker.Snapshot().Counts.Reports != 0 {
		t.Error("failed posts must not count as reports")
	}
	if be.gets.Load() != 1 {
		t.Errorf("server errors must not trigger probing, got %d GETs", be.gets.Load())
	}
}

// TestIntegrationRemoteConfig drives the command handlers through the
// connection and checks the next report reflects them.
func TestIntegrationRemoteConfig(t *testing.T) {
	be := newBackend(t)
	r := newRig(t, be)
	r.run(t)
	waitFor(t, func() bool { return len(be.readings()) == 1 })

	if _, err := r.conn.Call("SetPairingId", "cactus"); err != nil {
		t.Fatalf("SetPairingId: %v", err)
	}
	if _, err := r.conn.Call("SetConfig", map[string]any{
		"Soil": map[string]any{"Moist": 1.0, "Dry": 3.0},
	}); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}

	r.sess.TickNow()
	waitFor(t, func() bool { return len(be.readings()) == 2 })

	got := be.readings()[1]
	if got.Pairing != "cactus" || got.Moisture != 69 {
		t.Errorf("reading after reconfigure: got %+v", got)
	}

	for _, e := range r.hook.AllEntries() {
		if e.Level <= logrus.ErrorLevel {
			t.Errorf("unexpected error log: %s", e.Message)
		}
	}
}
