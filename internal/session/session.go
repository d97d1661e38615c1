// Package session runs the logger's lifecycle: probe the backend, open the
// hub connection, authenticate, tick reports, serve remote commands and
// recover from connection loss.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/plant-logger/internal/config"
	"github.com/sweeney/plant-logger/internal/gpio"
	"github.com/sweeney/plant-logger/internal/logic"
	"github.com/sweeney/plant-logger/internal/mqtt"
	"github.com/sweeney/plant-logger/internal/schedule"
	"github.com/sweeney/plant-logger/internal/sensor"
	"github.com/sweeney/plant-logger/internal/status"
)

// ErrDuplicateLogger means the hub refused the logger id because another
// session already holds it.
var ErrDuplicateLogger = errors.New("duplicate logger identity")

// ErrNotSetUp means the configuration carries no logger id yet.
var ErrNotSetUp = errors.New("logger is not set up")

// Hub methods the logger invokes.
const (
	MethodConnectLogger = "ConnectLogger"
	MethodSendConfig    = "SendConfig"
)

// Prober blocks until every endpoint is reachable.
type Prober interface {
	Probe(ctx context.Context, endpoints ...string) error
}

// Reporter delivers one reading to the REST backend.
type Reporter interface {
	Report(ctx context.Context, restURL string, r logic.Reading) error
}

// Deps are the collaborators a Session drives. The caller owns them and
// releases the hardware after Run returns.
type Deps struct {
	Config    *config.Store
	Sensors   sensor.Reader
	Indicator gpio.Indicator
	Prober    Prober
	Reporter  Reporter
	Conn      mqtt.Conn
	Status    *status.Tracker
	Log       logrus.FieldLogger
}

// Options tune timing.
type Options struct {
	// Interval between ticks. Default 60s.
	Interval time.Duration

	// AuthTimeout bounds the ConnectLogger call. Default 10s.
	AuthTimeout time.Duration
}

// Session is one logger session from construction to termination.
type Session struct {
	cfg      *config.Store
	sensors  sensor.Reader
	ind      gpio.Indicator
	prober   Prober
	reporter Reporter
	conn     mqtt.Conn
	status   *status.Tracker
	log      logrus.FieldLogger

	authTimeout time.Duration
	tick        *schedule.Task

	// socketURL is the hub endpoint the connection was built for.
	socketURL string

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state logic.State

	fatal      chan error
	fatalOnce  sync.Once
	recovering atomic.Bool
}

// New builds a session in the Initializing state.
func New(d Deps, o Options) *Session {
	if o.Interval <= 0 {
		o.Interval = 60 * time.Second
	}
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = 10 * time.Second
	}
	if d.Status == nil {
		d.Status = status.NewTracker(time.Now(), status.Config{}, nil)
	}

	s := &Session{
		cfg:         d.Config,
		sensors:     d.Sensors,
		ind:         d.Indicator,
		prober:      d.Prober,
		reporter:    d.Reporter,
		conn:        d.Conn,
		status:      d.Status,
		log:         d.Log,
		authTimeout: o.AuthTimeout,
		socketURL:   d.Config.SocketURL(),
		state:       logic.StateInitializing,
		fatal:       make(chan error, 1),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.tick = schedule.New(o.Interval, s.onTick)
	s.syncIdentity()
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() logic.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run probes the backend, connects and serves until ctx is cancelled or a
// fatal error occurs. It returns nil on cancellation and the fatal error
// otherwise. The session cannot be restarted.
func (s *Session) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()
	defer s.terminate()

	s.setState(logic.StateProbing)
	if err := s.probe(); err != nil {
		if s.closing() {
			return nil
		}
		return err
	}

	s.register()
	s.connect()

	select {
	case err := <-s.fatal:
		return err
	case <-s.ctx.Done():
	}
	select {
	case err := <-s.fatal:
		return err
	default:
		return nil
	}
}

// TickNow runs a tick immediately if ticking, then continues at the
// regular interval. Otherwise it logs a local reading.
func (s *Session) TickNow() {
	if s.tick.Active() {
		s.tick.Start(0)
		return
	}
	r, err := s.read()
	if err != nil {
		s.log.Warnf("Local reading failed: %v", err)
		return
	}
	s.log.WithFields(readingFields(r)).Info("Local reading")
}

func (s *Session) register() {
	for cmd, h := range s.handlers() {
		s.conn.Handle(cmd.Method(), s.command(cmd, h))
	}
	s.conn.OnOpen(s.onOpen)
	s.conn.OnClose(s.onClose)
	s.conn.OnReconnecting(s.onReconnecting)
	s.conn.OnError(s.onError)
}

func (s *Session) connect() {
	if s.closing() {
		return
	}
	s.setState(logic.StateConnecting)
	s.ind.BlinkGreen()
	if err := s.conn.Open(); err != nil {
		s.log.Errorf("Open hub connection: %v", err)
	}
}

func (s *Session) probe() error {
	return s.prober.Probe(s.ctx, s.socketURL, s.cfg.RestURL())
}

// onOpen authenticates. A falsy answer is fatal; a failed call leaves the
// session waiting for the next connection.
func (s *Session) onOpen() {
	if s.closing() {
		return
	}
	s.status.SetConnected(true)
	s.setState(logic.StateAuthenticating)

	ctx, cancel := context.WithTimeout(s.ctx, s.authTimeout)
	defer cancel()

	id := s.cfg.LoggerID()
	res, err := s.conn.Invoke(ctx, MethodConnectLogger, id)
	if err != nil {
		s.log.Warnf("Authentication call failed, waiting for reconnect: %v", err)
		s.ind.BlinkRed()
		return
	}
	if !truthy(res) {
		s.fail(fmt.Errorf("%w: %q", ErrDuplicateLogger, id))
		return
	}

	if err := s.conn.Send(MethodSendConfig, s.cfg.Snapshot()); err != nil {
		s.log.Warnf("Push config: %v", err)
	}
	s.setState(logic.StateActive)
	s.tick.Start(0)
}

func (s *Session) onReconnecting() {
	if s.closing() {
		return
	}
	s.tick.Stop()
	s.status.SetConnected(false)
	s.status.RecordReconnect()
	s.setState(logic.StateReconnecting)
	s.ind.BlinkRed()
}

// onClose halts ticking, then probes and reopens the connection in the
// background.
func (s *Session) onClose(err error) {
	if s.closing() {
		return
	}
	s.tick.Stop()
	s.status.SetConnected(false)
	s.setState(logic.StateReconnecting)
	s.log.Warnf("Hub connection closed: %v", err)

	if !s.recovering.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.recovering.Store(false)
		if err := s.probe(); err != nil {
			if !s.closing() {
				s.fail(err)
			}
			return
		}
		if s.State() == logic.StateReconnecting {
			s.connect()
		}
	}()
}

func (s *Session) onError(err error) {
	if s.closing() {
		return
	}
	s.log.Warnf("Hub connection error: %v", err)
	s.ind.BlinkRed()
}

func (s *Session) setState(next logic.State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()

	s.status.SetState(next)
	if prev != next {
		s.log.WithFields(logrus.Fields{"from": prev, "to": next}).Info("Session state changed")
	}
}

func (s *Session) fail(err error) {
	s.fatalOnce.Do(func() {
		s.log.Errorf("Fatal: %v", err)
		s.fatal <- err
	})
}

func (s *Session) closing() bool {
	return s.ctx.Err() != nil
}

func (s *Session) terminate() {
	s.cancel()
	s.tick.Stop()
	if err := s.conn.Close(); err != nil {
		s.log.Warnf("Close hub connection: %v", err)
	}
	s.status.SetConnected(false)
	s.setState(logic.StateTerminated)
}

func (s *Session) syncIdentity() {
	s.status.SetIdentity(s.cfg.LoggerID(), s.cfg.PairingID(), s.cfg.Active())
}

// truthy interprets a JSON result the way the hub means it: false, null,
// zero, and empty values are falsy.
func truthy(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}
