// Package probe blocks until every backend endpoint answers.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/plant-logger/internal/endpoint"
	"github.com/sweeney/plant-logger/internal/gpio"
)

// DefaultTimeout bounds each reachability check.
const DefaultTimeout = 5 * time.Second

// Attempt results passed to OnAttempt.
const (
	ResultOK      = "ok"
	ResultTimeout = "timeout"
	ResultFatal   = "fatal"
)

// FatalError is a probe failure that retrying cannot fix, such as a
// malformed URL or a refused connection.
type FatalError struct {
	Endpoint string
	Err      error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Endpoint, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Dialer opens raw TCP connections for non-HTTP endpoints.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Prober checks endpoints until all of them are reachable.
type Prober struct {
	Client    *http.Client
	Dialer    Dialer
	Indicator gpio.Indicator
	Log       logrus.FieldLogger

	// Timeout bounds a single check of a single endpoint.
	Timeout time.Duration

	// NewBackOff returns the retry policy for one Probe call.
	NewBackOff func() backoff.BackOff

	// OnAttempt, if set, is called once per endpoint check.
	OnAttempt func(result string)
}

// New returns a Prober with the default timeout and retry policy.
func New(ind gpio.Indicator, log logrus.FieldLogger) *Prober {
	return &Prober{
		Client:     &http.Client{},
		Dialer:     &net.Dialer{},
		Indicator:  ind,
		Log:        log,
		Timeout:    DefaultTimeout,
		NewBackOff: DefaultBackOff,
	}
}

// DefaultBackOff grows from 500ms to 5s between attempts and never stops.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Probe blocks until a check against every endpoint succeeds in the same
// attempt. Timeouts are retried forever with the indicator blinking red;
// any other failure returns a *FatalError. On success the indicator blinks
// green. Probe returns ctx.Err() if ctx is cancelled first.
func (p *Prober) Probe(ctx context.Context, endpoints ...string) error {
	attempt := 0
	op := func() error {
		attempt++
		for _, raw := range endpoints {
			err := p.check(ctx, raw)
			switch {
			case err == nil:
				p.record(ResultOK)
			case ctx.Err() != nil:
				return backoff.Permanent(ctx.Err())
			case endpoint.IsTimeout(err):
				p.record(ResultTimeout)
				return fmt.Errorf("%s: %w", raw, err)
			default:
				p.record(ResultFatal)
				return backoff.Permanent(&FatalError{Endpoint: raw, Err: err})
			}
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		p.Indicator.BlinkRed()
		p.Log.WithFields(logrus.Fields{
			"attempt": attempt,
			"retry":   wait.Round(time.Millisecond),
		}).Warnf("Endpoint timed out: %v", err)
	}

	b := p.NewBackOff()
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return ctx.Err()
		}
		p.Log.Errorf("Probe failed: %v", err)
		return err
	}

	p.Indicator.BlinkGreen()
	p.Log.WithField("attempts", attempt).Info("All endpoints reachable")
	return nil
}

func (p *Prober) record(result string) {
	if p.OnAttempt != nil {
		p.OnAttempt(result)
	}
}

// check performs one bounded reachability check. Any HTTP response counts
// as reachable.
func (p *Prober) check(ctx context.Context, raw string) error {
	u, err := endpoint.Parse(raw)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	switch u.Scheme {
	case "http", "https", "ws", "wss":
		return p.get(ctx, httpURL(u))
	case "tcp", "mqtt", "ssl", "tls", "mqtts":
		return p.dial(ctx, u)
	}
	return fmt.Errorf("%w: unsupported scheme %q", endpoint.ErrMalformed, u.Scheme)
}

func (p *Prober) get(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", endpoint.ErrMalformed, err)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (p *Prober) dial(ctx context.Context, u *url.URL) error {
	conn, err := p.Dialer.DialContext(ctx, "tcp", hostPort(u))
	if err != nil {
		return err
	}
	return conn.Close()
}

func httpURL(u *url.URL) string {
	c := *u
	switch c.Scheme {
	case "ws":
		c.Scheme = "http"
	case "wss":
		c.Scheme = "https"
	}
	return c.String()
}

func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	port := "1883"
	switch u.Scheme {
	case "ssl", "tls", "mqtts":
		port = "8883"
	}
	return net.JoinHostPort(u.Hostname(), port)
}
