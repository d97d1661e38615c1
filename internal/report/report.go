// Package report posts readings to the REST backend.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/sweeney/plant-logger/internal/endpoint"
	"github.com/sweeney/plant-logger/internal/logic"
)

// DefaultTimeout bounds one report request.
const DefaultTimeout = 5 * time.Second

// ErrServerStatus is returned when the backend answers with a 5xx status.
var ErrServerStatus = errors.New("server error")

// maxBody caps how much of a response body is logged.
const maxBody = 4 << 10

// Client sends readings to {restURL}/logs.
type Client struct {
	HTTP    *http.Client
	Timeout time.Duration
	Log     logrus.FieldLogger

	breaker *gobreaker.CircuitBreaker
}

// BreakerSettings returns the circuit breaker policy: it opens after five
// consecutive failures and stays open for 30s. Timeouts and malformed URLs
// do not count, since the caller already reacts to those.
func BreakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || endpoint.IsTimeout(err) || errors.Is(err, endpoint.ErrMalformed)
		},
	}
}

// New returns a Client using the default timeout and breaker.
func New(log logrus.FieldLogger) *Client {
	return NewWithBreaker(log, BreakerSettings("rest-logs"))
}

// NewWithBreaker returns a Client using the given breaker settings.
func NewWithBreaker(log logrus.FieldLogger, st gobreaker.Settings) *Client {
	if st.OnStateChange == nil {
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			log.WithField("breaker", name).Warnf("Circuit breaker %s -> %s", from, to)
		}
	}
	return &Client{
		HTTP:    &http.Client{},
		Timeout: DefaultTimeout,
		Log:     log,
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

// Report posts r as JSON. A timed out request returns an error for which
// endpoint.IsTimeout is true.
func (c *Client) Report(ctx context.Context, restURL string, r logic.Reading) error {
	u, err := endpoint.Parse(restURL)
	if err != nil {
		return err
	}
	target := strings.TrimRight(u.String(), "/") + "/logs"

	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.post(ctx, target, body)
	})
	return err
}

// State returns the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

func (c *Client) post(ctx context.Context, target string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", endpoint.ErrMalformed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", target, err)
	}
	defer resp.Body.Close()

	text, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	c.Log.WithField("status", resp.StatusCode).Infof("Report response: %s", strings.TrimSpace(string(text)))

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %s", ErrServerStatus, resp.Status)
	}
	return nil
}
