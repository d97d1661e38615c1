package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Options configures a RealConn.
type Options struct {
	// Broker is the MQTT broker URL, e.g. tcp://host:1883 or ws://host/hubs/logger.
	Broker   string
	LoggerID string
	Log      logrus.FieldLogger

	// RetryInterval is the pause between reconnect attempts. Default 5s.
	RetryInterval time.Duration

	// KeepAlive is the ping interval. Default 10s.
	KeepAlive time.Duration

	// OutboxSize bounds sends queued while offline. Default 32.
	OutboxSize int
}

// publishTimeout bounds how long a single publish may block.
const publishTimeout = 5 * time.Second

// RealConn speaks the hub protocol through an MQTT broker.
type RealConn struct {
	hooks

	client   paho.Client
	clientID string
	log      logrus.FieldLogger
	router   *router

	mu         sync.Mutex
	up         bool
	connecting bool
	outbox     *outbox
}

// NewRealConn configures a connection. Nothing is sent until Open.
func NewRealConn(o Options) (*RealConn, error) {
	if o.RetryInterval == 0 {
		o.RetryInterval = 5 * time.Second
	}
	if o.KeepAlive == 0 {
		o.KeepAlive = 10 * time.Second
	}
	if o.OutboxSize == 0 {
		o.OutboxSize = 32
	}

	c := &RealConn{
		clientID: fmt.Sprintf("logger-%s-%s", o.LoggerID, uuid.NewString()[:8]),
		log:      o.Log,
		router:   newRouter(),
		outbox:   newOutbox(o.OutboxSize),
	}

	will, err := NewInvocation("", c.clientID, "LoggerDisconnected", o.LoggerID)
	if err != nil {
		return nil, err
	}
	willPayload, err := json.Marshal(will)
	if err != nil {
		return nil, fmt.Errorf("encode will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(c.clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(o.RetryInterval).
		SetMaxReconnectInterval(o.RetryInterval).
		SetKeepAlive(o.KeepAlive).
		SetOrderMatters(false).
		SetWill(TopicServer, string(willPayload), 1, false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
			c.log.Warn("Reconnecting to hub")
			c.fireReconnecting()
		})

	c.client = paho.NewClient(opts)
	return c, nil
}

// ClientID returns the MQTT client id, which is also the sender name used
// in invocations.
func (c *RealConn) ClientID() string {
	return c.clientID
}

// Open starts connecting in the background. Paho keeps retrying until it
// succeeds or Close is called.
func (c *RealConn) Open() error {
	c.mu.Lock()
	if c.connecting || c.client.IsConnected() {
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	c.mu.Unlock()

	go func() {
		token := c.client.Connect()
		token.Wait()

		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()

		if err := token.Error(); err != nil {
			c.log.Errorf("Hub connect failed: %v", err)
			c.fireError(err)
		}
	}()
	return nil
}

// Close disconnects, waiting up to one second for in-flight work.
func (c *RealConn) Close() error {
	c.mu.Lock()
	c.up = false
	c.mu.Unlock()
	c.router.failAll(ErrConnectionLost)
	c.client.Disconnect(1000)
	return nil
}

// IsConnected reports whether the link is up and subscribed.
func (c *RealConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up
}

// Handle routes server calls to method to h.
func (c *RealConn) Handle(method string, h HandlerFunc) {
	c.router.handle(method, h)
}

// Invoke calls method on the server and waits for the result or ctx.
func (c *RealConn) Invoke(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	id := uuid.NewString()
	m, err := NewInvocation(id, c.clientID, method, args...)
	if err != nil {
		return nil, err
	}

	done := c.router.expect(id, method)
	defer c.router.forget(id)

	if err := c.publish(m); err != nil {
		return nil, err
	}

	select {
	case r := <-done:
		return r.result, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("invoke %s: %w", method, ctx.Err())
	}
}

// Send publishes a fire-and-forget invocation, queueing it while offline.
func (c *RealConn) Send(method string, args ...any) error {
	m, err := NewInvocation("", c.clientID, method, args...)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if !c.up {
		if c.outbox.push(m) {
			c.log.Warnf("Outbox full, dropping oldest queued sends")
		}
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	return c.publish(m)
}

func (c *RealConn) publish(m Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.Target, err)
	}
	token := c.client.Publish(TopicServer, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// onConnect subscribes to this client's topic, replays queued sends and
// then reports the connection as open.
func (c *RealConn) onConnect(client paho.Client) {
	topic := ClientTopic(c.clientID)
	token := client.Subscribe(topic, 1, c.onMessage)
	if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
		err := token.Error()
		if err == nil {
			err = errors.New("subscribe timeout")
		}
		c.log.Errorf("Subscribe %s: %v", topic, err)
		c.fireError(err)
		return
	}

	c.mu.Lock()
	c.up = true
	queued := c.outbox.drain()
	c.mu.Unlock()

	for _, m := range queued {
		if err := c.publish(m); err != nil {
			c.log.Warnf("Replay %s: %v", m.Target, err)
		}
	}

	c.log.WithField("client_id", c.clientID).Info("Connected to hub")
	c.fireOpen()
}

func (c *RealConn) onConnectionLost(_ paho.Client, err error) {
	c.mu.Lock()
	c.up = false
	c.mu.Unlock()

	c.log.Warnf("Hub connection lost: %v", err)
	c.router.failAll(fmt.Errorf("%w: %v", ErrConnectionLost, err))
	c.fireClose(err)
}

func (c *RealConn) onMessage(_ paho.Client, pm paho.Message) {
	m, err := Decode(pm.Payload())
	if err != nil {
		c.log.Warnf("Dropping message on %s: %v", pm.Topic(), err)
		return
	}

	reply, err := c.router.dispatch(m)
	if err != nil {
		c.log.WithField("method", m.Target).Warnf("Handler failed: %v", err)
	}
	if reply == nil {
		return
	}
	if err := c.publish(*reply); err != nil {
		c.log.WithField("method", m.Target).Warnf("Reply failed: %v", err)
	}
}
