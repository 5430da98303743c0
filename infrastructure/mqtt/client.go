// Package mqtt implements ports.Transport on the Eclipse Paho MQTT client.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	sdkErrors "github.com/fogbridge/fogbridge/domain/errors"
	"github.com/fogbridge/fogbridge/domain/ports"
)

// ClientIDPrefix prefixes generated client ids.
const ClientIDPrefix = "fogbridge"

// DefaultOperationTimeout bounds subscribe, unsubscribe, and publish waits.
const DefaultOperationTimeout = 5 * time.Second

var (
	// ErrNotConnected is returned for operations attempted without a connection.
	ErrNotConnected = errors.New("mqtt: not connected")
	// ErrClosed is returned by Connect after Close.
	ErrClosed = errors.New("mqtt: client closed")
)

// Config holds broker connection settings.
type Config struct {
	Broker               string
	ClientID             string
	Username             string
	Password             string
	KeepAlive            time.Duration
	ConnectTimeout       time.Duration
	MaxReconnectInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for connection events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithOperationTimeout bounds how long Subscribe, Unsubscribe, and Publish wait
// for the broker.
func WithOperationTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.opTimeout = d
		}
	}
}

type subscription struct {
	qos     byte
	handler ports.MessageHandler
}

// Client is a ports.Transport backed by paho. After the first successful
// connection paho reconnects with backoff on its own; subscriptions are
// restored on every reconnect.
type Client struct {
	cfg       Config
	logger    *slog.Logger
	opTimeout time.Duration
	client    paho.Client

	mu     sync.Mutex
	subs   map[string]subscription
	closed bool
}

var _ ports.Transport = (*Client)(nil)

// New creates a Client. It does not connect.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:       cfg,
		logger:    slog.Default(),
		opTimeout: DefaultOperationTimeout,
		subs:      make(map[string]subscription),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.ClientID == "" {
		c.cfg.ClientID = NewClientID(ClientIDPrefix)
	}
	c.client = paho.NewClient(c.clientOptions())
	return c
}

// NewClientID returns prefix followed by a random suffix, short enough for
// brokers that enforce the 23 byte limit.
func NewClientID(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if prefix == "" {
		return suffix
	}
	return prefix + "-" + suffix
}

// ClientID returns the id presented to the broker.
func (c *Client) ClientID() string {
	return c.cfg.ClientID
}

func (c *Client) clientOptions() *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(c.cfg.Broker).
		SetClientID(c.cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetOrderMatters(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
			c.logger.Info("reconnecting to broker", "broker", c.cfg.Broker)
		})
	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}
	if c.cfg.KeepAlive > 0 {
		opts.SetKeepAlive(c.cfg.KeepAlive)
	}
	if c.cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(c.cfg.ConnectTimeout)
	}
	if c.cfg.MaxReconnectInterval > 0 {
		opts.SetMaxReconnectInterval(c.cfg.MaxReconnectInterval)
	}
	return opts
}

// Connect dials the broker once. A failure is a BrokerConnectError; paho only
// retries connections that were established at least once.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return &sdkErrors.BrokerConnectError{Broker: c.cfg.Broker, Err: ErrClosed}
	}

	timeout := c.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}
	if err := wait(ctx, c.client.Connect(), timeout); err != nil {
		return &sdkErrors.BrokerConnectError{Broker: c.cfg.Broker, Err: err}
	}
	c.logger.InfoContext(ctx, "connected to broker", "broker", c.cfg.Broker, "client_id", c.cfg.ClientID)
	return nil
}

// Subscribe registers handler for topic. The handler runs on paho's delivery
// goroutine and must not block or publish.
func (c *Client) Subscribe(ctx context.Context, topic string, qos byte, handler ports.MessageHandler) error {
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		return fmt.Errorf("subscribe %s: %w", topic, ErrNotConnected)
	}
	if err := wait(ctx, c.client.Subscribe(topic, qos, deliver(handler)), c.opTimeout); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	c.logger.DebugContext(ctx, "subscribed", "topic", topic, "qos", qos)
	return nil
}

// Unsubscribe removes the subscription for topic.
func (c *Client) Unsubscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	_, known := c.subs[topic]
	delete(c.subs, topic)
	c.mu.Unlock()

	if !known || !c.client.IsConnectionOpen() {
		return nil
	}
	if err := wait(ctx, c.client.Unsubscribe(topic), c.opTimeout); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", topic, err)
	}
	return nil
}

// Publish sends msg and waits for the broker to accept it at msg.QoS.
func (c *Client) Publish(ctx context.Context, msg ports.Message) error {
	if !c.client.IsConnectionOpen() {
		return &sdkErrors.PublishError{Topic: msg.Topic, Err: ErrNotConnected}
	}
	if err := wait(ctx, c.client.Publish(msg.Topic, msg.QoS, msg.Retained, msg.Payload), c.opTimeout); err != nil {
		return &sdkErrors.PublishError{Topic: msg.Topic, Err: err}
	}
	return nil
}

// Close disconnects, letting in-flight work finish for a short quiesce period.
// It is safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	quiesce := uint(250)
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < 250*time.Millisecond {
			quiesce = uint(max(left, 0) / time.Millisecond)
		}
	}
	if c.client.IsConnected() {
		c.client.Disconnect(quiesce)
		c.logger.InfoContext(ctx, "disconnected from broker", "broker", c.cfg.Broker)
	}
	return nil
}

func (c *Client) onConnect(client paho.Client) {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for topic, s := range c.subs {
		subs[topic] = s
	}
	c.mu.Unlock()

	for topic, s := range subs {
		token := client.Subscribe(topic, s.qos, deliver(s.handler))
		go func(topic string) {
			if !token.WaitTimeout(c.opTimeout) {
				c.logger.Error("resubscribe timed out", "topic", topic)
				return
			}
			if err := token.Error(); err != nil {
				c.logger.Error("resubscribe failed", "topic", topic, "error", err)
				return
			}
			c.logger.Info("resubscribed", "topic", topic)
		}(topic)
	}
}

func (c *Client) onConnectionLost(_ paho.Client, err error) {
	c.logger.Warn("broker connection lost", "broker", c.cfg.Broker, "error", err)
}

func deliver(handler ports.MessageHandler) paho.MessageHandler {
	return func(_ paho.Client, m paho.Message) {
		handler(toMessage(m))
	}
}

func toMessage(m paho.Message) ports.Message {
	return ports.Message{
		Topic:    m.Topic(),
		Payload:  append([]byte(nil), m.Payload()...),
		QoS:      m.Qos(),
		Retained: m.Retained(),
	}
}

// wait blocks until token completes, ctx is done, or timeout elapses.
func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("no response from broker after %v", timeout)
	}
}
