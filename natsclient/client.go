// Package natsclient manages the NATS connection and JetStream access for
// the durable federation queues. It wraps connection lifecycle, a simple
// circuit breaker, and manual-ack stream consumption.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/versia-works/federation/config"
	"github.com/versia-works/federation/errors"
	"github.com/versia-works/federation/metric"
	"github.com/versia-works/federation/pkg/retry"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Error messages
var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrCircuitOpen  = stderrors.New("circuit breaker is open")
)

// Client manages the NATS connection for the federation queues.
type Client struct {
	url    string
	name   string
	logger *slog.Logger

	conn *nats.Conn
	js   jetstream.JetStream

	status atomic.Value // ConnectionStatus

	// Circuit breaker
	circuitFailures  atomic.Int32
	circuitThreshold int32

	// Consumer lifecycle
	consumers   map[string]jetstream.ConsumeContext
	consumersMu sync.Mutex

	metrics *metric.Metrics

	mu     sync.RWMutex
	closed atomic.Bool
}

// Connect establishes the NATS connection with startup retries and
// returns a ready client. metrics may be nil.
func Connect(ctx context.Context, cfg config.NATSConfig, logger *slog.Logger, metrics *metric.Metrics) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "natsclient", "Connect", "nats url required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		url:              cfg.URL,
		name:             cfg.Name,
		logger:           logger.With("component", "natsclient"),
		circuitThreshold: 5,
		consumers:        make(map[string]jetstream.ConsumeContext),
		metrics:          metrics,
	}
	c.status.Store(StatusConnecting)

	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.status.Store(StatusReconnecting)
			if metrics != nil {
				metrics.NATSConnected.Set(0)
			}
			c.logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.status.Store(StatusConnected)
			if metrics != nil {
				metrics.NATSConnected.Set(1)
				metrics.NATSReconnects.Inc()
			}
			c.logger.Info("nats reconnected")
		}),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	} else if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	err := retry.Do(ctx, retry.Startup(), func() error {
		conn, err := nats.Connect(cfg.URL, opts...)
		if err != nil {
			c.logger.Warn("nats connect attempt failed", "url", cfg.URL, "error", err)
			return err
		}
		c.conn = conn
		return nil
	})
	if err != nil {
		c.status.Store(StatusDisconnected)
		return nil, errors.WrapTransient(err, "natsclient", "Connect", "connect failed")
	}

	js, err := jetstream.New(c.conn)
	if err != nil {
		c.conn.Close()
		return nil, errors.WrapFatal(err, "natsclient", "Connect", "jetstream init failed")
	}
	c.js = js
	c.status.Store(StatusConnected)
	if metrics != nil {
		metrics.NATSConnected.Set(1)
	}
	c.logger.Info("connected to nats", "url", cfg.URL)
	return c, nil
}

// Status returns the current connection status.
func (c *Client) Status() ConnectionStatus {
	if s, ok := c.status.Load().(ConnectionStatus); ok {
		return s
	}
	return StatusDisconnected
}

// Healthy reports whether the connection is usable.
func (c *Client) Healthy() bool {
	return c.Status() == StatusConnected && c.conn != nil && c.conn.IsConnected()
}

func (c *Client) checkUsable() error {
	if c.closed.Load() {
		return ErrNotConnected
	}
	switch c.Status() {
	case StatusCircuitOpen:
		return ErrCircuitOpen
	case StatusConnected, StatusReconnecting:
		return nil
	default:
		return ErrNotConnected
	}
}

func (c *Client) recordFailure() {
	if c.circuitFailures.Add(1) >= c.circuitThreshold {
		c.status.Store(StatusCircuitOpen)
		c.logger.Error("circuit breaker opened", "failures", c.circuitFailures.Load())

		// Half-open after a cooldown so a recovered broker is picked up
		// without external intervention.
		time.AfterFunc(30*time.Second, func() {
			if c.Status() == StatusCircuitOpen && !c.closed.Load() {
				c.circuitFailures.Store(0)
				c.status.Store(StatusConnected)
				c.logger.Info("circuit breaker reset")
			}
		})
	}
}

func (c *Client) resetCircuit() {
	c.circuitFailures.Store(0)
}

// EnsureStream creates or updates a JetStream stream.
func (c *Client) EnsureStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	if err := c.checkUsable(); err != nil {
		return nil, err
	}
	stream, err := c.js.CreateOrUpdateStream(ctx, cfg)
	if err != nil {
		c.recordFailure()
		return nil, errors.WrapTransient(err, "natsclient", "EnsureStream",
			fmt.Sprintf("ensure stream %s failed", cfg.Name))
	}
	c.resetCircuit()
	return stream, nil
}

// Publish publishes a message to a JetStream subject.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	if err := c.checkUsable(); err != nil {
		return err
	}
	if _, err := c.js.Publish(ctx, subject, data); err != nil {
		c.recordFailure()
		return errors.WrapTransient(err, "natsclient", "Publish",
			fmt.Sprintf("publish to %s failed", subject))
	}
	c.resetCircuit()
	return nil
}

// Consume creates a durable consumer on the stream and feeds messages to
// the handler. The handler owns acknowledgement: it must Ack, Nak, or
// Term every message, which is what lets the queue layer implement the
// redelivery contract.
func (c *Client) Consume(ctx context.Context, streamName string, cfg jetstream.ConsumerConfig, handler func(jetstream.Msg)) error {
	if err := c.checkUsable(); err != nil {
		return err
	}
	consumer, err := c.js.CreateOrUpdateConsumer(ctx, streamName, cfg)
	if err != nil {
		c.recordFailure()
		return errors.WrapTransient(err, "natsclient", "Consume",
			fmt.Sprintf("create consumer on %s failed", streamName))
	}

	cc, err := consumer.Consume(handler)
	if err != nil {
		c.recordFailure()
		return errors.WrapTransient(err, "natsclient", "Consume",
			fmt.Sprintf("consume on %s failed", streamName))
	}

	c.consumersMu.Lock()
	defer c.consumersMu.Unlock()
	if c.closed.Load() {
		cc.Stop()
		return ErrNotConnected
	}
	key := streamName + ":" + cfg.Durable
	if existing, ok := c.consumers[key]; ok {
		existing.Stop()
		c.logger.Debug("replaced existing consumer", "key", key)
	}
	c.consumers[key] = cc

	c.resetCircuit()
	return nil
}

// Close drains consumers and closes the connection. Safe to call more
// than once.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.consumersMu.Lock()
	for key, cc := range c.consumers {
		cc.Stop()
		delete(c.consumers, key)
	}
	c.consumersMu.Unlock()

	c.status.Store(StatusDisconnected)
	if c.metrics != nil {
		c.metrics.NATSConnected.Set(0)
	}
	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			c.conn.Close()
			return errors.WrapTransient(err, "natsclient", "Close", "drain failed")
		}
	}
	c.logger.Info("nats connection closed")
	return nil
}
