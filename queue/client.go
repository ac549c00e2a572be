package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/alapanbagchi/Code-Visualizer/job"
)

// DefaultReconnectDelay is the fixed backoff between reconnect attempts after
// a broker connection loss. Deliberately simple: no exponential backoff, no
// circuit breaker.
const DefaultReconnectDelay = 5 * time.Second

// Handler processes one raw message body. Returning nil acknowledges the
// message; returning an error negatively acknowledges it and leaves redelivery
// to the broker.
type Handler func(ctx context.Context, body []byte) error

// Connection is the subset of an AMQP connection the client needs.
type Connection interface {
	Channel() (Channel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

// Channel is the subset of an AMQP channel the client needs.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// Dialer establishes a broker connection. Injectable so reconnect behavior is
// testable without a live broker.
type Dialer func(url string) (Connection, error)

type realConnection struct {
	conn *amqp.Connection
}

func (c *realConnection) Channel() (Channel, error) {
	return c.conn.Channel()
}

func (c *realConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	return c.conn.NotifyClose(receiver)
}

func (c *realConnection) Close() error {
	return c.conn.Close()
}

// AMQPDial is the default Dialer backed by rabbitmq/amqp091-go.
func AMQPDial(url string) (Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return &realConnection{conn: conn}, nil
}

// Client manages one connection and channel to the broker. It is safe for
// concurrent use; a lost connection fails publishes fast until the supervised
// reconnect task restores the channel.
type Client struct {
	logger         *zap.Logger
	url            string
	queue          string
	dial           Dialer
	reconnectDelay time.Duration

	mu         sync.Mutex
	conn       Connection
	ch         Channel
	handler    Handler         // non-nil once Consume was called; re-armed on reconnect
	consumeCtx context.Context // set by Consume; its cancellation must survive reconnects

	closed    chan struct{}
	closeOnce sync.Once
}

// ClientOption defines a functional option for Client
type ClientOption func(*Client)

// WithDialer sets the Dialer for Client
func WithDialer(dial Dialer) ClientOption {
	return func(c *Client) {
		c.dial = dial
	}
}

// WithReconnectDelay sets the delay between reconnect attempts
func WithReconnectDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.reconnectDelay = d
	}
}

// NewClient creates a Client for the named durable queue. No connection is
// made until Connect.
func NewClient(logger *zap.Logger, url, queueName string, opts ...ClientOption) *Client {
	c := &Client{
		logger:         logger,
		url:            url,
		queue:          queueName,
		dial:           AMQPDial,
		reconnectDelay: DefaultReconnectDelay,
		closed:         make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Connect establishes the connection and channel and asserts the durable
// queue. It is idempotent: if a live channel already exists it returns
// without reconnecting. The caller treats an error as fatal at startup;
// later transient drops are handled by the reconnect task instead.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	if c.ch != nil {
		return nil
	}

	conn, err := c.dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("failed to declare queue %s: %w", c.queue, err)
	}

	c.conn = conn
	c.ch = ch

	notify := conn.NotifyClose(make(chan *amqp.Error, 1))
	go c.watchConnection(notify)

	c.logger.Info("connected to broker", zap.String("queue", c.queue))

	if c.handler != nil {
		if err := c.startConsumeLocked(); err != nil {
			return err
		}
	}

	return nil
}

// watchConnection invalidates the channel as soon as the broker connection
// closes or errors, then hands off to the reconnect task.
func (c *Client) watchConnection(notify chan *amqp.Error) {
	amqpErr, ok := <-notify
	if !ok || c.isClosed() {
		return
	}

	c.logger.Error("broker connection lost, scheduling reconnect",
		zap.Error(amqpErr),
		zap.Duration("delay", c.reconnectDelay),
	)

	c.mu.Lock()
	c.conn = nil
	c.ch = nil
	c.mu.Unlock()

	go c.reconnectLoop()
}

// reconnectLoop retries the connection with a fixed delay until it succeeds
// or the client is closed. In-flight callers are never blocked by it; they
// fail fast while the channel is absent.
func (c *Client) reconnectLoop() {
	for {
		select {
		case <-c.closed:
			return
		case <-time.After(c.reconnectDelay):
		}

		c.mu.Lock()
		err := c.connectLocked()
		c.mu.Unlock()

		if err == nil {
			c.logger.Info("broker reconnected", zap.String("queue", c.queue))
			return
		}
		c.logger.Error("broker reconnect failed, retrying", zap.Error(err))
	}
}

// Publish enqueues one payload with persistent delivery. It returns false,
// never an error value, when no live channel exists or the publish fails;
// the caller must surface that as "not queued".
func (c *Client) Publish(ctx context.Context, payload job.Payload) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("failed to marshal payload", zap.String("jobID", payload.JobID), zap.Error(err))
		return false
	}

	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()

	if ch == nil {
		c.logger.Error("cannot publish, broker channel not available", zap.String("jobID", payload.JobID))
		return false
	}

	err = ch.PublishWithContext(ctx, "", c.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		c.logger.Error("failed to publish", zap.String("jobID", payload.JobID), zap.Error(err))
		return false
	}

	return true
}

// Consume registers the handler and starts consuming with prefetch 1, so this
// worker holds at most one unacknowledged message at a time. The subscription
// is re-established automatically after a reconnect.
func (c *Client) Consume(ctx context.Context, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler = handler
	c.consumeCtx = ctx
	if c.ch != nil {
		return c.startConsumeLocked()
	}
	// connectLocked starts the consumer itself once the handler is armed.
	return c.connectLocked()
}

// startConsumeLocked subscribes under the context given to Consume, also on
// resubscription after a reconnect, so cancelling that context still stops
// the handler.
func (c *Client) startConsumeLocked() error {
	if err := c.ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	deliveries, err := c.ch.ConsumeWithContext(c.consumeCtx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	go c.consumeLoop(c.consumeCtx, deliveries)
	return nil
}

// consumeLoop runs one handler invocation at a time. Success acknowledges the
// message; failure negatively acknowledges it with requeue, leaving the
// redelivery policy to the broker.
func (c *Client) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		if err := c.handler(ctx, d.Body); err != nil {
			c.logger.Error("handler failed, nacking message", zap.Error(err))
			if nackErr := d.Nack(false, true); nackErr != nil {
				c.logger.Error("failed to nack message", zap.Error(nackErr))
			}
			continue
		}
		if ackErr := d.Ack(false); ackErr != nil {
			c.logger.Error("failed to ack message", zap.Error(ackErr))
		}
	}
	// Deliveries channel closed: the connection watcher handles resubscribing.
	c.logger.Warn("consumer stream closed")
}

// IsConnected reports whether a live channel exists.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch != nil
}

// Close shuts the client down and stops any pending reconnect attempt.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		if c.conn != nil {
			err = c.conn.Close()
			c.conn = nil
			c.ch = nil
		}
		c.mu.Unlock()
	})
	return err
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
