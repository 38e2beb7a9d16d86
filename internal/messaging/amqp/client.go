// Package amqp реализует очереди на RabbitMQ: топологию с DLX, публикацию
// persistent-сообщений, источник с prefetch=1 и переподключение.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/messaging/queue"
)

const (
	// DeadLetterExchange получает отклонённые сообщения всех очередей.
	DeadLetterExchange = "campusprint.dlx"

	publishTimeout  = 5 * time.Second
	dialTimeout     = 10 * time.Second
	heartbeat       = 10 * time.Second
	reconnectBase   = time.Second
	reconnectMax    = 30 * time.Second
	reconnectWindow = 30 * time.Second
)

var (
	errNotConnected   = errors.New("rabbitmq: connection is not open")
	errPublishChannel = errors.New("rabbitmq: publish channel is not open")
)

// Client держит соединение с RabbitMQ с автоматическим переподключением.
// Экземпляр создаётся явно через Connect и передаётся зависимостям.
type Client struct {
	url    string
	queues []string
	logger *log.Entry

	mu      sync.RWMutex
	conn    *amqp.Connection
	pubChan *amqp.Channel

	closeOnce sync.Once
	closed    chan struct{}
	reconnect chan struct{}
}

// Option настраивает Client.
type Option func(*Client)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithQueues переопределяет список объявляемых очередей.
func WithQueues(names ...string) Option {
	return func(c *Client) {
		c.queues = names
	}
}

// Connect подключается к брокеру, объявляет топологию и запускает наблюдатель переподключения.
func Connect(ctx context.Context, url string, options ...Option) (*Client, error) {
	c := &Client{
		url:       url,
		queues:    queue.Names(),
		closed:    make(chan struct{}),
		reconnect: make(chan struct{}, 1),
	}
	for _, option := range options {
		option(c)
	}
	if c.logger == nil {
		c.logger = log.WithField("component", "rabbitmq")
	}

	if err := c.connectOnce(ctx); err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	go c.watch()

	return c, nil
}

// Publish отправляет сообщение в очередь через default exchange.
func (c *Client) Publish(ctx context.Context, queueName string, msg queue.Message) error {
	body, err := msg.Encode()
	if err != nil {
		return err
	}
	return c.PublishRaw(ctx, queueName, body)
}

// PublishRaw отправляет готовое тело как persistent JSON.
func (c *Client) PublishRaw(ctx context.Context, queueName string, body []byte) error {
	c.mu.RLock()
	conn, ch := c.conn, c.pubChan
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return errNotConnected
	}
	if ch == nil || ch.IsClosed() {
		return errPublishChannel
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := ch.PublishWithContext(ctx, "", queueName, false, false, persistentJSON(body)); err != nil {
		return fmt.Errorf("publish to %s: %w", queueName, err)
	}
	return nil
}

// Ping проверяет, что соединение открыто и брокер доступен по TCP.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.RLock()
	conn, url := c.conn, c.url
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return errNotConnected
	}

	uri, err := amqp.ParseURI(url)
	if err != nil {
		return fmt.Errorf("rabbitmq: bad url: %w", err)
	}

	var d net.Dialer
	tcp, err := d.DialContext(ctx, "tcp", net.JoinHostPort(uri.Host, strconv.Itoa(uri.Port)))
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}
	return tcp.Close()
}

// Close останавливает наблюдатель и закрывает соединение.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pubChan != nil {
		_ = c.pubChan.Close()
		c.pubChan = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		if err != nil && !errors.Is(err, amqp.ErrClosed) {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}

// NewSource возвращает источник сообщений очереди с prefetch=1.
func (c *Client) NewSource(queueName string) *Source {
	return &Source{
		client: c,
		queue:  queueName,
		logger: c.logger.WithField("queue", queueName),
	}
}

func (c *Client) openChannel(prefetch int) (*amqp.Channel, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return nil, errNotConnected
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("set qos: %w", err)
		}
	}
	return ch, nil
}

func (c *Client) connectOnce(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	started := time.Now()

	conn, err := amqp.DialConfig(c.url, amqp.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := declareTopology(ch, c.queues); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	c.mu.Lock()
	if c.pubChan != nil {
		_ = c.pubChan.Close()
	}
	c.conn = conn
	c.pubChan = ch
	c.mu.Unlock()

	go c.notifyOnClose(conn, ch)

	c.logger.WithFields(log.Fields{
		"queues":      c.queues,
		"duration_ms": time.Since(started).Milliseconds(),
	}).Info("connected to rabbitmq")
	return nil
}

// notifyOnClose ставит сигнал переподключения, когда падает соединение или publish-канал.
func (c *Client) notifyOnClose(conn *amqp.Connection, ch *amqp.Channel) {
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	select {
	case <-c.closed:
		return
	case <-connClosed:
	case <-chClosed:
	}

	select {
	case c.reconnect <- struct{}{}:
	default:
	}
}

func (c *Client) watch() {
	backoff := reconnectBase
	for {
		select {
		case <-c.closed:
			return
		case <-c.reconnect:
		}

		for {
			select {
			case <-c.closed:
				return
			default:
			}

			ctx, cancel := context.WithTimeout(context.Background(), reconnectWindow)
			err := c.connectOnce(ctx)
			cancel()
			if err == nil {
				backoff = reconnectBase
				c.logger.Info("reconnected to rabbitmq")
				break
			}

			c.logger.WithError(err).WithField("backoff", backoff.String()).Error("rabbitmq reconnect failed")
			if !sleepOrClosed(c.closed, backoff) {
				return
			}
			backoff = nextBackoff(backoff, reconnectMax)
		}
	}
}

// declareTopology идемпотентно объявляет DLX, рабочие очереди и их DLQ.
func declareTopology(ch *amqp.Channel, queues []string) error {
	if err := ch.ExchangeDeclare(DeadLetterExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter exchange: %w", err)
	}

	for _, name := range queues {
		dlq := queue.DLQName(name)
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare %s: %w", dlq, err)
		}
		if err := ch.QueueBind(dlq, dlq, DeadLetterExchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", dlq, err)
		}
		if _, err := ch.QueueDeclare(name, true, false, false, false, queueArguments(name)); err != nil {
			return fmt.Errorf("declare %s: %w", name, err)
		}
	}
	return nil
}

// queueArguments направляет отклонённые сообщения очереди в её DLQ.
func queueArguments(queueName string) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    DeadLetterExchange,
		"x-dead-letter-routing-key": queue.DLQName(queueName),
	}
}

func persistentJSON(body []byte) amqp.Publishing {
	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  queue.ContentType,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
}

func sleepOrClosed(closed <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-closed:
		return false
	case <-timer.C:
		return true
	}
}

func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * 2
	if next > limit {
		return limit
	}
	return next
}

var _ queue.Publisher = (*Client)(nil)
