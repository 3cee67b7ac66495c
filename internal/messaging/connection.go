package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"food-delivery/internal/config"
	"food-delivery/internal/logger"
)

const (
	OrdersExchange        = "orders_topic"
	NotificationsExchange = "notifications_fanout"
	DeadLetterExchange    = "orders_dlx"

	RestaurantOrdersQueue = "restaurant_orders_queue"
	NotificationsQueue    = "notifications_queue"
	DeadLetterQueue       = "orders_dead_letter_queue"

	connectAttempts = 5
)

// Connection wraps a RabbitMQ connection and channel with reconnection logic
type Connection struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	logger  *logger.Logger
	url     string
}

// New dials RabbitMQ and declares the exchanges and queues the services use
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Connection, error) {
	c := &Connection{
		logger: log,
		url:    cfg.RabbitMQURL(),
	}

	if err := c.connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to establish initial connection: %w", err)
	}
	return c, nil
}

func (c *Connection) connect(ctx context.Context) error {
	var err error
	for i := 0; i < connectAttempts; i++ {
		if err = c.dial(); err == nil {
			return nil
		}

		if i < connectAttempts-1 {
			wait := time.Duration(i+1) * 2 * time.Second
			c.logger.Error("rabbitmq_connection_failed",
				fmt.Sprintf("Failed to connect to RabbitMQ, retrying in %v", wait),
				"startup", err, nil)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", connectAttempts, err)
}

func (c *Connection) dial() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}

	if err := setupTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to set up topology: %w", err)
	}

	c.conn = conn
	c.channel = ch
	return nil
}

// setupTopology declares:
//
//	orders_topic (topic) --order.created.*--> restaurant_orders_queue --dead letters--> orders_dlx
//	notifications_fanout (fanout) --> notifications_queue
func setupTopology(ch *amqp091.Channel) error {
	exchanges := []struct {
		name string
		kind string
	}{
		{OrdersExchange, amqp091.ExchangeTopic},
		{NotificationsExchange, amqp091.ExchangeFanout},
		{DeadLetterExchange, amqp091.ExchangeFanout},
	}
	for _, e := range exchanges {
		if err := ch.ExchangeDeclare(e.name, e.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare %s exchange: %w", e.name, err)
		}
	}

	queues := []struct {
		name       string
		exchange   string
		routingKey string
		args       amqp091.Table
	}{
		{DeadLetterQueue, DeadLetterExchange, "", nil},
		{RestaurantOrdersQueue, OrdersExchange, "order.created.*", amqp091.Table{
			"x-dead-letter-exchange": DeadLetterExchange,
		}},
		{NotificationsQueue, NotificationsExchange, "", amqp091.Table{
			"x-dead-letter-exchange": DeadLetterExchange,
		}},
	}
	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.name, err)
		}
		if err := ch.QueueBind(q.name, q.routingKey, q.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s to %s: %w", q.name, q.exchange, err)
		}
	}

	return nil
}

func (c *Connection) Channel() *amqp091.Channel {
	return c.channel
}

func (c *Connection) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsClosed checks if the connection is closed
func (c *Connection) IsClosed() bool {
	return c.conn == nil || c.conn.IsClosed()
}

// Reconnect drops the current connection and dials again
func (c *Connection) Reconnect(ctx context.Context) error {
	c.Close()
	return c.connect(ctx)
}
