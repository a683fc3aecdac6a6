package events

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
)

// Publisher sends events to a durable topic exchange.
type Publisher struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex // amqp channels are not safe for concurrent publishing
	ch *amqp.Channel
}

var _ order.Publisher = (*Publisher)(nil)

// Dial connects to RabbitMQ and declares the exchange.
func Dial(ctx context.Context, url, exchange string) (*Publisher, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Properties: amqp.Table{
			"connection_name": "storefront-api",
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %q", exchange)
	}

	zctx.From(ctx).Info("Connected to RabbitMQ", zap.String("exchange", exchange))
	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// OrderPlaced implements order.Publisher.
func (p *Publisher) OrderPlaced(ctx context.Context, o *order.Order) error {
	return p.publish(ctx, KeyOrderPlaced, EncodeOrderPlaced(o))
}

// StatusChanged implements order.Publisher.
func (p *Publisher) StatusChanged(ctx context.Context, o *order.Order, from order.Status) error {
	return p.publish(ctx, KeyOrderStatusChanged, EncodeStatusChanged(o, from))
}

func (p *Publisher) publish(ctx context.Context, key string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx, p.exchange, key,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now().UTC(),
			Type:         key,
			Body:         body,
		},
	); err != nil {
		return errors.Wrapf(err, "publish %s", key)
	}
	return nil
}

// Check reports whether the broker connection is open.
func (p *Publisher) Check(context.Context) error {
	if p.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return errors.Wrap(err, "close channel")
	}
	if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return errors.Wrap(err, "close connection")
	}
	return nil
}
