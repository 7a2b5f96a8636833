package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DefaultExchange is the topic exchange events are published to.
const DefaultExchange = "oracle.events"

// amqpChannel is the subset of *amqp.Channel used by Publisher.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher forwards bus events to a RabbitMQ topic exchange as JSON. The
// routing key is "oracle.<kind>" in lower case, e.g. "oracle.request".
type Publisher struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
}

// NewPublisher dials url, opens a channel and declares a durable topic
// exchange. An empty exchange selects DefaultExchange.
func NewPublisher(url, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}

	zap.L().Info("event exchange declared", zap.String("exchange", exchange))
	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// RoutingKey returns the routing key used for ev.
func RoutingKey(ev Event) string {
	return "oracle." + strings.ToLower(string(ev.Kind))
}

// Publish sends a single event.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = p.ch.PublishWithContext(ctx,
		p.exchange,
		RoutingKey(ev),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Type:         string(ev.Kind),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Kind, err)
	}
	return nil
}

// Run subscribes to bus and publishes every event until ctx is cancelled.
// Publish failures are logged and do not stop the loop.
func (p *Publisher) Run(ctx context.Context, bus *Bus) error {
	ch := make(chan Event, 128)
	sub := bus.Subscribe(ch)
	defer sub.Unsubscribe()

	for {
		select {
		case ev := <-ch:
			if err := p.Publish(ctx, ev); err != nil {
				zap.L().Error("failed to publish event", zap.String("kind", string(ev.Kind)), zap.Error(err))
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	var firstErr error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			firstErr = err
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
