// Package rabbitmq delivers report change notifications as a typed,
// cancellable event stream.
package rabbitmq

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/apex/log"
	"github.com/streadway/amqp"

	"metrowatch-listener/metrics"
	"metrowatch-listener/models"
)

// Subscriber holds the AMQP connection used to open subscriptions.
type Subscriber struct {
	conn     *amqp.Connection
	exchange string
}

// NewSubscriber connects to RabbitMQ and declares the topic exchange.
func NewSubscriber(amqpURL, exchange string) (*Subscriber, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &Subscriber{conn: conn, exchange: exchange}, nil
}

// Close closes the underlying connection. Open subscriptions terminate.
func (s *Subscriber) Close() error {
	return s.conn.Close()
}

// Subscription is a cancellable stream of change events for one topic.
// Events arrive on Events() in delivery order; the channel closes after
// Unsubscribe or when the transport goes away.
type Subscription struct {
	events  chan models.ChangeEvent
	channel *amqp.Channel
	tag     string
	once    sync.Once
}

// Subscribe binds an exclusive queue to the topic and starts delivering
// typed change events. Undecodable payloads are dropped with a diagnostic;
// they never stop the stream.
func (s *Subscriber) Subscribe(topic string) (*Subscription, error) {
	ch, err := s.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, topic, s.exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to bind queue to %s/%s: %w", s.exchange, topic, err)
	}

	tag := "metrowatch-" + q.Name
	deliveries, err := ch.Consume(q.Name, tag, true, true, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to start consumer: %w", err)
	}

	sub := &Subscription{
		events:  make(chan models.ChangeEvent, 64),
		channel: ch,
		tag:     tag,
	}

	go sub.pump(deliveries)

	log.Infof("rabbitmq: subscribed to %s on exchange %s", topic, s.exchange)
	return sub, nil
}

// Events returns the typed event stream. The channel closes on teardown.
func (s *Subscription) Events() <-chan models.ChangeEvent {
	return s.events
}

// Unsubscribe releases the subscription. Safe to call more than once; the
// teardown itself runs exactly once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if err := s.channel.Cancel(s.tag, false); err != nil {
			log.Warnf("rabbitmq: consumer cancel failed: %v", err)
		}
		if err := s.channel.Close(); err != nil {
			log.Warnf("rabbitmq: channel close failed: %v", err)
		}
	})
}

// pump decodes deliveries into typed events until the delivery channel
// closes, then closes the event stream.
func (s *Subscription) pump(deliveries <-chan amqp.Delivery) {
	defer close(s.events)

	for delivery := range deliveries {
		var ev models.ChangeEvent
		if err := json.Unmarshal(delivery.Body, &ev); err != nil {
			metrics.EventsDroppedTotal.Inc()
			log.Warnf("rabbitmq: undecodable change event dropped: %v", err)
			continue
		}
		s.events <- ev
	}
}
