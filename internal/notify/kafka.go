package notify

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// DefaultTopic receives settlement events.
const DefaultTopic = "checkout.orders.settled"

type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Publisher produces settlement events to a Kafka topic, keyed by customer
// so one customer's events stay ordered within a partition.
type Publisher struct {
	client producer
	topic  string
	env    envelope
}

var _ order.Notifier = (*Publisher)(nil)

// NewPublisher creates a publisher for topic, or DefaultTopic when empty.
func NewPublisher(client *kgo.Client, topic string) *Publisher {
	return newPublisher(client, topic)
}

func newPublisher(client producer, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{client: client, topic: topic, env: newEnvelope()}
}

// OrderSettled implements order.Notifier.
func (p *Publisher) OrderSettled(ctx context.Context, o *order.Order) error {
	return p.produce(ctx, o.CustomerID, EventOrderSettled, p.env.encode(o))
}

// Publish forwards an already encoded event.
func (p *Publisher) Publish(ctx context.Context, payload []byte) error {
	key, typ, err := eventKey(payload)
	if err != nil {
		return err
	}
	return p.produce(ctx, key, typ, payload)
}

func (p *Publisher) produce(ctx context.Context, key, typ string, payload []byte) error {
	rec := &kgo.Record{
		Topic:   p.topic,
		Key:     []byte(key),
		Value:   payload,
		Headers: []kgo.RecordHeader{{Key: "event-type", Value: []byte(typ)}},
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return errors.Wrapf(err, "produce to %s", p.topic)
	}
	return nil
}
