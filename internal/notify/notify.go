// Package notify publishes settled orders to downstream invoicing and
// notification consumers. The API server either pushes events onto a Redis
// list, drained by the relay into Kafka, or produces to Kafka directly.
package notify

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/wire"
)

// EventOrderSettled is the event type of a newly settled order.
const EventOrderSettled = "order.settled"

type envelope struct {
	now   func() time.Time
	newID func() string
}

func newEnvelope() envelope {
	return envelope{now: time.Now, newID: uuid.NewString}
}

func (env envelope) encode(o *order.Order) []byte {
	var e jx.Encoder
	wire.EncodeOrderEvent(&e, wire.OrderEvent{
		ID:         env.newID(),
		Type:       EventOrderSettled,
		OccurredAt: env.now(),
		Order:      o,
	})
	return e.Bytes()
}

// eventKey extracts the partition key (the customer id) and the event type
// from an encoded event.
func eventKey(payload []byte) (key, typ string, err error) {
	d := jx.DecodeBytes(payload)
	err = d.ObjBytes(func(d *jx.Decoder, k []byte) error {
		switch string(k) {
		case "type":
			v, err := d.Str()
			typ = v
			return err
		case "order":
			return d.ObjBytes(func(d *jx.Decoder, k []byte) error {
				if string(k) != "customerId" {
					return d.Skip()
				}
				v, err := d.Str()
				key = v
				return err
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return "", "", errors.Wrap(err, "decode event")
	}
	if key == "" || typ == "" {
		return "", "", errors.New("event without type or customer")
	}
	return key, typ, nil
}
