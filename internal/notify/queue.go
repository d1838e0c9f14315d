package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// DefaultQueueKey is the Redis list holding pending settlement events.
const DefaultQueueKey = "checkout:events:orders"

// listClient is the subset of redis.Cmdable used by Queue.
type listClient interface {
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	LRem(ctx context.Context, key string, count int64, value any) *redis.IntCmd
	LMove(ctx context.Context, source, destination, srcpos, destpos string) *redis.StringCmd
	BLMove(ctx context.Context, source, destination, srcpos, destpos string, timeout time.Duration) *redis.StringCmd
}

// Queue is a FIFO of encoded events on a Redis list.
type Queue struct {
	client listClient
	key    string
	env    envelope
}

var _ order.Notifier = (*Queue)(nil)

// NewQueue creates a queue on key, or DefaultQueueKey when key is empty.
func NewQueue(client redis.Cmdable, key string) *Queue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &Queue{client: client, key: key, env: newEnvelope()}
}

// Key returns the list name.
func (q *Queue) Key() string { return q.key }

// DeadKey returns the list that keeps events the relay cannot decode.
func (q *Queue) DeadKey() string { return q.key + ":dead" }

// ProcessingKey returns the list holding events taken by Pop and not yet
// acknowledged.
func (q *Queue) ProcessingKey() string { return q.key + ":processing" }

// OrderSettled implements order.Notifier.
func (q *Queue) OrderSettled(ctx context.Context, o *order.Order) error {
	if err := q.client.RPush(ctx, q.key, q.env.encode(o)).Err(); err != nil {
		return errors.Wrap(err, "rpush")
	}
	return nil
}

// Pop blocks up to timeout for the next event and moves it to the
// processing list. It returns nil, nil when the queue stayed empty. Every
// popped event must end in Ack, Requeue or Bury.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	res, err := q.client.BLMove(ctx, q.key, q.ProcessingKey(), "LEFT", "RIGHT", timeout).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, errors.Wrap(err, "blmove")
	}
	return []byte(res), nil
}

// Ack drops a delivered event from the processing list.
func (q *Queue) Ack(ctx context.Context, payload []byte) error {
	if err := q.client.LRem(ctx, q.ProcessingKey(), 1, payload).Err(); err != nil {
		return errors.Wrap(err, "lrem processing")
	}
	return nil
}

// Requeue puts an event back at the head so it is retried first.
func (q *Queue) Requeue(ctx context.Context, payload []byte) error {
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return errors.Wrap(err, "lpush")
	}
	return q.Ack(ctx, payload)
}

// Bury moves an event to the dead list.
func (q *Queue) Bury(ctx context.Context, payload []byte) error {
	if err := q.client.RPush(ctx, q.DeadKey(), payload).Err(); err != nil {
		return errors.Wrap(err, "rpush dead")
	}
	return q.Ack(ctx, payload)
}

// Recover returns events left in the processing list by a stopped relay to
// the head of the queue, oldest first. It reports how many were moved.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.LMove(ctx, q.ProcessingKey(), q.key, "RIGHT", "LEFT").Err()
		switch {
		case errors.Is(err, redis.Nil):
			return n, nil
		case err != nil:
			return n, errors.Wrap(err, "lmove processing")
		}
		n++
	}
}
