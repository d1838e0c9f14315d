package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// RelayConfig tunes the relay loop.
type RelayConfig struct {
	// PollTimeout bounds one BLMOVE call so shutdown is noticed.
	PollTimeout time.Duration
	// Backoff is the pause after a failed publish.
	Backoff time.Duration
}

// Relay drains the Redis queue into Kafka with at-least-once delivery: an
// event sits in the processing list while it is published and is only
// removed after Kafka acknowledged it. Events left there by a crash are
// recovered when the relay starts.
type Relay struct {
	queue *Queue
	pub   eventPublisher
	cfg   RelayConfig
}

type eventPublisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// NewRelay creates a relay.
func NewRelay(queue *Queue, pub eventPublisher, cfg RelayConfig) *Relay {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Relay{queue: queue, pub: pub, cfg: cfg}
}

// Run relays events until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	lg := zctx.From(ctx)
	n, err := r.queue.Recover(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.Wrap(err, "recover in-flight events")
	}
	if n > 0 {
		lg.Info("Recovered in-flight events", zap.Int("count", n))
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		moved, err := r.step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			lg.Warn("Relay step failed", zap.Error(err), zap.Duration("backoff", r.cfg.Backoff))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.cfg.Backoff):
			}
			continue
		}
		if moved {
			lg.Debug("Event relayed")
		}
	}
}

// step moves at most one event. It reports whether an event was published.
func (r *Relay) step(ctx context.Context) (bool, error) {
	payload, err := r.queue.Pop(ctx, r.cfg.PollTimeout)
	if err != nil || payload == nil {
		return false, err
	}
	if _, _, err := eventKey(payload); err != nil {
		zctx.From(ctx).Error("Burying undecodable event", zap.Error(err), zap.ByteString("payload", payload))
		return false, r.queue.Bury(context.WithoutCancel(ctx), payload)
	}
	if err := r.pub.Publish(ctx, payload); err != nil {
		// Requeue even when ctx is already cancelled.
		if rqErr := r.queue.Requeue(context.WithoutCancel(ctx), payload); rqErr != nil {
			return false, errors.Wrapf(rqErr, "requeue after publish failure: %v", err)
		}
		return false, err
	}
	if err := r.queue.Ack(context.WithoutCancel(ctx), payload); err != nil {
		return true, err
	}
	return true, nil
}
