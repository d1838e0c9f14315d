package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/address"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/notify"
	"github.com/xenking/storefront-checkout/internal/storage/memory"
	"github.com/xenking/storefront-checkout/internal/storage/postgres"
	"github.com/xenking/storefront-checkout/pkg/health"
)

type couponStore interface {
	coupon.Store
	coupon.Ledger
}

type stores struct {
	products  product.Repository
	addresses address.Repository
	coupons   couponStore
	orders    order.Store
}

// openStores connects the configured storage backend and registers its
// readiness check.
func openStores(ctx context.Context, lg *zap.Logger, cfg *Config, h *health.Health) (*stores, func(), error) {
	if cfg.Storage == StorageMemory {
		lg.Warn("Using in-memory storage, data is lost on restart")
		db := memory.New()
		return &stores{
			products:  db.Products(),
			addresses: db.Addresses(),
			coupons:   db.Coupons(),
			orders:    db.Orders(),
		}, func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, errors.Wrap(err, "run migrations")
	}
	h.Add(health.Check{Name: "postgres", Probe: health.Readiness, Timeout: 5 * time.Second, Func: health.PingCheck(pool)})

	return &stores{
		products:  postgres.NewProductRepository(pool),
		addresses: postgres.NewAddressRepository(pool),
		coupons:   postgres.NewCouponRepository(pool),
		orders:    postgres.NewOrderRepository(pool),
	}, pool.Close, nil
}

// NewRedis creates the Redis client of the notification queue.
func NewRedis(cfg NotifyConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}

// NewKafka creates a Kafka client producing to the settlement topic.
func NewKafka(cfg NotifyConfig, clientID string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.KafkaBrokers...),
		kgo.ClientID(clientID),
		kgo.DefaultProduceTopic(cfg.KafkaTopic),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create kafka client")
	}
	return client, nil
}

// openNotifier builds the settlement notifier for the configured driver.
func openNotifier(cfg NotifyConfig, h *health.Health) (order.Notifier, func(), error) {
	switch cfg.Driver {
	case NotifyRedis:
		rdb := NewRedis(cfg)
		h.Add(health.Check{Name: "redis", Probe: health.Readiness, Func: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		return notify.NewQueue(rdb, cfg.RedisQueue), func() { _ = rdb.Close() }, nil
	case NotifyKafka:
		client, err := NewKafka(cfg, "checkout-api")
		if err != nil {
			return nil, nil, err
		}
		h.Add(health.Check{Name: "kafka", Probe: health.Readiness, Func: health.PingCheck(client)})
		return notify.NewPublisher(client, cfg.KafkaTopic), client.Close, nil
	default:
		return order.NopNotifier{}, func() {}, nil
	}
}
