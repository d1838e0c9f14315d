package app

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-checkout/internal/notify"
	"github.com/xenking/storefront-checkout/pkg/health"
)

// RelayConfig configures the notify-relay worker that moves settlement
// events from the Redis queue to Kafka.
type RelayConfig struct {
	HealthAddr  string        `default:"0.0.0.0:8081" usage:"Health endpoint listen address" flag:"health-addr"`
	PollTimeout time.Duration `default:"5s" usage:"Blocking pop timeout" flag:"poll-timeout"`
	Backoff     time.Duration `default:"1s" usage:"Pause after a failed publish"`
	Notify      NotifyConfig
}

// LoadRelayConfig loads the relay configuration the same way as LoadConfig.
func LoadRelayConfig() (*RelayConfig, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}
	return loadRelayConfig(aconfig.Config{
		EnvPrefix:        "KART",
		AllowUnknownEnvs: true,
		Files:            []string{"relay.yaml", "/etc/kart/relay.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadRelayConfig(ac aconfig.Config) (*RelayConfig, error) {
	var cfg RelayConfig
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if cfg.Notify.RedisAddr == "" {
		return nil, errors.New("redis address is required: set KART_NOTIFY_REDIS_ADDR")
	}
	if len(cfg.Notify.KafkaBrokers) == 0 {
		return nil, errors.New("kafka brokers are required: set KART_NOTIFY_KAFKA_BROKERS")
	}
	return &cfg, nil
}

// RunRelay drains the settlement queue into Kafka until ctx is done.
func RunRelay(ctx context.Context, lg *zap.Logger, cfg *RelayConfig) error {
	ctx = zctx.Base(ctx, lg)

	rdb := NewRedis(cfg.Notify)
	defer func() { _ = rdb.Close() }()

	client, err := NewKafka(cfg.Notify, "checkout-notify-relay")
	if err != nil {
		return err
	}
	defer client.Close()

	healthSvc := health.New()
	healthSvc.Add(health.Check{Name: "redis", Probe: health.Readiness, Func: func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}})
	healthSvc.Add(health.Check{Name: "kafka", Probe: health.Readiness, Func: health.PingCheck(client)})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	server := &http.Server{
		Addr:              cfg.HealthAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	relay := notify.NewRelay(
		notify.NewQueue(rdb, cfg.Notify.RedisQueue),
		notify.NewPublisher(client, cfg.Notify.KafkaTopic),
		notify.RelayConfig{PollTimeout: cfg.PollTimeout, Backoff: cfg.Backoff},
	)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)
	defer healthSvc.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Relay started",
			zap.String("queue", cfg.Notify.RedisQueue),
			zap.String("topic", cfg.Notify.KafkaTopic),
		)
		return relay.Run(gctx)
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "health server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
