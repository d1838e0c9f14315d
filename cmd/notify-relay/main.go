// Command notify-relay forwards order settlement events from the Redis
// queue written by the API server to a Kafka topic.
package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/xenking/storefront-checkout/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		cfg, err := appkg.LoadRelayConfig()
		if err != nil {
			return err
		}
		return appkg.RunRelay(ctx, lg, cfg)
	})
}
