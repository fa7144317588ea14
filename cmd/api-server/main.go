// Command api-server serves the sourcemart checkout API.
package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	srv "github.com/xenking/sourcemart/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := srv.LoadConfig()
		if err != nil {
			return err
		}
		if cfg.Storage == srv.StorageMemory {
			lg.Warn("Memory storage selected, orders are lost on restart")
		}
		return srv.Run(ctx, lg, m, cfg)
	})
}
