// Command seed-db migrates the database and loads a catalog fixture.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/sourcemart/db"
	"github.com/xenking/sourcemart/internal/repository"
	"github.com/xenking/sourcemart/internal/seed"
)

func main() {
	var (
		databaseURL string
		catalogFile string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog", "", "catalog JSON file, the embedded demo catalog when empty")
	flag.Parse()

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if databaseURL == "" {
			databaseURL = os.Getenv("DATABASE_URL")
		}
		if databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		return run(zctx.Base(ctx, lg), databaseURL, catalogFile)
	})
}

func run(ctx context.Context, databaseURL, catalogFile string) error {
	lg := zctx.From(ctx)

	data := db.Catalog
	if catalogFile != "" {
		raw, err := os.ReadFile(catalogFile)
		if err != nil {
			return errors.Wrap(err, "read catalog")
		}
		data = raw
	}
	catalog, err := seed.Parse(data)
	if err != nil {
		return errors.Wrap(err, "parse catalog")
	}

	lg.Info("Running migrations")
	if err := repository.RunMigrations(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return seed.Apply(ctx, repository.NewSeeder(pool), catalog)
}
