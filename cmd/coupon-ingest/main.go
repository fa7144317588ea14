// Command coupon-ingest bulk-loads coupons from gzip-compressed CSV files.
//
// Each file holds rows of
//
//	code,type,value,min_amount,max_amount,usage_limit,valid_from,valid_until
//
// A code listed in more than one file is ambiguous and skipped.
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/sourcemart/internal/ingest"
	"github.com/xenking/sourcemart/internal/repository"
)

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		opts        ingest.Options
	)
	flag.StringVar(&dataDir, "data-dir", "data", "directory with coupon files")
	flag.StringVar(&pattern, "pattern", "*.csv.gz", "glob of coupon files inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&opts.ExpectedCodes, "expected-codes", 1_000_000, "expected codes per file, sizes the bloom filters")
	flag.Float64Var(&opts.FalsePositiveRate, "fpr", 0.001, "bloom filter false positive rate")
	flag.IntVar(&opts.BatchSize, "batch", 500, "coupons per database batch")
	flag.Parse()

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if databaseURL == "" {
			databaseURL = os.Getenv("DATABASE_URL")
		}
		if databaseURL == "" {
			return errors.New("database URL is required: set --database-url or DATABASE_URL")
		}
		files, err := filepath.Glob(filepath.Join(dataDir, pattern))
		if err != nil {
			return errors.Wrap(err, "glob coupon files")
		}
		sort.Strings(files)
		return run(zctx.Base(ctx, lg), databaseURL, files, opts)
	})
}

func run(ctx context.Context, databaseURL string, files []string, opts ingest.Options) error {
	lg := zctx.From(ctx)
	if len(files) == 0 {
		lg.Info("No coupon files found")
		return nil
	}

	if err := repository.RunMigrations(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Importing coupons", zap.Strings("files", files))
	rep, err := ingest.Import(ctx, files, repository.NewSeeder(pool), opts)
	if err != nil {
		return errors.Wrap(err, "import coupons")
	}

	lg.Info("Coupon import complete",
		zap.Uint64("rows", rep.Rows),
		zap.Uint64("imported", rep.Imported),
		zap.Int("duplicates", len(rep.Duplicates)),
		zap.Int("false_positives", rep.FalsePositives),
	)
	return nil
}
