package ingest

import (
	"context"
	"math/bits"
	"sort"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/sourcemart/internal/domain/coupon"
)

// Sink persists imported coupons. It is called concurrently.
type Sink interface {
	UpsertCoupons(ctx context.Context, coupons []coupon.Coupon) error
}

// Options tunes an import.
type Options struct {
	// ExpectedCodes sizes each per-file bloom filter.
	ExpectedCodes uint
	// FalsePositiveRate of each bloom filter.
	FalsePositiveRate float64
	// BatchSize is the number of coupons per Sink call.
	BatchSize int
}

func (o Options) withDefaults() Options {
	if o.ExpectedCodes == 0 {
		o.ExpectedCodes = 1_000_000
	}
	if o.FalsePositiveRate <= 0 || o.FalsePositiveRate >= 1 {
		o.FalsePositiveRate = 0.001
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 500
	}
	return o
}

// Report summarizes an import.
type Report struct {
	Rows uint64
	// Imported counts rows handed to the Sink.
	Imported uint64
	// Duplicates are codes present in more than one file. They are skipped.
	Duplicates []string
	// FalsePositives counts bloom hits that turned out unique.
	FalsePositives int
}

// Import loads coupons from files into sink. A code found in two or more files
// is ambiguous and skipped. Within one file the last row for a code wins.
//
// Pass 1 builds one bloom filter per file. Pass 2 streams each file again:
// codes absent from every other filter are written straight away, the rest are
// held back and resolved exactly once all files are scanned.
func Import(ctx context.Context, files []string, sink Sink, opts Options) (*Report, error) {
	if len(files) == 0 {
		return &Report{}, nil
	}
	if len(files) > bits.UintSize {
		return nil, errors.Errorf("at most %d files per import", bits.UintSize)
	}
	opts = opts.withDefaults()
	lg := zctx.From(ctx)

	lg.Info("Pass 1: building bloom filters", zap.Int("files", len(files)))
	filters, err := buildFilters(ctx, files, opts)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	lg.Info("Pass 2: writing unique codes")
	var (
		rep     Report
		held    = make([]map[string]coupon.Coupon, len(files))
		g, gctx = errgroup.WithContext(ctx)
	)
	for i, path := range files {
		g.Go(func() error {
			w := &batchWriter{sink: sink, size: opts.BatchSize, imported: &rep.Imported}
			candidates := make(map[string]coupon.Coupon)

			if err := streamFile(gctx, path, func(c coupon.Coupon) error {
				atomic.AddUint64(&rep.Rows, 1)
				if inOtherFilter(filters, i, c.Code) {
					candidates[c.Code] = c
					return nil
				}
				return w.add(gctx, c)
			}); err != nil {
				return errors.Wrapf(err, "scan file %d", i+1)
			}
			if err := w.flush(gctx); err != nil {
				return errors.Wrapf(err, "write file %d", i+1)
			}

			lg.Info("Pass 2 complete", zap.String("file", path), zap.Int("candidates", len(candidates)))
			held[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	owners := make(map[string]uint)
	for i, candidates := range held {
		for code := range candidates {
			owners[code] |= 1 << uint(i)
		}
	}

	w := &batchWriter{sink: sink, size: opts.BatchSize, imported: &rep.Imported}
	for i, candidates := range held {
		for code, c := range candidates {
			if bits.OnesCount(owners[code]) > 1 {
				continue
			}
			rep.FalsePositives++
			if err := w.add(ctx, c); err != nil {
				return nil, errors.Wrapf(err, "write held codes of file %d", i+1)
			}
		}
	}
	if err := w.flush(ctx); err != nil {
		return nil, errors.Wrap(err, "write held codes")
	}

	for code, mask := range owners {
		if bits.OnesCount(mask) > 1 {
			rep.Duplicates = append(rep.Duplicates, code)
		}
	}
	sort.Strings(rep.Duplicates)
	for _, code := range rep.Duplicates {
		lg.Warn("Skipping code present in several files", zap.String("code", code))
	}

	return &rep, nil
}

func buildFilters(ctx context.Context, files []string, opts Options) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(opts.ExpectedCodes, opts.FalsePositiveRate)
			var count uint64
			if err := streamFile(ctx, path, func(c coupon.Coupon) error {
				filter.AddString(c.Code)
				count++
				return nil
			}); err != nil {
				return errors.Wrapf(err, "build filter for file %d", i+1)
			}
			zctx.From(ctx).Info("Pass 1 complete", zap.String("file", path), zap.Uint64("codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

func inOtherFilter(filters []*bloom.BloomFilter, self int, code string) bool {
	for j, f := range filters {
		if j != self && f.TestString(code) {
			return true
		}
	}
	return false
}

// batchWriter buffers coupons for one goroutine. The imported counter is shared.
type batchWriter struct {
	sink     Sink
	size     int
	buf      []coupon.Coupon
	imported *uint64
}

func (w *batchWriter) add(ctx context.Context, c coupon.Coupon) error {
	w.buf = append(w.buf, c)
	if len(w.buf) < w.size {
		return nil
	}
	return w.flush(ctx)
}

func (w *batchWriter) flush(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	// A later row for the same code replaces the earlier one in a batch too.
	batch := dedupeLastWins(w.buf)
	if err := w.sink.UpsertCoupons(ctx, batch); err != nil {
		return err
	}
	atomic.AddUint64(w.imported, uint64(len(batch)))
	w.buf = w.buf[:0]
	return nil
}

func dedupeLastWins(in []coupon.Coupon) []coupon.Coupon {
	idx := make(map[string]int, len(in))
	out := make([]coupon.Coupon, 0, len(in))
	for _, c := range in {
		if i, ok := idx[c.Code]; ok {
			out[i] = c
			continue
		}
		idx[c.Code] = len(out)
		out = append(out, c)
	}
	return out
}
