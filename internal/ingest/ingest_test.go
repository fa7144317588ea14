package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/sourcemart/internal/domain/coupon"
)

const header = "code,type,value,min_amount,max_amount,usage_limit,valid_from,valid_until\n"

func writeGz(t *testing.T, dir, name string, rows ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(header + strings.Join(rows, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func row(code, typ, value string) string {
	return code + "," + typ + "," + value + ",,,,2025-01-01T00:00:00Z,2025-12-31T23:59:59Z"
}

type memorySink struct {
	mu      sync.Mutex
	coupons map[string]coupon.Coupon
	calls   int
	err     error
}

func (s *memorySink) UpsertCoupons(_ context.Context, coupons []coupon.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	if s.coupons == nil {
		s.coupons = make(map[string]coupon.Coupon)
	}
	for _, c := range coupons {
		s.coupons[c.Code] = c
	}
	return nil
}

func (s *memorySink) codes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.coupons))
	for code := range s.coupons {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

func TestImport(t *testing.T) {
	for _, tt := range []struct {
		name string
		opts Options
	}{
		{name: "Default", opts: Options{BatchSize: 2}},
		// A saturated filter makes every code a candidate, so exact
		// resolution has to do all the work.
		{name: "SaturatedFilter", opts: Options{ExpectedCodes: 1, FalsePositiveRate: 0.99, BatchSize: 1}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			files := []string{
				writeGz(t, dir, "a.csv.gz", row("alpha", "fixed", "5"), row("SHARED", "fixed", "1"), row("alpha", "fixed", "7")),
				writeGz(t, dir, "b.csv.gz", row("bravo", "percentage", "10"), row("shared", "percentage", "50")),
				writeGz(t, dir, "c.csv.gz", row("CHARLIE", "fixed", "2")),
			}

			sink := &memorySink{}
			rep, err := Import(context.Background(), files, sink, tt.opts)
			require.NoError(t, err)

			assert.Equal(t, uint64(6), rep.Rows)
			assert.Equal(t, []string{"SHARED"}, rep.Duplicates)
			assert.Equal(t, []string{"ALPHA", "BRAVO", "CHARLIE"}, sink.codes())

			alpha := sink.coupons["ALPHA"]
			assert.Equal(t, "7", alpha.Value.String(), "last row in a file wins")
			assert.True(t, alpha.Active)
		})
	}
}

func TestImport_NoFiles(t *testing.T) {
	rep, err := Import(context.Background(), nil, &memorySink{}, Options{})
	require.NoError(t, err)
	assert.Zero(t, rep.Rows)
}

func TestImport_Errors(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		_, err := Import(context.Background(), []string{filepath.Join(t.TempDir(), "nope.gz")}, &memorySink{}, Options{})
		require.Error(t, err)
	})
	t.Run("BadRow", func(t *testing.T) {
		dir := t.TempDir()
		path := writeGz(t, dir, "bad.csv.gz", row("OK", "fixed", "1"), row("BAD", "bogo", "1"))

		_, err := Import(context.Background(), []string{path}, &memorySink{}, Options{})
		var rowErr *RowError
		require.ErrorAs(t, err, &rowErr)
		assert.Equal(t, 3, rowErr.Line)
		assert.ErrorIs(t, err, coupon.ErrUnsupportedType)
	})
	t.Run("SinkFailure", func(t *testing.T) {
		dir := t.TempDir()
		path := writeGz(t, dir, "a.csv.gz", row("ONE", "fixed", "1"))

		_, err := Import(context.Background(), []string{path}, &memorySink{err: errors.New("db down")}, Options{})
		require.ErrorContains(t, err, "db down")
	})
	t.Run("NotGzip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plain.csv")
		require.NoError(t, os.WriteFile(path, []byte(header), 0o600))

		_, err := Import(context.Background(), []string{path}, &memorySink{}, Options{})
		require.Error(t, err)
	})
}

func TestParseRecord(t *testing.T) {
	c, err := ParseRecord(strings.Split(" vip ,Percentage,25,100,40,3,2025-01-01T00:00:00Z,2025-02-01T00:00:00Z", ","))
	require.NoError(t, err)
	assert.Equal(t, "VIP", c.Code)
	assert.Equal(t, coupon.TypePercentage, c.Type)
	assert.Equal(t, "25", c.Value.String())
	assert.Equal(t, "100", c.MinAmount.Decimal.String())
	assert.Equal(t, "40", c.MaxAmount.Decimal.String())
	require.NotNil(t, c.UsageLimit)
	assert.Equal(t, 3, *c.UsageLimit)

	for name, rec := range map[string]string{
		"TooFewFields":  "A,fixed,1",
		"EmptyCode":     " ,fixed,1,,,,2025-01-01T00:00:00Z,2025-02-01T00:00:00Z",
		"BadValue":      "A,fixed,x,,,,2025-01-01T00:00:00Z,2025-02-01T00:00:00Z",
		"NegativeValue": "A,fixed,-1,,,,2025-01-01T00:00:00Z,2025-02-01T00:00:00Z",
		"BadLimit":      "A,fixed,1,,,-2,2025-01-01T00:00:00Z,2025-02-01T00:00:00Z",
		"BadFrom":       "A,fixed,1,,,,soon,2025-02-01T00:00:00Z",
		"Inverted":      "A,fixed,1,,,,2025-03-01T00:00:00Z,2025-02-01T00:00:00Z",
		"BadMin":        "A,fixed,1,abc,,,2025-01-01T00:00:00Z,2025-02-01T00:00:00Z",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRecord(strings.Split(rec, ","))
			assert.Error(t, err)
		})
	}
}
