// Package ingest bulk-imports promotion coupons from gzipped CSV files.
package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/sourcemart/internal/domain/coupon"
)

// Columns is the expected CSV layout. A header row with these names is skipped.
var Columns = []string{
	"code", "type", "value", "min_amount", "max_amount", "usage_limit", "valid_from", "valid_until",
}

// RowError reports a malformed CSV row.
type RowError struct {
	Path string
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return e.Path + ":" + strconv.Itoa(e.Line) + ": " + e.Err.Error()
}

func (e *RowError) Unwrap() error { return e.Err }

// ParseRecord converts one CSV record into an active coupon.
func ParseRecord(rec []string) (coupon.Coupon, error) {
	if len(rec) != len(Columns) {
		return coupon.Coupon{}, errors.Errorf("want %d fields, got %d", len(Columns), len(rec))
	}
	field := func(i int) string { return strings.TrimSpace(rec[i]) }

	c := coupon.Coupon{
		Code:   coupon.NormalizeCode(rec[0]),
		Type:   coupon.Type(strings.ToLower(field(1))),
		Active: true,
	}
	if c.Code == "" {
		return c, errors.New("empty code")
	}
	if !c.Type.Valid() {
		return c, errors.Wrapf(coupon.ErrUnsupportedType, "%q", c.Type)
	}

	var err error
	if c.Value, err = decimal.NewFromString(field(2)); err != nil {
		return c, errors.Wrap(err, "value")
	}
	if c.Value.IsNegative() {
		return c, errors.New("value: negative")
	}
	if c.MinAmount, err = nullDecimal(field(3)); err != nil {
		return c, errors.Wrap(err, "min_amount")
	}
	if c.MaxAmount, err = nullDecimal(field(4)); err != nil {
		return c, errors.Wrap(err, "max_amount")
	}
	if s := field(5); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return c, errors.Errorf("usage_limit: invalid %q", s)
		}
		c.UsageLimit = &n
	}
	if c.ValidFrom, err = time.Parse(time.RFC3339, field(6)); err != nil {
		return c, errors.Wrap(err, "valid_from")
	}
	if c.ValidUntil, err = time.Parse(time.RFC3339, field(7)); err != nil {
		return c, errors.Wrap(err, "valid_until")
	}
	if c.ValidUntil.Before(c.ValidFrom) {
		return c, errors.New("valid_until before valid_from")
	}
	return c, nil
}

func nullDecimal(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// streamFile opens a gzip-compressed CSV file and calls fn for each coupon.
func streamFile(ctx context.Context, path string, fn func(c coupon.Coupon) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	return streamCSV(ctx, path, gz, fn)
}

func streamCSV(ctx context.Context, path string, r io.Reader, fn func(c coupon.Coupon) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), Columns[0]) {
			continue
		}

		c, err := ParseRecord(rec)
		if err != nil {
			return &RowError{Path: path, Line: line, Err: err}
		}
		if err := fn(c); err != nil {
			return err
		}
	}
}
