package order

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"time"
)

const (
	numberPrefix   = "ORD-"
	suffixAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	suffixLen      = 3
)

// NumberFunc produces a human-readable order number.
type NumberFunc func(now time.Time) string

// NewNumber returns an order number of the form ORD-<unix millis>-<XXX>.
// Numbers are not guaranteed unique; callers must handle ErrDuplicateNumber.
func NewNumber(now time.Time) string {
	buf := make([]byte, 0, len(numberPrefix)+20+suffixLen)
	buf = append(buf, numberPrefix...)
	buf = strconv.AppendInt(buf, now.UnixMilli(), 10)
	buf = append(buf, '-')
	limit := big.NewInt(int64(len(suffixAlphabet)))
	for range suffixLen {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			// crypto/rand does not fail on supported platforms.
			panic(err)
		}
		buf = append(buf, suffixAlphabet[n.Int64()])
	}
	return string(buf)
}
