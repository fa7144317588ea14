// Package idempotency deduplicates retried order creation requests by key.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// ErrInFlight is returned by Reserve while another request holds the key.
var ErrInFlight = errors.New("request with this idempotency key is in progress")

// ErrKeyReused is returned by Reserve when the key was first used for a
// request with a different fingerprint.
var ErrKeyReused = errors.New("idempotency key was used for a different request")

// Response is a completed response stored under a key.
type Response struct {
	Status int
	// Body is the JSON response body.
	Body []byte
	// Fingerprint identifies the request that produced the response.
	Fingerprint string
}

// Guard reserves keys for the duration of a request and remembers outcomes.
type Guard interface {
	// Reserve claims key for the request identified by fingerprint. It
	// returns (nil, nil) when the caller now owns the key, the stored
	// Response when the same request already completed, ErrInFlight when
	// the same request is still running and ErrKeyReused when the key
	// belongs to another request.
	Reserve(ctx context.Context, key, fingerprint string) (*Response, error)
	// Complete stores the response for a reserved key.
	Complete(ctx context.Context, key string, resp Response) error
	// Release drops a reservation so the request can be retried.
	Release(ctx context.Context, key string) error
}

// Fingerprint hashes request fields into a stable request identity.
func Fingerprint(fields ...string) string {
	h := sha256.New()
	for _, f := range fields {
		_, _ = io.WriteString(h, f)
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

const pendingMarker = "pending"

func encodeResponse(resp Response) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	e.Int(resp.Status)
	if resp.Fingerprint != "" {
		e.FieldStart("fingerprint")
		e.Str(resp.Fingerprint)
	}
	e.FieldStart("body")
	if len(resp.Body) == 0 {
		e.Null()
	} else {
		e.Raw(resp.Body)
	}
	e.ObjEnd()
	return e.Bytes()
}

func decodeResponse(data []byte) (*Response, error) {
	var resp Response
	d := jx.DecodeBytes(data)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "status":
			n, err := d.Int()
			resp.Status = n
			return err
		case "fingerprint":
			v, err := d.Str()
			resp.Fingerprint = v
			return err
		case "body":
			raw, err := d.Raw()
			if err != nil {
				return err
			}
			if raw.Type() != jx.Null {
				resp.Body = append([]byte(nil), raw...)
			}
			return nil
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode stored response")
	}
	return &resp, nil
}

// MemoryGuard is a process-local Guard for single-instance deployments.
type MemoryGuard struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	keys  map[string]memoryEntry
	swept time.Time
}

type memoryEntry struct {
	fingerprint string
	resp        *Response
	expires     time.Time
}

var _ Guard = (*MemoryGuard)(nil)

// NewMemoryGuard creates a MemoryGuard whose entries live for ttl.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	return &MemoryGuard{ttl: ttl, now: time.Now, keys: make(map[string]memoryEntry)}
}

func (g *MemoryGuard) Reserve(_ context.Context, key, fingerprint string) (*Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.sweep(now)
	if e, ok := g.keys[key]; ok && now.Before(e.expires) {
		switch {
		case e.fingerprint != fingerprint:
			return nil, ErrKeyReused
		case e.resp == nil:
			return nil, ErrInFlight
		}
		resp := *e.resp
		return &resp, nil
	}
	g.keys[key] = memoryEntry{fingerprint: fingerprint, expires: now.Add(g.ttl)}
	return nil, nil
}

// sweep drops expired entries, at most once per ttl. Callers hold g.mu.
func (g *MemoryGuard) sweep(now time.Time) {
	if now.Sub(g.swept) < g.ttl {
		return
	}
	g.swept = now
	for k, e := range g.keys {
		if !now.Before(e.expires) {
			delete(g.keys, k)
		}
	}
}

// size returns the number of stored keys, expired or not.
func (g *MemoryGuard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.keys)
}

func (g *MemoryGuard) Complete(_ context.Context, key string, resp Response) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keys[key] = memoryEntry{fingerprint: resp.Fingerprint, resp: &resp, expires: g.now().Add(g.ttl)}
	return nil
}

func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	return nil
}
