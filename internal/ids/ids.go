// Package ids generates note and folder identifiers.
//
// An id is "<unix millis base36>-<sequence base36>-<nonce>". The sequence is
// owned by the generator and only moves forward, so two ids minted in the same
// millisecond still differ. The nonce is fixed per generator and keeps ids
// from two process lifetimes apart when their clocks and sequences line up.
package ids

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// NonceLen is the number of hex characters of the per-generator nonce.
const NonceLen = 8

// Generator mints unique identifiers. The zero value is not usable; use New.
type Generator struct {
	seq   atomic.Uint64
	nonce string
	now   func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the wall clock used for the timestamp segment.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithNonce fixes the nonce segment. Empty values are ignored.
func WithNonce(nonce string) Option {
	return func(g *Generator) {
		if nonce = strings.TrimSpace(nonce); nonce != "" {
			g.nonce = nonce
		}
	}
}

// New creates a generator with a random nonce.
func New(opts ...Option) *Generator {
	g := &Generator{
		nonce: strings.ReplaceAll(uuid.NewString(), "-", "")[:NonceLen],
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next returns a fresh identifier. It is safe for concurrent use.
func (g *Generator) Next() string {
	seq := g.seq.Add(1)
	var b strings.Builder
	b.Grow(24)
	b.WriteString(strconv.FormatInt(g.now().UnixMilli(), 36))
	b.WriteByte('-')
	b.WriteString(strconv.FormatUint(seq, 36))
	b.WriteByte('-')
	b.WriteString(g.nonce)
	return b.String()
}

var (
	defaultOnce sync.Once
	defaultGen  *Generator
)

// Default returns the process-wide generator.
func Default() *Generator {
	defaultOnce.Do(func() {
		defaultGen = New()
	})
	return defaultGen
}
