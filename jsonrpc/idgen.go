package jsonrpc

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator hands out ids for new calls. Implementations must be safe for
// concurrent use and must not repeat an id while it may still be outstanding.
type IDGenerator interface {
	Next() ID
}

// NumberIDGenerator yields 1, 2, 3, ...
type NumberIDGenerator struct {
	counter atomic.Int64
}

func (g *NumberIDGenerator) Next() ID {
	return NumberID(g.counter.Add(1))
}

// ULIDGenerator yields monotonic ULID strings, which stay unique across
// processes sharing one peer.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (g *ULIDGenerator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return StringID(ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String())
}
