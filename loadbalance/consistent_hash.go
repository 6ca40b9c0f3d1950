package loadbalance

import (
	"fmt"
	"hash/crc32"
	"slices"
	"sort"
	"strings"
	"sync"

	"mini-jsonrpc/registry"
)

// ConsistentHashBalancer maps keys to endpoints on a hash ring. The same key
// keeps mapping to the same endpoint until the endpoint set changes, and a
// change only moves the keys owned by the endpoints that came or went.
//
// Each endpoint is placed on the ring as many virtual nodes so that a few
// endpoints do not cluster together and split the load unevenly.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
type ConsistentHashBalancer struct {
	replicas int // Virtual nodes per endpoint

	mu        sync.Mutex
	signature string                        // endpoint set the ring was built from
	ring      []uint32                      // Sorted hash values on the ring
	nodes     map[uint32]*registry.Endpoint // Hash value → endpoint
}

// NewConsistentHashBalancer creates a ring with 100 virtual nodes per endpoint.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]*registry.Endpoint),
	}
}

// Pick hashes key and walks clockwise to the first virtual node, wrapping
// around past the largest hash.
func (b *ConsistentHashBalancer) Pick(key string, eps []registry.Endpoint) (*registry.Endpoint, error) {
	if len(eps) == 0 {
		return nil, ErrNoEndpoints
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if sig := signature(eps); sig != b.signature {
		b.rebuildLocked(eps, sig)
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	ep := *b.nodes[b.ring[idx]]
	return &ep, nil
}

// rebuildLocked places eps on a fresh ring.
func (b *ConsistentHashBalancer) rebuildLocked(eps []registry.Endpoint, sig string) {
	b.ring = b.ring[:0]
	clear(b.nodes)
	for i := range eps {
		ep := eps[i]
		for v := 0; v < b.replicas; v++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", ep.Addr, v)))
			if _, taken := b.nodes[hash]; taken {
				continue
			}
			b.ring = append(b.ring, hash)
			b.nodes[hash] = &ep
		}
	}
	slices.Sort(b.ring)
	b.signature = sig
}

func signature(eps []registry.Endpoint) string {
	addrs := make([]string, len(eps))
	for i, ep := range eps {
		addrs[i] = ep.Addr
	}
	slices.Sort(addrs)
	return strings.Join(addrs, ",")
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
