// Package loadbalance picks the endpoint that receives the next call.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity endpoints
//   - WeightedRandom:  endpoints with different capacity, by Endpoint.Weight
//   - ConsistentHash:  the same key (the method name) keeps going to the same endpoint
package loadbalance

import (
	"errors"
	"fmt"
	"strings"

	"mini-jsonrpc/registry"
)

// ErrNoEndpoints is returned by Pick for an empty endpoint list.
var ErrNoEndpoints = errors.New("loadbalance: no endpoints available")

// Balancer selects one endpoint per call. The client calls Pick before every
// call, so implementations must be goroutine-safe.
type Balancer interface {
	// Pick selects one endpoint from eps. key identifies the call; only
	// key-based strategies look at it.
	Pick(key string, eps []registry.Endpoint) (*registry.Endpoint, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// New returns the balancer for a config name; "" means round robin.
func New(name string) (Balancer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "round_robin", "roundrobin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random", "weightedrandom":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash", "consistenthash":
		return NewConsistentHashBalancer(), nil
	}
	return nil, fmt.Errorf("loadbalance: unknown strategy %q", name)
}
