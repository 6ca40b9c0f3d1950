package loadbalance

import (
	"math/rand/v2"

	"mini-jsonrpc/registry"
)

// WeightedRandomBalancer picks an endpoint with probability proportional to
// its weight. Non-positive weights count as zero; when every weight is zero
// the pick is uniform.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(_ string, eps []registry.Endpoint) (*registry.Endpoint, error) {
	if len(eps) == 0 {
		return nil, ErrNoEndpoints
	}

	total := 0
	for _, ep := range eps {
		total += max(ep.Weight, 0)
	}
	if total == 0 {
		ep := eps[rand.IntN(len(eps))]
		return &ep, nil
	}

	r := rand.IntN(total)
	for _, ep := range eps {
		r -= max(ep.Weight, 0)
		if r < 0 {
			return &ep, nil
		}
	}
	// unreachable: r < total
	ep := eps[len(eps)-1]
	return &ep, nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
