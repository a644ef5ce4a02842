package loadbalance

import (
	"batchexecute/registry"
	"math/rand/v2"
)

// WeightedRandom picks an endpoint with probability proportional to its
// Weight. Endpoints with a weight below 1 count as 1.
type WeightedRandom struct{}

func (b *WeightedRandom) Pick(endpoints []registry.Endpoint, key string) (*registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	total := 0
	for _, ep := range endpoints {
		total += weight(ep)
	}

	r := rand.IntN(total)
	for i := range endpoints {
		r -= weight(endpoints[i])
		if r < 0 {
			return &endpoints[i], nil
		}
	}
	return &endpoints[len(endpoints)-1], nil
}

func weight(ep registry.Endpoint) int {
	if ep.Weight < 1 {
		return 1
	}
	return ep.Weight
}

func (b *WeightedRandom) Name() string {
	return "WeightedRandom"
}
