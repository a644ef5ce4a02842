// Package loadbalance picks the endpoint a batch is sent to.
//
// Three strategies are implemented:
//   - RoundRobin:      endpoints of equal capacity
//   - WeightedRandom:  endpoints with different capacity (Endpoint.Weight)
//   - ConsistentHash:  the same set of rpc ids always goes to the same endpoint
package loadbalance

import (
	"batchexecute/registry"
	"errors"
)

var ErrNoEndpoints = errors.New("loadbalance: no endpoints available")

// Balancer selects one endpoint per batch. Implementations are safe for
// concurrent use.
type Balancer interface {
	// Pick selects one of endpoints. key identifies the batch (the client
	// passes its sorted, comma-joined rpc ids); strategies may ignore it.
	Pick(endpoints []registry.Endpoint, key string) (*registry.Endpoint, error)

	Name() string
}

// New returns the balancer registered under name, falling back to
// round robin for an empty name.
func New(name string) (Balancer, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobin{}, nil
	case "weighted_random":
		return &WeightedRandom{}, nil
	case "consistent_hash":
		return NewConsistentHash(), nil
	}
	return nil, errors.New("loadbalance: unknown strategy " + name)
}
