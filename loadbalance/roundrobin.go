package loadbalance

import (
	"batchexecute/registry"
	"sync/atomic"
)

// RoundRobin cycles through the endpoints in order.
type RoundRobin struct {
	counter atomic.Uint64
}

func (b *RoundRobin) Pick(endpoints []registry.Endpoint, key string) (*registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	i := (b.counter.Add(1) - 1) % uint64(len(endpoints))
	return &endpoints[i], nil
}

func (b *RoundRobin) Name() string {
	return "RoundRobin"
}
