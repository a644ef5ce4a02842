package loadbalance

import (
	"batchexecute/registry"
	"fmt"
	"hash/crc32"
	"slices"
	"sort"
	"strings"
	"sync"
)

// ConsistentHash maps keys to endpoints on a hash ring with virtual
// nodes. The ring is rebuilt whenever Pick sees a different endpoint set.
type ConsistentHash struct {
	replicas int

	mu    sync.Mutex
	sig   string                        // Sorted endpoint keys the ring was built from
	ring  []uint32                      // Sorted virtual node hashes
	nodes map[uint32]*registry.Endpoint // Hash -> endpoint
}

// NewConsistentHash creates a balancer with 100 virtual nodes per endpoint.
func NewConsistentHash() *ConsistentHash {
	return &ConsistentHash{
		replicas: 100,
		nodes:    make(map[uint32]*registry.Endpoint),
	}
}

func signature(endpoints []registry.Endpoint) string {
	keys := make([]string, len(endpoints))
	for i, ep := range endpoints {
		keys[i] = ep.Key()
	}
	slices.Sort(keys)
	return strings.Join(keys, "\x00")
}

// rebuild places every endpoint on the ring. Caller holds mu.
func (b *ConsistentHash) rebuild(endpoints []registry.Endpoint, sig string) {
	b.ring = b.ring[:0]
	clear(b.nodes)
	for i := range endpoints {
		ep := endpoints[i]
		for j := 0; j < b.replicas; j++ {
			h := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", ep.Key(), j)))
			b.ring = append(b.ring, h)
			b.nodes[h] = &ep
		}
	}
	slices.Sort(b.ring)
	b.sig = sig
}

// Pick returns the endpoint owning the first ring position at or after
// the hash of key, wrapping around at the end of the ring.
func (b *ConsistentHash) Pick(endpoints []registry.Endpoint, key string) (*registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if sig := signature(endpoints); sig != b.sig {
		b.rebuild(endpoints, sig)
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

func (b *ConsistentHash) Name() string {
	return "ConsistentHash"
}
