package registry

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// Static is an in-memory Registry. Leases are not enforced: entries live
// until they are deregistered.
type Static struct {
	mu       sync.RWMutex
	services map[string]map[string]Endpoint
	watchers map[string][]chan []Endpoint
}

// NewStatic creates a Static registry holding eps under service.
func NewStatic(service string, eps ...Endpoint) *Static {
	r := &Static{
		services: make(map[string]map[string]Endpoint),
		watchers: make(map[string][]chan []Endpoint),
	}
	for _, ep := range eps {
		r.put(service, ep)
	}
	return r
}

func (r *Static) put(service string, ep Endpoint) {
	m, ok := r.services[service]
	if !ok {
		m = make(map[string]Endpoint)
		r.services[service] = m
	}
	m[ep.Key()] = ep
}

func (r *Static) Register(ctx context.Context, service string, ep Endpoint, ttl int64) error {
	r.mu.Lock()
	r.put(service, ep)
	r.mu.Unlock()
	r.notify(service)
	return nil
}

func (r *Static) Deregister(ctx context.Context, service string, key string) error {
	r.mu.Lock()
	delete(r.services[service], key)
	r.mu.Unlock()
	r.notify(service)
	return nil
}

// Discover returns the endpoints of service ordered by key.
func (r *Static) Discover(ctx context.Context, service string) ([]Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot(service)
}

func (r *Static) snapshot(service string) ([]Endpoint, error) {
	m := r.services[service]
	if len(m) == 0 {
		return nil, ErrNoService
	}
	eps := make([]Endpoint, 0, len(m))
	for _, ep := range m {
		eps = append(eps, ep)
	}
	slices.SortFunc(eps, func(a, b Endpoint) int {
		return strings.Compare(a.Key(), b.Key())
	})
	return eps, nil
}

func (r *Static) Watch(ctx context.Context, service string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)
	r.mu.Lock()
	r.watchers[service] = append(r.watchers[service], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		ws := r.watchers[service]
		if i := slices.Index(ws, ch); i >= 0 {
			r.watchers[service] = slices.Delete(ws, i, i+1)
			close(ch)
		}
	}()
	return ch
}

// notify pushes the current list to every watcher, replacing an unread
// older list rather than blocking.
func (r *Static) notify(service string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	eps, _ := r.snapshot(service)
	for _, ch := range r.watchers[service] {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- eps:
		default:
		}
	}
}

// Close stops all watchers.
func (r *Static) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for service, ws := range r.watchers {
		for _, ch := range ws {
			close(ch)
		}
		delete(r.watchers, service)
	}
	return nil
}
