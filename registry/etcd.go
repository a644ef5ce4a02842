package registry

import (
	"context"
	"encoding/json"
	"net/url"
	"slices"
	"strings"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const etcdPrefix = "/batchexecute/"

// Etcd stores endpoints in etcd under
//
//	/batchexecute/{service}/{escaped endpoint key}
//
// with the JSON-encoded Endpoint as value. Each registration is bound to a
// lease, so an endpoint whose process dies disappears after its TTL.
type Etcd struct {
	client *clientv3.Client
}

// NewEtcd connects to the given etcd endpoints.
func NewEtcd(endpoints []string) (*Etcd, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return &Etcd{client: c}, nil
}

func servicePrefix(service string) string {
	return etcdPrefix + service + "/"
}

func endpointKey(service, key string) string {
	return servicePrefix(service) + url.PathEscape(key)
}

// Register puts ep under a fresh lease and keeps the lease alive until ctx
// is done or the client is closed.
//
// The lease ID stays local so one Etcd may be shared by several servers.
func (r *Etcd) Register(ctx context.Context, service string, ep Endpoint, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(ep)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, endpointKey(service, ep.Key()), string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// Drain keepalive responses so the channel never fills.
	go func() {
		for range ch {
		}
	}()
	return nil
}

func (r *Etcd) Deregister(ctx context.Context, service string, key string) error {
	_, err := r.client.Delete(ctx, endpointKey(service, key))
	return err
}

// Discover returns the endpoints of service ordered by key. Entries that
// do not decode are skipped.
func (r *Etcd) Discover(ctx context.Context, service string) ([]Endpoint, error) {
	resp, err := r.client.Get(ctx, servicePrefix(service), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	eps := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var ep Endpoint
		if err := json.Unmarshal(kv.Value, &ep); err != nil {
			continue
		}
		eps = append(eps, ep)
	}
	if len(eps) == 0 {
		return nil, ErrNoService
	}
	slices.SortFunc(eps, func(a, b Endpoint) int {
		return strings.Compare(a.Key(), b.Key())
	})
	return eps, nil
}

// Watch re-reads the full list on every change under the service prefix.
// An empty list is sent when the last endpoint goes away.
func (r *Etcd) Watch(ctx context.Context, service string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)

	go func() {
		defer close(ch)
		for range r.client.Watch(ctx, servicePrefix(service), clientv3.WithPrefix()) {
			eps, err := r.Discover(ctx, service)
			if err != nil && err != ErrNoService {
				continue
			}
			select {
			case ch <- eps:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

func (r *Etcd) Close() error {
	return r.client.Close()
}
