// Package registry keeps track of the endpoints at which a batchexecute
// service can be reached.
//
// A service is a logical name ("translate"); an endpoint is a concrete
// host/app(/user) triple, or a full URL, serving it. Several endpoints may
// serve the same service, e.g. regional hosts of one app.
package registry

import (
	"context"
	"errors"
)

// ErrNoService is returned by Discover for a service without endpoints.
var ErrNoService = errors.New("registry: no endpoints registered for service")

// Endpoint is one place a service is reachable at.
type Endpoint struct {
	Host   string `json:"host,omitempty"`
	App    string `json:"app,omitempty"`
	User   string `json:"user,omitempty"`
	URL    string `json:"url,omitempty"` // Overrides Host/App/User when set
	Weight int    `json:"weight,omitempty"`
}

// Key identifies an endpoint within its service.
func (e Endpoint) Key() string {
	if e.URL != "" {
		return e.URL
	}
	if e.User != "" {
		return e.Host + "/u/" + e.User + "/" + e.App
	}
	return e.Host + "/" + e.App
}

type Registry interface {
	// Register adds ep under service. ttl is the lease in seconds; the
	// entry disappears if the registrant stops renewing it.
	Register(ctx context.Context, service string, ep Endpoint, ttl int64) error
	Deregister(ctx context.Context, service string, key string) error
	Discover(ctx context.Context, service string) ([]Endpoint, error)
	// Watch emits the full endpoint list on every change until ctx is done.
	Watch(ctx context.Context, service string) <-chan []Endpoint
	Close() error
}
