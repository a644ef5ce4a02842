// Package client sends batches of RPC calls to a batchexecute service.
//
// A Call goes through: registry lookup, balancer pick, codec.Encode, the
// transport round trip and codec.Decode. The middleware chain wraps the
// whole sequence, so a middleware sees the batch before any endpoint is
// chosen and the decoded frames afterwards.
package client

import (
	"batchexecute/codec"
	"batchexecute/loadbalance"
	"batchexecute/message"
	"batchexecute/middleware"
	"batchexecute/registry"
	"batchexecute/transport"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"slices"
	"strings"
	"sync/atomic"
)

type Client struct {
	registry  registry.Registry
	balancer  loadbalance.Balancer
	transport transport.Transport
	logger    *slog.Logger

	responseType codec.ResponseType
	strict       bool
	profile      codec.Profile
	params       map[string]string
	body         map[string]string
	headers      map[string]string

	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc

	requestID int          // Base shared by all requests of this client
	sequence  atomic.Int64 // Number of requests sent so far
}

type Option func(*Client)

// WithResponseType selects the response format; the default is "c".
func WithResponseType(rt codec.ResponseType) Option {
	return func(c *Client) { c.responseType = rt }
}

// WithStrict turns strict decoding on or off; it is on by default.
func WithStrict(strict bool) Option {
	return func(c *Client) { c.strict = strict }
}

func WithProfile(p codec.Profile) Option {
	return func(c *Client) { c.profile = p }
}

// WithRequestID fixes the request id base instead of drawing one.
func WithRequestID(id int) Option {
	return func(c *Client) { c.requestID = id }
}

func WithParams(params map[string]string) Option {
	return func(c *Client) { c.params = maps.Clone(params) }
}

// WithBody sets extra form fields, e.g. the "at" token of a session.
func WithBody(body map[string]string) Option {
	return func(c *Client) { c.body = maps.Clone(body) }
}

func WithHeaders(headers map[string]string) Option {
	return func(c *Client) { c.headers = maps.Clone(headers) }
}

func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(c *Client) { c.middlewares = append(c.middlewares, mws...) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client. A nil transport means transport.NewHTTP(nil).
func New(reg registry.Registry, bal loadbalance.Balancer, tr transport.Transport, opts ...Option) (*Client, error) {
	if reg == nil || bal == nil {
		return nil, errors.New("client: registry and balancer are required")
	}
	if tr == nil {
		tr = transport.NewHTTP(nil)
	}
	c := &Client{
		registry:     reg,
		balancer:     bal,
		transport:    tr,
		logger:       slog.Default(),
		responseType: codec.ResponseTypeCompressed,
		strict:       true,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "client"))

	lo, hi := c.profile.Range()
	if c.requestID == 0 {
		c.requestID = lo + rand.IntN(hi-lo+1)
	} else if c.requestID < lo || c.requestID > hi {
		return nil, fmt.Errorf("%w: request id %d outside %d-%d", codec.ErrInvalidConfig, c.requestID, lo, hi)
	}

	c.handler = middleware.Chain(c.middlewares...)(c.execute)
	return c, nil
}

// Call sends calls as one batch to service and returns the frames ordered
// by index.
func (c *Client) Call(ctx context.Context, service string, calls ...message.Call) ([]message.Frame, error) {
	return c.handler(ctx, &message.Batch{Service: service, Calls: calls})
}

// Invoke sends a single call and decodes its payload into reply.
func (c *Client) Invoke(ctx context.Context, service, rpcID string, reply any, args ...any) error {
	frames, err := c.Call(ctx, service, message.NewCall(rpcID, args...))
	if err != nil {
		return err
	}
	if reply == nil {
		return nil
	}
	if err := frames[0].Unmarshal(reply); err != nil {
		return fmt.Errorf("unmarshal %s: %w", rpcID, err)
	}
	return nil
}

func (c *Client) execute(ctx context.Context, batch *message.Batch) ([]message.Frame, error) {
	endpoints, err := c.registry.Discover(ctx, batch.Service)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", batch.Service, err)
	}

	ids := batch.RPCIDs()
	key := slices.Clone(ids)
	slices.Sort(key)
	ep, err := c.balancer.Pick(endpoints, strings.Join(key, ","))
	if err != nil {
		return nil, fmt.Errorf("pick %s: %w", batch.Service, err)
	}

	seq := int(c.sequence.Add(1) - 1)
	req, err := codec.Encode(batch.Calls, codec.Config{
		Host:         ep.Host,
		App:          ep.App,
		User:         ep.User,
		URL:          ep.URL,
		RequestID:    c.requestID,
		Sequence:     seq,
		ResponseType: c.responseType,
		Profile:      c.profile,
		Params:       c.params,
		Body:         c.body,
		Headers:      c.headers,
	})
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	c.logger.DebugContext(ctx, "sending batch",
		slog.String("endpoint", ep.Key()),
		slog.String("rpcids", req.Query[codec.ParamRPCIDs]),
		slog.String("reqid", req.Query[codec.ParamRequestID]))

	raw, err := c.transport.RoundTrip(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("transport %s: %w", ep.Key(), err)
	}

	frames, err := codec.Decode(raw, req.ResponseType, codec.DecodeOptions{
		Strict:         c.strict,
		ExpectedRPCIDs: req.RPCIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return frames, nil
}
