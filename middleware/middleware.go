// Package middleware wraps batch handlers with cross-cutting behaviour.
// The same chain type serves the client (around the HTTP round trip) and
// the server (around handler dispatch).
package middleware

import (
	"batchexecute/message"
	"context"
)

// HandlerFunc executes a batch and returns one frame per call.
type HandlerFunc func(ctx context.Context, batch *message.Batch) ([]message.Frame, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares; the first one is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
