package transport

import (
	"batchexecute/codec"
	"context"
)

// Pool bounds the number of round trips in flight on a Transport.
//
// The buffered channel holds one token per slot; a caller blocks on an
// empty pool until a slot is returned or its context is done.
type Pool struct {
	next  Transport
	slots chan struct{}
}

// NewPool wraps next with at most size concurrent round trips.
func NewPool(next Transport, size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{next: next, slots: make(chan struct{}, size)}
	for i := 0; i < size; i++ {
		p.slots <- struct{}{}
	}
	return p
}

func (p *Pool) RoundTrip(ctx context.Context, req *codec.PreparedRequest) (string, error) {
	select {
	case <-p.slots:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { p.slots <- struct{}{} }()
	return p.next.RoundTrip(ctx, req)
}

// Idle returns the number of free slots.
func (p *Pool) Idle() int {
	return len(p.slots)
}
