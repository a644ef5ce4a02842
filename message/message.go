// Package message defines the values exchanged with a batchexecute endpoint.
//
// A Call is the "envelope" for one remote procedure invocation inside a batch.
// A Frame is one RPC result extracted from a response body. Neither type knows
// anything about the wire format; the codec package owns that.
package message

import (
	"bytes"
	"encoding/json"
)

// Call carries one RPC invocation.
//
//   - RPCID is the opaque remote procedure identifier, e.g. "jQ1olc".
//   - Args are positional arguments, serialized as a compact JSON array.
//     Args must be non-nil; use []any{} for a call without arguments.
type Call struct {
	RPCID string
	Args  []any
}

// NewCall is a shorthand for building a Call from variadic args.
func NewCall(rpcID string, args ...any) Call {
	if args == nil {
		args = []any{}
	}
	return Call{RPCID: rpcID, Args: args}
}

// Frame is one decoded RPC result.
type Frame struct {
	Index   int             // 1-based position of the call within its batch
	RPCID   string          // Echoed rpc id of the call this frame answers
	Payload json.RawMessage // Compact JSON result; nil marks a failed call
}

// Unmarshal decodes the payload into v.
func (f Frame) Unmarshal(v any) error {
	return json.Unmarshal(f.Payload, v)
}

// Value returns the payload as a generic JSON value.
func (f Frame) Value() (any, error) {
	var v any
	if err := json.Unmarshal(f.Payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// IsEmpty reports whether the payload is the empty array.
func (f Frame) IsEmpty() bool {
	return bytes.Equal(bytes.TrimSpace(f.Payload), []byte("[]"))
}

// Batch is the unit that travels through a middleware chain: all calls
// of one HTTP request, addressed to a named service.
type Batch struct {
	Service string
	Calls   []Call
}

// RPCIDs returns the rpc ids of the batch in call order.
func (b *Batch) RPCIDs() []string {
	ids := make([]string, len(b.Calls))
	for i, c := range b.Calls {
		ids[i] = c.RPCID
	}
	return ids
}
