package codec

import (
	"batchexecute/message"
	"batchexecute/protocol"
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Status written at [5] of a result command whose call failed.
const failedCallStatus = 3

// EncodeResponse renders frames as a response body in the rt format.
// It is the inverse of Decode and is what a batchexecute server writes.
// A frame with a nil Payload is written as a failed call.
func EncodeResponse(frames []message.Frame, rt ResponseType) ([]byte, error) {
	entries := make([]any, len(frames))
	for i, f := range frames {
		token := genericToken
		if len(frames) > 1 {
			token = strconv.Itoa(f.Index)
		}
		if f.Payload == nil {
			entries[i] = []any{rpcResultTag, f.RPCID, nil, nil, nil, []int{failedCallStatus}, token}
			continue
		}
		var payload bytes.Buffer
		if err := json.Compact(&payload, f.Payload); err != nil {
			return nil, fmt.Errorf("frame %d (%s): payload is not valid JSON: %w", i+1, f.RPCID, err)
		}
		entries[i] = []any{rpcResultTag, f.RPCID, payload.String() + "\n", nil, nil, nil, token}
	}

	var buf bytes.Buffer
	if err := protocol.WritePrefix(&buf); err != nil {
		return nil, err
	}

	switch rt {
	case ResponseTypeCompressed:
		for i, e := range entries {
			chunk, err := compactJSON([]any{e, []any{"di", i + 1}, []any{"af.httprm", i + 1, "0", len(frames)}})
			if err != nil {
				return nil, err
			}
			if err := protocol.WriteChunk(&buf, []byte(chunk)); err != nil {
				return nil, err
			}
		}
		tail, err := compactJSON([]any{[]any{"e", len(entries) + 1, nil, nil, buf.Len()}})
		if err != nil {
			return nil, err
		}
		if err := protocol.WriteChunk(&buf, []byte(tail)); err != nil {
			return nil, err
		}
	case ResponseTypeDefault:
		cmds := append(entries, []any{"di", len(frames)}, []any{"af.httprm", len(frames), "0", len(frames)})
		cmds = append(cmds, []any{"e", len(cmds) + 1, nil, nil, buf.Len()})
		body, err := compactJSON(cmds)
		if err != nil {
			return nil, err
		}
		buf.WriteString(body)
		buf.WriteByte('\n')
	default:
		return nil, &DecodeError{Kind: ErrUnsupportedResponseType, Want: `"c" or none`, Got: fmt.Sprintf("%q", string(rt))}
	}
	return buf.Bytes(), nil
}

// Envelope is one call as found in an f.req form value.
type Envelope struct {
	RPCID string
	Args  json.RawMessage // The args JSON, already unwrapped from its string
	Token string          // "generic" or the 1-based position as a string
}

// Index returns the 1-based position the envelope's token designates.
func (e Envelope) Index() (int, error) {
	if e.Token == genericToken || e.Token == "" {
		return 1, nil
	}
	i, err := strconv.Atoi(e.Token)
	if err != nil || i < 1 {
		return 0, fmt.Errorf("%w: envelope %s: bad index token %q", ErrInvalidCall, e.RPCID, e.Token)
	}
	return i, nil
}

// ParseRequest parses an f.req value back into envelopes.
func ParseRequest(freq string) ([]Envelope, error) {
	var outer [][]json.RawMessage
	if err := json.Unmarshal([]byte(freq), &outer); err != nil {
		return nil, fmt.Errorf("%w: f.req is not [[envelope, ...]]: %v", ErrInvalidCall, err)
	}
	if len(outer) == 0 || len(outer[0]) == 0 {
		return nil, fmt.Errorf("%w: f.req holds no envelopes", ErrInvalidCall)
	}

	envelopes := make([]Envelope, 0, len(outer[0]))
	for i, raw := range outer[0] {
		var fields []json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil || len(fields) < 2 {
			return nil, fmt.Errorf("%w: envelope %d is not an array of at least 2 elements", ErrInvalidCall, i+1)
		}
		var env Envelope
		if err := json.Unmarshal(fields[0], &env.RPCID); err != nil || env.RPCID == "" {
			return nil, fmt.Errorf("%w: envelope %d: 'rpcid' must be a non-empty string", ErrInvalidCall, i+1)
		}
		var args string
		if err := json.Unmarshal(fields[1], &args); err != nil || !json.Valid([]byte(args)) {
			return nil, fmt.Errorf("%w: envelope %d (%s): args must be a JSON string", ErrInvalidCall, i+1, env.RPCID)
		}
		env.Args = json.RawMessage(args)
		if len(fields) > 3 {
			if err := json.Unmarshal(fields[3], &env.Token); err != nil {
				return nil, fmt.Errorf("%w: envelope %d (%s): index token must be a string", ErrInvalidCall, i+1, env.RPCID)
			}
		}
		envelopes = append(envelopes, env)
	}
	return envelopes, nil
}
