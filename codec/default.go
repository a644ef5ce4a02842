package codec

import (
	"batchexecute/message"
	"batchexecute/protocol"
	"encoding/json"
)

// DefaultDecoder decodes responses sent without rt: after the prefix line
// the body is one JSON array whose elements are commands. Each RPC result
// command yields a frame; every other command is skipped on its own.
type DefaultDecoder struct{}

func (d *DefaultDecoder) Decode(raw string, opts DecodeOptions) ([]message.Frame, error) {
	body := protocol.StripPrefix(raw)
	if body == "" {
		return finish(nil, opts)
	}

	var cmds []json.RawMessage
	if err := json.Unmarshal([]byte(body), &cmds); err != nil {
		return nil, &DecodeError{Kind: ErrMalformedResponse, Err: err}
	}

	var frames []message.Frame
	for _, cmd := range cmds {
		if !isArray(cmd) {
			continue
		}
		frame, ok, err := parseEntry(cmd, len(frames)+1)
		if err != nil {
			return nil, err
		}
		if ok {
			frames = append(frames, frame)
		}
	}
	return finish(frames, opts)
}

func (d *DefaultDecoder) Type() ResponseType {
	return ResponseTypeDefault
}
