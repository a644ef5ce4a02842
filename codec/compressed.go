package codec

import (
	"batchexecute/message"
	"batchexecute/protocol"
	"encoding/json"
)

// CompressedDecoder decodes rt=c responses: a sequence of length-framed
// chunks, each a JSON array of commands. Only the first command of a chunk
// can be an RPC result; a chunk whose first command is anything else is
// skipped in full.
type CompressedDecoder struct{}

func (d *CompressedDecoder) Decode(raw string, opts DecodeOptions) ([]message.Frame, error) {
	var frames []message.Frame
	for _, chunk := range protocol.SplitChunks(raw) {
		var cmds []json.RawMessage
		if err := json.Unmarshal([]byte(chunk.Body), &cmds); err != nil {
			return nil, &DecodeError{Kind: ErrMalformedResponse, Err: err}
		}
		if len(cmds) == 0 || !isArray(cmds[0]) {
			continue
		}
		frame, ok, err := parseEntry(cmds[0], len(frames)+1)
		if err != nil {
			return nil, err
		}
		if ok {
			frames = append(frames, frame)
		}
	}
	return finish(frames, opts)
}

func (d *CompressedDecoder) Type() ResponseType {
	return ResponseTypeCompressed
}
