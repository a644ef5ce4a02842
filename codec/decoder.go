package codec

import (
	"batchexecute/message"
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"

	"github.com/buger/jsonparser"
)

// rpcResultTag marks a command array that carries an RPC result:
//
//	["wrb.fr", "jQ1olc", "[\"abc\"]\n", null, null, null, "generic"]
//	 [0] tag   [1] rpcid [2] result as JSON string         [6] index
const rpcResultTag = "wrb.fr"

// DecodeOptions controls post-processing of decoded frames.
type DecodeOptions struct {
	// Strict rejects empty-array payloads and requires the decoded frames
	// to match ExpectedRPCIDs in count and in set of ids.
	Strict         bool
	ExpectedRPCIDs []string
}

// Decode parses raw with the decoder selected by rt.
func Decode(raw string, rt ResponseType, opts DecodeOptions) ([]message.Frame, error) {
	d, err := GetDecoder(rt)
	if err != nil {
		return nil, err
	}
	return d.Decode(raw, opts)
}

// parseEntry inspects one command array. It reports ok=false for commands
// that are not RPC results (diagnostics, telemetry, error markers).
// pos is the 1-based discovery position the entry would take.
func parseEntry(cmd []byte, pos int) (frame message.Frame, ok bool, err error) {
	tag, err := jsonparser.GetString(cmd, "[0]")
	if err != nil || tag != rpcResultTag {
		return message.Frame{}, false, nil
	}

	rpcID, err := jsonparser.GetString(cmd, "[1]")
	if err != nil {
		return message.Frame{}, false, &DecodeError{Kind: ErrMalformedResponse, Frame: pos, Err: fmt.Errorf("rpc id: %w", err)}
	}

	payload, err := parsePayload(cmd)
	if err != nil {
		return message.Frame{}, false, &DecodeError{Kind: ErrInvalidFramePayload, Frame: pos, RPCID: rpcID, Err: err}
	}

	index, err := parseIndex(cmd)
	if err != nil {
		return message.Frame{}, false, &DecodeError{Kind: ErrMalformedResponse, Frame: pos, RPCID: rpcID, Err: err}
	}

	return message.Frame{Index: index, RPCID: rpcID, Payload: payload}, true, nil
}

// parsePayload unwraps the JSON document nested as a string at [2].
func parsePayload(cmd []byte) (json.RawMessage, error) {
	value, typ, _, err := jsonparser.Get(cmd, "[2]")
	if err != nil && typ != jsonparser.NotExist {
		return nil, err
	}
	if typ != jsonparser.String {
		return nil, fmt.Errorf("payload is %v, not a JSON string", typ)
	}
	s, err := jsonparser.ParseString(value)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return nil, fmt.Errorf("data is not a valid JSON string: %w", err)
	}
	return json.RawMessage(buf.Bytes()), nil
}

// parseIndex normalizes [6]: "generic" is 1, decimal strings and JSON
// integers are taken as-is and must be >= 1.
func parseIndex(cmd []byte) (int, error) {
	value, typ, _, err := jsonparser.Get(cmd, "[6]")
	if err != nil && typ != jsonparser.NotExist {
		return 0, err
	}

	var raw string
	switch typ {
	case jsonparser.String:
		s, err := jsonparser.ParseString(value)
		if err != nil {
			return 0, err
		}
		if s == genericToken {
			return 1, nil
		}
		raw = s
	case jsonparser.Number:
		raw = string(value)
	default:
		return 0, fmt.Errorf("index is %v, want %q or an integer", typ, genericToken)
	}

	index, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("index %q is not an integer", raw)
	}
	if index < 1 {
		return 0, fmt.Errorf("index %d is not 1-based", index)
	}
	return index, nil
}

// finish applies the checks shared by both sub-formats and sorts frames
// by index.
func finish(frames []message.Frame, opts DecodeOptions) ([]message.Frame, error) {
	if len(frames) == 0 {
		return nil, &DecodeError{Kind: ErrNoFramesDecoded, Err: fmt.Errorf("check the format of the response")}
	}

	if opts.Strict {
		for i, f := range frames {
			if f.IsEmpty() {
				return nil, &DecodeError{Kind: ErrEmptyFrame, Frame: i + 1, RPCID: f.RPCID}
			}
		}

		if len(frames) != len(opts.ExpectedRPCIDs) {
			return nil, &DecodeError{
				Kind: ErrCountMismatch,
				Want: strconv.Itoa(len(opts.ExpectedRPCIDs)),
				Got:  strconv.Itoa(len(frames)),
			}
		}

		got := make([]string, len(frames))
		for i, f := range frames {
			got[i] = f.RPCID
		}
		wantSet, gotSet := sortedSet(opts.ExpectedRPCIDs), sortedSet(got)
		if !slices.Equal(wantSet, gotSet) {
			return nil, &DecodeError{
				Kind: ErrRPCIDMismatch,
				Want: fmt.Sprintf("%q", wantSet),
				Got:  fmt.Sprintf("%q", gotSet),
			}
		}
	}

	sort.SliceStable(frames, func(i, j int) bool {
		return frames[i].Index < frames[j].Index
	})
	return frames, nil
}

func sortedSet(ids []string) []string {
	set := distinct(ids)
	sort.Strings(set)
	return set
}

// isArray reports whether a raw JSON value is an array.
func isArray(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == '['
}
