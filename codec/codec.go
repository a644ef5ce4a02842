// Package codec converts batches of RPC calls to batchexecute requests and
// batchexecute response bodies back to RPC results.
//
// Encode and Decode are pure: they never touch the network and are safe to
// call concurrently on independent inputs.
package codec

import (
	"batchexecute/message"
	"fmt"
)

// ResponseType is the value of the rt query parameter. It selects the
// response wire format.
type ResponseType string

const (
	ResponseTypeDefault    ResponseType = ""  // rt omitted: one flat JSON array
	ResponseTypeCompressed ResponseType = "c" // rt=c: length-framed chunks
)

// Decoder decodes one response sub-format.
type Decoder interface {
	Decode(raw string, opts DecodeOptions) ([]message.Frame, error)
	Type() ResponseType
}

// GetDecoder returns the decoder for rt.
func GetDecoder(rt ResponseType) (Decoder, error) {
	switch rt {
	case ResponseTypeCompressed:
		return &CompressedDecoder{}, nil
	case ResponseTypeDefault:
		return &DefaultDecoder{}, nil
	}
	return nil, &DecodeError{Kind: ErrUnsupportedResponseType, Want: `"c" or none`, Got: fmt.Sprintf("%q", string(rt))}
}
