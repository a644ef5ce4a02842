package codec

import (
	"errors"
	"fmt"
	"strings"
)

// Encode-time errors. They always describe a programmer error: fix the
// inputs, do not retry.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrInvalidCall   = errors.New("invalid call")
	ErrMissingKey    = errors.New("missing required key")
)

// Decode-time error kinds, carried by *DecodeError.
var (
	ErrNoFramesDecoded         = errors.New("no frames decoded")
	ErrInvalidFramePayload     = errors.New("invalid frame payload")
	ErrEmptyFrame              = errors.New("empty frame")
	ErrCountMismatch           = errors.New("frame count mismatch")
	ErrRPCIDMismatch           = errors.New("rpc id mismatch")
	ErrUnsupportedResponseType = errors.New("unsupported response type")
	ErrMalformedResponse       = errors.New("malformed response")
)

// DecodeError reports why a response could not be decoded.
// Use errors.Is with one of the Err* kinds to classify it.
type DecodeError struct {
	Kind  error
	Frame int    // 1-based discovery position of the offending frame, 0 if none
	RPCID string // rpc id of the offending frame, if known
	Want  string // Expected value for mismatch kinds
	Got   string // Observed value for mismatch kinds
	Err   error  // Underlying cause, e.g. a JSON syntax error
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString("batchexecute: ")
	b.WriteString(e.Kind.Error())
	if e.Frame > 0 {
		fmt.Fprintf(&b, ": frame %d", e.Frame)
		if e.RPCID != "" {
			fmt.Fprintf(&b, " (%s)", e.RPCID)
		}
	}
	if e.Want != "" || e.Got != "" {
		fmt.Fprintf(&b, ": expected %s, got %s", e.Want, e.Got)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
