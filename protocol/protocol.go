// Package protocol implements the outer framing of batchexecute response bodies.
//
// Every response starts with an anti-hijacking prefix line. With rt=c the rest
// of the body is a sequence of length-framed chunks, each one a JSON array:
//
//	)]}'
//
//	596
//	[["wrb.fr","abc","[\"xyz\"]\n",null,null,null,"generic"]
//	,["di",38]
//	]
//	26
//	[["e",4,null,null,643]
//	]
//
// The declared length is informational. Senders count it in ways that do not
// always match the byte length (UTF-16 units, surrounding newlines), so chunk
// boundaries are found by scanning for a "<digits>\n" line that is immediately
// followed by '['.
package protocol

import (
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Prefix is the anti-hijacking guard that precedes every response body.
const Prefix = ")]}'"

// A chunk boundary: a decimal length and a newline directly before the
// opening bracket of the chunk's JSON array. The length need not start a
// line; valid JSON never contains digits, a raw newline and '[' in a row.
var boundary = regexp.MustCompile(`(\d+)\n\[`)

// Chunk is one length-framed segment of a compressed response.
type Chunk struct {
	Declared int    // Length announced on the wire, -1 if it overflowed int
	Body     string // Raw JSON text, up to the next boundary or end of input
}

// StripPrefix removes the anti-hijacking prefix line and surrounding
// whitespace. Input without the prefix is only trimmed.
func StripPrefix(raw string) string {
	s := strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(s, Prefix); ok {
		s = strings.TrimSpace(rest)
	}
	return s
}

// SplitChunks scans raw for chunk boundaries and returns the chunks in
// order of appearance. Anything before the first boundary (the prefix,
// blank lines) is ignored. Input without any boundary yields no chunks.
func SplitChunks(raw string) []Chunk {
	locs := boundary.FindAllStringSubmatchIndex(raw, -1)
	chunks := make([]Chunk, 0, len(locs))
	for i, loc := range locs {
		// loc[1] points just past '[', the body starts at the bracket
		start := loc[1] - 1
		end := len(raw)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		declared, err := strconv.Atoi(raw[loc[2]:loc[3]])
		if err != nil {
			declared = -1
		}
		chunks = append(chunks, Chunk{
			Declared: declared,
			Body:     strings.TrimSpace(raw[start:end]),
		})
	}
	return chunks
}

// WriteChunk writes one length-framed chunk to w. A trailing newline is
// appended to body when missing so the next length line starts a new line;
// the declared length covers the body including that newline.
func WriteChunk(w io.Writer, body []byte) error {
	if len(body) == 0 || body[len(body)-1] != '\n' {
		body = append(body[:len(body):len(body)], '\n')
	}
	if _, err := io.WriteString(w, strconv.Itoa(len(body))+"\n"); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	return nil
}

// WritePrefix writes the anti-hijacking prefix followed by a blank line.
func WritePrefix(w io.Writer) error {
	_, err := io.WriteString(w, Prefix+"\n\n")
	return err
}
