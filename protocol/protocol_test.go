package protocol

import (
	"bytes"
	"testing"
)

const sample = ")]}'\n\n596\n[[\"wrb.fr\",\"abc\",\"[\\\"xyz\\\"]\\n\",null,null,null,\"generic\"]\n,[\"di\",38]\n]\n26\n[[\"e\",4,null,null,643]\n]\n"

func TestSplitChunks(t *testing.T) {
	chunks := SplitChunks(sample)
	if len(chunks) != 2 {
		t.Fatalf("expect 2 chunks, got %d", len(chunks))
	}

	if chunks[0].Declared != 596 {
		t.Errorf("Declared mismatch: got %d, want 596", chunks[0].Declared)
	}
	want := "[[\"wrb.fr\",\"abc\",\"[\\\"xyz\\\"]\\n\",null,null,null,\"generic\"]\n,[\"di\",38]\n]"
	if chunks[0].Body != want {
		t.Errorf("Body mismatch:\ngot  %q\nwant %q", chunks[0].Body, want)
	}

	if chunks[1].Declared != 26 {
		t.Errorf("Declared mismatch: got %d, want 26", chunks[1].Declared)
	}
	if chunks[1].Body != "[[\"e\",4,null,null,643]\n]" {
		t.Errorf("Body mismatch: got %q", chunks[1].Body)
	}
}

func TestSplitChunksWithoutNewlineBetween(t *testing.T) {
	raw := ")]}'\n\n10\n[[\"wrb.fr\",\"abc\"]]26\n[[\"wrb.fr\",\"def\"]]"
	chunks := SplitChunks(raw)
	if len(chunks) != 2 {
		t.Fatalf("expect 2 chunks, got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].Body != `[["wrb.fr","abc"]]` || chunks[1].Body != `[["wrb.fr","def"]]` {
		t.Fatalf("unexpected bodies %q, %q", chunks[0].Body, chunks[1].Body)
	}
	if chunks[1].Declared != 26 {
		t.Errorf("Declared mismatch: got %d, want 26", chunks[1].Declared)
	}
}

func TestSplitChunksIgnoresDigitsNotFollowedByArray(t *testing.T) {
	raw := "12\n[[\"a\",\n34\n,\"b\"]]\n"
	chunks := SplitChunks(raw)
	if len(chunks) != 1 {
		t.Fatalf("expect 1 chunk, got %d: %+v", len(chunks), chunks)
	}
}

func TestSplitChunksNoBoundary(t *testing.T) {
	for _, raw := range []string{"", "test", ")]}'\n\n[[\"wrb.fr\"]]"} {
		if chunks := SplitChunks(raw); len(chunks) != 0 {
			t.Errorf("SplitChunks(%q): expect no chunks, got %d", raw, len(chunks))
		}
	}
}

func TestStripPrefix(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{")]}'\n\n[1]\n", "[1]"},
		{"\n)]}'\n[1]", "[1]"},
		{"[1]", "[1]"},
		{")]}'", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := StripPrefix(tt.raw); got != tt.want {
			t.Errorf("StripPrefix(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestWriteChunkRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePrefix(&buf); err != nil {
		t.Fatalf("WritePrefix failed: %v", err)
	}
	bodies := []string{`[["wrb.fr","a"]]`, "[[\"e\",1]]\n"}
	for _, b := range bodies {
		if err := WriteChunk(&buf, []byte(b)); err != nil {
			t.Fatalf("WriteChunk failed: %v", err)
		}
	}

	chunks := SplitChunks(buf.String())
	if len(chunks) != 2 {
		t.Fatalf("expect 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Body != `[["wrb.fr","a"]]` || chunks[0].Declared != len(chunks[0].Body)+1 {
		t.Errorf("unexpected first chunk: %+v", chunks[0])
	}
	if chunks[1].Body != `[["e",1]]` || chunks[1].Declared != len(chunks[1].Body)+1 {
		t.Errorf("unexpected second chunk: %+v", chunks[1])
	}
}

func TestWriteChunkDoesNotMutateInput(t *testing.T) {
	body := make([]byte, 3, 8)
	copy(body, "[1]")
	var buf bytes.Buffer
	if err := WriteChunk(&buf, body); err != nil {
		t.Fatal(err)
	}
	if string(body[:cap(body)][:4]) == "[1]\n" {
		t.Fatal("WriteChunk wrote into the caller's backing array")
	}
}
