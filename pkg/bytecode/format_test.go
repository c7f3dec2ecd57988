package bytecode

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kristofer/tater/pkg/compiler"
	"github.com/kristofer/tater/pkg/disasm"
	"github.com/kristofer/tater/pkg/gc"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	heap := gc.NewHeap(zerolog.Nop())
	var errOut bytes.Buffer
	c := compiler.New(heap, &errOut)
	fn, ok := c.Compile(`
		fn add(a, b) {
			return a + b;
		}
		let x = add(1, 2);
		print x;
	`)
	if !ok {
		t.Fatalf("compile failed: %s", errOut.String())
	}

	var buf bytes.Buffer
	if err := Encode(fn, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("encoded chunk is empty")
	}

	decodeHeap := gc.NewHeap(zerolog.Nop())
	decoded, err := Decode(&buf, decodeHeap)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.Arity != fn.Arity {
		t.Errorf("arity = %d, want %d", decoded.Arity, fn.Arity)
	}
	if len(decoded.Chunk.Code) != len(fn.Chunk.Code) {
		t.Errorf("code length = %d, want %d", len(decoded.Chunk.Code), len(fn.Chunk.Code))
	}
	if len(decoded.Chunk.Constants) != len(fn.Chunk.Constants) {
		t.Errorf("constant count = %d, want %d", len(decoded.Chunk.Constants), len(fn.Chunk.Constants))
	}

	// The disassembly of the reloaded chunk should match the original
	// byte for byte: re-encoding must not lose any instructions, line
	// info, or nested-function constants (the "add" closure).
	if got, want := disasm.Chunk(decoded), disasm.Chunk(fn); got != want {
		t.Errorf("disassembly mismatch after round-trip:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	heap := gc.NewHeap(zerolog.Nop())
	_, err := Decode(bytes.NewReader([]byte{0, 0, 0, 0, 1, 0, 0, 0}), heap)
	if err == nil {
		t.Fatal("expected an error for a bad magic number")
	}
}
