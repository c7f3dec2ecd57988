// Package bytecode serializes a compiled top-level Function to and from
// the .taterc binary chunk format, so a script can be compiled once and
// loaded directly without re-running the scanner and compiler.
//
// Binary layout (every integer field is little-endian):
//
//	[Header]
//	  Magic (4 bytes): the uint32 0x54415452 ("TATR" read as a
//	    big-endian word), so the file's first bytes are "RTAT"
//	  Version (4 bytes): format version, currently 1
//
//	[Function]
//	  Arity (4 bytes, signed)
//	  UpvalueCount (4 bytes, signed)
//	  Name (string: 4-byte length + UTF-8, empty for the top-level script)
//	  [Chunk]
//	    Code length (4 bytes) + raw bytes
//	    Line-run count (4 bytes), then for each run: Offset (4 bytes) + Line (4 bytes)
//	    Constant count (4 bytes), then each constant as a tagged value
//
// Constant tags:
//
//	0x01 number (float64, 8 bytes)
//	0x02 string (4-byte length + UTF-8)
//	0x03 nested function (recursively encoded [Function], for closures
//	     reached through OP_CLOSURE)
//
// This is the only constant shape the compiler ever emits into a pool;
// any other constant kind is a compiler bug, not a format limitation.
package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kristofer/tater/pkg/gc"
	"github.com/kristofer/tater/pkg/value"
)

const (
	// MagicNumber is the file signature for .taterc files ("TATR" as a
	// big-endian word; written little-endian like every other field).
	MagicNumber uint32 = 0x54415452

	// FormatVersion is the current chunk format version.
	FormatVersion uint32 = 1
)

const (
	constTypeNumber   byte = 0x01
	constTypeString   byte = 0x02
	constTypeFunction byte = 0x03
)

// Encode serializes fn (typically the top-level script Function returned
// by a successful compile) to w in the .taterc format.
func Encode(fn *value.ObjFunction, w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, MagicNumber); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, FormatVersion); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	return encodeFunction(w, fn)
}

// Decode reads a .taterc file from r and reconstructs its Function,
// allocating constants (strings, nested functions) on heap.
func Decode(r io.Reader, heap *gc.Heap) (*value.ObjFunction, error) {
	var magic, version uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if magic != MagicNumber {
		return nil, fmt.Errorf("not a tater chunk file: bad magic 0x%08X", magic)
	}
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("unsupported chunk format version %d (expected %d)", version, FormatVersion)
	}
	return decodeFunction(r, heap)
}

func encodeFunction(w io.Writer, fn *value.ObjFunction) error {
	if err := binary.Write(w, binary.LittleEndian, int32(fn.Arity)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(fn.UpvalueCount)); err != nil {
		return err
	}
	name := ""
	if fn.Name != nil {
		name = fn.Name.Chars
	}
	if err := writeString(w, name); err != nil {
		return err
	}
	return encodeChunk(w, fn.Chunk)
}

func decodeFunction(r io.Reader, heap *gc.Heap) (*value.ObjFunction, error) {
	var arity, upvalueCount int32
	if err := binary.Read(r, binary.LittleEndian, &arity); err != nil {
		return nil, fmt.Errorf("read arity: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &upvalueCount); err != nil {
		return nil, fmt.Errorf("read upvalue count: %w", err)
	}
	name, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("read name: %w", err)
	}
	fn := heap.NewFunction()
	fn.Arity = int(arity)
	fn.UpvalueCount = int(upvalueCount)
	if name != "" {
		fn.Name = heap.InternString(name)
	}
	chunk, err := decodeChunk(r, heap)
	if err != nil {
		return nil, err
	}
	fn.Chunk = chunk
	return fn, nil
}

func encodeChunk(w io.Writer, chunk *value.Chunk) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(chunk.Code))); err != nil {
		return err
	}
	if _, err := w.Write(chunk.Code); err != nil {
		return err
	}

	lines := chunk.Lines()
	if err := binary.Write(w, binary.LittleEndian, uint32(len(lines))); err != nil {
		return err
	}
	for _, run := range lines {
		if err := binary.Write(w, binary.LittleEndian, int32(run.Offset)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, int32(run.Line)); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(chunk.Constants))); err != nil {
		return err
	}
	for i, c := range chunk.Constants {
		if err := encodeConstant(w, c); err != nil {
			return fmt.Errorf("constant %d: %w", i, err)
		}
	}
	return nil
}

func decodeChunk(r io.Reader, heap *gc.Heap) (*value.Chunk, error) {
	var codeLen uint32
	if err := binary.Read(r, binary.LittleEndian, &codeLen); err != nil {
		return nil, fmt.Errorf("read code length: %w", err)
	}
	code := make([]byte, codeLen)
	if _, err := io.ReadFull(r, code); err != nil {
		return nil, fmt.Errorf("read code: %w", err)
	}

	var lineCount uint32
	if err := binary.Read(r, binary.LittleEndian, &lineCount); err != nil {
		return nil, fmt.Errorf("read line-run count: %w", err)
	}
	lines := make([]value.LineRun, lineCount)
	for i := range lines {
		var offset, line int32
		if err := binary.Read(r, binary.LittleEndian, &offset); err != nil {
			return nil, fmt.Errorf("read line run %d offset: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &line); err != nil {
			return nil, fmt.Errorf("read line run %d line: %w", i, err)
		}
		lines[i] = value.LineRun{Offset: int(offset), Line: int(line)}
	}

	var constCount uint32
	if err := binary.Read(r, binary.LittleEndian, &constCount); err != nil {
		return nil, fmt.Errorf("read constant count: %w", err)
	}
	constants := make([]value.Value, constCount)
	for i := range constants {
		c, err := decodeConstant(r, heap)
		if err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
		constants[i] = c
	}

	chunk := &value.Chunk{Code: code, Constants: constants}
	chunk.SetLines(lines)
	return chunk, nil
}

func encodeConstant(w io.Writer, v value.Value) error {
	switch {
	case v.IsNumber():
		if err := binary.Write(w, binary.LittleEndian, constTypeNumber); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, v.Number)

	case v.IsString():
		if err := binary.Write(w, binary.LittleEndian, constTypeString); err != nil {
			return err
		}
		return writeString(w, v.AsString().Chars)

	case v.IsFunction():
		if err := binary.Write(w, binary.LittleEndian, constTypeFunction); err != nil {
			return err
		}
		return encodeFunction(w, v.AsFunction())

	default:
		return fmt.Errorf("unsupported constant kind in pool: %v", v.Kind)
	}
}

func decodeConstant(r io.Reader, heap *gc.Heap) (value.Value, error) {
	var tag byte
	if err := binary.Read(r, binary.LittleEndian, &tag); err != nil {
		return value.Nil, err
	}
	switch tag {
	case constTypeNumber:
		var n float64
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return value.Nil, err
		}
		return value.Number(n), nil

	case constTypeString:
		s, err := readString(r)
		if err != nil {
			return value.Nil, err
		}
		return value.Obj(heap.InternString(s)), nil

	case constTypeFunction:
		fn, err := decodeFunction(r, heap)
		if err != nil {
			return value.Nil, err
		}
		return value.Obj(fn), nil

	default:
		return value.Nil, fmt.Errorf("unknown constant tag 0x%02X", tag)
	}
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r io.Reader) (string, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
