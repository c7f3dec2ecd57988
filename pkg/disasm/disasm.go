// Package disasm renders a compiled Chunk as human-readable bytecode,
// used by the `tater disasm` subcommand. It mirrors the
// teacher's debugger output style but renders nested function chunks
// as a tree via xlab/treeprint instead of a flat recursive dump.
package disasm

import (
	"fmt"

	"github.com/xlab/treeprint"

	"github.com/kristofer/tater/pkg/value"
)

// Chunk renders fn's bytecode (and recursively, any nested function
// constants) as a tree and returns it as a string.
func Chunk(fn *value.ObjFunction) string {
	name := "<script>"
	if fn.Name != nil {
		name = fn.Name.Chars
	}
	tree := treeprint.NewWithRoot(name)
	disassembleInto(tree, fn.Chunk)
	return tree.String()
}

func disassembleInto(tree treeprint.Tree, chunk *value.Chunk) {
	offset := 0
	for offset < len(chunk.Code) {
		line := chunk.GetLine(offset)
		op := value.OpCode(chunk.Code[offset])
		text, next := instruction(chunk, offset)
		tree.AddNode(fmt.Sprintf("%04d  L%-4d  %s", offset, line, text))
		if op == value.OpClosure {
			// The closure's own function constant was the first operand;
			// recurse into it as a child branch.
			idx := int(chunk.Code[offset+1])
			if idx < len(chunk.Constants) && chunk.Constants[idx].IsFunction() {
				fn := chunk.Constants[idx].AsFunction()
				sub := tree.AddBranch(fnLabel(fn))
				disassembleInto(sub, fn.Chunk)
			}
		}
		offset = next
	}
}

func fnLabel(fn *value.ObjFunction) string {
	if fn.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("fn %s", fn.Name.Chars)
}

// instruction formats the instruction at offset and returns the offset
// of the next instruction.
func instruction(chunk *value.Chunk, offset int) (string, int) {
	op := value.OpCode(chunk.Code[offset])
	switch op {
	case value.OpConstant:
		idx := int(chunk.Code[offset+1])
		return fmt.Sprintf("%-18s %4d '%s'", op, idx, value.Print(chunk.Constants[idx])), offset + 2
	case value.OpConstantLong:
		idx := int(chunk.Code[offset+1]) | int(chunk.Code[offset+2])<<8 | int(chunk.Code[offset+3])<<16
		return fmt.Sprintf("%-18s %4d '%s'", op, idx, value.Print(chunk.Constants[idx])), offset + 4
	case value.OpGetLocal, value.OpSetLocal, value.OpGetUpvalue, value.OpSetUpvalue,
		value.OpCall, value.OpPopN:
		return fmt.Sprintf("%-18s %4d", op, chunk.Code[offset+1]), offset + 2
	case value.OpGetGlobal, value.OpSetGlobal, value.OpDefineGlobal,
		value.OpGetProperty, value.OpSetProperty, value.OpGetSuper,
		value.OpType, value.OpMethod, value.OpField:
		idx := int(chunk.Code[offset+1])
		name := "?"
		if idx < len(chunk.Constants) {
			name = value.Print(chunk.Constants[idx])
		}
		return fmt.Sprintf("%-18s %4d '%s'", op, idx, name), offset + 2
	case value.OpInvoke, value.OpSuperInvoke:
		idx := int(chunk.Code[offset+1])
		argCount := chunk.Code[offset+2]
		name := "?"
		if idx < len(chunk.Constants) {
			name = value.Print(chunk.Constants[idx])
		}
		return fmt.Sprintf("%-18s (%d args) %4d '%s'", op, argCount, idx, name), offset + 3
	case value.OpJump, value.OpJumpIfFalse:
		jump := int(chunk.Code[offset+1])<<8 | int(chunk.Code[offset+2])
		return fmt.Sprintf("%-18s %4d -> %d", op, offset, offset+3+jump), offset + 3
	case value.OpLoop:
		jump := int(chunk.Code[offset+1])<<8 | int(chunk.Code[offset+2])
		return fmt.Sprintf("%-18s %4d -> %d", op, offset, offset+3-jump), offset + 3
	case value.OpClosure:
		idx := int(chunk.Code[offset+1])
		next := offset + 2
		fn := chunk.Constants[idx].AsFunction()
		for i := 0; i < fn.UpvalueCount; i++ {
			next += 2
		}
		return fmt.Sprintf("%-18s %4d '%s'", op, idx, value.Print(chunk.Constants[idx])), next
	case value.OpNewList, value.OpNewMap:
		return fmt.Sprintf("%-18s %4d", op, chunk.Code[offset+1]), offset + 2
	default:
		return op.String(), offset + 1
	}
}
