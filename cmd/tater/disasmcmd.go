package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kristofer/tater/pkg/bytecode"
	"github.com/kristofer/tater/pkg/compiler"
	"github.com/kristofer/tater/pkg/disasm"
	"github.com/kristofer/tater/pkg/gc"
	"github.com/kristofer/tater/pkg/value"
)

func newDisasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <script|chunk>",
		Short: "print the bytecode of a script or a compiled .taterc chunk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			heap := gc.NewHeap(newLogger())
			fn, err := loadFunction(args[0], heap)
			if err != nil {
				return err
			}
			if fn == nil {
				os.Exit(65)
			}
			fmt.Print(disasm.Chunk(fn))
			return nil
		},
	}
}

// loadFunction loads a Function either by decoding a .taterc chunk
// directly or by compiling a .tater source file. A nil, nil return
// means the source failed to compile; diagnostics already went to
// stderr in that case.
func loadFunction(path string, heap *gc.Heap) (*value.ObjFunction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".taterc") {
		return bytecode.Decode(bytes.NewReader(data), heap)
	}
	c := compiler.New(heap, os.Stderr)
	fn, ok := c.Compile(string(data))
	if !ok {
		return nil, nil
	}
	return fn, nil
}
