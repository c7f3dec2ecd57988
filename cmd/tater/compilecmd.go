package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kristofer/tater/pkg/bytecode"
	"github.com/kristofer/tater/pkg/compiler"
	"github.com/kristofer/tater/pkg/gc"
)

func newCompileCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "compile <script>",
		Short: "compile a script to a .taterc bytecode file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if out == "" {
				out = strings.TrimSuffix(args[0], ".tater") + ".taterc"
			}
			heap := gc.NewHeap(newLogger())
			c := compiler.New(heap, os.Stderr)
			fn, ok := c.Compile(string(src))
			if !ok {
				os.Exit(65)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			return bytecode.Encode(fn, f)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output path (default: <script> with .taterc extension)")
	return cmd
}
