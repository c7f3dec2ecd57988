// Command tater is the CLI front end for the language: run scripts,
// start an interactive REPL, or disassemble compiled bytecode.
package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kristofer/tater/pkg/bytecode"
	"github.com/kristofer/tater/pkg/gc"
	"github.com/kristofer/tater/pkg/vm"
)

var (
	flagTrace          bool
	flagGCStress       bool
	flagGCLogLevel     string
	flagHeapGrowFactor int64
)

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(flagGCLogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

func newVM() *vm.VM {
	heap := gc.NewHeap(newLogger())
	heap.SetStressGC(flagGCStress)
	heap.SetHeapGrowFactor(flagHeapGrowFactor)
	m := vm.New(heap, os.Stdout, os.Stderr, newLogger())
	m.SetTrace(flagTrace)
	return m
}

func main() {
	root := &cobra.Command{
		Use:           "tater",
		Short:         "tater is a bytecode-compiled scripting language interpreter",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&flagTrace, "trace", false, "log each executed instruction to stderr")
	root.PersistentFlags().BoolVar(&flagGCStress, "gc-stress", false, "run a GC cycle on every allocation")
	root.PersistentFlags().StringVar(&flagGCLogLevel, "gc-log-level", "info", "log level for GC and runtime diagnostics (debug, info, warn, error)")
	root.PersistentFlags().Int64Var(&flagHeapGrowFactor, "heap-grow-factor", 2, "multiplier applied to bytes_allocated to compute the next GC threshold")

	root.AddCommand(newRunCmd(), newReplCmd(), newDisasmCmd(), newCompileCmd(), newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <script|chunk>",
		Short: "execute a tater script, or a precompiled .taterc chunk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			m := newVM()
			m.SetArgv(args[1:])

			if strings.HasSuffix(args[0], ".taterc") {
				fn, err := bytecode.Decode(bytes.NewReader(data), m.Heap().(*gc.Heap))
				if err != nil {
					return err
				}
				os.Exit(m.InterpretCompiled(fn))
				return nil
			}

			code := m.Interpret(string(data))
			os.Exit(code)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the tater version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("tater 0.1.0")
			return nil
		},
	}
}
