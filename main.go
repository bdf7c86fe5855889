// fenc is the code-generation backend of the Fen toolchain: it lowers a
// whole-program IR graph to either a linear-memory bytecode module or a C
// translation unit, with a JS sidecar for kernel and effect-manager code.
package main

import (
	goflag "flag"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"

	"github.com/fenlang/fenc/internal/codegen"
)

func main() {
	if err := newFencCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fenc: %v\n", err)
		os.Exit(1)
	}
}

func newFencCmd() *cobra.Command {
	var (
		targetName string
		output     string
		roots      []string
		debug      bool
		watch      bool
		verbosity  int
	)

	cmd := &cobra.Command{
		Use:          "fenc <graph.json>",
		Short:        "Lower a Fen program graph to bytecode or C",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			initLogging(verbosity)
			target, err := codegen.ParseTarget(targetName)
			if err != nil {
				return err
			}
			mode := codegen.ModeProd
			if debug {
				mode = codegen.ModeDev
			}
			opts := genOptions{
				graphPath: args[0],
				target:    target,
				mode:      mode,
				output:    output,
				roots:     roots,
			}
			if watch {
				return watchLoop(opts)
			}
			return runGenerate(opts)
		},
	}

	cmd.Flags().StringVarP(&targetName, "target", "t", env.Str("FENC_TARGET", "wasm"), "output target: wasm|c")
	cmd.Flags().StringVarP(&output, "output", "o", env.Str("FENC_OUTPUT", ""), "output file (default derived from the graph name)")
	cmd.Flags().StringSliceVar(&roots, "root", []string{"Main"}, "root modules whose main must be reachable")
	cmd.Flags().BoolVar(&debug, "debug", env.Bool("FENC_DEBUG"), "keep debug tracking in the output")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "regenerate when the graph file changes")
	cmd.Flags().IntVarP(&verbosity, "verbose", "v", 0, "verbose logging level")
	return cmd
}

// initLogging routes glog to stderr at the requested level. glog registers
// on the standard flag set, which cobra never parses.
func initLogging(verbosity int) {
	_ = goflag.CommandLine.Parse(nil)
	_ = goflag.Set("logtostderr", "true")
	_ = goflag.Set("v", strconv.Itoa(verbosity))
}
