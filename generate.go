package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/iancoleman/strcase"

	"github.com/fenlang/fenc/internal/cgen"
	"github.com/fenlang/fenc/internal/codegen"
	"github.com/fenlang/fenc/internal/ir"
	"github.com/fenlang/fenc/internal/jsgen"
	"github.com/fenlang/fenc/internal/wasm"
)

type genOptions struct {
	graphPath string
	target    codegen.TargetKind
	mode      codegen.Mode
	output    string
	roots     []string
}

// outputPath derives the main output name from the graph file when no
// explicit -o was given: snake_cased base name plus the target extension.
func (o genOptions) outputPath() string {
	if o.output != "" {
		return o.output
	}
	base := strings.TrimSuffix(filepath.Base(o.graphPath), filepath.Ext(o.graphPath))
	ext := ".wasm"
	if o.target == codegen.TargetC {
		ext = ".c"
	}
	return strcase.ToSnake(base) + ext
}

// runGenerate performs one full generation pass: decode the graph, walk it
// into the selected target, then write the output plus the JS sidecar for
// any deferred kernel or manager globals.
func runGenerate(opts genOptions) error {
	f, err := os.Open(opts.graphPath)
	if err != nil {
		return err
	}
	defer f.Close()
	graph, err := ir.DecodeGraph(f)
	if err != nil {
		return fmt.Errorf("loading %s: %w", opts.graphPath, err)
	}
	glog.V(1).Infof("graph %s: %d globals, %d distinct fields", opts.graphPath, len(graph.Nodes), len(graph.FieldFreq))

	var (
		out      []byte
		fallback []byte
	)
	switch opts.target {
	case codegen.TargetWasm:
		out, fallback, err = generateWasm(graph, opts)
	case codegen.TargetC:
		out, fallback, err = generateC(graph, opts)
	default:
		return fmt.Errorf("target %s not implemented", opts.target)
	}
	if err != nil {
		return err
	}

	path := opts.outputPath()
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return err
	}
	glog.V(1).Infof("wrote %s (%d bytes)", path, len(out))
	if fallback != nil {
		side := strings.TrimSuffix(path, filepath.Ext(path)) + ".js"
		if err := os.WriteFile(side, fallback, 0o644); err != nil {
			return err
		}
		glog.V(1).Infof("wrote %s (%d bytes)", side, len(fallback))
	}
	return nil
}

func generateWasm(graph *ir.Graph, opts genOptions) (out, fallback []byte, err error) {
	gen := wasm.NewGenerator(graph, opts.mode)
	walker := codegen.NewWalker(graph, gen)
	if err := walker.WalkRoots(opts.roots); err != nil {
		return nil, nil, err
	}
	if glog.V(2) {
		glog.Info(walker.DeadCodeReport())
	}
	out = gen.Finish()
	if deferred := gen.Deferred(); len(deferred) > 0 {
		em := jsgen.NewEmitter(gen.Literals())
		for _, d := range deferred {
			if err := em.EmitNode(d.Global, d.Node); err != nil {
				return nil, nil, err
			}
		}
		fallback = em.Bytes()
	}
	return out, fallback, nil
}

func generateC(graph *ir.Graph, opts genOptions) (out, fallback []byte, err error) {
	gen := cgen.NewGenerator(graph, opts.mode)
	walker := codegen.NewWalker(graph, gen)
	if err := walker.WalkRoots(opts.roots); err != nil {
		return nil, nil, err
	}
	if glog.V(2) {
		glog.Info(walker.DeadCodeReport())
	}
	out = gen.Finish()
	if deferred := gen.Deferred(); len(deferred) > 0 {
		em := jsgen.NewEmitter(gen.Literals())
		for _, d := range deferred {
			if err := em.EmitNode(d.Global, d.Node); err != nil {
				return nil, nil, err
			}
		}
		fallback = em.Bytes()
	}
	return out, fallback, nil
}
