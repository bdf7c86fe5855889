package codegen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/golang/glog"

	"github.com/fenlang/fenc/internal/ir"
)

// Backend receives each reachable global exactly once, dependencies first.
// Both targets and the scripting fallback implement it.
type Backend interface {
	EmitGlobal(g ir.Global, node ir.Node) error
}

// Walker performs the one-time depth-first traversal of the whole-program
// graph. A global moves unseen -> visited the first time it is requested and
// is never expanded again, so total work is O(reachable globals) regardless
// of graph density. Cycles are tolerated because every member of a Cycle
// node is marked visited before its dependencies are expanded.
type Walker struct {
	graph   *ir.Graph
	backend Backend
	visited map[ir.Global]bool
	order   []ir.Global
}

// NewWalker builds a walker over graph feeding backend.
func NewWalker(graph *ir.Graph, backend Backend) *Walker {
	return &Walker{
		graph:   graph,
		backend: backend,
		visited: make(map[ir.Global]bool),
	}
}

// WalkRoots visits the exported "main" entry point of every root module, in
// the given order.
func (w *Walker) WalkRoots(rootModules []string) error {
	var errs Collector
	for _, mod := range rootModules {
		root := ir.Global{Module: mod, Name: "main"}
		if _, ok := w.graph.Nodes[root]; !ok {
			errs.Add(Errorf(CategoryGraph, root, "root module has no main"))
			continue
		}
		if err := w.visit(root); err != nil {
			errs.Add(err)
		}
	}
	return errs.Err()
}

// Require visits one dependency on behalf of from. It is exposed so backends
// can demand graph members discovered during lowering (kernel splices).
func (w *Walker) Require(from, dep ir.Global) error {
	if w.visited[dep] {
		return nil
	}
	if _, ok := w.graph.Nodes[dep]; !ok {
		return MissingDependency(from, dep)
	}
	return w.visit(dep)
}

func (w *Walker) visit(g ir.Global) error {
	if w.visited[g] {
		return nil
	}
	node := w.graph.Nodes[g]
	Assertf(node != nil, "visit of %s without a graph node", g)

	// Mark before expanding dependencies so self-referential cycles
	// terminate. Every member of a mutually recursive group is marked
	// together; the group is emitted once.
	w.visited[g] = true
	if cycle, ok := node.(*ir.Cycle); ok {
		for _, name := range cycle.Names {
			w.visited[ir.Global{Module: g.Module, Name: name}] = true
		}
	}

	for _, dep := range ir.Deps(node) {
		if w.visited[dep] {
			continue
		}
		if _, ok := w.graph.Nodes[dep]; !ok {
			return MissingDependency(g, dep)
		}
		if err := w.visit(dep); err != nil {
			return err
		}
	}

	glog.V(2).Infof("emit %s (%T)", g, node)
	if err := w.backend.EmitGlobal(g, node); err != nil {
		return err
	}
	w.order = append(w.order, g)
	return nil
}

// Order returns the emitted globals in dependency-respecting order.
func (w *Walker) Order() []ir.Global {
	return w.order
}

// Visited reports whether a global was reached.
func (w *Walker) Visited(g ir.Global) bool {
	return w.visited[g]
}

// DeadCodeReport lists reachable and eliminated globals after a walk.
func (w *Walker) DeadCodeReport() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Reachable globals: %d\n", len(w.order))
	for _, g := range w.order {
		fmt.Fprintf(&sb, "  %s\n", g)
	}
	var dead []string
	for g := range w.graph.Nodes {
		if !w.visited[g] {
			dead = append(dead, g.String())
		}
	}
	if len(dead) > 0 {
		sort.Strings(dead)
		fmt.Fprintf(&sb, "Dead code (eliminated): %d globals\n", len(dead))
		for _, name := range dead {
			fmt.Fprintf(&sb, "  - %s\n", name)
		}
	}
	return sb.String()
}
