package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenlang/fenc/internal/ir"
)

type recordingBackend struct {
	emitted []ir.Global
}

func (b *recordingBackend) EmitGlobal(g ir.Global, node ir.Node) error {
	b.emitted = append(b.emitted, g)
	return nil
}

func gl(module, name string) ir.Global {
	return ir.Global{Module: module, Name: name}
}

func define(deps ...ir.Global) *ir.Define {
	return &ir.Define{Body: &ir.Int{Value: 0}, Deps: deps}
}

func TestWalkDiamondEmitsOnce(t *testing.T) {
	// main -> {left, right} -> shared: shared must be emitted exactly once,
	// before either of its dependents.
	g := ir.NewGraph()
	g.Nodes[gl("Main", "main")] = define(gl("Main", "left"), gl("Main", "right"))
	g.Nodes[gl("Main", "left")] = define(gl("Main", "shared"))
	g.Nodes[gl("Main", "right")] = define(gl("Main", "shared"))
	g.Nodes[gl("Main", "shared")] = define()

	b := &recordingBackend{}
	w := NewWalker(g, b)
	require.NoError(t, w.WalkRoots([]string{"Main"}))

	counts := make(map[ir.Global]int)
	pos := make(map[ir.Global]int)
	for i, e := range b.emitted {
		counts[e]++
		pos[e] = i
	}
	assert.Equal(t, 1, counts[gl("Main", "shared")])
	assert.Less(t, pos[gl("Main", "shared")], pos[gl("Main", "left")])
	assert.Less(t, pos[gl("Main", "shared")], pos[gl("Main", "right")])
	assert.Equal(t, len(b.emitted)-1, pos[gl("Main", "main")])
	assert.Equal(t, b.emitted, w.Order())
}

func TestWalkMissingDependency(t *testing.T) {
	g := ir.NewGraph()
	g.Nodes[gl("Main", "main")] = define(gl("Util", "gone"))

	w := NewWalker(g, &recordingBackend{})
	err := w.WalkRoots([]string{"Main"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Main.main")
	assert.Contains(t, err.Error(), "Util.gone")
}

func TestWalkMissingRoot(t *testing.T) {
	w := NewWalker(ir.NewGraph(), &recordingBackend{})
	err := w.WalkRoots([]string{"Main"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no main")
}

func TestWalkCycleTerminates(t *testing.T) {
	// isEven and isOdd refer to each other through a single Cycle node whose
	// dependency list includes its own members. The pre-marking of member
	// names keeps the traversal from recursing into itself.
	g := ir.NewGraph()
	cyc := &ir.Cycle{
		Names: []string{"isEven", "isOdd"},
		Funcs: []ir.CycleFunc{
			{Name: "isEven", Fn: &ir.Function{Params: []string{"n"}, Body: &ir.Int{Value: 1}}},
			{Name: "isOdd", Fn: &ir.Function{Params: []string{"n"}, Body: &ir.Int{Value: 0}}},
		},
		Deps: []ir.Global{gl("Main", "isEven"), gl("Main", "isOdd")},
	}
	g.Nodes[gl("Main", "isEven")] = cyc
	g.Nodes[gl("Main", "isOdd")] = cyc
	g.Nodes[gl("Main", "main")] = define(gl("Main", "isEven"))

	b := &recordingBackend{}
	w := NewWalker(g, b)
	require.NoError(t, w.WalkRoots([]string{"Main"}))
	assert.Len(t, b.emitted, 2)
	assert.True(t, w.Visited(gl("Main", "isOdd")))
}

func TestRequireVisitsLate(t *testing.T) {
	g := ir.NewGraph()
	g.Nodes[gl("Main", "main")] = define()
	g.Nodes[gl("Kernel", "helper")] = define()

	b := &recordingBackend{}
	w := NewWalker(g, b)
	require.NoError(t, w.WalkRoots([]string{"Main"}))
	require.NoError(t, w.Require(gl("Main", "main"), gl("Kernel", "helper")))
	assert.True(t, w.Visited(gl("Kernel", "helper")))
	// Requiring again is a no-op.
	require.NoError(t, w.Require(gl("Main", "main"), gl("Kernel", "helper")))
	assert.Len(t, b.emitted, 2)
}

func TestDeadCodeReport(t *testing.T) {
	g := ir.NewGraph()
	g.Nodes[gl("Main", "main")] = define()
	g.Nodes[gl("Main", "unused")] = define()

	w := NewWalker(g, &recordingBackend{})
	require.NoError(t, w.WalkRoots([]string{"Main"}))
	report := w.DeadCodeReport()
	assert.Contains(t, report, "Reachable globals: 1")
	assert.Contains(t, report, "Main.unused")
}
