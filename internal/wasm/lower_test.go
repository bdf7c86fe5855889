package wasm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenlang/fenc/internal/codegen"
	"github.com/fenlang/fenc/internal/ir"
)

func gl(module, name string) ir.Global {
	return ir.Global{Module: module, Name: name}
}

func newTestGenerator() *Generator {
	return NewGenerator(ir.NewGraph(), codegen.ModeProd)
}

func TestSharedIntLiteral(t *testing.T) {
	// Two definitions of the same integer literal share one data payload.
	g := newTestGenerator()
	require.NoError(t, g.EmitGlobal(gl("Main", "a"), &ir.Define{Body: &ir.Int{Value: 42}}))
	require.NoError(t, g.EmitGlobal(gl("Main", "b"), &ir.Define{Body: &ir.Int{Value: 42}}))

	assert.Len(t, g.Literals().Defs(), 1)
	payload := append(u32bytes(codegen.TagInt), i32bytes(42)...)
	count := 0
	for _, seg := range g.mod.segs {
		if bytes.Equal(seg.data, payload) {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestFloatPayloadLayout(t *testing.T) {
	g := newTestGenerator()
	off := g.floatLit(1.0)
	assert.Equal(t, off, g.floatLit(1.0))
	want := append(u32bytes(codegen.TagFloat), f64bytes(1.0)...)
	assert.Equal(t, want, g.mod.segs[0].data)
}

func TestStringPayloadLayout(t *testing.T) {
	g := newTestGenerator()
	g.strLit("hi")
	want := append(u32bytes(codegen.TagString), u32bytes(2)...)
	want = append(want, "hi"...)
	assert.Equal(t, want, g.mod.segs[0].data)
}

func TestCallUsesIndirectDispatch(t *testing.T) {
	// A saturating call must end in a table dispatch on the copied closure.
	g := newTestGenerator()
	require.NoError(t, g.EmitGlobal(gl("Main", "id"), &ir.Define{
		Body: &ir.Function{Params: []string{"x"}, Body: &ir.VarLocal{Name: "x"}},
	}))
	require.NoError(t, g.EmitGlobal(gl("Main", "main"), &ir.Define{
		Body: &ir.Call{
			Fn:   &ir.VarGlobal{Global: gl("Main", "id")},
			Args: []ir.Expr{&ir.Int{Value: 1}},
		},
	}))

	code := g.mod.funcs[len(g.mod.funcs)-1].code
	assert.Contains(t, string(code), string([]byte{opCallIndirect}))
	// The copy that keeps partial application pure comes first.
	assert.Contains(t, string(code), string([]byte{opCall, byte(importGCShallowCopy)}))
}

func TestOverApplicationChainsRounds(t *testing.T) {
	// id has arity one; supplying two arguments must run two application
	// rounds, each with its own copy and its own saturation dispatch, so the
	// second argument goes to the first round's evaluator result rather than
	// past the one-slot record.
	g := newTestGenerator()
	require.NoError(t, g.EmitGlobal(gl("Main", "id"), &ir.Define{
		Body: &ir.Function{Params: []string{"x"}, Body: &ir.VarLocal{Name: "x"}},
	}))
	require.NoError(t, g.EmitGlobal(gl("Main", "main"), &ir.Define{
		Body: &ir.Call{
			Fn:   &ir.VarGlobal{Global: gl("Main", "id")},
			Args: []ir.Expr{&ir.Int{Value: 1}, &ir.Int{Value: 2}},
		},
	}))

	code := string(g.mod.funcs[len(g.mod.funcs)-1].code)
	assert.Equal(t, 2, strings.Count(code, string([]byte{opCall, byte(importGCShallowCopy)})))
	assert.Equal(t, 2, strings.Count(code, string([]byte{opCallIndirect})))
}

func TestCaseScrutineeIsCaptured(t *testing.T) {
	// \y -> \z -> case over y where the decider is a bare inline leaf that
	// never walks a path from y: the inner closure must still capture y, so
	// its record carries a captured slot plus the parameter slot.
	g := newTestGenerator()
	require.NoError(t, g.EmitGlobal(gl("Main", "pick"), &ir.Define{
		Body: &ir.Function{Params: []string{"y"}, Body: &ir.Function{
			Params: []string{"z"},
			Body: &ir.Case{
				Root:    "y",
				Decider: &ir.Leaf{Inline: &ir.Int{Value: 0}},
			},
		}},
	}))

	// The outer lambda allocates the 16-byte inner record: head, arity word
	// and two slots.
	var all []byte
	for _, fn := range g.mod.funcs {
		all = append(all, fn.code...)
	}
	assert.Contains(t, string(all), string([]byte{opI32Const, 16, opCall, byte(importGCAllocate)}))
}

func TestTailFunctionLowersToLoop(t *testing.T) {
	g := newTestGenerator()
	require.NoError(t, g.EmitGlobal(gl("Main", "loop"), &ir.DefineTailFunc{
		Params: []string{"n"},
		Body: &ir.If{
			Branches: []ir.IfBranch{{
				Cond: &ir.VarLocal{Name: "n"},
				Then: &ir.TailCall{Name: "loop", Args: []ir.TailArg{{Name: "n", Value: &ir.Int{Value: 0}}}},
			}},
			Final: &ir.VarLocal{Name: "n"},
		},
	}))

	// The initializer is reserved first, then the evaluator; the evaluator
	// body opens with the tail loop.
	code := g.mod.funcs[1].code
	assert.Contains(t, string(code), string([]byte{opLoop, valI32}))
	assert.Contains(t, string(code), string([]byte{opBr}))
}

func TestCycleEmission(t *testing.T) {
	g := newTestGenerator()
	cyc := &ir.Cycle{
		Names: []string{"isEven", "isOdd"},
		Funcs: []ir.CycleFunc{
			{Name: "isEven", Fn: &ir.Function{Params: []string{"n"}, Body: &ir.Call{
				Fn:   &ir.VarCycle{Global: gl("Main", "isOdd")},
				Args: []ir.Expr{&ir.VarLocal{Name: "n"}},
			}}},
			{Name: "isOdd", Fn: &ir.Function{Params: []string{"n"}, Body: &ir.Call{
				Fn:   &ir.VarCycle{Global: gl("Main", "isEven")},
				Args: []ir.Expr{&ir.VarLocal{Name: "n"}},
			}}},
		},
	}
	require.NoError(t, g.EmitGlobal(gl("Main", "isEven"), cyc))

	assert.Contains(t, g.thunks, gl("Main", "isEven"))
	assert.Contains(t, g.thunks, gl("Main", "isOdd"))
	// One group initializer, forcing both thunks.
	assert.Len(t, g.inits, 1)
}

func TestAccessorSharedClosure(t *testing.T) {
	g := newTestGenerator()
	a := g.accessorLit("name")
	b := g.accessorLit("name")
	assert.Equal(t, a, b)
	// Static record: [table index][arity word 0/1][empty slot].
	seg := g.mod.segs[0].data
	require.Len(t, seg, 12)
	assert.Equal(t, u32bytes(codegen.ArityWord(0, 1)), seg[4:8])
}

func TestFinishProducesModule(t *testing.T) {
	g := newTestGenerator()
	require.NoError(t, g.EmitGlobal(gl("Main", "main"), &ir.Define{Body: &ir.Int{Value: 7}}))
	out := g.Finish()
	require.Greater(t, len(out), 8)
	assert.Equal(t, wasmMagic, out[:4])
	assert.Equal(t, wasmVersion, out[4:8])
}

func TestManagerIsDeferred(t *testing.T) {
	g := newTestGenerator()
	require.NoError(t, g.EmitGlobal(gl("Platform", "manager"), &ir.Manager{}))
	require.Len(t, g.Deferred(), 1)
	assert.Equal(t, gl("Platform", "manager"), g.Deferred()[0].Global)
}
