package jsgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenlang/fenc/internal/codegen"
	"github.com/fenlang/fenc/internal/ir"
)

func TestKernelSplicing(t *testing.T) {
	lits := codegen.NewLiteralTable(map[string]int{"title": 2})
	e := NewEmitter(lits)

	target := ir.Global{Module: "Main", Name: "render"}
	err := e.EmitNode(ir.Global{Module: "JS", Name: "paint"}, &ir.Kernel{
		Chunks: []ir.KernelChunk{
			{Src: "function paint(m) { return "},
			{Ref: &target},
			{Src: "(m, "},
			{Field: "title"},
			{Src: "); }"},
		},
	})
	require.NoError(t, err)

	out := string(e.Bytes())
	assert.Contains(t, out, "'use strict';")
	assert.Contains(t, out, "// kernel JS.paint")
	// Symbol and field id spliced from the shared tables.
	assert.Contains(t, out, "function paint(m) { return g_Main_render(m, 0); }")
}

func TestManagerAndPorts(t *testing.T) {
	e := NewEmitter(codegen.NewLiteralTable(nil))
	require.NoError(t, e.EmitNode(ir.Global{Module: "Platform", Name: "mgr"}, &ir.Manager{}))
	require.NoError(t, e.EmitNode(ir.Global{Module: "Main", Name: "fromJs"}, &ir.PortIncoming{}))
	require.NoError(t, e.EmitNode(ir.Global{Module: "Main", Name: "toJs"}, &ir.PortOutgoing{}))

	out := string(e.Bytes())
	assert.Contains(t, out, "var g_Platform_mgr = Fen.manager('Platform');")
	assert.Contains(t, out, "var g_Main_fromJs = Fen.portIn('Main.fromJs');")
	assert.Contains(t, out, "var g_Main_toJs = Fen.portOut('Main.toJs');")
}

func TestRejectsNonFallbackNode(t *testing.T) {
	e := NewEmitter(codegen.NewLiteralTable(nil))
	err := e.EmitNode(ir.Global{Module: "Main", Name: "x"}, &ir.Define{Body: &ir.Unit{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Main.x")
}
