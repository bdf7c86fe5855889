package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fenlang/fenc/internal/ir"
)

func TestSanitizeInjective(t *testing.T) {
	// Pairs that collapse under naive underscore replacement.
	pairs := [][2]string{
		{"a.b", "a_b"},
		{"a_0b", "a.b"},
		{"a_1b", "a_b"},
		{"x__y", "x._y"},
	}
	for _, p := range pairs {
		assert.NotEqual(t, sanitize(p[0]), sanitize(p[1]), "%q and %q must not collide", p[0], p[1])
	}
}

func TestGlobalNameModuleBoundary(t *testing.T) {
	// The module/name split must survive sanitization: moving a segment
	// across the boundary yields a different symbol.
	a := GlobalName(ir.Global{Module: "A.B", Name: "c"})
	b := GlobalName(ir.Global{Module: "A", Name: "B.c"})
	assert.NotEqual(t, a, b)
}

func TestReservedPrefixes(t *testing.T) {
	// Generated temporaries must be unreachable from source identifiers:
	// locals always carry the l_ prefix, temporaries tmp_, so a source
	// variable literally named "tmp_0" still cannot collide.
	assert.Equal(t, "l_tmp_10", LocalName("tmp_0"))
	assert.Equal(t, "tmp_0", TmpName(0))
	assert.NotEqual(t, LocalName("tmp_0"), TmpName(0))
}

func TestNameShapes(t *testing.T) {
	g := ir.Global{Module: "List", Name: "map"}
	assert.Equal(t, "g_List_map", GlobalName(g))
	assert.Equal(t, "g_List_map_cyc", CycleThunkName(g))
	assert.Equal(t, "init_List_map", InitFnName(g))
	assert.Equal(t, "k_JS_log", KernelName("JS", "log"))
}

func TestNameMappingDeterministic(t *testing.T) {
	g := ir.Global{Module: "Main", Name: "update"}
	assert.Equal(t, GlobalName(g), GlobalName(g))
	assert.Equal(t, LocalName("x"), LocalName("x"))
}
