// Package codegen holds the target-independent core of the backend: name
// mapping, the shared-literal table, scope tracking, closure layout, and the
// global dependency-graph walker. The wasm and cgen packages build on it.
package codegen

import (
	"fmt"
	"strings"

	"github.com/fenlang/fenc/internal/ir"
)

// Symbol naming scheme. Every source-derived identifier goes through
// sanitize, which escapes "_" as "_1" and "." as "_0". Sanitized text
// therefore never contains "_" followed by a letter, so the "_" used to join
// a module qualifier to a bare name is unambiguous and the whole mapping is
// injective. Lowering-generated temporaries use the "tmp_" prefix, which can
// never collide because every source-derived local carries the "l_" prefix.

func sanitize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch r {
		case '_':
			sb.WriteString("_1")
		case '.':
			sb.WriteString("_0")
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// LocalName maps a source-level local to its generated symbol.
func LocalName(name string) string {
	return "l_" + sanitize(name)
}

// TmpName returns the n-th generated temporary of the current function.
func TmpName(n int) string {
	return fmt.Sprintf("tmp_%d", n)
}

// GlobalName maps a (module, name) pair to its generated symbol.
func GlobalName(g ir.Global) string {
	return "g_" + sanitize(g.Module) + "_" + sanitize(g.Name)
}

// CycleThunkName names the lazy-init thunk of a mutually recursive global.
func CycleThunkName(g ir.Global) string {
	return GlobalName(g) + "_cyc"
}

// InitFnName names the generated initializer of a global.
func InitFnName(g ir.Global) string {
	return "init_" + sanitize(g.Module) + "_" + sanitize(g.Name)
}

// KernelName maps a foreign-code reference to its generated symbol.
func KernelName(module, name string) string {
	return "k_" + sanitize(module) + "_" + sanitize(name)
}
