package cgen

import (
	"fmt"
	"strings"

	"github.com/iancoleman/strcase"

	"github.com/fenlang/fenc/internal/codegen"
)

// The emitted program targets the runtime's ILP32 ABI: every value is a
// 4-byte handle, and heap pointers, evaluator pointers and literal addresses
// all fit a Value. The two memory primitives are extern-declared with no
// body; an unresolved symbol at link time is the build-time-visible signal
// that the host runtime is incomplete.
const prelude = `/* Generated by fenc. Do not edit. */
#include <stdint.h>

typedef uint32_t Value;
typedef Value (*EvalFn)(Value);

#define ADDR(x)           ((Value)(uintptr_t)(x))
#define LOAD(p, off)      (*(Value *)(uintptr_t)((p) + (off)))
#define STORE(p, off, v)  (*(Value *)(uintptr_t)((p) + (off)) = (v))

extern Value GC_allocate(Value size);
extern Value GC_shallowCopy(Value obj);
extern Value Record_alloc(Value shape, Value count);
extern void  Record_setField(Value rec, Value field, Value val);
extern Value Record_access(Value rec, Value field);
extern Value Record_clone(Value rec);
extern void  Fields_register(Value shape, Value count);
extern Value Utils_eqChr(Value a, Value b);
extern Value Utils_eqStr(Value a, Value b);
extern Value Kernel_ref(Value id);
extern Value Debug_track(Value val, Value tag);
`

// applyHelper is the general application loop. Each round copies the callee,
// fills as many open slots as the supplied arguments allow (highest offset
// first), and either invokes the evaluator on exact saturation or yields the
// partial copy. Leftover arguments are applied to whatever the evaluator
// returned, so a call site may supply more arguments than the callee's
// declared arity. A zero-argument round still runs once, forcing a saturated
// zero-arity thunk.
const applyHelper = `static Value fen_apply(Value fn, Value n, const Value *args) {
	do {
		Value c = GC_shallowCopy(fn);
		Value w = LOAD(c, 4u);
		Value take = (w >> 16) - (w & 0xffffu);
		if (take > n) {
			take = n;
		}
		Value base = c + 8u + 4u * (w & 0xffffu);
		for (Value i = take; i-- > 0u;) {
			STORE(base, 4u * i, args[i]);
		}
		STORE(c, 4u, w + take);
		fn = (((w + take) & 0xffffu) == (w >> 16)) ? ((EvalFn)(uintptr_t)LOAD(c, 0u))(c) : c;
		args += take;
		n -= take;
	} while (n);
	return fn;
}
`

var tagNames = []string{
	"Nil", "Cons", "Tuple2", "Tuple3", "Int", "Float", "Char", "String",
}

func tagEnum() string {
	var b strings.Builder
	b.WriteString("enum {\n")
	for i, n := range tagNames {
		fmt.Fprintf(&b, "\tTAG_%s = %d,\n", strcase.ToScreamingSnake(n), i)
	}
	b.WriteString("};\n")
	return b.String()
}

// cIdent shapes an arbitrary source name into a C enum constant body.
func cIdent(name string) string {
	var clean strings.Builder
	for _, r := range name {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			clean.WriteRune(r)
		} else {
			clean.WriteByte('_')
		}
	}
	out := strcase.ToScreamingSnake(clean.String())
	if out == "" {
		out = "X"
	}
	return out
}

// constNames assigns unique enum constant identifiers for one id-ordered
// name table. Screaming-snake casing can collapse distinct source names, so
// collisions get the stable integer id appended.
func constNames(prefix string, names []string) []string {
	out := make([]string, len(names))
	used := make(map[string]bool, len(names))
	for i, n := range names {
		id := prefix + cIdent(n)
		if used[id] {
			id = fmt.Sprintf("%s_%d", id, i)
		}
		used[id] = true
		out[i] = id
	}
	return out
}

func enumDecl(consts []string) string {
	if len(consts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("enum {\n")
	for i, c := range consts {
		fmt.Fprintf(&b, "\t%s = %d,\n", c, i)
	}
	b.WriteString("};\n")
	return b.String()
}

func nameTable(ident string, names []string) string {
	if len(names) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "static const char *const %s[] = {\n", ident)
	for _, n := range names {
		fmt.Fprintf(&b, "\t\"%s\",\n", codegen.EscapeString(n))
	}
	b.WriteString("};\n")
	return b.String()
}
