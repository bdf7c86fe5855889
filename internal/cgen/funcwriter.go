package cgen

import (
	"fmt"
	"strings"

	"github.com/fenlang/fenc/internal/codegen"
	"github.com/fenlang/fenc/internal/ir"
)

// funcWriter accumulates the statements of one C function body while the
// expression lowering below returns the C expression naming each sub-value.
// Bindings are hoisted into fresh Value locals, so every returned expression
// is a plain identifier or a pure compound over identifiers.
type funcWriter struct {
	g     *Generator
	scope *codegen.Scope

	names map[string]string // source name -> C variable
	used  map[string]bool
	stmts []string
	depth int
	tmp   int
	caseN int

	inTail bool
}

func newFuncWriter(g *Generator, params []string) *funcWriter {
	fw := &funcWriter{
		g:     g,
		scope: codegen.NewScope(params),
		names: make(map[string]string),
		used:  make(map[string]bool),
		depth: 1,
	}
	for _, p := range params {
		fw.names[p] = codegen.LocalName(p)
		fw.used[fw.names[p]] = true
	}
	return fw
}

func (fw *funcWriter) stmtf(format string, args ...interface{}) {
	fw.stmts = append(fw.stmts, strings.Repeat("\t", fw.depth)+fmt.Sprintf(format, args...))
}

func (fw *funcWriter) writeStmts(b *strings.Builder) {
	for _, s := range fw.stmts {
		b.WriteString(s)
		b.WriteString("\n")
	}
}

func (fw *funcWriter) fresh() string {
	for {
		name := codegen.TmpName(fw.tmp)
		fw.tmp++
		if !fw.used[name] {
			fw.used[name] = true
			return name
		}
	}
}

// bind hoists an expression into a fresh local and returns its name. An
// empty expression here means a lowering case produced nothing to wrap,
// which well-formed input cannot cause.
func (fw *funcWriter) bind(expr string) string {
	codegen.Assertf(expr != "", "binding an empty expression")
	t := fw.fresh()
	fw.stmtf("Value %s = %s;", t, expr)
	return t
}

// cvar returns the C variable carrying a source-level name, recording the
// capture side effect for names bound in an enclosing scope.
func (fw *funcWriter) cvar(name string) string {
	fw.scope.Observe(name)
	if c, ok := fw.names[name]; ok {
		return c
	}
	c := codegen.LocalName(name)
	fw.names[name] = c
	fw.used[c] = true
	return c
}

// bindLocal declares a let/destructuring binding, renaming on shadowing so
// the flat C function body never redeclares a variable.
func (fw *funcWriter) bindLocal(name, expr string) {
	c := codegen.LocalName(name)
	for i := 1; fw.used[c]; i++ {
		c = fmt.Sprintf("%s_%d", codegen.LocalName(name), i)
	}
	fw.used[c] = true
	fw.scope.BindLocal(name)
	fw.names[name] = c
	fw.stmtf("Value %s = %s;", c, expr)
}

// construct materializes a closure record for the given evaluator and
// returns the temporary holding it.
func (fw *funcWriter) construct(eval string, layout codegen.Layout) string {
	t := fw.bind(fmt.Sprintf("GC_allocate(%du)", layout.Size()))
	fw.stmtf("STORE(%s, %du, ADDR(&%s));", t, codegen.HeaderOffset, eval)
	fw.stmtf("STORE(%s, %du, 0x%xu);", t, codegen.ArityOffset, codegen.ArityWord(len(layout.Captured), len(layout.Slots())))
	for _, slot := range layout.CapturedSlots() {
		fw.scope.Observe(slot.Name)
		fw.stmtf("STORE(%s, %du, %s);", t, slot.Offset, fw.cvar(slot.Name))
	}
	return t
}

// expr lowers one expression and returns the C expression for its value.
func (fw *funcWriter) expr(e ir.Expr) string {
	switch n := e.(type) {
	case *ir.Bool:
		if n.Value {
			return "1u"
		}
		return "0u"
	case *ir.Unit:
		return "0u"
	case *ir.Int:
		return "ADDR(&" + fw.g.lits.IntRef(n.Value) + ")"
	case *ir.Float:
		return "ADDR(&" + fw.g.lits.FloatRef(n.Value) + ")"
	case *ir.Chr:
		return "ADDR(&" + fw.g.lits.CharRef(n.Value) + ")"
	case *ir.Str:
		return "ADDR(&" + fw.g.lits.StringRef(n.Value) + ")"
	case *ir.Shader:
		return "ADDR(&" + fw.g.lits.StringRef(n.Src) + ")"

	case *ir.VarLocal:
		return fw.cvar(n.Name)
	case *ir.VarDebug:
		v := fw.cvar(n.Name)
		if fw.g.mode != codegen.ModeDev {
			return v
		}
		tag := n.Name
		if n.Region != "" {
			tag = n.Region + "." + n.Name
		}
		return fw.bind(fmt.Sprintf("Debug_track(%s, ADDR(&%s))", v, fw.g.lits.StringRef(tag)))
	case *ir.VarGlobal:
		return fw.g.globalVar(n.Global)
	case *ir.VarEnum:
		return fw.g.globalVar(n.Global)
	case *ir.VarBox:
		return fw.g.globalVar(n.Global)
	case *ir.VarCycle:
		thunk, ok := fw.g.thunks[n.Global]
		codegen.Assertf(ok, "cyclic reference to %s before its group was emitted", n.Global)
		return fw.bind(thunk + "()")
	case *ir.VarKernel:
		kc := fw.g.kernelConst(n.Module, n.Name)
		fw.g.lits.KernelRef(n.Module, n.Name)
		return fw.bind(fmt.Sprintf("Kernel_ref(%s)", kc))

	case *ir.Function:
		eval, layout := fw.g.lowerFunction(n.Params, n.Body, false)
		fw.scope.PassThrough(layout.Captured)
		return fw.construct(eval, layout)

	case *ir.Call:
		return fw.call(n)
	case *ir.TailCall:
		return fw.tailCall(n)

	case *ir.If:
		return fw.conditional(n.Branches, n.Final)
	case *ir.Let:
		v := fw.expr(n.Value)
		fw.bindLocal(n.Name, v)
		return fw.expr(n.Body)
	case *ir.Destruct:
		v := fw.pathValue(n.Path)
		fw.bindLocal(n.Name, v)
		return fw.expr(n.Body)
	case *ir.Case:
		return fw.caseExpr(n)

	case *ir.Accessor:
		return "ADDR(" + fw.g.lits.AccessorRef(n.Field) + ")"
	case *ir.Access:
		r := fw.expr(n.Record)
		return fw.bind(fmt.Sprintf("Record_access(%s, %s)", r, fw.g.fieldConst(n.Field)))
	case *ir.Update:
		r := fw.bind(fmt.Sprintf("Record_clone(%s)", fw.expr(n.Record)))
		fw.setFields(r, n.Fields)
		return r
	case *ir.Record:
		names := make([]string, len(n.Fields))
		for i, f := range n.Fields {
			names[i] = f.Field
		}
		sym := fw.g.lits.FieldGroupRef(names)
		temps := make([]string, len(n.Fields))
		for i, f := range n.Fields {
			temps[i] = fw.bind(fw.expr(f.Value))
		}
		r := fw.bind(fmt.Sprintf("Record_alloc(ADDR(%s), %du)", sym, len(names)))
		for i, f := range n.Fields {
			fw.stmtf("Record_setField(%s, %s, %s);", r, fw.g.fieldConst(f.Field), temps[i])
		}
		return r

	case *ir.List:
		fw.g.usesNil = true
		temps := make([]string, len(n.Entries))
		for i, e := range n.Entries {
			temps[i] = fw.bind(fw.expr(e))
		}
		acc := fw.bind("ADDR(lit_nil)")
		for i := len(temps) - 1; i >= 0; i-- {
			cell := fw.bind("GC_allocate(12u)")
			fw.stmtf("STORE(%s, 0u, TAG_CONS);", cell)
			fw.stmtf("STORE(%s, 4u, %s);", cell, temps[i])
			fw.stmtf("STORE(%s, 8u, %s);", cell, acc)
			fw.stmtf("%s = %s;", acc, cell)
		}
		return acc
	case *ir.Tuple2:
		return fw.tuple("TAG_TUPLE_2", []ir.Expr{n.A, n.B})
	case *ir.Tuple3:
		return fw.tuple("TAG_TUPLE_3", []ir.Expr{n.A, n.B, n.C})

	default:
		codegen.Failf("expression %s has no native lowering", ir.DescribeExpr(e))
		return ""
	}
}

func (fw *funcWriter) setFields(r string, fields []ir.FieldValue) {
	temps := make([]string, len(fields))
	for i, f := range fields {
		temps[i] = fw.bind(fw.expr(f.Value))
	}
	for i, f := range fields {
		fw.stmtf("Record_setField(%s, %s, %s);", r, fw.g.fieldConst(f.Field), temps[i])
	}
}

func (fw *funcWriter) tuple(tag string, parts []ir.Expr) string {
	temps := make([]string, len(parts))
	for i, p := range parts {
		temps[i] = fw.bind(fw.expr(p))
	}
	t := fw.bind(fmt.Sprintf("GC_allocate(%du)", 4+4*len(parts)))
	fw.stmtf("STORE(%s, 0u, %s);", t, tag)
	for i, tmp := range temps {
		fw.stmtf("STORE(%s, %du, %s);", t, 4+4*i, tmp)
	}
	return t
}

// call lowers general application through the shared fen_apply loop: the
// callee and every argument are evaluated into temporaries first, then the
// helper fills open slots round by round, invoking the evaluator on each
// exact saturation and carrying leftover arguments into the result. A call
// may therefore supply more arguments than the callee's remaining capacity.
func (fw *funcWriter) call(n *ir.Call) string {
	f := fw.bind(fw.expr(n.Fn))
	if len(n.Args) == 0 {
		return fw.bind(fmt.Sprintf("%s(%s, 0u, 0)", fw.g.applyRef(), f))
	}
	temps := make([]string, len(n.Args))
	for i, a := range n.Args {
		temps[i] = fw.bind(fw.expr(a))
	}
	arr := fw.fresh()
	fw.stmtf("Value %s[] = { %s };", arr, strings.Join(temps, ", "))
	return fw.bind(fmt.Sprintf("%s(%s, %du, %s)", fw.g.applyRef(), f, len(temps), arr))
}

// tailCall rebinds the loop parameters and re-enters the enclosing for(;;).
// Next-iteration values are all computed before any rebinding.
func (fw *funcWriter) tailCall(n *ir.TailCall) string {
	codegen.Assertf(fw.inTail, "tail re-entry of %s outside a tail-recursive body", n.Name)
	temps := make([]string, len(n.Args))
	for i, a := range n.Args {
		temps[i] = fw.bind(fw.expr(a.Value))
	}
	for i, a := range n.Args {
		fw.stmtf("%s = %s;", fw.cvar(a.Name), temps[i])
	}
	fw.stmtf("continue;")
	return "0u"
}

func (fw *funcWriter) conditional(branches []ir.IfBranch, final ir.Expr) string {
	res := fw.fresh()
	fw.stmtf("Value %s;", res)
	fw.condArm(branches, final, res)
	return res
}

func (fw *funcWriter) condArm(branches []ir.IfBranch, final ir.Expr, res string) {
	if len(branches) == 0 {
		v := fw.expr(final)
		fw.stmtf("%s = %s;", res, v)
		return
	}
	cond := fw.expr(branches[0].Cond)
	fw.stmtf("if (%s) {", cond)
	fw.depth++
	v := fw.expr(branches[0].Then)
	fw.stmtf("%s = %s;", res, v)
	fw.depth--
	fw.stmtf("} else {")
	fw.depth++
	fw.condArm(branches[1:], final, res)
	fw.depth--
	fw.stmtf("}")
}

// caseExpr lowers a compiled decision tree with one goto label per shared
// jump body. Every decider path ends in a goto, so control reaches a jump
// body only through its label.
func (fw *funcWriter) caseExpr(n *ir.Case) string {
	// The scrutinee is captured even when the decider is a bare leaf that
	// never walks a path from it.
	fw.scope.Observe(n.Root)
	id := fw.caseN
	fw.caseN++
	res := fw.fresh()
	fw.stmtf("Value %s;", res)

	done := fmt.Sprintf("case_%d_done", id)
	labels := make(map[int]string, len(n.Jumps))
	for _, j := range n.Jumps {
		labels[j.ID] = fmt.Sprintf("case_%d_jump_%d", id, j.ID)
	}

	fw.decider(n.Decider, res, done, labels)

	for _, j := range n.Jumps {
		fw.stmtf("%s: {", labels[j.ID])
		fw.depth++
		v := fw.expr(j.Body)
		fw.stmtf("%s = %s;", res, v)
		fw.stmtf("goto %s;", done)
		fw.depth--
		fw.stmtf("}")
	}
	fw.stmtf("%s: ;", done)
	return res
}

func (fw *funcWriter) decider(d ir.Decider, res, done string, labels map[int]string) {
	switch n := d.(type) {
	case *ir.Leaf:
		if n.Inline != nil {
			v := fw.expr(n.Inline)
			fw.stmtf("%s = %s;", res, v)
			fw.stmtf("goto %s;", done)
			return
		}
		label, ok := labels[n.Jump]
		codegen.Assertf(ok, "decision leaf targets unknown jump label %d", n.Jump)
		fw.stmtf("goto %s;", label)
	case *ir.Chain:
		fw.chain(n.Tests, n.Success, n.Failure, res, done, labels)
	case *ir.FanOut:
		v := fw.bind(fw.pathValue(n.Path))
		for _, e := range n.Edges {
			fw.stmtf("if (%s) {", fw.test(e.Test, v))
			fw.depth++
			fw.decider(e.Next, res, done, labels)
			fw.depth--
			fw.stmtf("}")
		}
		fw.decider(n.Fallback, res, done, labels)
	default:
		codegen.Failf("decider %T has no native lowering", d)
	}
}

func (fw *funcWriter) chain(tests []ir.ChainTest, success, failure ir.Decider, res, done string, labels map[int]string) {
	if len(tests) == 0 {
		fw.decider(success, res, done, labels)
		return
	}
	v := fw.bind(fw.pathValue(tests[0].Path))
	fw.stmtf("if (%s) {", fw.test(tests[0].Test, v))
	fw.depth++
	fw.chain(tests[1:], success, failure, res, done, labels)
	fw.depth--
	fw.stmtf("} else {")
	fw.depth++
	fw.decider(failure, res, done, labels)
	fw.depth--
	fw.stmtf("}")
}

// pathValue walks a destructuring path from its root local. Sub points
// toward the root, so the recursion bottoms out there.
func (fw *funcWriter) pathValue(p ir.Path) string {
	switch s := p.(type) {
	case *ir.PathRoot:
		return fw.cvar(s.Name)
	case *ir.PathIndex:
		return fmt.Sprintf("LOAD(%s, %du)", fw.bindPath(s.Sub), 4*(s.Index+1))
	case *ir.PathField:
		return fmt.Sprintf("Record_access(%s, %s)", fw.bindPath(s.Sub), fw.g.fieldConst(s.Field))
	case *ir.PathUnbox:
		return fmt.Sprintf("LOAD(%s, 4u)", fw.bindPath(s.Sub))
	default:
		codegen.Failf("path step %T has no native lowering", p)
		return ""
	}
}

func (fw *funcWriter) bindPath(p ir.Path) string {
	if root, ok := p.(*ir.PathRoot); ok {
		return fw.cvar(root.Name)
	}
	return fw.bind(fw.pathValue(p))
}

func (fw *funcWriter) test(t ir.Test, v string) string {
	switch n := t.(type) {
	case *ir.IsCtor:
		return fmt.Sprintf("LOAD(%s, 0u) == %du", v, n.Index)
	case *ir.IsInt:
		return fmt.Sprintf("LOAD(%s, 4u) == (Value)%d", v, n.Value)
	case *ir.IsBool:
		if n.Value {
			return v + " == 1u"
		}
		return v + " == 0u"
	case *ir.IsChr:
		return fmt.Sprintf("Utils_eqChr(%s, ADDR(&%s))", v, fw.g.lits.CharRef(n.Value))
	case *ir.IsStr:
		return fmt.Sprintf("Utils_eqStr(%s, ADDR(&%s))", v, fw.g.lits.StringRef(n.Value))
	case *ir.IsCons:
		return fmt.Sprintf("LOAD(%s, 0u) == TAG_CONS", v)
	case *ir.IsNil:
		return fmt.Sprintf("LOAD(%s, 0u) == TAG_NIL", v)
	default:
		codegen.Failf("test %T has no native lowering", t)
		return ""
	}
}
