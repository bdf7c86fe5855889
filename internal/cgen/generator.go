package cgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fenlang/fenc/internal/codegen"
	"github.com/fenlang/fenc/internal/ir"
)

// Deferred is a global the native target does not lower; the driver hands it
// to the scripting fallback backend.
type Deferred struct {
	Global ir.Global
	Node   ir.Node
}

// Generator lowers reachable globals into a single C translation unit. It
// implements codegen.Backend; the shared Walker feeds it dependencies-first.
type Generator struct {
	mode codegen.Mode
	lits *codegen.LiteralTable

	protos []string        // forward declarations, in creation order
	fns    strings.Builder // evaluator, initializer and thunk definitions

	globals     map[ir.Global]string // program global -> C variable
	globalOrder []string
	thunks      map[ir.Global]string // cycle member -> thunk function
	inits       []string             // initializer functions, dependency order
	deferred    []Deferred
	lambdaCount int
	usesNil     bool
	usesApply   bool
}

// NewGenerator creates a native-target generator over the given graph.
func NewGenerator(graph *ir.Graph, mode codegen.Mode) *Generator {
	return &Generator{
		mode:    mode,
		lits:    codegen.NewLiteralTable(graph.FieldFreq),
		globals: make(map[ir.Global]string),
		thunks:  make(map[ir.Global]string),
	}
}

// Literals returns the shared deduplication table (exposed for tests).
func (c *Generator) Literals() *codegen.LiteralTable { return c.lits }

// Deferred returns the globals delegated to the scripting fallback.
func (c *Generator) Deferred() []Deferred { return c.deferred }

func (c *Generator) globalVar(gl ir.Global) string {
	if name, ok := c.globals[gl]; ok {
		return name
	}
	name := codegen.GlobalName(gl)
	c.globals[gl] = name
	c.globalOrder = append(c.globalOrder, name)
	return name
}

func (c *Generator) proto(decl string) {
	c.protos = append(c.protos, decl)
}

// applyRef marks the application helper as needed and names it.
func (c *Generator) applyRef() string {
	c.usesApply = true
	return "fen_apply"
}

func (c *Generator) fieldConst(name string) string {
	id := c.lits.FieldID(name)
	return constNames("FIELD_", c.lits.Fields())[id]
}

func (c *Generator) ctorConst(name string) string {
	id := c.lits.CtorID(name)
	return constNames("CTOR_", c.lits.Ctors())[id]
}

func (c *Generator) kernelConst(module, name string) string {
	id := c.lits.KernelID(module, name)
	return constNames("KERNEL_", c.lits.Kernels())[id]
}

// EmitGlobal lowers one graph node. The walker guarantees dependencies have
// been emitted and that this global is seen exactly once.
func (c *Generator) EmitGlobal(gl ir.Global, node ir.Node) error {
	switch n := node.(type) {
	case *ir.Define:
		c.emitDefine(gl, n.Body, false)
	case *ir.DefineTailFunc:
		c.emitDefine(gl, &ir.Function{Params: n.Params, Body: n.Body}, true)
	case *ir.Ctor:
		c.emitCtor(gl, n)
	case *ir.Link:
		c.emitLink(gl, n.To)
	case *ir.Enum:
		c.emitTagOnly(gl, int(n.Index))
	case *ir.Box:
		c.emitBox(gl)
	case *ir.Cycle:
		c.emitCycle(gl, n)
	case *ir.Manager, *ir.Kernel, *ir.PortIncoming, *ir.PortOutgoing:
		c.deferred = append(c.deferred, Deferred{Global: gl, Node: node})
	default:
		return codegen.Errorf(codegen.CategoryLowering, gl, "node kind %T not lowerable for the native target", node)
	}
	return nil
}

// emitDefine writes the initializer computing the global's value.
func (c *Generator) emitDefine(gl ir.Global, body ir.Expr, tail bool) {
	varName := c.globalVar(gl)
	initName := codegen.InitFnName(gl)

	fw := newFuncWriter(c, nil)
	var value string
	if tail {
		f, ok := body.(*ir.Function)
		codegen.Assertf(ok, "tail definition %s is not a function literal", gl)
		eval, layout := c.lowerFunction(f.Params, f.Body, true)
		codegen.Assertf(len(layout.Captured) == 0, "top-level function %s captures %v", gl, layout.Captured)
		value = fw.construct(eval, layout)
	} else {
		value = fw.expr(body)
		captured := fw.scope.Captured()
		codegen.Assertf(len(captured) == 0, "top-level body of %s references unbound locals %v", gl, captured)
	}

	c.proto("static Value " + initName + "(void);")
	var b strings.Builder
	fmt.Fprintf(&b, "static Value %s(void) {\n", initName)
	fw.writeStmts(&b)
	fmt.Fprintf(&b, "\t%s = %s;\n", varName, value)
	b.WriteString("\treturn 0;\n}\n\n")
	c.fns.WriteString(b.String())
	c.inits = append(c.inits, initName)
}

// emitCtor writes the evaluator packing constructor arguments behind the tag
// plus the initializer constructing its empty static closure.
func (c *Generator) emitCtor(gl ir.Global, n *ir.Ctor) {
	c.lits.CtorID(gl.Name)
	varName := c.globalVar(gl)
	initName := codegen.InitFnName(gl)

	if n.Arity == 0 {
		c.emitTagOnly(gl, int(n.Index))
		return
	}

	params := make([]string, n.Arity)
	layout := codegen.NewLayout(params, nil)
	eval := codegen.GlobalName(gl) + "_eval"
	c.proto("static Value " + eval + "(Value c);")

	var b strings.Builder
	fmt.Fprintf(&b, "static Value %s(Value c) {\n", eval)
	fmt.Fprintf(&b, "\tValue obj = GC_allocate(%du);\n", 4+4*n.Arity)
	fmt.Fprintf(&b, "\tSTORE(obj, 0u, %du);\n", n.Index)
	for i, slot := range layout.ParamSlots() {
		fmt.Fprintf(&b, "\tSTORE(obj, %du, LOAD(c, %du));\n", 4+4*i, slot.Offset)
	}
	b.WriteString("\treturn obj;\n}\n\n")
	c.fns.WriteString(b.String())

	fw := newFuncWriter(c, nil)
	value := fw.construct(eval, layout)
	c.proto("static Value " + initName + "(void);")
	b.Reset()
	fmt.Fprintf(&b, "static Value %s(void) {\n", initName)
	fw.writeStmts(&b)
	fmt.Fprintf(&b, "\t%s = %s;\n", varName, value)
	b.WriteString("\treturn 0;\n}\n\n")
	c.fns.WriteString(b.String())
	c.inits = append(c.inits, initName)
}

// emitTagOnly covers nullary constructors and enum globals: a 4-byte heap
// cell carrying just the discriminant.
func (c *Generator) emitTagOnly(gl ir.Global, index int) {
	c.lits.CtorID(gl.Name)
	varName := c.globalVar(gl)
	initName := codegen.InitFnName(gl)
	c.proto("static Value " + initName + "(void);")
	var b strings.Builder
	fmt.Fprintf(&b, "static Value %s(void) {\n", initName)
	fmt.Fprintf(&b, "\t%s = GC_allocate(4u);\n", varName)
	fmt.Fprintf(&b, "\tSTORE(%s, 0u, %du);\n", varName, index)
	b.WriteString("\treturn 0;\n}\n\n")
	c.fns.WriteString(b.String())
	c.inits = append(c.inits, initName)
}

func (c *Generator) emitLink(gl, to ir.Global) {
	varName := c.globalVar(gl)
	toName := c.globalVar(to)
	initName := codegen.InitFnName(gl)
	c.proto("static Value " + initName + "(void);")
	fmt.Fprintf(&c.fns, "static Value %s(void) {\n\t%s = %s;\n\treturn 0;\n}\n\n", initName, varName, toName)
	c.inits = append(c.inits, initName)
}

func (c *Generator) emitBox(gl ir.Global) {
	varName := c.globalVar(gl)
	initName := codegen.InitFnName(gl)
	kc := c.kernelConst(gl.Module, gl.Name)
	c.lits.KernelRef(gl.Module, gl.Name)
	c.proto("static Value " + initName + "(void);")
	fmt.Fprintf(&c.fns, "static Value %s(void) {\n\t%s = Kernel_ref(%s);\n\treturn 0;\n}\n\n", initName, varName, kc)
	c.inits = append(c.inits, initName)
}

// emitCycle gives each member a guarded lazy-init thunk so mutual references
// resolve without a topological order existing.
func (c *Generator) emitCycle(gl ir.Global, n *ir.Cycle) {
	type member struct {
		global ir.Global
		body   ir.Expr
	}
	var members []member
	for _, v := range n.Values {
		members = append(members, member{ir.Global{Module: gl.Module, Name: v.Name}, v.Value})
	}
	for _, f := range n.Funcs {
		members = append(members, member{ir.Global{Module: gl.Module, Name: f.Name}, f.Fn})
	}

	// Register every thunk before lowering any body so members can call
	// each other freely.
	for _, m := range members {
		c.globalVar(m.global)
		c.globalOrder = append(c.globalOrder, c.globals[m.global]+"_flag")
		thunk := codegen.CycleThunkName(m.global)
		c.thunks[m.global] = thunk
		c.proto("static Value " + thunk + "(void);")
	}

	for _, m := range members {
		varName := c.globals[m.global]
		fw := newFuncWriter(c, nil)
		fw.depth = 2
		value := fw.expr(m.body)
		captured := fw.scope.Captured()
		codegen.Assertf(len(captured) == 0, "cycle member %s references unbound locals %v", m.global, captured)

		var b strings.Builder
		fmt.Fprintf(&b, "static Value %s(void) {\n", c.thunks[m.global])
		fmt.Fprintf(&b, "\tif (!%s_flag) {\n", varName)
		fmt.Fprintf(&b, "\t\t%s_flag = 1;\n", varName)
		fw.writeStmts(&b)
		fmt.Fprintf(&b, "\t\t%s = %s;\n", varName, value)
		b.WriteString("\t}\n")
		fmt.Fprintf(&b, "\treturn %s;\n}\n\n", varName)
		c.fns.WriteString(b.String())
	}

	// The group initializer forces every member once, in declaration order.
	initName := codegen.InitFnName(gl)
	c.proto("static Value " + initName + "(void);")
	var b strings.Builder
	fmt.Fprintf(&b, "static Value %s(void) {\n", initName)
	for _, m := range members {
		fmt.Fprintf(&b, "\t%s();\n", c.thunks[m.global])
	}
	b.WriteString("\treturn 0;\n}\n\n")
	c.fns.WriteString(b.String())
	c.inits = append(c.inits, initName)
}

// lowerFunction compiles one function body into a standalone evaluator and
// returns its name with the closure layout the capture analysis settled on.
// The entry prologue and every construction site both walk layout.Slots, so
// the offsets agree by construction.
func (c *Generator) lowerFunction(params []string, body ir.Expr, tail bool) (string, codegen.Layout) {
	name := fmt.Sprintf("lambda_%d", c.lambdaCount)
	c.lambdaCount++
	c.proto("static Value " + name + "(Value c);")

	fw := newFuncWriter(c, params)
	if tail {
		fw.inTail = true
		fw.depth = 2
	}
	ret := fw.expr(body)
	layout := codegen.NewLayout(params, fw.scope.Captured())

	var b strings.Builder
	fmt.Fprintf(&b, "static Value %s(Value c) {\n", name)
	for _, slot := range layout.Slots() {
		fmt.Fprintf(&b, "\tValue %s = LOAD(c, %du);\n", codegen.LocalName(slot.Name), slot.Offset)
	}
	if tail {
		b.WriteString("\tfor (;;) {\n")
		fw.writeStmts(&b)
		fmt.Fprintf(&b, "\t\treturn %s;\n\t}\n", ret)
	} else {
		fw.writeStmts(&b)
		fmt.Fprintf(&b, "\treturn %s;\n", ret)
	}
	b.WriteString("}\n\n")
	c.fns.WriteString(b.String())
	return name, layout
}

// Finish assembles the complete translation unit: prelude, tag tables,
// shared literal declarations, forward declarations, the lowered functions
// and a main that runs every initializer in dependency order.
func (c *Generator) Finish() []byte {
	var out strings.Builder
	out.WriteString(prelude)
	out.WriteString("\n")
	if c.usesApply {
		out.WriteString(applyHelper)
		out.WriteString("\n")
	}
	out.WriteString(tagEnum())
	out.WriteString("\n")

	fieldConsts := constNames("FIELD_", c.lits.Fields())
	ctorConsts := constNames("CTOR_", c.lits.Ctors())
	kernelConsts := constNames("KERNEL_", c.lits.Kernels())
	for _, e := range []string{enumDecl(fieldConsts), enumDecl(ctorConsts), enumDecl(kernelConsts)} {
		if e != "" {
			out.WriteString(e)
			out.WriteString("\n")
		}
	}
	for _, t := range []string{
		nameTable("fen_fields", c.lits.Fields()),
		nameTable("fen_ctors", c.lits.Ctors()),
		nameTable("fen_kernels", c.lits.Kernels()),
	} {
		if t != "" {
			out.WriteString(t)
			out.WriteString("\n")
		}
	}

	for _, name := range c.globalOrder {
		fmt.Fprintf(&out, "static Value %s;\n", name)
	}
	if len(c.globalOrder) > 0 {
		out.WriteString("\n")
	}

	setup := c.writeLiterals(&out, fieldConsts)

	for _, p := range c.protos {
		out.WriteString(p)
		out.WriteString("\n")
	}
	if len(c.protos) > 0 {
		out.WriteString("\n")
	}

	out.WriteString(c.fns.String())

	out.WriteString("int main(void) {\n")
	out.WriteString("\tValue status;\n")
	if setup {
		out.WriteString("\tlit_setup();\n")
	}
	for _, init := range c.inits {
		fmt.Fprintf(&out, "\tif ((status = %s())) { return (int)status; }\n", init)
	}
	for _, lit := range c.lits.Defs() {
		if lit.Kind == codegen.LitFieldGroup {
			fmt.Fprintf(&out, "\tFields_register(ADDR(%s), %du);\n", lit.Sym, len(lit.Fields))
		}
	}
	out.WriteString("\treturn 0;\n}\n")
	return []byte(out.String())
}

// writeLiterals emits one declaration per deduplicated shared literal and,
// when needed, the lit_setup routine filling accessor closure records whose
// headers are not constant expressions. Reports whether lit_setup exists.
func (c *Generator) writeLiterals(out *strings.Builder, fieldConsts []string) bool {
	var setup []string
	for _, lit := range c.lits.Defs() {
		switch lit.Kind {
		case codegen.LitInt:
			fmt.Fprintf(out, "static struct { Value tag; int32_t value; } %s = { TAG_INT, %d };\n", lit.Sym, lit.Int)
		case codegen.LitFloat:
			fmt.Fprintf(out, "static struct { Value tag; double value; } %s = { TAG_FLOAT, %s };\n", lit.Sym, strconv.FormatFloat(lit.Float, 'g', -1, 64))
		case codegen.LitChar:
			fmt.Fprintf(out, "static struct { Value tag; Value len; char data[%d]; } %s = { TAG_CHAR, %du, \"%s\" };\n",
				len(lit.Text)+1, lit.Sym, len(lit.Text), codegen.EscapeString(lit.Text))
		case codegen.LitString:
			fmt.Fprintf(out, "static struct { Value tag; Value len; char data[%d]; } %s = { TAG_STRING, %du, \"%s\" };\n",
				len(lit.Text)+1, lit.Sym, len(lit.Text), codegen.EscapeString(lit.Text))
		case codegen.LitFieldGroup:
			ids := make([]string, 0, len(lit.Fields)+1)
			ids = append(ids, fmt.Sprintf("%du", len(lit.Fields)))
			for _, f := range lit.Fields {
				ids = append(ids, fieldConsts[c.lits.FieldID(f)])
			}
			fmt.Fprintf(out, "static Value %s[] = { %s };\n", lit.Sym, strings.Join(ids, ", "))
		case codegen.LitAccessor:
			fmt.Fprintf(out, "static Value %s_eval(Value c) { return Record_access(LOAD(c, %du), %s); }\n",
				lit.Sym, codegen.SlotsOffset, fieldConsts[c.lits.FieldID(lit.Name)])
			fmt.Fprintf(out, "static Value %s[3];\n", lit.Sym)
			setup = append(setup,
				fmt.Sprintf("\t%s[0] = ADDR(&%s_eval);", lit.Sym, lit.Sym),
				fmt.Sprintf("\t%s[1] = 0x%xu;", lit.Sym, codegen.ArityWord(0, 1)),
			)
		case codegen.LitKernel:
			// Resolved at runtime through Kernel_ref; no static payload.
		}
	}
	if c.nilNeeded() {
		fmt.Fprintf(out, "static Value lit_nil[1] = { TAG_NIL };\n")
	}
	if len(c.lits.Defs()) > 0 || c.nilNeeded() {
		out.WriteString("\n")
	}
	if len(setup) == 0 {
		return false
	}
	out.WriteString("static void lit_setup(void) {\n")
	for _, s := range setup {
		out.WriteString(s)
		out.WriteString("\n")
	}
	out.WriteString("}\n\n")
	return true
}

func (c *Generator) nilNeeded() bool {
	return c.usesNil
}
