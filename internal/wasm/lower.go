package wasm

import (
	"github.com/fenlang/fenc/internal/codegen"
	"github.com/fenlang/fenc/internal/ir"
)

// Deferred is a global the bytecode target does not lower natively; the
// driver hands it to the scripting fallback backend.
type Deferred struct {
	Global ir.Global
	Node   ir.Node
}

type initEntry struct {
	global ir.Global
	fn     uint32
}

// Generator lowers reachable globals into a Module. It implements
// codegen.Backend; the shared Walker feeds it dependencies-first.
type Generator struct {
	mode codegen.Mode
	lits *codegen.LiteralTable
	mod  *Module

	globals    map[ir.Global]uint32 // program global -> wasm global index
	thunks     map[ir.Global]uint32 // cycle member -> lazy-init thunk
	inits      []initEntry
	deferred   []Deferred
	litOffsets map[string]uint32 // literal symbol -> linear-memory offset
	litCounts  map[string]uint32 // field-group symbol -> member count
	nilOffset  uint32
	hasNil     bool
}

// NewGenerator creates a bytecode generator over the given graph.
func NewGenerator(graph *ir.Graph, mode codegen.Mode) *Generator {
	return &Generator{
		mode:       mode,
		lits:       codegen.NewLiteralTable(graph.FieldFreq),
		mod:        NewModule(),
		globals:    make(map[ir.Global]uint32),
		thunks:     make(map[ir.Global]uint32),
		litOffsets: make(map[string]uint32),
		litCounts:  make(map[string]uint32),
	}
}

// Literals returns the shared deduplication table (exposed for tests).
func (g *Generator) Literals() *codegen.LiteralTable { return g.lits }

// Deferred returns the globals delegated to the scripting fallback.
func (g *Generator) Deferred() []Deferred { return g.deferred }

func (g *Generator) globalIndex(gl ir.Global) uint32 {
	if idx, ok := g.globals[gl]; ok {
		return idx
	}
	idx := g.mod.addGlobal()
	g.globals[gl] = idx
	return idx
}

// Shared literal realization. The table guarantees structural dedup; the
// offset map guarantees one data-segment payload per distinct entry.

func (g *Generator) intLit(v int32) uint32 {
	sym := g.lits.IntRef(v)
	if off, ok := g.litOffsets[sym]; ok {
		return off
	}
	payload := append(u32bytes(codegen.TagInt), i32bytes(v)...)
	off := g.mod.addData(payload)
	g.litOffsets[sym] = off
	return off
}

func (g *Generator) floatLit(v float64) uint32 {
	sym := g.lits.FloatRef(v)
	if off, ok := g.litOffsets[sym]; ok {
		return off
	}
	payload := append(u32bytes(codegen.TagFloat), f64bytes(v)...)
	off := g.mod.addData(payload)
	g.litOffsets[sym] = off
	return off
}

func (g *Generator) textLit(tag uint32, sym, text string) uint32 {
	if off, ok := g.litOffsets[sym]; ok {
		return off
	}
	payload := u32bytes(tag)
	payload = append(payload, u32bytes(uint32(len(text)))...)
	payload = append(payload, text...)
	off := g.mod.addData(payload)
	g.litOffsets[sym] = off
	return off
}

func (g *Generator) chrLit(v string) uint32 {
	return g.textLit(codegen.TagChar, g.lits.CharRef(v), v)
}

func (g *Generator) strLit(v string) uint32 {
	return g.textLit(codegen.TagString, g.lits.StringRef(v), v)
}

func (g *Generator) fieldGroupLit(fields []string) (uint32, int) {
	sym := g.lits.FieldGroupRef(fields)
	if off, ok := g.litOffsets[sym]; ok {
		return off, len(fields)
	}
	payload := u32bytes(uint32(len(fields)))
	for _, f := range fields {
		payload = append(payload, u32bytes(uint32(g.lits.FieldID(f)))...)
	}
	off := g.mod.addData(payload)
	g.litOffsets[sym] = off
	g.litCounts[sym] = uint32(len(fields))
	return off, len(fields)
}

// accessorLit interns the shared arity-1 closure reading one record field.
// The evaluator function and the static closure record are created together
// the first time the field's accessor is needed.
func (g *Generator) accessorLit(field string) uint32 {
	sym := g.lits.AccessorRef(field)
	if off, ok := g.litOffsets[sym]; ok {
		return off
	}
	fn := g.mod.reserveFunc(g.mod.evalType)
	var body []byte
	body = append(body, opLocalGet)
	body = append(body, uleb(0)...)
	body = append(body, opI32Load)
	body = append(body, uleb(2)...)
	body = append(body, uleb(codegen.SlotsOffset)...)
	body = append(body, opI32Const)
	body = append(body, sleb(int64(g.lits.FieldID(field)))...)
	body = append(body, opCall)
	body = append(body, uleb(importRecordAccess)...)
	body = append(body, opEnd)
	g.mod.setCode(fn, append(vector(0, nil), body...))
	tableIdx := g.mod.addTableEntry(fn)

	payload := u32bytes(tableIdx)
	payload = append(payload, u32bytes(codegen.ArityWord(0, 1))...)
	payload = append(payload, u32bytes(0)...)
	off := g.mod.addData(payload)
	g.litOffsets[sym] = off
	return off
}

func (g *Generator) nilLit() uint32 {
	if !g.hasNil {
		g.nilOffset = g.mod.addData(u32bytes(codegen.TagNil))
		g.hasNil = true
	}
	return g.nilOffset
}

// EmitGlobal lowers one graph node. The walker guarantees dependencies have
// been emitted and that this global is seen exactly once.
func (g *Generator) EmitGlobal(gl ir.Global, node ir.Node) error {
	switch n := node.(type) {
	case *ir.Define:
		g.emitDefine(gl, n.Body, false)
	case *ir.DefineTailFunc:
		g.emitDefine(gl, &ir.Function{Params: n.Params, Body: n.Body}, true)
	case *ir.Ctor:
		g.emitCtor(gl, n)
	case *ir.Link:
		g.emitLink(gl, n.To)
	case *ir.Enum:
		g.emitEnum(gl, n.Index)
	case *ir.Box:
		g.emitBox(gl)
	case *ir.Cycle:
		g.emitCycle(gl, n)
	case *ir.Manager, *ir.Kernel, *ir.PortIncoming, *ir.PortOutgoing:
		// Not natively lowered; handed to the scripting fallback.
		g.deferred = append(g.deferred, Deferred{Global: gl, Node: node})
	default:
		return codegen.Errorf(codegen.CategoryLowering, gl, "node kind %T not lowerable for the bytecode target", node)
	}
	return nil
}

// emitDefine synthesizes the initializer that computes the global's value
// and stores it into the wasm global.
func (g *Generator) emitDefine(gl ir.Global, body ir.Expr, tail bool) {
	gIdx := g.globalIndex(gl)
	fn := g.mod.reserveFunc(g.mod.initType)

	fb := newFuncBuilder(g, nil, false)
	if tail {
		f, ok := body.(*ir.Function)
		codegen.Assertf(ok, "tail definition %s is not a function literal", gl)
		tableIdx, layout := g.lowerFunction(f.Params, f.Body, true)
		codegen.Assertf(len(layout.Captured) == 0, "top-level function %s captures %v", gl, layout.Captured)
		fb.construct(tableIdx, layout)
	} else {
		fb.expr(body)
		captured := fb.scope.Captured()
		codegen.Assertf(len(captured) == 0, "top-level body of %s references unbound locals %v", gl, captured)
	}
	fb.emitOp(opGlobalSet)
	fb.emitUleb(uint64(gIdx))
	fb.pushConst(0)
	g.mod.setCode(fn, fb.finalize())
	g.inits = append(g.inits, initEntry{global: gl, fn: fn})
}

// emitCtor builds the evaluator for a data constructor and a static closure
// holding it. The evaluator reads its arguments straight out of the closure
// record and packs them behind the constructor tag.
func (g *Generator) emitCtor(gl ir.Global, n *ir.Ctor) {
	g.lits.CtorID(gl.Name)
	gIdx := g.globalIndex(gl)

	if n.Arity == 0 {
		// A nullary constructor is just its tag value on the heap.
		fn := g.mod.reserveFunc(g.mod.initType)
		fb := newFuncBuilder(g, nil, false)
		obj := fb.allocTo(4)
		fb.getLocal(obj)
		fb.pushConst(int64(n.Index))
		fb.store(0)
		fb.getLocal(obj)
		fb.emitOp(opGlobalSet)
		fb.emitUleb(uint64(gIdx))
		fb.pushConst(0)
		g.mod.setCode(fn, fb.finalize())
		g.inits = append(g.inits, initEntry{global: gl, fn: fn})
		return
	}

	params := make([]string, n.Arity)
	layout := codegen.NewLayout(params, nil)

	fn := g.mod.reserveFunc(g.mod.evalType)
	fb := newFuncBuilder(g, nil, true)
	obj := fb.allocTo(uint32(4 + 4*n.Arity))
	fb.getLocal(obj)
	fb.pushConst(int64(n.Index))
	fb.store(0)
	for i, slot := range layout.ParamSlots() {
		fb.getLocal(obj)
		fb.getLocal(0) // closure pointer
		fb.load(slot.Offset)
		fb.store(uint32(4 + 4*i))
	}
	fb.getLocal(obj)
	g.mod.setCode(fn, fb.finalize())
	tableIdx := g.mod.addTableEntry(fn)

	init := g.mod.reserveFunc(g.mod.initType)
	ib := newFuncBuilder(g, nil, false)
	ib.constructStatic(tableIdx, layout)
	ib.emitOp(opGlobalSet)
	ib.emitUleb(uint64(gIdx))
	ib.pushConst(0)
	g.mod.setCode(init, ib.finalize())
	g.inits = append(g.inits, initEntry{global: gl, fn: init})
}

func (g *Generator) emitLink(gl, to ir.Global) {
	gIdx := g.globalIndex(gl)
	toIdx := g.globalIndex(to)
	fn := g.mod.reserveFunc(g.mod.initType)
	fb := newFuncBuilder(g, nil, false)
	fb.emitOp(opGlobalGet)
	fb.emitUleb(uint64(toIdx))
	fb.emitOp(opGlobalSet)
	fb.emitUleb(uint64(gIdx))
	fb.pushConst(0)
	g.mod.setCode(fn, fb.finalize())
	g.inits = append(g.inits, initEntry{global: gl, fn: fn})
}

func (g *Generator) emitEnum(gl ir.Global, index int) {
	g.lits.CtorID(gl.Name)
	gIdx := g.globalIndex(gl)
	fn := g.mod.reserveFunc(g.mod.initType)
	fb := newFuncBuilder(g, nil, false)
	obj := fb.allocTo(4)
	fb.getLocal(obj)
	fb.pushConst(int64(index))
	fb.store(0)
	fb.getLocal(obj)
	fb.emitOp(opGlobalSet)
	fb.emitUleb(uint64(gIdx))
	fb.pushConst(0)
	g.mod.setCode(fn, fb.finalize())
	g.inits = append(g.inits, initEntry{global: gl, fn: fn})
}

func (g *Generator) emitBox(gl ir.Global) {
	gIdx := g.globalIndex(gl)
	id := g.lits.KernelID(gl.Module, gl.Name)
	g.lits.KernelRef(gl.Module, gl.Name)
	fn := g.mod.reserveFunc(g.mod.initType)
	fb := newFuncBuilder(g, nil, false)
	fb.pushConst(int64(id))
	fb.emitCall(importKernelRef)
	fb.emitOp(opGlobalSet)
	fb.emitUleb(uint64(gIdx))
	fb.pushConst(0)
	g.mod.setCode(fn, fb.finalize())
	g.inits = append(g.inits, initEntry{global: gl, fn: fn})
}

// emitCycle gives each member a lazy-init thunk; mutual references go
// through the thunks, which is the indirection that makes a well-defined
// initialization order possible without a topological one existing.
func (g *Generator) emitCycle(gl ir.Global, n *ir.Cycle) {
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

	// Reserve every thunk before lowering any body so members can call
	// each other's thunks freely.
	flags := make([]uint32, len(members))
	for i, m := range members {
		g.globalIndex(m.global)
		flags[i] = g.mod.addGlobal()
		g.thunks[m.global] = g.mod.reserveFunc(g.mod.initType)
	}

	for i, m := range members {
		gIdx := g.globalIndex(m.global)
		fb := newFuncBuilder(g, nil, false)
		fb.emitOp(opGlobalGet)
		fb.emitUleb(uint64(flags[i]))
		fb.emitOp(opI32Eqz)
		fb.emitOp(opIf, blockVoid)
		fb.blockDepth++
		fb.pushConst(1)
		fb.emitOp(opGlobalSet)
		fb.emitUleb(uint64(flags[i]))
		fb.expr(m.body)
		captured := fb.scope.Captured()
		codegen.Assertf(len(captured) == 0, "cycle member %s references unbound locals %v", m.global, captured)
		fb.emitOp(opGlobalSet)
		fb.emitUleb(uint64(gIdx))
		fb.emitOp(opEnd)
		fb.blockDepth--
		fb.emitOp(opGlobalGet)
		fb.emitUleb(uint64(gIdx))
		g.mod.setCode(g.thunks[m.global], fb.finalize())
	}

	// The group's initializer forces every member once, in declaration
	// order, so startup still runs each member exactly one time.
	fn := g.mod.reserveFunc(g.mod.initType)
	fb := newFuncBuilder(g, nil, false)
	for _, m := range members {
		fb.emitCall(g.thunks[m.global])
		fb.emitOp(opDrop)
	}
	fb.pushConst(0)
	g.mod.setCode(fn, fb.finalize())
	g.inits = append(g.inits, initEntry{global: gl, fn: fn})
}

// Finish synthesizes the program entry point and serializes the module. The
// entry point runs every recorded initializer in dependency order,
// short-circuits on a nonzero status, then registers the shared field-group
// descriptors.
func (g *Generator) Finish() []byte {
	start := g.mod.reserveFunc(g.mod.initType)
	fb := newFuncBuilder(g, nil, false)
	status := fb.allocTmp()
	for _, init := range g.inits {
		fb.emitCall(init.fn)
		fb.setLocal(status)
		fb.getLocal(status)
		fb.emitOp(opIf, blockVoid)
		fb.blockDepth++
		fb.getLocal(status)
		fb.emitOp(opReturn)
		fb.emitOp(opEnd)
		fb.blockDepth--
	}
	for _, lit := range g.lits.Defs() {
		if lit.Kind != codegen.LitFieldGroup {
			continue
		}
		fb.pushConst(int64(g.litOffsets[lit.Sym]))
		fb.pushConst(int64(g.litCounts[lit.Sym]))
		fb.emitCall(importFieldsRegister)
	}
	fb.pushConst(0)
	g.mod.setCode(start, fb.finalize())

	g.mod.addExport("main", kindFunc, start)
	g.mod.addExport("memory", kindMemory, 0)
	g.emitNameTable("fields_table", g.lits.Fields())
	g.emitNameTable("ctors_table", g.lits.Ctors())
	g.emitNameTable("kernels_table", g.lits.Kernels())

	return g.mod.Emit()
}

// emitNameTable writes one enumerated string table into the data segment as
// [count][len bytes]... and exports a function returning its offset.
func (g *Generator) emitNameTable(export string, names []string) {
	payload := u32bytes(uint32(len(names)))
	for _, n := range names {
		payload = append(payload, u32bytes(uint32(len(n)))...)
		payload = append(payload, n...)
	}
	off := g.mod.addData(payload)

	fn := g.mod.reserveFunc(g.mod.initType)
	fb := newFuncBuilder(g, nil, false)
	fb.pushConst(int64(off))
	g.mod.setCode(fn, fb.finalize())
	g.mod.addExport(export, kindFunc, fn)
}
