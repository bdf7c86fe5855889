package wasm

import (
	"github.com/fenlang/fenc/internal/codegen"
	"github.com/fenlang/fenc/internal/ir"
)

// funcBuilder accumulates the instruction stream of one wasm function. Every
// value is an i32: either an immediate (booleans, unit, enum-free scalars on
// the operand stack) or a pointer into linear memory. Locals beyond the
// optional closure parameter are assigned lazily and declared in finalize.
type funcBuilder struct {
	g     *Generator
	scope *codegen.Scope

	locals    map[string]uint32
	nParams   uint32
	nextLocal uint32

	body       []byte
	blockDepth int

	tailLoop  bool
	tailDepth int
}

func newFuncBuilder(g *Generator, params []string, hasClosure bool) *funcBuilder {
	fb := &funcBuilder{
		g:      g,
		scope:  codegen.NewScope(params),
		locals: make(map[string]uint32),
	}
	if hasClosure {
		fb.nParams = 1
		fb.nextLocal = 1
	}
	return fb
}

// Raw emission helpers.

func (fb *funcBuilder) emitOp(ops ...byte) {
	fb.body = append(fb.body, ops...)
}

func (fb *funcBuilder) emitUleb(v uint64) {
	fb.body = append(fb.body, uleb(v)...)
}

func (fb *funcBuilder) pushConst(v int64) {
	fb.body = append(fb.body, opI32Const)
	fb.body = append(fb.body, sleb(v)...)
}

func (fb *funcBuilder) emitCall(fn uint32) {
	fb.emitOp(opCall)
	fb.emitUleb(uint64(fn))
}

func (fb *funcBuilder) getLocal(idx uint32) {
	fb.emitOp(opLocalGet)
	fb.emitUleb(uint64(idx))
}

func (fb *funcBuilder) setLocal(idx uint32) {
	fb.emitOp(opLocalSet)
	fb.emitUleb(uint64(idx))
}

func (fb *funcBuilder) load(off uint32) {
	fb.emitOp(opI32Load)
	fb.emitUleb(2)
	fb.emitUleb(uint64(off))
}

func (fb *funcBuilder) store(off uint32) {
	fb.emitOp(opI32Store)
	fb.emitUleb(2)
	fb.emitUleb(uint64(off))
}

// allocTmp reserves one anonymous i32 local.
func (fb *funcBuilder) allocTmp() uint32 {
	idx := fb.nextLocal
	fb.nextLocal++
	return idx
}

// allocTo allocates size heap bytes and parks the pointer in a fresh local.
func (fb *funcBuilder) allocTo(size uint32) uint32 {
	t := fb.allocTmp()
	fb.pushConst(int64(size))
	fb.emitCall(importGCAllocate)
	fb.setLocal(t)
	return t
}

// localFor returns the wasm local carrying the named binding, assigning one
// on first use. The assignment is position-independent, which is what lets
// the closure prologue be prepended after the body is built.
func (fb *funcBuilder) localFor(name string) uint32 {
	if idx, ok := fb.locals[name]; ok {
		return idx
	}
	idx := fb.allocTmp()
	fb.locals[name] = idx
	return idx
}

// finalize declares the extra locals and closes the function body.
func (fb *funcBuilder) finalize() []byte {
	codegen.Assertf(fb.blockDepth == 0, "unbalanced blocks at function end: depth %d", fb.blockDepth)
	extras := fb.nextLocal - fb.nParams
	var out []byte
	if extras == 0 {
		out = uleb(0)
	} else {
		out = uleb(1)
		out = append(out, uleb(uint64(extras))...)
		out = append(out, valI32)
	}
	out = append(out, fb.body...)
	out = append(out, opEnd)
	return out
}

// construct materializes a closure record for the given evaluator: header,
// arity word with the captured slots pre-counted as filled, then the
// captured values read out of the current scope.
func (fb *funcBuilder) construct(tableIdx uint32, layout codegen.Layout) {
	t := fb.allocTo(layout.Size())
	fb.getLocal(t)
	fb.pushConst(int64(tableIdx))
	fb.store(codegen.HeaderOffset)
	fb.getLocal(t)
	fb.pushConst(int64(codegen.ArityWord(len(layout.Captured), len(layout.Slots()))))
	fb.store(codegen.ArityOffset)
	for _, slot := range layout.CapturedSlots() {
		fb.scope.Observe(slot.Name)
		fb.getLocal(t)
		fb.getLocal(fb.localFor(slot.Name))
		fb.store(slot.Offset)
	}
	fb.getLocal(t)
}

func (fb *funcBuilder) constructStatic(tableIdx uint32, layout codegen.Layout) {
	codegen.Assertf(len(layout.Captured) == 0, "static closure construction with captured slots %v", layout.Captured)
	fb.construct(tableIdx, layout)
}

// lowerFunction compiles one function body into an evaluator, registers it in
// the indirect-call table and returns its table index with the closure layout
// the capture analysis settled on. The prologue copying every slot into a
// local is prepended only once the body has told us what it closes over.
func (g *Generator) lowerFunction(params []string, body ir.Expr, tail bool) (uint32, codegen.Layout) {
	fn := g.mod.reserveFunc(g.mod.evalType)
	fb := newFuncBuilder(g, params, true)
	if tail {
		fb.tailLoop = true
		fb.emitOp(opLoop, valI32)
		fb.blockDepth++
		fb.tailDepth = fb.blockDepth
	}
	fb.expr(body)
	if tail {
		fb.emitOp(opEnd)
		fb.blockDepth--
	}

	layout := codegen.NewLayout(params, fb.scope.Captured())
	var pro []byte
	for _, slot := range layout.Slots() {
		pro = append(pro, opLocalGet)
		pro = append(pro, uleb(0)...)
		pro = append(pro, opI32Load)
		pro = append(pro, uleb(2)...)
		pro = append(pro, uleb(uint64(slot.Offset))...)
		pro = append(pro, opLocalSet)
		pro = append(pro, uleb(uint64(fb.localFor(slot.Name)))...)
	}
	fb.body = append(pro, fb.body...)
	g.mod.setCode(fn, fb.finalize())
	return g.mod.addTableEntry(fn), layout
}

// expr lowers one expression, leaving its i32 value on the operand stack.
func (fb *funcBuilder) expr(e ir.Expr) {
	switch n := e.(type) {
	case *ir.Bool:
		if n.Value {
			fb.pushConst(1)
		} else {
			fb.pushConst(0)
		}
	case *ir.Unit:
		fb.pushConst(0)
	case *ir.Int:
		fb.pushConst(int64(fb.g.intLit(n.Value)))
	case *ir.Float:
		fb.pushConst(int64(fb.g.floatLit(n.Value)))
	case *ir.Chr:
		fb.pushConst(int64(fb.g.chrLit(n.Value)))
	case *ir.Str:
		fb.pushConst(int64(fb.g.strLit(n.Value)))
	case *ir.Shader:
		fb.pushConst(int64(fb.g.strLit(n.Src)))

	case *ir.VarLocal:
		fb.scope.Observe(n.Name)
		fb.getLocal(fb.localFor(n.Name))
	case *ir.VarDebug:
		fb.scope.Observe(n.Name)
		fb.getLocal(fb.localFor(n.Name))
		if fb.g.mode == codegen.ModeDev {
			tag := n.Name
			if n.Region != "" {
				tag = n.Region + "." + n.Name
			}
			fb.pushConst(int64(fb.g.strLit(tag)))
			fb.emitCall(importDebugTrack)
		}
	case *ir.VarGlobal:
		fb.emitOp(opGlobalGet)
		fb.emitUleb(uint64(fb.g.globalIndex(n.Global)))
	case *ir.VarEnum:
		fb.emitOp(opGlobalGet)
		fb.emitUleb(uint64(fb.g.globalIndex(n.Global)))
	case *ir.VarBox:
		fb.emitOp(opGlobalGet)
		fb.emitUleb(uint64(fb.g.globalIndex(n.Global)))
	case *ir.VarCycle:
		thunk, ok := fb.g.thunks[n.Global]
		codegen.Assertf(ok, "cyclic reference to %s before its group was emitted", n.Global)
		fb.emitCall(thunk)
	case *ir.VarKernel:
		id := fb.g.lits.KernelID(n.Module, n.Name)
		fb.g.lits.KernelRef(n.Module, n.Name)
		fb.pushConst(int64(id))
		fb.emitCall(importKernelRef)

	case *ir.Function:
		tableIdx, layout := fb.g.lowerFunction(n.Params, n.Body, false)
		fb.scope.PassThrough(layout.Captured)
		fb.construct(tableIdx, layout)

	case *ir.Call:
		fb.call(n)
	case *ir.TailCall:
		fb.tailCall(n)

	case *ir.If:
		fb.conditional(n.Branches, n.Final)
	case *ir.Let:
		fb.expr(n.Value)
		fb.scope.BindLocal(n.Name)
		fb.setLocal(fb.localFor(n.Name))
		fb.expr(n.Body)
	case *ir.Destruct:
		fb.pathValue(n.Path)
		fb.scope.BindLocal(n.Name)
		fb.setLocal(fb.localFor(n.Name))
		fb.expr(n.Body)
	case *ir.Case:
		fb.caseExpr(n)

	case *ir.Accessor:
		fb.pushConst(int64(fb.g.accessorLit(n.Field)))
	case *ir.Access:
		fb.expr(n.Record)
		fb.pushConst(int64(fb.g.lits.FieldID(n.Field)))
		fb.emitCall(importRecordAccess)
	case *ir.Update:
		fb.expr(n.Record)
		fb.emitCall(importRecordClone)
		r := fb.allocTmp()
		fb.setLocal(r)
		fb.setFields(r, n.Fields)
		fb.getLocal(r)
	case *ir.Record:
		names := make([]string, len(n.Fields))
		for i, f := range n.Fields {
			names[i] = f.Field
		}
		off, count := fb.g.fieldGroupLit(names)
		temps := fb.evalToTemps(fieldExprs(n.Fields))
		fb.pushConst(int64(off))
		fb.pushConst(int64(count))
		fb.emitCall(importRecordAlloc)
		r := fb.allocTmp()
		fb.setLocal(r)
		for i, f := range n.Fields {
			fb.getLocal(r)
			fb.pushConst(int64(fb.g.lits.FieldID(f.Field)))
			fb.getLocal(temps[i])
			fb.emitCall(importRecordSetField)
		}
		fb.getLocal(r)

	case *ir.List:
		temps := fb.evalToTemps(n.Entries)
		acc := fb.allocTmp()
		fb.pushConst(int64(fb.g.nilLit()))
		fb.setLocal(acc)
		for i := len(temps) - 1; i >= 0; i-- {
			cell := fb.allocTo(12)
			fb.getLocal(cell)
			fb.pushConst(int64(codegen.TagCons))
			fb.store(0)
			fb.getLocal(cell)
			fb.getLocal(temps[i])
			fb.store(4)
			fb.getLocal(cell)
			fb.getLocal(acc)
			fb.store(8)
			fb.getLocal(cell)
			fb.setLocal(acc)
		}
		fb.getLocal(acc)
	case *ir.Tuple2:
		temps := fb.evalToTemps([]ir.Expr{n.A, n.B})
		fb.tuple(codegen.TagTuple2, temps)
	case *ir.Tuple3:
		temps := fb.evalToTemps([]ir.Expr{n.A, n.B, n.C})
		fb.tuple(codegen.TagTuple3, temps)

	default:
		codegen.Failf("expression %s has no bytecode lowering", ir.DescribeExpr(e))
	}
}

func fieldExprs(fields []ir.FieldValue) []ir.Expr {
	out := make([]ir.Expr, len(fields))
	for i, f := range fields {
		out[i] = f.Value
	}
	return out
}

// evalToTemps evaluates each expression left to right into a fresh local,
// pinning evaluation order before any store order comes into play.
func (fb *funcBuilder) evalToTemps(exprs []ir.Expr) []uint32 {
	temps := make([]uint32, len(exprs))
	for i, e := range exprs {
		fb.expr(e)
		temps[i] = fb.allocTmp()
		fb.setLocal(temps[i])
	}
	return temps
}

func (fb *funcBuilder) setFields(r uint32, fields []ir.FieldValue) {
	temps := fb.evalToTemps(fieldExprs(fields))
	for i, f := range fields {
		fb.getLocal(r)
		fb.pushConst(int64(fb.g.lits.FieldID(f.Field)))
		fb.getLocal(temps[i])
		fb.emitCall(importRecordSetField)
	}
}

func (fb *funcBuilder) tuple(tag uint32, temps []uint32) {
	t := fb.allocTo(uint32(4 + 4*len(temps)))
	fb.getLocal(t)
	fb.pushConst(int64(tag))
	fb.store(0)
	for i, tmp := range temps {
		fb.getLocal(t)
		fb.getLocal(tmp)
		fb.store(uint32(4 + 4*i))
	}
	fb.getLocal(t)
}

// call lowers general application as a chain of single-argument rounds, so a
// call may supply more arguments than the callee's remaining capacity:
// leftover arguments are applied to whatever each saturation round's
// evaluator returned. A zero-argument call still runs one round, forcing a
// saturated zero-arity thunk.
func (fb *funcBuilder) call(n *ir.Call) {
	fb.expr(n.Fn)
	f := fb.allocTmp()
	fb.setLocal(f)

	temps := fb.evalToTemps(n.Args)

	c := fb.allocTmp()
	w := fb.allocTmp()

	if len(temps) == 0 {
		fb.applyOne(f, c, w, 0, false)
		return
	}
	for i, tmp := range temps {
		fb.applyOne(f, c, w, tmp, true)
		if i < len(temps)-1 {
			fb.setLocal(f)
		}
	}
}

// applyOne advances one application round: shallow-copy the closure in src,
// store one argument (when present) into its first open slot, bump the
// filled count, and leave either the evaluator's result (exact saturation)
// or the partial copy on the stack.
func (fb *funcBuilder) applyOne(src, c, w, arg uint32, hasArg bool) {
	fb.getLocal(src)
	fb.emitCall(importGCShallowCopy)
	fb.setLocal(c)

	fb.getLocal(c)
	fb.load(codegen.ArityOffset)
	fb.setLocal(w)

	k := int64(0)
	if hasArg {
		k = 1
		// first open slot: copy + SlotsOffset + SlotBytes*filled
		fb.getLocal(c)
		fb.pushConst(codegen.SlotsOffset)
		fb.emitOp(opI32Add)
		fb.getLocal(w)
		fb.pushConst(0xffff)
		fb.emitOp(opI32And)
		fb.pushConst(codegen.SlotBytes)
		fb.emitOp(opI32Mul)
		fb.emitOp(opI32Add)
		fb.getLocal(arg)
		fb.store(0)

		fb.getLocal(c)
		fb.getLocal(w)
		fb.pushConst(k)
		fb.emitOp(opI32Add)
		fb.store(codegen.ArityOffset)
	}

	// Saturated exactly when the new filled count matches the declared max.
	fb.getLocal(w)
	fb.pushConst(k)
	fb.emitOp(opI32Add)
	fb.pushConst(0xffff)
	fb.emitOp(opI32And)
	fb.getLocal(w)
	fb.pushConst(16)
	fb.emitOp(opI32ShrU)
	fb.emitOp(opI32Eq)
	fb.emitOp(opIf, valI32)
	fb.blockDepth++
	fb.getLocal(c)
	fb.getLocal(c)
	fb.load(codegen.HeaderOffset)
	fb.emitOp(opCallIndirect)
	fb.emitUleb(uint64(fb.g.mod.evalType))
	fb.emitUleb(0)
	fb.emitOp(opElse)
	fb.getLocal(c)
	fb.emitOp(opEnd)
	fb.blockDepth--
}

// tailCall rebinds the loop parameters and jumps back to the enclosing loop
// header. All next-iteration values are computed before any rebinding so the
// old bindings stay visible throughout.
func (fb *funcBuilder) tailCall(n *ir.TailCall) {
	codegen.Assertf(fb.tailLoop, "tail re-entry of %s outside a tail-recursive body", n.Name)
	temps := make([]uint32, len(n.Args))
	for i, a := range n.Args {
		fb.expr(a.Value)
		temps[i] = fb.allocTmp()
		fb.setLocal(temps[i])
	}
	for i, a := range n.Args {
		fb.getLocal(temps[i])
		fb.setLocal(fb.localFor(a.Name))
	}
	fb.emitOp(opBr)
	fb.emitUleb(uint64(fb.blockDepth - fb.tailDepth))
}

func (fb *funcBuilder) conditional(branches []ir.IfBranch, final ir.Expr) {
	for _, b := range branches {
		fb.expr(b.Cond)
		fb.emitOp(opIf, valI32)
		fb.blockDepth++
		fb.expr(b.Then)
		fb.emitOp(opElse)
	}
	fb.expr(final)
	for range branches {
		fb.emitOp(opEnd)
		fb.blockDepth--
	}
}

// pathValue walks a destructuring path from its root local to the addressed
// sub-value. Sub points toward the root, so the recursion bottoms out there
// and each step applies on the way back.
func (fb *funcBuilder) pathValue(p ir.Path) {
	switch s := p.(type) {
	case *ir.PathRoot:
		fb.scope.Observe(s.Name)
		fb.getLocal(fb.localFor(s.Name))
	case *ir.PathIndex:
		fb.pathValue(s.Sub)
		fb.load(uint32(4 * (s.Index + 1)))
	case *ir.PathField:
		fb.pathValue(s.Sub)
		fb.pushConst(int64(fb.g.lits.FieldID(s.Field)))
		fb.emitCall(importRecordAccess)
	case *ir.PathUnbox:
		fb.pathValue(s.Sub)
		fb.load(4)
	default:
		codegen.Failf("path step %T has no bytecode lowering", p)
	}
}

// caseExpr lowers a compiled decision tree. One void block per jump label is
// opened, innermost first, so a leaf can reach its shared body with a plain
// br; every body stores into the shared result local and leaves through the
// outer done block.
func (fb *funcBuilder) caseExpr(n *ir.Case) {
	// The scrutinee is captured even when the decider is a bare leaf that
	// never walks a path from it.
	fb.scope.Observe(n.Root)
	res := fb.allocTmp()

	fb.emitOp(opBlock, blockVoid)
	fb.blockDepth++
	doneDepth := fb.blockDepth

	jumpLabel := make(map[int]int, len(n.Jumps))
	for i := len(n.Jumps) - 1; i >= 0; i-- {
		fb.emitOp(opBlock, blockVoid)
		fb.blockDepth++
		jumpLabel[n.Jumps[i].ID] = fb.blockDepth
	}

	fb.decider(n.Decider, res, doneDepth, jumpLabel)

	for _, j := range n.Jumps {
		fb.emitOp(opEnd)
		fb.blockDepth--
		fb.expr(j.Body)
		fb.setLocal(res)
		fb.emitOp(opBr)
		fb.emitUleb(uint64(fb.blockDepth - doneDepth))
	}

	fb.emitOp(opEnd)
	fb.blockDepth--
	fb.getLocal(res)
}

// decider emits the decision logic. Every decider terminates in a branch, so
// control never falls off the end of a decision block.
func (fb *funcBuilder) decider(d ir.Decider, res uint32, doneDepth int, jumpLabel map[int]int) {
	switch n := d.(type) {
	case *ir.Leaf:
		if n.Inline != nil {
			fb.expr(n.Inline)
			fb.setLocal(res)
			fb.emitOp(opBr)
			fb.emitUleb(uint64(fb.blockDepth - doneDepth))
			return
		}
		depth, ok := jumpLabel[n.Jump]
		codegen.Assertf(ok, "decision leaf targets unknown jump label %d", n.Jump)
		fb.emitOp(opBr)
		fb.emitUleb(uint64(fb.blockDepth - depth))
	case *ir.Chain:
		fb.chain(n.Tests, n.Success, n.Failure, res, doneDepth, jumpLabel)
	case *ir.FanOut:
		v := fb.allocTmp()
		fb.pathValue(n.Path)
		fb.setLocal(v)
		for _, e := range n.Edges {
			fb.test(e.Test, v)
			fb.emitOp(opIf, blockVoid)
			fb.blockDepth++
			fb.decider(e.Next, res, doneDepth, jumpLabel)
			fb.emitOp(opEnd)
			fb.blockDepth--
		}
		fb.decider(n.Fallback, res, doneDepth, jumpLabel)
	default:
		codegen.Failf("decider %T has no bytecode lowering", d)
	}
}

// chain nests one void if per test. The failure decider is re-emitted in each
// else arm; decision trees are shallow enough that sharing it through yet
// another block is not worth the indirection.
func (fb *funcBuilder) chain(tests []ir.ChainTest, success, failure ir.Decider, res uint32, doneDepth int, jumpLabel map[int]int) {
	if len(tests) == 0 {
		fb.decider(success, res, doneDepth, jumpLabel)
		return
	}
	v := fb.allocTmp()
	fb.pathValue(tests[0].Path)
	fb.setLocal(v)
	fb.test(tests[0].Test, v)
	fb.emitOp(opIf, blockVoid)
	fb.blockDepth++
	fb.chain(tests[1:], success, failure, res, doneDepth, jumpLabel)
	fb.emitOp(opElse)
	fb.decider(failure, res, doneDepth, jumpLabel)
	fb.emitOp(opEnd)
	fb.blockDepth--
}

// test leaves the boolean result of one atomic predicate on the stack. Tagged
// values are discriminated by their leading word; booleans are raw i32s.
func (fb *funcBuilder) test(t ir.Test, v uint32) {
	switch n := t.(type) {
	case *ir.IsCtor:
		fb.getLocal(v)
		fb.load(0)
		fb.pushConst(int64(n.Index))
		fb.emitOp(opI32Eq)
	case *ir.IsInt:
		fb.getLocal(v)
		fb.load(4)
		fb.pushConst(int64(n.Value))
		fb.emitOp(opI32Eq)
	case *ir.IsBool:
		fb.getLocal(v)
		if n.Value {
			fb.pushConst(1)
		} else {
			fb.pushConst(0)
		}
		fb.emitOp(opI32Eq)
	case *ir.IsChr:
		fb.getLocal(v)
		fb.pushConst(int64(fb.g.chrLit(n.Value)))
		fb.emitCall(importUtilsEqChr)
	case *ir.IsStr:
		fb.getLocal(v)
		fb.pushConst(int64(fb.g.strLit(n.Value)))
		fb.emitCall(importUtilsEqStr)
	case *ir.IsCons:
		fb.getLocal(v)
		fb.load(0)
		fb.pushConst(int64(codegen.TagCons))
		fb.emitOp(opI32Eq)
	case *ir.IsNil:
		fb.getLocal(v)
		fb.load(0)
		fb.pushConst(int64(codegen.TagNil))
		fb.emitOp(opI32Eq)
	default:
		codegen.Failf("test %T has no bytecode lowering", t)
	}
}
