package wasm

import "github.com/fenlang/fenc/internal/codegen"

// The runtime-memory primitives and the record/equality helpers are imported
// from the host with a fixed contract and intentionally no body here; an
// unresolved import at instantiation time is the build-time-visible signal
// that the host runtime is incomplete.
const (
	importGCAllocate = iota
	importGCShallowCopy
	importRecordAlloc
	importRecordSetField
	importRecordAccess
	importRecordClone
	importFieldsRegister
	importUtilsEqChr
	importUtilsEqStr
	importKernelRef
	importDebugTrack
	numImports
)

type importDecl struct {
	module string
	field  string
	params int
	result bool
}

var runtimeImports = [numImports]importDecl{
	importGCAllocate:     {"runtime", "GC_allocate", 1, true},
	importGCShallowCopy:  {"runtime", "GC_shallowCopy", 1, true},
	importRecordAlloc:    {"runtime", "Record_alloc", 2, true},
	importRecordSetField: {"runtime", "Record_setField", 3, false},
	importRecordAccess:   {"runtime", "Record_access", 2, true},
	importRecordClone:    {"runtime", "Record_clone", 1, true},
	importFieldsRegister: {"runtime", "Fields_register", 2, false},
	importUtilsEqChr:     {"runtime", "Utils_eqChr", 2, true},
	importUtilsEqStr:     {"runtime", "Utils_eqStr", 2, true},
	importKernelRef:      {"kernel", "Kernel_ref", 1, true},
	importDebugTrack:     {"debug", "Debug_track", 2, true},
}

type funcSig struct {
	params  []byte
	results []byte
}

type funcEntry struct {
	typeIdx uint32
	code    []byte // encoded locals + body, filled in by setCode
}

type wasmExport struct {
	field string
	kind  byte
	index uint32
}

type dataSeg struct {
	offset uint32
	data   []byte
}

// Module accumulates everything the bytecode target emits: the function
// table, instruction blocks, mutable globals and the data segment with its
// monotonically increasing offset cursor.
type Module struct {
	types     []funcSig
	typeCache map[string]uint32
	funcs     []funcEntry
	table     []uint32 // element section: function indices
	globals   int      // count of mutable i32 globals, zero-initialized
	exports   []wasmExport
	segs      []dataSeg
	dataOff   uint32

	evalType  uint32 // (i32) -> i32, the evaluator signature
	initType  uint32 // () -> i32, the initializer signature
	startFunc uint32
}

// NewModule creates a module with the runtime import block already declared.
// Imported functions occupy indices [0, numImports).
func NewModule() *Module {
	m := &Module{
		typeCache: make(map[string]uint32),
		dataOff:   1024, // leave a scratch area below the first literal
	}
	m.evalType = m.typeIndex([]byte{valI32}, []byte{valI32})
	m.initType = m.typeIndex(nil, []byte{valI32})
	for _, d := range runtimeImports {
		m.typeIndex(importTypeOf(d))
	}
	return m
}

func (m *Module) typeIndex(params, results []byte) uint32 {
	key := string(params) + "|" + string(results)
	if idx, ok := m.typeCache[key]; ok {
		return idx
	}
	idx := uint32(len(m.types))
	m.types = append(m.types, funcSig{params: params, results: results})
	m.typeCache[key] = idx
	return idx
}

func importTypeOf(d importDecl) ([]byte, []byte) {
	params := make([]byte, d.params)
	for i := range params {
		params[i] = valI32
	}
	if d.result {
		return params, []byte{valI32}
	}
	return params, nil
}

// reserveFunc allocates a function index whose body is supplied later. This
// is what lets mutually recursive thunks reference each other before either
// body exists.
func (m *Module) reserveFunc(typeIdx uint32) uint32 {
	idx := uint32(numImports + len(m.funcs))
	m.funcs = append(m.funcs, funcEntry{typeIdx: typeIdx})
	return idx
}

func (m *Module) setCode(funcIdx uint32, code []byte) {
	codegen.Assertf(funcIdx >= numImports, "setCode on imported function %d", funcIdx)
	m.funcs[funcIdx-numImports].code = code
}

// addTableEntry registers a function in the indirect-call table and returns
// its table index, which is what closure headers store.
func (m *Module) addTableEntry(funcIdx uint32) uint32 {
	idx := uint32(len(m.table))
	m.table = append(m.table, funcIdx)
	return idx
}

// addGlobal allocates one mutable, zero-initialized i32 global.
func (m *Module) addGlobal() uint32 {
	idx := uint32(m.globals)
	m.globals++
	return idx
}

// addData appends payload at the cursor and returns its linear-memory offset.
func (m *Module) addData(payload []byte) uint32 {
	off := m.dataOff
	m.segs = append(m.segs, dataSeg{offset: off, data: payload})
	m.dataOff += uint32(len(payload))
	return off
}

func (m *Module) addExport(field string, kind byte, index uint32) {
	m.exports = append(m.exports, wasmExport{field: field, kind: kind, index: index})
}

// Emit serializes the complete module.
func (m *Module) Emit() []byte {
	out := append([]byte(nil), wasmMagic...)
	out = append(out, wasmVersion...)

	// Type section
	var body []byte
	for _, sig := range m.types {
		body = append(body, funcType)
		body = append(body, uleb(uint64(len(sig.params)))...)
		body = append(body, sig.params...)
		body = append(body, uleb(uint64(len(sig.results)))...)
		body = append(body, sig.results...)
	}
	out = append(out, section(sectionType, vector(len(m.types), body))...)

	// Import section
	body = nil
	for _, d := range runtimeImports {
		p, r := importTypeOf(d)
		body = append(body, name(d.module)...)
		body = append(body, name(d.field)...)
		body = append(body, kindFunc)
		body = append(body, uleb(uint64(m.typeIndex(p, r)))...)
	}
	out = append(out, section(sectionImport, vector(numImports, body))...)

	// Function section
	body = nil
	for _, f := range m.funcs {
		body = append(body, uleb(uint64(f.typeIdx))...)
	}
	out = append(out, section(sectionFunction, vector(len(m.funcs), body))...)

	// Table section
	body = []byte{funcRef, 0x00}
	body = append(body, uleb(uint64(len(m.table)))...)
	out = append(out, section(sectionTable, vector(1, body))...)

	// Memory section: enough pages for the data segment, no max
	pages := uint64(m.dataOff/65536 + 1)
	body = []byte{0x00}
	body = append(body, uleb(pages)...)
	out = append(out, section(sectionMemory, vector(1, body))...)

	// Global section: mutable i32, zero-initialized
	body = nil
	for i := 0; i < m.globals; i++ {
		body = append(body, valI32, 0x01, opI32Const)
		body = append(body, sleb(0)...)
		body = append(body, opEnd)
	}
	out = append(out, section(sectionGlobal, vector(m.globals, body))...)

	// Export section
	body = nil
	for _, e := range m.exports {
		body = append(body, name(e.field)...)
		body = append(body, e.kind)
		body = append(body, uleb(uint64(e.index))...)
	}
	out = append(out, section(sectionExport, vector(len(m.exports), body))...)

	// Element section: one active segment at table offset 0
	if len(m.table) > 0 {
		body = []byte{0x00, opI32Const}
		body = append(body, sleb(0)...)
		body = append(body, opEnd)
		body = append(body, uleb(uint64(len(m.table)))...)
		for _, fidx := range m.table {
			body = append(body, uleb(uint64(fidx))...)
		}
		out = append(out, section(sectionElement, vector(1, body))...)
	}

	// Code section
	body = nil
	for _, f := range m.funcs {
		codegen.Assertf(f.code != nil, "reserved function emitted without a body")
		body = append(body, uleb(uint64(len(f.code)))...)
		body = append(body, f.code...)
	}
	out = append(out, section(sectionCode, vector(len(m.funcs), body))...)

	// Data section
	body = nil
	for _, seg := range m.segs {
		body = append(body, 0x00, opI32Const)
		body = append(body, sleb(int64(seg.offset))...)
		body = append(body, opEnd)
		body = append(body, uleb(uint64(len(seg.data)))...)
		body = append(body, seg.data...)
	}
	out = append(out, section(sectionData, vector(len(m.segs), body))...)

	return out
}
