package wasm

// Binary format constants, per the WebAssembly core spec.

var (
	wasmMagic   = []byte{0x00, 0x61, 0x73, 0x6d}
	wasmVersion = []byte{0x01, 0x00, 0x00, 0x00}
)

// Section ids.
const (
	sectionType     byte = 1
	sectionImport   byte = 2
	sectionFunction byte = 3
	sectionTable    byte = 4
	sectionMemory   byte = 5
	sectionGlobal   byte = 6
	sectionExport   byte = 7
	sectionElement  byte = 9
	sectionCode     byte = 10
	sectionData     byte = 11
)

// Value and block types.
const (
	valI32    byte = 0x7f
	valF64    byte = 0x7c
	blockVoid byte = 0x40
	funcType  byte = 0x60
	funcRef   byte = 0x70
)

// Import/export kinds.
const (
	kindFunc   byte = 0x00
	kindTable  byte = 0x01
	kindMemory byte = 0x02
	kindGlobal byte = 0x03
)

// Opcodes used by the lowering.
const (
	opBlock        byte = 0x02
	opLoop         byte = 0x03
	opIf           byte = 0x04
	opElse         byte = 0x05
	opEnd          byte = 0x0b
	opBr           byte = 0x0c
	opBrIf         byte = 0x0d
	opReturn       byte = 0x0f
	opCall         byte = 0x10
	opCallIndirect byte = 0x11
	opDrop         byte = 0x1a
	opLocalGet     byte = 0x20
	opLocalSet     byte = 0x21
	opLocalTee     byte = 0x22
	opGlobalGet    byte = 0x23
	opGlobalSet    byte = 0x24
	opI32Load      byte = 0x28
	opI32Store     byte = 0x36
	opI32Const     byte = 0x41
	opI32Eqz       byte = 0x45
	opI32Eq        byte = 0x46
	opI32Ne        byte = 0x47
	opI32And       byte = 0x71
	opI32Or        byte = 0x72
	opI32Add       byte = 0x6a
	opI32Sub       byte = 0x6b
	opI32Mul       byte = 0x6c
	opI32ShrU      byte = 0x76
)
