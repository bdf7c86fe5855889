package wasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleHasImportBlock(t *testing.T) {
	m := NewModule()
	// First available index sits right after the fixed import block.
	idx := m.reserveFunc(m.evalType)
	assert.Equal(t, uint32(numImports), idx)
	assert.Equal(t, uint32(numImports+1), m.reserveFunc(m.initType))
}

func TestDataCursor(t *testing.T) {
	m := NewModule()
	a := m.addData([]byte{1, 2, 3, 4})
	b := m.addData([]byte{5, 6})
	c := m.addData([]byte{7})
	assert.Equal(t, uint32(1024), a)
	assert.Equal(t, uint32(1028), b)
	assert.Equal(t, uint32(1030), c)
}

func TestTypeDedup(t *testing.T) {
	m := NewModule()
	assert.Equal(t, m.evalType, m.typeIndex([]byte{valI32}, []byte{valI32}))
	assert.Equal(t, m.initType, m.typeIndex(nil, []byte{valI32}))
	// Import signatures were registered at construction; re-requesting one
	// must not grow the type table.
	n := len(m.types)
	m.typeIndex(importTypeOf(runtimeImports[importRecordSetField]))
	assert.Len(t, m.types, n)
}

func TestEmitWellFormedPrefix(t *testing.T) {
	m := NewModule()
	idx := m.reserveFunc(m.initType)
	m.setCode(idx, []byte{0x00, opI32Const, 0x00, opEnd})
	m.addTableEntry(idx)
	m.addGlobal()
	m.addExport("main", kindFunc, idx)
	m.addData([]byte{0xde, 0xad})

	out := m.Emit()
	require.Greater(t, len(out), 8)
	assert.Equal(t, wasmMagic, out[:4])
	assert.Equal(t, wasmVersion, out[4:8])

	// Sections appear in ascending id order.
	ids := sectionIDs(t, out[8:])
	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1], ids[i])
	}
	assert.Contains(t, ids, byte(sectionCode))
	assert.Contains(t, ids, byte(sectionData))
}

// sectionIDs walks the section framing, which doubles as a check that every
// section length is consistent.
func sectionIDs(t *testing.T, b []byte) []byte {
	t.Helper()
	var ids []byte
	for len(b) > 0 {
		ids = append(ids, b[0])
		b = b[1:]
		var size uint64
		var shift uint
		for {
			require.NotEmpty(t, b)
			c := b[0]
			b = b[1:]
			size |= uint64(c&0x7f) << shift
			shift += 7
			if c&0x80 == 0 {
				break
			}
		}
		require.GreaterOrEqual(t, uint64(len(b)), size)
		b = b[size:]
	}
	return ids
}
