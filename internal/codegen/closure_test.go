package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLayoutSlotOrder(t *testing.T) {
	l := NewLayout([]string{"p1", "p2"}, []string{"zz", "aa"})

	slots := l.Slots()
	assert.Len(t, slots, 4)
	// Captured first, lexicographic, then parameters in declaration order.
	assert.Equal(t, "aa", slots[0].Name)
	assert.Equal(t, "zz", slots[1].Name)
	assert.Equal(t, "p1", slots[2].Name)
	assert.Equal(t, "p2", slots[3].Name)
	for i, s := range slots {
		assert.Equal(t, uint32(SlotsOffset+4*i), s.Offset)
		assert.Equal(t, i, s.Index)
	}
}

func TestOffsetAgreement(t *testing.T) {
	// Construction fills CapturedSlots, the entry prologue walks Slots; both
	// views must agree on every logical slot's offset.
	l := NewLayout([]string{"x", "y", "z"}, []string{"c0", "c1"})
	all := l.Slots()
	for i, s := range l.CapturedSlots() {
		assert.Equal(t, all[i].Offset, s.Offset)
		assert.Equal(t, SlotCaptured, s.Kind)
	}
	for i, s := range l.ParamSlots() {
		assert.Equal(t, all[len(l.Captured)+i].Offset, s.Offset)
		assert.Equal(t, SlotParam, s.Kind)
	}
}

func TestIdentityFunctionLayout(t *testing.T) {
	// \x -> x: one parameter, nothing captured. 12 bytes, x at offset 8.
	l := NewLayout([]string{"x"}, nil)
	assert.Equal(t, uint32(12), l.Size())
	slots := l.Slots()
	assert.Len(t, slots, 1)
	assert.Equal(t, "x", slots[0].Name)
	assert.Equal(t, uint32(8), slots[0].Offset)
}

func TestZeroArityThunkLayout(t *testing.T) {
	l := NewLayout(nil, nil)
	assert.Equal(t, uint32(8), l.Size())
	assert.Empty(t, l.Slots())
}

func TestCapturedOrderIndependentOfInput(t *testing.T) {
	a := NewLayout([]string{"p"}, []string{"b", "a", "c"})
	b := NewLayout([]string{"p"}, []string{"c", "b", "a"})
	assert.Equal(t, a.Captured, b.Captured)
	assert.Equal(t, a.Slots(), b.Slots())
}

func TestArityWordPacking(t *testing.T) {
	w := ArityWord(2, 5)
	assert.Equal(t, uint32(2), w&0xffff)
	assert.Equal(t, uint32(5), w>>16)

	// A closure with 3 captures and 2 params starts with its captures
	// pre-counted as filled; two more arguments saturate it.
	w = ArityWord(3, 5)
	filled := w&0xffff + 2
	assert.Equal(t, w>>16, filled)
}
