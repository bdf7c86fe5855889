package codegen

import "sort"

// Closure record layout, shared by both targets:
//
//	[ header(4B) | arity(4B) | slot_0(4B) | slot_1(4B) | ... ]
//
// header holds the function-table index (bytecode target) or the evaluator
// pointer (native target). The arity word packs the filled-argument count in
// its low 16 bits and the declared arity in its high 16 bits, little-endian,
// so remaining capacity is computable from the closure alone. Slots hold the
// closed-over values first, in canonical order, then the incrementally
// supplied arguments.
const (
	HeaderOffset = 0
	ArityOffset  = 4
	SlotsOffset  = 8
	SlotBytes    = 4
)

// SlotKind discriminates closure slots.
type SlotKind int

const (
	SlotCaptured SlotKind = iota
	SlotParam
)

// Slot is one 4-byte pointer slot of a closure record.
type Slot struct {
	Name   string
	Kind   SlotKind
	Index  int
	Offset uint32
}

// Layout is the fixed byte layout of one closure record. Construction code
// and destructuring code are both derived from the single ordered walk that
// Slots returns; offsets are never recomputed independently.
type Layout struct {
	Params   []string
	Captured []string
	slots    []Slot
}

// NewLayout computes the layout for a function with the given declared
// parameters and closed-over name set. The captured names are put into
// canonical (lexicographic) order here regardless of input order.
func NewLayout(params []string, captured []string) Layout {
	c := append([]string(nil), captured...)
	sort.Strings(c)
	l := Layout{Params: append([]string(nil), params...), Captured: c}
	slots := make([]Slot, 0, len(c)+len(params))
	for _, name := range c {
		slots = append(slots, Slot{
			Name:   name,
			Kind:   SlotCaptured,
			Index:  len(slots),
			Offset: SlotsOffset + uint32(len(slots))*SlotBytes,
		})
	}
	for _, name := range l.Params {
		slots = append(slots, Slot{
			Name:   name,
			Kind:   SlotParam,
			Index:  len(slots),
			Offset: SlotsOffset + uint32(len(slots))*SlotBytes,
		})
	}
	l.slots = slots
	return l
}

// Slots returns every slot in record order: captured values first, then
// parameters. Both the construction site and the function-entry prologue
// iterate this one walk.
func (l Layout) Slots() []Slot {
	return l.slots
}

// CapturedSlots returns the slots populated at construction time.
func (l Layout) CapturedSlots() []Slot {
	return l.slots[:len(l.Captured)]
}

// ParamSlots returns the slots filled incrementally by calls.
func (l Layout) ParamSlots() []Slot {
	return l.slots[len(l.Captured):]
}

// Size returns the total byte size of the record. A function with no
// parameters and no captures is still a valid 8-byte zero-arity thunk.
func (l Layout) Size() uint32 {
	return SlotsOffset + uint32(len(l.slots))*SlotBytes
}

// Arity returns the declared parameter count.
func (l Layout) Arity() int {
	return len(l.Params)
}

// ArityWord packs (filled, max) for storage in the 4-byte arity field.
func ArityWord(filled, max int) uint32 {
	return uint32(filled)&0xffff | uint32(max)<<16
}
