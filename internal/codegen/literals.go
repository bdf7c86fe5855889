package codegen

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Runtime tag discriminants for comparable container types. Equality and
// ordering in the emitted runtime dispatch on this single tag byte.
const (
	TagNil    = 0
	TagCons   = 1
	TagTuple2 = 2
	TagTuple3 = 3
	TagInt    = 4
	TagFloat  = 5
	TagChar   = 6
	TagString = 7
)

// LitKind discriminates the entries of the shared-literal table.
type LitKind int

const (
	LitInt LitKind = iota
	LitFloat
	LitChar
	LitString
	LitFieldGroup
	LitAccessor
	LitKernel
)

// Literal is one deduplicated shared definition, emitted exactly once at
// final assembly no matter how many call sites reference it.
type Literal struct {
	Kind   LitKind
	Sym    string
	Int    int32
	Float  float64
	Text   string   // char or string payload; kernel module
	Name   string   // accessor field; kernel name
	Fields []string // field-group members, sorted
}

type litKey struct {
	kind LitKind
	key  string
}

// LiteralTable interns literals and constant-derived values by structural
// equality and hands out stable integer ids for field, constructor and
// kernel name tables.
type LiteralTable struct {
	refs map[litKey]string
	defs []Literal

	fieldIDs  map[string]int
	fields    []string
	ctorIDs   map[string]int
	ctors     []string
	kernelIDs map[string]int
	kernels   []string
}

// NewLiteralTable builds a table whose field ids are pre-assigned from the
// whole-program field-access frequency map: most frequent first, ties broken
// by name. The ordering is a stability concern, not a semantic one.
func NewLiteralTable(fieldFreq map[string]int) *LiteralTable {
	t := &LiteralTable{
		refs:      make(map[litKey]string),
		fieldIDs:  make(map[string]int),
		ctorIDs:   make(map[string]int),
		kernelIDs: make(map[string]int),
	}
	names := make([]string, 0, len(fieldFreq))
	for name := range fieldFreq {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if fieldFreq[names[i]] != fieldFreq[names[j]] {
			return fieldFreq[names[i]] > fieldFreq[names[j]]
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		t.FieldID(name)
	}
	return t
}

func (t *LiteralTable) intern(kind LitKind, key string, mk func() Literal) string {
	k := litKey{kind: kind, key: key}
	if sym, ok := t.refs[k]; ok {
		return sym
	}
	lit := mk()
	t.refs[k] = lit.Sym
	t.defs = append(t.defs, lit)
	return lit.Sym
}

// IntRef interns a boxed integer literal.
func (t *LiteralTable) IntRef(v int32) string {
	return t.intern(LitInt, fmt.Sprintf("%d", v), func() Literal {
		sym := fmt.Sprintf("lit_int_%d", v)
		if v < 0 {
			sym = fmt.Sprintf("lit_int_m%d", -v)
		}
		return Literal{Kind: LitInt, Sym: sym, Int: v}
	})
}

// FloatRef interns a boxed float literal, keyed by bit pattern so that
// structurally equal floats collapse.
func (t *LiteralTable) FloatRef(v float64) string {
	key := fmt.Sprintf("%016x", math.Float64bits(v))
	return t.intern(LitFloat, key, func() Literal {
		return Literal{Kind: LitFloat, Sym: fmt.Sprintf("lit_float_%d", len(t.defs)), Float: v}
	})
}

// CharRef interns a character literal.
func (t *LiteralTable) CharRef(v string) string {
	return t.intern(LitChar, v, func() Literal {
		return Literal{Kind: LitChar, Sym: fmt.Sprintf("lit_chr_%d", len(t.defs)), Text: v}
	})
}

// StringRef interns a string literal.
func (t *LiteralTable) StringRef(v string) string {
	return t.intern(LitString, v, func() Literal {
		return Literal{Kind: LitString, Sym: fmt.Sprintf("lit_str_%d", len(t.defs)), Text: v}
	})
}

// FieldGroupRef interns the shared descriptor of a record shape. Fields must
// already be sorted by the front end; the key is the joined field list.
func (t *LiteralTable) FieldGroupRef(fields []string) string {
	key := strings.Join(fields, "\x00")
	return t.intern(LitFieldGroup, key, func() Literal {
		for _, f := range fields {
			t.FieldID(f)
		}
		parts := make([]string, len(fields))
		for i, f := range fields {
			parts[i] = sanitize(f)
		}
		return Literal{
			Kind:   LitFieldGroup,
			Sym:    "fg_" + strings.Join(parts, "_"),
			Fields: append([]string(nil), fields...),
		}
	})
}

// AccessorRef interns the shared one-argument closure reading one field.
func (t *LiteralTable) AccessorRef(field string) string {
	return t.intern(LitAccessor, field, func() Literal {
		t.FieldID(field)
		return Literal{Kind: LitAccessor, Sym: "access_" + sanitize(field), Name: field}
	})
}

// KernelRef interns the thunk for a foreign-code reference.
func (t *LiteralTable) KernelRef(module, name string) string {
	return t.intern(LitKernel, module+"\x00"+name, func() Literal {
		t.KernelID(module, name)
		return Literal{Kind: LitKernel, Sym: KernelName(module, name), Text: module, Name: name}
	})
}

// Defs returns the deduplicated definitions in insertion order.
func (t *LiteralTable) Defs() []Literal {
	return t.defs
}

// FieldID returns the stable small-integer id of a field name.
func (t *LiteralTable) FieldID(name string) int {
	if id, ok := t.fieldIDs[name]; ok {
		return id
	}
	id := len(t.fields)
	t.fieldIDs[name] = id
	t.fields = append(t.fields, name)
	return id
}

// CtorID returns the stable small-integer id of a constructor name.
func (t *LiteralTable) CtorID(name string) int {
	if id, ok := t.ctorIDs[name]; ok {
		return id
	}
	id := len(t.ctors)
	t.ctorIDs[name] = id
	t.ctors = append(t.ctors, name)
	return id
}

// KernelID returns the stable small-integer id of a kernel thunk name.
func (t *LiteralTable) KernelID(module, name string) int {
	key := module + "." + name
	if id, ok := t.kernelIDs[key]; ok {
		return id
	}
	id := len(t.kernels)
	t.kernelIDs[key] = id
	t.kernels = append(t.kernels, key)
	return id
}

// Fields, Ctors and Kernels return the enumerated string tables in id order.
func (t *LiteralTable) Fields() []string  { return t.fields }
func (t *LiteralTable) Ctors() []string   { return t.ctors }
func (t *LiteralTable) Kernels() []string { return t.kernels }

// EscapeString escapes control characters, backslash and double quote for
// embedding literal payloads in C string literals.
func EscapeString(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		b := s[i]
		switch {
		case b == '\\':
			sb.WriteString(`\\`)
		case b == '"':
			sb.WriteString(`\"`)
		case b == '\n':
			sb.WriteString(`\n`)
		case b == '\t':
			sb.WriteString(`\t`)
		case b == '\r':
			sb.WriteString(`\r`)
		case b < 0x20 || b == 0x7f:
			// Octal rather than hex: C hex escapes consume every following
			// hex digit, so "\x01abc" would lex as one escape. A three-digit
			// octal escape is self-delimiting.
			sb.WriteString(fmt.Sprintf(`\%03o`, b))
		default:
			sb.WriteByte(b)
		}
	}
	return sb.String()
}
