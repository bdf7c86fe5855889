package ir

// Node is the graph value attached to one Global in the whole-program graph.
type Node interface {
	nodeKind()
}

// Define is an ordinary top-level value or function.
type Define struct {
	Body Expr
	Deps []Global
}

// DefineTailFunc is a Define whose body is a self-tail-recursive function;
// backends lower its recursion as a loop instead of a call.
type DefineTailFunc struct {
	Params []string
	Body   Expr
	Deps   []Global
}

// Ctor declares a data constructor with a runtime tag index and arity.
type Ctor struct {
	Index int
	Arity int
}

// Link aliases one global to another.
type Link struct {
	To Global
}

// Cycle is a group of mutually recursive definitions. Members are initialized
// lazily through per-member thunks, which is what makes the group's
// initialization order well defined.
type Cycle struct {
	Names  []string
	Values []TailArg // direct value members: name paired with its expression
	Funcs  []CycleFunc
	Deps   []Global
}

// CycleFunc is one function member of a mutually recursive group.
type CycleFunc struct {
	Name string
	Fn   *Function
}

// Manager marks an effect-manager global; it is handed to the scripting
// fallback backend rather than lowered natively.
type Manager struct {
	Deps []Global
}

// KernelChunk is one piece of a foreign-code body: verbatim source, or a
// splice point for a generated global symbol or field id.
type KernelChunk struct {
	Src   string
	Ref   *Global // non-nil: splice the symbol generated for this global
	Field string  // non-empty: splice the integer id of this field name
}

// Kernel is a foreign-code global, emitted through the scripting fallback.
type Kernel struct {
	Chunks []KernelChunk
	Deps   []Global
}

// Enum is a nullary constructor represented as a small integer.
type Enum struct {
	Index int
}

// Box wraps a kernel-provided constant into a heap value once at startup.
type Box struct{}

// PortIncoming and PortOutgoing declare the two port directions.
type PortIncoming struct {
	Deps []Global
}

type PortOutgoing struct {
	Deps []Global
}

func (*Define) nodeKind()         {}
func (*DefineTailFunc) nodeKind() {}
func (*Ctor) nodeKind()           {}
func (*Link) nodeKind()           {}
func (*Cycle) nodeKind()          {}
func (*Manager) nodeKind()        {}
func (*Kernel) nodeKind()         {}
func (*Enum) nodeKind()           {}
func (*Box) nodeKind()            {}
func (*PortIncoming) nodeKind()   {}
func (*PortOutgoing) nodeKind()   {}

// Deps returns the dependency set of a node. Node kinds without recorded
// dependencies return nil.
func Deps(n Node) []Global {
	switch v := n.(type) {
	case *Define:
		return v.Deps
	case *DefineTailFunc:
		return v.Deps
	case *Cycle:
		return v.Deps
	case *Manager:
		return v.Deps
	case *Kernel:
		return v.Deps
	case *Link:
		return []Global{v.To}
	case *PortIncoming:
		return v.Deps
	case *PortOutgoing:
		return v.Deps
	}
	return nil
}

// Graph is the whole-program mapping from globals to nodes, plus the
// field-access frequency map used for stable field-id assignment.
type Graph struct {
	Nodes     map[Global]Node
	FieldFreq map[string]int
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes:     make(map[Global]Node),
		FieldFreq: make(map[string]int),
	}
}
