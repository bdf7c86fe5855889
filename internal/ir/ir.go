// Package ir holds the typed, optimized intermediate representation consumed
// by the code-generation backends. The front end produces it; nothing in this
// module mutates it.
package ir

import (
	"fmt"
	"strings"
)

// Global identifies a top-level definition by home module and bare name.
type Global struct {
	Module string
	Name   string
}

func (g Global) String() string { return g.Module + "." + g.Name }

// Expr is one node of the expression IR.
type Expr interface {
	exprNode()
}

// Literals

type Bool struct {
	Value bool
}

type Chr struct {
	Value string // UTF-8 encoded code point
}

type Str struct {
	Value string
}

type Int struct {
	Value int32
}

type Float struct {
	Value float64
}

type Unit struct{}

// Variable references

// VarLocal references a name bound by an enclosing function parameter, a let,
// or a lowering-generated temporary.
type VarLocal struct {
	Name string
}

// VarGlobal references a plain top-level definition.
type VarGlobal struct {
	Global Global
}

// VarEnum references a nullary constructor represented as a small integer tag.
type VarEnum struct {
	Global Global
	Index  uint32
}

// VarBox references a global whose value is a boxed kernel constant.
type VarBox struct {
	Global Global
}

// VarCycle references a member of a mutually recursive definition group. It
// must be read through the group's lazy-init thunk, never as a direct load.
type VarCycle struct {
	Global Global
}

// VarKernel references foreign runtime code by module and name.
type VarKernel struct {
	Module string
	Name   string
}

// VarDebug is the debug-mode variant of a local reference; optimized builds
// strip the wrapper and lower the plain local.
type VarDebug struct {
	Name   string
	Region string
}

// Functions and calls

type Function struct {
	Params []string
	Body   Expr
}

type Call struct {
	Fn   Expr
	Args []Expr
}

// TailArg pairs a parameter name with its next-iteration value.
type TailArg struct {
	Name  string
	Value Expr
}

// TailCall re-enters the innermost enclosing tail-recursive function.
type TailCall struct {
	Name string
	Args []TailArg
}

// Control and binding

// IfBranch is one (condition, branch) pair of a conditional chain.
type IfBranch struct {
	Cond Expr
	Then Expr
}

type If struct {
	Branches []IfBranch
	Final    Expr
}

type Let struct {
	Name  string
	Value Expr
	Body  Expr
}

// Destruct binds Name to the value found by walking Path from an
// already-bound root, then evaluates Body.
type Destruct struct {
	Name string
	Path Path
	Body Expr
}

// CaseJump is one shared decision-tree leaf, addressed by integer label.
type CaseJump struct {
	ID   int
	Body Expr
}

// Case scrutinizes Root (a local) using an externally compiled decision tree.
type Case struct {
	Root    string
	Decider Decider
	Jumps   []CaseJump
}

// Records and containers

// FieldValue pairs a record field name with its value expression.
type FieldValue struct {
	Field string
	Value Expr
}

// Accessor is a shared one-argument function reading a single field.
type Accessor struct {
	Field string
}

type Access struct {
	Record Expr
	Field  string
}

type Update struct {
	Record Expr
	Fields []FieldValue // sorted by field name upstream
}

type Record struct {
	Fields []FieldValue // sorted by field name upstream
}

type List struct {
	Entries []Expr
}

type Tuple2 struct {
	A Expr
	B Expr
}

type Tuple3 struct {
	A Expr
	B Expr
	C Expr
}

// Shader carries an opaque GPU program source blob.
type Shader struct {
	Src string
}

func (*Bool) exprNode()      {}
func (*Chr) exprNode()       {}
func (*Str) exprNode()       {}
func (*Int) exprNode()       {}
func (*Float) exprNode()     {}
func (*Unit) exprNode()      {}
func (*VarLocal) exprNode()  {}
func (*VarGlobal) exprNode() {}
func (*VarEnum) exprNode()   {}
func (*VarBox) exprNode()    {}
func (*VarCycle) exprNode()  {}
func (*VarKernel) exprNode() {}
func (*VarDebug) exprNode()  {}
func (*Function) exprNode()  {}
func (*Call) exprNode()      {}
func (*TailCall) exprNode()  {}
func (*If) exprNode()        {}
func (*Let) exprNode()       {}
func (*Destruct) exprNode()  {}
func (*Case) exprNode()      {}
func (*Accessor) exprNode()  {}
func (*Access) exprNode()    {}
func (*Update) exprNode()    {}
func (*Record) exprNode()    {}
func (*List) exprNode()      {}
func (*Tuple2) exprNode()    {}
func (*Tuple3) exprNode()    {}
func (*Shader) exprNode()    {}

// Paths address a sub-value of a pattern-match root.

type Path interface {
	pathNode()
}

// PathIndex selects positional child Index, then continues with Sub.
type PathIndex struct {
	Index int
	Sub   Path
}

// PathField selects a record field, then continues with Sub.
type PathField struct {
	Field string
	Sub   Path
}

// PathUnbox unwraps a single-constructor wrapper, then continues with Sub.
type PathUnbox struct {
	Sub Path
}

// PathRoot starts a path at a bound local.
type PathRoot struct {
	Name string
}

func (*PathIndex) pathNode() {}
func (*PathField) pathNode() {}
func (*PathUnbox) pathNode() {}
func (*PathRoot) pathNode()  {}

// Decision trees, compiled by the upstream pattern-match compiler and
// consumed opaquely here.

type Decider interface {
	deciderNode()
}

// Leaf terminates a decision: either an inline expression or a jump into the
// enclosing Case's jump table.
type Leaf struct {
	Inline Expr // nil when Jump is used
	Jump   int  // valid only when Inline is nil
}

// ChainTest pairs a path with the test to run at that path.
type ChainTest struct {
	Path Path
	Test Test
}

// Chain runs tests in order; all must pass to take Success.
type Chain struct {
	Tests   []ChainTest
	Success Decider
	Failure Decider
}

// FanOutEdge pairs a test with the decider taken when it matches.
type FanOutEdge struct {
	Test Test
	Next Decider
}

// FanOut dispatches on one path over several mutually exclusive tests.
type FanOut struct {
	Path     Path
	Edges    []FanOutEdge
	Fallback Decider
}

func (*Leaf) deciderNode()   {}
func (*Chain) deciderNode()  {}
func (*FanOut) deciderNode() {}

// Tests are the atomic predicates of a decision tree.

type Test interface {
	testNode()
}

type IsCtor struct {
	Home  Global
	Name  string
	Index int
}

type IsInt struct {
	Value int32
}

type IsChr struct {
	Value string
}

type IsStr struct {
	Value string
}

type IsBool struct {
	Value bool
}

// IsCons tests for a non-empty list cell.
type IsCons struct{}

// IsNil tests for the empty list.
type IsNil struct{}

func (*IsCtor) testNode() {}
func (*IsInt) testNode()  {}
func (*IsChr) testNode()  {}
func (*IsStr) testNode()  {}
func (*IsBool) testNode() {}
func (*IsCons) testNode() {}
func (*IsNil) testNode()  {}

// DescribeExpr returns a short human-readable tag for diagnostics.
func DescribeExpr(e Expr) string {
	name := fmt.Sprintf("%T", e)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}
