package codegen

import "sort"

// Scope tracks the three disjoint name sets of one function body being
// lowered: arguments, locals, and names closed over from an enclosing scope.
// Classification happens the first time a name is observed; once a name is
// recorded as closed over it stays closed over for the scope's lifetime.
type Scope struct {
	args     map[string]bool
	locals   map[string]bool
	captured map[string]bool
}

// NameClass reports how a scope classified an observed name.
type NameClass int

const (
	NameArg NameClass = iota
	NameLocal
	NameCaptured
)

// NewScope seeds a fresh scope with a function's own parameter set.
func NewScope(params []string) *Scope {
	s := &Scope{
		args:     make(map[string]bool, len(params)),
		locals:   make(map[string]bool),
		captured: make(map[string]bool),
	}
	for _, p := range params {
		s.args[p] = true
	}
	return s
}

// BindLocal records a name bound by a let, a destructuring, or a temporary.
func (s *Scope) BindLocal(name string) {
	s.locals[name] = true
}

// Observe classifies a referenced name. A name found in neither the argument
// nor the local set must be captured from an enclosing scope, so it is
// recorded as closed over as a side effect.
func (s *Scope) Observe(name string) NameClass {
	switch {
	case s.args[name]:
		return NameArg
	case s.locals[name]:
		return NameLocal
	default:
		s.captured[name] = true
		return NameCaptured
	}
}

// Captured returns the closed-over set in the canonical (lexicographic)
// order used for closure slot assignment.
func (s *Scope) Captured() []string {
	out := make([]string, 0, len(s.captured))
	for name := range s.captured {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// PassThrough propagates a nested function's closed-over names outward: any
// such name not bound here must itself be captured from the scope above.
// This is what makes arbitrarily deep nesting capture correctly.
func (s *Scope) PassThrough(inner []string) {
	for _, name := range inner {
		s.Observe(name)
	}
}
