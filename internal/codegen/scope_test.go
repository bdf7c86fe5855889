package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObserveClassification(t *testing.T) {
	s := NewScope([]string{"x", "y"})
	s.BindLocal("tmp")

	assert.Equal(t, NameArg, s.Observe("x"))
	assert.Equal(t, NameLocal, s.Observe("tmp"))
	assert.Equal(t, NameCaptured, s.Observe("outer"))

	// Once captured, always captured, even after a later local binding of a
	// different name.
	s.BindLocal("another")
	assert.Equal(t, NameCaptured, s.Observe("outer"))
	assert.Equal(t, []string{"outer"}, s.Captured())
}

func TestCapturedCanonicalOrder(t *testing.T) {
	s := NewScope(nil)
	s.Observe("zeta")
	s.Observe("alpha")
	s.Observe("mid")
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, s.Captured())
}

func TestPassThroughDoubleNesting(t *testing.T) {
	// outer binds v; middle never references it; inner does. The capture
	// must propagate through the middle scope.
	outer := NewScope([]string{"v"})
	middle := NewScope([]string{"a"})
	inner := NewScope([]string{"b"})

	assert.Equal(t, NameCaptured, inner.Observe("v"))
	middle.PassThrough(inner.Captured())
	assert.Equal(t, []string{"v"}, middle.Captured())

	outer.PassThrough(middle.Captured())
	assert.Empty(t, outer.Captured(), "v is bound in the outermost scope")
}

func TestPassThroughStopsAtBinder(t *testing.T) {
	inner := NewScope(nil)
	inner.Observe("a")
	inner.Observe("x")

	middle := NewScope([]string{"a"})
	middle.PassThrough(inner.Captured())
	assert.Equal(t, []string{"x"}, middle.Captured(), "a is middle's own argument")
}
