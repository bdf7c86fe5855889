package codegen

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/fenlang/fenc/internal/ir"
)

// ErrorCategory classifies generation failures. User-facing diagnostics
// belong to earlier compiler stages; everything surfaced here aborts the
// generation step as a whole.
type ErrorCategory int

const (
	CategoryGraph    ErrorCategory = iota // referenced dependency absent from the graph
	CategoryLowering                      // expression or node kind not lowerable for the target
	CategoryInternal                      // invariant violation in this backend
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryGraph:
		return "graph"
	case CategoryLowering:
		return "lowering"
	case CategoryInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// GenError is a single generation failure tied to the global being lowered.
type GenError struct {
	Category ErrorCategory
	Global   ir.Global
	Message  string
}

func (e *GenError) Error() string {
	return fmt.Sprintf("%s error at %s: %s", e.Category, e.Global, e.Message)
}

// Errorf builds a GenError for the given global.
func Errorf(cat ErrorCategory, g ir.Global, format string, args ...interface{}) *GenError {
	return &GenError{Category: cat, Global: g, Message: fmt.Sprintf(format, args...)}
}

// MissingDependency reports a graph-consistency failure: dep was demanded by
// from but is absent from the whole-program graph.
func MissingDependency(from, dep ir.Global) *GenError {
	return Errorf(CategoryGraph, from, "dependency %s not present in the program graph", dep)
}

// Collector accumulates generation errors across roots so one run reports
// everything it can; any collected error still fails the whole generation.
type Collector struct {
	err *multierror.Error
}

// Add records an error; nil is ignored.
func (c *Collector) Add(err error) {
	if err != nil {
		c.err = multierror.Append(c.err, err)
	}
}

// Err returns the combined error, or nil if nothing was collected.
func (c *Collector) Err() error {
	return c.err.ErrorOrNil()
}
