// Package jsgen is the scripting fallback: foreign kernel code, effect
// managers and ports are not lowerable to either primary target and come out
// as a JS program text instead. Only nodes the primary targets defer land
// here, never ones they lower themselves.
package jsgen

import (
	"fmt"
	"strings"

	"github.com/fenlang/fenc/internal/codegen"
	"github.com/fenlang/fenc/internal/ir"
)

// Emitter accumulates the fallback program text. It shares the primary
// target's literal table so spliced field ids agree across outputs.
type Emitter struct {
	lits *codegen.LiteralTable
	b    strings.Builder
}

func NewEmitter(lits *codegen.LiteralTable) *Emitter {
	e := &Emitter{lits: lits}
	e.b.WriteString("// Generated by fenc. Do not edit.\n'use strict';\n\n")
	return e
}

// EmitNode appends the fallback rendition of one deferred global.
func (e *Emitter) EmitNode(gl ir.Global, node ir.Node) error {
	switch n := node.(type) {
	case *ir.Kernel:
		e.kernel(gl, n)
	case *ir.Manager:
		fmt.Fprintf(&e.b, "var %s = Fen.manager('%s');\n", codegen.GlobalName(gl), gl.Module)
	case *ir.PortIncoming:
		fmt.Fprintf(&e.b, "var %s = Fen.portIn('%s');\n", codegen.GlobalName(gl), gl)
	case *ir.PortOutgoing:
		fmt.Fprintf(&e.b, "var %s = Fen.portOut('%s');\n", codegen.GlobalName(gl), gl)
	default:
		return codegen.Errorf(codegen.CategoryLowering, gl, "node kind %T is not a fallback kind", node)
	}
	return nil
}

// kernel splices the generated symbol names and field ids into the verbatim
// foreign source chunks.
func (e *Emitter) kernel(gl ir.Global, n *ir.Kernel) {
	fmt.Fprintf(&e.b, "// kernel %s\n", gl)
	for _, chunk := range n.Chunks {
		switch {
		case chunk.Ref != nil:
			e.b.WriteString(codegen.GlobalName(*chunk.Ref))
		case chunk.Field != "":
			fmt.Fprintf(&e.b, "%d", e.lits.FieldID(chunk.Field))
		default:
			e.b.WriteString(chunk.Src)
		}
	}
	e.b.WriteString("\n")
}

// Bytes returns the accumulated program text.
func (e *Emitter) Bytes() []byte {
	return []byte(e.b.String())
}
