package codegen

import (
	"fmt"
	"strings"
)

// TargetKind selects which backend lowers the program.
type TargetKind int

const (
	TargetUnknown TargetKind = iota
	TargetWasm               // linear-memory bytecode module
	TargetC                  // native struct/extern declarations
)

func (t TargetKind) String() string {
	switch t {
	case TargetWasm:
		return "wasm"
	case TargetC:
		return "c"
	default:
		return "unknown"
	}
}

// ParseTarget parses a target name from the CLI or environment.
func ParseTarget(s string) (TargetKind, error) {
	switch strings.ToLower(s) {
	case "wasm", "bytecode":
		return TargetWasm, nil
	case "c", "native":
		return TargetC, nil
	}
	return TargetUnknown, fmt.Errorf("unknown target %q (want wasm or c)", s)
}

// Mode decides whether debug-only expression variants are honored (dev) or
// stripped (optimized).
type Mode int

const (
	ModeDev Mode = iota
	ModeProd
)

func (m Mode) String() string {
	if m == ModeProd {
		return "prod"
	}
	return "dev"
}
