package ir

import (
	"encoding/json"
	"fmt"
	"io"
)

// The graph file format is a development surface: it lets the driver and the
// tests feed the backend a whole-program graph without running the front end.
// Every object carries a "k" discriminator.

const graphFormatVersion = 1

type jsonGraph struct {
	Version   int            `json:"version"`
	FieldFreq map[string]int `json:"fieldFreq,omitempty"`
	Globals   []jsonGlobal   `json:"globals"`
}

type jsonGlobal struct {
	Module string          `json:"module"`
	Name   string          `json:"name"`
	Node   json.RawMessage `json:"node"`
}

type jsonNode struct {
	K      string            `json:"k"`
	Body   json.RawMessage   `json:"body,omitempty"`
	Params []string          `json:"params,omitempty"`
	Deps   []Global          `json:"deps,omitempty"`
	Index  int               `json:"index,omitempty"`
	Arity  int               `json:"arity,omitempty"`
	To     *Global           `json:"to,omitempty"`
	Names  []string          `json:"names,omitempty"`
	Values []jsonNamedExpr   `json:"values,omitempty"`
	Funcs  []jsonNamedExpr   `json:"funcs,omitempty"`
	Chunks []jsonKernelChunk `json:"chunks,omitempty"`
}

type jsonNamedExpr struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

type jsonKernelChunk struct {
	Src   string  `json:"src,omitempty"`
	Ref   *Global `json:"ref,omitempty"`
	Field string  `json:"field,omitempty"`
}

type jsonExpr struct {
	K        string          `json:"k"`
	Value    json.RawMessage `json:"value,omitempty"`
	Name     string          `json:"name,omitempty"`
	Module   string          `json:"module,omitempty"`
	Region   string          `json:"region,omitempty"`
	Index    uint32          `json:"index,omitempty"`
	Params   []string        `json:"params,omitempty"`
	Body     json.RawMessage `json:"body,omitempty"`
	Fn       json.RawMessage `json:"fn,omitempty"`
	Args     []json.RawMessage `json:"args,omitempty"`
	TailArgs []jsonNamedExpr `json:"tailArgs,omitempty"`
	Branches []jsonBranch    `json:"branches,omitempty"`
	Final    json.RawMessage `json:"final,omitempty"`
	Path     json.RawMessage `json:"path,omitempty"`
	Root     string          `json:"root,omitempty"`
	Decider  json.RawMessage `json:"decider,omitempty"`
	Jumps    []jsonJump      `json:"jumps,omitempty"`
	Field    string          `json:"field,omitempty"`
	Record   json.RawMessage `json:"record,omitempty"`
	Fields   []jsonNamedExpr `json:"fields,omitempty"`
	Entries  []json.RawMessage `json:"entries,omitempty"`
	A        json.RawMessage `json:"a,omitempty"`
	B        json.RawMessage `json:"b,omitempty"`
	C        json.RawMessage `json:"c,omitempty"`
	Src      string          `json:"src,omitempty"`
}

type jsonBranch struct {
	Cond json.RawMessage `json:"cond"`
	Then json.RawMessage `json:"then"`
}

type jsonJump struct {
	ID   int             `json:"id"`
	Body json.RawMessage `json:"body"`
}

// DecodeGraph reads a whole-program graph from its JSON encoding.
func DecodeGraph(r io.Reader) (*Graph, error) {
	var jg jsonGraph
	dec := json.NewDecoder(r)
	if err := dec.Decode(&jg); err != nil {
		return nil, fmt.Errorf("graph file: %w", err)
	}
	if jg.Version != graphFormatVersion {
		return nil, fmt.Errorf("graph file: unsupported format version %d (want %d)", jg.Version, graphFormatVersion)
	}
	g := NewGraph()
	for k, v := range jg.FieldFreq {
		g.FieldFreq[k] = v
	}
	for _, entry := range jg.Globals {
		node, err := decodeNode(entry.Node)
		if err != nil {
			return nil, fmt.Errorf("global %s.%s: %w", entry.Module, entry.Name, err)
		}
		g.Nodes[Global{Module: entry.Module, Name: entry.Name}] = node
	}
	return g, nil
}

func decodeNode(raw json.RawMessage) (Node, error) {
	var jn jsonNode
	if err := json.Unmarshal(raw, &jn); err != nil {
		return nil, err
	}
	switch jn.K {
	case "define":
		body, err := decodeExpr(jn.Body)
		if err != nil {
			return nil, err
		}
		return &Define{Body: body, Deps: jn.Deps}, nil
	case "tailfunc":
		body, err := decodeExpr(jn.Body)
		if err != nil {
			return nil, err
		}
		return &DefineTailFunc{Params: jn.Params, Body: body, Deps: jn.Deps}, nil
	case "ctor":
		return &Ctor{Index: jn.Index, Arity: jn.Arity}, nil
	case "link":
		if jn.To == nil {
			return nil, fmt.Errorf("link node without target")
		}
		return &Link{To: *jn.To}, nil
	case "cycle":
		c := &Cycle{Names: jn.Names, Deps: jn.Deps}
		for _, v := range jn.Values {
			e, err := decodeExpr(v.Value)
			if err != nil {
				return nil, err
			}
			c.Values = append(c.Values, TailArg{Name: v.Name, Value: e})
		}
		for _, f := range jn.Funcs {
			e, err := decodeExpr(f.Value)
			if err != nil {
				return nil, err
			}
			fn, ok := e.(*Function)
			if !ok {
				return nil, fmt.Errorf("cycle func %q is not a function literal", f.Name)
			}
			c.Funcs = append(c.Funcs, CycleFunc{Name: f.Name, Fn: fn})
		}
		return c, nil
	case "manager":
		return &Manager{Deps: jn.Deps}, nil
	case "kernel":
		k := &Kernel{Deps: jn.Deps}
		for _, ch := range jn.Chunks {
			k.Chunks = append(k.Chunks, KernelChunk{Src: ch.Src, Ref: ch.Ref, Field: ch.Field})
		}
		return k, nil
	case "enum":
		return &Enum{Index: jn.Index}, nil
	case "box":
		return &Box{}, nil
	case "portin":
		return &PortIncoming{Deps: jn.Deps}, nil
	case "portout":
		return &PortOutgoing{Deps: jn.Deps}, nil
	}
	return nil, fmt.Errorf("unknown node kind %q", jn.K)
}

func decodeExpr(raw json.RawMessage) (Expr, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing expression")
	}
	var je jsonExpr
	if err := json.Unmarshal(raw, &je); err != nil {
		return nil, err
	}
	switch je.K {
	case "bool":
		var v bool
		if err := json.Unmarshal(je.Value, &v); err != nil {
			return nil, err
		}
		return &Bool{Value: v}, nil
	case "chr":
		var v string
		if err := json.Unmarshal(je.Value, &v); err != nil {
			return nil, err
		}
		return &Chr{Value: v}, nil
	case "str":
		var v string
		if err := json.Unmarshal(je.Value, &v); err != nil {
			return nil, err
		}
		return &Str{Value: v}, nil
	case "int":
		var v int32
		if err := json.Unmarshal(je.Value, &v); err != nil {
			return nil, err
		}
		return &Int{Value: v}, nil
	case "float":
		var v float64
		if err := json.Unmarshal(je.Value, &v); err != nil {
			return nil, err
		}
		return &Float{Value: v}, nil
	case "unit":
		return &Unit{}, nil
	case "local":
		return &VarLocal{Name: je.Name}, nil
	case "global":
		return &VarGlobal{Global: Global{Module: je.Module, Name: je.Name}}, nil
	case "enumref":
		return &VarEnum{Global: Global{Module: je.Module, Name: je.Name}, Index: je.Index}, nil
	case "boxref":
		return &VarBox{Global: Global{Module: je.Module, Name: je.Name}}, nil
	case "cyclic":
		return &VarCycle{Global: Global{Module: je.Module, Name: je.Name}}, nil
	case "kernelref":
		return &VarKernel{Module: je.Module, Name: je.Name}, nil
	case "debug":
		return &VarDebug{Name: je.Name, Region: je.Region}, nil
	case "function":
		body, err := decodeExpr(je.Body)
		if err != nil {
			return nil, err
		}
		return &Function{Params: je.Params, Body: body}, nil
	case "call":
		fn, err := decodeExpr(je.Fn)
		if err != nil {
			return nil, err
		}
		args, err := decodeExprs(je.Args)
		if err != nil {
			return nil, err
		}
		return &Call{Fn: fn, Args: args}, nil
	case "tailcall":
		tc := &TailCall{Name: je.Name}
		for _, a := range je.TailArgs {
			v, err := decodeExpr(a.Value)
			if err != nil {
				return nil, err
			}
			tc.Args = append(tc.Args, TailArg{Name: a.Name, Value: v})
		}
		return tc, nil
	case "if":
		e := &If{}
		for _, b := range je.Branches {
			cond, err := decodeExpr(b.Cond)
			if err != nil {
				return nil, err
			}
			then, err := decodeExpr(b.Then)
			if err != nil {
				return nil, err
			}
			e.Branches = append(e.Branches, IfBranch{Cond: cond, Then: then})
		}
		final, err := decodeExpr(je.Final)
		if err != nil {
			return nil, err
		}
		e.Final = final
		return e, nil
	case "let":
		val, err := decodeExpr(je.Value)
		if err != nil {
			return nil, err
		}
		body, err := decodeExpr(je.Body)
		if err != nil {
			return nil, err
		}
		return &Let{Name: je.Name, Value: val, Body: body}, nil
	case "destruct":
		path, err := decodePath(je.Path)
		if err != nil {
			return nil, err
		}
		body, err := decodeExpr(je.Body)
		if err != nil {
			return nil, err
		}
		return &Destruct{Name: je.Name, Path: path, Body: body}, nil
	case "case":
		dec, err := decodeDecider(je.Decider)
		if err != nil {
			return nil, err
		}
		e := &Case{Root: je.Root, Decider: dec}
		for _, j := range je.Jumps {
			body, err := decodeExpr(j.Body)
			if err != nil {
				return nil, err
			}
			e.Jumps = append(e.Jumps, CaseJump{ID: j.ID, Body: body})
		}
		return e, nil
	case "accessor":
		return &Accessor{Field: je.Field}, nil
	case "access":
		rec, err := decodeExpr(je.Record)
		if err != nil {
			return nil, err
		}
		return &Access{Record: rec, Field: je.Field}, nil
	case "update":
		rec, err := decodeExpr(je.Record)
		if err != nil {
			return nil, err
		}
		fields, err := decodeFields(je.Fields)
		if err != nil {
			return nil, err
		}
		return &Update{Record: rec, Fields: fields}, nil
	case "record":
		fields, err := decodeFields(je.Fields)
		if err != nil {
			return nil, err
		}
		return &Record{Fields: fields}, nil
	case "list":
		entries, err := decodeExprs(je.Entries)
		if err != nil {
			return nil, err
		}
		return &List{Entries: entries}, nil
	case "tuple2":
		a, err := decodeExpr(je.A)
		if err != nil {
			return nil, err
		}
		b, err := decodeExpr(je.B)
		if err != nil {
			return nil, err
		}
		return &Tuple2{A: a, B: b}, nil
	case "tuple3":
		a, err := decodeExpr(je.A)
		if err != nil {
			return nil, err
		}
		b, err := decodeExpr(je.B)
		if err != nil {
			return nil, err
		}
		c, err := decodeExpr(je.C)
		if err != nil {
			return nil, err
		}
		return &Tuple3{A: a, B: b, C: c}, nil
	case "shader":
		return &Shader{Src: je.Src}, nil
	}
	return nil, fmt.Errorf("unknown expression kind %q", je.K)
}

func decodeExprs(raws []json.RawMessage) ([]Expr, error) {
	var out []Expr
	for _, raw := range raws {
		e, err := decodeExpr(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func decodeFields(raws []jsonNamedExpr) ([]FieldValue, error) {
	var out []FieldValue
	for _, f := range raws {
		v, err := decodeExpr(f.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, FieldValue{Field: f.Name, Value: v})
	}
	return out, nil
}

type jsonPath struct {
	K     string          `json:"k"`
	Name  string          `json:"name,omitempty"`
	Index int             `json:"index,omitempty"`
	Field string          `json:"field,omitempty"`
	Sub   json.RawMessage `json:"sub,omitempty"`
}

func decodePath(raw json.RawMessage) (Path, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing path")
	}
	var jp jsonPath
	if err := json.Unmarshal(raw, &jp); err != nil {
		return nil, err
	}
	switch jp.K {
	case "root":
		return &PathRoot{Name: jp.Name}, nil
	case "index":
		sub, err := decodePath(jp.Sub)
		if err != nil {
			return nil, err
		}
		return &PathIndex{Index: jp.Index, Sub: sub}, nil
	case "field":
		sub, err := decodePath(jp.Sub)
		if err != nil {
			return nil, err
		}
		return &PathField{Field: jp.Field, Sub: sub}, nil
	case "unbox":
		sub, err := decodePath(jp.Sub)
		if err != nil {
			return nil, err
		}
		return &PathUnbox{Sub: sub}, nil
	}
	return nil, fmt.Errorf("unknown path kind %q", jp.K)
}

type jsonDecider struct {
	K        string          `json:"k"`
	Inline   json.RawMessage `json:"inline,omitempty"`
	Jump     *int            `json:"jump,omitempty"`
	Tests    []jsonChainTest `json:"tests,omitempty"`
	Success  json.RawMessage `json:"success,omitempty"`
	Failure  json.RawMessage `json:"failure,omitempty"`
	Path     json.RawMessage `json:"path,omitempty"`
	Edges    []jsonEdge      `json:"edges,omitempty"`
	Fallback json.RawMessage `json:"fallback,omitempty"`
}

type jsonChainTest struct {
	Path json.RawMessage `json:"path"`
	Test json.RawMessage `json:"test"`
}

type jsonEdge struct {
	Test json.RawMessage `json:"test"`
	Next json.RawMessage `json:"next"`
}

func decodeDecider(raw json.RawMessage) (Decider, error) {
	var jd jsonDecider
	if err := json.Unmarshal(raw, &jd); err != nil {
		return nil, err
	}
	switch jd.K {
	case "leaf":
		if jd.Jump != nil {
			return &Leaf{Jump: *jd.Jump}, nil
		}
		inline, err := decodeExpr(jd.Inline)
		if err != nil {
			return nil, err
		}
		return &Leaf{Inline: inline}, nil
	case "chain":
		c := &Chain{}
		for _, t := range jd.Tests {
			path, err := decodePath(t.Path)
			if err != nil {
				return nil, err
			}
			test, err := decodeTest(t.Test)
			if err != nil {
				return nil, err
			}
			c.Tests = append(c.Tests, ChainTest{Path: path, Test: test})
		}
		succ, err := decodeDecider(jd.Success)
		if err != nil {
			return nil, err
		}
		fail, err := decodeDecider(jd.Failure)
		if err != nil {
			return nil, err
		}
		c.Success, c.Failure = succ, fail
		return c, nil
	case "fanout":
		f := &FanOut{}
		path, err := decodePath(jd.Path)
		if err != nil {
			return nil, err
		}
		f.Path = path
		for _, e := range jd.Edges {
			test, err := decodeTest(e.Test)
			if err != nil {
				return nil, err
			}
			next, err := decodeDecider(e.Next)
			if err != nil {
				return nil, err
			}
			f.Edges = append(f.Edges, FanOutEdge{Test: test, Next: next})
		}
		fb, err := decodeDecider(jd.Fallback)
		if err != nil {
			return nil, err
		}
		f.Fallback = fb
		return f, nil
	}
	return nil, fmt.Errorf("unknown decider kind %q", jd.K)
}

type jsonTest struct {
	K      string          `json:"k"`
	Module string          `json:"module,omitempty"`
	Name   string          `json:"name,omitempty"`
	Index  int             `json:"index,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
}

func decodeTest(raw json.RawMessage) (Test, error) {
	var jt jsonTest
	if err := json.Unmarshal(raw, &jt); err != nil {
		return nil, err
	}
	switch jt.K {
	case "ctor":
		return &IsCtor{Home: Global{Module: jt.Module, Name: jt.Name}, Name: jt.Name, Index: jt.Index}, nil
	case "int":
		var v int32
		if err := json.Unmarshal(jt.Value, &v); err != nil {
			return nil, err
		}
		return &IsInt{Value: v}, nil
	case "chr":
		var v string
		if err := json.Unmarshal(jt.Value, &v); err != nil {
			return nil, err
		}
		return &IsChr{Value: v}, nil
	case "str":
		var v string
		if err := json.Unmarshal(jt.Value, &v); err != nil {
			return nil, err
		}
		return &IsStr{Value: v}, nil
	case "bool":
		var v bool
		if err := json.Unmarshal(jt.Value, &v); err != nil {
			return nil, err
		}
		return &IsBool{Value: v}, nil
	case "cons":
		return &IsCons{}, nil
	case "nil":
		return &IsNil{}, nil
	}
	return nil, fmt.Errorf("unknown test kind %q", jt.K)
}
