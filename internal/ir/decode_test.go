package ir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeGraph(t *testing.T) {
	src := `{
		"version": 1,
		"fieldFreq": { "name": 3 },
		"globals": [
			{
				"module": "Main",
				"name": "main",
				"node": {
					"k": "define",
					"deps": [ { "Module": "Main", "Name": "greeting" } ],
					"body": {
						"k": "call",
						"fn": { "k": "global", "module": "Main", "name": "greeting" },
						"args": [ { "k": "int", "value": 42 } ]
					}
				}
			},
			{
				"module": "Main",
				"name": "greeting",
				"node": {
					"k": "define",
					"body": {
						"k": "function",
						"params": ["n"],
						"body": { "k": "local", "name": "n" }
					}
				}
			},
			{
				"module": "Maybe",
				"name": "Just",
				"node": { "k": "ctor", "index": 1, "arity": 1 }
			}
		]
	}`

	g, err := DecodeGraph(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 3, g.FieldFreq["name"])
	require.Len(t, g.Nodes, 3)

	main, ok := g.Nodes[Global{Module: "Main", Name: "main"}].(*Define)
	require.True(t, ok)
	assert.Equal(t, []Global{{Module: "Main", Name: "greeting"}}, main.Deps)
	call, ok := main.Body.(*Call)
	require.True(t, ok)
	assert.Equal(t, &VarGlobal{Global: Global{Module: "Main", Name: "greeting"}}, call.Fn)
	require.Len(t, call.Args, 1)
	assert.Equal(t, &Int{Value: 42}, call.Args[0])

	greeting := g.Nodes[Global{Module: "Main", Name: "greeting"}].(*Define)
	fn, ok := greeting.Body.(*Function)
	require.True(t, ok)
	assert.Equal(t, []string{"n"}, fn.Params)
	assert.Equal(t, &VarLocal{Name: "n"}, fn.Body)

	ctor, ok := g.Nodes[Global{Module: "Maybe", Name: "Just"}].(*Ctor)
	require.True(t, ok)
	assert.Equal(t, 1, ctor.Index)
	assert.Equal(t, 1, ctor.Arity)
}

func TestDecodeCaseExpression(t *testing.T) {
	src := `{
		"version": 1,
		"globals": [{
			"module": "Main", "name": "pick",
			"node": { "k": "define", "body": {
				"k": "function", "params": ["x"],
				"body": {
					"k": "case", "root": "x",
					"decider": {
						"k": "fanout",
						"path": { "k": "root", "name": "x" },
						"edges": [
							{ "test": { "k": "int", "value": 1 }, "next": { "k": "leaf", "jump": 0 } }
						],
						"fallback": { "k": "leaf", "inline": { "k": "int", "value": 0 } }
					},
					"jumps": [ { "id": 0, "body": { "k": "int", "value": 9 } } ]
				}
			}}
		}]
	}`

	g, err := DecodeGraph(strings.NewReader(src))
	require.NoError(t, err)
	fn := g.Nodes[Global{Module: "Main", Name: "pick"}].(*Define).Body.(*Function)
	c, ok := fn.Body.(*Case)
	require.True(t, ok)
	assert.Equal(t, "x", c.Root)

	fan, ok := c.Decider.(*FanOut)
	require.True(t, ok)
	assert.Equal(t, &PathRoot{Name: "x"}, fan.Path)
	require.Len(t, fan.Edges, 1)
	assert.Equal(t, &IsInt{Value: 1}, fan.Edges[0].Test)
	assert.Equal(t, &Leaf{Jump: 0}, fan.Edges[0].Next)
	assert.Equal(t, &Leaf{Inline: &Int{Value: 0}}, fan.Fallback)
	require.Len(t, c.Jumps, 1)
	assert.Equal(t, 0, c.Jumps[0].ID)
}

func TestDecodeCycleNode(t *testing.T) {
	src := `{
		"version": 1,
		"globals": [{
			"module": "Main", "name": "isEven",
			"node": {
				"k": "cycle",
				"names": ["isEven", "isOdd"],
				"funcs": [
					{ "name": "isEven", "value": { "k": "function", "params": ["n"], "body": { "k": "int", "value": 1 } } },
					{ "name": "isOdd", "value": { "k": "function", "params": ["n"], "body": { "k": "int", "value": 0 } } }
				]
			}
		}]
	}`

	g, err := DecodeGraph(strings.NewReader(src))
	require.NoError(t, err)
	cyc := g.Nodes[Global{Module: "Main", Name: "isEven"}].(*Cycle)
	assert.Equal(t, []string{"isEven", "isOdd"}, cyc.Names)
	require.Len(t, cyc.Funcs, 2)
	assert.Equal(t, "isOdd", cyc.Funcs[1].Name)
}

func TestDecodeCycleFuncMustBeFunction(t *testing.T) {
	src := `{
		"version": 1,
		"globals": [{
			"module": "Main", "name": "bad",
			"node": { "k": "cycle", "funcs": [
				{ "name": "bad", "value": { "k": "int", "value": 1 } }
			]}
		}]
	}`
	_, err := DecodeGraph(strings.NewReader(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a function literal")
}

func TestDecodeVersionMismatch(t *testing.T) {
	_, err := DecodeGraph(strings.NewReader(`{ "version": 2, "globals": [] }`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format version 2")
}

func TestDecodeUnknownKinds(t *testing.T) {
	_, err := DecodeGraph(strings.NewReader(`{
		"version": 1,
		"globals": [{ "module": "M", "name": "x", "node": { "k": "widget" } }]
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown node kind "widget"`)
	assert.Contains(t, err.Error(), "M.x")

	_, err = DecodeGraph(strings.NewReader(`{
		"version": 1,
		"globals": [{ "module": "M", "name": "x", "node": { "k": "define", "body": { "k": "wat" } } }]
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown expression kind "wat"`)
}
