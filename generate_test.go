package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenlang/fenc/internal/codegen"
)

func TestOutputPath(t *testing.T) {
	opts := genOptions{graphPath: "out/MyApp.json", target: codegen.TargetWasm}
	assert.Equal(t, "my_app.wasm", opts.outputPath())

	opts.target = codegen.TargetC
	assert.Equal(t, "my_app.c", opts.outputPath())

	opts.output = "custom.c"
	assert.Equal(t, "custom.c", opts.outputPath())
}

const smallGraph = `{
	"version": 1,
	"globals": [
		{
			"module": "Main", "name": "main",
			"node": { "k": "define", "body": { "k": "int", "value": 42 } }
		},
		{
			"module": "JS", "name": "log",
			"node": { "k": "kernel", "chunks": [ { "src": "function log(x) { console.log(x); }" } ] }
		}
	]
}`

func writeGraph(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "App.json")
	require.NoError(t, os.WriteFile(path, []byte(smallGraph), 0o644))
	return path
}

func TestRunGenerateWasm(t *testing.T) {
	dir := t.TempDir()
	opts := genOptions{
		graphPath: writeGraph(t, dir),
		target:    codegen.TargetWasm,
		mode:      codegen.ModeProd,
		output:    filepath.Join(dir, "app.wasm"),
		roots:     []string{"Main"},
	}
	require.NoError(t, runGenerate(opts))

	out, err := os.ReadFile(opts.output)
	require.NoError(t, err)
	require.Greater(t, len(out), 8)
	assert.Equal(t, []byte{0x00, 0x61, 0x73, 0x6d}, out[:4])
}

func TestRunGenerateC(t *testing.T) {
	dir := t.TempDir()
	opts := genOptions{
		graphPath: writeGraph(t, dir),
		target:    codegen.TargetC,
		mode:      codegen.ModeProd,
		output:    filepath.Join(dir, "app.c"),
		roots:     []string{"Main"},
	}
	require.NoError(t, runGenerate(opts))

	out, err := os.ReadFile(opts.output)
	require.NoError(t, err)
	assert.Contains(t, string(out), "typedef uint32_t Value;")
	assert.Contains(t, string(out), "int main(void) {")
}

func TestRunGenerateMissingRoot(t *testing.T) {
	dir := t.TempDir()
	opts := genOptions{
		graphPath: writeGraph(t, dir),
		target:    codegen.TargetWasm,
		mode:      codegen.ModeProd,
		output:    filepath.Join(dir, "app.wasm"),
		roots:     []string{"Nope"},
	}
	err := runGenerate(opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no main")
}
