// Package wasm lowers the program graph to a linear-memory bytecode module:
// instruction blocks, a function table, and a data segment holding literal
// payloads as [tag:4B][payload...], little-endian throughout.
package wasm

import (
	"encoding/binary"
	"math"
)

// uleb encodes an unsigned integer as LEB128.
func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

// sleb encodes a signed integer as LEB128.
func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		out = append(out, b)
		if done {
			return out
		}
	}
}

func f64bytes(v float64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	return buf[:]
}

func u32bytes(v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return buf[:]
}

func i32bytes(v int32) []byte {
	return u32bytes(uint32(v))
}

// name encodes a string as a length-prefixed byte vector.
func name(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

// section wraps a section id around a length-prefixed body.
func section(id byte, body []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(uint64(len(body)))...)
	return append(out, body...)
}

// vector prefixes contents with an element count.
func vector(count int, contents []byte) []byte {
	return append(uleb(uint64(count)), contents...)
}
