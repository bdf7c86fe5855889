package wasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUleb(t *testing.T) {
	assert.Equal(t, []byte{0x00}, uleb(0))
	assert.Equal(t, []byte{0x7f}, uleb(127))
	assert.Equal(t, []byte{0x80, 0x01}, uleb(128))
	assert.Equal(t, []byte{0xe5, 0x8e, 0x26}, uleb(624485))
}

func TestSleb(t *testing.T) {
	assert.Equal(t, []byte{0x00}, sleb(0))
	assert.Equal(t, []byte{0x7f}, sleb(-1))
	assert.Equal(t, []byte{0x3f}, sleb(63))
	assert.Equal(t, []byte{0xc0, 0x00}, sleb(64))
	assert.Equal(t, []byte{0x40}, sleb(-64))
	assert.Equal(t, []byte{0xbf, 0x7f}, sleb(-65))
}

func TestLittleEndianWords(t *testing.T) {
	assert.Equal(t, []byte{0x2a, 0x00, 0x00, 0x00}, u32bytes(42))
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, i32bytes(-1))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0xf0, 0x3f}, f64bytes(1.0))
}

func TestNameAndSection(t *testing.T) {
	assert.Equal(t, []byte{4, 'm', 'a', 'i', 'n'}, name("main"))

	body := []byte{1, 2, 3}
	got := section(7, body)
	assert.Equal(t, byte(7), got[0])
	assert.Equal(t, byte(3), got[1])
	assert.Equal(t, body, got[2:])

	assert.Equal(t, []byte{2, 0xaa, 0xbb}, vector(2, []byte{0xaa, 0xbb}))
}
