package pbtree

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemBack(t *testing.T) {
	b := NewMemBack(0)

	assert.Equal(t, int64(0), b.Size())

	err := b.Truncate(0x200)
	assert.NoError(t, err)

	b.Access(0x100, 0x100, func(p []byte) {
		copy(p, "NODE2 content")
	})

	b.Access(0x0, 0x10, func(p []byte) {
		copy(p, "NODE1 content")
	})

	err = b.Sync()
	assert.NoError(t, err)

	b.Access(0x100, 0x10, func(p []byte) {
		r := bytes.HasPrefix(p, []byte("NODE2 content"))
		assert.True(t, r)
	})

	assert.Equal(t, int64(0x200), b.Size())

	err = b.Truncate(0x100)
	assert.NoError(t, err)

	b.Access(0x0, 0x10, func(p []byte) {
		r := bytes.HasPrefix(p, []byte("NODE1 content"))
		assert.True(t, r)
	})

	assert.Panics(t, func() {
		b.Access(0x100, 0x10, nil)
	})

	err = b.Truncate(0x200)
	assert.NoError(t, err)

	b.Access(0x100, 0x10, func(p []byte) {
		assert.Equal(t, make([]byte, 0x10), p, "grown space must be zeroed")
	})
}

func TestGrowSize(t *testing.T) {
	for _, tc := range []struct {
		cur, need, exp int64
	}{
		{0, 0x40, 4 * KB},
		{0, 4 * KB, 4 * KB},
		{4 * KB, 4*KB + 1, 8 * KB},
		{4 * KB, 100 * KB, 128 * KB},
		{16 * MB, 16*MB + 1, 20 * MB},
		{256 * MB, 256*MB + 1, 320 * MB},
	} {
		assert.Equal(t, tc.exp, growSize(tc.cur, tc.need), "cur %x need %x", tc.cur, tc.need)
	}
}
