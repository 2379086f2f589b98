package pbtree

import (
	"bytes"
	"testing"

	"github.com/nikandfor/hacked/low"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNodes() []Node {
	return []Node{
		&Leaf{},
		&Leaf{KVs: []KV{{Key: []byte{}, Value: []byte("empty key")}}},
		&Leaf{KVs: []KV{
			{Key: []byte("a"), Value: []byte("1")},
			{Key: []byte("ab"), Value: []byte{}},
			{Key: []byte("\xff"), Value: bytes.Repeat([]byte("v"), 300)},
		}},
		&Internal{Links: []Link{{NoKey: true, ID: 0}}},
		&Internal{Links: []Link{
			{Key: []byte("c"), ID: 1},
			{Key: bytes.Repeat([]byte("k"), 0x10001), ID: 0x1234567890},
			{NoKey: true, ID: 3},
		}},
	}
}

func TestCodecRoundTrip(t *testing.T) {
	var b low.Buf

	ns := testNodes()

	for _, n := range ns {
		b = AppendNode(b, n)
	}

	st := 0

	for j, n := range ns {
		r, i, err := DecodeNode(b[st:])
		require.NoError(t, err, "node %d", j)

		assert.Equal(t, n, r, "node %d", j)

		st += i
	}

	assert.Equal(t, len(b), st)
}

func TestCodecInt(t *testing.T) {
	for _, tc := range []struct {
		x    uint64
		size int
	}{
		{0, 1},
		{1, 1},
		{0xfc, 1},
		{0xfd, 3},
		{0xff, 3},
		{0xffff, 3},
		{0x10000, 5},
		{0xffffffff, 5},
		{0x100000000, 9},
		{1 << 40, 9},
		{^uint64(0), 9},
	} {
		b := appendInt([]byte{0xaa}, tc.x)

		if !assert.Len(t, b, 1+tc.size, "x %x", tc.x) {
			continue
		}

		x, i, err := readInt(b, 1)
		assert.NoError(t, err, "x %x", tc.x)
		assert.Equal(t, tc.x, x)
		assert.Equal(t, len(b), i)

		if tc.size == 1 {
			continue
		}

		_, i, err = readInt(b[:len(b)-1], 1)
		assert.ErrorIs(t, err, ErrMalformedNode, "x %x", tc.x)
		assert.Equal(t, 1, i)
	}
}

func TestCodecTruncated(t *testing.T) {
	for j, n := range testNodes() {
		b := AppendNode(nil, n)

		for l := 0; l < len(b); l++ {
			_, _, err := DecodeNode(b[:l])
			if !assert.ErrorIs(t, err, ErrMalformedNode, "node %d: prefix %d/%d", j, l, len(b)) {
				break
			}
		}
	}
}

func TestCodecMalformed(t *testing.T) {
	for name, b := range map[string][]byte{
		"empty":          nil,
		"unknown_kind":   {7, 0, 0},
		"huge_count":     {byte(KindLeaf), 0, Int4, 0xff, 0xff, 0xff, 0x0f},
		"huge_bytes":     {byte(KindLeaf), 0, 1, 0, Int2, 0xff, 0xff, 'a'},
		"leaf_no_key":    {byte(KindLeaf), 0, 1, entryNoKey, 1, 'v'},
		"short_id":       {byte(KindInternal), 0, 1, entryNoKey, 1, 0},
		"empty_internal": {byte(KindInternal), 0, 0},
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := DecodeNode(b)
			assert.ErrorIs(t, err, ErrMalformedNode)
		})
	}
}

func TestCodecAliasing(t *testing.T) {
	b := AppendNode(nil, &Leaf{KVs: []KV{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
	}})

	orig := append([]byte{}, b...)

	n, _, err := DecodeNode(b)
	require.NoError(t, err)

	l := n.(*Leaf)

	k := append(l.KVs[0].Key, 'x')
	assert.Equal(t, []byte("ax"), k)
	assert.Equal(t, orig, b, "decoded slices must be capped")
}
