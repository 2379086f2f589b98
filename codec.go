package pbtree

import (
	"encoding/binary"
	"math"

	"tlog.app/go/errors"
)

/*
Node encoding

	tag   byte // Kind
	flags byte // reserved
	count Int
	[count]struct {
		flags Int   // entryNoKey
		key   Bytes // omitted if entryNoKey is set
		val   Bytes
	}

Int is a compact unsigned integer.
Values below Int2 are encoded as a single byte,
larger ones as the tag byte followed by 2, 4 or 8 little endian bytes.

Bytes is an Int length followed by that many bytes.
*/

// Int tags.
const (
	Int2 = 0xfd + iota
	Int4
	Int8
)

// Entry flags.
const (
	entryNoKey = 1 << iota
)

// AppendNode appends the encoded n to b.
func AppendNode(b []byte, n Node) []byte {
	s := ToShape(n)

	b = append(b, byte(s.Kind), 0)
	b = appendInt(b, uint64(len(s.KVs)))

	for _, kv := range s.KVs {
		var f uint64
		if kv.NoKey {
			f |= entryNoKey
		}

		b = appendInt(b, f)

		if !kv.NoKey {
			b = appendBytes(b, kv.Key)
		}

		b = appendBytes(b, kv.Val)
	}

	return b
}

// DecodeNode decodes a node from the beginning of b.
// It returns the node and the number of bytes consumed.
// The node references b, so b must not be modified afterwards.
func DecodeNode(b []byte) (_ Node, i int, err error) {
	if len(b) < 2 {
		return nil, 0, errors.Wrap(ErrMalformedNode, "node header: unexpected end of buffer")
	}

	s := Shape{Kind: Kind(b[0])}
	i = 2

	n, i, err := readInt(b, i)
	if err != nil {
		return nil, 0, errors.Wrap(err, "entries count")
	}

	if n > uint64(len(b)-i)/2 { // every entry takes at least 2 bytes
		return nil, 0, errors.Wrap(ErrMalformedNode, "entries count %d: too big for %d bytes", n, len(b)-i)
	}

	s.KVs = make([]ShapeKV, n)

	for j := range s.KVs {
		kv := &s.KVs[j]

		var f uint64

		f, i, err = readInt(b, i)
		if err != nil {
			return nil, 0, errors.Wrap(err, "entry %d flags", j)
		}

		kv.NoKey = f&entryNoKey != 0

		if !kv.NoKey {
			kv.Key, i, err = readBytes(b, i)
			if err != nil {
				return nil, 0, errors.Wrap(err, "entry %d key", j)
			}
		}

		kv.Val, i, err = readBytes(b, i)
		if err != nil {
			return nil, 0, errors.Wrap(err, "entry %d value", j)
		}
	}

	node, err := FromShape(s)
	if err != nil {
		return nil, 0, err
	}

	return node, i, nil
}

func appendBytes(b, p []byte) []byte {
	b = appendInt(b, uint64(len(p)))
	return append(b, p...)
}

func appendInt(b []byte, x uint64) []byte {
	switch {
	case x < Int2:
		return append(b, byte(x))
	case x <= math.MaxUint16:
		return binary.LittleEndian.AppendUint16(append(b, Int2), uint16(x))
	case x <= math.MaxUint32:
		return binary.LittleEndian.AppendUint32(append(b, Int4), uint32(x))
	default:
		return binary.LittleEndian.AppendUint64(append(b, Int8), x)
	}
}

func readInt(b []byte, st int) (x uint64, i int, err error) {
	i = st

	if i >= len(b) {
		return 0, st, errors.Wrap(ErrMalformedNode, "int: unexpected end of buffer")
	}

	tag := b[i]
	i++

	var w int

	switch tag {
	case Int2:
		w = 2
	case Int4:
		w = 4
	case Int8:
		w = 8
	default:
		return uint64(tag), i, nil
	}

	if i+w > len(b) {
		return 0, st, errors.Wrap(ErrMalformedNode, "int%d: unexpected end of buffer", w)
	}

	switch w {
	case 2:
		x = uint64(binary.LittleEndian.Uint16(b[i:]))
	case 4:
		x = uint64(binary.LittleEndian.Uint32(b[i:]))
	default:
		x = binary.LittleEndian.Uint64(b[i:])
	}

	return x, i + w, nil
}

func readBytes(b []byte, st int) (p []byte, i int, err error) {
	l, i, err := readInt(b, st)
	if err != nil {
		return nil, st, err
	}

	if l > uint64(len(b)-i) {
		return nil, st, errors.Wrap(ErrMalformedNode, "bytes length %d: overflows buffer (%d left)", l, len(b)-i)
	}

	end := i + int(l)

	return b[i:end:end], end, nil
}
