package pbtree

import (
	"encoding/binary"
	"fmt"

	"tlog.app/go/errors"
)

// Node kinds. Values are used as the node tag in the binary encoding.
const (
	_ Kind = iota
	KindLeaf
	KindInternal
)

type (
	Kind byte

	// Shape is a storage-ready node representation.
	Shape struct {
		Kind Kind
		KVs  []ShapeKV
	}

	// ShapeKV is a leaf entry or a link.
	// For links Val is the 8-byte big-endian child ID.
	ShapeKV struct {
		Key   []byte
		NoKey bool
		Val   []byte
	}
)

func ToShape(n Node) Shape {
	switch n := n.(type) {
	case *Leaf:
		s := Shape{Kind: KindLeaf, KVs: make([]ShapeKV, len(n.KVs))}

		for i, kv := range n.KVs {
			s.KVs[i] = ShapeKV{Key: kv.Key, Val: kv.Value}
		}

		return s
	case *Internal:
		s := Shape{Kind: KindInternal, KVs: make([]ShapeKV, len(n.Links))}

		for i, l := range n.Links {
			s.KVs[i] = ShapeKV{
				Key:   l.Key,
				NoKey: l.NoKey,
				Val:   binary.BigEndian.AppendUint64(nil, uint64(l.ID)),
			}

			if l.NoKey {
				s.KVs[i].Key = nil
			}
		}

		return s
	default:
		panic(n)
	}
}

// FromShape builds a node from s.
// It fails with ErrMalformedNode if s is not a shape ToShape could produce.
func FromShape(s Shape) (Node, error) {
	switch s.Kind {
	case KindLeaf:
		return leafFromShape(s)
	case KindInternal:
		return internalFromShape(s)
	default:
		return nil, errors.Wrap(ErrMalformedNode, "unknown kind: %v", s.Kind)
	}
}

func leafFromShape(s Shape) (Node, error) {
	var kvs []KV
	if len(s.KVs) != 0 {
		kvs = make([]KV, len(s.KVs))
	}

	for i, kv := range s.KVs {
		if kv.NoKey {
			return nil, errors.Wrap(ErrMalformedNode, "leaf entry %d: no key", i)
		}

		if i != 0 && Compare(kvs[i-1].Key, kv.Key) >= 0 {
			return nil, errors.Wrap(ErrMalformedNode, "leaf entry %d: keys out of order", i)
		}

		kvs[i] = KV{Key: kv.Key, Value: kv.Val}
	}

	return &Leaf{KVs: kvs}, nil
}

func internalFromShape(s Shape) (Node, error) {
	if len(s.KVs) == 0 {
		return nil, errors.Wrap(ErrMalformedNode, "empty internal node")
	}

	last := len(s.KVs) - 1
	ls := make([]Link, len(s.KVs))

	for i, kv := range s.KVs {
		if kv.NoKey != (i == last) {
			return nil, errors.Wrap(ErrMalformedNode, "link %d/%d: sentinel must be the last link", i, len(s.KVs))
		}

		if len(kv.Val) != 8 {
			return nil, errors.Wrap(ErrMalformedNode, "link %d: bad child id length: %d", i, len(kv.Val))
		}

		if !kv.NoKey && i != 0 && Compare(ls[i-1].Key, kv.Key) >= 0 {
			return nil, errors.Wrap(ErrMalformedNode, "link %d: keys out of order", i)
		}

		ls[i] = Link{
			Key:   kv.Key,
			NoKey: kv.NoKey,
			ID:    ID(binary.BigEndian.Uint64(kv.Val)),
		}

		if kv.NoKey {
			ls[i].Key = nil
		}
	}

	return &Internal{Links: ls}, nil
}

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindInternal:
		return "internal"
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}
