package pbtree

type (
	// Iter walks entries with start <= key <= end in key order.
	// It loads nodes lazily and is single pass.
	Iter struct {
		s          Store
		start, end []byte

		stack []Node // reversed: top is the next node in key order
		buf   []Node

		kvs []KV
		i   int

		err error
	}
)

// prune appends to dst the children of n that may hold keys within [start, end].
// A leaf prunes to itself.
func prune(dst []Node, s Store, n Node, start, end []byte) ([]Node, error) {
	in, ok := n.(*Internal)
	if !ok {
		return append(dst, n), nil
	}

	last := len(in.Links) - 1

	for _, l := range in.Links[:last] {
		if Compare(l.Key, start) < 0 {
			continue
		}

		c, err := s.Load(l.ID)
		if err != nil {
			return dst, err
		}

		dst = append(dst, c)

		if Compare(l.Key, end) >= 0 {
			return dst, nil
		}
	}

	if lk, ok := in.LastKey(); ok && Compare(end, lk) <= 0 {
		return dst, nil
	}

	c, err := s.Load(in.Links[last].ID)
	if err != nil {
		return dst, err
	}

	return append(dst, c), nil
}

// Range returns entries with start <= key <= end in key order.
// Keys and values are shared with the tree and must not be modified.
func (t *Tree) Range(start, end []byte) (res []KV, err error) {
	if Compare(start, end) > 0 {
		return nil, nil
	}

	front := []Node{t.root}
	var next []Node

	for !allLeaves(front) {
		next = next[:0]

		for _, n := range front {
			next, err = prune(next, t.s, n, start, end)
			if err != nil {
				return nil, err
			}
		}

		front, next = next, front
	}

	for _, n := range front {
		for _, kv := range n.(*Leaf).KVs {
			if Compare(kv.Key, start) >= 0 && Compare(kv.Key, end) <= 0 {
				res = append(res, kv)
			}
		}
	}

	return res, nil
}

// Iter returns a lazy iterator over the same entries as Range.
func (t *Tree) Iter(start, end []byte) *Iter {
	it := &Iter{
		s:     t.s,
		start: start,
		end:   end,
		i:     -1,
	}

	if Compare(start, end) <= 0 {
		it.stack = append(it.stack, t.root)
	}

	return it
}

func (it *Iter) Next() bool {
	for it.err == nil {
		if it.i+1 < len(it.kvs) {
			it.i++

			k := it.kvs[it.i].Key

			if Compare(k, it.end) > 0 {
				it.stop()
				return false
			}

			if Compare(k, it.start) < 0 {
				continue
			}

			return true
		}

		if len(it.stack) == 0 {
			it.stop()
			return false
		}

		n := it.stack[len(it.stack)-1]
		it.stack = it.stack[:len(it.stack)-1]

		if l, ok := n.(*Leaf); ok {
			it.kvs, it.i = l.KVs, -1
			continue
		}

		it.buf, it.err = prune(it.buf[:0], it.s, n, it.start, it.end)

		for j := len(it.buf) - 1; j >= 0; j-- {
			it.stack = append(it.stack, it.buf[j])
		}
	}

	return false
}

// Key and Value are shared with the tree and must not be modified.
func (it *Iter) Key() []byte   { return it.kvs[it.i].Key }
func (it *Iter) Value() []byte { return it.kvs[it.i].Value }
func (it *Iter) Err() error    { return it.err }

func (it *Iter) stop() {
	it.stack = nil
	it.kvs, it.i = nil, -1
}

func allLeaves(ns []Node) bool {
	for _, n := range ns {
		if !n.IsLeaf() {
			return false
		}
	}

	return true
}
