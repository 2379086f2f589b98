package pbtree

import (
	"tlog.app/go/errors"
)

type checker struct {
	s  Store
	bf int

	leafDepth int
}

// Check walks every node reachable from t and verifies tree invariants:
// key order inside nodes, sentinel placement, keys bounded by the parent link,
// node sizes and equal leaf depth.
func Check(t *Tree) error {
	c := checker{
		s:         t.s,
		bf:        t.bf,
		leafDepth: -1,
	}

	return c.node(t.root, t.rootID, 0, nil, nil)
}

// node checks n whose keys must be in (lo, hi]. nil bound means unbounded.
func (c *checker) node(n Node, id ID, d int, lo, hi []byte) error {
	if lim := capacity(n, c.bf); n.Size() > lim {
		return errors.Wrap(ErrInvariant, "node %x: size %d > %d", id, n.Size(), lim)
	}

	switch n := n.(type) {
	case *Leaf:
		if c.leafDepth == -1 {
			c.leafDepth = d
		} else if c.leafDepth != d {
			return errors.Wrap(ErrInvariant, "leaf %x: depth %d, previous leaves at %d", id, d, c.leafDepth)
		}

		if d != 0 && n.Size() == 0 {
			return errors.Wrap(ErrInvariant, "leaf %x: empty", id)
		}

		for i, kv := range n.KVs {
			if i != 0 && Compare(n.KVs[i-1].Key, kv.Key) >= 0 {
				return errors.Wrap(ErrInvariant, "leaf %x: entry %d: keys out of order", id, i)
			}

			if !inBounds(kv.Key, lo, hi) {
				return errors.Wrap(ErrInvariant, "leaf %x: entry %d: key %q out of (%q, %q]", id, i, kv.Key, lo, hi)
			}
		}

		return nil
	case *Internal:
		last := len(n.Links) - 1
		if last < 0 {
			return errors.Wrap(ErrInvariant, "internal %x: empty", id)
		}

		clo := lo

		for i, l := range n.Links {
			if l.NoKey != (i == last) {
				return errors.Wrap(ErrInvariant, "internal %x: link %d/%d: sentinel must be the last link", id, i, len(n.Links))
			}

			chi := hi

			if !l.NoKey {
				if i != 0 && Compare(n.Links[i-1].Key, l.Key) >= 0 {
					return errors.Wrap(ErrInvariant, "internal %x: link %d: keys out of order", id, i)
				}

				if !inBounds(l.Key, lo, hi) {
					return errors.Wrap(ErrInvariant, "internal %x: link %d: key %q out of (%q, %q]", id, i, l.Key, lo, hi)
				}

				chi = l.Key
			}

			cn, err := c.s.Load(l.ID)
			if err != nil {
				return errors.Wrap(err, "internal %x: link %d", id, i)
			}

			err = c.node(cn, l.ID, d+1, clo, chi)
			if err != nil {
				return err
			}

			clo = l.Key
		}

		return nil
	default:
		panic(n)
	}
}

func inBounds(k, lo, hi []byte) bool {
	if lo != nil && Compare(k, lo) <= 0 {
		return false
	}

	if hi != nil && Compare(k, hi) > 0 {
		return false
	}

	return true
}
