package pbtree

import "tlog.app/go/errors"

// step is one level of a root-to-leaf path: the node and the link taken out of it.
type step struct {
	n    *Internal
	link Link
}

// route picks the first keyed link with key >= k, or the trailing sentinel.
func route(n *Internal, k []byte) Link {
	last := len(n.Links) - 1

	for _, l := range n.Links[:last] {
		if Compare(l.Key, k) >= 0 {
			return l
		}
	}

	return n.Links[last]
}

// pathToLeaf descends from root to the leaf that does or would contain k.
// Steps are appended to st, the innermost last.
func pathToLeaf(s Store, root Node, k []byte, st []step) (_ []step, _ *Leaf, err error) {
	n := root

	for {
		switch x := n.(type) {
		case *Leaf:
			return st, x, nil
		case *Internal:
			if len(x.Links) == 0 {
				return st, nil, errors.Wrap(ErrMalformedNode, "empty internal node at depth %d", len(st))
			}

			l := route(x, k)
			st = append(st, step{n: x, link: l})

			n, err = s.Load(l.ID)
			if err != nil {
				return st, nil, err
			}
		default:
			panic(n)
		}
	}
}
