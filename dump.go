package pbtree

import (
	"fmt"
	"io"
)

// Dump writes every reachable node of t to w, children indented under their parents.
func Dump(w io.Writer, t *Tree) error {
	return dump(w, t.s, t.root, t.rootID, 0)
}

func dump(w io.Writer, s Store, n Node, id ID, d int) (err error) {
	const pad = "                                                              "

	p := pad[:min(d*4, len(pad))]

	switch n := n.(type) {
	case *Leaf:
		_, err = fmt.Fprintf(w, "%vleaf %x (%d)\n", p, id, n.Size())
		if err != nil {
			return err
		}

		for _, kv := range n.KVs {
			_, err = fmt.Fprintf(w, "%v    %-20.20q -> %.40q\n", p, kv.Key, kv.Value)
			if err != nil {
				return err
			}
		}
	case *Internal:
		_, err = fmt.Fprintf(w, "%vinternal %x (%d)\n", p, id, n.Size())
		if err != nil {
			return err
		}

		for _, l := range n.Links {
			if l.NoKey {
				_, err = fmt.Fprintf(w, "%v  * -> %x\n", p, l.ID)
			} else {
				_, err = fmt.Fprintf(w, "%v  %-20.20q -> %x\n", p, l.Key, l.ID)
			}
			if err != nil {
				return err
			}

			c, err := s.Load(l.ID)
			if err != nil {
				return err
			}

			err = dump(w, s, c, l.ID, d+1)
			if err != nil {
				return err
			}
		}
	}

	return nil
}
