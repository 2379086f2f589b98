package pbtree

import (
	"sort"
)

const NilID ID = -1

type (
	// ID is a node identifier assigned by a Store.
	ID int64

	// Node is either *Leaf or *Internal.
	// Nodes are never modified once built, edits return new nodes.
	Node interface {
		IsLeaf() bool
		Size() int

		// LastKey is the key the node is ranked by among its siblings.
		// ok is false if the node has no such key.
		LastKey() (k []byte, ok bool)

		split() (l, r Node, key []byte)
	}

	KV struct {
		Key   []byte
		Value []byte
	}

	// Link is an internal node entry.
	// Key is the inclusive upper bound of everything reachable through ID.
	// NoKey marks the trailing catch-all link, Key is ignored then.
	Link struct {
		Key   []byte
		NoKey bool
		ID    ID
	}

	Leaf struct {
		KVs []KV
	}

	Internal struct {
		Links []Link
	}
)

func (l *Leaf) IsLeaf() bool { return true }
func (l *Leaf) Size() int    { return len(l.KVs) }

func (l *Leaf) LastKey() ([]byte, bool) {
	if len(l.KVs) == 0 {
		return nil, false
	}

	return l.KVs[len(l.KVs)-1].Key, true
}

// Merge returns a new leaf with kv put in its place.
// An entry with an equal key is replaced.
func (l *Leaf) Merge(kv KV) *Leaf {
	i := sort.Search(len(l.KVs), func(i int) bool {
		return Compare(l.KVs[i].Key, kv.Key) >= 0
	})

	eq := i < len(l.KVs) && Equal(l.KVs[i].Key, kv.Key)

	n := len(l.KVs) + 1
	if eq {
		n--
	}

	kvs := make([]KV, 0, n)
	kvs = append(kvs, l.KVs[:i]...)
	kvs = append(kvs, kv)

	if eq {
		i++
	}

	kvs = append(kvs, l.KVs[i:]...)

	return &Leaf{KVs: kvs}
}

func (l *Leaf) split() (Node, Node, []byte) {
	m := (len(l.KVs) + 1) / 2

	left := &Leaf{KVs: l.KVs[:m:m]}
	right := &Leaf{KVs: l.KVs[m:]}

	return left, right, left.KVs[m-1].Key
}

func (n *Internal) IsLeaf() bool { return false }
func (n *Internal) Size() int    { return len(n.Links) }

func (n *Internal) LastKey() ([]byte, bool) {
	for i := len(n.Links) - 1; i >= 0; i-- {
		if !n.Links[i].NoKey {
			return n.Links[i].Key, true
		}
	}

	return nil, false
}

// Merge returns a new internal node with links replacing
// the entries they were split from.
// Existing links with the same key (or the sentinel for a NoKey link) are dropped.
//
// Merging into an empty node builds a fresh root:
// the last of the links becomes the sentinel.
func (n *Internal) Merge(links ...Link) *Internal {
	if len(n.Links) == 0 {
		res := make([]Link, len(links))
		copy(res, links)

		if len(res) != 0 {
			last := &res[len(res)-1]
			last.Key, last.NoKey = nil, true
		}

		return &Internal{Links: res}
	}

	res := make([]Link, 0, len(n.Links)+len(links))

outer:
	for _, l := range n.Links {
		for _, nl := range links {
			if l.sameSlot(nl) {
				continue outer
			}
		}

		res = append(res, l)
	}

	for _, nl := range links {
		res = insertLink(res, nl)
	}

	return &Internal{Links: res}
}

func (n *Internal) split() (Node, Node, []byte) {
	m := (len(n.Links) + 1) / 2

	ll := make([]Link, m)
	copy(ll, n.Links[:m])

	key := ll[m-1].Key
	ll[m-1] = Link{NoKey: true, ID: ll[m-1].ID}

	return &Internal{Links: ll}, &Internal{Links: n.Links[m:]}, key
}

func (l Link) sameSlot(x Link) bool {
	if l.NoKey || x.NoKey {
		return l.NoKey == x.NoKey
	}

	return Equal(l.Key, x.Key)
}

func insertLink(ls []Link, l Link) []Link {
	if l.NoKey {
		return append(ls, l)
	}

	i := sort.Search(len(ls), func(i int) bool {
		return ls[i].NoKey || Compare(ls[i].Key, l.Key) > 0
	})

	ls = append(ls, Link{})
	copy(ls[i+1:], ls[i:])
	ls[i] = l

	return ls
}
