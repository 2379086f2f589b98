package pbtree

import (
	"tlog.app/go/loc"
)

// Tree is an immutable snapshot of a tree.
// Put returns a new Tree, the receiver stays valid and unchanged.
// Trees share unchanged nodes through the Store.
type Tree struct {
	root   Node
	rootID ID
	s      Store
	bf     int
}

// New allocates an empty leaf as the root of a new tree.
func New(s Store, c *Config) (*Tree, error) {
	bf, err := c.branchingFactor()
	if err != nil {
		return nil, err
	}

	root := &Leaf{}

	id, err := s.Alloc(root)
	if err != nil {
		return nil, err
	}

	return &Tree{
		root:   root,
		rootID: id,
		s:      s,
		bf:     bf,
	}, nil
}

// Open returns the tree rooted at id.
func Open(s Store, id ID, c *Config) (*Tree, error) {
	bf, err := c.branchingFactor()
	if err != nil {
		return nil, err
	}

	root, err := s.Load(id)
	if err != nil {
		return nil, err
	}

	return &Tree{
		root:   root,
		rootID: id,
		s:      s,
		bf:     bf,
	}, nil
}

func (t *Tree) Root() Node           { return t.root }
func (t *Tree) RootID() ID           { return t.rootID }
func (t *Tree) Store() Store         { return t.s }
func (t *Tree) BranchingFactor() int { return t.bf }

// Get returns the value stored for k.
// ok is false if there is no such key.
// v is shared with the tree and must not be modified.
func (t *Tree) Get(k []byte) (v []byte, ok bool, err error) {
	_, l, err := pathToLeaf(t.s, t.root, k, nil)
	if err != nil {
		return nil, false, err
	}

	for _, kv := range l.KVs {
		if Equal(kv.Key, k) {
			return kv.Value, true, nil
		}
	}

	return nil, false, nil
}

// Put returns a new tree with k set to v.
// k and v are copied, the caller may reuse them.
// Store errors are returned as is. Nodes allocated before the failure are left orphaned.
func (t *Tree) Put(k, v []byte) (_ *Tree, err error) {
	defer func() {
		if err != nil && tl != nil {
			tl.Printw("put failed", "key", k, "err", err, "from", loc.Caller(2))
		}
	}()

	path, leaf, err := pathToLeaf(t.s, t.root, k, nil)
	if err != nil {
		return nil, err
	}

	if tl.V("tree,put") != nil {
		tl.Printw("put", "key", k, "depth", len(path), "leaf_size", leaf.Size())
	}

	kv := KV{
		Key:   append(make([]byte, 0, len(k)), k...),
		Value: append(make([]byte, 0, len(v)), v...),
	}

	var cur Node = leaf.Merge(kv)
	var repl []Link

	for d := len(path); ; d-- {
		if d < len(path) {
			cur = path[d].n.Merge(repl...)
		}

		slot := Link{NoKey: true}
		if d > 0 {
			slot = path[d-1].link
		}

		repl, err = t.persist(cur, slot)
		if err != nil {
			return nil, err
		}

		if d == 0 {
			break
		}
	}

	nt := &Tree{
		root:   cur,
		rootID: repl[0].ID,
		s:      t.s,
		bf:     t.bf,
	}

	if len(repl) == 1 {
		return nt, nil
	}

	root := (&Internal{}).Merge(repl...)

	nt.root = root
	nt.rootID, err = t.s.Alloc(root)
	if err != nil {
		return nil, err
	}

	if tl.V("tree,root") != nil {
		tl.Printw("new root", "id", nt.rootID, "left", repl[0].ID, "right", repl[1].ID)
	}

	return nt, nil
}

// persist allocates n, splitting it first if it overflows.
// It returns the links replacing slot in the parent.
func (t *Tree) persist(n Node, slot Link) ([]Link, error) {
	if n.Size() <= capacity(n, t.bf) {
		id, err := t.s.Alloc(n)
		if err != nil {
			return nil, err
		}

		slot.ID = id

		return []Link{slot}, nil
	}

	l, r, key := n.split()

	lid, err := t.s.Alloc(l)
	if err != nil {
		return nil, err
	}

	rid, err := t.s.Alloc(r)
	if err != nil {
		return nil, err
	}

	if tl.V("tree,split") != nil {
		tl.Printw("split", "leaf", n.IsLeaf(), "size", n.Size(), "key", key, "left", lid, "right", rid)
	}

	slot.ID = rid

	return []Link{{Key: key, ID: lid}, slot}, nil
}
