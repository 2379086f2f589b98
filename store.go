package pbtree

import (
	"sync"

	"tlog.app/go/errors"
)

type (
	// Store keeps nodes by ID.
	// Load must return an equal node for the same id for the store lifetime.
	// Load fails with ErrNodeNotFound, Alloc with ErrStoreWrite.
	Store interface {
		Load(id ID) (Node, error)
		Alloc(n Node) (ID, error)
	}

	// RootKeeper is implemented by stores that can remember the committed root.
	RootKeeper interface {
		Root() (ID, error)
		SetRoot(id ID) error
	}

	Syncer interface {
		Sync() error
	}

	// MemStore is an in-memory arena of nodes.
	MemStore struct {
		mu    sync.RWMutex
		nodes []Node
		root  ID
	}
)

var (
	_ Store      = &MemStore{}
	_ RootKeeper = &MemStore{}
)

func NewMemStore() *MemStore {
	return &MemStore{
		root: NilID,
	}
}

func (s *MemStore) Load(id ID) (Node, error) {
	defer s.mu.RUnlock()
	s.mu.RLock()

	if id < 0 || int(id) >= len(s.nodes) {
		return nil, errors.Wrap(ErrNodeNotFound, "id %x", id)
	}

	return s.nodes[id], nil
}

func (s *MemStore) Alloc(n Node) (ID, error) {
	defer s.mu.Unlock()
	s.mu.Lock()

	id := ID(len(s.nodes))
	s.nodes = append(s.nodes, n)

	if tl.V("store,alloc") != nil {
		tl.Printw("mem alloc", "id", id, "leaf", n.IsLeaf(), "size", n.Size())
	}

	return id, nil
}

// Len is the number of allocated nodes, reachable or not.
func (s *MemStore) Len() int {
	defer s.mu.RUnlock()
	s.mu.RLock()

	return len(s.nodes)
}

func (s *MemStore) Root() (ID, error) {
	defer s.mu.RUnlock()
	s.mu.RLock()

	return s.root, nil
}

func (s *MemStore) SetRoot(id ID) error {
	defer s.mu.Unlock()
	s.mu.Lock()

	s.root = id

	return nil
}
