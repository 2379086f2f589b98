// Package pebblestore keeps tree nodes in a pebble database.
package pebblestore

import (
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/nikandfor/hacked/low"
	"tlog.app/go/errors"

	"nikand.dev/go/pbtree"
)

/*
	Keys

	n<id>      // 8 byte big endian id -> encoded node
	meta.next  // next id to allocate
	meta.root  // committed root id
*/

type (
	Store struct {
		db *pebble.DB

		mu   sync.Mutex
		next pbtree.ID
		buf  low.Buf
	}
)

var (
	_ pbtree.Store      = &Store{}
	_ pbtree.RootKeeper = &Store{}
	_ pbtree.Syncer     = &Store{}
)

var (
	keyNext = []byte("meta.next")
	keyRoot = []byte("meta.root")
)

// Open opens or creates a database in dir. opts may be nil.
func Open(dir string, opts *pebble.Options) (*Store, error) {
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrap(err, "open pebble")
	}

	s := &Store{db: db}

	s.next, err = s.getID(keyNext, 0)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "read next id")
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Load(id pbtree.ID) (pbtree.Node, error) {
	v, c, err := s.db.Get(nodeKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, errors.Wrap(pbtree.ErrNodeNotFound, "id %x", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get node %x", id)
	}

	p := make([]byte, len(v))
	copy(p, v)

	err = c.Close()
	if err != nil {
		return nil, errors.Wrap(err, "close value")
	}

	n, _, err := pbtree.DecodeNode(p)
	if err != nil {
		return nil, errors.Wrap(err, "id %x", id)
	}

	return n, nil
}

func (s *Store) Alloc(n pbtree.Node) (pbtree.ID, error) {
	defer s.mu.Unlock()
	s.mu.Lock()

	id := s.next

	s.buf = pbtree.AppendNode(s.buf[:0], n)

	b := s.db.NewBatch()
	defer b.Close()

	err := b.Set(nodeKey(id), s.buf, nil)
	if err != nil {
		return pbtree.NilID, pbtree.WriteError(err)
	}

	err = b.Set(keyNext, idValue(id+1), nil)
	if err != nil {
		return pbtree.NilID, pbtree.WriteError(err)
	}

	err = b.Commit(pebble.NoSync)
	if err != nil {
		return pbtree.NilID, pbtree.WriteError(errors.Wrap(err, "commit node %x", id))
	}

	s.next++

	return id, nil
}

func (s *Store) Root() (pbtree.ID, error) {
	return s.getID(keyRoot, pbtree.NilID)
}

func (s *Store) SetRoot(id pbtree.ID) error {
	_, c, err := s.db.Get(nodeKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return errors.Wrap(pbtree.ErrNodeNotFound, "root %x", id)
	}
	if err != nil {
		return errors.Wrap(err, "check root")
	}

	_ = c.Close()

	err = s.db.Set(keyRoot, idValue(id), pebble.NoSync)
	if err != nil {
		return pbtree.WriteError(errors.Wrap(err, "set root"))
	}

	return nil
}

// Sync makes everything written so far durable.
func (s *Store) Sync() error {
	err := s.db.LogData(nil, pebble.Sync)
	if err != nil {
		return pbtree.WriteError(errors.Wrap(err, "sync"))
	}

	return nil
}

func (s *Store) getID(k []byte, def pbtree.ID) (pbtree.ID, error) {
	v, c, err := s.db.Get(k)
	if errors.Is(err, pebble.ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}

	defer c.Close()

	if len(v) != 8 {
		return def, errors.New("%s: bad value length: %d", k, len(v))
	}

	return pbtree.ID(binary.BigEndian.Uint64(v)), nil
}

func nodeKey(id pbtree.ID) []byte {
	return binary.BigEndian.AppendUint64([]byte{'n'}, uint64(id))
}

func idValue(id pbtree.ID) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(id))
}
