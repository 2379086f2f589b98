package pbtree

import (
	"sync"

	"tlog.app/go/errors"
)

type (
	// DB publishes the latest committed tree and serializes writers.
	// Readers never block writers: they work on the snapshot they got.
	DB struct {
		s Store
		c Config

		NoSync bool

		mu sync.Mutex
		t  *Tree

		wmu   sync.Mutex
		batch *Batcher
	}
)

// NewDB opens the tree committed to s, or creates an empty one.
// The root is kept if s is a RootKeeper, syncs are issued if s is a Syncer.
func NewDB(s Store, c *Config) (_ *DB, err error) {
	d := &DB{
		s: s,
	}

	if c != nil {
		d.c = *c
		d.NoSync = c.NoSync
	}

	d.t, err = d.openTree()
	if err != nil {
		return nil, err
	}

	if sy, ok := s.(Syncer); ok {
		d.batch = NewBatcher(&d.wmu, sy.Sync)

		go func() {
			err := d.batch.Run()
			if err != nil && tl != nil {
				tl.Printw("sync failed", "err", err)
			}
		}()
	}

	if tl != nil {
		tl.Printw("db opened", "root", d.t.RootID(), "bf", d.t.BranchingFactor())
	}

	return d, nil
}

// Tree returns the latest committed tree.
func (d *DB) Tree() *Tree {
	defer d.mu.Unlock()
	d.mu.Lock()

	return d.t
}

// View calls f with the latest committed tree.
func (d *DB) View(f func(t *Tree) error) error {
	return f(d.Tree())
}

// Update calls f with the latest committed tree and commits the tree f returns.
// Updates run one at a time. Unless NoSync is set Update returns
// after the store is synced. Returning nil or the same tree commits nothing.
// Once a sync has failed or the DB is closed a syncing Update returns that error and commits nothing.
func (d *DB) Update(f func(t *Tree) (*Tree, error)) error {
	if d.batch == nil || d.NoSync {
		defer d.wmu.Unlock()
		d.wmu.Lock()

		_, err := d.commit(f)

		return err
	}

	defer d.batch.Unlock()

	ticket, err := d.batch.Lock()
	if err != nil {
		return errors.Wrap(err, "sync")
	}

	changed, err := d.commit(f)
	if err != nil || !changed {
		return err
	}

	return d.batch.Wait(ticket)
}

// Close stops the background syncer. It doesn't close the Store.
func (d *DB) Close() error {
	if d.batch != nil {
		d.batch.Stop()
	}

	return nil
}

func (d *DB) commit(f func(t *Tree) (*Tree, error)) (bool, error) {
	cur := d.Tree()

	t, err := f(cur)
	if err != nil {
		return false, err
	}

	if t == nil || t == cur {
		return false, nil
	}

	if t.s != d.s {
		return false, errors.New("tree belongs to another store")
	}

	if rk, ok := d.s.(RootKeeper); ok {
		err = rk.SetRoot(t.RootID())
		if err != nil {
			return false, errors.Wrap(err, "set root")
		}
	}

	if tl.V("db,root") != nil {
		tl.Printw("commit", "root", t.RootID(), "prev", cur.RootID())
	}

	d.mu.Lock()
	d.t = t
	d.mu.Unlock()

	return true, nil
}

func (d *DB) openTree() (*Tree, error) {
	rk, keeper := d.s.(RootKeeper)

	if keeper {
		id, err := rk.Root()
		if err != nil {
			return nil, errors.Wrap(err, "get root")
		}

		if id != NilID {
			return Open(d.s, id, &d.c)
		}
	}

	t, err := New(d.s, &d.c)
	if err != nil {
		return nil, err
	}

	if keeper {
		err = rk.SetRoot(t.RootID())
		if err != nil {
			return nil, errors.Wrap(err, "set root")
		}
	}

	if sy, ok := d.s.(Syncer); ok && !d.NoSync {
		err = sy.Sync()
		if err != nil {
			return nil, err
		}
	}

	return t, nil
}
