package pbtree

import (
	"sync"
)

// Batcher groups syncs of concurrent committers.
// Committers hold the lock while they commit and then Wait
// for a sync started after their commit. One sync serves every
// committer waiting at the moment it starts.
type Batcher struct {
	l    sync.Locker
	cond sync.Cond

	// round is odd while a sync is running
	round int

	flushc chan struct{}
	stopc  chan struct{}
	donec  chan struct{}
	stop   sync.Once

	sync func() error
	err  error
}

func NewBatcher(l sync.Locker, f func() error) *Batcher {
	b := &Batcher{
		l:      l,
		flushc: make(chan struct{}, 1),
		stopc:  make(chan struct{}),
		donec:  make(chan struct{}),
		sync:   f,
	}

	b.cond.L = l

	return b
}

// Run syncs on request until Stop or the first sync error.
func (b *Batcher) Run() error {
	defer close(b.donec)

	for {
		select {
		case <-b.stopc:
			b.l.Lock()
			if b.err == nil {
				b.err = ErrClosed
			}
			b.cond.Broadcast()
			b.l.Unlock()

			return nil
		case <-b.flushc:
		}

		b.l.Lock()
		b.round++
		r := b.round
		b.l.Unlock()

		if tl.V("db,sync") != nil {
			tl.Printw("sync", "round", r)
		}

		err := b.sync()

		b.l.Lock()
		b.round++
		b.err = err
		b.cond.Broadcast()
		b.l.Unlock()

		if err != nil {
			return err
		}
	}
}

// Lock takes the lock and requests a sync.
// The sync can't start until the lock is released.
// It returns the ticket to Wait with, or the error Run stopped with.
// The lock is held in both cases.
func (b *Batcher) Lock() (int, error) {
	b.l.Lock()

	if b.err != nil {
		return 0, b.err
	}

	select {
	case b.flushc <- struct{}{}:
	default:
	}

	return b.round + 1, nil
}

// Wait waits for the sync covering ticket.
// It must be called with the lock held.
func (b *Batcher) Wait(ticket int) error {
	for ticket >= b.round && b.err == nil {
		b.cond.Wait()
	}

	return b.err
}

func (b *Batcher) Unlock() {
	b.l.Unlock()
}

func (b *Batcher) Err() error {
	defer b.l.Unlock()
	b.l.Lock()

	return b.err
}

// Stop stops Run and waits for it to return.
// It's safe to call more than once.
func (b *Batcher) Stop() {
	b.stop.Do(func() { close(b.stopc) })
	<-b.donec
}
