package pbtree

import "sync"

const (
	KB = 1 << 10
	MB = 1 << 20
)

type (
	// Back is a byte addressed storage a BackStore keeps nodes in.
	// Access calls f with p[off:off+len], p must not be retained after f returns.
	// Access panics if the range is out of Size.
	Back interface {
		Access(off, len int64, f func(p []byte))
		Size() int64
		Truncate(size int64) error
		Sync() error
	}

	MemBack struct {
		mu sync.RWMutex
		d  []byte
	}
)

var _ Back = &MemBack{}

func NewMemBack(size int64) *MemBack {
	return &MemBack{
		d: make([]byte, size),
	}
}

func (b *MemBack) Access(off, l int64, f func(p []byte)) {
	defer b.mu.RUnlock()
	b.mu.RLock()

	if off < 0 || off+l > int64(len(b.d)) {
		panic("out of range")
	}

	f(b.d[off : off+l : off+l])
}

func (b *MemBack) Truncate(s int64) error {
	defer b.mu.Unlock()
	b.mu.Lock()

	if tl.V("back,truncate") != nil {
		tl.Printw("mem truncate", "size", s, "was", len(b.d))
	}

	if int64(cap(b.d)) >= s {
		old := len(b.d)
		b.d = b.d[:s]

		if int64(old) < s {
			clear(b.d[old:])
		}

		return nil
	}

	c := make([]byte, s)
	copy(c, b.d)
	b.d = c

	return nil
}

func (b *MemBack) Size() int64 {
	defer b.mu.RUnlock()
	b.mu.RLock()

	return int64(len(b.d))
}

func (b *MemBack) Sync() error {
	return nil
}

// growSize picks the next backing size able to hold need bytes.
func growSize(cur, need int64) int64 {
	s := cur
	if s < 4*KB {
		s = 4 * KB
	}

	for s < need {
		switch {
		case s < 16*MB:
			s *= 2
		case s < 256*MB:
			s += s / 4
		default:
			s += 64 * MB
		}
	}

	return s
}
