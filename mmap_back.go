//go:build unix

package pbtree

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"
	"tlog.app/go/errors"
)

type (
	// MmapBack is a file mapped into memory.
	MmapBack struct {
		rw bool
		mu sync.RWMutex
		f  *os.File
		d  []byte
	}
)

var _ Back = &MmapBack{}

// Mmap opens file n. Zero flags means os.O_CREATE|os.O_RDWR.
func Mmap(n string, flags int) (*MmapBack, error) {
	if flags == 0 {
		flags = os.O_CREATE | os.O_RDWR
	}

	f, err := os.OpenFile(n, flags, 0640)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}

	b, err := MmapFile(f, flags&(os.O_WRONLY|os.O_RDWR) != 0)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return b, nil
}

func MmapFile(f *os.File, rw bool) (_ *MmapBack, err error) {
	b := &MmapBack{
		rw: rw,
		f:  f,
	}

	inf, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat")
	}

	if inf.Size() == 0 {
		return b, nil
	}

	err = b.mmap(inf.Size())
	if err != nil {
		return nil, err
	}

	return b, nil
}

func (b *MmapBack) Close() error {
	defer b.mu.Unlock()
	b.mu.Lock()

	err := b.unmap()
	if err != nil {
		return err
	}

	return b.f.Close()
}

func (b *MmapBack) Access(off, l int64, f func(p []byte)) {
	defer b.mu.RUnlock()
	b.mu.RLock()

	if off < 0 || off+l > int64(len(b.d)) {
		panic("out of range")
	}

	f(b.d[off : off+l : off+l])
}

func (b *MmapBack) Truncate(s int64) (err error) {
	defer b.mu.Unlock()
	b.mu.Lock()

	if tl.V("back,truncate") != nil {
		tl.Printw("mmap truncate", "size", s, "was", len(b.d), "file", b.f.Name())
	}

	err = b.unmap()
	if err != nil {
		return err
	}

	err = b.f.Truncate(s)
	if err != nil {
		return errors.Wrap(err, "truncate")
	}

	if s == 0 {
		return nil
	}

	return b.mmap(s)
}

func (b *MmapBack) Size() int64 {
	defer b.mu.RUnlock()
	b.mu.RLock()

	return int64(len(b.d))
}

func (b *MmapBack) Sync() error {
	defer b.mu.RUnlock()
	b.mu.RLock()

	if b.d == nil {
		return nil
	}

	err := unix.Msync(b.d, unix.MS_SYNC)
	if err != nil {
		return errors.Wrap(err, "msync")
	}

	return nil
}

func (b *MmapBack) mmap(size int64) (err error) {
	prot := unix.PROT_READ
	if b.rw {
		prot |= unix.PROT_WRITE
	}

	b.d, err = unix.Mmap(int(b.f.Fd()), 0, int(size), prot, unix.MAP_SHARED)
	if err != nil {
		return errors.Wrap(err, "mmap")
	}

	return nil
}

func (b *MmapBack) unmap() error {
	if b.d == nil {
		return nil
	}

	err := unix.Munmap(b.d)
	b.d = nil
	if err != nil {
		return errors.Wrap(err, "munmap")
	}

	return nil
}
