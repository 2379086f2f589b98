package pbtree

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"strings"
	"sync"

	"github.com/nikandfor/hacked/low"
	"tlog.app/go/errors"
)

/*
	BackStore layout

	00: pbtreeVVVHHHHHH\n // VVV - Version, HHHHHH - header size in hex
	10: <crc32> <zero>
	18: <root>
	20: <next>            // first free byte
	28: ...
	40: records           // { size Int; node [size]byte }, ID is the record offset
*/

const (
	headerSize = 0x40
	maxIntSize = 9
)

type (
	// BackStore appends encoded nodes to a Back.
	BackStore struct {
		b Back

		mu   sync.Mutex
		root ID
		next int64
		recs map[ID]struct{}

		buf low.Buf
	}
)

var (
	_ Store      = &BackStore{}
	_ RootKeeper = &BackStore{}
	_ Syncer     = &BackStore{}

	ChecksumUpdate = func(s uint32, p []byte) uint32 {
		return crc32.Update(s, crc32.IEEETable, p)
	}
)

// OpenBackStore opens the store kept in b, initializing b if it is empty.
func OpenBackStore(b Back) (_ *BackStore, err error) {
	s := &BackStore{
		b:    b,
		root: NilID,
		next: headerSize,
		recs: make(map[ID]struct{}),
	}

	if b.Size() == 0 {
		err = s.initEmpty()
	} else {
		err = s.initExisting()
	}
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *BackStore) Load(id ID) (_ Node, err error) {
	s.mu.Lock()
	_, ok := s.recs[id]
	next := s.next
	s.mu.Unlock()

	if !ok {
		return nil, errors.Wrap(ErrNodeNotFound, "id %x", id)
	}

	size, hl, err := s.readSize(int64(id), next)
	if err != nil {
		return nil, errors.Wrap(err, "id %x", id)
	}

	p := make([]byte, size)

	s.b.Access(int64(id)+int64(hl), int64(size), func(q []byte) {
		copy(p, q)
	})

	n, _, err := DecodeNode(p)
	if err != nil {
		return nil, errors.Wrap(err, "id %x", id)
	}

	return n, nil
}

func (s *BackStore) Alloc(n Node) (ID, error) {
	defer s.mu.Unlock()
	s.mu.Lock()

	s.buf = AppendNode(s.buf[:0], n)

	var hdr [maxIntSize]byte
	h := appendInt(hdr[:0], uint64(len(s.buf)))

	off := s.next
	size := int64(len(h) + len(s.buf))

	if need := off + size; need > s.b.Size() {
		err := s.b.Truncate(growSize(s.b.Size(), need))
		if err != nil {
			return NilID, WriteError(errors.Wrap(err, "grow"))
		}
	}

	s.b.Access(off, size, func(p []byte) {
		i := copy(p, h)
		copy(p[i:], s.buf)
	})

	s.next += size
	s.recs[ID(off)] = struct{}{}

	if tl.V("store,alloc") != nil {
		tl.Printw("back alloc", "id", ID(off), "leaf", n.IsLeaf(), "entries", n.Size(), "bytes", size)
	}

	return ID(off), nil
}

func (s *BackStore) Root() (ID, error) {
	defer s.mu.Unlock()
	s.mu.Lock()

	return s.root, nil
}

func (s *BackStore) SetRoot(id ID) error {
	defer s.mu.Unlock()
	s.mu.Lock()

	if _, ok := s.recs[id]; !ok {
		return errors.Wrap(ErrNodeNotFound, "root %x", id)
	}

	s.root = id

	return s.writeHeader()
}

func (s *BackStore) Sync() error {
	s.mu.Lock()
	err := s.writeHeader()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	err = s.b.Sync()
	if err != nil {
		return WriteError(errors.Wrap(err, "sync"))
	}

	return nil
}

func (s *BackStore) readSize(off, next int64) (size uint64, hl int, err error) {
	l := next - off
	if l > maxIntSize {
		l = maxIntSize
	}

	var hdr [maxIntSize]byte
	s.b.Access(off, l, func(p []byte) {
		copy(hdr[:], p)
	})

	size, hl, err = readInt(hdr[:l], 0)
	if err != nil {
		return 0, 0, err
	}

	if size > uint64(next-off-int64(hl)) {
		return 0, 0, errors.Wrap(ErrMalformedNode, "record at %x: size %x overflows data end %x", off, size, next)
	}

	return size, hl, nil
}

func (s *BackStore) writeHeader() error {
	if need := int64(headerSize); s.b.Size() < need {
		err := s.b.Truncate(growSize(s.b.Size(), need))
		if err != nil {
			return WriteError(errors.Wrap(err, "grow"))
		}
	}

	if tl.V("db,root") != nil {
		tl.Printw("write header", "root", s.root, "next", s.next)
	}

	s.b.Access(0, headerSize, func(p []byte) {
		copy(p, magic())

		binary.BigEndian.PutUint64(p[0x10:], 0)
		binary.BigEndian.PutUint64(p[0x18:], uint64(s.root))
		binary.BigEndian.PutUint64(p[0x20:], uint64(s.next))

		sum := ChecksumUpdate(0, p)
		binary.BigEndian.PutUint32(p[0x10:], sum)
	})

	return nil
}

func (s *BackStore) initEmpty() error {
	err := s.b.Truncate(growSize(0, headerSize))
	if err != nil {
		return WriteError(errors.Wrap(err, "init"))
	}

	err = s.writeHeader()
	if err != nil {
		return err
	}

	err = s.b.Sync()
	if err != nil {
		return WriteError(errors.Wrap(err, "init sync"))
	}

	return nil
}

func (s *BackStore) initExisting() (err error) {
	if s.b.Size() < headerSize {
		return errors.Wrap(ErrBadHeader, "back is too small: %x", s.b.Size())
	}

	var hdr [headerSize]byte
	s.b.Access(0, headerSize, func(p []byte) {
		copy(hdr[:], p)
	})

	if !strings.HasPrefix(string(hdr[:0x10]), "pbtree") {
		return errors.Wrap(ErrBadHeader, "magic: %q", hdr[:0x10])
	}

	if string(hdr[:0x10]) != magic() {
		return errors.Wrap(ErrBadHeader, "unsupported version: %q", hdr[:0x10])
	}

	rsum := binary.BigEndian.Uint32(hdr[0x10:])
	binary.BigEndian.PutUint32(hdr[0x10:], 0)

	if sum := ChecksumUpdate(0, hdr[:]); sum != rsum {
		return ErrHeaderChecksum
	}

	s.root = ID(binary.BigEndian.Uint64(hdr[0x18:]))
	s.next = int64(binary.BigEndian.Uint64(hdr[0x20:]))

	if s.next < headerSize || s.next > s.b.Size() {
		return errors.Wrap(ErrBadHeader, "data end %x is out of [%x, %x]", s.next, headerSize, s.b.Size())
	}

	for off := int64(headerSize); off < s.next; {
		size, hl, err := s.readSize(off, s.next)
		if err != nil {
			return errors.Wrap(err, "scan records")
		}

		s.recs[ID(off)] = struct{}{}

		off += int64(hl) + int64(size)
	}

	if _, ok := s.recs[s.root]; s.root != NilID && !ok {
		return errors.Wrap(ErrBadHeader, "root %x is not a record", s.root)
	}

	return nil
}

func magic() string {
	return fmt.Sprintf("pbtree%3s%6x\n", Version, headerSize)
}
