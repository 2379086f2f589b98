package pbtree

import (
	"encoding/binary"
	"flag"
	"fmt"
	"math/rand"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

var flagv = flag.String("tlog-v", "", "verbosity topics")

type (
	// countStore counts store calls and fails Alloc number failAt (1-based).
	countStore struct {
		Store

		loads  atomic.Int64
		allocs atomic.Int64
		failAt int64
	}

	model map[string]string

	testWriter struct {
		t testing.TB
	}

	// failWriter fails every write after the first n.
	failWriter struct {
		n     int
		calls int
		err   error
	}
)

func (s *countStore) Load(id ID) (Node, error) {
	s.loads.Add(1)
	return s.Store.Load(id)
}

func (s *countStore) Alloc(n Node) (ID, error) {
	if s.allocs.Add(1) == s.failAt {
		return NilID, WriteError(errors.New("disk is full"))
	}

	return s.Store.Alloc(n)
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)

	return len(p), nil
}

func (w *failWriter) Write(p []byte) (int, error) {
	w.calls++

	if w.calls > w.n {
		return 0, w.err
	}

	return len(p), nil
}

// testLogger routes debug logs to t when -tlog-v is set.
func testLogger(t testing.TB) {
	if *flagv == "" {
		return
	}

	l := tlog.New(tlog.NewConsoleWriter(testWriter{t: t}, 0))
	l.SetVerbosity(*flagv)

	SetLogger(l)
	t.Cleanup(func() { SetLogger(nil) })
}

func ikey(i int) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(i))
}

// rkey makes short keys from a tiny alphabet so that keys share prefixes
// and some are prefixes of others.
func rkey(rnd *rand.Rand) []byte {
	alpha := []byte{0x00, 0x01, 0x7f, 0x80, 0xff}

	k := make([]byte, rnd.Intn(5))
	for i := range k {
		k[i] = alpha[rnd.Intn(len(alpha))]
	}

	return k
}

func (m model) clone() model {
	c := make(model, len(m))
	for k, v := range m {
		c[k] = v
	}

	return c
}

func (m model) rangeKVs(start, end []byte) (res []KV) {
	keys := make([]string, 0, len(m))
	for k := range m {
		if Compare([]byte(k), start) >= 0 && Compare([]byte(k), end) <= 0 {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)

	for _, k := range keys {
		res = append(res, KV{Key: []byte(k), Value: []byte(m[k])})
	}

	return res
}

// walk calls f for every node reachable from the root of tr.
func walk(t testing.TB, tr *Tree, f func(id ID, n Node)) {
	type el struct {
		id ID
		n  Node
	}

	st := []el{{tr.RootID(), tr.Root()}}

	for len(st) != 0 {
		e := st[len(st)-1]
		st = st[:len(st)-1]

		f(e.id, e.n)

		in, ok := e.n.(*Internal)
		if !ok {
			continue
		}

		for _, l := range in.Links {
			c, err := tr.Store().Load(l.ID)
			require.NoError(t, err)

			st = append(st, el{l.ID, c})
		}
	}
}

// checkModel verifies tr holds exactly m. Keys in extra that are not in m must be absent.
func checkModel(t testing.TB, tr *Tree, m model, extra [][]byte) {
	t.Helper()

	for k, v := range m {
		got, ok, err := tr.Get([]byte(k))
		require.NoError(t, err)

		if assert.True(t, ok, "key %x", k) {
			assert.Equal(t, v, string(got), "key %x", k)
		}
	}

	for _, k := range extra {
		if _, ok := m[string(k)]; ok {
			continue
		}

		_, ok, err := tr.Get(k)
		require.NoError(t, err)
		assert.False(t, ok, "key %x", k)
	}

	all, err := tr.Range([]byte{}, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	require.NoError(t, err)
	assert.Len(t, all, len(m))
}

// randomInserts inserts n random keys into a tree over s checking every step.
func randomInserts(t *testing.T, s Store, bf, n int, seed int64) (*Tree, model) {
	testLogger(t)

	rnd := rand.New(rand.NewSource(seed))

	tr, err := New(s, &Config{BranchingFactor: bf})
	require.NoError(t, err)

	m := model{}

	type snap struct {
		t *Tree
		m model
	}

	var snaps []snap
	var extra [][]byte

	for i := 0; i < n; i++ {
		k := rkey(rnd)
		if rnd.Intn(3) == 0 {
			k = ikey(rnd.Intn(4 * n))
		}

		v := fmt.Sprintf("val_%d", i)

		tr, err = tr.Put(k, []byte(v))
		require.NoError(t, err)

		m[string(k)] = v
		extra = append(extra, k, rkey(rnd), ikey(rnd.Intn(4*n)))

		require.NoError(t, Check(tr), "insert %d: %x", i, k)

		if i%7 == 0 {
			snaps = append(snaps, snap{t: tr, m: m.clone()})
		}
	}

	checkModel(t, tr, m, extra)

	for _, s := range snaps {
		checkModel(t, s.t, s.m, extra)
	}

	return tr, m
}
