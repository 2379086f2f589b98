package pbtree

import (
	stderrors "errors"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

const Version = "000"

const DefaultBranchingFactor = 32

var tl *tlog.Logger // debug logger, nil means silent

var ( // errors
	ErrNodeNotFound   = stderrors.New("node not found")
	ErrStoreWrite     = stderrors.New("store write")
	ErrMalformedNode  = stderrors.New("malformed node")
	ErrInvariant      = stderrors.New("tree invariant violated")
	ErrHeaderChecksum = stderrors.New("header checksum mismatch")
	ErrBadHeader      = stderrors.New("bad header")
	ErrClosed         = stderrors.New("closed")
)

type (
	Config struct {
		// BranchingFactor is the maximum number of entries a node holds before it splits.
		// Zero means DefaultBranchingFactor.
		// Internal nodes always have room for two links, so with 1 they may hold 2.
		BranchingFactor int

		NoSync bool
	}

	writeError struct {
		err error
	}
)

// SetLogger sets the logger used for debug output. Topics are
// tree,put tree,split tree,root store,alloc back,truncate db,root db,sync.
func SetLogger(l *tlog.Logger) {
	tl = l
}

// WriteError marks a backend failure so it matches ErrStoreWrite
// while keeping the original error in the chain.
func WriteError(err error) error {
	if err == nil {
		return nil
	}

	return writeError{err: err}
}

func (e writeError) Error() string        { return "store write: " + e.err.Error() }
func (e writeError) Unwrap() error        { return e.err }
func (e writeError) Is(target error) bool { return target == ErrStoreWrite }

func (c *Config) branchingFactor() (int, error) {
	if c == nil || c.BranchingFactor == 0 {
		return DefaultBranchingFactor, nil
	}

	if c.BranchingFactor < 1 {
		return 0, errors.New("bad branching factor: %d", c.BranchingFactor)
	}

	return c.BranchingFactor, nil
}

// capacity is the number of entries n may hold after an insertion.
// A routing node needs two links to branch, so internal nodes hold at least two.
func capacity(n Node, bf int) int {
	if !n.IsLeaf() && bf < 2 {
		return 2
	}

	return bf
}
