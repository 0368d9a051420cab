package sets

import (
	"errors"

	"github.com/dreamware/setstore/internal/setval"
	"github.com/dreamware/setstore/internal/shard"
	"github.com/dreamware/setstore/internal/store"
	"github.com/dreamware/setstore/internal/txn"
)

// roleSrc and roleDest index the Mover's per-role findings.
const (
	roleSrc = iota
	roleDest
)

type moverState uint8

const (
	moverScheduled moverState = iota
	moverFound
	moverConcluded
)

// finding is what the discovery hop learned about one role's key.
type finding struct {
	present bool  // source role only: member currently in the set
	err     error // lookup failure, notably ErrWrongType
}

// Mover moves one member between two sets that may live on different
// shards. It is a small state machine over two transactional hops:
//
//	Find   - non-concluding: each shard records, for its role(s),
//	         whether the member is present (source) or whether the key
//	         exists with the wrong type (destination).
//	Commit - concluding: evaluates the decision table over the findings
//	         and either performs each shard's half of the move or runs a
//	         no-op hop. Either way the transaction concludes exactly
//	         once; Commit consumes the Mover.
type Mover struct {
	src, dest, member string
	intLimit          int
	found             [2]finding
	state             moverState
}

// NewMover prepares a move of member from src to dest.
func NewMover(src, dest, member string, intLimit int) *Mover {
	return &Mover{src: src, dest: dest, member: member, intLimit: intLimit}
}

// Find runs the non-concluding discovery hop. The transaction must be
// scheduled over both keys.
func (m *Mover) Find(t *txn.Transaction) error {
	if m.state != moverScheduled {
		panic("sets: Mover.Find called twice")
	}
	err := t.Execute(m.opFind, false)
	m.state = moverFound
	return err
}

// opFind records the finding for every role key on this shard. With
// src == dest both positions resolve to the source role, and the
// destination finding stays zero, which the decision table reads as "no
// objection from the destination".
func (m *Mover) opFind(t *txn.Transaction, s *shard.Shard) error {
	db := s.DB(t.DB())

	for _, key := range t.ShardKeys(s.ID) {
		role := roleDest
		if key == m.src {
			role = roleSrc
		}

		e, err := db.Lookup(key, store.KindSet)
		if role == roleSrc && err == nil {
			m.found[roleSrc] = finding{present: e.Value.(*setval.Value).Contains(m.member)}
		} else {
			m.found[role] = finding{err: err}
		}
	}
	return nil
}

// Commit evaluates the decision table gathered by Find and concludes the
// transaction with either the mutating hop or a no-op hop. It returns
// how many members moved (0 or 1).
//
// Decision table:
//   - either role saw a wrong type  -> (0, ErrWrongType), no-op hop
//   - member absent from the source -> (0, nil), no-op hop
//   - src == dest                   -> (1, nil), no-op hop
//   - otherwise                     -> (1, nil), mutating hop
func (m *Mover) Commit(t *txn.Transaction) (int, error) {
	if m.state != moverFound {
		panic("sets: Mover.Commit without Find")
	}
	m.state = moverConcluded

	var (
		moved int
		opErr error
		noop  bool
	)
	switch {
	case errors.Is(m.found[roleSrc].err, store.ErrWrongType) ||
		errors.Is(m.found[roleDest].err, store.ErrWrongType):
		opErr = store.ErrWrongType
		noop = true
	case !m.found[roleSrc].present:
		noop = true
	default:
		moved = 1
		noop = m.src == m.dest
	}

	// The transaction concludes on every branch: scheduler liveness
	// depends on it even when the overall result is an error.
	var hopErr error
	if noop {
		hopErr = t.Execute(txn.NoOpCb, true)
	} else {
		hopErr = t.Execute(m.opMutate, true)
	}
	if opErr == nil {
		opErr = hopErr
	}
	return moved, opErr
}

// opMutate performs this shard's half of the move: remove from the
// source, add to the destination. Find already proved both halves will
// succeed, and the keys stayed locked in between.
func (m *Mover) opMutate(t *txn.Transaction, s *shard.Shard) error {
	args := OpArgs{Shard: s, DB: t.DB(), IntLimit: m.intLimit}

	for _, key := range t.ShardKeys(s.ID) {
		if key == m.src {
			if _, err := OpRem(args, key, []string{m.member}); err != nil {
				return err
			}
		} else {
			if _, err := OpAdd(args, key, []string{m.member}, false); err != nil {
				return err
			}
		}
	}
	return nil
}
