package sets

import (
	"github.com/dreamware/setstore/internal/setval"
	"github.com/dreamware/setstore/internal/shard"
	"github.com/dreamware/setstore/internal/store"
	"github.com/dreamware/setstore/internal/txn"
)

// Config carries the host-tunable knobs of the set family.
type Config struct {
	// MaxIntPackedEntries caps IntPacked cardinality before conversion
	// to StringTable. Clamped to the format's 16-bit hard limit.
	MaxIntPackedEntries int
}

// DefaultConfig mirrors the usual host default for the packed limit.
func DefaultConfig() Config {
	return Config{MaxIntPackedEntries: 512}
}

// Family is the command surface of the set collection type. Each method
// is one command: it determines the relevant keys and the shards they
// live on, drives a transaction over those shards, and reduces the
// per-shard contributions into the final outcome. Wire parsing and reply
// serialization stay with the caller.
type Family struct {
	sched    *txn.Scheduler
	intLimit int
}

// NewFamily creates a set family over the scheduler's shard group.
func NewFamily(sched *txn.Scheduler, cfg Config) *Family {
	return &Family{
		sched:    sched,
		intLimit: setval.ClampIntLimit(cfg.MaxIntPackedEntries),
	}
}

func (f *Family) args(s *shard.Shard, db int) OpArgs {
	return OpArgs{Shard: s, DB: db, IntLimit: f.intLimit}
}

// Add inserts members into the set at key, creating it when absent.
// Returns the number of members newly added.
func (f *Family) Add(db int, key string, members ...string) (int, error) {
	var added int
	tx := f.sched.NewTransaction(db, key)
	err := tx.ScheduleSingleHop(func(t *txn.Transaction, s *shard.Shard) error {
		var err error
		added, err = OpAdd(f.args(s, db), key, members, false)
		return err
	})
	return added, err
}

// Remove deletes members from the set at key, deleting the key when it
// becomes empty. A missing key is reported as store.ErrKeyNotFound, not
// as a zero count.
func (f *Family) Remove(db int, key string, members ...string) (int, error) {
	var removed int
	tx := f.sched.NewTransaction(db, key)
	err := tx.ScheduleSingleHop(func(t *txn.Transaction, s *shard.Shard) error {
		var err error
		removed, err = OpRem(f.args(s, db), key, members)
		return err
	})
	return removed, err
}

// Pop removes and returns min(count, cardinality) members chosen
// uniformly at random, deleting the key when it empties.
func (f *Family) Pop(db int, key string, count int) ([]string, error) {
	if count < 0 {
		return nil, ErrInvalidInt
	}
	var popped []string
	tx := f.sched.NewTransaction(db, key)
	err := tx.ScheduleSingleHop(func(t *txn.Transaction, s *shard.Shard) error {
		var err error
		popped, err = OpPop(f.args(s, db), key, count)
		return err
	})
	return popped, err
}

// Card returns the set's cardinality.
func (f *Family) Card(db int, key string) (int, error) {
	var size int
	tx := f.sched.NewTransaction(db, key)
	err := tx.ScheduleSingleHop(func(t *txn.Transaction, s *shard.Shard) error {
		e, err := s.DB(db).Lookup(key, store.KindSet)
		if err != nil {
			return err
		}
		size = e.Value.(*setval.Value).Size()
		return nil
	})
	return size, err
}

// IsMember reports whether member is in the set at key.
func (f *Family) IsMember(db int, key, member string) (bool, error) {
	var present bool
	tx := f.sched.NewTransaction(db, key)
	err := tx.ScheduleSingleHop(func(t *txn.Transaction, s *shard.Shard) error {
		e, err := s.DB(db).Lookup(key, store.KindSet)
		if err != nil {
			return err
		}
		present = e.Value.(*setval.Value).Contains(member)
		return nil
	})
	return present, err
}

// Members returns every member of the set at key.
func (f *Family) Members(db int, key string) ([]string, error) {
	var members []string
	tx := f.sched.NewTransaction(db, key)
	err := tx.ScheduleSingleHop(func(t *txn.Transaction, s *shard.Shard) error {
		var err error
		members, err = OpInter(f.args(s, db), t.ShardKeys(s.ID), false)
		return err
	})
	return members, err
}

// Move atomically moves member from src to dest, which may live on
// different shards. Returns 1 when the member moved (or src == dest and
// the member is present), 0 when the member was absent from src.
func (f *Family) Move(db int, src, dest, member string) (int, error) {
	mover := NewMover(src, dest, member, f.intLimit)
	tx := f.sched.NewTransaction(db, src, dest)
	tx.Schedule()

	if err := mover.Find(tx); err != nil {
		// Discovery failed outright; still conclude before surfacing.
		tx.Execute(txn.NoOpCb, true)
		return 0, err
	}
	return mover.Commit(tx)
}

// Union returns the deduplicated union of all listed sets. Missing keys
// contribute nothing.
func (f *Family) Union(db int, keys ...string) ([]string, error) {
	slots := NewPartials(f.sched.Group().Size())
	tx := f.sched.NewTransaction(db, keys...)
	if err := tx.ScheduleSingleHop(func(t *txn.Transaction, s *shard.Shard) error {
		slots[s.ID] = PartialFrom(OpUnion(f.args(s, db), t.ShardKeys(s.ID)))
		return nil
	}); err != nil {
		return nil, err
	}
	return ReduceUnion(slots)
}

// Diff returns the members of keys[0] not present in any other listed
// set. A missing base key yields an empty result.
func (f *Family) Diff(db int, keys ...string) ([]string, error) {
	srcShard := f.sched.Group().ForKey(keys[0])
	slots := NewPartials(f.sched.Group().Size())

	tx := f.sched.NewTransaction(db, keys...)
	if err := tx.ScheduleSingleHop(func(t *txn.Transaction, s *shard.Shard) error {
		local := t.ShardKeys(s.ID)
		if s.ID == srcShard {
			slots[s.ID] = PartialFrom(OpDiff(f.args(s, db), local))
		} else {
			slots[s.ID] = PartialFrom(OpUnion(f.args(s, db), local))
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return ReduceDiff(slots, srcShard)
}

// Inter returns the intersection of all listed sets. Any missing key
// makes the result empty.
func (f *Family) Inter(db int, keys ...string) ([]string, error) {
	slots := NewPartials(f.sched.Group().Size())
	tx := f.sched.NewTransaction(db, keys...)
	if err := tx.ScheduleSingleHop(func(t *txn.Transaction, s *shard.Shard) error {
		slots[s.ID] = PartialFrom(OpInter(f.args(s, db), t.ShardKeys(s.ID), false))
		return nil
	}); err != nil {
		return nil, err
	}
	return ReduceInter(slots, tx.UniqueShardCount())
}

// UnionStore computes the union of srcs and overwrites dest with it,
// whatever dest held before. Returns the stored cardinality.
func (f *Family) UnionStore(db int, dest string, srcs ...string) (int, error) {
	return f.store(db, dest, srcs, func(t *txn.Transaction, s *shard.Shard, local []string) Partial {
		return PartialFrom(OpUnion(f.args(s, db), local))
	}, func(tx *txn.Transaction, slots []Partial) ([]string, error) {
		return ReduceUnion(slots)
	})
}

// DiffStore computes srcs[0] minus the remaining srcs and overwrites
// dest with the result. Returns the stored cardinality.
func (f *Family) DiffStore(db int, dest string, srcs ...string) (int, error) {
	srcShard := f.sched.Group().ForKey(srcs[0])
	return f.store(db, dest, srcs, func(t *txn.Transaction, s *shard.Shard, local []string) Partial {
		if s.ID == srcShard {
			return PartialFrom(OpDiff(f.args(s, db), local))
		}
		return PartialFrom(OpUnion(f.args(s, db), local))
	}, func(tx *txn.Transaction, slots []Partial) ([]string, error) {
		return ReduceDiff(slots, srcShard)
	})
}

// InterStore computes the intersection of srcs and overwrites dest with
// the result. Returns the stored cardinality.
func (f *Family) InterStore(db int, dest string, srcs ...string) (int, error) {
	return f.store(db, dest, srcs, func(t *txn.Transaction, s *shard.Shard, local []string) Partial {
		return PartialFrom(OpInter(f.args(s, db), local, false))
	}, func(tx *txn.Transaction, slots []Partial) ([]string, error) {
		// Only shards that materialized a local intersection count
		// toward the required total; the destination's shard may have
		// been scheduled for the destination key alone.
		required := 0
		for _, p := range slots {
			if !p.Skipped() {
				required++
			}
		}
		return ReduceInter(slots, required)
	})
}

// store runs the shared two-phase shape of every store variant: a
// non-concluding discovery hop filling per-shard slots (skipping the
// destination key, which the discovery must not touch), a reduction, and
// a concluding hop that either overwrites the destination or — when the
// reduction failed — does nothing but conclude.
func (f *Family) store(
	db int,
	dest string,
	srcs []string,
	gather func(t *txn.Transaction, s *shard.Shard, local []string) Partial,
	reduce func(tx *txn.Transaction, slots []Partial) ([]string, error),
) (int, error) {
	destShard := f.sched.Group().ForKey(dest)
	slots := NewPartials(f.sched.Group().Size())

	keys := append([]string{dest}, srcs...)
	tx := f.sched.NewTransaction(db, keys...)
	tx.Schedule()

	if err := tx.Execute(func(t *txn.Transaction, s *shard.Shard) error {
		local := t.ShardKeys(s.ID)
		if s.ID == destShard {
			// The destination key leads this shard's list; discovery
			// works on the sources only.
			local = local[1:]
			if len(local) == 0 {
				return nil
			}
		}
		slots[s.ID] = gather(t, s, local)
		return nil
	}, false); err != nil {
		tx.Execute(txn.NoOpCb, true)
		return 0, err
	}

	result, err := reduce(tx, slots)
	if err != nil {
		tx.Execute(txn.NoOpCb, true)
		return 0, err
	}

	if err := tx.Execute(func(t *txn.Transaction, s *shard.Shard) error {
		if s.ID == destShard {
			_, err := OpAdd(f.args(s, db), dest, result, true)
			return err
		}
		return nil
	}, true); err != nil {
		return 0, err
	}
	return len(result), nil
}
