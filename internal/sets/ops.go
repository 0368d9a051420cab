package sets

import (
	"errors"

	"github.com/dreamware/setstore/internal/setval"
	"github.com/dreamware/setstore/internal/shard"
	"github.com/dreamware/setstore/internal/store"
)

// ErrInvalidInt is the client-facing error for a malformed numeric
// argument, such as a non-integer pop count.
var ErrInvalidInt = errors.New("value is not an integer or out of range")

// OpArgs carries what every shard-local operator needs: the shard it
// runs on, the database index, and the configured IntPacked entry limit.
// Borrowed from the caller for the duration of one call, never stored.
type OpArgs struct {
	Shard    *shard.Shard
	DB       int
	IntLimit int
}

func (a OpArgs) db() *store.DB { return a.Shard.DB(a.DB) }

// OpAdd inserts members into the set at key, creating it when absent and
// picking the initial encoding from the incoming members. With overwrite
// set, any existing value (of any kind) is discarded first; overwrite
// with no members deletes the key outright, since an empty set is never
// stored. Returns how many members were newly added.
//
// Must run on the owning shard's loop.
func OpAdd(args OpArgs, key string, members []string, overwrite bool) (int, error) {
	db := args.db()

	if overwrite && len(members) == 0 {
		db.Delete(db.Find(key))
		return 0, nil
	}

	e, inserted := db.AddOrFind(key)
	if !inserted {
		db.PreUpdate(e)
	}

	if inserted || overwrite {
		enc := setval.StringTable
		if setval.AllInts(members) {
			enc = setval.IntPacked
		}
		e.Kind = store.KindSet
		e.Value = setval.New(enc)
	} else if e.Kind != store.KindSet {
		// The type check happens only here: with overwrite we may
		// legitimately replace a value of a different kind above.
		return 0, store.ErrWrongType
	}

	v := e.Value.(*setval.Value)
	added := v.Add(members, args.IntLimit)
	db.PostUpdate(e)
	return added, nil
}

// OpRem removes members from the set at key. When the set becomes empty
// the key is deleted instead of keeping an empty value. Returns the
// number of members actually removed; a missing key is ErrKeyNotFound.
func OpRem(args OpArgs, key string, members []string) (int, error) {
	db := args.db()
	e, err := db.Lookup(key, store.KindSet)
	if err != nil {
		return 0, err
	}

	db.PreUpdate(e)
	removed, empty := e.Value.(*setval.Value).Remove(members)
	if empty {
		db.Delete(e)
	} else {
		db.PostUpdate(e)
	}
	return removed, nil
}

// OpPop removes and returns up to count members. A count covering the
// whole set removes every member and deletes the key; a zero count
// returns empty without touching the store, even for a missing key.
func OpPop(args OpArgs, key string, count int) ([]string, error) {
	if count == 0 {
		return []string{}, nil
	}

	db := args.db()
	e, err := db.Lookup(key, store.KindSet)
	if err != nil {
		return nil, err
	}

	v := e.Value.(*setval.Value)
	db.PreUpdate(e)
	popped := v.Pop(count)
	if v.Size() == 0 {
		db.Delete(e)
	} else {
		db.PostUpdate(e)
	}
	return popped, nil
}

// OpUnion accumulates the members of every listed key into one growing
// string set. Missing keys contribute nothing; a wrong-typed key aborts
// the whole operation.
func OpUnion(args OpArgs, keys []string) ([]string, error) {
	db := args.db()
	uniques := make(map[string]struct{})

	for _, key := range keys {
		e, err := db.Lookup(key, store.KindSet)
		if err != nil {
			if errors.Is(err, store.ErrKeyNotFound) {
				continue
			}
			return nil, err
		}
		e.Value.(*setval.Value).ForEach(func(m string) {
			uniques[m] = struct{}{}
		})
	}

	return setToSlice(uniques), nil
}

// OpDiff computes this shard's share of a difference: the base key's
// members (keys[0]) minus the members of every sibling key co-located on
// this shard. Keys on other shards are subtracted later by the reducer.
// A missing base key is ErrKeyNotFound, which the reducer degenerates to
// an empty result; a wrong-typed key anywhere is an error.
func OpDiff(args OpArgs, keys []string) ([]string, error) {
	db := args.db()
	base, err := db.Lookup(keys[0], store.KindSet)
	if err != nil {
		return nil, err
	}

	uniques := make(map[string]struct{})
	base.Value.(*setval.Value).ForEach(func(m string) {
		uniques[m] = struct{}{}
	})

	for _, key := range keys[1:] {
		e, err := db.Lookup(key, store.KindSet)
		if err != nil {
			if errors.Is(err, store.ErrKeyNotFound) {
				continue
			}
			return nil, err
		}
		e.Value.(*setval.Value).ForEach(func(m string) {
			delete(uniques, m)
		})
	}

	return setToSlice(uniques), nil
}

// OpInter materializes this shard's share of an intersection. With one
// local key that is simply its members; with several, the local keys are
// intersected here, smallest set first, so the cross-shard reducer only
// counts one contribution per shard. removeFirst drops keys[0], used by
// the store variant when the destination key leads this shard's list.
// A missing key is ErrKeyNotFound: the intersection cannot be non-empty.
func OpInter(args OpArgs, keys []string, removeFirst bool) ([]string, error) {
	if removeFirst {
		keys = keys[1:]
	}
	if len(keys) == 0 {
		return []string{}, nil
	}
	db := args.db()

	vals := make([]*setval.Value, len(keys))
	for i, key := range keys {
		e, err := db.Lookup(key, store.KindSet)
		if err != nil {
			return nil, err
		}
		vals[i] = e.Value.(*setval.Value)
	}

	if len(vals) == 1 {
		return vals[0].Members(), nil
	}

	// Iterate the smallest set and probe the rest; the same key listed
	// twice resolves to the same value and always matches itself.
	smallest := 0
	for i, v := range vals {
		if v.Size() < vals[smallest].Size() {
			smallest = i
		}
	}

	var result []string
	vals[smallest].ForEach(func(m string) {
		for i, v := range vals {
			if i == smallest || v == vals[smallest] {
				continue
			}
			if !v.Contains(m) {
				return
			}
		}
		result = append(result, m)
	})
	if result == nil {
		result = []string{}
	}
	return result, nil
}

// setToSlice drains a string set into a slice, order unspecified.
func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return out
}
