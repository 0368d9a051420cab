package sets

import (
	"errors"

	"github.com/dreamware/setstore/internal/store"
)

// Partial is one shard's contribution to a multi-shard command. The zero
// value means the shard was skipped: it was scheduled but held no
// relevant keys and its callback never filled the slot.
//
// Slots live in a slice with one entry per shard index. During a hop
// each slot is written by at most its owning shard; reducers read them
// only after the hop barrier, so no slot is ever accessed concurrently.
type Partial struct {
	members []string
	err     error
	filled  bool
}

// OkPartial marks a shard contribution carrying members.
func OkPartial(members []string) Partial {
	return Partial{members: members, filled: true}
}

// ErrPartial marks a failed shard contribution.
func ErrPartial(err error) Partial {
	return Partial{err: err, filled: true}
}

// PartialFrom wraps an operator's return pair into a slot value.
func PartialFrom(members []string, err error) Partial {
	if err != nil {
		return ErrPartial(err)
	}
	return OkPartial(members)
}

// OK reports a successful, filled contribution.
func (p Partial) OK() bool { return p.filled && p.err == nil }

// Skipped reports that the owning shard never filled the slot.
func (p Partial) Skipped() bool { return !p.filled }

// Err returns the contribution's error, nil for Ok and Skipped slots.
func (p Partial) Err() error { return p.err }

// Members returns the contributed members; empty for non-Ok slots.
func (p Partial) Members() []string { return p.members }

// NewPartials allocates one slot per shard, all Skipped.
func NewPartials(numShards int) []Partial {
	return make([]Partial, numShards)
}

// ReduceUnion merges per-shard union contributions into one deduplicated
// member set. Ok and Skipped slots contribute (a skipped slot simply has
// nothing to merge); a missing key was already absorbed shard-side, so
// ErrKeyNotFound is tolerated here too; any other error short-circuits.
func ReduceUnion(slots []Partial) ([]string, error) {
	uniques := make(map[string]struct{})

	for _, p := range slots {
		if p.OK() || p.Skipped() {
			for _, m := range p.members {
				uniques[m] = struct{}{}
			}
			continue
		}
		if !errors.Is(p.err, store.ErrKeyNotFound) {
			return nil, p.err
		}
	}

	return setToSlice(uniques), nil
}

// ReduceDiff subtracts every non-source contribution from the source
// shard's member set. srcShard is where the difference's base key lives,
// computed before scheduling. A wrong type anywhere fails the whole
// command first; a missing base key leaves an empty seed, degrading the
// result to empty rather than an error.
func ReduceDiff(slots []Partial, srcShard int) ([]string, error) {
	for _, p := range slots {
		if errors.Is(p.err, store.ErrWrongType) {
			return nil, p.err
		}
	}

	uniques := make(map[string]struct{})
	for _, m := range slots[srcShard].Members() {
		uniques[m] = struct{}{}
	}

	for i, p := range slots {
		if i == srcShard || !p.OK() {
			continue
		}
		for _, m := range p.members {
			delete(uniques, m)
		}
	}

	return setToSlice(uniques), nil
}

// ReduceInter intersects per-shard contributions. requiredShards is how
// many shards actually materialized a local intersection; a member
// belongs to the result iff it was seen by exactly that many slots.
//
// A missing key anywhere forces an empty result (the whole-key absence
// means nothing can survive the intersection), but a wrong type found in
// any slot still wins: both conditions are checked across all slots
// before any counting, with equal priority given to the error.
func ReduceInter(slots []Partial, requiredShards int) ([]string, error) {
	sawMissing := false
	for _, p := range slots {
		if p.Skipped() || p.err == nil {
			continue
		}
		if errors.Is(p.err, store.ErrKeyNotFound) {
			sawMissing = true
			continue
		}
		return nil, p.err
	}
	if sawMissing {
		return []string{}, nil
	}

	// Counters are seeded only from the first contributing slot: a
	// member absent there can never reach the required count, so
	// inserting it later would be wasted work. This bounds the table by
	// the first-seen shard's size, not necessarily the smallest one.
	counts := make(map[string]int)
	first := true
	for _, p := range slots {
		if p.Skipped() {
			continue
		}
		if first {
			for _, m := range p.members {
				counts[m] = 1
			}
			first = false
			continue
		}
		for _, m := range p.members {
			if _, ok := counts[m]; ok {
				counts[m]++
			}
		}
	}

	result := make([]string, 0, len(counts))
	for m, c := range counts {
		if c == requiredShards {
			result = append(result, m)
		}
	}
	return result, nil
}
