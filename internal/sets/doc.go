// Package sets implements the server-side core of the set collection
// type: shard-local operators, cross-shard result reduction, and the
// two-phase coordination that lets multi-shard set commands execute as
// one atomic unit.
//
// # Layers
//
// Shard-local operators (OpAdd, OpRem, OpPop, OpUnion, OpDiff, OpInter)
// are pure single-shard functions. They run on the owning shard's loop
// against keys already confirmed to live there, bracket every in-place
// mutation with the store's update hooks, and delete a key the moment
// its set becomes empty.
//
// Cross-shard reducers (ReduceUnion, ReduceDiff, ReduceInter) are
// stateless functions over a slice of per-shard Partial slots, one slot
// per shard index. Each slot is written by at most its owning shard
// during a hop and read only after the hop barrier. Their missing-key
// semantics differ deliberately: a union absorbs absence, a difference
// degrades an absent base to an empty result, an intersection collapses
// to empty on any absence — while a wrong-typed key fails all three.
//
// Family ties the layers together into commands. Single-key commands are
// one concluding hop; Union/Diff/Inter gather per-shard contributions in
// that same hop and reduce afterwards; Move and the three store variants
// are two-phase: a non-concluding discovery hop, a decision, then a
// concluding hop that mutates or — on error and no-op outcomes — does
// nothing except conclude the transaction. That unconditional conclusion
// is a liveness requirement of the scheduler, not a courtesy.
package sets
