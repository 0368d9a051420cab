// Package txn implements the cross-shard transaction scheduler: the
// machinery that lets a command spanning several shards execute as one
// atomic, linearizable unit.
//
// # Model
//
// A transaction is created over a fixed key set. Schedule maps every key
// to its shard and acquires a per-key FIFO lock for each distinct key;
// acquisition follows one global sorted order, so two transactions
// contending for overlapping key sets can never deadlock.
//
// Work then proceeds in hops. A hop submits one callback to every
// scheduled shard's run loop and waits for all of them at a barrier, so
// by the time Execute returns, every per-shard result slot written by a
// callback is safe to read from the coordinating goroutine. Hops are
// either non-concluding (inspection passes) or concluding (the final
// pass, which releases the locks).
//
// # The conclusion invariant
//
// Every scheduled transaction must be concluded by exactly one
// concluding hop, regardless of outcome. An error discovered between
// hops still requires a concluding hop — NoOpCb exists for exactly this
// — because an unconcluded transaction holds its key locks forever and
// starves every later command on those keys. The state machine enforces
// "at most once" by panicking on a second conclusion; "at least once" is
// the callers' obligation and what the two-phase command paths are
// structured around.
//
// # What the scheduler does not do
//
// No timeouts, no retries, no cancellation: the shard callbacks are
// synchronous, non-blocking and run to completion. A shard scheduled
// against a transaction whose keys all turn out to be elsewhere simply
// never sees a callback.
package txn
