// Package shard implements the execution substrate of the store: a fixed
// group of independent partitions, each with its own single-threaded run
// loop and its own logical databases.
//
// # Overview
//
// A shard is the unit of parallelism. Keys map to shards with FNV-1a
// (ForKey), and everything that touches a shard's data runs as a task on
// that shard's loop:
//
//	┌──────────────────────────────────┐
//	│              Shard               │
//	├──────────────────────────────────┤
//	│  tasks chan ──► run loop (1 gor.)│
//	│  dbs: []*store.DB                │
//	│  stats: atomic counters          │
//	└──────────────────────────────────┘
//
// Because exactly one goroutine consumes the task queue, operations on a
// given key are serialized without per-key locks; cross-shard atomicity
// is layered on top by the txn package.
//
// # Group
//
// A Group owns all shards of one keyspace. Its size is fixed for the
// process lifetime; the key-to-shard mapping depends on it.
//
// # Monitor
//
// Monitor periodically samples each shard's backlog and counters and
// flags shards that stay busy across consecutive samples, the usual
// symptom of a hot key concentrating load on one partition.
package shard
