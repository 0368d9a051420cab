// Package store implements the per-shard key-value layer that the set
// operators run against.
//
// # Overview
//
// Each shard owns one or more logical databases (DB). A DB maps keys to
// typed entries; an entry carries a Kind tag and an opaque value payload
// owned by the type-specific package (sets store a *setval.Value).
//
// The package deliberately exposes a narrow surface:
//
//	Lookup(key, kind)  - typed find: ErrKeyNotFound / ErrWrongType
//	AddOrFind(key)     - locate-or-create, reports insertion
//	Delete(entry)      - remove a previously located entry
//	PreUpdate/PostUpdate - bracketing around in-place value mutation
//
// # Concurrency
//
// A DB is single-owner: the shard's run loop is the only goroutine that
// touches it. This is why, unlike a shared cache, there is no mutex here;
// serialization is provided by the shard's execution model, and the
// cross-shard transaction layer guarantees that multi-shard commands see
// each shard's databases only from inside that shard's loop.
//
// # Update brackets
//
// Any code path that mutates an existing entry's value in place must call
// PreUpdate before and PostUpdate after the mutation. The bracket bumps
// the entry version, which tests and the shard monitor use to observe
// write activity. Paths that delete the entry instead of mutating it
// (a set shrinking to zero members) skip PostUpdate and call Delete.
package store
