package store

import (
	"errors"
)

// ErrKeyNotFound is returned when a key doesn't exist in the database.
// For many multi-key set commands this is not a failure but a
// "contributes nothing" signal; callers decide.
var ErrKeyNotFound = errors.New("key not found")

// ErrWrongType is returned when a key exists but holds a value of a
// different kind than the operation expects.
var ErrWrongType = errors.New("wrong type")

// Kind identifies the logical type of a stored value.
type Kind uint8

const (
	// KindSet marks a value holding a *setval.Value.
	KindSet Kind = iota + 1
	// KindString marks a plain string value.
	KindString
)

// Entry is one key's slot in a database. The Value field is mutated in
// place by operators; every in-place mutation must be bracketed by
// PreUpdate and PostUpdate on the owning DB.
type Entry struct {
	Key     string
	Kind    Kind
	Value   any
	version uint64 // bumped on every completed update bracket
}

// Version returns the entry's update version. It starts at zero and is
// incremented by PostUpdate.
func (e *Entry) Version() uint64 { return e.version }

// DB is one logical database on one shard.
//
// A DB is NOT safe for concurrent use. Each shard owns its databases and
// serializes access through its single run loop, so no locking is needed
// here; callers outside the shard loop must go through the shard.
type DB struct {
	data    map[string]*Entry
	updates uint64 // completed PreUpdate/PostUpdate brackets
}

// NewDB creates an empty database.
func NewDB() *DB {
	return &DB{data: make(map[string]*Entry)}
}

// Lookup finds an existing entry of the expected kind.
// Returns ErrKeyNotFound if the key is absent and ErrWrongType if it
// exists with a different kind.
func (db *DB) Lookup(key string, kind Kind) (*Entry, error) {
	e, ok := db.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	if e.Kind != kind {
		return nil, ErrWrongType
	}
	return e, nil
}

// Find returns the entry for key regardless of kind, or nil.
func (db *DB) Find(key string) *Entry {
	return db.data[key]
}

// AddOrFind returns the entry for key, creating an empty one when absent.
// The second return value reports whether the entry was inserted.
// A freshly inserted entry has no kind yet; the caller initializes it.
func (db *DB) AddOrFind(key string) (*Entry, bool) {
	if e, ok := db.data[key]; ok {
		return e, false
	}
	e := &Entry{Key: key}
	db.data[key] = e
	return e, true
}

// Delete removes the entry from the database. Returns false when the
// entry is nil or no longer present under its key.
func (db *DB) Delete(e *Entry) bool {
	if e == nil {
		return false
	}
	cur, ok := db.data[e.Key]
	if !ok || cur != e {
		return false
	}
	delete(db.data, e.Key)
	return true
}

// PreUpdate opens an update bracket around an in-place mutation of the
// entry's value. Every mutation path must pair it with PostUpdate.
func (db *DB) PreUpdate(e *Entry) {
	_ = e // hook point for future memory accounting
}

// PostUpdate closes an update bracket, bumping the entry's version.
func (db *DB) PostUpdate(e *Entry) {
	e.version++
	db.updates++
}

// Len returns the number of keys in the database.
func (db *DB) Len() int { return len(db.data) }

// Updates returns the number of completed update brackets, used by the
// shard monitor and by tests asserting that hooks ran.
func (db *DB) Updates() uint64 { return db.updates }

// Keys returns all keys in the database in no particular order.
func (db *DB) Keys() []string {
	keys := make([]string, 0, len(db.data))
	for k := range db.data {
		keys = append(keys, k)
	}
	return keys
}
