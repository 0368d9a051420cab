package shard

import (
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/dreamware/setstore/internal/store"
)

// Shard is one independent partition of the keyspace. Each shard owns
// its logical databases and a single run loop goroutine; every access to
// the shard's databases happens from inside that loop, which is what
// serializes per-key operations without locks in the storage layer.
type Shard struct {
	ID    int         // Unique shard identifier
	dbs   []*store.DB // Logical databases owned by this shard
	tasks chan func() // Work queue consumed by the run loop
	done  chan struct{}
	stats Stats
}

// Stats tracks operational counters for a shard.
type Stats struct {
	Tasks uint64 // Tasks executed by the run loop
}

// Info contains a point-in-time snapshot of a shard's state, used by the
// monitor and the info endpoints.
type Info struct {
	ID      int    // Shard identifier
	Keys    int    // Keys across all databases
	Updates uint64 // Completed update brackets across all databases
	Tasks   uint64 // Tasks executed so far
	Backlog int    // Tasks currently queued
}

// New creates a shard with numDBs empty databases and starts its run
// loop. Call Stop to drain and terminate the loop.
func New(id, numDBs int) *Shard {
	if numDBs <= 0 {
		numDBs = 1
	}
	s := &Shard{
		ID:    id,
		dbs:   make([]*store.DB, numDBs),
		tasks: make(chan func(), 1024),
		done:  make(chan struct{}),
	}
	for i := range s.dbs {
		s.dbs[i] = store.NewDB()
	}
	go s.run()
	return s
}

// run consumes the task queue until Stop closes it.
func (s *Shard) run() {
	for fn := range s.tasks {
		fn()
		atomic.AddUint64(&s.stats.Tasks, 1)
	}
	close(s.done)
}

// Submit enqueues fn for execution on the shard's run loop. Tasks run in
// submission order, one at a time.
func (s *Shard) Submit(fn func()) {
	s.tasks <- fn
}

// Exec runs fn on the shard's run loop and waits for it to finish.
func (s *Shard) Exec(fn func()) {
	var wg sync.WaitGroup
	wg.Add(1)
	s.Submit(func() {
		defer wg.Done()
		fn()
	})
	wg.Wait()
}

// Stop drains pending tasks and terminates the run loop. No Submit may
// race with or follow Stop.
func (s *Shard) Stop() {
	close(s.tasks)
	<-s.done
}

// DB returns the shard's logical database at index i. The caller must be
// running on the shard's loop (or own the shard exclusively, as tests do
// before the loop has work).
func (s *Shard) DB(i int) *store.DB {
	return s.dbs[i]
}

// NumDBs returns how many logical databases the shard holds.
func (s *Shard) NumDBs() int { return len(s.dbs) }

// GetInfo returns a snapshot of the shard's counters. Key and update
// counts are read without entering the loop and are therefore only
// advisory, which is all the monitor needs.
func (s *Shard) GetInfo() Info {
	info := Info{
		ID:      s.ID,
		Tasks:   atomic.LoadUint64(&s.stats.Tasks),
		Backlog: len(s.tasks),
	}
	for _, db := range s.dbs {
		info.Keys += db.Len()
		info.Updates += db.Updates()
	}
	return info
}

// ForKey maps a key to its owning shard index using FNV-1a, the same
// deterministic placement every layer of the system relies on. Commands
// with a distinguished key (a store destination, a difference source)
// compute this before scheduling.
func ForKey(key string, numShards int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32()) % numShards
}

// Group owns a fixed-size collection of shards forming one keyspace.
type Group struct {
	shards []*Shard
}

// NewGroup creates and starts numShards shards, each with numDBs
// databases.
func NewGroup(numShards, numDBs int) *Group {
	if numShards <= 0 {
		numShards = 1
	}
	g := &Group{shards: make([]*Shard, numShards)}
	for i := range g.shards {
		g.shards[i] = New(i, numDBs)
	}
	return g
}

// Size returns the number of shards in the group.
func (g *Group) Size() int { return len(g.shards) }

// Shard returns the shard at index i.
func (g *Group) Shard(i int) *Shard { return g.shards[i] }

// ForKey maps a key to its owning shard within this group.
func (g *Group) ForKey(key string) int {
	return ForKey(key, len(g.shards))
}

// Stop terminates every shard's run loop, draining pending work first.
func (g *Group) Stop() {
	for _, s := range g.shards {
		s.Stop()
	}
}
