package txn

import (
	"sort"
	"sync"

	"github.com/dreamware/setstore/internal/shard"
)

// Callback is one shard's share of a hop. It runs on the shard's loop;
// a non-nil error is surfaced by Execute after the hop barrier.
type Callback func(t *Transaction, s *shard.Shard) error

// NoOpCb is the callback for hops that exist only to conclude a
// transaction: error paths and decisions that turned out to be no-ops.
func NoOpCb(t *Transaction, s *shard.Shard) error { return nil }

// Scheduler creates transactions over one shard group and owns the
// per-key lock table those transactions serialize on.
type Scheduler struct {
	group *shard.Group
	locks lockTable
}

// NewScheduler creates a scheduler for the group.
func NewScheduler(group *shard.Group) *Scheduler {
	return &Scheduler{
		group: group,
		locks: lockTable{locks: make(map[lockKey]*keyLock)},
	}
}

// Group returns the shard group the scheduler runs over.
func (sch *Scheduler) Group() *shard.Group { return sch.group }

// NewTransaction creates an unscheduled transaction over the given keys
// in database db. Key order (and duplicates) are preserved per shard, as
// commands assign meaning to argument positions.
func (sch *Scheduler) NewTransaction(db int, keys ...string) *Transaction {
	return &Transaction{sch: sch, db: db, keys: keys}
}

type txnState uint8

const (
	stateCreated txnState = iota
	stateScheduled
	stateConcluded
)

// Transaction coordinates one command across every shard holding any of
// its keys.
//
// Lifecycle: Schedule fixes shard affinity and takes the key locks; one
// or more non-concluding Execute hops inspect state; exactly one
// concluding Execute hop releases the locks, whatever the outcome. A
// scheduled transaction that is never concluded blocks all future work
// on its keys, so every code path after Schedule must reach a concluding
// hop — including error paths, which conclude with NoOpCb.
type Transaction struct {
	sch       *Scheduler
	db        int
	keys      []string   // all keys, command order, duplicates kept
	lockOrder []string   // unique keys, sorted; the lock acquisition order
	shardKeys [][]string // per shard index; nil when shard not touched
	shardIDs  []int      // touched shards, ascending
	state     txnState
}

// DB returns the transaction's database index.
func (t *Transaction) DB() int { return t.db }

// Schedule computes which shard owns each key, registers the key set and
// acquires the per-key locks. Locks are taken in one global sorted order
// so concurrent transactions cannot deadlock. Blocks until every lock is
// held.
func (t *Transaction) Schedule() {
	if t.state != stateCreated {
		panic("txn: Schedule on a scheduled transaction")
	}

	n := t.sch.group.Size()
	t.shardKeys = make([][]string, n)
	for _, key := range t.keys {
		sid := shard.ForKey(key, n)
		t.shardKeys[sid] = append(t.shardKeys[sid], key)
	}
	for sid, keys := range t.shardKeys {
		if keys != nil {
			t.shardIDs = append(t.shardIDs, sid)
		}
	}

	t.lockOrder = uniqueSorted(t.keys)
	for _, key := range t.lockOrder {
		t.sch.locks.acquire(lockKey{db: t.db, key: key})
	}
	t.state = stateScheduled
}

// Execute runs one hop: cb is submitted to every scheduled shard and
// Execute returns only after all of them finished (the hop barrier).
// When concluding is true the transaction's locks are released and no
// further hops are allowed. Returns the first callback error by shard
// order.
func (t *Transaction) Execute(cb Callback, concluding bool) error {
	if t.state != stateScheduled {
		panic("txn: Execute on an unscheduled or concluded transaction")
	}

	errs := make([]error, len(t.shardIDs))
	var wg sync.WaitGroup
	for i, sid := range t.shardIDs {
		i, sh := i, t.sch.group.Shard(sid)
		wg.Add(1)
		sh.Submit(func() {
			defer wg.Done()
			errs[i] = cb(t, sh)
		})
	}
	wg.Wait()

	if concluding {
		for _, key := range t.lockOrder {
			t.sch.locks.release(lockKey{db: t.db, key: key})
		}
		t.state = stateConcluded
	}

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// ScheduleSingleHop runs the whole transaction as one concluding hop.
func (t *Transaction) ScheduleSingleHop(cb Callback) error {
	t.Schedule()
	return t.Execute(cb, true)
}

// ShardKeys returns the transaction's keys living on the given shard, in
// command order. Nil for shards the transaction does not touch.
func (t *Transaction) ShardKeys(shardID int) []string {
	return t.shardKeys[shardID]
}

// Shards returns the touched shard indices in ascending order.
func (t *Transaction) Shards() []int { return t.shardIDs }

// UniqueShardCount returns how many shards hold at least one key.
func (t *Transaction) UniqueShardCount() int { return len(t.shardIDs) }

// Concluded reports whether the concluding hop has run.
func (t *Transaction) Concluded() bool { return t.state == stateConcluded }

// uniqueSorted returns the distinct keys in lexicographic order.
func uniqueSorted(keys []string) []string {
	out := make([]string, len(keys))
	copy(out, keys)
	sort.Strings(out)
	w := 0
	for i, k := range out {
		if i == 0 || k != out[w-1] {
			out[w] = k
			w++
		}
	}
	return out[:w]
}

// lockKey identifies one lockable key within one database.
type lockKey struct {
	db  int
	key string
}

// keyLock is a FIFO mutex: the token channel holds one token, waiters
// queue on the receive.
type keyLock struct {
	refs  int
	token chan struct{}
}

// lockTable maps keys to their locks, creating and reaping them as
// transactions come and go.
type lockTable struct {
	mu    sync.Mutex
	locks map[lockKey]*keyLock
}

func (lt *lockTable) acquire(k lockKey) {
	lt.mu.Lock()
	kl, ok := lt.locks[k]
	if !ok {
		kl = &keyLock{token: make(chan struct{}, 1)}
		kl.token <- struct{}{}
		lt.locks[k] = kl
	}
	kl.refs++
	lt.mu.Unlock()

	<-kl.token
}

func (lt *lockTable) release(k lockKey) {
	lt.mu.Lock()
	kl, ok := lt.locks[k]
	if !ok {
		lt.mu.Unlock()
		panic("txn: release of unheld lock")
	}
	kl.refs--
	if kl.refs == 0 {
		delete(lt.locks, k)
	}
	lt.mu.Unlock()

	kl.token <- struct{}{}
}
