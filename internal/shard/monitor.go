package shard

import (
	"context"
	"log"
	"sync"
	"time"
)

// ShardHealth tracks the observed load of a single shard over time.
// Thread-safe: protected by the Monitor's mutex when accessed.
type ShardHealth struct {
	ShardID          int       // Shard being observed
	Status           string    // "ok", "overloaded", "unknown"
	LastSample       time.Time // When the shard was last sampled
	LastIdle         time.Time // Last sample with an empty backlog
	ConsecutiveBusy  int       // Samples in a row with backlog above threshold
	ObservedTasks    uint64    // Task counter at the last sample
	ObservedUpdates  uint64    // Update-bracket counter at the last sample
	ObservedKeyCount int       // Key count at the last sample
}

// Monitor periodically samples every shard in a group and flags shards
// whose task backlog stays above a threshold, which usually means one
// partition is receiving a disproportionate share of hot keys.
// Thread-safe: all methods are safe for concurrent access.
type Monitor struct {
	group      *Group
	health     map[int]*ShardHealth
	sampleFunc func(s *Shard) Info // Overridable for tests
	onOverload func(shardID int)   // Callback on ok -> overloaded transition
	ctx        context.Context
	cancel     context.CancelFunc
	interval   time.Duration // How often to sample
	threshold  int           // Backlog depth considered busy
	maxBusy    int           // Busy samples before flagging
	mu         sync.RWMutex
	wg         sync.WaitGroup
}

// NewMonitor creates a monitor for the group sampling at the given
// interval. A shard is flagged after 3 consecutive samples with more
// than 32 queued tasks.
func NewMonitor(group *Group, interval time.Duration) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &Monitor{
		group:     group,
		health:    make(map[int]*ShardHealth),
		interval:  interval,
		threshold: 32,
		maxBusy:   3,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetOnOverload sets the callback invoked when a shard transitions to
// overloaded. Called on its own goroutine, without the monitor lock.
func (m *Monitor) SetOnOverload(callback func(shardID int)) {
	m.onOverload = callback
}

// SetSampleFunction overrides how a shard snapshot is taken. Used by
// tests to inject synthetic backlogs.
func (m *Monitor) SetSampleFunction(fn func(s *Shard) Info) {
	m.sampleFunc = fn
}

// Start begins sampling in the current goroutine and blocks until the
// context (or the monitor) is canceled. Run it with go.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	defer m.wg.Done()

	if ctx == nil {
		ctx = m.ctx
	}
	if m.sampleFunc == nil {
		m.sampleFunc = func(s *Shard) Info { return s.GetInfo() }
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	log.Printf("shard monitor started with interval %v", m.interval)

	m.sampleAll()

	for {
		select {
		case <-ticker.C:
			m.sampleAll()
		case <-ctx.Done():
			return
		case <-m.ctx.Done():
			return
		}
	}
}

// Stop cancels the sampling loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

// sampleAll takes one snapshot of every shard in the group.
func (m *Monitor) sampleAll() {
	for i := 0; i < m.group.Size(); i++ {
		m.sampleShard(m.group.Shard(i))
	}
}

// sampleShard records one observation for a shard and updates its
// overload state, firing the callback on the ok -> overloaded edge.
func (m *Monitor) sampleShard(s *Shard) {
	info := m.sampleFunc(s)
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.health[s.ID]
	if !ok {
		h = &ShardHealth{ShardID: s.ID, Status: "unknown", LastIdle: now}
		m.health[s.ID] = h
	}

	h.LastSample = now
	h.ObservedTasks = info.Tasks
	h.ObservedUpdates = info.Updates
	h.ObservedKeyCount = info.Keys

	if info.Backlog > m.threshold {
		h.ConsecutiveBusy++
		if h.ConsecutiveBusy >= m.maxBusy && h.Status != "overloaded" {
			h.Status = "overloaded"
			log.Printf("shard %d flagged as overloaded (backlog %d for %d samples)",
				s.ID, info.Backlog, h.ConsecutiveBusy)
			if m.onOverload != nil {
				go m.onOverload(s.ID)
			}
		}
		return
	}

	if h.Status == "overloaded" {
		log.Printf("shard %d backlog drained, back to ok", s.ID)
	}
	h.Status = "ok"
	h.ConsecutiveBusy = 0
	h.LastIdle = now
}

// GetShardHealth returns a copy of the health record for one shard, or
// nil when the shard has not been sampled yet.
func (m *Monitor) GetShardHealth(shardID int) *ShardHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.health[shardID]
	if !ok {
		return nil
	}
	cp := *h
	return &cp
}

// IsOverloaded reports whether a shard is currently flagged.
func (m *Monitor) IsOverloaded(shardID int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.health[shardID]
	return ok && h.Status == "overloaded"
}
