package tracker

import (
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/tierstore/tierstore/interfaces"
)

// RecentOpsCap bounds the per-locator ring of recent operation kinds. When the
// ring is full the oldest entry is dropped.
const RecentOpsCap = 10

const shardCount = 32

// Pattern is a point-in-time copy of one locator's access bookkeeping.
type Pattern struct {
	Count      uint64             `json:"count"`
	LastAccess time.Time          `json:"last_access"`
	RecentOps  []interfaces.OpKind `json:"recent_ops"`
}

type entry struct {
	count      uint64
	lastAccess time.Time
	recentOps  [RecentOpsCap]interfaces.OpKind
	opHead     int // index of the next slot to write
	opLen      int
}

func (e *entry) push(op interfaces.OpKind) {
	e.recentOps[e.opHead] = op
	e.opHead = (e.opHead + 1) % RecentOpsCap
	if e.opLen < RecentOpsCap {
		e.opLen++
	}
}

// ops returns the ring contents oldest first.
func (e *entry) ops() []interfaces.OpKind {
	out := make([]interfaces.OpKind, 0, e.opLen)
	start := e.opHead - e.opLen
	if start < 0 {
		start += RecentOpsCap
	}
	for i := 0; i < e.opLen; i++ {
		out = append(out, e.recentOps[(start+i)%RecentOpsCap])
	}
	return out
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Tracker is a concurrency-safe table of per-locator access patterns. The
// table is sharded so operations on different locators never block each
// other. Construct one per process and inject it; there is no package-level
// singleton.
type Tracker struct {
	shards  [shardCount]shard
	tracked atomic.Uint64
	swept   atomic.Uint64
}

// New creates an empty tracker.
func New() *Tracker {
	t := &Tracker{}
	for i := range t.shards {
		t.shards[i].entries = make(map[string]*entry)
	}
	return t
}

func (t *Tracker) shardFor(locator string) *shard {
	h := fnv.New32a()
	h.Write([]byte(locator))
	return &t.shards[h.Sum32()%shardCount]
}

// Track records one operation against the locator: the count is incremented,
// the last-access time stamped, and op pushed onto the recent-ops ring.
func (t *Tracker) Track(locator string, op interfaces.OpKind) {
	s := t.shardFor(locator)
	s.mu.Lock()
	e, ok := s.entries[locator]
	if !ok {
		e = &entry{}
		s.entries[locator] = e
	}
	e.count++
	e.lastAccess = time.Now()
	e.push(op)
	s.mu.Unlock()

	t.tracked.Inc()
}

// Count returns the access count for the locator, 0 if it is not tracked.
func (t *Tracker) Count(locator string) uint64 {
	s := t.shardFor(locator)
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[locator]; ok {
		return e.count
	}
	return 0
}

// Pattern returns a copy of the locator's access pattern and whether it is
// tracked.
func (t *Tracker) Pattern(locator string) (Pattern, bool) {
	s := t.shardFor(locator)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[locator]
	if !ok {
		return Pattern{}, false
	}
	return Pattern{Count: e.count, LastAccess: e.lastAccess, RecentOps: e.ops()}, true
}

// Forget drops the locator's entry. Used when the locator is deleted.
func (t *Tracker) Forget(locator string) {
	s := t.shardFor(locator)
	s.mu.Lock()
	delete(s.entries, locator)
	s.mu.Unlock()
}

// SweepExpired removes entries whose last access is older than idle and
// returns how many were removed. Intended to run periodically, not on the
// read/write path.
func (t *Tracker) SweepExpired(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)
	removed := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for locator, e := range s.entries {
			if e.lastAccess.Before(cutoff) {
				delete(s.entries, locator)
				removed++
			}
		}
		s.mu.Unlock()
	}
	t.swept.Add(uint64(removed))
	return removed
}

// Snapshot copies the full table, for stats reporting.
func (t *Tracker) Snapshot() map[string]Pattern {
	out := make(map[string]Pattern)
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for locator, e := range s.entries {
			out[locator] = Pattern{Count: e.count, LastAccess: e.lastAccess, RecentOps: e.ops()}
		}
		s.mu.Unlock()
	}
	return out
}

// Len returns the number of tracked locators.
func (t *Tracker) Len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// TotalTracked returns the number of Track calls over the tracker's lifetime.
func (t *Tracker) TotalTracked() uint64 {
	return t.tracked.Load()
}

// TotalSwept returns the number of entries removed by expiry sweeps.
func (t *Tracker) TotalSwept() uint64 {
	return t.swept.Load()
}
