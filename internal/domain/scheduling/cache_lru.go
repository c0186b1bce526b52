package scheduling

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hospital/hms/internal/availability"
)

type lruEntry struct {
	snap    availability.Snapshot
	expires time.Time
}

// LRUSnapshotCache is a process-local SnapshotCache for single-instance
// deployments. It versions entries per doctor the same way
// RedisSnapshotCache does; orphaned entries age out through LRU eviction.
type LRUSnapshotCache struct {
	mu       sync.Mutex
	entries  *lru.Cache[string, lruEntry]
	versions map[uuid.UUID]int64
	ttl      time.Duration
	now      func() time.Time
}

func NewLRUSnapshotCache(size int, ttl time.Duration) (*LRUSnapshotCache, error) {
	entries, err := lru.New[string, lruEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LRUSnapshotCache{
		entries:  entries,
		versions: make(map[uuid.UUID]int64),
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

func (c *LRUSnapshotCache) Get(_ context.Context, doctorID uuid.UUID, from, to availability.Date) (availability.Snapshot, int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ver := c.versions[doctorID]
	k := snapshotKey(doctorID, ver, from, to)
	e, ok := c.entries.Get(k)
	if !ok {
		return availability.Snapshot{}, ver, false, nil
	}
	if !c.now().Before(e.expires) {
		c.entries.Remove(k)
		return availability.Snapshot{}, ver, false, nil
	}
	return e.snap, ver, true, nil
}

// Set drops snap when version is no longer current.
func (c *LRUSnapshotCache) Set(_ context.Context, doctorID uuid.UUID, from, to availability.Date, version int64, snap availability.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if version != c.versions[doctorID] {
		return nil
	}
	// Callers own their slices; keep a private copy.
	snap.Schedule = availability.NewWeeklySchedule(snap.Schedule)
	snap.Blocks = slices.Clone(snap.Blocks)
	snap.Vacations = slices.Clone(snap.Vacations)
	snap.Appointments = slices.Clone(snap.Appointments)
	c.entries.Add(snapshotKey(doctorID, version, from, to), lruEntry{snap: snap, expires: c.now().Add(c.ttl)})
	return nil
}

func (c *LRUSnapshotCache) Invalidate(_ context.Context, doctorID uuid.UUID) error {
	c.mu.Lock()
	c.versions[doctorID]++
	c.mu.Unlock()
	return nil
}

// Len reports how many entries are held, stale ones included.
func (c *LRUSnapshotCache) Len() int {
	return c.entries.Len()
}
