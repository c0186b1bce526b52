package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hospital/hms/internal/availability"
)

// SnapshotCache holds recently loaded snapshots for read-only queries.
// Bookings always read the store directly.
//
// Get also returns the doctor's version it looked under. A caller that
// misses loads from the store and passes that version back to Set, so a
// write that invalidated in between leaves the loaded snapshot unreachable.
type SnapshotCache interface {
	Get(ctx context.Context, doctorID uuid.UUID, from, to availability.Date) (availability.Snapshot, int64, bool, error)
	Set(ctx context.Context, doctorID uuid.UUID, from, to availability.Date, version int64, snap availability.Snapshot) error
	Invalidate(ctx context.Context, doctorID uuid.UUID) error
}

// cachedSnapshot is the stored form; location and window come from the
// service on the way out.
type cachedSnapshot struct {
	Schedule     availability.WeeklySchedule    `json:"schedule"`
	Blocks       []availability.BlockedInterval `json:"blocks"`
	Vacations    []availability.Vacation        `json:"vacations"`
	Appointments []availability.Appointment     `json:"appointments"`
}

// RedisSnapshotCache keys snapshots by a per-doctor version number.
// Invalidate bumps the version, orphaning every older entry until its TTL
// runs out.
type RedisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSnapshotCache(client *redis.Client, ttl time.Duration) *RedisSnapshotCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisSnapshotCache{client: client, ttl: ttl}
}

func versionKey(doctorID uuid.UUID) string {
	return "hms:doctor:" + doctorID.String() + ":ver"
}

func snapshotKey(doctorID uuid.UUID, version int64, from, to availability.Date) string {
	return fmt.Sprintf("hms:snap:%s:%d:%s:%s", doctorID, version, from, to)
}

func (c *RedisSnapshotCache) version(ctx context.Context, doctorID uuid.UUID) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(doctorID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (c *RedisSnapshotCache) Get(ctx context.Context, doctorID uuid.UUID, from, to availability.Date) (availability.Snapshot, int64, bool, error) {
	ver, err := c.version(ctx, doctorID)
	if err != nil {
		return availability.Snapshot{}, 0, false, fmt.Errorf("read cache version: %w", err)
	}
	raw, err := c.client.Get(ctx, snapshotKey(doctorID, ver, from, to)).Bytes()
	if errors.Is(err, redis.Nil) {
		return availability.Snapshot{}, ver, false, nil
	}
	if err != nil {
		return availability.Snapshot{}, ver, false, fmt.Errorf("read cached snapshot: %w", err)
	}
	var cs cachedSnapshot
	if err := json.Unmarshal(raw, &cs); err != nil {
		return availability.Snapshot{}, ver, false, fmt.Errorf("decode cached snapshot: %w", err)
	}
	return availability.Snapshot{
		DoctorID:     doctorID,
		Schedule:     availability.NewWeeklySchedule(cs.Schedule),
		Blocks:       cs.Blocks,
		Vacations:    cs.Vacations,
		Appointments: cs.Appointments,
	}, ver, true, nil
}

// Set stores snap under version. An outdated version writes a key no Get
// will build again; it expires with the TTL.
func (c *RedisSnapshotCache) Set(ctx context.Context, doctorID uuid.UUID, from, to availability.Date, version int64, snap availability.Snapshot) error {
	raw, err := json.Marshal(cachedSnapshot{
		Schedule:     snap.Schedule,
		Blocks:       snap.Blocks,
		Vacations:    snap.Vacations,
		Appointments: snap.Appointments,
	})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return c.client.Set(ctx, snapshotKey(doctorID, version, from, to), raw, c.ttl).Err()
}

func (c *RedisSnapshotCache) Invalidate(ctx context.Context, doctorID uuid.UUID) error {
	return c.client.Incr(ctx, versionKey(doctorID)).Err()
}

// Ping reports whether Redis is reachable.
func (c *RedisSnapshotCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
