package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"checkin-sync-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// AttendanceBackend is the storage the cache decorates.
type AttendanceBackend interface {
	Upsert(ctx context.Context, rec domain.AssignmentRecord, status, notes string) (domain.AssignmentRecord, error)
	List(ctx context.Context, classID int64, date string) ([]domain.AssignmentRecord, error)
}

// AttendanceCache decorates an attendance backend with a Redis read cache
// under attendance:{classId}:{date}. Every successful upsert invalidates the
// key so hydrating viewers never read a stale day.
type AttendanceCache struct {
	client  *redis.Client
	backend AttendanceBackend
	ttl     time.Duration
}

func NewAttendanceCache(client *redis.Client, backend AttendanceBackend, ttl time.Duration) *AttendanceCache {
	return &AttendanceCache{client: client, backend: backend, ttl: ttl}
}

func (c *AttendanceCache) Upsert(ctx context.Context, rec domain.AssignmentRecord, status, notes string) (domain.AssignmentRecord, error) {
	stored, err := c.backend.Upsert(ctx, rec, status, notes)
	if err != nil {
		return domain.AssignmentRecord{}, err
	}
	_ = invalidatePrefix(ctx, c.client, attendanceKey(rec.ClassID, rec.Date))
	return stored, nil
}

func (c *AttendanceCache) List(ctx context.Context, classID int64, date string) ([]domain.AssignmentRecord, error) {
	key := attendanceKey(classID, date)
	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var records []domain.AssignmentRecord
		if err := json.Unmarshal(data, &records); err == nil {
			return records, nil
		}
	}

	records, err := c.backend.List(ctx, classID, date)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(records); err == nil {
		_ = c.client.Set(ctx, key, data, c.ttl).Err()
	}
	return records, nil
}

func attendanceKey(classID int64, date string) string {
	return fmt.Sprintf("attendance:%d:%s", classID, date)
}
