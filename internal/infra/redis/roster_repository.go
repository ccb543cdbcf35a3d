package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"checkin-sync-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// RosterLoader fetches class rosters from a backing store.
type RosterLoader interface {
	LoadStudents(ctx context.Context, classID int64) ([]domain.Student, error)
}

// RosterRepository caches rosters in Redis as JSON blobs under
// students:{classId} and falls back to a loader on cache miss.
type RosterRepository struct {
	client *redis.Client
	loader RosterLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewRosterRepository(client *redis.Client, loader RosterLoader, ttl time.Duration) *RosterRepository {
	return &RosterRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *RosterRepository) ListStudents(ctx context.Context, classID int64) ([]domain.Student, error) {
	key := rosterKey(classID)
	if students, ok := r.cached(ctx, key); ok {
		return students, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check in case another goroutine filled the key.
		if students, ok := r.cached(ctx, key); ok {
			return students, nil
		}
		students, err := r.loader.LoadStudents(ctx, classID)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(students); err == nil {
			_ = r.client.Set(ctx, key, data, ttlWithJitter(r.rnd, r.ttl)).Err()
		}
		return students, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Student), nil
}

// Invalidate drops cached rosters by key prefix.
func (r *RosterRepository) Invalidate(ctx context.Context, prefix string) error {
	return invalidatePrefix(ctx, r.client, prefix)
}

func (r *RosterRepository) cached(ctx context.Context, key string) ([]domain.Student, bool) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var students []domain.Student
	if err := json.Unmarshal(data, &students); err != nil {
		return nil, false
	}
	return students, true
}

func rosterKey(classID int64) string {
	return fmt.Sprintf("students:%d", classID)
}

// invalidatePrefix deletes every key matching prefix*, scanning instead of
// KEYS so production instances are not blocked.
func invalidatePrefix(ctx context.Context, client *redis.Client, prefix string) error {
	iter := client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// ttlWithJitter adds up to 10% jitter to spread expirations.
func ttlWithJitter(rnd *rand.Rand, ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	jitterMax := int64(ttl) / 10
	return ttl + time.Duration(rnd.Int63n(jitterMax+1))
}
