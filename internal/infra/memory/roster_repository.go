package memory

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"checkin-sync-service/internal/cache"
	"checkin-sync-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// RosterLoader fetches class rosters from a backing store.
type RosterLoader interface {
	LoadStudents(ctx context.Context, classID int64) ([]domain.Student, error)
}

// RosterRepository memoizes rosters with a TTL to avoid repeated backend
// hits. Keys follow the students:{classId} contract so prefix invalidation
// works across cache implementations.
type RosterRepository struct {
	loader RosterLoader
	ttl    time.Duration
	cache  *cache.Cache[[]domain.Student]
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewRosterRepository(loader RosterLoader, ttl time.Duration) *RosterRepository {
	return &RosterRepository{
		loader: loader,
		ttl:    ttl,
		cache:  cache.New[[]domain.Student](),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *RosterRepository) ListStudents(ctx context.Context, classID int64) ([]domain.Student, error) {
	key := rosterKey(classID)
	if students, ok := r.cache.Get(key); ok {
		return students, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		if students, ok := r.cache.Get(key); ok {
			return students, nil
		}
		students, err := r.loader.LoadStudents(ctx, classID)
		if err != nil {
			return nil, err
		}
		r.cache.Set(key, students, ttlWithJitter(r.rnd, r.ttl))
		return students, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Student), nil
}

// Invalidate drops cached rosters by key prefix.
func (r *RosterRepository) Invalidate(prefix string) {
	r.cache.Invalidate(prefix)
}

func rosterKey(classID int64) string {
	return fmt.Sprintf("students:%d", classID)
}

// StaticRosterLoader serves rosters from a fixed map (tests/demos).
type StaticRosterLoader struct {
	rosters map[int64][]domain.Student
}

func NewStaticRosterLoader(rosters map[int64][]domain.Student) *StaticRosterLoader {
	return &StaticRosterLoader{rosters: rosters}
}

func (l *StaticRosterLoader) LoadStudents(_ context.Context, classID int64) ([]domain.Student, error) {
	if students, ok := l.rosters[classID]; ok {
		return students, nil
	}
	return nil, domain.ErrClassNotFound
}

// ttlWithJitter adds up to 10% jitter to spread expirations.
func ttlWithJitter(rnd *rand.Rand, ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	jitterMax := int64(ttl) / 10
	return ttl + time.Duration(rnd.Int63n(jitterMax+1))
}
