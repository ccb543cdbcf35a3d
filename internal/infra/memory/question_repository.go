package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"checkin-sync-service/internal/cache"
	"checkin-sync-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionSource is the backing question bank: it loads a teacher's pool and
// persists last-used stamps written by the rotation selector.
type QuestionSource interface {
	LoadPool(ctx context.Context, teacherID int64) ([]domain.Question, error)
	TouchLastUsed(ctx context.Context, questionID int64, at time.Time) error
}

// QuestionRepository caches question pools per teacher with a TTL. The full
// pool is cached under questions:{teacherId}; category filtering happens on
// the cached copy.
type QuestionRepository struct {
	source QuestionSource
	ttl    time.Duration
	cache  *cache.Cache[[]domain.Question]
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionRepository(source QuestionSource, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		source: source,
		ttl:    ttl,
		cache:  cache.New[[]domain.Question](),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionRepository) Pool(ctx context.Context, teacherID int64, categories []string) ([]domain.Question, error) {
	key := questionKey(teacherID)
	if pool, ok := r.cache.Get(key); ok {
		return filterByCategory(pool, categories), nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		if pool, ok := r.cache.Get(key); ok {
			return pool, nil
		}
		pool, err := r.source.LoadPool(ctx, teacherID)
		if err != nil {
			return nil, err
		}
		r.cache.Set(key, pool, ttlWithJitter(r.rnd, r.ttl))
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return filterByCategory(result.([]domain.Question), categories), nil
}

// TouchLastUsed persists the rotation stamp and invalidates cached pools so
// the next read sees the fresh window.
func (r *QuestionRepository) TouchLastUsed(ctx context.Context, questionID int64, at time.Time) error {
	if err := r.source.TouchLastUsed(ctx, questionID, at); err != nil {
		return err
	}
	r.cache.Invalidate("questions:")
	return nil
}

func questionKey(teacherID int64) string {
	return fmt.Sprintf("questions:%d", teacherID)
}

// filterByCategory copies the pool entries matching the class's allowed
// categories. An empty filter means every category is allowed.
func filterByCategory(pool []domain.Question, categories []string) []domain.Question {
	if len(categories) == 0 {
		out := make([]domain.Question, len(pool))
		copy(out, pool)
		return out
	}
	allowed := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		allowed[c] = struct{}{}
	}
	out := make([]domain.Question, 0, len(pool))
	for _, q := range pool {
		if _, ok := allowed[q.Category]; ok {
			out = append(out, q)
		}
	}
	return out
}

// StaticQuestionSource serves pools from a fixed map (tests/demos).
type StaticQuestionSource struct {
	mu    sync.Mutex
	pools map[int64][]domain.Question
}

func NewStaticQuestionSource(pools map[int64][]domain.Question) *StaticQuestionSource {
	return &StaticQuestionSource{pools: pools}
}

func (s *StaticQuestionSource) LoadPool(_ context.Context, teacherID int64) ([]domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pool, ok := s.pools[teacherID]
	if !ok {
		return nil, domain.ErrQuestionNotFound
	}
	out := make([]domain.Question, len(pool))
	copy(out, pool)
	return out, nil
}

func (s *StaticQuestionSource) TouchLastUsed(_ context.Context, questionID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for teacherID := range s.pools {
		for i := range s.pools[teacherID] {
			if s.pools[teacherID][i].ID == questionID {
				stamp := at
				s.pools[teacherID][i].LastUsedAt = &stamp
				return nil
			}
		}
	}
	return domain.ErrQuestionNotFound
}
