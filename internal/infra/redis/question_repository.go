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

// QuestionSource is the backing question bank behind the Redis cache.
type QuestionSource interface {
	LoadPool(ctx context.Context, teacherID int64) ([]domain.Question, error)
	TouchLastUsed(ctx context.Context, questionID int64, at time.Time) error
}

// QuestionRepository caches a teacher's full pool in Redis under
// questions:{teacherId}; category filtering happens on the cached copy.
type QuestionRepository struct {
	client *redis.Client
	source QuestionSource
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionRepository(client *redis.Client, source QuestionSource, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionRepository) Pool(ctx context.Context, teacherID int64, categories []string) ([]domain.Question, error) {
	key := questionKey(teacherID)
	if pool, ok := r.cached(ctx, key); ok {
		return filterByCategory(pool, categories), nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		if pool, ok := r.cached(ctx, key); ok {
			return pool, nil
		}
		pool, err := r.source.LoadPool(ctx, teacherID)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(pool); err == nil {
			_ = r.client.Set(ctx, key, data, ttlWithJitter(r.rnd, r.ttl)).Err()
		}
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
	return invalidatePrefix(ctx, r.client, "questions:")
}

func (r *QuestionRepository) cached(ctx context.Context, key string) ([]domain.Question, bool) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var pool []domain.Question
	if err := json.Unmarshal(data, &pool); err != nil {
		return nil, false
	}
	return pool, true
}

func questionKey(teacherID int64) string {
	return fmt.Sprintf("questions:%d", teacherID)
}

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
