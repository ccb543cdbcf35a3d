package app

import (
	"math/rand"
	"sync"
	"time"

	"checkin-sync-service/internal/domain"
)

// DefaultRotationWindow is how long a question stays excluded from random
// selection after it was last used for a class.
const DefaultRotationWindow = 7 * 24 * time.Hour

// Selector picks the next question for a class, avoiding ones used within
// the rotation window. When the window covers the whole pool it falls back
// to the full pool and reports that via the exhausted flag.
type Selector struct {
	window time.Duration
	now    func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSelector(window time.Duration) *Selector {
	return NewSelectorWithClock(window, time.Now, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewSelectorWithClock allows deterministic time and randomness in tests.
func NewSelectorWithClock(window time.Duration, now func() time.Time, rnd *rand.Rand) *Selector {
	if window <= 0 {
		window = DefaultRotationWindow
	}
	return &Selector{window: window, now: now, rnd: rnd}
}

// Next selects uniformly at random from the pool minus the rotation window
// and stamps the chosen question's LastUsedAt in place. Persisting the stamp
// is the question bank's job, not the selector's. An empty pool is an error,
// not a fallback condition.
func (s *Selector) Next(pool []domain.Question) (domain.Question, bool, error) {
	if len(pool) == 0 {
		return domain.Question{}, false, domain.ErrEmptyPool
	}

	now := s.now()
	candidates := make([]int, 0, len(pool))
	for i := range pool {
		if used := pool[i].LastUsedAt; used == nil || now.Sub(*used) >= s.window {
			candidates = append(candidates, i)
		}
	}

	exhausted := false
	if len(candidates) == 0 {
		exhausted = true
		for i := range pool {
			candidates = append(candidates, i)
		}
	}

	// One selector is shared across concurrent requests; rand.Rand is not
	// goroutine-safe.
	s.mu.Lock()
	pick := s.rnd.Intn(len(candidates))
	s.mu.Unlock()

	idx := candidates[pick]
	stamp := now
	pool[idx].LastUsedAt = &stamp
	return pool[idx], exhausted, nil
}
