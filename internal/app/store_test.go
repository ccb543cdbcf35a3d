package app_test

import (
	"math/rand"
	"testing"
	"time"

	"checkin-sync-service/internal/app"
	"checkin-sync-service/internal/domain"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestStore() *app.Store {
	return app.NewStoreWithClock(1, "2026-03-02", 10, func() time.Time { return base })
}

func TestLocalSetWinsOverOlderRemote(t *testing.T) {
	store := newTestStore()

	store.SetAt(7, "Red", base.Add(100*time.Millisecond))
	applied := store.ApplyRemote(domain.AssignmentRecord{
		StudentID: 7,
		Answer:    "Blue",
		UpdatedAt: base.Add(90 * time.Millisecond),
	})
	if applied {
		t.Fatalf("expected older remote to be discarded")
	}
	if got := store.Snapshot().Assignments[7].Answer; got != "Red" {
		t.Fatalf("expected Red to survive, got %q", got)
	}
}

func TestNewerRemoteOverwrites(t *testing.T) {
	store := newTestStore()

	store.SetAt(7, "Red", base.Add(100*time.Millisecond))
	store.ApplyRemote(domain.AssignmentRecord{StudentID: 7, Answer: "Blue", UpdatedAt: base.Add(90 * time.Millisecond)})

	applied := store.ApplyRemote(domain.AssignmentRecord{
		StudentID: 7,
		Answer:    "Blue",
		UpdatedAt: base.Add(150 * time.Millisecond),
	})
	if !applied {
		t.Fatalf("expected newer remote to apply")
	}
	if got := store.Snapshot().Assignments[7].Answer; got != "Blue" {
		t.Fatalf("expected Blue after newer remote, got %q", got)
	}
}

func TestTieKeepsCurrent(t *testing.T) {
	store := newTestStore()

	at := base.Add(time.Second)
	store.ApplyRemote(domain.AssignmentRecord{StudentID: 3, Answer: "Green", UpdatedAt: at})
	if store.ApplyRemote(domain.AssignmentRecord{StudentID: 3, Answer: "Yellow", UpdatedAt: at}) {
		t.Fatalf("expected equal timestamp to be discarded")
	}
	if got := store.Snapshot().Assignments[3].Answer; got != "Green" {
		t.Fatalf("expected tie to keep current, got %q", got)
	}
}

func TestConvergenceAnyOrderAndDuplication(t *testing.T) {
	records := []domain.AssignmentRecord{
		{StudentID: 7, Answer: "Red", UpdatedAt: base.Add(1 * time.Second)},
		{StudentID: 7, Answer: "Blue", UpdatedAt: base.Add(5 * time.Second)},
		{StudentID: 7, Answer: "Green", UpdatedAt: base.Add(3 * time.Second)},
		{StudentID: 8, Answer: "Red", UpdatedAt: base.Add(2 * time.Second)},
		{StudentID: 8, Answer: "Blue", UpdatedAt: base.Add(4 * time.Second)},
	}

	rnd := rand.New(rand.NewSource(42))
	for trial := 0; trial < 25; trial++ {
		shuffled := make([]domain.AssignmentRecord, len(records))
		copy(shuffled, records)
		rnd.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		store := newTestStore()
		for _, rec := range shuffled {
			store.ApplyRemote(rec)
			// Every delivery duplicated.
			store.ApplyRemote(rec)
		}

		state := store.Snapshot()
		if got := state.Assignments[7].Answer; got != "Blue" {
			t.Fatalf("trial %d: student 7 converged to %q, want Blue", trial, got)
		}
		if got := state.Assignments[8].Answer; got != "Blue" {
			t.Fatalf("trial %d: student 8 converged to %q, want Blue", trial, got)
		}
	}
}

func TestHydrateAfterMutationFails(t *testing.T) {
	store := newTestStore()

	if err := store.Hydrate([]domain.AssignmentRecord{{StudentID: 1, Answer: "Red", UpdatedAt: base}}); err != nil {
		t.Fatalf("initial hydrate: %v", err)
	}
	store.Set(2, "Blue")

	err := store.Hydrate(nil)
	if err != domain.ErrAlreadyMutated {
		t.Fatalf("expected ErrAlreadyMutated, got %v", err)
	}
}

func TestPendingLifecycle(t *testing.T) {
	store := newTestStore()

	store.Set(5, "Red")
	state := store.Snapshot()
	if _, ok := state.Pending[5]; !ok {
		t.Fatalf("expected student 5 pending after set")
	}
	for id := range state.Pending {
		if _, ok := state.Assignments[id]; !ok {
			t.Fatalf("pending student %d has no assignment", id)
		}
	}

	store.Confirm(5)
	if _, ok := store.Snapshot().Pending[5]; ok {
		t.Fatalf("expected pending cleared after confirm")
	}

	store.Set(6, "Blue")
	store.Fail(6)
	state = store.Snapshot()
	if _, ok := state.Pending[6]; ok {
		t.Fatalf("expected pending cleared after terminal failure")
	}
	if state.Assignments[6].Answer != "Blue" {
		t.Fatalf("expected optimistic value kept after failure")
	}
}

func TestRemoteDoesNotTouchPending(t *testing.T) {
	store := newTestStore()

	store.ApplyRemote(domain.AssignmentRecord{StudentID: 9, Answer: "Red", UpdatedAt: base})
	if len(store.Snapshot().Pending) != 0 {
		t.Fatalf("remote updates must not create pending entries")
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	store := newTestStore()

	var seen []domain.SessionState
	unsubscribe := store.Subscribe(func(state domain.SessionState) {
		seen = append(seen, state)
	})

	store.Set(1, "Red")
	if len(seen) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(seen))
	}
	if seen[0].Assignments[1].Answer != "Red" {
		t.Fatalf("snapshot missing the applied change")
	}

	unsubscribe()
	store.Set(2, "Blue")
	if len(seen) != 1 {
		t.Fatalf("expected no notifications after unsubscribe, got %d", len(seen))
	}
}
