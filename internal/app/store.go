package app

import (
	"sync"
	"time"

	"checkin-sync-service/internal/domain"
)

// Store is the authoritative in-memory assignment state for one open
// (class, date) view. Local writes are optimistic: they apply immediately,
// join the pending set, and are reconciled with the backend asynchronously.
// Remote updates merge by last-write-wins on UpdatedAt, which makes applying
// any set of records idempotent and commutative regardless of arrival order.
type Store struct {
	classID    int64
	date       string
	questionID int64
	now        func() time.Time

	mu           sync.Mutex
	mutated      bool
	assignments  map[int64]domain.Entry
	pending      map[int64]struct{}
	listeners    map[int]func(domain.SessionState)
	nextListener int
}

func NewStore(classID int64, date string, questionID int64) *Store {
	return NewStoreWithClock(classID, date, questionID, time.Now)
}

// NewStoreWithClock allows deterministic timestamps in tests.
func NewStoreWithClock(classID int64, date string, questionID int64, now func() time.Time) *Store {
	return &Store{
		classID:     classID,
		date:        date,
		questionID:  questionID,
		now:         now,
		assignments: make(map[int64]domain.Entry),
		pending:     make(map[int64]struct{}),
		listeners:   make(map[int]func(domain.SessionState)),
	}
}

// Hydrate bulk-loads persisted records into a fresh store. It is only valid
// before any local mutation; later reconciliation goes through ApplyRemote.
func (s *Store) Hydrate(records []domain.AssignmentRecord) error {
	s.mu.Lock()
	if s.mutated {
		s.mu.Unlock()
		return domain.ErrAlreadyMutated
	}
	for _, rec := range records {
		s.assignments[rec.StudentID] = domain.Entry{Answer: rec.Answer, UpdatedAt: rec.UpdatedAt}
	}
	listeners, state := s.notifyLocked()
	s.mu.Unlock()

	dispatch(listeners, state)
	return nil
}

// Set applies a local assignment unconditionally and marks it pending. It
// never blocks and never fails; the returned record is what the caller hands
// to the persistence client and the realtime channel.
func (s *Store) Set(studentID int64, answer string) domain.AssignmentRecord {
	return s.SetAt(studentID, answer, s.now())
}

// SetAt is Set with an explicit timestamp.
func (s *Store) SetAt(studentID int64, answer string, at time.Time) domain.AssignmentRecord {
	s.mu.Lock()
	s.mutated = true
	s.assignments[studentID] = domain.Entry{Answer: answer, UpdatedAt: at}
	s.pending[studentID] = struct{}{}
	listeners, state := s.notifyLocked()
	s.mu.Unlock()

	dispatch(listeners, state)
	return domain.AssignmentRecord{
		StudentID:  studentID,
		ClassID:    s.classID,
		Date:       s.date,
		QuestionID: s.questionID,
		Answer:     answer,
		UpdatedAt:  at,
	}
}

// ApplyRemote merges an inbound record: overwrite when the student has no
// entry or the record is strictly newer, otherwise keep the current value.
// Ties keep current, so duplicated and reordered deliveries converge to the
// same state. The return value reports whether the record was applied; a
// false result is a stale merge, which is diagnostic, not an error.
func (s *Store) ApplyRemote(rec domain.AssignmentRecord) bool {
	s.mu.Lock()
	current, ok := s.assignments[rec.StudentID]
	if ok && !rec.UpdatedAt.After(current.UpdatedAt) {
		s.mu.Unlock()
		return false
	}
	s.assignments[rec.StudentID] = domain.Entry{Answer: rec.Answer, UpdatedAt: rec.UpdatedAt}
	listeners, state := s.notifyLocked()
	s.mu.Unlock()

	dispatch(listeners, state)
	return true
}

// Confirm clears the pending mark after a successful upsert.
func (s *Store) Confirm(studentID int64) {
	s.mu.Lock()
	delete(s.pending, studentID)
	listeners, state := s.notifyLocked()
	s.mu.Unlock()

	dispatch(listeners, state)
}

// Fail clears the pending mark after a terminal persistence failure. The
// optimistic value is kept; the next hydrate reconciles it.
func (s *Store) Fail(studentID int64) {
	s.Confirm(studentID)
}

// Snapshot returns a deep copy of the session state for derived consumers.
func (s *Store) Snapshot() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers a listener invoked with a fresh snapshot after every
// applied change. The returned function unsubscribes.
func (s *Store) Subscribe(fn func(domain.SessionState)) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) snapshotLocked() domain.SessionState {
	assignments := make(map[int64]domain.Entry, len(s.assignments))
	for id, entry := range s.assignments {
		assignments[id] = entry
	}
	pending := make(map[int64]struct{}, len(s.pending))
	for id := range s.pending {
		pending[id] = struct{}{}
	}
	return domain.SessionState{
		ClassID:     s.classID,
		Date:        s.date,
		QuestionID:  s.questionID,
		Assignments: assignments,
		Pending:     pending,
	}
}

// notifyLocked snapshots the listener set and state under the lock; the
// caller dispatches after unlocking so listeners may call back into the store.
func (s *Store) notifyLocked() ([]func(domain.SessionState), domain.SessionState) {
	if len(s.listeners) == 0 {
		return nil, domain.SessionState{}
	}
	listeners := make([]func(domain.SessionState), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	return listeners, s.snapshotLocked()
}

func dispatch(listeners []func(domain.SessionState), state domain.SessionState) {
	for _, fn := range listeners {
		fn(state)
	}
}
