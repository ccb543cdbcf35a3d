package app

import (
	"context"
	"log"
	"sync"

	"checkin-sync-service/internal/domain"
)

// Persister abstracts the attendance read/write path (REST client, fake).
type Persister interface {
	Upsert(ctx context.Context, rec domain.AssignmentRecord) error
	Fetch(ctx context.Context, classID int64, date string) ([]domain.AssignmentRecord, error)
}

// Channel abstracts the realtime link for one (class, date) view. OnConnect
// fires on reconnects only; the initial hydrate happens before Connect.
type Channel interface {
	OnMessage(func(domain.AssignmentRecord))
	OnConnect(func())
	Connect(ctx context.Context) error
	Publish(domain.AssignmentRecord)
	Close() error
}

// Session glues the assignment store, the persistence client and the
// realtime channel for one open view. Local sets apply optimistically,
// publish to peers, and persist in the background; inbound peer updates
// merge through the store's last-write-wins rule.
type Session struct {
	store            *Store
	persist          Persister
	channel          Channel
	onPersistFailure func(domain.AssignmentRecord)

	wg sync.WaitGroup
}

// NewSession wires a view session. channel may be nil for a solo view;
// onPersistFailure may be nil when the caller has no UI to notify.
func NewSession(store *Store, persist Persister, channel Channel, onPersistFailure func(domain.AssignmentRecord)) *Session {
	return &Session{
		store:            store,
		persist:          persist,
		channel:          channel,
		onPersistFailure: onPersistFailure,
	}
}

// Store exposes the underlying assignment store for derived consumers.
func (s *Session) Store() *Store { return s.store }

// Open hydrates the store from the read path, then connects the realtime
// channel. A reconnect always re-hydrates: dropped messages while offline
// are reconciled from storage, never replayed by the channel.
func (s *Session) Open(ctx context.Context) error {
	records, err := s.persist.Fetch(ctx, s.store.classID, s.store.date)
	if err != nil {
		return err
	}
	if err := s.store.Hydrate(records); err != nil {
		return err
	}

	if s.channel == nil {
		return nil
	}
	s.channel.OnMessage(func(rec domain.AssignmentRecord) {
		if !s.store.ApplyRemote(rec) {
			log.Printf("stale assignment for student %d discarded", rec.StudentID)
		}
	})
	s.channel.OnConnect(s.rehydrate)
	return s.channel.Connect(ctx)
}

// Set applies a local assignment, publishes it to peers, and persists it in
// the background. The caller gets the applied record immediately and never
// waits on the network.
func (s *Session) Set(studentID int64, answer string) domain.AssignmentRecord {
	rec := s.store.Set(studentID, answer)
	if s.channel != nil {
		s.channel.Publish(rec)
	}
	s.wg.Add(1)
	go s.persistAsync(rec)
	return rec
}

func (s *Session) persistAsync(rec domain.AssignmentRecord) {
	defer s.wg.Done()
	// In-flight writes are allowed to outlive view teardown.
	if err := s.persist.Upsert(context.Background(), rec); err != nil {
		log.Printf("persist assignment student=%d: %v", rec.StudentID, err)
		s.store.Fail(rec.StudentID)
		if s.onPersistFailure != nil {
			s.onPersistFailure(rec)
		}
		return
	}
	s.store.Confirm(rec.StudentID)
}

// rehydrate merges persisted records after a reconnect. Unlike the initial
// Hydrate this goes through ApplyRemote, so newer local optimistic values
// survive and older persisted ones are discarded.
func (s *Session) rehydrate() {
	records, err := s.persist.Fetch(context.Background(), s.store.classID, s.store.date)
	if err != nil {
		log.Printf("rehydrate class=%d date=%s: %v", s.store.classID, s.store.date, err)
		return
	}
	for _, rec := range records {
		s.store.ApplyRemote(rec)
	}
}

// OnStats installs the stats aggregator as a store subscriber: fn receives
// freshly aggregated stats once on install and again after every applied
// change. The returned function unsubscribes.
func (s *Session) OnStats(totalStudents int, answers []string, fn func(domain.Stats)) func() {
	unsubscribe := s.store.Subscribe(func(state domain.SessionState) {
		fn(Aggregate(state, totalStudents, answers))
	})
	fn(Aggregate(s.store.Snapshot(), totalStudents, answers))
	return unsubscribe
}

// Close tears down the channel subscription. In-flight upserts complete.
func (s *Session) Close() error {
	if s.channel != nil {
		return s.channel.Close()
	}
	return nil
}

// Flush waits for in-flight persistence calls; used by tests and teardown.
func (s *Session) Flush() {
	s.wg.Wait()
}
