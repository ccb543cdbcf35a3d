package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"checkin-sync-service/internal/domain"
)

// AttendanceStore is an in-memory idempotent upsert store keyed by
// (studentID, classID, date). It backs the attendance API when Postgres is
// not configured and doubles as the storage double in transport tests.
type AttendanceStore struct {
	now func() time.Time

	mu      sync.Mutex
	records map[string]storedRecord
}

type storedRecord struct {
	rec    domain.AssignmentRecord
	status string
	notes  string
}

func NewAttendanceStore() *AttendanceStore {
	return NewAttendanceStoreWithClock(time.Now)
}

// NewAttendanceStoreWithClock allows deterministic timestamps in tests.
func NewAttendanceStoreWithClock(now func() time.Time) *AttendanceStore {
	return &AttendanceStore{now: now, records: make(map[string]storedRecord)}
}

// Upsert stores the record, overwriting any existing one with the same key.
// Last write wins at the storage layer: any well-formed upsert is accepted,
// conflict resolution happens in each client's merge rule.
func (s *AttendanceStore) Upsert(_ context.Context, rec domain.AssignmentRecord, status, notes string) (domain.AssignmentRecord, error) {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey(rec.StudentID, rec.ClassID, rec.Date)] = storedRecord{rec: rec, status: status, notes: notes}
	return rec, nil
}

// List returns the records for one class and date, ordered by student id.
func (s *AttendanceStore) List(_ context.Context, classID int64, date string) ([]domain.AssignmentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]domain.AssignmentRecord, 0)
	for _, stored := range s.records {
		if stored.rec.ClassID == classID && stored.rec.Date == date {
			records = append(records, stored.rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].StudentID < records[j].StudentID })
	return records, nil
}

// Len reports the number of stored records; used by idempotency tests.
func (s *AttendanceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func recordKey(studentID, classID int64, date string) string {
	return fmt.Sprintf("%d:%d:%s", studentID, classID, date)
}
