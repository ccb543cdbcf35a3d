package domain

import "time"

// Difficulty grades a question for the teacher's planning; the sync core
// carries it through untouched.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Student belongs to the roster collaborator; immutable within a session.
type Student struct {
	ID      int64  `json:"id"`
	ClassID int64  `json:"classId"`
	Name    string `json:"name"`
}

// Question is owned by the question bank. The sync core reads Answers and
// stamps LastUsedAt when the rotation selector picks it.
type Question struct {
	ID         int64      `json:"id"`
	Text       string     `json:"text"`
	Answers    []string   `json:"answers"` // 2-8 entries, display order
	Category   string     `json:"category"`
	Difficulty Difficulty `json:"difficulty"`
	VisualType string     `json:"visualType"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

// AssignmentRecord maps one student to one answer for a class and calendar
// day. At most one record exists per (StudentID, ClassID, Date); a later
// write with the same key overwrites Answer and UpdatedAt.
type AssignmentRecord struct {
	StudentID  int64     `json:"studentId"`
	ClassID    int64     `json:"classId"`
	Date       string    `json:"date"` // YYYY-MM-DD, no time component
	QuestionID int64     `json:"questionId"`
	Answer     string    `json:"answer"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Entry is the per-student slot inside a session's assignment map.
type Entry struct {
	Answer    string    `json:"answer"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SessionState is a read-only copy of one open view's assignment state.
// Pending holds student ids whose optimistic writes have not been confirmed
// by the persistence client yet.
type SessionState struct {
	ClassID     int64
	Date        string
	QuestionID  int64
	Assignments map[int64]Entry
	Pending     map[int64]struct{}
}

// Stats is the derived per-answer breakdown for a session.
type Stats struct {
	TotalStudents   int            `json:"totalStudents"`
	Responded       int            `json:"responded"`
	PerAnswerCounts map[string]int `json:"perAnswerCounts"`
}

// OtherAnswerBucket collects answers that are no longer part of the current
// question (a question changed mid-session) so they are counted, not dropped.
const OtherAnswerBucket = "other"
