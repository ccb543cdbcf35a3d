package domain

import "time"

// MessageTypeAssignment is the only message type the sync core produces.
// Unknown types are ignored by receivers, not treated as errors.
const MessageTypeAssignment = "assignment"

// Message is the realtime wire schema shared by the hub and channel clients.
// UpdatedAt marshals as RFC 3339, which satisfies the ISO-8601 contract.
type Message struct {
	Type      string    `json:"type"`
	ClassID   int64     `json:"classId"`
	Date      string    `json:"date"`
	StudentID int64     `json:"studentId"`
	Answer    string    `json:"answer"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewAssignmentMessage converts a locally applied record into its wire form.
func NewAssignmentMessage(rec AssignmentRecord) Message {
	return Message{
		Type:      MessageTypeAssignment,
		ClassID:   rec.ClassID,
		Date:      rec.Date,
		StudentID: rec.StudentID,
		Answer:    rec.Answer,
		UpdatedAt: rec.UpdatedAt,
	}
}

// Record converts an inbound assignment message back into a record. The
// question id is not carried on the wire; receivers already know the active
// question for their view.
func (m Message) Record() AssignmentRecord {
	return AssignmentRecord{
		StudentID: m.StudentID,
		ClassID:   m.ClassID,
		Date:      m.Date,
		Answer:    m.Answer,
		UpdatedAt: m.UpdatedAt,
	}
}
