package postgres

import (
	"context"
	"fmt"
	"time"

	"checkin-sync-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// AttendanceRepository stores assignment records in Postgres. The upsert is
// idempotent per (student_id, class_id, date): the storage layer accepts any
// well-formed write and keeps the last one, pushing conflict resolution to
// the timestamp merge rule on each client.
type AttendanceRepository struct {
	pool *pgxpool.Pool
}

func NewAttendanceRepository(pool *pgxpool.Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

func (r *AttendanceRepository) Upsert(ctx context.Context, rec domain.AssignmentRecord, status, notes string) (domain.AssignmentRecord, error) {
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	if status == "" {
		status = "present"
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO attendance (student_id, class_id, date, question_id, status, answer, notes, updated_at)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8)
		ON CONFLICT (student_id, class_id, date) DO UPDATE
		SET question_id = EXCLUDED.question_id,
		    status      = EXCLUDED.status,
		    answer      = EXCLUDED.answer,
		    notes       = EXCLUDED.notes,
		    updated_at  = EXCLUDED.updated_at
		RETURNING student_id, class_id, to_char(date, 'YYYY-MM-DD'), question_id, answer, updated_at`,
		rec.StudentID, rec.ClassID, rec.Date, rec.QuestionID, status, rec.Answer, notes, updatedAt)

	var stored domain.AssignmentRecord
	if err := row.Scan(&stored.StudentID, &stored.ClassID, &stored.Date, &stored.QuestionID, &stored.Answer, &stored.UpdatedAt); err != nil {
		return domain.AssignmentRecord{}, fmt.Errorf("upsert attendance: %w", err)
	}
	return stored, nil
}

func (r *AttendanceRepository) List(ctx context.Context, classID int64, date string) ([]domain.AssignmentRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT student_id, class_id, to_char(date, 'YYYY-MM-DD'), question_id, answer, updated_at
		FROM attendance
		WHERE class_id = $1 AND date = $2::date
		ORDER BY student_id`, classID, date)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	records := make([]domain.AssignmentRecord, 0)
	for rows.Next() {
		var rec domain.AssignmentRecord
		if err := rows.Scan(&rec.StudentID, &rec.ClassID, &rec.Date, &rec.QuestionID, &rec.Answer, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
