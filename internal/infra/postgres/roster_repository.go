package postgres

import (
	"context"
	"fmt"

	"checkin-sync-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// RosterRepository loads class rosters from Postgres; the cache layers in
// infra/memory and infra/redis sit in front of it.
type RosterRepository struct {
	pool *pgxpool.Pool
}

func NewRosterRepository(pool *pgxpool.Pool) *RosterRepository {
	return &RosterRepository{pool: pool}
}

func (r *RosterRepository) LoadStudents(ctx context.Context, classID int64) ([]domain.Student, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, class_id, name FROM students WHERE class_id = $1 ORDER BY id`, classID)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	defer rows.Close()

	students := make([]domain.Student, 0)
	for rows.Next() {
		var s domain.Student
		if err := rows.Scan(&s.ID, &s.ClassID, &s.Name); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, s)
	}
	return students, rows.Err()
}
