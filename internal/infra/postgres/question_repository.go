package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"checkin-sync-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionRepository loads question pools and persists the rotation
// selector's last-used stamps.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

func (r *QuestionRepository) LoadPool(ctx context.Context, teacherID int64) ([]domain.Question, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, text, answers, category, difficulty, visual_type, last_used_at
		FROM questions
		WHERE teacher_id = $1
		ORDER BY id`, teacherID)
	if err != nil {
		return nil, fmt.Errorf("load question pool: %w", err)
	}
	defer rows.Close()

	questions := make([]domain.Question, 0)
	for rows.Next() {
		var (
			q          domain.Question
			rawAnswers []byte
			difficulty string
		)
		if err := rows.Scan(&q.ID, &q.Text, &rawAnswers, &q.Category, &difficulty, &q.VisualType, &q.LastUsedAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(rawAnswers, &q.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers for question %d: %w", q.ID, err)
		}
		q.Difficulty = domain.Difficulty(difficulty)
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (r *QuestionRepository) TouchLastUsed(ctx context.Context, questionID int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE questions SET last_used_at = $2 WHERE id = $1`, questionID, at)
	if err != nil {
		return fmt.Errorf("touch question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}
