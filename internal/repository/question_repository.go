package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

const selectQuestion = `SELECT id, subject_id, question_text, options, correct_answer, marks, explanation FROM questions`

// ListQuestionsBySubject retrieves every question of a subject.
func (r *QuestionRepository) ListQuestionsBySubject(ctx context.Context, subjectID int) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx, selectQuestion+` WHERE subject_id = $1 ORDER BY created_at, id`, subjectID)
	if err != nil {
		return nil, err
	}
	return collectQuestions(rows)
}

// GetQuestionsByIDs returns the questions that exist among ids, in no
// particular order.
func (r *QuestionRepository) GetQuestionsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	if len(ids) == 0 {
		return []model.Question{}, nil
	}
	rows, err := r.pool.Query(ctx, selectQuestion+` WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return collectQuestions(rows)
}

// CreateBatch copies questions into a subject in one round trip. Every
// question must already pass Validate.
func (r *QuestionRepository) CreateBatch(ctx context.Context, subjectID int, questions []model.Question) (int64, error) {
	return r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"questions"},
		[]string{"subject_id", "question_text", "options", "correct_answer", "marks", "explanation"},
		pgx.CopyFromSlice(len(questions), func(i int) ([]any, error) {
			q := questions[i]
			return []any{subjectID, q.Text, q.Options, q.CorrectAnswer, q.Marks, q.Explanation}, nil
		}),
	)
}

func collectQuestions(rows pgx.Rows) ([]model.Question, error) {
	defer rows.Close()

	questions := []model.Question{}
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.SubjectID, &q.Text, &q.Options, &q.CorrectAnswer, &q.Marks, &q.Explanation); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
