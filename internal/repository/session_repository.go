package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/store"
)

// SessionRepository handles exam session and result data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const selectSession = `SELECT id, owner_id, subject_id, duration_minutes, status, started_at, ended_at,
	manifest, score, total, percentage
	FROM exam_sessions`

// CreateSession inserts a session with its manifest. StartedAt comes from
// the caller so deadline math uses a single clock.
func (r *SessionRepository) CreateSession(ctx context.Context, s *model.Session) error {
	manifest, err := json.Marshal(s.Manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (owner_id, subject_id, duration_minutes, status, started_at, manifest)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		s.OwnerID, s.SubjectID, s.DurationMinutes, s.Status, s.StartedAt, manifest,
	).Scan(&s.ID)
}

// GetSession retrieves a session by id.
func (r *SessionRepository) GetSession(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	return scanSession(r.pool.QueryRow(ctx, selectSession+` WHERE id = $1`, id))
}

// ListSessionsByOwner retrieves all sessions of an owner, newest first.
func (r *SessionRepository) ListSessionsByOwner(ctx context.Context, ownerID int) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx, selectSession+` WHERE owner_id = $1 ORDER BY started_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// ListSessionsBySubject retrieves the sessions started on a subject, oldest
// first.
func (r *SessionRepository) ListSessionsBySubject(ctx context.Context, subjectID int) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx, selectSession+` WHERE subject_id = $1 ORDER BY started_at ASC`, subjectID)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// CountAnswered counts recorded results per session.
func (r *SessionRepository) CountAnswered(ctx context.Context, sessionIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return counts, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, COUNT(*)
		 FROM exam_results
		 WHERE session_id = ANY($1)
		 GROUP BY session_id`, sessionIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id uuid.UUID
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// ListResults retrieves every recorded answer of a session.
func (r *SessionRepository) ListResults(ctx context.Context, sessionID uuid.UUID) ([]model.Result, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, question_id, selected_option, is_correct, created_at, updated_at
		 FROM exam_results
		 WHERE session_id = $1
		 ORDER BY created_at`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []model.Result{}
	for rows.Next() {
		var res model.Result
		if err := rows.Scan(&res.ID, &res.SessionID, &res.QuestionID, &res.SelectedOption, &res.IsCorrect, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// WithLockedSession runs fn in a transaction holding a row lock on the
// session. Writes made through the SessionTx commit only if fn returns nil.
func (r *SessionRepository) WithLockedSession(ctx context.Context, id uuid.UUID, fn func(tx store.SessionTx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		s, err := scanSession(tx.QueryRow(ctx, selectSession+` WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		return fn(&sessionTx{tx: tx, session: s})
	})
}

// SaveScores writes the score snapshot of completed sessions in one
// statement.
func (r *SessionRepository) SaveScores(ctx context.Context, scores map[uuid.UUID]model.ScoreSummary) error {
	if len(scores) == 0 {
		return nil
	}

	n := len(scores)
	ids := make([]uuid.UUID, 0, n)
	points := make([]int, 0, n)
	totals := make([]int, 0, n)
	percentages := make([]float64, 0, n)
	for id, sum := range scores {
		ids = append(ids, id)
		points = append(points, sum.Score)
		totals = append(totals, sum.Total)
		percentages = append(percentages, sum.Percentage)
	}

	query := `
		UPDATE exam_sessions AS s
		SET score = t.score,
		    total = t.total,
		    percentage = t.percentage,
		    updated_at = NOW()
		FROM (
			SELECT u.id, u.score, u.total, u.percentage
			FROM UNNEST(
				$1::uuid[],
				$2::int[],
				$3::int[],
				$4::float8[]
			) AS u (id, score, total, percentage)
		) AS t
		WHERE s.id = t.id
		  AND s.status = 'COMPLETED'
	`
	_, err := r.pool.Exec(ctx, query, ids, points, totals, percentages)
	return err
}

type sessionTx struct {
	tx      pgx.Tx
	session *model.Session
}

func (t *sessionTx) Session() *model.Session {
	return t.session
}

func (t *sessionTx) Complete(ctx context.Context, endedAt time.Time) error {
	if t.session.Status == model.SessionStatusCompleted {
		return nil
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE exam_sessions
		 SET status = $2, ended_at = $3, updated_at = NOW()
		 WHERE id = $1 AND status <> $2`,
		t.session.ID, model.SessionStatusCompleted, endedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		t.session.Status = model.SessionStatusCompleted
		t.session.EndedAt = &endedAt
	}
	return nil
}

func (t *sessionTx) UpsertResult(ctx context.Context, res *model.Result) error {
	return t.tx.QueryRow(ctx,
		`INSERT INTO exam_results (session_id, question_id, selected_option, is_correct)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id, question_id) DO UPDATE
		 SET selected_option = EXCLUDED.selected_option,
		     is_correct = EXCLUDED.is_correct,
		     updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		res.SessionID, res.QuestionID, res.SelectedOption, res.IsCorrect,
	).Scan(&res.ID, &res.CreatedAt, &res.UpdatedAt)
}

func collectSessions(rows pgx.Rows) ([]model.Session, error) {
	defer rows.Close()

	sessions := []model.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func scanSession(row pgx.Row) (*model.Session, error) {
	var (
		s        model.Session
		manifest []byte
	)
	err := row.Scan(&s.ID, &s.OwnerID, &s.SubjectID, &s.DurationMinutes, &s.Status, &s.StartedAt, &s.EndedAt,
		&manifest, &s.Score, &s.Total, &s.Percentage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(manifest, &s.Manifest); err != nil {
		return nil, fmt.Errorf("decode manifest of session %s: %w", s.ID, err)
	}
	return &s, nil
}
