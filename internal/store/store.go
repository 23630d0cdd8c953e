// Package store defines the storage contracts the exam engine consumes and
// an in-memory implementation of them. The Postgres implementation lives in
// internal/repository.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// QuestionReader is read-only access to subjects and questions.
type QuestionReader interface {
	ListSubjects(ctx context.Context) ([]model.Subject, error)
	GetSubject(ctx context.Context, id int) (*model.Subject, error)
	ListQuestionsBySubject(ctx context.Context, subjectID int) ([]model.Question, error)
	// GetQuestionsByIDs returns the questions that exist, in no particular order.
	GetQuestionsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error)
}

// SessionTx is a unit of work holding an exclusive lock on one session.
// Nothing written through it is visible until the enclosing
// WithLockedSession call returns nil.
type SessionTx interface {
	// Session is the locked row, updated by Complete.
	Session() *model.Session
	// Complete moves the session to COMPLETED. It is a no-op on a session
	// that is already completed.
	Complete(ctx context.Context, endedAt time.Time) error
	// UpsertResult inserts or overwrites the result for (session, question)
	// and fills r's id and timestamps.
	UpsertResult(ctx context.Context, r *model.Result) error
}

// SessionStore persists sessions and their results.
type SessionStore interface {
	// CreateSession stores a new session with its manifest and fills ID.
	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*model.Session, error)
	ListSessionsByOwner(ctx context.Context, ownerID int) ([]model.Session, error)
	ListSessionsBySubject(ctx context.Context, subjectID int) ([]model.Session, error)
	ListResults(ctx context.Context, sessionID uuid.UUID) ([]model.Result, error)
	// CountAnswered returns the number of recorded results per session.
	// Sessions without results are absent from the map.
	CountAnswered(ctx context.Context, sessionIDs []uuid.UUID) (map[uuid.UUID]int, error)
	// WithLockedSession runs fn with the session locked. The writes made
	// through tx are committed if fn returns nil and discarded otherwise.
	WithLockedSession(ctx context.Context, id uuid.UUID, fn func(tx SessionTx) error) error
	// SaveScores writes the completed sessions' score snapshots.
	SaveScores(ctx context.Context, scores map[uuid.UUID]model.ScoreSummary) error
}
