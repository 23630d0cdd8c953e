package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-cbt/internal/store"
)

// PostgresStore bundles the pgx repositories behind the store contracts.
type PostgresStore struct {
	*SubjectRepository
	*QuestionRepository
	*SessionRepository
}

var (
	_ store.QuestionReader = (*PostgresStore)(nil)
	_ store.SessionStore   = (*PostgresStore)(nil)
)

// NewPostgresStore creates a PostgresStore over one pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		SubjectRepository:  NewSubjectRepository(pool),
		QuestionRepository: NewQuestionRepository(pool),
		SessionRepository:  NewSessionRepository(pool),
	}
}
