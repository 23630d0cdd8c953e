package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/store"
)

// ResultService aggregates a session's results into a score.
type ResultService struct {
	sessions  store.SessionStore
	questions store.QuestionReader
}

// NewResultService creates a new ResultService.
func NewResultService(sessions store.SessionStore, questions store.QuestionReader) *ResultService {
	return &ResultService{sessions: sessions, questions: questions}
}

// Summarize reads the session, its results and its manifest questions.
func (s *ResultService) Summarize(ctx context.Context, sessionID uuid.UUID) (model.ScoreSummary, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.ScoreSummary{}, &NotFoundError{Resource: "session", ID: sessionID.String()}
		}
		return model.ScoreSummary{}, storageError("get session", err)
	}
	results, err := s.sessions.ListResults(ctx, sessionID)
	if err != nil {
		return model.ScoreSummary{}, storageError("list results", err)
	}
	questions, err := s.questions.GetQuestionsByIDs(ctx, session.Manifest.QuestionIDs())
	if err != nil {
		return model.ScoreSummary{}, storageError("get manifest questions", err)
	}
	return aggregate(session.Manifest, indexQuestions(questions), results), nil
}

// aggregate sums marks of correct results as the score and marks of every
// manifest question, answered or not, as the total.
func aggregate(manifest model.Manifest, questions map[uuid.UUID]model.Question, results []model.Result) model.ScoreSummary {
	var sum model.ScoreSummary
	for _, item := range manifest {
		sum.Total += questions[item.QuestionID].Marks
	}
	for _, r := range results {
		if r.IsCorrect && manifest.Contains(r.QuestionID) {
			sum.Score += questions[r.QuestionID].Marks
		}
	}
	sum.Percentage = Percentage(sum.Score, sum.Total)
	return sum
}

// Percentage is score/total*100 rounded half away from zero to two decimal
// places. A zero total yields 0.
func Percentage(score, total int) float64 {
	if total <= 0 {
		return 0
	}
	pct := decimal.NewFromInt(int64(score)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(total)), 2)
	f, _ := pct.Float64()
	return f
}
