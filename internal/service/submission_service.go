package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/metrics"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/store"
)

// SubmissionService records and scores answers.
type SubmissionService struct {
	sessions  store.SessionStore
	questions store.QuestionReader
	deadline  *DeadlineEnforcer
	hooks     *sessionHooks
	log       zerolog.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(
	sessions store.SessionStore,
	questions store.QuestionReader,
	log zerolog.Logger,
	opts ...Option,
) *SubmissionService {
	o := buildOptions(opts)
	log = log.With().Str("component", "submission_service").Logger()
	return &SubmissionService{
		sessions:  sessions,
		questions: questions,
		deadline:  NewDeadlineEnforcer(o.clock),
		hooks:     newSessionHooks(o, log),
		log:       log,
	}
}

// Submit records the caller's answer for one manifest question. Checks run
// in order: unknown session or question, ownership, then the deadline. The
// status check and the write share one locked transaction. When the
// deadline has passed the session is completed and ErrSessionExpired is
// returned without recording the answer.
func (s *SubmissionService) Submit(ctx context.Context, caller Identity, sessionID uuid.UUID, req model.SubmitAnswerRequest) (*model.SubmitAnswerResponse, error) {
	if req.QuestionID == uuid.Nil {
		return nil, newValidationError("question_id", "is required")
	}
	if req.SelectedOption == "" {
		return nil, newValidationError("selected_option", "is required")
	}

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Resource: "session", ID: sessionID.String()}
		}
		return nil, storageError("get session", err)
	}
	if !session.Manifest.Contains(req.QuestionID) {
		return nil, &NotFoundError{Resource: "question", ID: req.QuestionID.String()}
	}
	if !caller.owns(session) {
		metrics.SubmissionsRejected.WithLabelValues("forbidden").Inc()
		return nil, ErrForbidden
	}

	found, err := s.questions.GetQuestionsByIDs(ctx, []uuid.UUID{req.QuestionID})
	if err != nil {
		return nil, storageError("get question", err)
	}
	if len(found) == 0 {
		return nil, &NotFoundError{Resource: "question", ID: req.QuestionID.String()}
	}
	question := found[0]

	var (
		result   model.Result
		expired  *model.Session
		accepted *model.Session
	)
	err = s.sessions.WithLockedSession(ctx, sessionID, func(tx store.SessionTx) error {
		admitted, err := s.deadline.Admit(ctx, tx)
		if err != nil {
			return err
		}
		if !admitted {
			expired = tx.Session()
			return nil
		}

		result = model.Result{
			SessionID:      sessionID,
			QuestionID:     req.QuestionID,
			SelectedOption: req.SelectedOption,
			IsCorrect:      model.Score(req.SelectedOption, question.CorrectAnswer),
		}
		if err := tx.UpsertResult(ctx, &result); err != nil {
			return storageError("upsert result", err)
		}
		accepted = tx.Session()
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			metrics.SubmissionsRejected.WithLabelValues("expired").Inc()
		}
		return nil, lockError(err, sessionID)
	}

	if expired != nil {
		metrics.SubmissionsRejected.WithLabelValues("expired").Inc()
		s.hooks.completed(ctx, expired, true)
		s.log.Info().Str("session_id", sessionID.String()).Msg("Submission after deadline, session expired")
		return nil, ErrSessionExpired
	}

	s.hooks.answered(ctx, accepted, result.QuestionID, result.IsCorrect)
	return &model.SubmitAnswerResponse{QuestionID: result.QuestionID, IsCorrect: result.IsCorrect}, nil
}

// ListResults joins the session's results with question text and marks and
// adds the score summary. Correct answers and explanations are revealed
// only once the session is completed.
func (s *SubmissionService) ListResults(ctx context.Context, caller Identity, sessionID uuid.UUID) (*model.ResultsView, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Resource: "session", ID: sessionID.String()}
		}
		return nil, storageError("get session", err)
	}
	if !caller.canRead(session) {
		return nil, ErrForbidden
	}

	results, err := s.sessions.ListResults(ctx, sessionID)
	if err != nil {
		return nil, storageError("list results", err)
	}
	found, err := s.questions.GetQuestionsByIDs(ctx, session.Manifest.QuestionIDs())
	if err != nil {
		return nil, storageError("get manifest questions", err)
	}
	questions := indexQuestions(found)
	reveal := session.Status == model.SessionStatusCompleted

	// Lines follow manifest order.
	byQuestion := make(map[uuid.UUID]model.Result, len(results))
	for _, r := range results {
		byQuestion[r.QuestionID] = r
	}
	lines := make([]model.ResultLine, 0, len(results))
	for _, item := range session.Manifest {
		r, ok := byQuestion[item.QuestionID]
		if !ok {
			continue
		}
		q := questions[item.QuestionID]
		line := model.ResultLine{
			QuestionID:     r.QuestionID,
			Text:           q.Text,
			Marks:          q.Marks,
			SelectedOption: r.SelectedOption,
			IsCorrect:      r.IsCorrect,
		}
		if reveal {
			line.CorrectAnswer = q.CorrectAnswer
			line.Explanation = q.Explanation
		}
		lines = append(lines, line)
	}

	return &model.ResultsView{
		SessionID:    session.ID,
		Status:       session.Status,
		Results:      lines,
		ScoreSummary: aggregate(session.Manifest, questions, results),
	}, nil
}
