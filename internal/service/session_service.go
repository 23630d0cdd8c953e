package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/store"
)

// SessionService owns the session lifecycle: start, read, complete.
type SessionService struct {
	sessions  store.SessionStore
	questions store.QuestionReader
	random    *Randomizer
	deadline  *DeadlineEnforcer
	cache     PaperCache
	hooks     *sessionHooks
	now       Clock
	log       zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	sessions store.SessionStore,
	questions store.QuestionReader,
	random *Randomizer,
	log zerolog.Logger,
	opts ...Option,
) *SessionService {
	o := buildOptions(opts)
	log = log.With().Str("component", "session_service").Logger()
	return &SessionService{
		sessions:  sessions,
		questions: questions,
		random:    random,
		deadline:  NewDeadlineEnforcer(o.clock),
		cache:     o.cache,
		hooks:     newSessionHooks(o, log),
		now:       o.clock,
		log:       log,
	}
}

// Deadline exposes the enforcer so transports can schedule advisory timers.
func (s *SessionService) Deadline() *DeadlineEnforcer {
	return s.deadline
}

// Start creates an IN_PROGRESS session for the caller. The randomizer runs
// exactly once here; the resulting manifest is persisted and never rebuilt.
func (s *SessionService) Start(ctx context.Context, caller Identity, req model.StartSessionRequest) (*model.StartSessionResponse, error) {
	if req.DurationMinutes <= 0 {
		return nil, newValidationError("duration_minutes", "must be a positive number of minutes")
	}
	if req.QuestionCount < 0 {
		return nil, newValidationError("question_count", "must not be negative")
	}

	pool, err := s.resolvePool(ctx, req)
	if err != nil {
		return nil, err
	}

	session := &model.Session{
		OwnerID:         caller.UserID,
		SubjectID:       poolSubject(req.SubjectID, pool),
		DurationMinutes: req.DurationMinutes,
		Status:          model.SessionStatusInProgress,
		StartedAt:       s.now().UTC().Truncate(timePrecision),
		Manifest:        s.random.BuildManifest(pool, req.QuestionCount),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, storageError("create session", err)
	}

	paper := buildPaper(session.Manifest, indexQuestions(pool))
	if err := s.cache.SetPaper(ctx, session.ID, paper); err != nil {
		s.log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("Failed to cache session paper")
	}
	s.hooks.started(ctx, session)

	s.log.Info().
		Str("session_id", session.ID.String()).
		Int("owner_id", session.OwnerID).
		Int("questions", len(paper)).
		Msg("Session started")

	return &model.StartSessionResponse{
		SessionID:       session.ID,
		DurationMinutes: session.DurationMinutes,
		StartedAt:       session.StartedAt,
		Questions:       paper,
	}, nil
}

// resolvePool loads the candidate questions from a subject, an explicit id
// list, or both (explicit ids restricted to the subject).
func (s *SessionService) resolvePool(ctx context.Context, req model.StartSessionRequest) ([]model.Question, error) {
	if req.SubjectID == nil && len(req.QuestionIDs) == 0 {
		return nil, newValidationError("question_pool", "subject_id or question_ids is required")
	}

	if req.SubjectID != nil {
		if _, err := s.questions.GetSubject(ctx, *req.SubjectID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, &NotFoundError{Resource: "subject", ID: fmt.Sprint(*req.SubjectID)}
			}
			return nil, storageError("get subject", err)
		}
	}

	var pool []model.Question
	if len(req.QuestionIDs) > 0 {
		ids := uniqueIDs(req.QuestionIDs)
		found, err := s.questions.GetQuestionsByIDs(ctx, ids)
		if err != nil {
			return nil, storageError("get questions", err)
		}
		byID := indexQuestions(found)
		for _, id := range ids {
			q, ok := byID[id]
			if !ok {
				return nil, &NotFoundError{Resource: "question", ID: id.String()}
			}
			if req.SubjectID != nil && q.SubjectID != *req.SubjectID {
				return nil, newValidationError("question_ids", fmt.Sprintf("question %s does not belong to subject %d", id, *req.SubjectID))
			}
			pool = append(pool, q)
		}
	} else {
		var err error
		pool, err = s.questions.ListQuestionsBySubject(ctx, *req.SubjectID)
		if err != nil {
			return nil, storageError("list subject questions", err)
		}
	}

	if len(pool) == 0 {
		return nil, newValidationError("question_pool", "question pool is empty")
	}
	for i := range pool {
		if err := pool[i].Validate(); err != nil {
			return nil, newValidationError("question_pool", err.Error())
		}
	}
	return pool, nil
}

// Get returns the session with its paper and recorded results.
func (s *SessionService) Get(ctx context.Context, caller Identity, sessionID uuid.UUID) (*model.SessionDetail, error) {
	session, err := s.readable(ctx, caller, sessionID)
	if err != nil {
		return nil, err
	}

	paper, err := s.paper(ctx, session)
	if err != nil {
		return nil, err
	}
	results, err := s.sessions.ListResults(ctx, sessionID)
	if err != nil {
		return nil, storageError("list results", err)
	}

	return &model.SessionDetail{Session: session, Questions: paper, Results: results}, nil
}

// Questions returns the persisted paper. Repeated calls return the same
// order because the manifest is immutable.
func (s *SessionService) Questions(ctx context.Context, caller Identity, sessionID uuid.UUID) ([]model.PaperQuestion, error) {
	session, err := s.readable(ctx, caller, sessionID)
	if err != nil {
		return nil, err
	}
	return s.paper(ctx, session)
}

// State is the advisory countdown used by clients after a reload.
func (s *SessionService) State(ctx context.Context, caller Identity, sessionID uuid.UUID) (*model.SessionState, error) {
	session, err := s.readable(ctx, caller, sessionID)
	if err != nil {
		return nil, err
	}
	results, err := s.sessions.ListResults(ctx, sessionID)
	if err != nil {
		return nil, storageError("list results", err)
	}

	answered := make([]uuid.UUID, len(results))
	for i, r := range results {
		answered[i] = r.QuestionID
	}
	return &model.SessionState{
		SessionID:        session.ID,
		Status:           session.Status,
		RemainingSeconds: s.deadline.RemainingSeconds(session),
		Deadline:         s.deadline.Deadline(session),
		Answered:         answered,
	}, nil
}

// ListMine returns the caller's own sessions, newest first.
func (s *SessionService) ListMine(ctx context.Context, caller Identity) ([]model.Session, error) {
	sessions, err := s.sessions.ListSessionsByOwner(ctx, caller.UserID)
	if err != nil {
		return nil, storageError("list sessions", err)
	}
	if sessions == nil {
		sessions = []model.Session{}
	}
	return sessions, nil
}

// Complete ends the session on the owner's request. Completing an already
// completed session returns the stored record unchanged. A session whose
// deadline already passed is closed at its deadline instead of now.
func (s *SessionService) Complete(ctx context.Context, caller Identity, sessionID uuid.UUID) (*model.CompleteSessionResponse, error) {
	session, err := s.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !caller.owns(session) {
		return nil, ErrForbidden
	}

	var (
		completed *model.Session
		changed   bool
		expired   bool
	)
	err = s.sessions.WithLockedSession(ctx, sessionID, func(tx store.SessionTx) error {
		cur := tx.Session()
		if cur.Status == model.SessionStatusCompleted {
			completed = cur
			return nil
		}

		endedAt := s.now().UTC().Truncate(timePrecision)
		if s.deadline.Expired(cur) {
			endedAt = s.deadline.Deadline(cur)
			expired = true
		}
		if err := tx.Complete(ctx, endedAt); err != nil {
			return storageError("complete session", err)
		}
		completed, changed = tx.Session(), true
		return nil
	})
	if err != nil {
		return nil, lockError(err, sessionID)
	}

	if changed {
		s.hooks.completed(ctx, completed, expired)
		s.log.Info().Str("session_id", sessionID.String()).Bool("after_deadline", expired).Msg("Session completed")
	}
	return completeResponse(completed), nil
}

// Expire force-completes a session whose deadline has passed. It is the
// server-side trigger used by deadline timers and reports whether this call
// performed the transition.
func (s *SessionService) Expire(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	var (
		expired *model.Session
		ok      bool
	)
	err := s.sessions.WithLockedSession(ctx, sessionID, func(tx store.SessionTx) error {
		admitted, err := s.deadline.Admit(ctx, tx)
		if errors.Is(err, ErrSessionExpired) || admitted {
			return nil
		}
		if err != nil {
			return err
		}
		expired, ok = tx.Session(), true
		return nil
	})
	if err != nil {
		return false, lockError(err, sessionID)
	}
	if ok {
		s.hooks.completed(ctx, expired, true)
		s.log.Info().Str("session_id", sessionID.String()).Msg("Session expired")
	}
	return ok, nil
}

func (s *SessionService) lookup(ctx context.Context, sessionID uuid.UUID) (*model.Session, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Resource: "session", ID: sessionID.String()}
		}
		return nil, storageError("get session", err)
	}
	return session, nil
}

func (s *SessionService) readable(ctx context.Context, caller Identity, sessionID uuid.UUID) (*model.Session, error) {
	session, err := s.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !caller.canRead(session) {
		return nil, ErrForbidden
	}
	return session, nil
}

// paper reads through the cache; the manifest is the source of truth.
func (s *SessionService) paper(ctx context.Context, session *model.Session) ([]model.PaperQuestion, error) {
	if cached, ok, err := s.cache.GetPaper(ctx, session.ID); err != nil {
		s.log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("Paper cache read failed")
	} else if ok {
		return cached, nil
	}

	questions, err := s.questions.GetQuestionsByIDs(ctx, session.Manifest.QuestionIDs())
	if err != nil {
		return nil, storageError("get manifest questions", err)
	}
	paper := buildPaper(session.Manifest, indexQuestions(questions))
	if err := s.cache.SetPaper(ctx, session.ID, paper); err != nil {
		s.log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("Failed to cache session paper")
	}
	return paper, nil
}

func completeResponse(s *model.Session) *model.CompleteSessionResponse {
	resp := &model.CompleteSessionResponse{SessionID: s.ID, Status: s.Status}
	if s.EndedAt != nil {
		resp.EndedAt = *s.EndedAt
	}
	return resp
}

// buildPaper joins the manifest with question text and marks, keeping the
// manifest's question and option order. Questions removed from the bank
// after the session started are left out.
func buildPaper(manifest model.Manifest, questions map[uuid.UUID]model.Question) []model.PaperQuestion {
	paper := make([]model.PaperQuestion, 0, len(manifest))
	for _, item := range manifest {
		q, ok := questions[item.QuestionID]
		if !ok {
			continue
		}
		paper = append(paper, model.PaperQuestion{
			QuestionID: item.QuestionID,
			Text:       q.Text,
			Options:    item.Options,
			Marks:      q.Marks,
		})
	}
	return paper
}

func indexQuestions(questions []model.Question) map[uuid.UUID]model.Question {
	byID := make(map[uuid.UUID]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	return byID
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// poolSubject is the explicit subject, or the common subject of the pool.
func poolSubject(requested *int, pool []model.Question) *int {
	if requested != nil {
		id := *requested
		return &id
	}
	id := pool[0].SubjectID
	for _, q := range pool[1:] {
		if q.SubjectID != id {
			return nil
		}
	}
	return &id
}

// lockError maps errors returned from a locked section.
func lockError(err error, sessionID uuid.UUID) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &NotFoundError{Resource: "session", ID: sessionID.String()}
	case errors.Is(err, ErrSessionExpired), errors.Is(err, ErrStorage),
		errors.Is(err, ErrValidation), errors.Is(err, ErrForbidden), errors.Is(err, ErrNotFound):
		return err
	default:
		return storageError("locked session", err)
	}
}
