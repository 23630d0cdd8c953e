package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/metrics"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// PaperCache stores the owner-facing paper of a session. A paper never
// changes once written, so entries need no invalidation.
type PaperCache interface {
	GetPaper(ctx context.Context, sessionID uuid.UUID) ([]model.PaperQuestion, bool, error)
	SetPaper(ctx context.Context, sessionID uuid.UUID, paper []model.PaperQuestion) error
}

// MonitorPublisher fans session events out to reviewers of a subject.
type MonitorPublisher interface {
	Publish(ctx context.Context, subjectID int, evt model.MonitorEvent) error
}

// ScoreQueue receives completed sessions whose score snapshot must be
// persisted by the scoring worker.
type ScoreQueue interface {
	Enqueue(ctx context.Context, sessionID uuid.UUID) error
}

type nopPaperCache struct{}

func (nopPaperCache) GetPaper(context.Context, uuid.UUID) ([]model.PaperQuestion, bool, error) {
	return nil, false, nil
}
func (nopPaperCache) SetPaper(context.Context, uuid.UUID, []model.PaperQuestion) error { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, int, model.MonitorEvent) error { return nil }

type nopQueue struct{}

func (nopQueue) Enqueue(context.Context, uuid.UUID) error { return nil }

// Option configures the session and submission services.
type Option func(*options)

type options struct {
	clock     Clock
	cache     PaperCache
	publisher MonitorPublisher
	queue     ScoreQueue
}

func WithClock(c Clock) Option                { return func(o *options) { o.clock = c } }
func WithPaperCache(c PaperCache) Option      { return func(o *options) { o.cache = c } }
func WithPublisher(p MonitorPublisher) Option { return func(o *options) { o.publisher = p } }
func WithScoreQueue(q ScoreQueue) Option      { return func(o *options) { o.queue = q } }

func buildOptions(opts []Option) options {
	o := options{
		clock:     time.Now,
		cache:     nopPaperCache{},
		publisher: nopPublisher{},
		queue:     nopQueue{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// sessionHooks runs the best-effort side effects that follow a committed
// state change. Failures are logged and never fail the request.
type sessionHooks struct {
	publisher MonitorPublisher
	queue     ScoreQueue
	now       Clock
	log       zerolog.Logger
}

func newSessionHooks(o options, log zerolog.Logger) *sessionHooks {
	return &sessionHooks{publisher: o.publisher, queue: o.queue, now: o.clock, log: log}
}

func (h *sessionHooks) publish(ctx context.Context, s *model.Session, evt model.MonitorEvent) {
	if s.SubjectID == nil {
		return
	}
	evt.SessionID = s.ID
	evt.OwnerID = s.OwnerID
	evt.SubjectID = *s.SubjectID
	evt.At = h.now().UTC()
	if err := h.publisher.Publish(ctx, *s.SubjectID, evt); err != nil {
		h.log.Warn().Err(err).Str("session_id", s.ID.String()).Str("event", string(evt.Type)).Msg("Failed to publish monitor event")
	}
}

func (h *sessionHooks) started(ctx context.Context, s *model.Session) {
	metrics.SessionsStarted.Inc()
	h.publish(ctx, s, model.MonitorEvent{Type: model.MonitorEventStarted})
}

func (h *sessionHooks) answered(ctx context.Context, s *model.Session, questionID uuid.UUID, correct bool) {
	metrics.AnswersSubmitted.WithLabelValues(boolLabel(correct)).Inc()
	h.publish(ctx, s, model.MonitorEvent{Type: model.MonitorEventAnswered, QuestionID: &questionID, IsCorrect: &correct})
}

// completed runs after a transition to COMPLETED has been committed.
func (h *sessionHooks) completed(ctx context.Context, s *model.Session, expired bool) {
	evt := model.MonitorEvent{Type: model.MonitorEventCompleted}
	reason := "owner"
	if expired {
		evt.Type = model.MonitorEventExpired
		reason = "expired"
	}
	metrics.SessionsCompleted.WithLabelValues(reason).Inc()

	if err := h.queue.Enqueue(ctx, s.ID); err != nil {
		h.log.Error().Err(err).Str("session_id", s.ID.String()).Msg("Failed to enqueue score snapshot")
	}
	h.publish(ctx, s, evt)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
