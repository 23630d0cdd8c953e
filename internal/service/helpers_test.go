package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.MonitorEvent
}

func (p *recordingPublisher) Publish(_ context.Context, _ int, evt model.MonitorEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) types() []model.MonitorEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.MonitorEventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type recordingQueue struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (q *recordingQueue) Enqueue(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return nil
}

func (q *recordingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

type fixture struct {
	store       *store.Memory
	clock       *fakeClock
	publisher   *recordingPublisher
	queue       *recordingQueue
	sessions    *SessionService
	submissions *SubmissionService
	results     *ResultService
	subject     model.Subject
	questions   []model.Question
}

var (
	alice   = Identity{UserID: 1, Role: model.RoleStudent}
	bob     = Identity{UserID: 2, Role: model.RoleStudent}
	proctor = Identity{UserID: 90, Role: model.RoleReviewer}
)

// newFixture seeds one subject with a question per entry in marks. The
// correct answer of question i is "answer-i".
func newFixture(t *testing.T, marks ...int) *fixture {
	t.Helper()

	f := &fixture{
		store:     store.NewMemory(),
		clock:     newFakeClock(),
		publisher: &recordingPublisher{},
		queue:     &recordingQueue{},
	}
	f.store.SetClock(f.clock.Now)
	f.subject = f.store.AddSubject("Matematika")

	for i, m := range marks {
		q, err := f.store.AddQuestion(model.Question{
			SubjectID:     f.subject.ID,
			Text:          fmt.Sprintf("question %d", i),
			Options:       []string{fmt.Sprintf("answer-%d", i), "distractor-a", "distractor-b", "distractor-c"},
			CorrectAnswer: fmt.Sprintf("answer-%d", i),
			Marks:         m,
			Explanation:   fmt.Sprintf("because %d", i),
		})
		if err != nil {
			t.Fatalf("seed question %d: %v", i, err)
		}
		f.questions = append(f.questions, q)
	}

	opts := []Option{WithClock(f.clock.Now), WithPublisher(f.publisher), WithScoreQueue(f.queue)}
	log := zerolog.Nop()
	f.sessions = NewSessionService(f.store, f.store, NewSeededRandomizer(1, 2), log, opts...)
	f.submissions = NewSubmissionService(f.store, f.store, log, opts...)
	f.results = NewResultService(f.store, f.store)
	return f
}

// start opens a session over the given questions (all when none given).
func (f *fixture) start(t *testing.T, caller Identity, minutes int, questions ...model.Question) uuid.UUID {
	t.Helper()
	if len(questions) == 0 {
		questions = f.questions
	}
	ids := make([]uuid.UUID, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	resp, err := f.sessions.Start(context.Background(), caller, model.StartSessionRequest{
		QuestionIDs:     ids,
		DurationMinutes: minutes,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return resp.SessionID
}

func (f *fixture) session(t *testing.T, id uuid.UUID) *model.Session {
	t.Helper()
	s, err := f.store.GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	return s
}

func (f *fixture) submit(caller Identity, sessionID uuid.UUID, q model.Question, option string) (*model.SubmitAnswerResponse, error) {
	return f.submissions.Submit(context.Background(), caller, sessionID, model.SubmitAnswerRequest{
		QuestionID:     q.ID,
		SelectedOption: option,
	})
}
