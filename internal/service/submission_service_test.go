package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
)

func TestSubmitChecks(t *testing.T) {
	f := newFixture(t, 1, 1, 1)
	id := f.start(t, alice, 10, f.questions[0], f.questions[1])
	done := f.start(t, alice, 10, f.questions[0])
	if _, err := f.sessions.Complete(context.Background(), alice, done); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		caller  Identity
		session uuid.UUID
		q       model.Question
		option  string
		wantErr error
	}{
		{"unknown session", alice, uuid.New(), f.questions[0], "answer-0", ErrNotFound},
		{"question not in manifest", alice, id, f.questions[2], "answer-2", ErrNotFound},
		{"not found before forbidden", bob, id, f.questions[2], "answer-2", ErrNotFound},
		{"other user", bob, id, f.questions[0], "answer-0", ErrForbidden},
		{"reviewer cannot answer", proctor, id, f.questions[0], "answer-0", ErrForbidden},
		{"completed session", alice, done, f.questions[0], "answer-0", ErrSessionExpired},
		{"empty option", alice, id, f.questions[0], "", ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.submit(tt.caller, tt.session, tt.q, tt.option)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	for _, sid := range []uuid.UUID{id, done} {
		results, _ := f.store.ListResults(context.Background(), sid)
		if len(results) != 0 {
			t.Errorf("session %s: rejected submissions wrote %d results", sid, len(results))
		}
	}
}

func TestSubmitScoresExactMatch(t *testing.T) {
	f := newFixture(t, 1)
	id := f.start(t, alice, 10)

	tests := []struct {
		option string
		want   bool
	}{
		{"answer-0", true},
		{"Answer-0", false},
		{"answer-0 ", false},
		{"distractor-a", false},
		{"not an option", false},
	}
	for _, tt := range tests {
		resp, err := f.submit(alice, id, f.questions[0], tt.option)
		if err != nil {
			t.Fatalf("%q: %v", tt.option, err)
		}
		if resp.IsCorrect != tt.want {
			t.Errorf("%q: is_correct = %v, want %v", tt.option, resp.IsCorrect, tt.want)
		}
	}
}

func TestSubmitUpsert(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	id := f.start(t, alice, 10)

	if _, err := f.submit(alice, id, f.questions[0], "distractor-b"); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(5 * time.Second)
	resp, err := f.submit(alice, id, f.questions[0], "answer-0")
	if err != nil {
		t.Fatal(err)
	}
	if !resp.IsCorrect {
		t.Error("second answer should be correct")
	}

	results, _ := f.store.ListResults(ctx, id)
	if len(results) != 1 {
		t.Fatalf("results = %d rows, want 1", len(results))
	}
	r := results[0]
	if r.SelectedOption != "answer-0" || !r.IsCorrect {
		t.Errorf("result = %+v, want the second answer", r)
	}
	if !r.UpdatedAt.After(r.CreatedAt) {
		t.Errorf("updated_at %s not after created_at %s", r.UpdatedAt, r.CreatedAt)
	}
}

func TestSubmitConcurrentRetries(t *testing.T) {
	f := newFixture(t, 1, 1)
	id := f.start(t, alice, 10)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := f.questions[i%2]
			if _, err := f.submit(alice, id, q, q.CorrectAnswer); err != nil {
				t.Errorf("submit %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	results, _ := f.store.ListResults(context.Background(), id)
	if len(results) != 2 {
		t.Errorf("results = %d rows, want 2", len(results))
	}
}

func TestSubmitRacingComplete(t *testing.T) {
	f := newFixture(t, 1, 1, 1, 1)
	ctx := context.Background()
	id := f.start(t, alice, 10)

	var wg sync.WaitGroup
	wg.Add(len(f.questions) + 1)
	go func() {
		defer wg.Done()
		if _, err := f.sessions.Complete(ctx, alice, id); err != nil {
			t.Errorf("complete: %v", err)
		}
	}()
	for _, q := range f.questions {
		go func(q model.Question) {
			defer wg.Done()
			_, err := f.submit(alice, id, q, q.CorrectAnswer)
			if err != nil && !errors.Is(err, ErrSessionExpired) {
				t.Errorf("submit: %v", err)
			}
		}(q)
	}
	wg.Wait()

	if _, err := f.submit(alice, id, f.questions[0], "answer-0"); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("submit after complete: err = %v, want ErrSessionExpired", err)
	}
}

// TestDeadlineScenario: a one-minute session with two questions, the first
// answered in time and the second after 61 seconds.
func TestDeadlineScenario(t *testing.T) {
	f := newFixture(t, 2, 3)
	ctx := context.Background()
	id := f.start(t, alice, 1)
	q1, q2 := f.questions[0], f.questions[1]

	resp, err := f.submit(alice, id, q1, q1.CorrectAnswer)
	if err != nil || !resp.IsCorrect {
		t.Fatalf("first submit: resp=%+v err=%v", resp, err)
	}

	f.clock.Advance(61 * time.Second)
	if _, err := f.submit(alice, id, q2, q2.CorrectAnswer); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("late submit: err = %v, want ErrSessionExpired", err)
	}

	s := f.session(t, id)
	if s.Status != model.SessionStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", s.Status)
	}
	if want := s.StartedAt.Add(time.Minute); s.EndedAt == nil || !s.EndedAt.Equal(want) {
		t.Errorf("ended_at = %v, want %s", s.EndedAt, want)
	}

	view, err := f.submissions.ListResults(ctx, alice, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Results) != 1 || view.Results[0].QuestionID != q1.ID {
		t.Fatalf("results = %+v, want only question 1", view.Results)
	}
	if view.Total != q1.Marks+q2.Marks {
		t.Errorf("total = %d, want %d", view.Total, q1.Marks+q2.Marks)
	}
	if view.Score != q1.Marks {
		t.Errorf("score = %d, want %d", view.Score, q1.Marks)
	}
	if f.queue.len() != 1 {
		t.Errorf("score queue = %d, want 1", f.queue.len())
	}
}

func TestScoringScenario(t *testing.T) {
	f := newFixture(t, 1, 2, 1)
	ctx := context.Background()
	id := f.start(t, alice, 30)

	for _, q := range []model.Question{f.questions[0], f.questions[2]} {
		if _, err := f.submit(alice, id, q, q.CorrectAnswer); err != nil {
			t.Fatal(err)
		}
	}

	view, err := f.submissions.ListResults(ctx, alice, id)
	if err != nil {
		t.Fatal(err)
	}
	if view.Score != 2 || view.Total != 4 || view.Percentage != 50 {
		t.Errorf("summary = %+v, want 2/4/50", view.ScoreSummary)
	}

	sum, err := f.results.Summarize(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if sum != view.ScoreSummary {
		t.Errorf("Summarize = %+v, ListResults = %+v", sum, view.ScoreSummary)
	}
}

func TestListResultsRevealPolicy(t *testing.T) {
	f := newFixture(t, 1, 1)
	ctx := context.Background()
	id := f.start(t, alice, 30)

	if _, err := f.submit(alice, id, f.questions[0], "distractor-a"); err != nil {
		t.Fatal(err)
	}

	view, err := f.submissions.ListResults(ctx, alice, id)
	if err != nil {
		t.Fatal(err)
	}
	if l := view.Results[0]; l.CorrectAnswer != "" || l.Explanation != "" {
		t.Errorf("in-progress results reveal the answer: %+v", l)
	}
	if l := view.Results[0]; l.Text != f.questions[0].Text || l.Marks != 1 || l.SelectedOption != "distractor-a" {
		t.Errorf("line = %+v", l)
	}

	if _, err := f.sessions.Complete(ctx, alice, id); err != nil {
		t.Fatal(err)
	}
	for _, caller := range []Identity{alice, proctor} {
		view, err := f.submissions.ListResults(ctx, caller, id)
		if err != nil {
			t.Fatal(err)
		}
		if l := view.Results[0]; l.CorrectAnswer != "answer-0" || l.Explanation != "because 0" {
			t.Errorf("user %d: completed results hide the answer: %+v", caller.UserID, l)
		}
	}

	if _, err := f.submissions.ListResults(ctx, bob, id); !errors.Is(err, ErrForbidden) {
		t.Errorf("bob: err = %v, want ErrForbidden", err)
	}
}

// TestIsCorrectConsistency checks after every write that each stored result
// agrees with the canonical answer of its question.
func TestIsCorrectConsistency(t *testing.T) {
	f := newFixture(t, 1, 2, 3, 1)
	ctx := context.Background()
	id := f.start(t, alice, 60)
	byID := indexQuestions(f.questions)
	rng := rand.New(rand.NewPCG(5, 8))

	for i := 0; i < 200; i++ {
		q := f.questions[rng.IntN(len(f.questions))]
		if _, err := f.submit(alice, id, q, q.Options[rng.IntN(len(q.Options))]); err != nil {
			t.Fatal(err)
		}
		results, _ := f.store.ListResults(ctx, id)
		for _, r := range results {
			if want := r.SelectedOption == byID[r.QuestionID].CorrectAnswer; r.IsCorrect != want {
				t.Fatalf("write %d: result %+v has is_correct=%v, want %v", i, r, r.IsCorrect, want)
			}
		}
	}
}
