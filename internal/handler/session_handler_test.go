package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
)

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, 1, 2, 1)
	student := ts.token(t, 11, model.RoleStudent)

	sessionID := ts.startSession(t, student, 30)
	base := "/api/v1/sessions/" + sessionID.String()

	status, _, raw := ts.call(t, http.MethodGet, base+"/questions", student, nil)
	if status != http.StatusOK {
		t.Fatalf("questions: %d %s", status, raw)
	}
	if strings.Contains(raw, "correct_answer") {
		t.Fatalf("paper leaks the correct answer: %s", raw)
	}

	answers := []struct {
		question model.Question
		selected string
		want     bool
	}{
		{ts.questions[0], "answer-0", true},
		{ts.questions[1], "wrong-a", false},
		{ts.questions[2], "answer-2", true},
	}
	for _, a := range answers {
		status, env, raw := ts.call(t, http.MethodPost, base+"/answers", student, map[string]interface{}{
			"question_id":     a.question.ID,
			"selected_option": a.selected,
		})
		if status != http.StatusOK {
			t.Fatalf("submit: %d %s", status, raw)
		}
		var resp model.SubmitAnswerResponse
		if err := json.Unmarshal(env.Data, &resp); err != nil {
			t.Fatal(err)
		}
		if resp.IsCorrect != a.want {
			t.Errorf("%s: is_correct = %v, want %v", a.selected, resp.IsCorrect, a.want)
		}
	}

	_, _, raw = ts.call(t, http.MethodGet, base+"/results", student, nil)
	if strings.Contains(raw, "because") {
		t.Fatalf("explanations revealed before completion: %s", raw)
	}

	status, env, raw := ts.call(t, http.MethodPost, base+"/complete", student, nil)
	if status != http.StatusOK {
		t.Fatalf("complete: %d %s", status, raw)
	}
	var done model.CompleteSessionResponse
	if err := json.Unmarshal(env.Data, &done); err != nil {
		t.Fatal(err)
	}
	if done.Status != model.SessionStatusCompleted {
		t.Fatalf("status = %s", done.Status)
	}

	status, env, raw = ts.call(t, http.MethodGet, base+"/results", student, nil)
	if status != http.StatusOK {
		t.Fatalf("results: %d %s", status, raw)
	}
	var view model.ResultsView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatal(err)
	}
	if view.Score != 2 || view.Total != 4 || view.Percentage != 50 {
		t.Errorf("summary = %d/%d/%v, want 2/4/50", view.Score, view.Total, view.Percentage)
	}
	if !strings.Contains(raw, "because 1") {
		t.Errorf("explanations missing after completion: %s", raw)
	}

	status, env, _ = ts.call(t, http.MethodPost, base+"/answers", student, map[string]interface{}{
		"question_id":     ts.questions[1].ID,
		"selected_option": "answer-1",
	})
	if status != http.StatusConflict || env.code() != "SESSION_EXPIRED" {
		t.Errorf("late submit = %d %s, want 409 SESSION_EXPIRED", status, env.code())
	}

	status, env, _ = ts.call(t, http.MethodGet, "/api/v1/sessions", student, nil)
	if status != http.StatusOK || !strings.Contains(string(env.Data), sessionID.String()) {
		t.Errorf("ListMine = %d %s", status, env.Data)
	}
}

func TestSessionErrors(t *testing.T) {
	ts := newTestServer(t, 1, 1)
	alice := ts.token(t, 1, model.RoleStudent)
	bob := ts.token(t, 2, model.RoleStudent)
	sessionID := ts.startSession(t, alice, 30)
	base := "/api/v1/sessions/" + sessionID.String()

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{"no token", http.MethodGet, "/api/v1/sessions", "", nil, http.StatusUnauthorized, "TOKEN_REQUIRED"},
		{"bad id", http.MethodGet, "/api/v1/sessions/not-a-uuid", alice, nil, http.StatusBadRequest, "INVALID_ID"},
		{"unknown session", http.MethodGet, "/api/v1/sessions/" + uuid.NewString(), alice, nil, http.StatusNotFound, "SESSION_NOT_FOUND"},
		{"missing duration", http.MethodPost, "/api/v1/sessions", alice, map[string]interface{}{"subject_id": ts.subject.ID}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown subject", http.MethodPost, "/api/v1/sessions", alice, map[string]interface{}{"subject_id": 999, "duration_minutes": 10}, http.StatusNotFound, "SUBJECT_NOT_FOUND"},
		{"unknown question", http.MethodPost, "/api/v1/sessions", alice, map[string]interface{}{"question_ids": []uuid.UUID{uuid.New()}, "duration_minutes": 10}, http.StatusNotFound, "QUESTION_NOT_FOUND"},
		{"read other's session", http.MethodGet, base, bob, nil, http.StatusForbidden, "NOT_SESSION_OWNER"},
		{"answer other's session", http.MethodPost, base + "/answers", bob, map[string]interface{}{"question_id": ts.questions[0].ID, "selected_option": "answer-0"}, http.StatusForbidden, "NOT_SESSION_OWNER"},
		{"complete other's session", http.MethodPost, base + "/complete", bob, nil, http.StatusForbidden, "NOT_SESSION_OWNER"},
		{"empty option", http.MethodPost, base + "/answers", alice, map[string]interface{}{"question_id": ts.questions[0].ID, "selected_option": ""}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"question outside manifest", http.MethodPost, base + "/answers", alice, map[string]interface{}{"question_id": uuid.New(), "selected_option": "x"}, http.StatusNotFound, "QUESTION_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env, raw := ts.call(t, tt.method, tt.path, tt.token, tt.body)
			if status != tt.wantStatus || env.code() != tt.wantCode {
				t.Errorf("got %d %s, want %d %s (%s)", status, env.code(), tt.wantStatus, tt.wantCode, raw)
			}
		})
	}
}

func TestReviewerReadsButCannotWrite(t *testing.T) {
	ts := newTestServer(t, 1)
	student := ts.token(t, 1, model.RoleStudent)
	reviewer := ts.token(t, 50, model.RoleReviewer)
	base := "/api/v1/sessions/" + ts.startSession(t, student, 30).String()

	if status, _, raw := ts.call(t, http.MethodGet, base, reviewer, nil); status != http.StatusOK {
		t.Fatalf("reviewer get: %d %s", status, raw)
	}
	if status, env, _ := ts.call(t, http.MethodPost, base+"/complete", reviewer, nil); status != http.StatusForbidden {
		t.Errorf("reviewer complete = %d %s, want 403", status, env.code())
	}
}

func TestStateAfterDeadline(t *testing.T) {
	ts := newTestServer(t, 1, 1)
	student := ts.token(t, 1, model.RoleStudent)
	sessionID := ts.startSession(t, student, 1)
	base := "/api/v1/sessions/" + sessionID.String()

	_, env, _ := ts.call(t, http.MethodGet, base+"/state", student, nil)
	var state model.SessionState
	if err := json.Unmarshal(env.Data, &state); err != nil {
		t.Fatal(err)
	}
	if state.RemainingSeconds != 60 {
		t.Errorf("remaining = %d, want 60", state.RemainingSeconds)
	}

	ts.clock.Advance(61 * time.Second)
	status, env, _ := ts.call(t, http.MethodPost, base+"/answers", student, map[string]interface{}{
		"question_id":     ts.questions[0].ID,
		"selected_option": "answer-0",
	})
	if status != http.StatusConflict || env.code() != "SESSION_EXPIRED" {
		t.Fatalf("submit after deadline = %d %s", status, env.code())
	}

	_, env, _ = ts.call(t, http.MethodGet, base+"/state", student, nil)
	if err := json.Unmarshal(env.Data, &state); err != nil {
		t.Fatal(err)
	}
	if state.Status != model.SessionStatusCompleted || state.RemainingSeconds != 0 {
		t.Errorf("state = %s %d, want COMPLETED 0", state.Status, state.RemainingSeconds)
	}
}

func TestSubjects(t *testing.T) {
	ts := newTestServer(t)
	status, env, raw := ts.call(t, http.MethodGet, "/api/v1/subjects", ts.token(t, 1, model.RoleStudent), nil)
	if status != http.StatusOK {
		t.Fatalf("subjects: %d %s", status, raw)
	}
	var body struct {
		Subjects []model.Subject `json:"subjects"`
	}
	if err := json.Unmarshal(env.Data, &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Subjects) != 1 || body.Subjects[0].Name != "Kimia" {
		t.Errorf("subjects = %+v", body.Subjects)
	}
}
