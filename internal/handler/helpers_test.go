package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/cache"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
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

type testServer struct {
	*httptest.Server
	store     *store.Memory
	clock     *fakeClock
	tokens    *service.TokenService
	subject   model.Subject
	questions []model.Question
}

// newTestServer wires the handlers over the memory store the same way the
// router does. Question i has correct answer "answer-i".
func newTestServer(t *testing.T, marks ...int) *testServer {
	t.Helper()

	ts := &testServer{
		store:  store.NewMemory(),
		clock:  &fakeClock{t: time.Now().UTC().Truncate(time.Second)},
		tokens: service.NewTokenService("handler-test-secret", time.Hour),
	}
	ts.store.SetClock(ts.clock.Now)
	ts.subject = ts.store.AddSubject("Kimia")
	for i, m := range marks {
		q, err := ts.store.AddQuestion(model.Question{
			SubjectID:     ts.subject.ID,
			Text:          fmt.Sprintf("question %d", i),
			Options:       []string{fmt.Sprintf("answer-%d", i), "wrong-a", "wrong-b"},
			CorrectAnswer: fmt.Sprintf("answer-%d", i),
			Marks:         m,
			Explanation:   fmt.Sprintf("because %d", i),
		})
		if err != nil {
			t.Fatalf("seed question: %v", err)
		}
		ts.questions = append(ts.questions, q)
	}

	log := zerolog.Nop()
	monitor := cache.NewLocalMonitor()
	opts := []service.Option{service.WithClock(ts.clock.Now), service.WithPublisher(monitor)}
	sessions := service.NewSessionService(ts.store, ts.store, service.NewSeededRandomizer(3, 4), log, opts...)
	submissions := service.NewSubmissionService(ts.store, ts.store, log, opts...)

	sessionH := NewSessionHandler(sessions, submissions, log)
	subjectH := NewSubjectHandler(service.NewSubjectService(ts.store), log)
	monitorH := NewMonitorHandler(service.NewMonitorService(ts.store, ts.store, opts...), monitor, log)
	wsH := NewWSHandler(sessions, submissions, log, nil)

	r := gin.New()
	r.Use(response.RequestIDMiddleware())
	api := r.Group("/api/v1", middleware.RequireJWT(ts.tokens))
	api.GET("/subjects", subjectH.GetAll)
	api.GET("/sessions", sessionH.ListMine)
	api.POST("/sessions", sessionH.Start)
	api.GET("/sessions/:session_id", sessionH.Get)
	api.GET("/sessions/:session_id/questions", sessionH.Questions)
	api.GET("/sessions/:session_id/state", sessionH.State)
	api.POST("/sessions/:session_id/answers", sessionH.Submit)
	api.POST("/sessions/:session_id/complete", sessionH.Complete)
	api.GET("/sessions/:session_id/results", sessionH.Results)
	api.GET("/review/subjects/:subject_id/monitor", middleware.RequireReviewer(), monitorH.MonitorSubjectSSE)
	r.GET("/ws/v1/sessions/:session_id/stream", middleware.RequireJWT(ts.tokens), wsH.SessionStream)

	ts.Server = httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) token(t *testing.T, userID int, role model.Role) string {
	t.Helper()
	tok, err := ts.tokens.Issue(userID, role)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

func (e envelope) code() string {
	if e.Error == nil {
		return ""
	}
	return e.Error.Code
}

// call performs a request and decodes the envelope. raw is the body as sent.
func (ts *testServer) call(t *testing.T, method, path, token string, body interface{}) (int, envelope, string) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode %s %s: %v (%s)", method, path, err, raw)
	}
	return resp.StatusCode, env, string(raw)
}

// startSession opens a session over every seeded question.
func (ts *testServer) startSession(t *testing.T, token string, minutes int) uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, len(ts.questions))
	for i, q := range ts.questions {
		ids[i] = q.ID
	}
	status, env, raw := ts.call(t, http.MethodPost, "/api/v1/sessions", token, map[string]interface{}{
		"question_ids":     ids,
		"duration_minutes": minutes,
	})
	if status != http.StatusCreated {
		t.Fatalf("start session: %d %s", status, raw)
	}
	var resp model.StartSessionResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatal(err)
	}
	return resp.SessionID
}
