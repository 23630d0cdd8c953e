package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// Memory is an in-process implementation of QuestionReader and
// SessionStore. It backs STORAGE_DRIVER=memory and the package tests.
type Memory struct {
	mu     sync.RWMutex
	lockMu sync.Mutex // serializes WithLockedSession

	subjects  map[int]model.Subject
	questions map[uuid.UUID]model.Question
	sessions  map[uuid.UUID]model.Session
	results   map[uuid.UUID]map[uuid.UUID]model.Result // session -> question -> result

	nextSubjectID int
	now           func() time.Time
}

var (
	_ QuestionReader = (*Memory)(nil)
	_ SessionStore   = (*Memory)(nil)
)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		subjects:  map[int]model.Subject{},
		questions: map[uuid.UUID]model.Question{},
		sessions:  map[uuid.UUID]model.Session{},
		results:   map[uuid.UUID]map[uuid.UUID]model.Result{},
		now:       time.Now,
	}
}

// SetClock replaces the clock used for record timestamps.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// AddSubject creates a subject.
func (m *Memory) AddSubject(name string) model.Subject {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSubjectID++
	now := m.now()
	s := model.Subject{ID: m.nextSubjectID, Name: name, CreatedAt: now, UpdatedAt: now}
	m.subjects[s.ID] = s
	return s
}

// AddQuestion stores a validated question under an existing subject.
func (m *Memory) AddQuestion(q model.Question) (model.Question, error) {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if err := q.Validate(); err != nil {
		return model.Question{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subjects[q.SubjectID]; !ok {
		return model.Question{}, fmt.Errorf("subject %d: %w", q.SubjectID, ErrNotFound)
	}
	q.Options = slices.Clone(q.Options)
	m.questions[q.ID] = q
	return cloneQuestion(q), nil
}

// ─── QuestionReader ───────────────────────────────────────────────────

func (m *Memory) ListSubjects(_ context.Context) ([]model.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Subject, 0, len(m.subjects))
	for _, s := range m.subjects {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) GetSubject(_ context.Context, id int) (*model.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subjects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *Memory) ListQuestionsBySubject(_ context.Context, subjectID int) ([]model.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Question
	for _, q := range m.questions {
		if q.SubjectID == subjectID {
			out = append(out, cloneQuestion(q))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (m *Memory) GetQuestionsByIDs(_ context.Context, ids []uuid.UUID) ([]model.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Question, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if q, ok := m.questions[id]; ok {
			out = append(out, cloneQuestion(q))
		}
	}
	return out, nil
}

// ─── SessionStore ─────────────────────────────────────────────────────

func (m *Memory) CreateSession(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = uuid.New()
	m.sessions[s.ID] = cloneSession(*s)
	return nil
}

func (m *Memory) GetSession(_ context.Context, id uuid.UUID) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneSession(s)
	return &out, nil
}

func (m *Memory) ListSessionsByOwner(_ context.Context, ownerID int) ([]model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Session
	for _, s := range m.sessions {
		if s.OwnerID == ownerID {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (m *Memory) ListSessionsBySubject(_ context.Context, subjectID int) ([]model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Session
	for _, s := range m.sessions {
		if s.SubjectID != nil && *s.SubjectID == subjectID {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *Memory) CountAnswered(_ context.Context, sessionIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[uuid.UUID]int, len(sessionIDs))
	for _, id := range sessionIDs {
		if n := len(m.results[id]); n > 0 {
			counts[id] = n
		}
	}
	return counts, nil
}

func (m *Memory) ListResults(_ context.Context, sessionID uuid.UUID) ([]model.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Result, 0, len(m.results[sessionID]))
	for _, r := range m.results[sessionID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) WithLockedSession(_ context.Context, id uuid.UUID, fn func(tx SessionTx) error) error {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()

	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	locked := cloneSession(s)
	tx := &memoryTx{store: m, session: &locked, staged: map[uuid.UUID]model.Result{}}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// SaveScores only touches sessions that are already COMPLETED.
func (m *Memory) SaveScores(_ context.Context, scores map[uuid.UUID]model.ScoreSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sum := range scores {
		s, ok := m.sessions[id]
		if !ok || s.Status != model.SessionStatusCompleted {
			continue
		}
		score, total, pct := sum.Score, sum.Total, sum.Percentage
		s.Score, s.Total, s.Percentage = &score, &total, &pct
		m.sessions[id] = s
	}
	return nil
}

// memoryTx stages writes until the locked section succeeds.
type memoryTx struct {
	store   *Memory
	session *model.Session
	endedAt *time.Time
	staged  map[uuid.UUID]model.Result
}

func (tx *memoryTx) Session() *model.Session {
	return tx.session
}

func (tx *memoryTx) Complete(_ context.Context, endedAt time.Time) error {
	if tx.session.Status == model.SessionStatusCompleted {
		return nil
	}
	tx.endedAt = &endedAt
	tx.session.Status = model.SessionStatusCompleted
	tx.session.EndedAt = &endedAt
	return nil
}

func (tx *memoryTx) UpsertResult(_ context.Context, r *model.Result) error {
	tx.store.mu.RLock()
	now := tx.store.now()
	existing, ok := tx.store.results[r.SessionID][r.QuestionID]
	tx.store.mu.RUnlock()

	if staged, isStaged := tx.staged[r.QuestionID]; isStaged {
		existing, ok = staged, true
	}

	if ok {
		r.ID = existing.ID
		r.CreatedAt = existing.CreatedAt
	} else {
		r.ID = uuid.New()
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	tx.staged[r.QuestionID] = *r
	return nil
}

func (tx *memoryTx) commit() {
	m := tx.store
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sessions[tx.session.ID]
	if tx.endedAt != nil && s.Status.CanTransitionTo(model.SessionStatusCompleted) {
		s.Status = model.SessionStatusCompleted
		ended := *tx.endedAt
		s.EndedAt = &ended
		m.sessions[s.ID] = s
	}

	if len(tx.staged) == 0 {
		return
	}
	byQuestion, ok := m.results[tx.session.ID]
	if !ok {
		byQuestion = map[uuid.UUID]model.Result{}
		m.results[tx.session.ID] = byQuestion
	}
	for qid, r := range tx.staged {
		byQuestion[qid] = r
	}
}

func cloneQuestion(q model.Question) model.Question {
	q.Options = slices.Clone(q.Options)
	return q
}

func cloneSession(s model.Session) model.Session {
	if s.Manifest != nil {
		manifest := make(model.Manifest, len(s.Manifest))
		for i, item := range s.Manifest {
			manifest[i] = model.ManifestItem{QuestionID: item.QuestionID, Options: slices.Clone(item.Options)}
		}
		s.Manifest = manifest
	}
	if s.EndedAt != nil {
		ended := *s.EndedAt
		s.EndedAt = &ended
	}
	if s.SubjectID != nil {
		sid := *s.SubjectID
		s.SubjectID = &sid
	}
	return s
}
