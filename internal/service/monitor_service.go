package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/store"
)

// MonitorService builds the reviewer's view of a subject's sessions.
type MonitorService struct {
	sessions  store.SessionStore
	questions store.QuestionReader
	deadline  *DeadlineEnforcer
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(sessions store.SessionStore, questions store.QuestionReader, opts ...Option) *MonitorService {
	o := buildOptions(opts)
	return &MonitorService{sessions: sessions, questions: questions, deadline: NewDeadlineEnforcer(o.clock)}
}

// Snapshot lists every session of a subject with its progress. Only
// reviewing roles may call it.
func (s *MonitorService) Snapshot(ctx context.Context, caller Identity, subjectID int) (*model.MonitorSnapshot, error) {
	if !caller.Role.IsReviewer() {
		return nil, ErrForbidden
	}

	// Subject and sessions are independent reads; fetch them concurrently.
	var (
		subject     *model.Subject
		sessions    []model.Session
		subjectErr  error
		sessionsErr error
		wg          sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		subject, subjectErr = s.questions.GetSubject(ctx, subjectID)
	}()
	go func() {
		defer wg.Done()
		sessions, sessionsErr = s.sessions.ListSessionsBySubject(ctx, subjectID)
	}()
	wg.Wait()

	if subjectErr != nil {
		if errors.Is(subjectErr, store.ErrNotFound) {
			return nil, &NotFoundError{Resource: "subject", ID: fmt.Sprint(subjectID)}
		}
		return nil, storageError("get subject", subjectErr)
	}
	if sessionsErr != nil {
		return nil, storageError("list subject sessions", sessionsErr)
	}

	ids := make([]uuid.UUID, len(sessions))
	for i := range sessions {
		ids[i] = sessions[i].ID
	}
	answered, err := s.sessions.CountAnswered(ctx, ids)
	if err != nil {
		return nil, storageError("count answered", err)
	}

	snap := &model.MonitorSnapshot{Subject: *subject, Sessions: make([]model.MonitorEntry, 0, len(sessions))}
	for i := range sessions {
		sess := &sessions[i]
		snap.Stats.TotalStarted++
		if sess.Status == model.SessionStatusCompleted {
			snap.Stats.Completed++
		} else {
			snap.Stats.InProgress++
		}
		snap.Sessions = append(snap.Sessions, model.MonitorEntry{
			SessionID:        sess.ID,
			OwnerID:          sess.OwnerID,
			Status:           sess.Status,
			StartedAt:        sess.StartedAt,
			EndedAt:          sess.EndedAt,
			RemainingSeconds: s.deadline.RemainingSeconds(sess),
			Answered:         answered[sess.ID],
			TotalQuestions:   len(sess.Manifest),
			Score:            sess.Score,
			Percentage:       sess.Percentage,
		})
	}
	return snap, nil
}
