package model

import (
	"time"

	"github.com/google/uuid"
)

// MonitorEventType names a live monitor event.
type MonitorEventType string

const (
	MonitorEventStarted   MonitorEventType = "session_started"
	MonitorEventAnswered  MonitorEventType = "answer_submitted"
	MonitorEventCompleted MonitorEventType = "session_completed"
	MonitorEventExpired   MonitorEventType = "session_expired"
)

// MonitorEvent is published to reviewers following a subject.
type MonitorEvent struct {
	Type       MonitorEventType `json:"type"`
	SessionID  uuid.UUID        `json:"session_id"`
	OwnerID    int              `json:"owner_id"`
	SubjectID  int              `json:"subject_id"`
	QuestionID *uuid.UUID       `json:"question_id,omitempty"`
	IsCorrect  *bool            `json:"is_correct,omitempty"`
	At         time.Time        `json:"at"`
}

// MonitorEntry is one session row of a reviewer's live monitor.
type MonitorEntry struct {
	SessionID        uuid.UUID     `json:"session_id"`
	OwnerID          int           `json:"owner_id"`
	Status           SessionStatus `json:"status"`
	StartedAt        time.Time     `json:"started_at"`
	EndedAt          *time.Time    `json:"ended_at,omitempty"`
	RemainingSeconds int64         `json:"remaining_seconds"`
	Answered         int           `json:"answered"`
	TotalQuestions   int           `json:"total_questions"`
	Score            *int          `json:"score,omitempty"`
	Percentage       *float64      `json:"percentage,omitempty"`
}

// MonitorStats counts sessions of a subject by status.
type MonitorStats struct {
	TotalStarted int `json:"total_started"`
	InProgress   int `json:"in_progress"`
	Completed    int `json:"completed"`
}

// MonitorSnapshot is the first message a reviewer receives on attach.
type MonitorSnapshot struct {
	Subject  Subject        `json:"subject"`
	Stats    MonitorStats   `json:"stats"`
	Sessions []MonitorEntry `json:"sessions"`
}
