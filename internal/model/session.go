package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "PENDING"
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
)

func (s SessionStatus) rank() int {
	switch s {
	case SessionStatusPending:
		return 0
	case SessionStatusInProgress:
		return 1
	case SessionStatusCompleted:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next keeps the status
// monotonic (PENDING -> IN_PROGRESS -> COMPLETED).
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	from, to := s.rank(), next.rank()
	return from >= 0 && to > from
}

// ManifestItem fixes one question and its option order for a session.
type ManifestItem struct {
	QuestionID uuid.UUID `json:"question_id"`
	Options    []string  `json:"options"`
}

// Manifest is the ordered question list chosen at session start.
type Manifest []ManifestItem

// Contains reports whether questionID is part of the manifest.
func (m Manifest) Contains(questionID uuid.UUID) bool {
	for _, item := range m {
		if item.QuestionID == questionID {
			return true
		}
	}
	return false
}

// QuestionIDs returns the manifest question ids in delivery order.
func (m Manifest) QuestionIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(m))
	for i, item := range m {
		ids[i] = item.QuestionID
	}
	return ids
}

// Session is one timed exam attempt by one owner.
type Session struct {
	ID              uuid.UUID     `json:"id"`
	OwnerID         int           `json:"owner_id"`
	SubjectID       *int          `json:"subject_id,omitempty"`
	DurationMinutes int           `json:"duration_minutes"`
	Status          SessionStatus `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
	Manifest        Manifest      `json:"-"`

	// Snapshot written by the scoring worker once the session is completed.
	Score      *int     `json:"score,omitempty"`
	Total      *int     `json:"total,omitempty"`
	Percentage *float64 `json:"percentage,omitempty"`
}

// Duration returns the allotted time as a time.Duration.
func (s *Session) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// StartSessionRequest is the payload for starting a session. The pool is
// a subject, an explicit question list, or both.
type StartSessionRequest struct {
	SubjectID       *int        `json:"subject_id" binding:"omitempty,min=1"`
	QuestionIDs     []uuid.UUID `json:"question_ids" binding:"omitempty,max=500"`
	QuestionCount   int         `json:"question_count" binding:"omitempty,min=1,max=500"`
	DurationMinutes int         `json:"duration_minutes" binding:"required,min=1,max=480"`
}

// StartSessionResponse is returned by a successful start.
type StartSessionResponse struct {
	SessionID       uuid.UUID       `json:"session_id"`
	DurationMinutes int             `json:"duration_minutes"`
	StartedAt       time.Time       `json:"started_at"`
	Questions       []PaperQuestion `json:"questions"`
}

// CompleteSessionResponse is returned by complete.
type CompleteSessionResponse struct {
	SessionID uuid.UUID     `json:"session_id"`
	Status    SessionStatus `json:"status"`
	EndedAt   time.Time     `json:"ended_at"`
}

// SessionState is the advisory countdown view used on page reload.
type SessionState struct {
	SessionID        uuid.UUID     `json:"session_id"`
	Status           SessionStatus `json:"status"`
	RemainingSeconds int64         `json:"remaining_seconds"`
	Deadline         time.Time     `json:"deadline"`
	Answered         []uuid.UUID   `json:"answered"`
}

// SessionDetail is the full view of a session for its owner or a reviewer.
type SessionDetail struct {
	Session   *Session        `json:"session"`
	Questions []PaperQuestion `json:"questions"`
	Results   []Result        `json:"results"`
}
