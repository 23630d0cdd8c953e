package websocket

import (
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionComplete Action = "complete"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest records one answer, same as POST .../answers.
type AnswerRequest struct {
	Action         Action    `json:"action"`
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedOption string    `json:"selected_option"`
}

// CompleteRequest ends the attempt.
type CompleteRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventAnswered  Event = "answered"
	EventCompleted Event = "completed"
	EventExpired   Event = "expired"
	EventPong      Event = "pong"
)

type AnsweredResponse struct {
	Event      Event     `json:"event"`
	QuestionID uuid.UUID `json:"question_id"`
	IsCorrect  bool      `json:"is_correct"`
}

// CompletedResponse is pushed for both completed and expired events.
type CompletedResponse struct {
	Event   Event               `json:"event"`
	Status  model.SessionStatus `json:"status"`
	EndedAt *time.Time          `json:"ended_at"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}
