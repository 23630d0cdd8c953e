package model

import (
	"time"

	"github.com/google/uuid"
)

// Result is the recorded answer for one question of one session.
// (SessionID, QuestionID) is unique; later submissions overwrite.
type Result struct {
	ID             uuid.UUID `json:"id"`
	SessionID      uuid.UUID `json:"session_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedOption string    `json:"selected_option"`
	IsCorrect      bool      `json:"is_correct"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SubmitAnswerRequest is the payload for answering a question.
type SubmitAnswerRequest struct {
	QuestionID     uuid.UUID `json:"question_id" binding:"required"`
	SelectedOption string    `json:"selected_option" binding:"required,max=2000"`
}

// SubmitAnswerResponse deliberately carries no correct answer.
type SubmitAnswerResponse struct {
	QuestionID uuid.UUID `json:"question_id"`
	IsCorrect  bool      `json:"is_correct"`
}

// ResultLine is a Result joined with its question for the results view.
// CorrectAnswer and Explanation are only filled once the session is over.
type ResultLine struct {
	QuestionID     uuid.UUID `json:"question_id"`
	Text           string    `json:"text"`
	Marks          int       `json:"marks"`
	SelectedOption string    `json:"selected_option"`
	IsCorrect      bool      `json:"is_correct"`
	CorrectAnswer  string    `json:"correct_answer,omitempty"`
	Explanation    string    `json:"explanation,omitempty"`
}

// ScoreSummary aggregates a session's results.
type ScoreSummary struct {
	Score      int     `json:"score"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// ResultsView is the response of the results endpoint.
type ResultsView struct {
	SessionID uuid.UUID     `json:"session_id"`
	Status    SessionStatus `json:"status"`
	Results   []ResultLine  `json:"results"`
	ScoreSummary
}
