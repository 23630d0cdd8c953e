package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Question is a single multiple-choice item owned by a Subject.
// CorrectAnswer must equal exactly one element of Options.
type Question struct {
	ID            uuid.UUID `json:"id"`
	SubjectID     int       `json:"subject_id"`
	Text          string    `json:"text"`
	Options       []string  `json:"options"`
	CorrectAnswer string    `json:"correct_answer"`
	Marks         int       `json:"marks"`
	Explanation   string    `json:"explanation,omitempty"`
}

// Validate checks the structural invariants of a question.
func (q *Question) Validate() error {
	if q.Text == "" {
		return fmt.Errorf("question %s: empty text", q.ID)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("question %s: needs at least 2 options, got %d", q.ID, len(q.Options))
	}
	if q.Marks < 1 {
		return fmt.Errorf("question %s: marks must be >= 1, got %d", q.ID, q.Marks)
	}

	matches := 0
	for _, opt := range q.Options {
		if opt == q.CorrectAnswer {
			matches++
		}
	}
	if matches != 1 {
		return fmt.Errorf("question %s: correct answer must match exactly one option, matched %d", q.ID, matches)
	}
	return nil
}

// Score reports whether a selected option is correct. The comparison is
// exact and case-sensitive.
func Score(selected, correct string) bool {
	return selected == correct
}

// PaperQuestion is a question as delivered to the session owner: options
// in manifest order, no correct answer.
type PaperQuestion struct {
	QuestionID uuid.UUID `json:"question_id"`
	Text       string    `json:"text"`
	Options    []string  `json:"options"`
	Marks      int       `json:"marks"`
}

// SeedQuestion is the file format consumed by cmd/seed-questions.
type SeedQuestion struct {
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Marks         int      `json:"marks"`
	Explanation   string   `json:"explanation"`
}

// SeedSubject groups seed questions under a subject name.
type SeedSubject struct {
	Name      string         `json:"name"`
	Questions []SeedQuestion `json:"questions"`
}
