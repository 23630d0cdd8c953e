// Package seed reads question bank files used to populate a fresh store.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/store"
)

// Load decodes a bank and checks every question before anything is written.
func Load(r io.Reader) ([]model.SeedSubject, error) {
	var bank []model.SeedSubject
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&bank); err != nil {
		return nil, fmt.Errorf("decode question bank: %w", err)
	}

	var problems []error
	seen := make(map[string]bool, len(bank))
	for i, subj := range bank {
		name := strings.TrimSpace(subj.Name)
		if name == "" {
			problems = append(problems, fmt.Errorf("subject #%d: name is required", i+1))
			continue
		}
		if seen[name] {
			problems = append(problems, fmt.Errorf("subject %q: listed twice", name))
		}
		seen[name] = true
		if _, err := Questions(0, subj); err != nil {
			problems = append(problems, err)
		}
	}
	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}
	return bank, nil
}

// LoadFile is Load over a file path.
func LoadFile(path string) ([]model.SeedSubject, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open question bank: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Questions converts a seed subject into validated questions of subjectID.
func Questions(subjectID int, subj model.SeedSubject) ([]model.Question, error) {
	out := make([]model.Question, 0, len(subj.Questions))
	for i, sq := range subj.Questions {
		q := model.Question{
			SubjectID:     subjectID,
			Text:          sq.Text,
			Options:       sq.Options,
			CorrectAnswer: sq.CorrectAnswer,
			Marks:         sq.Marks,
			Explanation:   sq.Explanation,
		}
		if q.Marks == 0 {
			q.Marks = 1
		}
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("subject %q question #%d: %w", subj.Name, i+1, err)
		}
		out = append(out, q)
	}
	return out, nil
}

// IntoMemory loads a bank into the memory store and returns the question count.
func IntoMemory(m *store.Memory, bank []model.SeedSubject) (int, error) {
	n := 0
	for _, subj := range bank {
		s := m.AddSubject(strings.TrimSpace(subj.Name))
		qs, err := Questions(s.ID, subj)
		if err != nil {
			return n, err
		}
		for _, q := range qs {
			if _, err := m.AddQuestion(q); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

// Writer is the Postgres side of seeding; repository.PostgresStore implements it.
type Writer interface {
	Upsert(ctx context.Context, s *model.Subject) error
	CreateBatch(ctx context.Context, subjectID int, questions []model.Question) (int64, error)
}

// IntoStore upserts each subject by name and bulk-inserts its questions.
func IntoStore(ctx context.Context, w Writer, bank []model.SeedSubject) (int64, error) {
	var total int64
	for _, subj := range bank {
		s := &model.Subject{Name: strings.TrimSpace(subj.Name)}
		if err := w.Upsert(ctx, s); err != nil {
			return total, fmt.Errorf("upsert subject %q: %w", subj.Name, err)
		}
		qs, err := Questions(s.ID, subj)
		if err != nil {
			return total, err
		}
		n, err := w.CreateBatch(ctx, s.ID, qs)
		if err != nil {
			return total, fmt.Errorf("insert questions of %q: %w", subj.Name, err)
		}
		total += n
	}
	return total, nil
}
