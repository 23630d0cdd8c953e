package service

import (
	"context"

	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/store"
)

type SubjectService struct {
	questions store.QuestionReader
}

func NewSubjectService(questions store.QuestionReader) *SubjectService {
	return &SubjectService{questions: questions}
}

// GetAll lists the subjects a session can be started from.
func (s *SubjectService) GetAll(ctx context.Context) ([]model.Subject, error) {
	subjects, err := s.questions.ListSubjects(ctx)
	if err != nil {
		return nil, storageError("list subjects", err)
	}
	if subjects == nil {
		subjects = []model.Subject{}
	}
	return subjects, nil
}
