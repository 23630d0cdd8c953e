package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/store"
)

const bank = `[
  {"name": "Fisika", "questions": [
    {"text": "Satuan gaya?", "options": ["Newton", "Joule"], "correct_answer": "Newton", "marks": 2},
    {"text": "Satuan energi?", "options": ["Newton", "Joule"], "correct_answer": "Joule"}
  ]},
  {"name": "Kimia", "questions": [
    {"text": "H2O?", "options": ["Air", "Garam", "Gula"], "correct_answer": "Air", "explanation": "dua hidrogen, satu oksigen"}
  ]}
]`

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "valid", input: bank},
		{name: "not json", input: `{`, wantErr: "decode"},
		{name: "unknown field", input: `[{"name":"A","questions":[],"level":3}]`, wantErr: "decode"},
		{name: "blank subject", input: `[{"name":" ","questions":[]}]`, wantErr: "name is required"},
		{name: "duplicate subject", input: `[{"name":"A","questions":[]},{"name":"A","questions":[]}]`, wantErr: "listed twice"},
		{name: "answer not an option", input: `[{"name":"A","questions":[{"text":"q","options":["x","y"],"correct_answer":"z"}]}]`, wantErr: "question #1"},
		{name: "single option", input: `[{"name":"A","questions":[{"text":"q","options":["x"],"correct_answer":"x"}]}]`, wantErr: "at least 2 options"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.input))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestIntoMemory(t *testing.T) {
	subjects, err := Load(strings.NewReader(bank))
	if err != nil {
		t.Fatal(err)
	}
	m := store.NewMemory()
	n, err := IntoMemory(m, subjects)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("loaded %d questions, want 3", n)
	}

	ctx := context.Background()
	listed, _ := m.ListSubjects(ctx)
	if len(listed) != 2 {
		t.Fatalf("subjects = %d, want 2", len(listed))
	}
	for _, s := range listed {
		qs, _ := m.ListQuestionsBySubject(ctx, s.ID)
		for _, q := range qs {
			if q.Marks < 1 {
				t.Errorf("%s: marks defaulted to %d", q.Text, q.Marks)
			}
		}
	}
}

type fakeWriter struct {
	nextID   int
	inserted map[int][]model.Question
}

func (f *fakeWriter) Upsert(_ context.Context, s *model.Subject) error {
	f.nextID++
	s.ID = f.nextID
	return nil
}

func (f *fakeWriter) CreateBatch(_ context.Context, subjectID int, qs []model.Question) (int64, error) {
	if f.inserted == nil {
		f.inserted = map[int][]model.Question{}
	}
	f.inserted[subjectID] = append(f.inserted[subjectID], qs...)
	return int64(len(qs)), nil
}

func TestIntoStore(t *testing.T) {
	subjects, err := Load(strings.NewReader(bank))
	if err != nil {
		t.Fatal(err)
	}
	w := &fakeWriter{}
	total, err := IntoStore(context.Background(), w, subjects)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(w.inserted[1]) != 2 || len(w.inserted[2]) != 1 {
		t.Errorf("total = %d inserted = %v", total, w.inserted)
	}
	for id, qs := range w.inserted {
		for _, q := range qs {
			if q.SubjectID != id {
				t.Errorf("question %q has subject %d, want %d", q.Text, q.SubjectID, id)
			}
		}
	}
}
