package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"live-quiz-service/internal/domain"
)

const questionsYAML = `
questions:
  - id: geo-1
    question: Capital of Japan?
    choices: [Seoul, Tokyo, Beijing]
    answer: Tokyo
    subject: geography
  - question: What is 7 - 5?
    choices: ["1", "2"]
    answer: 1
    level: easy
`

func TestParseQuestions(t *testing.T) {
	qs, err := ParseQuestions([]byte(questionsYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(qs))
	}
	if qs[0].ID != "geo-1" || qs[0].Answer != domain.IndexAnswer(1) || qs[0].Subject != "geography" {
		t.Fatalf("unexpected first question: %+v", qs[0])
	}
	// A numeric answer is an index even when the choices are numeric strings.
	if qs[1].ID != contentID("What is 7 - 5?", []string{"1", "2"}) || qs[1].Answer != domain.IndexAnswer(1) || qs[1].CorrectChoice() != "2" {
		t.Fatalf("unexpected second question: %+v", qs[1])
	}
}

func TestParseQuestionsDerivesStableIDs(t *testing.T) {
	first, err := ParseQuestions([]byte("questions:\n  - {question: Largest ocean?, choices: [Pacific, Indian], answer: 0}\n"))
	if err != nil {
		t.Fatalf("parse first: %v", err)
	}
	second, err := ParseQuestions([]byte("questions:\n  - {question: Smallest planet?, choices: [Mercury, Mars], answer: 0}\n"))
	if err != nil {
		t.Fatalf("parse second: %v", err)
	}
	again, err := ParseQuestions([]byte("questions:\n  - {question: Largest ocean?, choices: [Pacific, Indian], answer: Indian}\n"))
	if err != nil {
		t.Fatalf("parse again: %v", err)
	}
	if first[0].ID == second[0].ID {
		t.Fatalf("separate documents must not share ids: %s", first[0].ID)
	}
	if first[0].ID != again[0].ID {
		t.Fatalf("re-import of the same question changed id: %s vs %s", first[0].ID, again[0].ID)
	}
}

func TestParseQuestionsRejectsDuplicatesAndBadAnswers(t *testing.T) {
	cases := map[string]string{
		"duplicate": "questions:\n  - {id: a, question: x, choices: [a, b], answer: 0}\n  - {id: a, question: y, choices: [a, b], answer: 0}\n",
		"range":     "questions:\n  - {id: a, question: x, choices: [a, b], answer: 5}\n",
		"missing":   "questions:\n  - {id: a, question: x, choices: [a, b]}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseQuestions([]byte(doc)); !errors.Is(err, domain.ErrInvalidQuestion) {
				t.Fatalf("expected ErrInvalidQuestion, got %v", err)
			}
		})
	}
}

func TestFileQuestionLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.yaml")
	if err := os.WriteFile(path, []byte(questionsYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cache := NewQuestionCache(NewFileQuestionLoader(path), 0)
	n, err := cache.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
}
