package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestAnswerDecodesNumberAndText(t *testing.T) {
	var q struct {
		A Answer `json:"a"`
		B Answer `json:"b"`
		C Answer `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a": 2, "b": "Paris", "c": null}`), &q); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !q.A.Equal(IndexAnswer(2)) {
		t.Fatalf("expected index 2, got %+v", q.A)
	}
	if !q.B.Equal(TextAnswer("Paris")) {
		t.Fatalf("expected text Paris, got %+v", q.B)
	}
	if !q.C.IsZero() {
		t.Fatalf("expected zero answer for null, got %+v", q.C)
	}
}

func TestAnswerKindsNeverEqual(t *testing.T) {
	if IndexAnswer(0).Equal(TextAnswer("0")) {
		t.Fatalf("index and text answers must not compare equal")
	}
}

func TestNormalizeResolvesTextToIndex(t *testing.T) {
	q := Question{ID: "q1", Prompt: "Capital of France?", Choices: []string{"Berlin", "Paris"}, Answer: TextAnswer(" Paris ")}
	if err := q.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !q.Answer.Equal(IndexAnswer(1)) {
		t.Fatalf("expected index 1, got %+v", q.Answer)
	}
	if q.CorrectChoice() != "Paris" {
		t.Fatalf("expected Paris, got %q", q.CorrectChoice())
	}
}

func TestNormalizeRejectsBadQuestions(t *testing.T) {
	cases := []Question{
		{ID: "no-prompt", Choices: []string{"a", "b"}, Answer: IndexAnswer(0)},
		{ID: "one-choice", Prompt: "?", Choices: []string{"a"}, Answer: IndexAnswer(0)},
		{ID: "out-of-range", Prompt: "?", Choices: []string{"a", "b"}, Answer: IndexAnswer(5)},
		{ID: "unknown-text", Prompt: "?", Choices: []string{"a", "b"}, Answer: TextAnswer("c")},
		{ID: "missing", Prompt: "?", Choices: []string{"a", "b"}},
	}
	for _, q := range cases {
		if err := q.Normalize(); !errors.Is(err, ErrInvalidQuestion) {
			t.Fatalf("%s: expected ErrInvalidQuestion, got %v", q.ID, err)
		}
	}
}

func TestCategoryOf(t *testing.T) {
	cases := map[error]Category{
		ErrSessionConflict: CategoryAuth,
		fmt.Errorf("start: %w", ErrAnotherTestActive): CategoryLifecycle,
		ErrIncompleteAnswers:                           CategorySubmission,
		WrapStore("get test", errors.New("dial tcp")):  CategoryStore,
		errors.New("boom"):                             CategoryInternal,
	}
	for err, want := range cases {
		if got := CategoryOf(err); got != want {
			t.Fatalf("%v: expected %s, got %s", err, want, got)
		}
	}
}
