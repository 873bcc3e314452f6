package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func TestQuestionCacheCaches(t *testing.T) {
	loader := &countingLoader{QuestionLoader: NewStaticQuestionLoader(sampleQuestions())}
	cache := NewQuestionCache(loader, time.Minute)

	qs, err := cache.Questions(context.Background())
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(qs) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(qs))
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := cache.Questions(context.Background()); err != nil {
		t.Fatalf("questions 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}

	_ = cache.Invalidate(context.Background())
	if n, err := cache.Count(context.Background()); err != nil || n != 3 {
		t.Fatalf("count after invalidate: %d %v", n, err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls)
	}
}

func TestQuestionCacheReturnsCopies(t *testing.T) {
	cache := NewQuestionCache(NewStaticQuestionLoader(sampleQuestions()), time.Minute)

	qs, _ := cache.Questions(context.Background())
	qs[0].Choices[0] = "mutated"

	again, _ := cache.Questions(context.Background())
	if again[0].Choices[0] == "mutated" {
		t.Fatalf("cache handed out shared choice slices")
	}
}

func TestQuestionCacheNormalizesTextAnswers(t *testing.T) {
	cache := NewQuestionCache(NewStaticQuestionLoader([]domain.Question{
		{ID: "q1", Prompt: "Capital of France?", Choices: []string{"Rome", "Paris"}, Answer: domain.TextAnswer("Paris")},
	}), time.Minute)

	qs, err := cache.Questions(context.Background())
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if qs[0].Answer != domain.IndexAnswer(1) {
		t.Fatalf("expected index answer 1, got %+v", qs[0].Answer)
	}
}

func TestQuestionCacheRejectsInvalidBank(t *testing.T) {
	cache := NewQuestionCache(NewStaticQuestionLoader([]domain.Question{
		{ID: "q1", Prompt: "?", Choices: []string{"a", "b"}, Answer: domain.TextAnswer("c")},
	}), time.Minute)

	if _, err := cache.Questions(context.Background()); !errors.Is(err, domain.ErrInvalidQuestion) {
		t.Fatalf("expected ErrInvalidQuestion, got %v", err)
	}
}

type countingLoader struct {
	QuestionLoader
	calls int
}

func (l *countingLoader) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	l.calls++
	return l.QuestionLoader.LoadQuestions(ctx)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Prompt: "What is 2 + 2?", Choices: []string{"3", "4"}, Answer: domain.IndexAnswer(1)},
		{ID: "q2", Prompt: "What is 3 * 3?", Choices: []string{"6", "9", "12"}, Answer: domain.IndexAnswer(1)},
		{ID: "q3", Prompt: "Largest planet?", Choices: []string{"Mars", "Jupiter"}, Answer: domain.TextAnswer("Jupiter")},
	}
}
