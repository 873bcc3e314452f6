package app_test

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"

	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// harness wires every service over the in-memory stores.
type harness struct {
	clock       *fakeClock
	users       *memory.UserStore
	tests       *memory.TestStore
	presence    *memory.PresenceHub
	submissions *memory.SubmissionStore
	sessions    *app.SessionRegistry
	lifecycle   *app.LifecycleController
	collector   *app.SubmissionCollector
	scoring     *app.ScoringEngine
}

func newHarness(t *testing.T, countdown time.Duration, useFakeClock bool) *harness {
	t.Helper()
	h := &harness{
		clock:       newFakeClock(),
		users:       memory.NewUserStore(),
		tests:       memory.NewTestStore(),
		submissions: memory.NewSubmissionStore(),
	}
	now := time.Now
	if useFakeClock {
		now = h.clock.Now
	}
	h.presence = memory.NewPresenceHubWithClock(now)
	bank := memory.NewQuestionCache(memory.NewStaticQuestionLoader(bankQuestions()), time.Minute)
	opts := []app.Option{app.WithClock(now), app.WithRand(rand.New(rand.NewSource(7))), app.WithIDs(sequentialIDs("id"))}

	h.sessions = app.NewSessionRegistry(h.users, time.Hour, bcrypt.MinCost, opts...)
	h.lifecycle = app.NewLifecycleController(h.tests, bank, h.presence, countdown, opts...)
	h.collector = app.NewSubmissionCollector(h.submissions, h.tests, h.presence, opts...)
	h.scoring = app.NewScoringEngine(h.tests, h.submissions, opts...)
	t.Cleanup(h.lifecycle.Close)
	return h
}

func (h *harness) startTest(t *testing.T, name string, count int) domain.Test {
	t.Helper()
	ctx := context.Background()
	test, err := h.lifecycle.CreateTest(ctx, name, count)
	if err != nil {
		t.Fatalf("create test: %v", err)
	}
	started, err := h.lifecycle.Start(ctx, test.ID)
	if err != nil {
		t.Fatalf("start test: %v", err)
	}
	return started
}

func bankQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Prompt: "What is 2 + 2?", Choices: []string{"3", "4"}, Answer: domain.IndexAnswer(1)},
		{ID: "q2", Prompt: "Capital of France?", Choices: []string{"Rome", "Paris", "Oslo"}, Answer: domain.TextAnswer("Paris")},
		{ID: "q3", Prompt: "Largest planet?", Choices: []string{"Mars", "Jupiter"}, Answer: domain.IndexAnswer(1)},
		{ID: "q4", Prompt: "H2O is?", Choices: []string{"Water", "Salt"}, Answer: domain.IndexAnswer(0)},
		{ID: "q5", Prompt: "3 * 3?", Choices: []string{"6", "9"}, Answer: domain.IndexAnswer(1)},
	}
}

// correctAnswers answers every question of test correctly.
func correctAnswers(test domain.Test) map[string]domain.Answer {
	out := make(map[string]domain.Answer, len(test.Questions))
	for _, q := range test.Questions {
		out[q.ID] = q.Answer
	}
	return out
}

// wrongAnswers answers every question of test incorrectly.
func wrongAnswers(test domain.Test) map[string]domain.Answer {
	out := make(map[string]domain.Answer, len(test.Questions))
	for _, q := range test.Questions {
		out[q.ID] = domain.IndexAnswer((q.Answer.Index + 1) % len(q.Choices))
	}
	return out
}
