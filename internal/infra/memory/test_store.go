package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/domain"
)

// TestStore is an in-memory implementation of app.TestRepository.
type TestStore struct {
	mu        sync.RWMutex
	tests     map[string]domain.Test
	active    string
	activeRun string
}

func NewTestStore() *TestStore {
	return &TestStore{tests: make(map[string]domain.Test)}
}

func (s *TestStore) Save(_ context.Context, test domain.Test) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tests[test.ID] = cloneTest(test)
	return nil
}

func (s *TestStore) Get(_ context.Context, id string) (domain.Test, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	test, ok := s.tests[id]
	if !ok {
		return domain.Test{}, domain.ErrTestNotFound
	}
	return cloneTest(test), nil
}

func (s *TestStore) List(_ context.Context) ([]domain.Test, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Test, 0, len(s.tests))
	for _, t := range s.tests {
		out = append(out, cloneTest(t))
	}
	return out, nil
}

func (s *TestStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tests[id]; !ok {
		return domain.ErrTestNotFound
	}
	delete(s.tests, id)
	return nil
}

func (s *TestStore) ClaimActive(_ context.Context, testID, runID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != "" {
		return s.active, false, nil
	}
	s.active, s.activeRun = testID, runID
	return testID, true, nil
}

func (s *TestStore) ReleaseActive(_ context.Context, testID, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == testID && (runID == "" || s.activeRun == runID) {
		s.active, s.activeRun = "", ""
	}
	return nil
}

func cloneTest(t domain.Test) domain.Test {
	t.Questions = cloneQuestions(t.Questions)
	return t
}
