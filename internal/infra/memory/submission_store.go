package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/domain"
)

// SubmissionStore is an in-memory implementation of app.SubmissionRepository.
type SubmissionStore struct {
	mu          sync.RWMutex
	submissions []domain.AnswerSubmission
	seen        map[string]struct{}
}

func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{seen: make(map[string]struct{})}
}

func (s *SubmissionStore) Insert(_ context.Context, submission domain.AnswerSubmission) error {
	key := submission.RunID + "|" + submission.Email
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[key]; dup {
		return domain.ErrAlreadySubmitted
	}
	s.seen[key] = struct{}{}
	s.submissions = append(s.submissions, cloneSubmission(submission))
	return nil
}

func (s *SubmissionStore) List(_ context.Context) ([]domain.AnswerSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AnswerSubmission, len(s.submissions))
	for i, sub := range s.submissions {
		out[i] = cloneSubmission(sub)
	}
	return out, nil
}

func (s *SubmissionStore) Purge(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = nil
	s.seen = make(map[string]struct{})
	return nil
}

func cloneSubmission(s domain.AnswerSubmission) domain.AnswerSubmission {
	answers := make(map[string]domain.Answer, len(s.Answers))
	for k, v := range s.Answers {
		answers[k] = v
	}
	s.Answers = answers
	return s
}
