package memory

import (
	"context"
	"sort"
	"sync"

	"live-quiz-service/internal/domain"
)

// UserStore is an in-memory implementation of app.UserRepository.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewUserStore() *UserStore {
	return &UserStore{
		users: make(map[string]domain.User),
	}
}

func (s *UserStore) Create(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Email]; ok {
		return domain.ErrEmailTaken
	}
	s.users[user.Email] = user
	return nil
}

func (s *UserStore) Get(_ context.Context, email string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[email]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

// List returns users ordered by email.
func (s *UserStore) List(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *UserStore) SwapSession(_ context.Context, email, expectedToken string, next domain.Session) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok {
		return false, domain.ErrUserNotFound
	}
	if user.Session.Token != expectedToken {
		return false, nil
	}
	user.Session = next
	s.users[email] = user
	return true, nil
}

func (s *UserStore) DeleteParticipants(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for email, u := range s.users {
		if u.Role == domain.RoleParticipant {
			delete(s.users, email)
			n++
		}
	}
	return n, nil
}

func (s *UserStore) ClearSession(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[email]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.Session = domain.Session{}
	s.users[email] = user
	return nil
}
