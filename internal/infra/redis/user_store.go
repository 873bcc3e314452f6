package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"live-quiz-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// UserStore keeps one JSON document per user and a set of all emails.
type UserStore struct {
	client *redis.Client
}

func NewUserStore(client *redis.Client) *UserStore {
	return &UserStore{client: client}
}

// userRecord carries the credential hash, which domain.User never serializes.
type userRecord struct {
	domain.User
	Secret string `json:"secret"`
}

func (s *UserStore) Create(ctx context.Context, user domain.User) error {
	data, err := json.Marshal(userRecord{User: user, Secret: user.CredentialSecret})
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, userKey(user.Email), data, 0).Result()
	if err != nil {
		return domain.WrapStore("create user", err)
	}
	if !ok {
		return domain.ErrEmailTaken
	}
	return domain.WrapStore("index user", s.client.SAdd(ctx, usersSetKey, user.Email).Err())
}

func (s *UserStore) Get(ctx context.Context, email string) (domain.User, error) {
	return s.get(ctx, s.client, email)
}

func (s *UserStore) get(ctx context.Context, c stringGetter, email string) (domain.User, error) {
	data, err := c.Get(ctx, userKey(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, domain.WrapStore("get user", err)
	}
	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.User{}, domain.WrapStore("decode user", err)
	}
	rec.User.CredentialSecret = rec.Secret
	return rec.User, nil
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// List returns users ordered by email.
func (s *UserStore) List(ctx context.Context) ([]domain.User, error) {
	emails, err := s.client.SMembers(ctx, usersSetKey).Result()
	if err != nil {
		return nil, domain.WrapStore("list users", err)
	}
	sort.Strings(emails)
	out := make([]domain.User, 0, len(emails))
	for _, email := range emails {
		u, err := s.Get(ctx, email)
		if errors.Is(err, domain.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// SwapSession compares and replaces the session under WATCH, so two logins racing for the
// same user cannot both win.
func (s *UserStore) SwapSession(ctx context.Context, email, expectedToken string, next domain.Session) (bool, error) {
	swapped := false
	err := watchRetry(ctx, s.client, func(tx *redis.Tx) error {
		swapped = false
		user, err := s.get(ctx, tx, email)
		if err != nil {
			return err
		}
		if user.Session.Token != expectedToken {
			return nil
		}
		user.Session = next
		data, err := json.Marshal(userRecord{User: user, Secret: user.CredentialSecret})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, userKey(email), data, 0)
			return nil
		})
		if err == nil {
			swapped = true
		}
		return err
	}, userKey(email))
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return false, domain.WrapStore("swap session", err)
	}
	return swapped, err
}

func (s *UserStore) ClearSession(ctx context.Context, email string) error {
	return watchRetry(ctx, s.client, func(tx *redis.Tx) error {
		user, err := s.get(ctx, tx, email)
		if err != nil {
			return err
		}
		user.Session = domain.Session{}
		data, err := json.Marshal(userRecord{User: user, Secret: user.CredentialSecret})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, userKey(email), data, 0)
			return nil
		})
		return err
	}, userKey(email))
}

// DeleteParticipants removes participant accounts one by one, re-reading each under WATCH
// so that a concurrent role change is never deleted by mistake.
func (s *UserStore) DeleteParticipants(ctx context.Context) (int, error) {
	emails, err := s.client.SMembers(ctx, usersSetKey).Result()
	if err != nil {
		return 0, domain.WrapStore("list users", err)
	}
	deleted := 0
	for _, email := range emails {
		removed := false
		err := watchRetry(ctx, s.client, func(tx *redis.Tx) error {
			removed = false
			user, err := s.get(ctx, tx, email)
			if err != nil {
				return err
			}
			if user.Role != domain.RoleParticipant {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, userKey(email))
				pipe.SRem(ctx, usersSetKey, email)
				return nil
			})
			removed = err == nil
			return err
		}, userKey(email))
		if errors.Is(err, domain.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return deleted, domain.WrapStore("delete participant", err)
		}
		if removed {
			deleted++
		}
	}
	return deleted, nil
}
