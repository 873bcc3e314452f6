package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"live-quiz-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// releaseActive deletes the active-test claim only when it still names the caller's test
// and, when ARGV[2] is set, the caller's run.
var releaseActive = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if not cur then
	return 0
end
local prefix = ARGV[1] .. "|"
if cur == prefix .. ARGV[2] or (ARGV[2] == "" and string.sub(cur, 1, #prefix) == prefix) then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// activeClaim is the value stored under the active-test key.
func activeClaim(testID, runID string) string { return testID + "|" + runID }

// claimHolder returns the test id of a stored claim.
func claimHolder(claim string) string {
	testID, _, _ := strings.Cut(claim, "|")
	return testID
}

// TestStore keeps one JSON document per test plus the single active-test claim.
type TestStore struct {
	client *redis.Client
}

func NewTestStore(client *redis.Client) *TestStore {
	return &TestStore{client: client}
}

func (s *TestStore) Save(ctx context.Context, test domain.Test) error {
	data, err := json.Marshal(test)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, testKey(test.ID), data, 0)
		pipe.SAdd(ctx, testsSetKey, test.ID)
		return nil
	})
	return domain.WrapStore("save test", err)
}

func (s *TestStore) Get(ctx context.Context, id string) (domain.Test, error) {
	data, err := s.client.Get(ctx, testKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Test{}, domain.ErrTestNotFound
	}
	if err != nil {
		return domain.Test{}, domain.WrapStore("get test", err)
	}
	var test domain.Test
	if err := json.Unmarshal(data, &test); err != nil {
		return domain.Test{}, domain.WrapStore("decode test", err)
	}
	return test, nil
}

func (s *TestStore) List(ctx context.Context) ([]domain.Test, error) {
	ids, err := s.client.SMembers(ctx, testsSetKey).Result()
	if err != nil {
		return nil, domain.WrapStore("list tests", err)
	}
	out := make([]domain.Test, 0, len(ids))
	for _, id := range ids {
		t, err := s.Get(ctx, id)
		if errors.Is(err, domain.ErrTestNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *TestStore) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, testKey(id))
		pipe.SRem(ctx, testsSetKey, id)
		return nil
	})
	if err != nil {
		return domain.WrapStore("delete test", err)
	}
	if del.Val() == 0 {
		return domain.ErrTestNotFound
	}
	return nil
}

// ClaimActive uses SETNX so that at most one run of one test can hold the slot.
func (s *TestStore) ClaimActive(ctx context.Context, testID, runID string) (string, bool, error) {
	claim := activeClaim(testID, runID)
	ok, err := s.client.SetNX(ctx, activeTestKey, claim, 0).Result()
	if err != nil {
		return "", false, domain.WrapStore("claim active", err)
	}
	if ok {
		return testID, true, nil
	}
	holder, err := s.client.Get(ctx, activeTestKey).Result()
	if errors.Is(err, redis.Nil) {
		// Released between SETNX and GET; try once more.
		ok, err = s.client.SetNX(ctx, activeTestKey, claim, 0).Result()
		if err != nil {
			return "", false, domain.WrapStore("claim active", err)
		}
		if ok {
			return testID, true, nil
		}
		holder, err = s.client.Get(ctx, activeTestKey).Result()
	}
	if err != nil {
		return "", false, domain.WrapStore("read active", err)
	}
	return claimHolder(holder), false, nil
}

func (s *TestStore) ReleaseActive(ctx context.Context, testID, runID string) error {
	err := releaseActive.Run(ctx, s.client, []string{activeTestKey}, testID, runID).Err()
	return domain.WrapStore("release active", err)
}
