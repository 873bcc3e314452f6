package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Key layout. Every key shares the quiz: prefix so one Redis can be shared with other apps.
const (
	keyPrefix       = "quiz:"
	usersSetKey     = keyPrefix + "users"
	testsSetKey     = keyPrefix + "tests"
	activeTestKey   = keyPrefix + "active"
	presenceKey     = keyPrefix + "presence"
	presenceTestKey = keyPrefix + "presence:test"
	presenceChannel = keyPrefix + "presence:updates"
	submissionsKey  = keyPrefix + "submissions"
	submittedKey    = keyPrefix + "submitted"
	questionBankKey = keyPrefix + "bank"
	maxWatchRetries = 8
)

func userKey(email string) string { return keyPrefix + "user:" + email }

func testKey(id string) string { return keyPrefix + "test:" + id }

func submittedField(runID, email string) string { return runID + "|" + email }

// NewClient connects to addr and verifies the connection with PING.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// watchRetry runs an optimistic WATCH transaction, retrying when a concurrent writer
// touches one of keys.
func watchRetry(ctx context.Context, client *redis.Client, fn func(tx *redis.Tx) error, keys ...string) error {
	var err error
	for i := 0; i < maxWatchRetries; i++ {
		err = client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}
