package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionCache caches the normalized question bank in Redis and falls back to a loader on
// cache miss, so every instance draws from the same bank.
// The bank is stored as: SET quiz:bank {json array} EX ttl
type QuestionCache struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) Questions(ctx context.Context) ([]domain.Question, error) {
	if qs, ok := c.cached(ctx); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(questionBankKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if qs, ok := c.cached(ctx); ok {
			return qs, nil
		}

		loaded, err := c.loader.LoadQuestions(ctx)
		if err != nil {
			return nil, err
		}
		for i := range loaded {
			if err := loaded[i].Normalize(); err != nil {
				return nil, err
			}
		}

		data, err := json.Marshal(loaded)
		if err != nil {
			return nil, err
		}
		// Best effort: a failed write only costs a reload next time.
		_ = c.client.Set(ctx, questionBankKey, data, c.ttlWithJitter()).Err()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) Count(ctx context.Context) (int, error) {
	qs, err := c.Questions(ctx)
	if err != nil {
		return 0, err
	}
	return len(qs), nil
}

// Invalidate drops the shared cached bank.
func (c *QuestionCache) Invalidate(ctx context.Context) error {
	return domain.WrapStore("invalidate bank", c.client.Del(ctx, questionBankKey).Err())
}

func (c *QuestionCache) cached(ctx context.Context) ([]domain.Question, bool) {
	data, err := c.client.Get(ctx, questionBankKey).Bytes()
	if err != nil {
		return nil, false
	}
	var qs []domain.Question
	if err := json.Unmarshal(data, &qs); err != nil || len(qs) == 0 {
		return nil, false
	}
	return qs, true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
