package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"live-quiz-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches the question bank from a backing store (e.g., Postgres or a YAML file).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context) ([]domain.Question, error)
}

// QuestionCache caches the bank with TTL to avoid repeated backing store hits.
type QuestionCache struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu        sync.RWMutex
	rnd       *rand.Rand
	questions []domain.Question
	expiresAt time.Time
}

const bankKey = "bank"

func NewQuestionCache(loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Questions returns a copy of the bank, loading it once per TTL window.
func (c *QuestionCache) Questions(ctx context.Context) ([]domain.Question, error) {
	if qs, ok := c.cached(c.clock()); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(bankKey, func() (interface{}, error) {
		now := c.clock()
		if qs, ok := c.cached(now); ok {
			return qs, nil
		}

		loaded, err := c.loader.LoadQuestions(ctx)
		if err != nil {
			return nil, err
		}
		bank := make([]domain.Question, 0, len(loaded))
		for _, q := range loaded {
			if err := q.Normalize(); err != nil {
				return nil, err
			}
			bank = append(bank, q.Clone())
		}

		c.mu.Lock()
		c.questions = bank
		c.expiresAt = now.Add(c.ttlWithJitterLocked())
		c.mu.Unlock()
		return cloneQuestions(bank), nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Count returns the size of the bank.
func (c *QuestionCache) Count(ctx context.Context) (int, error) {
	qs, err := c.Questions(ctx)
	if err != nil {
		return 0, err
	}
	return len(qs), nil
}

// Invalidate drops the cached bank so the next read reloads it.
func (c *QuestionCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	c.questions = nil
	c.expiresAt = time.Time{}
	c.mu.Unlock()
	return nil
}

func (c *QuestionCache) cached(now time.Time) ([]domain.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.questions == nil || !c.expiresAt.After(now) {
		return nil, false
	}
	return cloneQuestions(c.questions), true
}

func (c *QuestionCache) ttlWithJitterLocked() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader is a simple loader backed by an in-memory slice (useful for tests/demos).
type StaticQuestionLoader struct {
	questions []domain.Question
}

func NewStaticQuestionLoader(questions []domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{questions: questions}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context) ([]domain.Question, error) {
	return cloneQuestions(l.questions), nil
}

func cloneQuestions(qs []domain.Question) []domain.Question {
	out := make([]domain.Question, len(qs))
	for i, q := range qs {
		out[i] = q.Clone()
	}
	return out
}
