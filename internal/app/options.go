package app

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type options struct {
	now    func() time.Time
	logger *zap.Logger
	rnd    *rand.Rand
	newID  func() string
}

// Option customizes a service; mostly useful for deterministic tests.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the structured logger. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRand sets the random source used for question draws.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rnd = r }
}

// WithIDs replaces the unique key generator.
func WithIDs(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

func buildOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		logger: zap.NewNop(),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
