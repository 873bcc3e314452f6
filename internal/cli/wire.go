package cli

import (
	"context"
	"errors"
	"os"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/postgres"
	infraredis "live-quiz-service/internal/infra/redis"

	"github.com/gorilla/securecookie"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// questionBank is the cached bank the services draw from.
type questionBank interface {
	app.QuestionBank
	Count(ctx context.Context) (int, error)
	Invalidate(ctx context.Context) error
}

// backends holds the stores chosen from configuration: Redis for shared state when an
// address is set, Postgres for questions and submissions when a URL is set, memory otherwise.
type backends struct {
	redis *redis.Client
	pool  *pgxpool.Pool
	db    *bun.DB

	users       app.UserRepository
	tests       app.TestRepository
	submissions app.SubmissionRepository
	presence    app.PresenceChannel
	bank        questionBank

	closers []func()
}

func openBackends(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backends, error) {
	b := &backends{}
	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	if cfg.Redis.Addr != "" {
		client, err := infraredis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		b.redis = client
		b.closers = append(b.closers, func() { _ = client.Close() })
	}

	if cfg.Postgres.URL != "" {
		pool, err := postgres.OpenPool(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		b.pool = pool
		b.closers = append(b.closers, pool.Close)

		db := postgres.OpenDB(cfg.Postgres.URL)
		b.db = db
		b.closers = append(b.closers, func() { _ = db.Close() })
	}

	loader := questionLoader(cfg, b.pool, logger)
	if b.redis != nil {
		presence := infraredis.NewPresenceChannel(b.redis, logger)
		b.closers = append(b.closers, func() { _ = presence.Close() })

		b.users = infraredis.NewUserStore(b.redis)
		b.tests = infraredis.NewTestStore(b.redis)
		b.submissions = infraredis.NewSubmissionStore(b.redis)
		b.presence = presence
		b.bank = infraredis.NewQuestionCache(b.redis, loader, cfg.Quiz.BankTTL)
	} else {
		logger.Warn("redis not configured; shared state is kept in process")
		b.users = memory.NewUserStore()
		b.tests = memory.NewTestStore()
		b.submissions = memory.NewSubmissionStore()
		b.presence = memory.NewPresenceHub()
		b.bank = memory.NewQuestionCache(loader, cfg.Quiz.BankTTL)
	}
	if b.db != nil {
		b.submissions = postgres.NewSubmissionStore(b.db)
	}

	ok = true
	return b, nil
}

// questionLoader prefers Postgres, then the configured YAML file, then the built-in sample bank.
func questionLoader(cfg config.Config, pool *pgxpool.Pool, logger *zap.Logger) memory.QuestionLoader {
	if pool != nil {
		return postgres.NewQuestionLoader(pool)
	}
	if path := cfg.Quiz.QuestionsFile; path != "" {
		if _, err := os.Stat(path); err == nil {
			return memory.NewFileQuestionLoader(path)
		}
		logger.Warn("questions file not found; using sample bank", zap.String("path", path))
	}
	return memory.NewStaticQuestionLoader(sampleQuestions())
}

// Close releases connections in reverse order of opening.
func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// services are the application components built over a set of backends.
type services struct {
	sessions  *app.SessionRegistry
	lifecycle *app.LifecycleController
	collector *app.SubmissionCollector
	scoring   *app.ScoringEngine
}

func newServices(cfg config.Config, b *backends, logger *zap.Logger) *services {
	opts := []app.Option{app.WithLogger(logger)}
	return &services{
		sessions:  app.NewSessionRegistry(b.users, cfg.Session.TTL, cfg.Auth.BcryptCost, opts...),
		lifecycle: app.NewLifecycleController(b.tests, b.bank, b.presence, cfg.Quiz.Countdown, opts...),
		collector: app.NewSubmissionCollector(b.submissions, b.tests, b.presence, opts...),
		scoring:   app.NewScoringEngine(b.tests, b.submissions, opts...),
	}
}

// seedAdmin registers the configured admin account unless it already exists.
func seedAdmin(ctx context.Context, cfg config.Config, sessions *app.SessionRegistry, logger *zap.Logger) error {
	if cfg.Auth.AdminEmail == "" || cfg.Auth.AdminPassword == "" {
		return nil
	}
	_, err := sessions.Register(ctx, app.RegisterInput{
		Email:       cfg.Auth.AdminEmail,
		DisplayName: cfg.Auth.AdminName,
		Password:    cfg.Auth.AdminPassword,
		Role:        domain.RoleAdmin,
	})
	if errors.Is(err, domain.ErrEmailTaken) {
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("admin account created", zap.String("email", cfg.Auth.AdminEmail))
	return nil
}

// sampleQuestions keeps the service usable with no bank configured.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "sample-1", Prompt: "What is 2 + 2?", Choices: []string{"3", "4", "5"}, Answer: domain.IndexAnswer(1)},
		{ID: "sample-2", Prompt: "Which planet is closest to the sun?", Choices: []string{"Venus", "Mercury", "Mars"}, Answer: domain.TextAnswer("Mercury")},
		{ID: "sample-3", Prompt: "How many days are in a leap year?", Choices: []string{"365", "366"}, Answer: domain.IndexAnswer(1)},
	}
}

// cookieSecret returns the configured signing key, or a random one when none is set.
func cookieSecret(cfg config.Config, logger *zap.Logger) ([]byte, error) {
	if cfg.Server.CookieSecret != "" {
		return []byte(cfg.Server.CookieSecret), nil
	}
	key := securecookie.GenerateRandomKey(32)
	if key == nil {
		return nil, errors.New("generate cookie secret")
	}
	logger.Warn("server.cookie_secret is not set; using a random key, sessions end on restart",
		zap.String("env", cfg.Env))
	return key, nil
}
