package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"live-quiz-service/internal/domain"

	"go.uber.org/zap"
)

// DefaultCountdown is how long a started test runs before it stops by itself.
const DefaultCountdown = 120 * time.Second

// LifecycleController owns Test records: creation, the single active test, the
// presence broadcast and the countdown that closes a run.
type LifecycleController struct {
	tests     TestRepository
	bank      QuestionBank
	presence  PresenceChannel
	countdown time.Duration
	opts      options

	// mu serializes every lifecycle mutation made through this controller.
	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

func NewLifecycleController(tests TestRepository, bank QuestionBank, presence PresenceChannel, countdown time.Duration, opts ...Option) *LifecycleController {
	if countdown <= 0 {
		countdown = DefaultCountdown
	}
	return &LifecycleController{
		tests:     tests,
		bank:      bank,
		presence:  presence,
		countdown: countdown,
		opts:      buildOptions(opts),
		timers:    make(map[string]*time.Timer),
	}
}

// Countdown returns the configured run duration.
func (c *LifecycleController) Countdown() time.Duration {
	return c.countdown
}

// CreateTest draws count distinct questions uniformly at random and stores a stopped test
// holding an immutable copy of them.
func (c *LifecycleController) CreateTest(ctx context.Context, name string, count int) (domain.Test, error) {
	name = strings.TrimSpace(name)
	if name == "" || count <= 0 {
		return domain.Test{}, domain.ErrInvalidTest
	}

	bank, err := c.bank.Questions(ctx)
	if err != nil {
		return domain.Test{}, err
	}
	if count > len(bank) {
		return domain.Test{}, fmt.Errorf("%w: requested %d, bank has %d", domain.ErrInsufficientQuestions, count, len(bank))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	drawn := c.draw(bank, count)
	test := domain.Test{
		ID:                     c.opts.newID(),
		Name:                   name,
		RequestedQuestionCount: count,
		CreatedAt:              c.opts.now(),
		Status:                 domain.TestStopped,
		Questions:              drawn,
	}
	if err := c.tests.Save(ctx, test); err != nil {
		return domain.Test{}, err
	}
	c.opts.logger.Info("test created",
		zap.String("test_id", test.ID),
		zap.String("name", test.Name),
		zap.Int("questions", count),
	)
	return test, nil
}

// draw runs a Fisher-Yates shuffle over a copy of bank and keeps the first count entries.
// Callers hold c.mu because rand.Rand is not safe for concurrent use.
func (c *LifecycleController) draw(bank []domain.Question, count int) []domain.Question {
	shuffled := make([]domain.Question, len(bank))
	copy(shuffled, bank)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := c.opts.rnd.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	drawn := make([]domain.Question, count)
	for i := 0; i < count; i++ {
		drawn[i] = shuffled[i].Clone()
	}
	return drawn
}

// Start makes testID the active test, publishes its questions and arms the countdown.
// Starting the already active test is a no-op.
func (c *LifecycleController) Start(ctx context.Context, testID string) (domain.Test, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	test, err := c.tests.Get(ctx, testID)
	if err != nil {
		return domain.Test{}, err
	}
	if test.Started() {
		return test, nil
	}

	runID := c.opts.newID()
	if err := c.claimLocked(ctx, test.ID, runID); err != nil {
		return domain.Test{}, err
	}

	now := c.opts.now()
	test.Status = domain.TestStarted
	test.RunID = runID
	test.StartedAt = now
	test.DeadlineAt = now.Add(c.countdown)

	if err := c.presence.Publish(ctx, domain.PresenceFor(test, now)); err != nil {
		_ = c.tests.ReleaseActive(ctx, test.ID, runID)
		return domain.Test{}, err
	}
	if err := c.tests.Save(ctx, test); err != nil {
		_ = c.presence.Clear(ctx, test.ID, domain.ReasonStopped)
		_ = c.tests.ReleaseActive(ctx, test.ID, runID)
		return domain.Test{}, err
	}
	c.armLocked(test.ID, test.RunID, c.countdown)

	c.opts.logger.Info("test started",
		zap.String("test_id", test.ID),
		zap.String("run_id", test.RunID),
		zap.Time("deadline_at", test.DeadlineAt),
	)
	return test, nil
}

// claimLocked takes the active slot for runID. A slot held by a test that no longer
// exists is reclaimed; any other holder, including another run of testID started by a
// different instance, means a test is already running.
func (c *LifecycleController) claimLocked(ctx context.Context, testID, runID string) error {
	holder, ok, err := c.tests.ClaimActive(ctx, testID, runID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	_, err = c.tests.Get(ctx, holder)
	if err == nil {
		return fmt.Errorf("%w: %s", domain.ErrAnotherTestActive, holder)
	}
	if !errors.Is(err, domain.ErrTestNotFound) {
		return err
	}

	c.opts.logger.Warn("reclaiming active slot from deleted test", zap.String("holder", holder))
	if err := c.tests.ReleaseActive(ctx, holder, ""); err != nil {
		return err
	}
	holder, ok, err = c.tests.ClaimActive(ctx, testID, runID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrAnotherTestActive, holder)
	}
	return nil
}

// Stop clears the presence channel and marks the test stopped. Stopping a stopped test
// is a no-op.
func (c *LifecycleController) Stop(ctx context.Context, testID string) (domain.Test, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	test, err := c.tests.Get(ctx, testID)
	if err != nil {
		return domain.Test{}, err
	}
	return c.stopLocked(ctx, test, domain.ReasonStopped)
}

func (c *LifecycleController) stopLocked(ctx context.Context, test domain.Test, reason domain.ClearReason) (domain.Test, error) {
	c.disarmLocked(test.ID)
	if !test.Started() {
		// Releases a claim left behind by an interrupted start.
		if err := c.tests.ReleaseActive(ctx, test.ID, ""); err != nil {
			return domain.Test{}, err
		}
		return test, nil
	}

	if err := c.presence.Clear(ctx, test.ID, reason); err != nil {
		return domain.Test{}, err
	}
	test.Status = domain.TestStopped
	test.DeadlineAt = time.Time{}
	if err := c.tests.Save(ctx, test); err != nil {
		return domain.Test{}, err
	}
	if err := c.tests.ReleaseActive(ctx, test.ID, test.RunID); err != nil {
		return domain.Test{}, err
	}

	c.opts.logger.Info("test stopped",
		zap.String("test_id", test.ID),
		zap.String("run_id", test.RunID),
		zap.String("reason", string(reason)),
	)
	return test, nil
}

// Delete removes a test, clearing the presence channel first when it is running.
func (c *LifecycleController) Delete(ctx context.Context, testID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	test, err := c.tests.Get(ctx, testID)
	if err != nil {
		return err
	}
	c.disarmLocked(test.ID)
	if test.Started() {
		if err := c.presence.Clear(ctx, test.ID, domain.ReasonDeleted); err != nil {
			return err
		}
	}
	if err := c.tests.Delete(ctx, test.ID); err != nil {
		return err
	}
	if err := c.tests.ReleaseActive(ctx, test.ID, ""); err != nil {
		return err
	}
	c.opts.logger.Info("test deleted", zap.String("test_id", test.ID))
	return nil
}

// Get returns one test.
func (c *LifecycleController) Get(ctx context.Context, testID string) (domain.Test, error) {
	return c.tests.Get(ctx, testID)
}

// List returns every test, newest first.
func (c *LifecycleController) List(ctx context.Context) ([]domain.Test, error) {
	tests, err := c.tests.List(ctx)
	if err != nil {
		return nil, err
	}
	SortNewestFirst(tests)
	return tests, nil
}

// Active returns the running test, if any.
func (c *LifecycleController) Active(ctx context.Context) (domain.Test, bool, error) {
	tests, err := c.tests.List(ctx)
	if err != nil {
		return domain.Test{}, false, err
	}
	for _, t := range tests {
		if t.Started() {
			return t, true, nil
		}
	}
	return domain.Test{}, false, nil
}

// ExpireOverdue stops every started test whose deadline has passed, whoever started it.
func (c *LifecycleController) ExpireOverdue(ctx context.Context) (int, error) {
	tests, err := c.tests.List(ctx)
	if err != nil {
		return 0, err
	}
	now := c.opts.now()
	expired := 0
	for _, t := range tests {
		if !t.Overdue(now) {
			continue
		}
		ok, err := c.expire(ctx, t.ID, t.RunID)
		if err != nil {
			return expired, err
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

// Restore re-arms countdowns for tests that were running before a restart.
func (c *LifecycleController) Restore(ctx context.Context) error {
	tests, err := c.tests.List(ctx)
	if err != nil {
		return err
	}
	now := c.opts.now()
	for _, t := range tests {
		if !t.Started() {
			continue
		}
		if t.Overdue(now) {
			if _, err := c.expire(ctx, t.ID, t.RunID); err != nil {
				return err
			}
			continue
		}
		c.mu.Lock()
		c.armLocked(t.ID, t.RunID, t.DeadlineAt.Sub(now))
		c.mu.Unlock()
		c.opts.logger.Info("countdown restored", zap.String("test_id", t.ID), zap.Time("deadline_at", t.DeadlineAt))
	}
	return nil
}

// expire stops testID only while runID is still its current run.
func (c *LifecycleController) expire(ctx context.Context, testID, runID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	test, err := c.tests.Get(ctx, testID)
	if errors.Is(err, domain.ErrTestNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !test.Started() || test.RunID != runID {
		return false, nil
	}
	if _, err := c.stopLocked(ctx, test, domain.ReasonTimeout); err != nil {
		return false, err
	}
	c.opts.logger.Info("test auto-stopped", zap.String("test_id", testID), zap.String("run_id", runID))
	return true, nil
}

func (c *LifecycleController) armLocked(testID, runID string, after time.Duration) {
	if c.closed {
		return
	}
	c.disarmLocked(testID)
	if after < 0 {
		after = 0
	}
	c.timers[testID] = time.AfterFunc(after, func() {
		if _, err := c.expire(context.Background(), testID, runID); err != nil {
			// The sweeper retries from the persisted deadline.
			c.opts.logger.Error("auto-stop failed", zap.String("test_id", testID), zap.Error(err))
		}
	})
}

func (c *LifecycleController) disarmLocked(testID string) {
	if t, ok := c.timers[testID]; ok {
		t.Stop()
		delete(c.timers, testID)
	}
}

// Close disarms every countdown. Persisted deadlines are still enforced by Restore or a Sweeper.
func (c *LifecycleController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id := range c.timers {
		c.disarmLocked(id)
	}
}

// SortNewestFirst orders tests by creation time, newest first.
func SortNewestFirst(tests []domain.Test) {
	sort.SliceStable(tests, func(i, j int) bool {
		return tests[i].CreatedAt.After(tests[j].CreatedAt)
	})
}
