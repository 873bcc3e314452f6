package app

import (
	"context"
	"fmt"

	"live-quiz-service/internal/domain"

	"go.uber.org/zap"
)

// SubmissionCollector accepts one answer submission per participant per test run.
type SubmissionCollector struct {
	submissions SubmissionRepository
	tests       TestRepository
	presence    PresenceChannel
	opts        options
}

func NewSubmissionCollector(submissions SubmissionRepository, tests TestRepository, presence PresenceChannel, opts ...Option) *SubmissionCollector {
	return &SubmissionCollector{
		submissions: submissions,
		tests:       tests,
		presence:    presence,
		opts:        buildOptions(opts),
	}
}

// SubmitRequest is a participant's answer map for the running test.
type SubmitRequest struct {
	Email       string
	DisplayName string
	// TestID and RunID pin the run being answered. Forced submissions require both,
	// since the run may already have been stopped by the time they arrive.
	TestID  string
	RunID   string
	Answers map[string]domain.Answer
	// Forced marks a countdown-triggered submission that may cover any subset of questions.
	Forced bool
}

// Submit validates and stores a submission, returning it with its score.
func (c *SubmissionCollector) Submit(ctx context.Context, req SubmitRequest) (domain.Receipt, error) {
	if req.Email == "" {
		return domain.Receipt{}, domain.ErrUnauthenticated
	}

	test, err := c.targetTest(ctx, req)
	if err != nil {
		return domain.Receipt{}, err
	}

	answers, err := normalizeAnswers(test.Questions, req.Answers)
	if err != nil {
		return domain.Receipt{}, err
	}
	if !req.Forced && len(answers) < len(test.Questions) {
		return domain.Receipt{}, fmt.Errorf("%w: %d of %d answered", domain.ErrIncompleteAnswers, len(answers), len(test.Questions))
	}

	submission := domain.AnswerSubmission{
		ID:          c.opts.newID(),
		Email:       NormalizeEmail(req.Email),
		DisplayName: req.DisplayName,
		TestID:      test.ID,
		TestName:    test.Name,
		RunID:       test.RunID,
		Answers:     answers,
		Forced:      req.Forced,
		SubmittedAt: c.opts.now(),
	}
	if err := c.submissions.Insert(ctx, submission); err != nil {
		return domain.Receipt{}, err
	}

	score := Score(submission, test.Questions)
	c.opts.logger.Info("answers submitted",
		zap.String("email", submission.Email),
		zap.String("test_id", test.ID),
		zap.String("run_id", test.RunID),
		zap.Bool("forced", req.Forced),
		zap.Int("answered", len(answers)),
	)
	return domain.Receipt{Submission: submission, Score: score, Total: len(test.Questions)}, nil
}

// targetTest resolves the run a request answers. Explicit submissions go to the test in
// the presence channel; forced ones to the run they name, running or not.
func (c *SubmissionCollector) targetTest(ctx context.Context, req SubmitRequest) (domain.Test, error) {
	if req.Forced {
		if req.TestID == "" || req.RunID == "" {
			return domain.Test{}, domain.ErrNoActiveTest
		}
		test, err := c.tests.Get(ctx, req.TestID)
		if err != nil {
			return domain.Test{}, err
		}
		if test.RunID != req.RunID {
			return domain.Test{}, domain.ErrStaleRun
		}
		return test, nil
	}

	presence, err := c.presence.Current(ctx)
	if err != nil {
		return domain.Test{}, err
	}
	if presence.Empty() {
		return domain.Test{}, domain.ErrNoActiveTest
	}
	if (req.RunID != "" && req.RunID != presence.RunID) || (req.TestID != "" && req.TestID != presence.TestID) {
		return domain.Test{}, domain.ErrStaleRun
	}
	test, err := c.tests.Get(ctx, presence.TestID)
	if err != nil {
		return domain.Test{}, err
	}
	if test.RunID != presence.RunID {
		return domain.Test{}, domain.ErrStaleRun
	}
	return test, nil
}

// normalizeAnswers resolves every given answer to index form against its question.
// Empty answers are dropped.
func normalizeAnswers(questions []domain.Question, given map[string]domain.Answer) (map[string]domain.Answer, error) {
	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	out := make(map[string]domain.Answer, len(given))
	for id, answer := range given {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownQuestion, id)
		}
		if answer.IsZero() {
			continue
		}
		resolved, err := answer.Resolve(q.Choices)
		if err != nil {
			return nil, err
		}
		out[id] = resolved
	}
	return out, nil
}
