package app

import (
	"context"
	"sort"

	"live-quiz-service/internal/domain"
)

// Score counts the questions whose submitted answer equals the canonical answer.
func Score(submission domain.AnswerSubmission, questions []domain.Question) int {
	score := 0
	for _, q := range questions {
		if given, ok := submission.Answers[q.ID]; ok && given.Equal(q.Answer) {
			score++
		}
	}
	return score
}

// Leaderboard scores every submission and ranks them by score, highest first.
// Ties keep submission order.
func Leaderboard(submissions []domain.AnswerSubmission, questions []domain.Question) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(submissions))
	for _, s := range submissions {
		entries = append(entries, domain.LeaderboardEntry{
			Name:     s.DisplayName,
			Email:    s.Email,
			Score:    Score(s, questions),
			Total:    len(questions),
			Outcomes: outcomes(s, questions),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func outcomes(s domain.AnswerSubmission, questions []domain.Question) []domain.QuestionOutcome {
	out := make([]domain.QuestionOutcome, 0, len(questions))
	for _, q := range questions {
		o := domain.QuestionOutcome{QuestionID: q.ID, CorrectChoice: q.CorrectChoice()}
		if given, ok := s.Answers[q.ID]; ok {
			o.Correct = given.Equal(q.Answer)
			if given.Kind == domain.AnswerIndex && given.Index >= 0 && given.Index < len(q.Choices) {
				o.Chosen = q.Choices[given.Index]
			} else {
				o.Chosen = given.String()
			}
		}
		out = append(out, o)
	}
	return out
}

// ScoringEngine derives results from stored submissions; it never writes scores.
type ScoringEngine struct {
	tests       TestRepository
	submissions SubmissionRepository
	opts        options
}

func NewScoringEngine(tests TestRepository, submissions SubmissionRepository, opts ...Option) *ScoringEngine {
	return &ScoringEngine{tests: tests, submissions: submissions, opts: buildOptions(opts)}
}

// LatestTest returns the most recently created test.
func (e *ScoringEngine) LatestTest(ctx context.Context) (domain.Test, bool, error) {
	tests, err := e.tests.List(ctx)
	if err != nil {
		return domain.Test{}, false, err
	}
	if len(tests) == 0 {
		return domain.Test{}, false, nil
	}
	SortNewestFirst(tests)
	return tests[0], true, nil
}

// Results ranks the submissions made for the latest test against its question snapshot.
func (e *ScoringEngine) Results(ctx context.Context) (domain.Leaderboard, error) {
	lb := domain.Leaderboard{Entries: []domain.LeaderboardEntry{}, UpdatedAt: e.opts.now()}
	test, ok, err := e.LatestTest(ctx)
	if err != nil || !ok {
		return lb, err
	}
	all, err := e.submissions.List(ctx)
	if err != nil {
		return lb, err
	}
	mine := make([]domain.AnswerSubmission, 0, len(all))
	for _, s := range all {
		if s.TestID == test.ID {
			mine = append(mine, s)
		}
	}
	lb.TestID = test.ID
	lb.TestName = test.Name
	lb.Entries = Leaderboard(mine, test.Questions)
	return lb, nil
}

// AnswerKey lists the latest test's questions with their correct choice.
func (e *ScoringEngine) AnswerKey(ctx context.Context) ([]domain.AnswerKeyEntry, error) {
	test, ok, err := e.LatestTest(ctx)
	if err != nil || !ok {
		return []domain.AnswerKeyEntry{}, err
	}
	key := make([]domain.AnswerKeyEntry, 0, len(test.Questions))
	for _, q := range test.Questions {
		key = append(key, domain.AnswerKeyEntry{
			QuestionID:    q.ID,
			Prompt:        q.Prompt,
			CorrectChoice: q.CorrectChoice(),
		})
	}
	return key, nil
}

// PurgeResults deletes every stored submission.
func (e *ScoringEngine) PurgeResults(ctx context.Context) error {
	return e.submissions.Purge(ctx)
}
