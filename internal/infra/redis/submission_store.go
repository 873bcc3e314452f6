package redis

import (
	"context"
	"encoding/json"

	"live-quiz-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// insertSubmission records the (run, email) marker and appends the submission atomically.
var insertSubmission = redis.NewScript(`
if redis.call("HSETNX", KEYS[1], ARGV[1], ARGV[2]) == 0 then
	return 0
end
redis.call("RPUSH", KEYS[2], ARGV[3])
return 1
`)

// SubmissionStore appends submissions to a Redis list, deduplicated per run and email.
type SubmissionStore struct {
	client *redis.Client
}

func NewSubmissionStore(client *redis.Client) *SubmissionStore {
	return &SubmissionStore{client: client}
}

func (s *SubmissionStore) Insert(ctx context.Context, submission domain.AnswerSubmission) error {
	data, err := json.Marshal(submission)
	if err != nil {
		return err
	}
	n, err := insertSubmission.Run(ctx, s.client,
		[]string{submittedKey, submissionsKey},
		submittedField(submission.RunID, submission.Email), submission.ID, data,
	).Int()
	if err != nil {
		return domain.WrapStore("insert submission", err)
	}
	if n == 0 {
		return domain.ErrAlreadySubmitted
	}
	return nil
}

func (s *SubmissionStore) List(ctx context.Context) ([]domain.AnswerSubmission, error) {
	raw, err := s.client.LRange(ctx, submissionsKey, 0, -1).Result()
	if err != nil {
		return nil, domain.WrapStore("list submissions", err)
	}
	out := make([]domain.AnswerSubmission, 0, len(raw))
	for _, item := range raw {
		var sub domain.AnswerSubmission
		if err := json.Unmarshal([]byte(item), &sub); err != nil {
			return nil, domain.WrapStore("decode submission", err)
		}
		out = append(out, sub)
	}
	return out, nil
}

func (s *SubmissionStore) Purge(ctx context.Context) error {
	return domain.WrapStore("purge submissions", s.client.Del(ctx, submissionsKey, submittedKey).Err())
}
