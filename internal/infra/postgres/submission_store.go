package postgres

import (
	"context"
	"errors"
	"time"

	"live-quiz-service/internal/domain"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

const uniqueViolation = "23505"

type submissionRow struct {
	bun.BaseModel `bun:"table:submissions"`

	Seq         int64                    `bun:"seq,pk,autoincrement"`
	ID          string                   `bun:"id,notnull"`
	Email       string                   `bun:"email,notnull"`
	DisplayName string                   `bun:"display_name,notnull"`
	TestID      string                   `bun:"test_id,notnull"`
	TestName    string                   `bun:"test_name,notnull"`
	RunID       string                   `bun:"run_id,notnull"`
	Answers     map[string]domain.Answer `bun:"answers,type:jsonb,notnull"`
	Forced      bool                     `bun:"forced,notnull"`
	SubmittedAt time.Time                `bun:"submitted_at,notnull"`
}

// SubmissionStore persists submissions in Postgres; (run_id, email) is unique.
type SubmissionStore struct {
	db *bun.DB
}

func NewSubmissionStore(db *bun.DB) *SubmissionStore {
	return &SubmissionStore{db: db}
}

func (s *SubmissionStore) Insert(ctx context.Context, submission domain.AnswerSubmission) error {
	row := submissionRow{
		ID:          submission.ID,
		Email:       submission.Email,
		DisplayName: submission.DisplayName,
		TestID:      submission.TestID,
		TestName:    submission.TestName,
		RunID:       submission.RunID,
		Answers:     submission.Answers,
		Forced:      submission.Forced,
		SubmittedAt: submission.SubmittedAt,
	}
	_, err := s.db.NewInsert().Model(&row).Exec(ctx)
	if isUniqueViolation(err) {
		return domain.ErrAlreadySubmitted
	}
	return domain.WrapStore("insert submission", err)
}

func (s *SubmissionStore) List(ctx context.Context) ([]domain.AnswerSubmission, error) {
	var rows []submissionRow
	if err := s.db.NewSelect().Model(&rows).Order("seq ASC").Scan(ctx); err != nil {
		return nil, domain.WrapStore("list submissions", err)
	}
	out := make([]domain.AnswerSubmission, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.AnswerSubmission{
			ID:          r.ID,
			Email:       r.Email,
			DisplayName: r.DisplayName,
			TestID:      r.TestID,
			TestName:    r.TestName,
			RunID:       r.RunID,
			Answers:     r.Answers,
			Forced:      r.Forced,
			SubmittedAt: r.SubmittedAt,
		})
	}
	return out, nil
}

func (s *SubmissionStore) Purge(ctx context.Context) error {
	_, err := s.db.NewDelete().Model((*submissionRow)(nil)).Where("TRUE").Exec(ctx)
	return domain.WrapStore("purge submissions", err)
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation
}
