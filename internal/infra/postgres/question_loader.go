package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"live-quiz-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionLoader loads the question bank from Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `SELECT id, prompt, choices, answer, difficulty, subject FROM questions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var (
			q               domain.Question
			choices, answer []byte
		)
		if err := rows.Scan(&q.ID, &q.Prompt, &choices, &answer, &q.Difficulty, &q.Subject); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(choices, &q.Choices); err != nil {
			return nil, fmt.Errorf("unmarshal choices %s: %w", q.ID, err)
		}
		if err := json.Unmarshal(answer, &q.Answer); err != nil {
			return nil, fmt.Errorf("unmarshal answer %s: %w", q.ID, err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return out, nil
}

// InsertQuestions upserts questions in one transaction. Answers are stored in index form.
func (l *QuestionLoader) InsertQuestions(ctx context.Context, questions []domain.Question) error {
	batch := &pgx.Batch{}
	for _, q := range questions {
		if err := q.Normalize(); err != nil {
			return err
		}
		choices, err := json.Marshal(q.Choices)
		if err != nil {
			return err
		}
		answer, err := json.Marshal(q.Answer)
		if err != nil {
			return err
		}
		batch.Queue(`INSERT INTO questions (id, prompt, choices, answer, difficulty, subject)
VALUES ($1, $2, $3::jsonb, $4::jsonb, $5, $6)
ON CONFLICT (id) DO UPDATE SET prompt = EXCLUDED.prompt, choices = EXCLUDED.choices,
    answer = EXCLUDED.answer, difficulty = EXCLUDED.difficulty, subject = EXCLUDED.subject`,
			q.ID, q.Prompt, string(choices), string(answer), q.Difficulty, q.Subject)
	}

	return l.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for range questions {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("insert question: %w", err)
			}
		}
		return results.Close()
	})
}

// CountQuestions returns the number of stored questions.
func (l *QuestionLoader) CountQuestions(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, `SELECT count(*) FROM questions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return n, nil
}
