package cli

import (
	"context"
	"fmt"
	"os"

	"live-quiz-service/internal/config"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/postgres"
	infraredis "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewImportQuestionsCmd loads a YAML question file into Postgres.
func NewImportQuestionsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import-questions <file.yaml>",
		Short: "Upsert questions from a YAML file into the question bank",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return importQuestions(cmd.Context(), *configPath, args[0])
		},
	}
}

func importQuestions(ctx context.Context, configPath, file string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	questions, err := memory.ParseQuestions(data)
	if err != nil {
		return err
	}

	pool, err := postgres.OpenPool(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	loader := postgres.NewQuestionLoader(pool)
	if err := loader.InsertQuestions(ctx, questions); err != nil {
		return err
	}
	total, err := loader.CountQuestions(ctx)
	if err != nil {
		return err
	}
	log.Info("questions imported", zap.Int("imported", len(questions)), zap.Int("bank_size", total))

	// Running servers pick the new bank up on their next read.
	if cfg.Redis.Addr != "" {
		client, err := infraredis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer client.Close()
		if err := infraredis.NewQuestionCache(client, loader, cfg.Quiz.BankTTL).Invalidate(ctx); err != nil {
			return err
		}
		log.Info("question cache invalidated")
	}
	return nil
}
