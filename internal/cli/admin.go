package cli

import (
	"context"
	"fmt"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewCreateAdminCmd registers an admin account in the shared user store.
func NewCreateAdminCmd(configPath *string) *cobra.Command {
	var email, name, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Register an admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return createAdmin(cmd.Context(), *configPath, app.RegisterInput{
				Email:       email,
				DisplayName: name,
				Password:    password,
				Role:        domain.RoleAdmin,
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&name, "name", "Administrator", "display name")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func createAdmin(ctx context.Context, configPath string, in app.RegisterInput) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis addr not configured: accounts created here would not outlive the command")
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	user, err := app.NewSessionRegistry(b.users, cfg.Session.TTL, cfg.Auth.BcryptCost, app.WithLogger(log)).Register(ctx, in)
	if err != nil {
		return err
	}
	log.Info("admin account created", zap.String("email", user.Email))
	return nil
}
