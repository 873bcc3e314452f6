package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/infra/postgres"
	"live-quiz-service/internal/logger"
	transport "live-quiz-service/internal/transport/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
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

	if b.db != nil {
		group, err := postgres.Migrate(ctx, b.db)
		if err != nil {
			return err
		}
		log.Info("migrations applied", zap.String("group", group.String()))
	}

	svc := newServices(cfg, b, log)
	defer svc.lifecycle.Close()
	if err := seedAdmin(ctx, cfg, svc.sessions, log); err != nil {
		return err
	}
	if err := svc.lifecycle.Restore(ctx); err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	secret, err := cookieSecret(cfg, log)
	if err != nil {
		return err
	}

	handler := transport.NewRouter(transport.Deps{
		Sessions:     svc.sessions,
		Lifecycle:    svc.lifecycle,
		Collector:    svc.collector,
		Scoring:      svc.scoring,
		Presence:     b.presence,
		Bank:         b.bank,
		CookieSecret: secret,
		SecureCookie: cfg.Server.SecureCookie,
		LoginRate:    cfg.Server.LoginRate,
		LoginBurst:   cfg.Server.LoginBurst,
		Logger:       log,
	})

	// No WriteTimeout: it would also cut off hijacked websocket connections.
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper := app.NewSweeper(svc.lifecycle, svc.sessions, cfg.Session.SweepInterval, log)
	if r, ok := b.presence.(app.PresenceResyncer); ok {
		sweeper.ResyncPresence(r)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting quiz service", zap.String("addr", server.Addr), zap.Duration("countdown", svc.lifecycle.Countdown()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
