package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"mailgate/internal/auth"
	"mailgate/internal/config"
	"mailgate/internal/db"
	"mailgate/internal/httpserver"
	"mailgate/internal/logging"
	"mailgate/internal/mail"
	"mailgate/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(cfg *config.Config) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			return serve(cmd.Context(), *cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (env: MAILGATE_HTTP_ADDR)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if cfg.UsesDevSecret() {
		logger.Warn("MAILGATE_JWT_SECRET is not set, using the development secret")
	}

	registry, err := loadRegistry(cfg)
	if err != nil {
		return err
	}
	codec, err := newCodec(cfg)
	if err != nil {
		return err
	}

	sessions, closeSessions, err := openSessions(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSessions()

	store, closeStore, err := openMailStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	sender, err := newSender(cfg, logger)
	if err != nil {
		return err
	}
	policy := mail.DefaultPolicy()
	if cfg.PolicyPath != "" {
		if policy, err = mail.LoadPolicy(cfg.PolicyPath); err != nil {
			return fmt.Errorf("load mail policy: %w", err)
		}
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	gateway := auth.NewGateway(registry, codec, sessions, auth.WithObserver(m))
	responder := httpserver.NewResponder(logger, m)
	authorizer := auth.NewAuthorizer(gateway, cfg.PublicPaths, responder)
	mailSvc := mail.NewService(store, sender, policy, logger, mail.WithObserver(m))

	handler := httpserver.NewRouter(httpserver.RouterOptions{
		Logger:      logger,
		Metrics:     m,
		Gatherer:    prometheus.DefaultGatherer,
		Responder:   responder,
		Authorizer:  authorizer,
		Auth:        &auth.Handler{Gateway: gateway, Principals: registry, Logger: logger},
		Mail:        &mail.Handler{Service: mailSvc, Logger: logger},
		CORSOrigins: cfg.CORSOrigins,
	})
	server := httpserver.New(cfg.HTTPAddr, handler, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-sigCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func loadRegistry(cfg config.Config) (*auth.Registry, error) {
	seeds := auth.DefaultSeed()
	if cfg.UsersPath != "" {
		var err error
		if seeds, err = auth.LoadSeedFile(cfg.UsersPath); err != nil {
			return nil, fmt.Errorf("load users: %w", err)
		}
	}
	principals, err := auth.BuildPrincipals(seeds, cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("build principals: %w", err)
	}
	return auth.NewRegistry(principals)
}

func newCodec(cfg config.Config) (*auth.Codec, error) {
	return auth.NewCodec(cfg.JWTSecret, cfg.JWTExpiry,
		auth.WithIssuer(cfg.JWTIssuer),
		auth.WithAudience(cfg.JWTAudience),
	)
}

func openSessions(ctx context.Context, cfg config.Config, logger *slog.Logger) (auth.SessionStore, func(), error) {
	mode, err := auth.ParseSessionMode(cfg.SessionMode)
	if err != nil {
		return nil, nil, err
	}
	if cfg.RedisURL == "" {
		logger.Info("sessions kept in memory", "mode", mode)
		return auth.NewMemorySessionStore(mode, nil), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("sessions kept in redis", "addr", opts.Addr, "mode", mode)
	return auth.NewRedisSessionStore(client, mode, "mailgate:"), func() { _ = client.Close() }, nil
}

func openMailStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (mail.Store, func(), error) {
	if cfg.DBDSN == "" {
		logger.Info("messages kept in memory")
		return mail.NewMemoryStore(), func() {}, nil
	}
	conn, err := db.Open(ctx, cfg.DBDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.RunMigrations(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	return mail.NewPostgresStore(conn), closer(conn, logger), nil
}

func closer(conn *sql.DB, logger *slog.Logger) func() {
	return func() {
		if err := conn.Close(); err != nil {
			logger.Warn("close db", "err", err)
		}
	}
}

func newSender(cfg config.Config, logger *slog.Logger) (mail.Sender, error) {
	if cfg.SMTP.Addr == "" {
		logger.Warn("MAILGATE_SMTP_ADDR is not set, outbound mail is only logged")
		return mail.LogSender{Logger: logger}, nil
	}
	s, err := mail.NewSMTPSender(cfg.SMTP.Addr, cfg.SMTP.Username, cfg.SMTP.Password)
	if err != nil {
		return nil, fmt.Errorf("smtp sender: %w", err)
	}
	return s, nil
}
