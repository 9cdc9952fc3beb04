// Package main is the entry point for the SimpleNotes API server.
//
// It loads configuration, opens the database pool, wires the auth, notes,
// quota and billing services, builds the HTTP server with the core chassis
// and starts listening for requests.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"simplenotes/internal/api/handlers"
	"simplenotes/internal/auth"
	"simplenotes/internal/billing"
	"simplenotes/internal/config"
	"simplenotes/internal/core"
	"simplenotes/internal/db"
	"simplenotes/internal/entitlement"
	"simplenotes/internal/external"
	"simplenotes/internal/queue"
	"simplenotes/internal/quota"
	"simplenotes/internal/types"
)

// sessionPurgeInterval is how often expired sessions are deleted.
const sessionPurgeInterval = time.Hour

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(config.ProviderFromEnv())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("simplenotes API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	if cfg.Database.AutoMigrate {
		if err := db.RunMigrations(cfg.Database.URL.Unmask()); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.Database.URL.Unmask(),
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating server: %w", err)
	}

	app, err := wireServices(ctx, cfg, pool, srv, logger)
	if err != nil {
		pool.Close()
		return err
	}

	mountHandlers(srv, app)
	srv.MountRoutes()

	purgeCtx, stopPurge := context.WithCancel(ctx)
	go purgeSessions(purgeCtx, app.sessions, sessionPurgeInterval, logger)
	srv.OnShutdown(func(context.Context) error {
		stopPurge()
		pool.Close()
		return nil
	})

	return runHTTPServer(srv, cfg, logger)
}

// sessionPurger is implemented by auth.SessionService.
type sessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// billingAPI is the billing surface shared by the billing and webhook
// handlers. Implemented by billing.Service.
type billingAPI interface {
	handlers.BillingService
	handlers.WebhookApplier
}

// application holds the services the HTTP handlers depend on.
type application struct {
	auth          handlers.AuthService
	notes         handlers.NoteRepo
	quota         handlers.NoteQuota
	billing       billingAPI
	verifier      external.WebhookVerifier
	webhookSecret string
	sessions      sessionPurger
}

// wireServices builds repositories and services on top of pool and attaches
// the chassis dependencies (metrics, authenticator, probes) to srv.
func wireServices(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, srv *core.Server, logger *slog.Logger) (*application, error) {
	entitlements := db.NewEntitlementRepo(pool, logger)
	notes := db.NewNoteRepository(pool)
	users := db.NewUserRepository(pool)
	registrar := db.NewRegistrar(pool, logger)
	sessionRepo := db.NewSessionRepository(pool)

	metrics := core.NewMetrics()
	metrics.RegisterPgxPool(pool)
	if cfg.Metrics.EnableMetrics {
		srv.Metrics = metrics
	}

	clients := external.NewClientRegistry(cfg, logger)
	engine := entitlement.NewEngine(entitlements, logger)

	billingOpts := []billing.Option{billing.WithRecorder(metrics)}
	if cfg.Queue.ResyncQueueURL != "" {
		sqsClient, err := newSQSClient(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
		billingOpts = append(billingOpts,
			billing.WithResyncPublisher(queue.NewResyncPublisher(sqsClient, cfg.Queue, logger)))
	}
	billingSvc := billing.NewService(
		clients.Billing,
		entitlements,
		engine,
		billing.Config{PriceID: cfg.Billing.StripePriceID, SiteURL: cfg.Server.SiteURL},
		logger,
		billingOpts...,
	)

	quotaOpts := []quota.Option{quota.WithDenialRecorder(metrics)}
	if cfg.Quota.Strict {
		quotaOpts = append(quotaOpts, quota.WithStrictCreator(db.NewSerializedNoteCreator(pool)))
	}
	gate := quota.NewGate(entitlements, notes, quota.NewStaticPlanRegistry(cfg.Quota.FreeNoteLimit), logger, quotaOpts...)

	sessions := auth.NewSessionService(
		sessionRepo,
		nil,
		auth.SessionConfig{SessionDuration: cfg.Auth.SessionTTL},
		types.RealClock{},
		logger,
	)
	authSvc := auth.NewService(auth.ServiceConfig{
		Users:     users,
		Registrar: registrar,
		Sessions:  sessions,
		Hasher:    auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		Clock:     types.RealClock{},
		Logger:    logger,
	})

	srv.Authenticator = authSvc
	srv.RateLimitStore = core.NewMemoryRateLimitStore()
	srv.HealthProbes = []core.HealthProbe{core.NewPingProbe("database", pool)}

	return &application{
		auth:          authSvc,
		notes:         notes,
		quota:         gate,
		billing:       billingSvc,
		verifier:      clients.Verifier,
		webhookSecret: cfg.Billing.StripeWebhookSecret.Unmask(),
		sessions:      sessions,
	}, nil
}

// mountHandlers registers the domain handlers under /v1.
func mountHandlers(srv *core.Server, app *application) {
	logger := srv.Logger

	authHandler := handlers.NewAuthHandler(app.auth, srv.Validator, logger)
	noteHandler := handlers.NewNoteHandler(app.notes, app.quota, nil, srv.Validator, logger)
	billingHandler := handlers.NewBillingHandler(app.billing, srv.Validator, logger)
	webhookHandler := handlers.NewStripeWebhookHandler(app.verifier, app.billing, app.webhookSecret, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		authHandler.RegisterRoutes,
		noteHandler.RegisterRoutes,
		billingHandler.RegisterRoutes,
		webhookHandler.RegisterRoutes,
	)
}

// newSQSClient builds an SQS client, honoring the LocalStack endpoint override.
func newSQSClient(ctx context.Context, awsCfg config.AWSConfig) (*sqs.Client, error) {
	sdkCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(awsCfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS SDK config: %w", err)
	}
	return sqs.NewFromConfig(sdkCfg, func(o *sqs.Options) {
		if awsCfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(awsCfg.EndpointURL)
		}
	}), nil
}

// purgeSessions deletes expired sessions every interval until ctx is done.
func purgeSessions(ctx context.Context, sessions sessionPurger, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("expired session purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("expired sessions purged", "count", n)
			}
		}
	}
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with a 10-second deadline.
	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
