// Package main is the entrypoint for the Reconciler Lambda function.
//
// The Reconciler has two triggers: the resync SQS queue, fed by invoice
// webhooks, and an EventBridge schedule that sweeps entitlements not
// reconciled recently. Both end in billing.Service.ResyncCustomer.
//
// This file handles dependency wiring (Cold Start) and delegates all
// business logic to the internal/worker package.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"simplenotes/internal/billing"
	"simplenotes/internal/config"
	"simplenotes/internal/db"
	"simplenotes/internal/entitlement"
	"simplenotes/internal/external"
	"simplenotes/internal/types"
	"simplenotes/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("Reconciler Lambda initializing (cold start)")

	handler, cleanup, err := newHandler(context.Background(), logger)
	if err != nil {
		logger.Error("Reconciler initialization failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Local mode: read a JSON event from stdin instead of starting the
	// Lambda runtime.
	// Usage: echo '{"sweep":true}' | go run ./cmd/reconciler
	if os.Getenv("APP_ENV") == "local" {
		logger.Info("APP_ENV=local: reading event from stdin")
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("Failed to read stdin", "error", err)
			os.Exit(1)
		}
		if len(payload) == 0 {
			logger.Error("No input received on stdin")
			os.Exit(1)
		}

		result, err := handler.Invoke(context.Background(), json.RawMessage(payload))
		if err != nil {
			logger.Error("Handler execution failed", "error", err)
			os.Exit(1)
		}
		logger.Info("Handler execution completed successfully", "result", result)
		return
	}

	lambda.Start(handler.Invoke)
}

// newHandler loads configuration and wires the worker. The returned cleanup
// closes the database pool.
func newHandler(ctx context.Context, logger *slog.Logger) (*worker.Handler, func(), error) {
	cfg, err := config.LoadConfig(config.ProviderFromEnv())
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, nil, fmt.Errorf("loading AWS SDK config: %w", err)
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.Database.URL.Unmask(),
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening database pool: %w", err)
	}

	cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	return wireHandler(cfg, pool, cwClient, logger), pool.Close, nil
}

// wireHandler builds the worker over an open database handle and CloudWatch
// client.
func wireHandler(cfg *config.Config, conn db.DBTX, cw worker.CloudWatchClient, logger *slog.Logger) *worker.Handler {
	metrics := worker.NewCloudWatchMetrics(cw, cfg.Metrics.Namespace, logger)

	entitlements := db.NewEntitlementRepo(conn, logger)
	clients := external.NewClientRegistry(cfg, logger)

	// No resync publisher: the reconciler consumes the queue and must not
	// feed it.
	billingSvc := billing.NewService(
		clients.Billing,
		entitlements,
		entitlement.NewEngine(entitlements, logger),
		billing.Config{PriceID: cfg.Billing.StripePriceID, SiteURL: cfg.Server.SiteURL},
		logger,
		billing.WithRecorder(metrics),
	)

	logger.Info("Reconciler Lambda initialized",
		"metric_namespace", cfg.Metrics.Namespace,
		"sweep_stale_after", cfg.Sweep.StaleAfter.String(),
		"sweep_batch_size", cfg.Sweep.BatchSize,
		"sweep_concurrency", cfg.Sweep.Concurrency,
	)

	return worker.NewHandler(billingSvc, entitlements, metrics, cfg.Sweep, types.RealClock{}, logger)
}
