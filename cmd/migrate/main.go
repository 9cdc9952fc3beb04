// Package main applies the embedded database migrations.
//
// Usage:
//
//	go run ./cmd/migrate            # apply pending migrations
//	go run ./cmd/migrate --status   # print the applied version
//
// DATABASE_URL is read from the environment, a .env file is not consulted.
// Outside APP_ENV=local a DATABASE_URL_SSM_PARAM pointer is resolved first.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"simplenotes/internal/config"
	"simplenotes/internal/db"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := run(os.Args[1:], os.Stdout, logger); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

// migrator is satisfied by the db package functions.
type migrator struct {
	up      func(databaseURL string) error
	version func(databaseURL string) (int64, error)
}

var defaultMigrator = migrator{up: db.RunMigrations, version: db.MigrationVersion}

func run(args []string, out io.Writer, logger *slog.Logger) error {
	return runWith(args, out, logger, defaultMigrator)
}

func runWith(args []string, out io.Writer, logger *slog.Logger, m migrator) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(out)
	status := fs.Bool("status", false, "print the applied migration version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := config.ResolveSecrets(config.ProviderFromEnv()); err != nil {
		return fmt.Errorf("resolving secrets: %w", err)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}

	if !*status {
		if err := m.up(databaseURL); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	v, err := m.version(databaseURL)
	if err != nil {
		return fmt.Errorf("reading migration version: %w", err)
	}
	fmt.Fprintf(out, "schema version: %d\n", v)
	return nil
}
