// Command migrate prepares the schema behind the configured document store.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/textile/backend/internal/infrastructure/config"
	"github.com/textile/backend/internal/infrastructure/logger"
	"github.com/textile/backend/internal/infrastructure/migration"
	"github.com/textile/backend/internal/infrastructure/persistence"
)

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(out)
	logLevel := fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	driver := fs.String("store", "", "Override store.driver (memory, redis, postgres, sqlite)")
	fs.Usage = func() { printUsage(out) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		printUsage(out)
		return errUsage
	}
	command, rest := fs.Arg(0), fs.Args()[1:]

	log, err := logger.New(&logger.Config{
		Level:      *logLevel,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { logger.Sync(log) }()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *driver != "" {
		cfg.Store.Driver = *driver
	}
	log = log.With(zap.String("driver", cfg.Store.Driver), zap.String("command", command))

	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		return runPostgres(cfg, command, rest, out, log)
	case config.StoreDriverSQLite:
		if command != "up" {
			return fmt.Errorf("%w: sqlite only supports up", errUsage)
		}
		h, err := persistence.OpenStore(ctx, cfg, nil, log)
		if err != nil {
			return fmt.Errorf("failed to create sqlite schema: %w", err)
		}
		log.Info("SQLite schema ready", zap.String("path", cfg.Store.SQLitePath))
		fmt.Fprintf(out, "sqlite schema ready at %s\n", cfg.Store.SQLitePath)
		return h.Close()
	case config.StoreDriverMemory, config.StoreDriverRedis:
		log.Info("Store driver needs no migrations")
		fmt.Fprintf(out, "%s store needs no migrations\n", cfg.Store.Driver)
		return nil
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func runPostgres(cfg *config.Config, command string, args []string, out io.Writer, log *zap.Logger) error {
	// validate arguments before touching the database
	var n int
	switch command {
	case "up", "down", "version":
	case "step", "force":
		if len(args) < 1 {
			return fmt.Errorf("%w: %s needs a number", errUsage, command)
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("%w: %s: %q is not a number", errUsage, command, args[0])
		}
		n = v
	default:
		printUsage(out)
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	m, err := migration.New(db, log)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "step":
		err = m.Steps(n)
	case "force":
		err = m.Force(n)
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil {
			return fmt.Errorf("failed to read version: %w", verr)
		}
		fmt.Fprintf(out, "version %d dirty=%t\n", version, dirty)
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", command, err)
	}
	log.Info("Migration finished")
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Textile document store migration tool

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Create or upgrade the store schema
  down                  Roll back all migrations (postgres)
  step <n>              Apply n migrations, negative rolls back (postgres)
  version               Show current migration version (postgres)
  force <version>       Force set migration version after a failed run (postgres)

Flags:
  -log-level string     Log level: debug, info, warn, error (default: info)
  -store string         Override TEXTILE_STORE_DRIVER

Memory and redis stores keep no schema; up is a no-op for them.`)
}
