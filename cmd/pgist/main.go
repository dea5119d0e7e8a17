// Package main implements pgist, a command-line front end for the query
// executor and the migration engine.
//
// Usage:
//
//	pgist query "SELECT * FROM users"
//	pgist migrate create [-sql] <name>
//	pgist migrate status
//	pgist migrate pending
//	pgist migrate run
//
// Configuration comes from the environment (or a .env file); see
// internal/config. When MIGRATIONS_DIR is unset the migrations compiled into
// the binary are used, and "migrate create" is unavailable.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"unicode"

	"golang.org/x/sync/errgroup"

	"pgist/internal/config"
	"pgist/internal/db"
	"pgist/internal/migrate"
	"pgist/internal/sqlfrag"
	"pgist/internal/types"
	"pgist/migrations"
)

// queryBatchSize is the cursor batch size used by "pgist query".
const queryBatchSize = 25

// errUsage is returned after usage text has been printed.
var errUsage = errors.New("invalid usage")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return errUsage
	}

	switch args[0] {
	case "query":
		return queryCommand(ctx, args[1:], stdout, stderr)
	case "migrate":
		return migrateCommand(ctx, args[1:], stdout, stderr)
	default:
		printUsage(stderr)
		return errUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: pgist [command]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  query <sql>   run a SQL query and print its rows as JSON lines")
	fmt.Fprintln(w, "  migrate       migration commands")
}

func printMigrateUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: pgist migrate [command]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Migrate commands:")
	fmt.Fprintln(w, "  create [-sql] <name>   create a new migration")
	fmt.Fprintln(w, "  status                 show the latest applied migration")
	fmt.Fprintln(w, "  pending                list migrations not yet applied")
	fmt.Fprintln(w, "  run                    apply all pending migrations")
}

// env is what every command needs once its arguments are valid.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
}

func loadEnv() (*env, error) {
	var provider config.SecretProvider
	if !config.IsLocal(os.Getenv("APP_ENV")) {
		region := os.Getenv("AWS_REGION")
		if region == "" {
			region = "us-east-1"
		}
		provider = config.NewSSMProvider(region)
	}

	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	return &env{cfg: cfg, logger: logger}, nil
}

func (e *env) openDB(ctx context.Context) (*db.DB, error) {
	database, err := db.Open(ctx, e.cfg, e.logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return database, nil
}

func (e *env) engine(database *db.DB) *migrate.Engine {
	opts := migrate.Options{Dir: e.cfg.Migrations.Dir, Logger: e.logger}
	if opts.Dir == "" {
		opts.FS = migrations.FS
	}
	return migrate.New(database, opts)
}

func queryCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) != 1 || args[0] == "" {
		fmt.Fprintln(stderr, "Usage: pgist query <sql>")
		return errUsage
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}
	database, err := e.openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	enc := json.NewEncoder(stdout)
	q := sqlfrag.Unsafe(args[0])

	// A cursor can only be declared over a query; anything else runs as a
	// plain batch and prints whatever its last statement returned.
	if !isRowQuery(args[0]) {
		res, err := database.Query(ctx, q)
		if err != nil {
			return err
		}
		for row := range res.Rows() {
			if err := enc.Encode(row); err != nil {
				return fmt.Errorf("encoding row: %w", err)
			}
		}
		return nil
	}

	for row, err := range database.StreamBatch(ctx, q, queryBatchSize) {
		if err != nil {
			return err
		}
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("encoding row: %w", err)
		}
	}
	return nil
}

// rowQueryKeywords are the statements DECLARE ... CURSOR FOR accepts.
var rowQueryKeywords = []string{"SELECT", "VALUES", "WITH", "TABLE"}

// isRowQuery reports whether text starts with a statement that can back a
// cursor. Leading whitespace, parentheses and comments are skipped.
func isRowQuery(text string) bool {
	rest := text
	for {
		rest = strings.TrimLeft(rest, " \t\r\n(")
		switch {
		case strings.HasPrefix(rest, "--"):
			end := strings.IndexByte(rest, '\n')
			if end < 0 {
				return false
			}
			rest = rest[end+1:]
		case strings.HasPrefix(rest, "/*"):
			end := strings.Index(rest, "*/")
			if end < 0 {
				return false
			}
			rest = rest[end+2:]
		default:
			word := rest
			if i := strings.IndexFunc(rest, func(r rune) bool {
				return !unicode.IsLetter(r)
			}); i >= 0 {
				word = rest[:i]
			}
			for _, kw := range rowQueryKeywords {
				if strings.EqualFold(word, kw) {
					return true
				}
			}
			return false
		}
	}
}

func migrateCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printMigrateUsage(stderr)
		return errUsage
	}

	switch args[0] {
	case "create":
		return createCommand(args[1:], stdout, stderr)
	case "status":
		return withEngine(ctx, func(eng *migrate.Engine) error { return statusCommand(ctx, eng, stdout) })
	case "pending":
		return withEngine(ctx, func(eng *migrate.Engine) error { return pendingCommand(ctx, eng, stdout) })
	case "run":
		return withEngine(ctx, func(eng *migrate.Engine) error { return runCommand(ctx, eng, stdout) })
	default:
		printMigrateUsage(stderr)
		return errUsage
	}
}

func withEngine(ctx context.Context, fn func(*migrate.Engine) error) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	database, err := e.openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	return fn(e.engine(database))
}

func createCommand(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(stderr)
	sqlFile := fs.Bool("sql", false, "create a .sql migration instead of a Go one")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: pgist migrate create [-sql] <name>")
	}
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errUsage
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}
	if e.cfg.Migrations.Dir == "" {
		return types.NewAppError(types.ErrCodeMigrationsDirUnset, "MIGRATIONS_DIR is not set", nil)
	}

	// Creating a file does not touch the database.
	path, created, err := e.engine(nil).Create(fs.Arg(0), *sqlFile)
	if err != nil {
		return err
	}
	if !created {
		return errors.New("cannot create migration: a migration with that name was created this second")
	}

	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "Created migration %s\n", path)
	return nil
}

func statusCommand(ctx context.Context, eng *migrate.Engine, stdout io.Writer) error {
	var (
		latest  *migrate.Record
		pending []migrate.File
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		latest, err = eng.Status(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		pending, err = eng.Pending(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintln(stdout)
	if latest == nil {
		fmt.Fprintln(stdout, "Never migrated")
	} else {
		fmt.Fprintf(stdout, "Currently migrated to %s\n", latest.ID)
	}
	fmt.Fprintf(stdout, "%d pending\n", len(pending))
	return nil
}

func pendingCommand(ctx context.Context, eng *migrate.Engine, stdout io.Writer) error {
	pending, err := eng.Pending(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout)
	if len(pending) == 0 {
		fmt.Fprintln(stdout, "No pending migrations")
		return nil
	}
	fmt.Fprintln(stdout, "Pending migrations:")
	for _, f := range pending {
		fmt.Fprintf(stdout, "  - %s\n", f.Path)
	}
	return nil
}

func runCommand(ctx context.Context, eng *migrate.Engine, stdout io.Writer) error {
	applied, err := eng.Run(ctx)

	fmt.Fprintln(stdout)
	if err == nil && len(applied) == 0 {
		fmt.Fprintln(stdout, "No pending migrations")
		return nil
	}
	if len(applied) > 0 {
		fmt.Fprintln(stdout, "Migrated:")
		for _, f := range applied {
			fmt.Fprintf(stdout, "  - %s\n", f.Path)
		}
	}
	return err
}

// newLogger writes JSON to stderr so stdout carries only command output.
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
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
