package migrate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pgist/internal/db"
	"pgist/internal/types"
)

// Options configures an Engine.
type Options struct {
	// Dir is the migrations directory on disk. Create writes there.
	Dir string
	// FS is read for discovery and SQL migrations. It defaults to
	// os.DirFS(Dir); set it to serve embedded migrations.
	FS fs.FS
	// Loader defaults to DefaultLoader with the default registry.
	Loader Loader
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Engine discovers, creates and applies migrations.
type Engine struct {
	db     *db.DB
	dir    string
	fsys   fs.FS
	loader Loader
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Engine over database.
func New(database *db.DB, opts Options) *Engine {
	e := &Engine{
		db:     database,
		dir:    opts.Dir,
		fsys:   opts.FS,
		loader: opts.Loader,
		logger: opts.Logger,
		now:    opts.Now,
	}
	if e.fsys == nil && e.dir != "" {
		e.fsys = os.DirFS(e.dir)
	}
	if e.loader == nil {
		e.loader = DefaultLoader{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

func errDirUnset() error {
	return types.NewAppError(types.ErrCodeMigrationsDirUnset, "migrations directory is not configured", nil)
}

// Discover lists the migration files, sorted by id.
func (e *Engine) Discover() ([]File, error) {
	if e.fsys == nil {
		return nil, errDirUnset()
	}
	return Discover(e.fsys, ".")
}

// Lock takes the migration lock. Callers must Release it.
func (e *Engine) Lock(ctx context.Context) (*Lock, error) {
	return acquireLock(ctx, e.db, e.logger)
}

// Status returns the latest applied migration, or nil if none.
func (e *Engine) Status(ctx context.Context) (*Record, error) {
	return LatestMigration(ctx, e.db)
}

// Pending lists the migrations newer than the latest applied one. The
// directory scan and the database read run concurrently.
func (e *Engine) Pending(ctx context.Context) ([]File, error) {
	var (
		files  []File
		latest *Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		files, err = e.Discover()
		return err
	})
	g.Go(func() error {
		var err error
		latest, err = LatestMigration(gctx, e.db)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return Pending(files, latest), nil
}

// Apply runs one migration under the migration lock and records it.
//
// The file is loaded before anything touches the database. Apply fails with
// ErrCodeMigrationLocked if another process holds the lock and with
// ErrCodeMigrationAlreadyApplied if a migration with an id >= f.ID is
// already recorded. If the migration function fails, whatever it executed
// before failing stays applied and the id is not recorded.
func (e *Engine) Apply(ctx context.Context, f File) error {
	return e.apply(ctx, f, e.logger.With("run_id", uuid.NewString()))
}

func (e *Engine) apply(ctx context.Context, f File, logger *slog.Logger) (err error) {
	logger = logger.With("migration", f.Path)

	fn, err := e.loader.Load(e.fsys, f)
	if err != nil {
		return err
	}

	lock, err := acquireLock(ctx, e.db, logger)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := lock.Release(ctx); relErr != nil && err == nil {
			err = fmt.Errorf("releasing migration lock: %w", relErr)
		}
	}()

	q := lock.Queryable()

	if err := EnsureMigrationsTable(ctx, q); err != nil {
		return err
	}

	latest, err := LatestMigration(ctx, q)
	if err != nil {
		return err
	}
	if latest != nil && latest.ID >= f.ID {
		return types.NewAppErrorWithDetails(types.ErrCodeMigrationAlreadyApplied,
			fmt.Sprintf("migration %s is not newer than the latest applied migration %s", f.ID, latest.ID),
			nil, map[string]any{"id": f.ID, "latest": latest.ID})
	}

	start := e.now()
	logger.Info("applying migration", "id", f.ID)

	if err := fn(ctx, q); err != nil {
		logger.Error("migration failed", "id", f.ID, "error", err)
		return err
	}
	if err := RecordMigration(ctx, q, f.ID); err != nil {
		return fmt.Errorf("recording migration %s: %w", f.ID, err)
	}

	logger.Info("migration applied", "id", f.ID, "duration", e.now().Sub(start))
	return nil
}

// Run applies every pending migration in id order and returns those that
// were applied. It stops at the first failure; later migrations are not
// attempted.
func (e *Engine) Run(ctx context.Context) ([]File, error) {
	logger := e.logger.With("run_id", uuid.NewString())

	pending, err := e.Pending(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("migration run started", "pending", len(pending))

	applied := make([]File, 0, len(pending))
	for _, f := range pending {
		if err := e.apply(ctx, f, logger); err != nil {
			return applied, fmt.Errorf("migration %s failed: %w", f.Path, err)
		}
		applied = append(applied, f)
	}

	logger.Info("migration run finished", "applied", len(applied))
	return applied, nil
}

// Create writes an empty migration named after the current UTC second and
// name, as Go source or, with sqlFile, as SQL. It returns the new path and
// true. If that file already exists it returns "", false and no error, so
// repeating the command within one second does not clobber the first file.
func (e *Engine) Create(name string, sqlFile bool) (string, bool, error) {
	if e.dir == "" {
		return "", false, errDirUnset()
	}

	slug := slugify(name)
	if slug == "" {
		return "", false, types.NewAppError(types.ErrCodeMigrationFile,
			fmt.Sprintf("migration name %q has no usable characters", name), nil)
	}

	id := e.now().UTC().Format(IDLayout)
	ext, body := "go", goTemplate(packageName(e.dir), id)
	if sqlFile {
		ext, body = "sql", sqlTemplate
	}
	p := filepath.Join(e.dir, id+"-"+slug+"."+ext)

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", false, fmt.Errorf("creating migrations directory: %w", err)
	}

	fh, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("creating migration file: %w", err)
	}
	if _, err := fh.WriteString(body); err != nil {
		fh.Close()
		return "", false, fmt.Errorf("writing migration file: %w", err)
	}
	if err := fh.Close(); err != nil {
		return "", false, fmt.Errorf("writing migration file: %w", err)
	}

	e.logger.Info("migration created", "path", p)
	return p, true, nil
}

// slugify lower-cases name and collapses every run of other characters into
// a single "-".
func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}

func packageName(dir string) string {
	base := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return unicode.ToLower(r)
		}
		return -1
	}, filepath.Base(filepath.Clean(dir)))
	if base == "" || unicode.IsDigit(rune(base[0])) {
		return "migrations"
	}
	return base
}

const sqlTemplate = "-- Write the migration here. Statements are run in one batch.\n"

func goTemplate(pkg, id string) string {
	return `package ` + pkg + `

import (
	"context"

	"pgist/internal/db"
	"pgist/internal/migrate"
	"pgist/internal/sqlfrag"
)

func init() {
	migrate.Register("` + id + `", func(ctx context.Context, q db.Queryable) error {
		_, err := q.Query(ctx, sqlfrag.SQL(` + "``" + `))
		return err
	})
}
`
}
