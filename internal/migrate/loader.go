package migrate

import (
	"context"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"sync"

	"pgist/internal/db"
	"pgist/internal/sqlfrag"
	"pgist/internal/types"
)

// Func applies one migration using q.
type Func func(ctx context.Context, q db.Queryable) error

var idPattern = regexp.MustCompile(`^\d{14}$`)

// Registry maps migration ids to the Go functions implementing them.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register binds id to fn. It panics on a malformed id, a nil fn or an id
// registered twice; all three are programming errors caught at init.
func (r *Registry) Register(id string, fn Func) {
	if !idPattern.MatchString(id) {
		panic(fmt.Sprintf("migrate: invalid migration id %q", id))
	}
	if fn == nil {
		panic(fmt.Sprintf("migrate: nil function for migration %s", id))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.funcs[id]; dup {
		panic(fmt.Sprintf("migrate: migration %s registered twice", id))
	}
	r.funcs[id] = fn
}

// Lookup returns the function registered for id.
func (r *Registry) Lookup(id string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[id]
	return fn, ok
}

// IDs returns the registered ids in ascending order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.funcs))
	for id := range r.funcs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var defaultRegistry = NewRegistry()

// Register binds id to fn in the default registry.
func Register(id string, fn Func) {
	defaultRegistry.Register(id, fn)
}

// DefaultRegistry returns the registry that Register writes to.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Loader turns a migration file into the function that applies it.
type Loader interface {
	Load(fsys fs.FS, f File) (Func, error)
}

// DefaultLoader resolves .go files from Registry (the default registry when
// nil) and .sql files by reading them.
type DefaultLoader struct {
	Registry *Registry
}

// Load implements Loader. A .go file without a registered function, or an
// empty .sql file, fails with ErrCodeMigrationFile.
func (l DefaultLoader) Load(fsys fs.FS, f File) (Func, error) {
	switch f.Ext {
	case "go":
		reg := l.Registry
		if reg == nil {
			reg = defaultRegistry
		}
		fn, ok := reg.Lookup(f.ID)
		if !ok {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeMigrationFile,
				fmt.Sprintf("%s has no registered migration function; is its package imported?", f.Path),
				nil, map[string]any{"path": f.Path})
		}
		return fn, nil

	case "sql":
		b, err := fs.ReadFile(fsys, f.Path)
		if err != nil {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeMigrationFile,
				fmt.Sprintf("reading %s", f.Path), err, map[string]any{"path": f.Path})
		}
		text := strings.TrimSpace(string(b))
		if text == "" {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeMigrationFile,
				fmt.Sprintf("%s is empty", f.Path), nil, map[string]any{"path": f.Path})
		}
		// The file may hold several statements, so it runs without
		// parameters on the simple protocol.
		return func(ctx context.Context, q db.Queryable) error {
			_, err := q.Query(ctx, sqlfrag.Unsafe(text))
			return err
		}, nil

	default:
		return nil, types.NewAppErrorWithDetails(types.ErrCodeMigrationFile,
			fmt.Sprintf("%s: unsupported migration type %q", f.Path, f.Ext),
			nil, map[string]any{"path": f.Path})
	}
}
