// Package ledger applies the schema migrations embedded in the binary and
// records which ones ran. Migrations are tracked by version in the goose
// version table, applied in order and at most once. On postgres the river
// job tables are migrated after the application's own ledger.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"hello"
	"hello/pkg/logger"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"
	"github.com/riverqueue/river/riverdriver/riverdatabasesql"
	"github.com/riverqueue/river/rivermigrate"
	"go.uber.org/zap"
)

// Supported engines.
const (
	EnginePostgres = "postgres"
	EngineSQLite   = "sqlite"
)

// riverPrefix names river's migrations in Entry.Name.
const riverPrefix = "river/"

// Entry is one migration in the ledger.
type Entry struct {
	Version int64
	// Name is the migration file name, or "river/<name>" for river's own.
	Name      string
	Applied   bool
	AppliedAt time.Time
	Duration  time.Duration
}

// Ledger applies migrations for one engine.
type Ledger struct {
	db       *sql.DB
	engine   string
	provider *goose.Provider
	river    *rivermigrate.Migrator[*sql.Tx]
}

// New prepares the ledger for engine over db.
func New(db *sql.DB, engine string) (*Ledger, error) {
	var (
		dialect goose.Dialect
		opts    []goose.ProviderOption
	)
	switch engine {
	case EnginePostgres:
		dialect = goose.DialectPostgres
		locker, err := lock.NewPostgresSessionLocker()
		if err != nil {
			return nil, fmt.Errorf("could not create migration lock: %w", err)
		}
		opts = append(opts, goose.WithSessionLocker(locker))
	case EngineSQLite:
		dialect = goose.DialectSQLite3
	default:
		return nil, fmt.Errorf("unsupported database engine %q", engine)
	}

	migrations, err := fs.Sub(hello.Migrations, path.Join("migrations", engine))
	if err != nil {
		return nil, fmt.Errorf("could not open %s migrations: %w", engine, err)
	}

	provider, err := goose.NewProvider(dialect, db, migrations, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not create migration provider: %w", err)
	}

	l := &Ledger{db: db, engine: engine, provider: provider}
	if engine == EnginePostgres {
		l.river, err = rivermigrate.New(riverdatabasesql.New(db), nil)
		if err != nil {
			return nil, fmt.Errorf("could not create river migrator: %w", err)
		}
	}

	return l, nil
}

// Apply runs every pending migration and returns the ones applied by this
// call. Running it on an up to date database applies nothing.
func (l *Ledger) Apply(ctx context.Context) ([]Entry, error) {
	results, err := l.provider.Up(ctx)

	applied := make([]Entry, 0, len(results))
	for _, r := range results {
		if r.Error != nil {
			continue
		}
		applied = append(applied, Entry{
			Version:  r.Source.Version,
			Name:     path.Base(r.Source.Path),
			Applied:  true,
			Duration: r.Duration,
		})
		logger.Info(ctx, "applied migration",
			zap.String("name", path.Base(r.Source.Path)), zap.Duration("duration", r.Duration))
	}
	if err != nil {
		return applied, fmt.Errorf("could not apply migrations: %w", err)
	}

	if l.river == nil {
		return applied, nil
	}

	riverApplied, err := l.applyRiver(ctx)
	applied = append(applied, riverApplied...)

	return applied, err
}

func (l *Ledger) applyRiver(ctx context.Context) ([]Entry, error) {
	pending, err := l.riverPending(ctx)
	if err != nil || pending == 0 {
		return nil, err
	}

	res, err := l.river.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return nil, fmt.Errorf("could not migrate river tables: %w", err)
	}

	applied := make([]Entry, 0, len(res.Versions))
	for _, v := range res.Versions {
		applied = append(applied, Entry{
			Version:  int64(v.Version),
			Name:     riverPrefix + v.Name,
			Applied:  true,
			Duration: v.Duration,
		})
		logger.Info(ctx, "applied river migration", zap.Int("version", v.Version), zap.String("name", v.Name))
	}

	return applied, nil
}

func (l *Ledger) riverPending(ctx context.Context) (int, error) {
	existing, err := l.river.ExistingVersions(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not read river migrations: %w", err)
	}

	current := 0
	if len(existing) > 0 {
		current = existing[len(existing)-1].Version
	}

	pending := 0
	for _, m := range l.river.AllVersions() {
		if m.Version > current {
			pending++
		}
	}

	return pending, nil
}

// Status lists every known migration in order with its applied state.
func (l *Ledger) Status(ctx context.Context) ([]Entry, error) {
	statuses, err := l.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read migration status: %w", err)
	}

	entries := make([]Entry, 0, len(statuses))
	for _, s := range statuses {
		entries = append(entries, Entry{
			Version:   s.Source.Version,
			Name:      path.Base(s.Source.Path),
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		})
	}

	if l.river == nil {
		return entries, nil
	}

	existing, err := l.river.ExistingVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read river migrations: %w", err)
	}
	done := make(map[int]bool, len(existing))
	for _, m := range existing {
		done[m.Version] = true
	}
	for _, m := range l.river.AllVersions() {
		entries = append(entries, Entry{Version: int64(m.Version), Name: riverPrefix + m.Name, Applied: done[m.Version]})
	}

	return entries, nil
}

// Pending returns how many migrations are not applied yet.
func (l *Ledger) Pending(ctx context.Context) (int, error) {
	entries, err := l.Status(ctx)
	if err != nil {
		return 0, err
	}

	pending := 0
	for _, e := range entries {
		if !e.Applied {
			pending++
		}
	}

	return pending, nil
}

// Engine returns the engine the ledger was built for.
func (l *Ledger) Engine() string { return l.engine }

// String renders an entry the way "migrate --list" prints it.
func (e Entry) String() string {
	mark := " "
	if e.Applied {
		mark = "X"
	}

	return fmt.Sprintf("[%s] %s", mark, strings.TrimSuffix(e.Name, ".sql"))
}
