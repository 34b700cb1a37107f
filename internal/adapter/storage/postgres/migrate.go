package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLockID keys the advisory lock that serialises concurrent migrate runs.
const migrationLockID int64 = 0x6c6564676572

// Migration is one embedded schema file. Version is the file name without extension.
type Migration struct {
	Version string
	SQL     string
}

// MigrationStatus reports whether a migration has been applied.
type MigrationStatus struct {
	Version string
	Applied bool
}

// LoadMigrations returns the embedded migrations ordered by version.
func LoadMigrations() ([]Migration, error) {
	files, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	migrations := make([]Migration, 0, len(files))
	for _, f := range files {
		body, err := migrationFS.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", f, err)
		}
		migrations = append(migrations, Migration{
			Version: strings.TrimSuffix(path.Base(f), ".sql"),
			SQL:     string(body),
		})
	}
	return migrations, nil
}

// Migrator applies the embedded schema. It runs from `ledger migrate`, never on the request path.
type Migrator struct {
	pool       Pool
	migrations []Migration
	log        zerolog.Logger
}

// NewMigrator creates a Migrator for the given migrations.
func NewMigrator(pool Pool, migrations []Migration, log zerolog.Logger) *Migrator {
	return &Migrator{pool: pool, migrations: migrations, log: log}
}

// Up applies every pending migration in one transaction and returns the versions applied.
// Running it again is a no-op.
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin migration tx: %w", err)
	}

	applied, err := m.up(ctx, tx)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit migrations: %w", err)
	}

	if len(applied) == 0 {
		m.log.Info().Msg("schema is up to date")
	}
	return applied, nil
}

func (m *Migrator) up(ctx context.Context, tx pgx.Tx) ([]string, error) {
	done, err := m.prepare(ctx, tx)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, mig := range m.migrations {
		if done[mig.Version] {
			continue
		}
		if _, err := tx.Exec(ctx, mig.SQL); err != nil {
			return nil, fmt.Errorf("apply migration %s: %w", mig.Version, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, mig.Version); err != nil {
			return nil, fmt.Errorf("record migration %s: %w", mig.Version, err)
		}
		m.log.Info().Str("version", mig.Version).Msg("migration applied")
		applied = append(applied, mig.Version)
	}
	return applied, nil
}

// Status lists every known migration and whether it has been applied.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin migration tx: %w", err)
	}
	// Read-only; nothing to commit.
	defer tx.Rollback(ctx) //nolint:errcheck

	done, err := m.prepare(ctx, tx)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(m.migrations))
	for _, mig := range m.migrations {
		statuses = append(statuses, MigrationStatus{Version: mig.Version, Applied: done[mig.Version]})
	}
	return statuses, nil
}

// prepare takes the advisory lock, ensures the ledger table exists and reads applied versions.
func (m *Migrator) prepare(ctx context.Context, tx pgx.Tx) (map[string]bool, error) {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
		return nil, fmt.Errorf("acquire migration lock: %w", err)
	}
	if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	rows, err := tx.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		done[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema_migrations: %w", err)
	}
	return done, nil
}
