// Package migrate applies the embedded harvest schema migrations.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// advisoryLockKey serializes migrators started by several replicas at once.
const advisoryLockKey = 7_310_001

// Result lists the migration versions a Run applied and skipped.
type Result struct {
	Applied []string
	Skipped []string
}

// Run applies all SQL migrations embedded in this package. It is safe to call multiple times.
func Run(ctx context.Context, db *sql.DB) (Result, error) {
	return run(ctx, db, migrationsFS)
}

// Versions returns the embedded migration versions in apply order.
func Versions() ([]string, error) {
	files, err := migrationFiles(migrationsFS)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.version)
	}
	return out, nil
}

type migrationFile struct {
	version string
	name    string
}

func migrationFiles(fsys fs.ReadDirFS) ([]migrationFile, error) {
	entries, err := fsys.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var files []migrationFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		files = append(files, migrationFile{version: strings.TrimSuffix(e.Name(), ".sql"), name: e.Name()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}

func run(ctx context.Context, db *sql.DB, fsys embed.FS) (res Result, err error) {
	logger := slog.Default().With("component", "migrations")

	conn, err := db.Conn(ctx)
	if err != nil {
		return res, fmt.Errorf("get conn: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, sql.ErrConnDone) {
			err = errors.Join(err, fmt.Errorf("close conn: %w", cerr))
		}
	}()

	if _, err = conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, advisoryLockKey); err != nil {
		return res, fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		if _, uerr := conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, advisoryLockKey); uerr != nil {
			logger.WarnContext(ctx, "failed to release migration lock", "error", uerr)
		}
	}()

	if _, err = conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return res, fmt.Errorf("create schema_migrations table: %w", err)
	}

	files, err := migrationFiles(fsys)
	if err != nil {
		return res, err
	}

	for _, f := range files {
		applied, aerr := applyMigration(ctx, conn, fsys, f)
		if aerr != nil {
			return res, aerr
		}
		if applied {
			logger.InfoContext(ctx, "applied migration", "version", f.version)
			res.Applied = append(res.Applied, f.version)
		} else {
			res.Skipped = append(res.Skipped, f.version)
		}
	}
	return res, nil
}

func applyMigration(ctx context.Context, conn *sql.Conn, fsys embed.FS, f migrationFile) (bool, error) {
	var exists bool
	if err := conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, f.version,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check migration %s: %w", f.name, err)
	}
	if exists {
		return false, nil
	}

	body, err := fsys.ReadFile("migrations/" + f.name)
	if err != nil {
		return false, fmt.Errorf("read migration %s: %w", f.name, err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		// Rollback after a successful commit returns ErrTxDone and is ignored.
		_ = tx.Rollback()
	}()

	if _, err = tx.ExecContext(ctx, string(body)); err != nil {
		return false, fmt.Errorf("exec migration %s: %w", f.name, err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, f.version); err != nil {
		return false, fmt.Errorf("record migration %s: %w", f.name, err)
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", f.name, err)
	}
	return true, nil
}
