package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.up.sql
var migrationsFS embed.FS

// Migration is one embedded schema file, named "<version>_<name>.up.sql".
type Migration struct {
	Version  int
	Filename string
}

func migrations() ([]Migration, error) {
	filenames, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	all := make([]Migration, 0, len(filenames))
	for _, filename := range filenames {
		base := path.Base(filename)
		prefix, _, found := strings.Cut(base, "_")
		version, err := strconv.Atoi(prefix)
		if !found || err != nil {
			return nil, fmt.Errorf("migration %s has no version prefix", base)
		}
		all = append(all, Migration{Version: version, Filename: base})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Version < all[j].Version })
	return all, nil
}

func ensureMigrationsTable(ctx context.Context, database *sql.DB) error {
	_, err := database.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}
	return nil
}

// Pending returns the embedded migrations not yet recorded as applied.
func Pending(ctx context.Context, database *sql.DB) ([]Migration, error) {
	if err := ensureMigrationsTable(ctx, database); err != nil {
		return nil, err
	}

	rows, err := database.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scanning applied migration: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	all, err := migrations()
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, migration := range all {
		if !applied[migration.Version] {
			pending = append(pending, migration)
		}
	}
	return pending, nil
}

// Apply runs every pending migration in version order, each in its own
// transaction, and returns the ones it applied.
func Apply(ctx context.Context, database *sql.DB) ([]Migration, error) {
	pending, err := Pending(ctx, database)
	if err != nil {
		return nil, err
	}

	for i, migration := range pending {
		if err := applyMigration(ctx, database, migration); err != nil {
			return pending[:i], err
		}
		slog.Info("applied migration", "version", migration.Version, "file", migration.Filename)
	}
	return pending, nil
}

// Migrate brings the schema up to date.
func Migrate(database *sql.DB) error {
	_, err := Apply(context.Background(), database)
	return err
}

func applyMigration(ctx context.Context, database *sql.DB, migration Migration) error {
	content, err := migrationsFS.ReadFile("migrations/" + migration.Filename)
	if err != nil {
		return fmt.Errorf("reading migration %s: %w", migration.Filename, err)
	}

	transaction, err := database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction for migration %d: %w", migration.Version, err)
	}
	defer transaction.Rollback()

	if _, err := transaction.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("executing migration %s: %w", migration.Filename, err)
	}
	if _, err := transaction.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
		return fmt.Errorf("recording migration %d: %w", migration.Version, err)
	}
	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("committing migration %d: %w", migration.Version, err)
	}
	return nil
}
