package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/Masterminds/squirrel"
)

//go:embed schema/sqlite/*.sql
var sqliteSchema embed.FS

// ApplyMigrations runs every pending *.up.sql file in migrationsDir against a
// Postgres database.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	return applyMigrations(ctx, db, Postgres, os.DirFS(migrationsDir))
}

// ApplySQLiteSchema runs the embedded SQLite schema.
func ApplySQLiteSchema(ctx context.Context, db *sql.DB) error {
	sub, err := fs.Sub(sqliteSchema, "schema/sqlite")
	if err != nil {
		return fmt.Errorf("open sqlite schema: %w", err)
	}
	return applyMigrations(ctx, db, SQLite, sub)
}

// Migrate applies the schema appropriate for dialect. migrationsDir is only
// consulted for Postgres.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect, migrationsDir string) error {
	if dialect == SQLite {
		return ApplySQLiteSchema(ctx, db)
	}
	return ApplyMigrations(ctx, db, migrationsDir)
}

func applyMigrations(ctx context.Context, db *sql.DB, dialect Dialect, fsys fs.FS) error {
	if err := ensureMigrationsTable(ctx, db, dialect); err != nil {
		return err
	}

	files, err := migrationFiles(fsys, ".up.sql")
	if err != nil {
		return err
	}

	builder := squirrel.StatementBuilder.PlaceholderFormat(dialect.placeholder())
	for _, version := range files {
		if migrated, err := isMigrated(ctx, db, builder, version); err != nil {
			return err
		} else if migrated {
			continue
		}

		contents, err := fs.ReadFile(fsys, version)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", version, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration tx %s: %w", version, err)
		}

		if _, err := tx.ExecContext(ctx, string(contents)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("execute migration %s: %w", version, err)
		}

		query, args, err := builder.Insert("schema_migrations").Columns("version").Values(version).ToSql()
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("build migration record %s: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", version, err)
		}
	}

	return nil
}

// migrationFiles lists the files in fsys ending in suffix, sorted by name.
func migrationFiles(fsys fs.FS, suffix string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name := entry.Name(); strings.HasSuffix(name, suffix) {
			files = append(files, name)
		}
	}
	sort.Strings(files)
	return files, nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB, dialect Dialect) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if dialect == SQLite {
		ddl = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func isMigrated(ctx context.Context, db *sql.DB, builder squirrel.StatementBuilderType, version string) (bool, error) {
	query, args, err := builder.Select("COUNT(1)").From("schema_migrations").Where(squirrel.Eq{"version": version}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build migration check %s: %w", version, err)
	}
	var count int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return count > 0, nil
}
