package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type migration struct {
	version int
	up      string
	down    string
}

// RunMigrations applies all pending migrations to the database at path.
func RunMigrations(ctx context.Context, path string) error {
	return withDB(path, func(sqlDB *sql.DB) error {
		return migrate(ctx, sqlDB, false)
	})
}

// RollbackMigrations rolls back all migrations of the database at path.
func RollbackMigrations(ctx context.Context, path string) error {
	return withDB(path, func(sqlDB *sql.DB) error {
		return migrate(ctx, sqlDB, true)
	})
}

func withDB(path string, fn func(*sql.DB) error) error {
	sqlDB, err := open(path)
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	return fn(sqlDB)
}

func migrate(ctx context.Context, sqlDB *sql.DB, down bool) error {
	_, err := sqlDB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			dirty INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current, dirty int
	err = sqlDB.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0), COALESCE(MAX(dirty), 0) FROM schema_migrations`,
	).Scan(&current, &dirty)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}
	if dirty != 0 {
		return fmt.Errorf("database is in dirty state at version %d, manual intervention required", current)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	if down {
		for i := len(migrations) - 1; i >= 0; i-- {
			m := migrations[i]
			if m.version > current {
				continue
			}
			if m.down == "" {
				return fmt.Errorf("no down migration for version %d", m.version)
			}
			if err := apply(ctx, sqlDB, m.version, m.down, true); err != nil {
				return err
			}
		}
		return nil
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if m.up == "" {
			return fmt.Errorf("no up migration for version %d", m.version)
		}
		if err := apply(ctx, sqlDB, m.version, m.up, false); err != nil {
			return err
		}
	}
	return nil
}

// apply runs one migration script, marking the version dirty while it runs.
func apply(ctx context.Context, sqlDB *sql.DB, version int, script string, down bool) error {
	if _, err := sqlDB.ExecContext(ctx,
		`INSERT OR REPLACE INTO schema_migrations (version, dirty) VALUES (?, 1)`, version,
	); err != nil {
		return fmt.Errorf("mark version %d as dirty: %w", version, err)
	}

	if _, err := sqlDB.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("run migration %d: %w", version, err)
	}

	finish := `UPDATE schema_migrations SET dirty = 0 WHERE version = ?`
	if down {
		finish = `DELETE FROM schema_migrations WHERE version = ?`
	}
	if _, err := sqlDB.ExecContext(ctx, finish, version); err != nil {
		return fmt.Errorf("finish version %d: %w", version, err)
	}
	return nil
}

// loadMigrations reads NNN_name.up.sql / NNN_name.down.sql pairs, sorted by version.
func loadMigrations() ([]*migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	byVersion := make(map[int]*migration)
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}

		m := byVersion[version]
		if m == nil {
			m = &migration{version: version}
			byVersion[version] = m
		}
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			m.up = string(content)
		case strings.HasSuffix(name, ".down.sql"):
			m.down = string(content)
		}
	}

	migrations := make([]*migration, 0, len(byVersion))
	for _, m := range byVersion {
		migrations = append(migrations, m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].version < migrations[j].version })
	return migrations, nil
}
