package pg

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"

	migrations "github.com/edustack/campusid/migrations/postgres"
)

// Migrate aplica las migraciones embebidas en orden lexical. Idempotente:
// cada archivo usa IF NOT EXISTS y se registra en schema_migrations.
func (s *Store) Migrate(ctx context.Context) error {
	const track = `CREATE TABLE IF NOT EXISTS schema_migrations (
	    name TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`
	if _, err := s.pool.Exec(ctx, track); err != nil {
		return fmt.Errorf("pg: create schema_migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrations.FS, migrations.Dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var done bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE name = $1)`, name).Scan(&done); err != nil {
			return err
		}
		if done {
			continue
		}
		sql, err := fs.ReadFile(migrations.FS, path.Join(migrations.Dir, name))
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("pg: migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO schema_migrations (name) VALUES ($1) ON CONFLICT DO NOTHING`, name); err != nil {
			return err
		}
	}
	return nil
}
