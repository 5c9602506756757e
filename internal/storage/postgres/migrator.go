package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

const (
	migrationsGlob   = "sql/migrations/*.sql"
	migrationLockKey = int64(7706001)
	schemaTableDDL   = `
CREATE TABLE IF NOT EXISTS pos_schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

var (
	//go:embed sql/migrations/*.sql
	migrationsFS embed.FS

	migrationFileName = regexp.MustCompile(`^(\d+)_(\w+)\.(up|down)\.sql$`)
)

type migration struct {
	version int64
	name    string
	up      string
	down    string
}

func (m migration) String() string {
	return fmt.Sprintf("%04d_%s", m.version, m.name)
}

// SchemaState описывает применённые и ожидающие миграции.
type SchemaState struct {
	Version int64
	Applied int
	Pending []string
}

// MigrateUp применяет до steps недостающих миграций, 0 означает все.
// Пачка выполняется одной транзакцией.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, func(tx *sql.Tx, all []migration, applied map[int64]bool) error {
		done := 0
		for _, m := range all {
			if applied[m.version] {
				continue
			}
			if steps > 0 && done == steps {
				break
			}
			if err := execStep(ctx, tx, m, m.up,
				`INSERT INTO pos_schema_migrations (version, name) VALUES ($1, $2)`, m.version, m.name); err != nil {
				return err
			}
			done++
		}
		return nil
	})
}

// MigrateDown откатывает последние steps миграций; steps<=0 означает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.migrate(ctx, func(tx *sql.Tx, all []migration, applied map[int64]bool) error {
		for i := len(all) - 1; i >= 0 && steps > 0; i-- {
			m := all[i]
			if !applied[m.version] {
				continue
			}
			if err := execStep(ctx, tx, m, m.down,
				`DELETE FROM pos_schema_migrations WHERE version = $1`, m.version); err != nil {
				return err
			}
			steps--
		}
		return nil
	})
}

// SchemaState читает состояние схемы без изменения данных.
func (s *Store) SchemaState(ctx context.Context) (SchemaState, error) {
	if s == nil || s.db == nil {
		return SchemaState{}, errStoreNotInitialized
	}
	all, err := loadMigrations(migrationsFS)
	if err != nil {
		return SchemaState{}, err
	}

	var state SchemaState
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		applied, err := appliedVersions(ctx, tx)
		if err != nil {
			return err
		}
		state.Applied = len(applied)
		for version := range applied {
			state.Version = max(state.Version, version)
		}
		for _, m := range all {
			if !applied[m.version] {
				state.Pending = append(state.Pending, m.String())
			}
		}
		return nil
	})
	return state, err
}

var errStoreNotInitialized = errors.New("postgres store is not initialized")

func (s *Store) migrate(ctx context.Context, fn func(*sql.Tx, []migration, map[int64]bool) error) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	all, err := loadMigrations(migrationsFS)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		// Блокировка снимается вместе с транзакцией.
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		applied, err := appliedVersions(ctx, tx)
		if err != nil {
			return err
		}
		return fn(tx, all, applied)
	})
}

func execStep(ctx context.Context, tx *sql.Tx, m migration, body, record string, args ...any) error {
	if _, err := tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("execute migration %s: %w", m, err)
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return fmt.Errorf("record migration %s: %w", m, err)
	}
	return nil
}

func appliedVersions(ctx context.Context, tx *sql.Tx) (map[int64]bool, error) {
	if _, err := tx.ExecContext(ctx, schemaTableDDL); err != nil {
		return nil, fmt.Errorf("ensure migration table: %w", err)
	}
	rows, err := tx.QueryContext(ctx, `SELECT version FROM pos_schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]bool)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// loadMigrations собирает пары NNNN_name.up.sql / NNNN_name.down.sql.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, migrationsGlob)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files found")
	}

	byVersion := make(map[int64]*migration)
	for _, file := range files {
		base := path.Base(file)
		parts := migrationFileName.FindStringSubmatch(base)
		if parts == nil {
			return nil, fmt.Errorf("invalid migration file name: %s", base)
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration version in %s: %w", base, err)
		}
		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", base, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", base)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{version: version, name: parts[2]}
			byVersion[version] = m
		} else if m.name != parts[2] {
			return nil, fmt.Errorf("migration %d is named both %s and %s", version, m.name, parts[2])
		}
		target := &m.up
		if parts[3] == "down" {
			target = &m.down
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", parts[3], version)
		}
		*target = body
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.up == "" || m.down == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", m)
		}
		migrations = append(migrations, *m)
	}
	slices.SortFunc(migrations, func(a, b migration) int { return cmp.Compare(a.version, b.version) })
	return migrations, nil
}
