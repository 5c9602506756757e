package postgres

import (
	"strings"
	"testing"
	"testing/fstest"
)

func migrationFile(body string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(body)}
}

func TestLoadMigrations_SortsByVersion(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrations(fstest.MapFS{
		"sql/migrations/0010_tills.up.sql":     migrationFile("CREATE TABLE tills (id INT);"),
		"sql/migrations/0010_tills.down.sql":   migrationFile("DROP TABLE tills;"),
		"sql/migrations/0002_drawers.up.sql":   migrationFile("CREATE TABLE drawers (id INT);"),
		"sql/migrations/0002_drawers.down.sql": migrationFile("DROP TABLE drawers;"),
	})
	if err != nil {
		t.Fatalf("loadMigrations failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if got := migrations[0].String() + "," + migrations[1].String(); got != "0002_drawers,0010_tills" {
		t.Fatalf("unexpected order: %s", got)
	}
	if migrations[1].down != "DROP TABLE tills;" {
		t.Fatalf("unexpected down body: %q", migrations[1].down)
	}
}

func TestLoadMigrations_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fsys fstest.MapFS
		want string
	}{
		{
			name: "no files",
			fsys: fstest.MapFS{},
			want: "no migration files",
		},
		{
			name: "missing down",
			fsys: fstest.MapFS{"sql/migrations/0001_init.up.sql": migrationFile("SELECT 1;")},
			want: "both up and down",
		},
		{
			name: "bad file name",
			fsys: fstest.MapFS{"sql/migrations/init.sql": migrationFile("SELECT 1;")},
			want: "invalid migration file name",
		},
		{
			name: "empty body",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":   migrationFile("  \n"),
				"sql/migrations/0001_init.down.sql": migrationFile("SELECT 1;"),
			},
			want: "empty",
		},
		{
			name: "name mismatch",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":      migrationFile("SELECT 1;"),
				"sql/migrations/0001_initial.down.sql": migrationFile("SELECT 1;"),
			},
			want: "named both",
		},
		{
			name: "duplicate direction",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":   migrationFile("SELECT 1;"),
				"sql/migrations/001_init.up.sql":    migrationFile("SELECT 2;"),
				"sql/migrations/0001_init.down.sql": migrationFile("SELECT 1;"),
			},
			want: "duplicate up",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := loadMigrations(tt.fsys)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		t.Fatalf("load embedded migrations: %v", err)
	}

	names := make([]string, 0, len(migrations))
	for i, m := range migrations {
		if m.version != int64(i+1) {
			t.Fatalf("migration versions must be contiguous, got %d at index %d", m.version, i)
		}
		names = append(names, m.String())
	}
	if got := strings.Join(names, ","); got != "0001_receipts,0002_checkout_timeline,0003_outbox" {
		t.Fatalf("unexpected embedded migrations: %s", got)
	}
}
