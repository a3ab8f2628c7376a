package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/HerbHall/tvbridge/pkg/plugin"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func widgetMigrations(applied *int) []plugin.Migration {
	return []plugin.Migration{
		{Version: 1, Description: "create widgets", Up: func(tx *sql.Tx) error {
			*applied++
			_, err := tx.Exec(`CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`)
			return err
		}},
		{Version: 2, Description: "add color", Up: func(tx *sql.Tx) error {
			*applied++
			_, err := tx.Exec(`ALTER TABLE widgets ADD COLUMN color TEXT`)
			return err
		}},
	}
}

func TestMigrateAppliesOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var applied int
	if err := s.Migrate(ctx, "widgets", widgetMigrations(&applied)); err != nil {
		t.Fatalf("first Migrate: %v", err)
	}
	if err := s.Migrate(ctx, "widgets", widgetMigrations(&applied)); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if applied != 2 {
		t.Errorf("applied = %d, want 2", applied)
	}

	var n int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM _migrations WHERE module = 'widgets'`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 2 {
		t.Errorf("recorded migrations = %d, want 2", n)
	}
}

func TestMigrateVersionsArePerModule(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var applied int
	if err := s.Migrate(ctx, "widgets", widgetMigrations(&applied)); err != nil {
		t.Fatalf("Migrate widgets: %v", err)
	}
	gadgets := []plugin.Migration{
		{Version: 1, Description: "create gadgets", Up: func(tx *sql.Tx) error {
			applied++
			_, err := tx.Exec(`CREATE TABLE gadgets (id INTEGER PRIMARY KEY)`)
			return err
		}},
	}
	if err := s.Migrate(ctx, "gadgets", gadgets); err != nil {
		t.Fatalf("Migrate gadgets: %v", err)
	}
	if applied != 3 {
		t.Errorf("applied = %d, want 3", applied)
	}
	if _, err := s.DB().Exec(`INSERT INTO gadgets (id) VALUES (1)`); err != nil {
		t.Errorf("gadgets table missing: %v", err)
	}
}

func TestMigrateFailureRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Migrate(ctx, "broken", []plugin.Migration{
		{Version: 1, Description: "half done", Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`CREATE TABLE half (id INTEGER)`); err != nil {
				return err
			}
			return errors.New("boom")
		}},
	})
	if err == nil {
		t.Fatal("expected migration error")
	}

	var n int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'half'`).Scan(&n); err != nil {
		t.Fatalf("query schema: %v", err)
	}
	if n != 0 {
		t.Error("table from failed migration survived")
	}
}

func TestTxCommitAndRollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.DB().Exec(`CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)`); err != nil {
		t.Fatal(err)
	}

	err := s.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO kv VALUES ('a', '1')`)
		return err
	})
	if err != nil {
		t.Fatalf("commit tx: %v", err)
	}

	sentinel := errors.New("abort")
	err = s.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO kv VALUES ('b', '2')`); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}

	var n int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}
}

func TestBackupTo(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "src.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.Path() != filepath.Join(dir, "src.db") {
		t.Errorf("Path = %q", s.Path())
	}
	if _, err := s.DB().Exec(`CREATE TABLE t (x INTEGER); INSERT INTO t VALUES (7)`); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(dir, "copy.db")
	if err := s.BackupTo(context.Background(), dest); err != nil {
		t.Fatalf("BackupTo: %v", err)
	}

	c, err := New(dest)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	var x int
	if err := c.DB().QueryRow(`SELECT x FROM t`).Scan(&x); err != nil {
		t.Fatalf("query copy: %v", err)
	}
	if x != 7 {
		t.Errorf("x = %d, want 7", x)
	}
}
