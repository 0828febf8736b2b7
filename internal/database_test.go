package internal

import (
	"path/filepath"
	"testing"

	"github.com/devportal/chatstore/testutil"
)

func TestOpenDatabase_CreatesSchemaAndDirectory(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	path := filepath.Join(dir, "nested", "history.db")

	db, err := OpenDatabase(path)
	if err != nil {
		t.Fatalf("OpenDatabase() error = %v", err)
	}
	defer db.Close()

	for _, table := range []string{"conversations", "messages", "kv"} {
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestOpenDatabase_Reopenable(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	path := filepath.Join(dir, "history.db")

	db, err := OpenDatabase(path)
	if err != nil {
		t.Fatalf("OpenDatabase() error = %v", err)
	}
	if _, err := db.Exec(`INSERT INTO kv (key, value) VALUES ('k', 'v')`); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	db2, err := OpenDatabase(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer db2.Close()

	var value string
	if err := db2.QueryRow(`SELECT value FROM kv WHERE key = 'k'`).Scan(&value); err != nil {
		t.Fatalf("read after reopen failed: %v", err)
	}
	if value != "v" {
		t.Errorf("value = %q, want %q", value, "v")
	}
}

func TestOpenDatabase_InMemory(t *testing.T) {
	db, err := OpenDatabase(":memory:")
	if err != nil {
		t.Fatalf("OpenDatabase(:memory:) error = %v", err)
	}
	defer db.Close()
}
