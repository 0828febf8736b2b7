package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

// storeSchema mirrors the production schema so tests can run against an
// in-memory database without touching disk.
const storeSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	approx_bytes INTEGER NOT NULL DEFAULT 0,
	deployment_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at);
CREATE INDEX IF NOT EXISTS idx_conversations_created_at ON conversations(created_at);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	tokens INTEGER,
	created_at INTEGER NOT NULL,
	sequence INTEGER,
	meta TEXT,
	approx_bytes INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);

CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// CreateInMemoryDB creates an in-memory SQLite database with the store
// schema applied.
func CreateInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory database: %v", err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		t.Fatalf("Failed to create schema: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// InsertConversation inserts a conversation row directly.
func InsertConversation(t *testing.T, db *sql.DB, id, title string, createdAt, updatedAt, approxBytes int64) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO conversations (id, title, created_at, updated_at, approx_bytes, deployment_id)
		 VALUES (?, ?, ?, ?, ?, NULL)`,
		id, title, createdAt, updatedAt, approxBytes)
	if err != nil {
		t.Fatalf("Failed to insert conversation: %v", err)
	}
}

// InsertMessage inserts a message row directly.
func InsertMessage(t *testing.T, db *sql.DB, id, conversationID, role, content string, createdAt, approxBytes int64) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO messages (id, conversation_id, role, content, tokens, created_at, sequence, meta, approx_bytes)
		 VALUES (?, ?, ?, ?, NULL, ?, ?, NULL, ?)`,
		id, conversationID, role, content, createdAt, createdAt, approxBytes)
	if err != nil {
		t.Fatalf("Failed to insert message: %v", err)
	}
}

// InsertKV inserts a kv row directly.
func InsertKV(t *testing.T, db *sql.DB, key, value string) {
	t.Helper()
	if _, err := db.Exec(`INSERT INTO kv (key, value) VALUES (?, ?)`, key, value); err != nil {
		t.Fatalf("Failed to insert kv entry: %v", err)
	}
}

// CountRows returns the number of rows in a table.
func CountRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("Failed to count rows in %s: %v", table, err)
	}
	return n
}
