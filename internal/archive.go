package internal

import (
	"context"
	"fmt"
	"time"
)

// Export serializes all three tables into a version-1 archive. Slices
// are never nil so the archive round-trips cleanly through encoders.
func (s *Store) Export(ctx context.Context) (*Archive, error) {
	conversations, err := s.ListConversations(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, tokens, created_at, sequence, meta, approx_bytes
		 FROM messages ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to export messages: %w", err)
	}
	defer rows.Close()
	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	kvRows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to export kv: %w", err)
	}
	defer kvRows.Close()
	var kv []KVEntry
	for kvRows.Next() {
		var entry KVEntry
		if err := kvRows.Scan(&entry.Key, &entry.Value); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		kv = append(kv, entry)
	}
	if err := kvRows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	if conversations == nil {
		conversations = []Conversation{}
	}
	if messages == nil {
		messages = []Message{}
	}
	if kv == nil {
		kv = []KVEntry{}
	}

	return &Archive{
		Version:       ArchiveVersion,
		ExportDate:    time.Now().UTC().Format(time.RFC3339),
		Conversations: conversations,
		Messages:      messages,
		KV:            kv,
	}, nil
}

// Import validates the archive version, replaces all existing data with
// the archive's contents in one transaction, then runs a single eviction
// pass. A version mismatch is rejected before anything is touched.
func (s *Store) Import(ctx context.Context, archive *Archive) error {
	if archive.Version != ArchiveVersion {
		return &ImportError{Version: archive.Version, Reason: "unsupported export version"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"messages", "conversations", "kv"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, conv := range archive.Conversations {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (id, title, created_at, updated_at, approx_bytes, deployment_id)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			conv.ID, conv.Title, conv.CreatedAt, conv.UpdatedAt, conv.ApproxBytes,
			nullString(conv.DeploymentID))
		if err != nil {
			return fmt.Errorf("failed to import conversation %s: %w", conv.ID, err)
		}
	}

	for _, msg := range archive.Messages {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, conversation_id, role, content, tokens, created_at, sequence, meta, approx_bytes)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.ConversationID, msg.Role, msg.Content, nullInt(msg.Tokens),
			msg.CreatedAt, msg.Sequence, nullRaw(msg.Meta), msg.ApproxBytes)
		if err != nil {
			return fmt.Errorf("failed to import message %s: %w", msg.ID, err)
		}
	}

	for _, entry := range archive.KV {
		_, err := tx.ExecContext(ctx, `INSERT INTO kv (key, value) VALUES (?, ?)`,
			entry.Key, entry.Value)
		if err != nil {
			return fmt.Errorf("failed to import kv %q: %w", entry.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}

	return s.EnforceLimits(ctx)
}
