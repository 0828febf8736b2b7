package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// Store provides conversation and message persistence with capacity
// enforcement. All operations go through the injected database handle;
// tests substitute an in-memory one.
type Store struct {
	db    *sql.DB
	quota QuotaOracle
	now   func() time.Time

	mu       sync.Mutex
	lastTick int64
}

// NewStore creates a Store over an open database. A nil oracle gets the
// default-quota fallback.
func NewStore(db *sql.DB, quota QuotaOracle) *Store {
	if quota == nil {
		quota = &StaticQuota{Info: DefaultQuota()}
	}
	return &Store{db: db, quota: quota, now: time.Now}
}

// SetClock replaces the time source. Timestamps remain strictly
// monotonic across mutations regardless of the source's granularity.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// tick returns a millisecond timestamp that is strictly greater than any
// previously returned one, so updated_at ordering is total even when two
// mutations land within the same millisecond.
func (s *Store) tick() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now().UnixMilli()
	if t <= s.lastTick {
		t = s.lastTick + 1
	}
	s.lastTick = t
	return t
}

// CreateConversation creates an empty conversation and returns it.
func (s *Store) CreateConversation(ctx context.Context, title, deploymentID string) (*Conversation, error) {
	if title == "" {
		title = DefaultTitle
	}
	now := s.tick()
	conv := &Conversation{
		ID:           uuid.NewString(),
		Title:        title,
		CreatedAt:    now,
		UpdatedAt:    now,
		DeploymentID: deploymentID,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, title, created_at, updated_at, approx_bytes, deployment_id)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		conv.ID, conv.Title, conv.CreatedAt, conv.UpdatedAt, nullString(conv.DeploymentID))
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// AppendMessage writes a fully-formed message, creating its conversation
// if needed, in one transaction. The message's ApproxBytes is computed
// here and cached on the row. After the transaction commits an eviction
// pass runs as a separate, best-effort step: its failure is logged, not
// returned, and the next write retries it.
func (s *Store) AppendMessage(ctx context.Context, msg *Message, title string) error {
	if err := s.appendMessageTx(ctx, msg, title); err != nil {
		return err
	}
	if err := s.EnforceLimits(ctx); err != nil {
		LogWarn("eviction pass after append failed: %v", err)
	}
	return nil
}

func (s *Store) appendMessageTx(ctx context.Context, msg *Message, title string) error {
	if msg.ConversationID == "" {
		return fmt.Errorf("message has no conversation id")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := s.tick()
	if msg.CreatedAt == 0 {
		msg.CreatedAt = now
	}
	if msg.Sequence == 0 {
		msg.Sequence = msg.CreatedAt
	}
	msg.ApproxBytes = EstimateMessage(msg)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if title == "" {
		title = DefaultTitle
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (id, title, created_at, updated_at, approx_bytes, deployment_id)
		 VALUES (?, ?, ?, ?, 0, NULL)
		 ON CONFLICT(id) DO NOTHING`,
		msg.ConversationID, title, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, tokens, created_at, sequence, meta, approx_bytes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, nullInt(msg.Tokens),
		msg.CreatedAt, msg.Sequence, nullRaw(msg.Meta), msg.ApproxBytes)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE conversations SET approx_bytes = approx_bytes + ?, updated_at = ? WHERE id = ?`,
		msg.ApproxBytes, now, msg.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to update conversation size: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit append: %w", err)
	}
	return nil
}

// AddMessage is a convenience wrapper over AppendMessage for callers
// holding raw fields rather than a Message value.
func (s *Store) AddMessage(ctx context.Context, conversationID, role, content string, meta json.RawMessage, title string) (*Message, error) {
	msg := &Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Meta:           meta,
	}
	if err := s.AppendMessage(ctx, msg, title); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListConversations returns all conversations, most recently updated
// first. Ties break on descending id so the order is deterministic.
func (s *Store) ListConversations(ctx context.Context) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at, approx_bytes, deployment_id
		 FROM conversations ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()
	return scanConversations(rows)
}

// GetConversation returns one conversation, or nil when it does not
// exist. Callers must nil-check.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at, approx_bytes, deployment_id
		 FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// GetMessages returns a conversation's messages oldest-first.
func (s *Store) GetMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, tokens, created_at, sequence, meta, approx_bytes
		 FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RenameConversation sets a conversation's title and bumps updated_at.
func (s *Store) RenameConversation(ctx context.Context, id, title string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		title, s.tick(), id)
	if err != nil {
		return fmt.Errorf("failed to rename conversation: %w", err)
	}
	return nil
}

// DeleteConversation removes a conversation and all of its messages in
// one transaction.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteConversationTx(ctx, tx, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

func deleteConversationTx(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// UpdateMessage rewrites a message's content and meta in place and bumps
// the owning conversation's updated_at. The cached ApproxBytes is left
// alone: the estimate is computed once at write time.
func (s *Store) UpdateMessage(ctx context.Context, id, content string, meta json.RawMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var conversationID string
	err = tx.QueryRowContext(ctx, `SELECT conversation_id FROM messages WHERE id = ?`, id).Scan(&conversationID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up message: %w", err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE messages SET content = ?, meta = ? WHERE id = ?`,
		content, nullRaw(meta), id)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	_, err = tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`,
		s.tick(), conversationID)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit update: %w", err)
	}
	return nil
}

// ClearAll wipes all three tables.
func (s *Store) ClearAll(ctx context.Context) error {
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
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}
	return nil
}

// SetKV stores an auxiliary key/value entry.
func (s *Store) SetKV(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set kv %q: %w", key, err)
	}
	return nil
}

// GetKV returns the value for a key, or "" and false when absent.
func (s *Store) GetKV(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get kv %q: %w", key, err)
	}
	return value, true, nil
}

// StorageInfo reports usage against quota plus record counts.
func (s *Store) StorageInfo(ctx context.Context) (*StorageInfo, error) {
	usage, err := s.quota.Usage(ctx)
	if err != nil {
		return nil, err
	}

	info := &StorageInfo{
		UsedBytes:  usage.Used,
		QuotaBytes: usage.Quota,
		Used:       humanize.IBytes(uint64(usage.Used)),
		Quota:      humanize.IBytes(uint64(usage.Quota)),
	}
	if usage.Quota > 0 {
		info.UsedPercent = float64(usage.Used) / float64(usage.Quota) * 100
	}

	counts := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM conversations`, &info.ConversationCount},
		{`SELECT COUNT(*) FROM messages`, &info.MessageCount},
		{`SELECT COUNT(*) FROM kv`, &info.KVCount},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("failed to count records: %w", err)
		}
	}
	return info, nil
}

// rowScanner lets scanConversation work over both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var deploymentID sql.NullString
	err := row.Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt, &conv.ApproxBytes, &deploymentID)
	if err != nil {
		return nil, err
	}
	conv.DeploymentID = deploymentID.String
	return &conv, nil
}

func scanConversations(rows *sql.Rows) ([]Conversation, error) {
	var convs []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		convs = append(convs, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return convs, nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var msgs []Message
	for rows.Next() {
		var msg Message
		var tokens, sequence sql.NullInt64
		var meta sql.NullString
		err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content,
			&tokens, &msg.CreatedAt, &sequence, &meta, &msg.ApproxBytes)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		msg.Tokens = tokens.Int64
		msg.Sequence = sequence.Int64
		if meta.Valid {
			msg.Meta = json.RawMessage(meta.String)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return msgs, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

func nullRaw(raw json.RawMessage) sql.NullString {
	return sql.NullString{String: string(raw), Valid: len(raw) > 0}
}
