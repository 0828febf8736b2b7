package internal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// smallConversationRatio decides, during byte pruning, whether a
// conversation is small enough (relative to the bytes still to free) to
// delete outright instead of trimming.
const smallConversationRatio = 0.4

// EnforceLimits runs the three eviction tiers in order: conversation
// count cap, per-conversation message cap, then the global byte budget.
// Each tier sees the results of the previous one. The pass is idempotent
// and safe to re-run; a failure in a later tier leaves earlier tiers'
// committed work intact.
func (s *Store) EnforceLimits(ctx context.Context) error {
	if err := s.enforceConversationCap(ctx); err != nil {
		return fmt.Errorf("conversation cap: %w", err)
	}
	if err := s.enforceMessageCaps(ctx); err != nil {
		return fmt.Errorf("message cap: %w", err)
	}
	if err := s.enforceByteBudget(ctx); err != nil {
		return fmt.Errorf("byte budget: %w", err)
	}
	return nil
}

// enforceConversationCap deletes the oldest-by-updated_at conversations
// in excess of MaxConversations, messages included. Ties on updated_at
// break on ascending id so the victim set is deterministic.
func (s *Store) enforceConversationCap(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count conversations: %w", err)
	}
	excess := count - MaxConversations
	if excess <= 0 {
		return nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM conversations ORDER BY updated_at ASC, id ASC LIMIT ?`, excess)
	if err != nil {
		return fmt.Errorf("failed to select victims: %w", err)
	}
	victims, err := scanIDs(rows)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range victims {
		if err := deleteConversationTx(ctx, tx, id); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit conversation eviction: %w", err)
	}
	LogInfo("evicted %d conversation(s) over the %d cap", len(victims), MaxConversations)
	return nil
}

// enforceMessageCaps trims every conversation over the per-conversation
// message cap, visiting oldest-updated first. The trim inserts a summary
// sentinel, so a trimmed conversation lands at cap+1 messages.
func (s *Store) enforceMessageCaps(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM conversations ORDER BY updated_at ASC, id ASC`)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return err
	}

	for _, id := range ids {
		var count int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, id).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to count messages: %w", err)
		}
		if excess := count - MaxMessagesPerConversation; excess > 0 {
			if _, err := s.TrimOldestMessages(ctx, id, excess, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// enforceByteBudget queries the quota oracle and prunes toward the soft
// cap, then re-queries and prunes again if usage still exceeds the hard
// cap. The oracle is re-queried rather than estimated locally so the
// second pass reflects real post-trim state.
func (s *Store) enforceByteBudget(ctx context.Context) error {
	usage, err := s.quota.Usage(ctx)
	if err != nil {
		return err
	}
	soft := int64(float64(usage.Quota) * SoftBytesRatio)
	if usage.Used <= soft {
		return nil
	}
	if err := s.pruneBytes(ctx, usage.Used-soft); err != nil {
		return err
	}

	usage, err = s.quota.Usage(ctx)
	if err != nil {
		return err
	}
	hard := int64(float64(usage.Quota) * HardBytesRatio)
	if usage.Used <= hard {
		return nil
	}
	return s.pruneBytes(ctx, usage.Used-hard)
}

// pruneBytes frees roughly bytesToFree estimated bytes, visiting
// conversations oldest-updated first. Small conversations are deleted
// outright; the first large one is halved (with summarization) and the
// target is then treated as met. Heuristic, single pass; callers
// wanting an exact post-condition must re-query the oracle.
func (s *Store) pruneBytes(ctx context.Context, bytesToFree int64) error {
	if bytesToFree <= 0 {
		return nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, approx_bytes FROM conversations ORDER BY updated_at ASC, id ASC`)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}
	type candidate struct {
		id          string
		approxBytes int64
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.approxBytes); err != nil {
			rows.Close()
			return fmt.Errorf("scan failed: %w", err)
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows iteration error: %w", err)
	}

	threshold := int64(float64(bytesToFree) * smallConversationRatio)
	var freed int64
	for _, c := range candidates {
		if freed >= bytesToFree {
			break
		}
		if c.approxBytes < threshold {
			if err := s.DeleteConversation(ctx, c.id); err != nil {
				return err
			}
			freed += c.approxBytes
			LogDebug("pruned conversation %s (%d bytes)", c.id, c.approxBytes)
			continue
		}

		// A conversation large relative to the target: halve it and
		// call the goal met rather than re-measuring actual savings.
		var count int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, c.id).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to count messages: %w", err)
		}
		if count > 0 {
			half := (count + 1) / 2
			if _, err := s.TrimOldestMessages(ctx, c.id, half, true); err != nil {
				return err
			}
		}
		freed = bytesToFree
	}
	return nil
}

// TrimOldestMessages deletes the amount oldest messages of a
// conversation and, when summarize is set, inserts exactly one summary
// sentinel naming how many messages were compacted. The conversation's
// approx_bytes drops by the victims' cached estimates (recomputed when a
// cached value is missing), floored at zero. Returns the bytes freed.
func (s *Store) TrimOldestMessages(ctx context.Context, conversationID string, amount int, summarize bool) (int64, error) {
	if amount <= 0 {
		return 0, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, meta, approx_bytes, created_at FROM messages
		 WHERE conversation_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		conversationID, amount)
	if err != nil {
		return 0, fmt.Errorf("failed to select trim victims: %w", err)
	}
	var victims []string
	var freed, lastVictimAt int64
	for rows.Next() {
		var id, content string
		var meta sql.NullString
		var approxBytes, createdAt int64
		if err := rows.Scan(&id, &content, &meta, &approxBytes, &createdAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan failed: %w", err)
		}
		if approxBytes <= 0 {
			approxBytes = EstimateBytes(content, []byte(meta.String))
		}
		victims = append(victims, id)
		freed += approxBytes
		lastVictimAt = createdAt
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("rows iteration error: %w", err)
	}
	if len(victims) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(victims)), ",")
	args := make([]interface{}, len(victims))
	for i, id := range victims {
		args[i] = id
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM messages WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}

	now := s.tick()
	if summarize {
		// The sentinel takes the newest victim's timestamp so it reads
		// as the first surviving message of the conversation.
		sentinel := newSummarySentinel(conversationID, len(victims), lastVictimAt, now)
		_, err = tx.ExecContext(ctx,
			`INSERT INTO messages (id, conversation_id, role, content, tokens, created_at, sequence, meta, approx_bytes)
			 VALUES (?, ?, ?, ?, NULL, ?, ?, NULL, ?)`,
			sentinel.ID, sentinel.ConversationID, sentinel.Role, sentinel.Content,
			sentinel.CreatedAt, sentinel.Sequence, sentinel.ApproxBytes)
		if err != nil {
			return 0, fmt.Errorf("failed to insert summary sentinel: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE conversations SET approx_bytes = MAX(0, approx_bytes - ?), updated_at = ? WHERE id = ?`,
		freed, now, conversationID)
	if err != nil {
		return 0, fmt.Errorf("failed to update conversation size: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit trim: %w", err)
	}
	LogDebug("trimmed %d message(s) from conversation %s (freed ~%d bytes)", len(victims), conversationID, freed)
	return freed, nil
}

// newSummarySentinel builds the synthetic summary-role message inserted
// in place of trimmed history.
func newSummarySentinel(conversationID string, compacted int, createdAt, sequence int64) *Message {
	content := fmt.Sprintf("Summarized %d earlier messages", compacted)
	return &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           RoleSummary,
		Content:        content,
		CreatedAt:      createdAt,
		Sequence:       sequence,
		ApproxBytes:    EstimateBytes(content, nil),
	}
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return ids, nil
}
