package internal

import "encoding/json"

// Message roles. RoleSummary is reserved for eviction sentinels and is
// never produced by a live participant.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleSummary   = "summary"
)

// DefaultTitle is used when a message creates its conversation implicitly.
const DefaultTitle = "New Chat"

// Capacity limits enforced by the eviction engine.
const (
	MaxConversations           = 200
	MaxMessagesPerConversation = 300

	// SoftBytesRatio and HardBytesRatio are fractions of the storage
	// quota used as escalating eviction triggers.
	SoftBytesRatio = 0.4
	HardBytesRatio = 0.6

	// DefaultQuotaBytes is assumed when the platform exposes no quota.
	DefaultQuotaBytes = 50 * 1024 * 1024
)

// Conversation is a chat thread owned by the store. ApproxBytes is a
// rolling estimate of its messages' sizes, maintained incrementally.
type Conversation struct {
	ID           string `json:"id" yaml:"id"`
	Title        string `json:"title" yaml:"title"`
	CreatedAt    int64  `json:"createdAt" yaml:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt" yaml:"updatedAt"`
	ApproxBytes  int64  `json:"approxBytes" yaml:"approxBytes"`
	DeploymentID string `json:"deploymentId,omitempty" yaml:"deploymentId,omitempty"`
}

// Message is a single chat message. Meta is an opaque payload the store
// never interprets; it is stored and returned byte-for-byte. ApproxBytes
// is computed once at write time and never recomputed.
type Message struct {
	ID             string          `json:"id" yaml:"id"`
	ConversationID string          `json:"conversationId" yaml:"conversationId"`
	Role           string          `json:"role" yaml:"role"`
	Content        string          `json:"content" yaml:"content"`
	Tokens         int64           `json:"tokens,omitempty" yaml:"tokens,omitempty"`
	CreatedAt      int64           `json:"createdAt" yaml:"createdAt"`
	Sequence       int64           `json:"sequence,omitempty" yaml:"sequence,omitempty"`
	Meta           json.RawMessage `json:"meta,omitempty" yaml:"meta,omitempty"`
	ApproxBytes    int64           `json:"approxBytes" yaml:"approxBytes"`
}

// KVEntry is a row in the auxiliary key/value table. The kv table is not
// subject to eviction.
type KVEntry struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// ArchiveVersion is the export format version this build reads and writes.
const ArchiveVersion = 1

// Archive is the export format: all three tables plus a version tag.
type Archive struct {
	Version       int            `json:"version" yaml:"version"`
	ExportDate    string         `json:"exportDate" yaml:"exportDate"`
	Conversations []Conversation `json:"conversations" yaml:"conversations"`
	Messages      []Message      `json:"messages" yaml:"messages"`
	KV            []KVEntry      `json:"kv" yaml:"kv"`
}

// StorageInfo is the usage report returned by Store.StorageInfo.
type StorageInfo struct {
	UsedBytes         int64   `json:"usedBytes"`
	QuotaBytes        int64   `json:"quotaBytes"`
	UsedPercent       float64 `json:"usedPercent"`
	Used              string  `json:"used"`
	Quota             string  `json:"quota"`
	ConversationCount int     `json:"conversationCount"`
	MessageCount      int     `json:"messageCount"`
	KVCount           int     `json:"kvCount"`
}
