package internal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/devportal/chatstore/testutil"
)

// newTestStore builds a Store over an in-memory database with a generous
// quota and a fixed clock; tick() keeps timestamps strictly increasing.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := testutil.CreateInMemoryDB(t)
	s := NewStore(db, &StaticQuota{Info: DefaultQuota()})
	base := time.UnixMilli(1_700_000_000_000)
	s.SetClock(func() time.Time { return base })
	return s
}

func TestAppendMessage_CreatesConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := &Message{ConversationID: "c1", Role: RoleUser, Content: "hi"}
	if err := s.AppendMessage(ctx, msg, "New Chat"); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	conv, err := s.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if conv == nil {
		t.Fatal("conversation c1 was not created")
	}
	if conv.Title != "New Chat" {
		t.Errorf("Title = %q, want %q", conv.Title, "New Chat")
	}
	if conv.ApproxBytes != 5 {
		t.Errorf("ApproxBytes = %d, want 5", conv.ApproxBytes)
	}

	msgs, err := s.GetMessages(ctx, "c1")
	if err != nil {
		t.Fatalf("GetMessages() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("message count = %d, want 1", len(msgs))
	}
	if msgs[0].Role != RoleUser {
		t.Errorf("Role = %q, want %q", msgs[0].Role, RoleUser)
	}
	if msgs[0].ApproxBytes != 5 {
		t.Errorf("message ApproxBytes = %d, want 5", msgs[0].ApproxBytes)
	}
}

func TestAppendMessage_ExistingConversationKeepsTitle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AppendMessage(ctx, &Message{ConversationID: "c1", Role: RoleUser, Content: "first"}, "Original"); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if err := s.AppendMessage(ctx, &Message{ConversationID: "c1", Role: RoleAssistant, Content: "second"}, "Ignored"); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	conv, err := s.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if conv.Title != "Original" {
		t.Errorf("Title = %q, want %q", conv.Title, "Original")
	}
}

func TestAppendMessage_AccumulatesApproxBytes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	contents := []string{"hi", "hello there", "a longer message body"}
	var want int64
	for _, c := range contents {
		if err := s.AppendMessage(ctx, &Message{ConversationID: "c1", Role: RoleUser, Content: c}, ""); err != nil {
			t.Fatalf("AppendMessage() error = %v", err)
		}
		want += EstimateBytes(c, nil)
	}

	conv, err := s.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if conv.ApproxBytes != want {
		t.Errorf("ApproxBytes = %d, want sum of estimates %d", conv.ApproxBytes, want)
	}

	msgs, err := s.GetMessages(ctx, "c1")
	if err != nil {
		t.Fatalf("GetMessages() error = %v", err)
	}
	var sum int64
	for _, m := range msgs {
		sum += m.ApproxBytes
	}
	if conv.ApproxBytes != sum {
		t.Errorf("conversation ApproxBytes %d != sum of message estimates %d", conv.ApproxBytes, sum)
	}
}

func TestAppendMessage_RequiresConversationID(t *testing.T) {
	s := newTestStore(t)
	if err := s.AppendMessage(context.Background(), &Message{Role: RoleUser, Content: "x"}, ""); err == nil {
		t.Error("AppendMessage() with no conversation id should fail")
	}
}

func TestAppendMessage_PreservesMeta(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	meta := json.RawMessage(`{"attachments":["a.png"],"alt":[2,3]}`)
	msg := &Message{ConversationID: "c1", Role: RoleAssistant, Content: "see attachment", Meta: meta}
	if err := s.AppendMessage(ctx, msg, ""); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	msgs, err := s.GetMessages(ctx, "c1")
	if err != nil {
		t.Fatalf("GetMessages() error = %v", err)
	}
	if string(msgs[0].Meta) != string(meta) {
		t.Errorf("Meta round-trip changed: %s != %s", msgs[0].Meta, meta)
	}
}

func TestCreateConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "My Chat", "deploy-7")
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if conv.ID == "" {
		t.Error("CreateConversation() returned empty id")
	}

	got, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if got == nil {
		t.Fatal("created conversation not found")
	}
	if got.Title != "My Chat" || got.DeploymentID != "deploy-7" {
		t.Errorf("got %+v, want title %q deployment %q", got, "My Chat", "deploy-7")
	}
	if got.ApproxBytes != 0 {
		t.Errorf("new conversation ApproxBytes = %d, want 0", got.ApproxBytes)
	}
}

func TestGetConversation_Missing(t *testing.T) {
	s := newTestStore(t)
	conv, err := s.GetConversation(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if conv != nil {
		t.Errorf("GetConversation(missing) = %+v, want nil", conv)
	}
}

func TestListConversations_MostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.AppendMessage(ctx, &Message{ConversationID: id, Role: RoleUser, Content: "x"}, ""); err != nil {
			t.Fatalf("AppendMessage() error = %v", err)
		}
	}

	convs, err := s.ListConversations(ctx)
	if err != nil {
		t.Fatalf("ListConversations() error = %v", err)
	}
	if len(convs) != 3 {
		t.Fatalf("conversation count = %d, want 3", len(convs))
	}
	for i := 1; i < len(convs); i++ {
		if convs[i-1].UpdatedAt < convs[i].UpdatedAt {
			t.Errorf("conversations not ordered most-recent-first: %d before %d",
				convs[i-1].UpdatedAt, convs[i].UpdatedAt)
		}
	}
	if convs[0].ID != "c" {
		t.Errorf("most recently updated = %q, want %q", convs[0].ID, "c")
	}
}

func TestRenameConversation_BumpsUpdatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AppendMessage(ctx, &Message{ConversationID: "c1", Role: RoleUser, Content: "x"}, ""); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	before, _ := s.GetConversation(ctx, "c1")

	if err := s.RenameConversation(ctx, "c1", "Renamed"); err != nil {
		t.Fatalf("RenameConversation() error = %v", err)
	}
	after, _ := s.GetConversation(ctx, "c1")

	if after.Title != "Renamed" {
		t.Errorf("Title = %q, want %q", after.Title, "Renamed")
	}
	if after.UpdatedAt <= before.UpdatedAt {
		t.Errorf("UpdatedAt not bumped: %d <= %d", after.UpdatedAt, before.UpdatedAt)
	}
}

func TestDeleteConversation_Cascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.AppendMessage(ctx, &Message{ConversationID: "victim", Role: RoleUser, Content: "x"}, ""); err != nil {
			t.Fatalf("AppendMessage() error = %v", err)
		}
	}
	if err := s.AppendMessage(ctx, &Message{ConversationID: "survivor", Role: RoleUser, Content: "y"}, ""); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	if err := s.DeleteConversation(ctx, "victim"); err != nil {
		t.Fatalf("DeleteConversation() error = %v", err)
	}

	conv, _ := s.GetConversation(ctx, "victim")
	if conv != nil {
		t.Error("deleted conversation still present")
	}
	msgs, _ := s.GetMessages(ctx, "victim")
	if len(msgs) != 0 {
		t.Errorf("cascade left %d message(s) behind", len(msgs))
	}
	others, _ := s.GetMessages(ctx, "survivor")
	if len(others) != 1 {
		t.Errorf("unrelated conversation lost messages: %d, want 1", len(others))
	}
}

func TestUpdateMessage_InPlace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := &Message{ConversationID: "c1", Role: RoleAssistant, Content: "draft answer"}
	if err := s.AppendMessage(ctx, msg, ""); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	before, _ := s.GetConversation(ctx, "c1")

	newMeta := json.RawMessage(`{"picked":1}`)
	if err := s.UpdateMessage(ctx, msg.ID, "final answer", newMeta); err != nil {
		t.Fatalf("UpdateMessage() error = %v", err)
	}

	msgs, _ := s.GetMessages(ctx, "c1")
	if msgs[0].Content != "final answer" {
		t.Errorf("Content = %q, want %q", msgs[0].Content, "final answer")
	}
	if string(msgs[0].Meta) != string(newMeta) {
		t.Errorf("Meta = %s, want %s", msgs[0].Meta, newMeta)
	}
	// The cached estimate is computed at write time and not revisited.
	if msgs[0].ApproxBytes != EstimateBytes("draft answer", nil) {
		t.Errorf("ApproxBytes = %d, want original estimate %d", msgs[0].ApproxBytes, EstimateBytes("draft answer", nil))
	}

	after, _ := s.GetConversation(ctx, "c1")
	if after.UpdatedAt <= before.UpdatedAt {
		t.Errorf("UpdatedAt not bumped: %d <= %d", after.UpdatedAt, before.UpdatedAt)
	}
}

func TestUpdateMessage_MissingIsNoop(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpdateMessage(context.Background(), "ghost", "x", nil); err != nil {
		t.Errorf("UpdateMessage(missing) error = %v, want nil", err)
	}
}

func TestClearAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AppendMessage(ctx, &Message{ConversationID: "c1", Role: RoleUser, Content: "x"}, ""); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if err := s.SetKV(ctx, "schemaHint", "v1"); err != nil {
		t.Fatalf("SetKV() error = %v", err)
	}

	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}

	info, err := s.StorageInfo(ctx)
	if err != nil {
		t.Fatalf("StorageInfo() error = %v", err)
	}
	if info.ConversationCount != 0 || info.MessageCount != 0 || info.KVCount != 0 {
		t.Errorf("ClearAll left records behind: %+v", info)
	}
}

func TestKV_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, _ := s.GetKV(ctx, "missing"); ok {
		t.Error("GetKV(missing) reported present")
	}

	if err := s.SetKV(ctx, "k", "v1"); err != nil {
		t.Fatalf("SetKV() error = %v", err)
	}
	if err := s.SetKV(ctx, "k", "v2"); err != nil {
		t.Fatalf("SetKV() overwrite error = %v", err)
	}

	value, ok, err := s.GetKV(ctx, "k")
	if err != nil {
		t.Fatalf("GetKV() error = %v", err)
	}
	if !ok || value != "v2" {
		t.Errorf("GetKV() = (%q, %v), want (%q, true)", value, ok, "v2")
	}
}

func TestStorageInfo(t *testing.T) {
	db := testutil.CreateInMemoryDB(t)
	s := NewStore(db, &StaticQuota{Info: QuotaInfo{Used: 30, Quota: 100}})
	s.SetClock(func() time.Time { return time.UnixMilli(1_700_000_000_000) })
	ctx := context.Background()

	if err := s.AppendMessage(ctx, &Message{ConversationID: "c1", Role: RoleUser, Content: "x"}, ""); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	info, err := s.StorageInfo(ctx)
	if err != nil {
		t.Fatalf("StorageInfo() error = %v", err)
	}
	if info.UsedBytes != 30 || info.QuotaBytes != 100 {
		t.Errorf("usage = %d/%d, want 30/100", info.UsedBytes, info.QuotaBytes)
	}
	if info.UsedPercent != 30 {
		t.Errorf("UsedPercent = %v, want 30", info.UsedPercent)
	}
	if info.ConversationCount != 1 || info.MessageCount != 1 {
		t.Errorf("counts = %d conv / %d msg, want 1/1", info.ConversationCount, info.MessageCount)
	}
}

func TestTick_Monotonic(t *testing.T) {
	s := newTestStore(t)
	prev := s.tick()
	for i := 0; i < 100; i++ {
		next := s.tick()
		if next <= prev {
			t.Fatalf("tick not strictly increasing: %d after %d", next, prev)
		}
		prev = next
	}
}
