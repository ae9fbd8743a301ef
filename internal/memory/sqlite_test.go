package memory

import (
	"path/filepath"
	"testing"

	"github.com/kliniksehat/alicia/internal/llm"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"), 100)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAddAndGetMessages(t *testing.T) {
	store := newTestStore(t)

	msgs := []llm.Message{
		{Role: "user", Content: "Halo, saya mau buat janji"},
		{Role: "assistant", Content: "", ToolCalls: []llm.ToolCall{
			llm.NewToolCall("call_1", "get_doctor_schedule_appointments", map[string]any{"start_date": "2025-06-02"}),
		}},
		{Role: "tool", Content: `{"events":[]}`, ToolCallID: "call_1", ToolName: "get_doctor_schedule_appointments"},
		{Role: "assistant", Content: "Jadwal tanggal itu masih kosong."},
	}
	for _, m := range msgs {
		if err := store.AddMessage("conv-1", m); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
	}

	got := store.GetMessages("conv-1")
	if len(got) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(got))
	}
	if got[1].Role != "assistant" || len(got[1].ToolCalls) != 1 {
		t.Errorf("tool calls not round-tripped: %+v", got[1])
	}
	if got[1].ToolCalls[0].Function.Name != "get_doctor_schedule_appointments" {
		t.Errorf("unexpected tool name %q", got[1].ToolCalls[0].Function.Name)
	}
	if got[2].ToolCallID != "call_1" || got[2].ToolName != "get_doctor_schedule_appointments" {
		t.Errorf("tool result correlation lost: %+v", got[2])
	}
}

func TestGetMessagesKeepsNewestWhenCapped(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"), 3)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	for _, content := range []string{"msg-1", "msg-2", "msg-3", "msg-4"} {
		if err := store.AddMessage("conv", llm.Message{Role: "user", Content: content}); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
	}

	got := store.GetMessages("conv")
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	// The window must slide forward: oldest dropped, latest turn kept,
	// chronological order preserved.
	for i, want := range []string{"msg-2", "msg-3", "msg-4"} {
		if got[i].Content != want {
			t.Errorf("message %d = %q, want %q", i, got[i].Content, want)
		}
	}
}

func TestConversationsAreIsolated(t *testing.T) {
	store := newTestStore(t)

	if err := store.AddMessage("a", llm.Message{Role: "user", Content: "first"}); err != nil {
		t.Fatal(err)
	}
	if err := store.AddMessage("b", llm.Message{Role: "user", Content: "second"}); err != nil {
		t.Fatal(err)
	}

	if got := store.GetMessages("a"); len(got) != 1 || got[0].Content != "first" {
		t.Errorf("conversation a: %+v", got)
	}
	if got := store.GetMessages("b"); len(got) != 1 || got[0].Content != "second" {
		t.Errorf("conversation b: %+v", got)
	}
}

func TestClear(t *testing.T) {
	store := newTestStore(t)

	if err := store.AddMessage("conv", llm.Message{Role: "user", Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear("conv"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got := store.GetMessages("conv"); len(got) != 0 {
		t.Errorf("expected no messages after clear, got %d", len(got))
	}
}
