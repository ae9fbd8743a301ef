package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kliniksehat/alicia/internal/llm"
)

func TestLongTermSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/memories/search/" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.UserID != "patient-7" {
			t.Errorf("unexpected user id %q", req.UserID)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]string{
				{"memory": "Pasien alergi penisilin"},
				{"memory": "Lebih suka jadwal sore"},
			},
		})
	}))
	defer srv.Close()

	c := NewLongTermClient(LongTermConfig{BaseURL: srv.URL})
	got, err := c.Search(context.Background(), "alergi", "patient-7")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 || got[0] != "Pasien alergi penisilin" {
		t.Errorf("unexpected memories: %v", got)
	}
}

func TestLongTermSaveStripsToolTraffic(t *testing.T) {
	var req saveRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewLongTermClient(LongTermConfig{BaseURL: srv.URL, APIKey: "k"})
	msgs := []llm.Message{
		{Role: "system", Content: "persona"},
		{Role: "user", Content: "Saya alergi penisilin"},
		{Role: "assistant", ToolCalls: []llm.ToolCall{llm.NewToolCall("c1", "knowledge_base_tool", map[string]any{})}},
		{Role: "tool", Content: "passages", ToolCallID: "c1", ToolName: "knowledge_base_tool"},
		{Role: "assistant", Content: "Baik, sudah saya catat."},
	}
	if err := c.Save(context.Background(), msgs, "patient-7", map[string]string{"channel": "chat"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if len(req.Messages) != 2 {
		t.Fatalf("expected 2 saved messages, got %d: %+v", len(req.Messages), req.Messages)
	}
	if req.Messages[0].Role != "user" || req.Messages[1].Role != "assistant" {
		t.Errorf("unexpected roles: %+v", req.Messages)
	}
	if req.Metadata["channel"] != "chat" {
		t.Errorf("metadata not forwarded: %v", req.Metadata)
	}
}

func TestLongTermSaveNothingToSave(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewLongTermClient(LongTermConfig{BaseURL: srv.URL})
	msgs := []llm.Message{{Role: "tool", Content: "x", ToolCallID: "c1"}}
	if err := c.Save(context.Background(), msgs, "u", nil); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if called {
		t.Error("expected no request when there is nothing to save")
	}
}
