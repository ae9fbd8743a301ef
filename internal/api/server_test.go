package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kliniksehat/alicia/internal/agent"
	"github.com/kliniksehat/alicia/internal/approval"
)

type stubAgent struct {
	runResp    *agent.Response
	runErr     error
	resumeResp *agent.Response
	resumeErr  error

	gotConversationID string
	gotMessage        string
	gotApprovalID     string
	gotDecision       approval.Decision
}

func (s *stubAgent) Run(_ context.Context, conversationID, _, message string) (*agent.Response, error) {
	s.gotConversationID = conversationID
	s.gotMessage = message
	return s.runResp, s.runErr
}

func (s *stubAgent) Resume(_ context.Context, approvalID, _ string, d approval.Decision) (*agent.Response, error) {
	s.gotApprovalID = approvalID
	s.gotDecision = d
	if s.resumeErr != nil {
		return nil, s.resumeErr
	}
	return s.resumeResp, nil
}

func newTestServer(t *testing.T, stub *stubAgent) (*Server, *approval.SQLiteStore) {
	t.Helper()
	approvals, err := approval.NewSQLiteStore(filepath.Join(t.TempDir(), "approvals.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { approvals.Close() })
	return NewServer("127.0.0.1", 0, stub, approvals, slog.Default()), approvals
}

func TestChatEndpoint(t *testing.T) {
	stub := &stubAgent{runResp: &agent.Response{Content: "Halo!"}}
	srv, _ := newTestServer(t, stub)

	body := `{"conversation_id":"conv-1","message":"Halo"}`
	req := httptest.NewRequest("POST", "/v1/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Reply != "Halo!" || resp.ConversationID != "conv-1" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if stub.gotMessage != "Halo" {
		t.Errorf("message not forwarded: %q", stub.gotMessage)
	}
}

func TestChatAssignsConversationID(t *testing.T) {
	stub := &stubAgent{runResp: &agent.Response{Content: "Halo!"}}
	srv, _ := newTestServer(t, stub)

	req := httptest.NewRequest("POST", "/v1/chat", strings.NewReader(`{"message":"Halo"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ConversationID == "" {
		t.Error("expected a generated conversation id")
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	srv, _ := newTestServer(t, &stubAgent{})

	req := httptest.NewRequest("POST", "/v1/chat", strings.NewReader(`{"conversation_id":"c"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestApprovalListAndGet(t *testing.T) {
	srv, approvals := newTestServer(t, &stubAgent{})

	a, err := approvals.Create("conv-1", "call_1", "create_doctor_appointment", `{"patient_name":"Budi"}`, "Create appointment")
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/v1/approvals", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	var list struct {
		Approvals []approvalView `json:"approvals"`
		Count     int            `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 1 || list.Approvals[0].ID != a.ID {
		t.Errorf("unexpected list: %+v", list)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/v1/approvals/"+a.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/v1/approvals/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestApprovalDecision(t *testing.T) {
	stub := &stubAgent{resumeResp: &agent.Response{Content: "Janji dibuat."}}
	srv, _ := newTestServer(t, stub)

	body := `{"decision":"accept"}`
	req := httptest.NewRequest("POST", "/v1/approvals/apr-1/decision", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if stub.gotApprovalID != "apr-1" || stub.gotDecision.Kind != approval.DecisionAccept {
		t.Errorf("decision not forwarded: %q %+v", stub.gotApprovalID, stub.gotDecision)
	}
}

func TestApprovalDecisionAlreadyDecided(t *testing.T) {
	stub := &stubAgent{resumeErr: approval.ErrAlreadyDecided}
	srv, _ := newTestServer(t, stub)

	req := httptest.NewRequest("POST", "/v1/approvals/apr-1/decision", strings.NewReader(`{"decision":"accept"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestHealthAndVersion(t *testing.T) {
	srv, _ := newTestServer(t, &stubAgent{})

	for _, path := range []string{"/health", "/v1/version", "/"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status %d", path, rec.Code)
		}
	}
}
