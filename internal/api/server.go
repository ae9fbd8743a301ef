// Package api implements the HTTP API for chat and approval review.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kliniksehat/alicia/internal/agent"
	"github.com/kliniksehat/alicia/internal/approval"
	"github.com/kliniksehat/alicia/internal/buildinfo"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Agent drives conversation turns and approval resumes.
type Agent interface {
	Run(ctx context.Context, conversationID, userID, message string) (*agent.Response, error)
	Resume(ctx context.Context, approvalID, userID string, d approval.Decision) (*agent.Response, error)
}

// Server is the HTTP API server.
type Server struct {
	address   string
	port      int
	loop      Agent
	approvals *approval.SQLiteStore
	logger    *slog.Logger
	server    *http.Server
}

// NewServer creates the API server.
func NewServer(address string, port int, loop Agent, approvals *approval.SQLiteStore, logger *slog.Logger) *Server {
	return &Server{
		address:   address,
		port:      port,
		loop:      loop,
		approvals: approvals,
		logger:    logger,
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat", s.handleChat)

	// Approval review endpoints for clinic staff.
	mux.HandleFunc("GET /v1/approvals", s.handleApprovalList)
	mux.HandleFunc("GET /v1/approvals/{id}", s.handleApprovalGet)
	mux.HandleFunc("POST /v1/approvals/{id}/decision", s.handleApprovalDecide)

	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // model calls can be slow
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// ChatRequest is the inbound chat payload. ConversationID is optional;
// a new one is assigned when absent.
type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	Message        string `json:"message"`
}

// ChatResponse is the chat reply payload.
type ChatResponse struct {
	ConversationID  string `json:"conversation_id"`
	Reply           string `json:"reply"`
	PendingApproval bool   `json:"pending_approval,omitempty"`
	ApprovalID      string `json:"approval_id,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.ConversationID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			s.errorResponse(w, http.StatusInternalServerError, "generate conversation id")
			return
		}
		req.ConversationID = id.String()
	}

	resp, err := s.loop.Run(r.Context(), req.ConversationID, req.UserID, req.Message)
	if err != nil {
		s.logger.Error("chat turn failed", "conversation_id", req.ConversationID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ChatResponse{
		ConversationID:  req.ConversationID,
		Reply:           resp.Content,
		PendingApproval: resp.PendingApproval,
		ApprovalID:      resp.ApprovalID,
	}, s.logger)
}

// approvalView is the staff-facing rendering of an approval record.
type approvalView struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	ToolName       string     `json:"tool_name"`
	Args           string     `json:"args"`
	Description    string     `json:"description"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	DecidedAt      *time.Time `json:"decided_at,omitempty"`
}

func viewOf(a *approval.Approval) approvalView {
	return approvalView{
		ID:             a.ID,
		ConversationID: a.ConversationID,
		ToolName:       a.ToolName,
		Args:           a.Args,
		Description:    a.Description,
		Status:         a.Status,
		CreatedAt:      a.CreatedAt,
		DecidedAt:      a.DecidedAt,
	}
}

func (s *Server) handleApprovalList(w http.ResponseWriter, r *http.Request) {
	pending, err := s.approvals.Pending()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]approvalView, 0, len(pending))
	for _, a := range pending {
		views = append(views, viewOf(a))
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"approvals": views, "count": len(views)}, s.logger)
}

func (s *Server) handleApprovalGet(w http.ResponseWriter, r *http.Request) {
	a, err := s.approvals.Get(r.PathValue("id"))
	if errors.Is(err, approval.ErrNotFound) {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, viewOf(a), s.logger)
}

// DecisionRequest is a staff verdict on a pending approval.
type DecisionRequest struct {
	Decision     string `json:"decision"` // accept, edit, response
	EditedArgs   string `json:"edited_args,omitempty"`
	ResponseText string `json:"response_text,omitempty"`
	UserID       string `json:"user_id,omitempty"`
}

func (s *Server) handleApprovalDecide(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	resp, err := s.loop.Resume(r.Context(), r.PathValue("id"), req.UserID, approval.Decision{
		Kind:         req.Decision,
		EditedArgs:   req.EditedArgs,
		ResponseText: req.ResponseText,
	})
	switch {
	case errors.Is(err, approval.ErrNotFound):
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, approval.ErrAlreadyDecided):
		s.errorResponse(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ChatResponse{
		Reply:           resp.Content,
		PendingApproval: resp.PendingApproval,
		ApprovalID:      resp.ApprovalID,
	}, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Alicia",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}
