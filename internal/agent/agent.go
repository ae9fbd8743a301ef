// Package agent implements Alicia's conversation loop: model call,
// tool-call routing, tool execution, approval gating for sensitive
// actions, and the retry guard for empty model output.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kliniksehat/alicia/internal/approval"
	"github.com/kliniksehat/alicia/internal/llm"
	"github.com/kliniksehat/alicia/internal/memory"
	"github.com/kliniksehat/alicia/internal/prompts"
	"github.com/kliniksehat/alicia/internal/schedule"
	"github.com/kliniksehat/alicia/internal/tools"
)

const (
	defaultMaxIterations = 10
	defaultMaxRetries    = 3
)

// ErrProtocolViolation is returned when the conversation state breaks
// the model API's alternation contract (routing saw a non-assistant
// message where an assistant message is required).
var ErrProtocolViolation = errors.New("conversation protocol violated")

// Approvals is the durable store for suspended sensitive tool calls.
type Approvals interface {
	Create(conversationID, toolCallID, toolName, args, description string) (*approval.Approval, error)
	Decide(id string, d approval.Decision) (*approval.Approval, error)
	PendingForConversation(conversationID string) (*approval.Approval, error)
}

// Response is the outcome of one agent invocation.
type Response struct {
	Content         string
	PendingApproval bool
	ApprovalID      string
	Model           string
	InputTokens     int
	OutputTokens    int
}

// Config for the agent loop.
type Config struct {
	Model         string
	ClinicName    string
	ClinicAddress string
	MaxIterations int
	MaxRetries    int // empty-response nudges before the fallback reply
}

// Loop drives a conversation turn. All collaborators are injected.
type Loop struct {
	logger    *slog.Logger
	llm       llm.Client
	registry  *tools.Registry
	store     memory.Store
	longterm  memory.LongTerm
	approvals Approvals
	week      *schedule.Weekly
	cfg       Config

	now func() time.Time
}

// New creates the agent loop.
func New(logger *slog.Logger, client llm.Client, registry *tools.Registry,
	store memory.Store, longterm memory.LongTerm, approvals Approvals,
	week *schedule.Weekly, cfg Config) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if logger == nil {
		logger = slog.Default()
	}
	if longterm == nil {
		longterm = memory.NoopLongTerm{}
	}
	return &Loop{
		logger:    logger,
		llm:       client,
		registry:  registry,
		store:     store,
		longterm:  longterm,
		approvals: approvals,
		week:      week,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Run processes one user message and returns the assistant's reply, or
// a pending-approval response if a sensitive tool call suspended the
// turn.
func (l *Loop) Run(ctx context.Context, conversationID, userID, userMessage string) (*Response, error) {
	if pending, err := l.approvals.PendingForConversation(conversationID); err == nil {
		l.logger.Info("conversation suspended on approval", "conversation_id", conversationID, "approval_id", pending.ID)
		// Keep the patient's words in history so the model sees them
		// after the resume, even though this turn only reports the wait.
		if err := l.store.AddMessage(conversationID, llm.Message{Role: "user", Content: userMessage}); err != nil {
			return nil, fmt.Errorf("persist user message: %w", err)
		}
		return &Response{
			Content:         prompts.ApprovalPending,
			PendingApproval: true,
			ApprovalID:      pending.ID,
		}, nil
	} else if !errors.Is(err, approval.ErrNotFound) {
		return nil, fmt.Errorf("check pending approvals: %w", err)
	}

	if err := l.store.AddMessage(conversationID, llm.Message{Role: "user", Content: userMessage}); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	memories := l.recallMemories(ctx, userMessage, userID)
	messages := l.buildMessages(conversationID, memories)

	return l.loop(ctx, conversationID, userID, messages)
}

// Resume applies a reviewer decision to a suspended tool call and
// continues the conversation until the next final reply or suspension.
func (l *Loop) Resume(ctx context.Context, approvalID, userID string, d approval.Decision) (*Response, error) {
	a, err := l.approvals.Decide(approvalID, d)
	if err != nil {
		return nil, err
	}

	ctx = tools.WithConversationID(ctx, a.ConversationID)

	var content string
	switch a.Status {
	case approval.StatusAccepted:
		content = l.runTool(ctx, a.ToolName, a.Args)
	case approval.StatusEdited:
		content = l.runTool(ctx, a.ToolName, a.EditedArgs)
	case approval.StatusAnswered:
		// The reviewer's feedback stands in for the tool result; the
		// model reads it as user pushback.
		content = a.ResponseText
	default:
		return nil, fmt.Errorf("approval %s in unexpected state %q", a.ID, a.Status)
	}

	toolMsg := llm.Message{
		Role:       "tool",
		Content:    content,
		ToolCallID: a.ToolCallID,
		ToolName:   a.ToolName,
	}
	if err := l.store.AddMessage(a.ConversationID, toolMsg); err != nil {
		return nil, fmt.Errorf("persist tool result: %w", err)
	}

	messages := l.buildMessages(a.ConversationID, nil)

	// The suspended batch may have further calls after the decided one.
	if resp, suspended, err := l.finishBatch(ctx, a.ConversationID, messages); err != nil {
		return nil, err
	} else if suspended {
		return resp, nil
	}

	messages = l.buildMessages(a.ConversationID, nil)
	return l.loop(ctx, a.ConversationID, userID, messages)
}

// loop runs model calls and tool batches until a final reply, a
// suspension, or the iteration cap.
func (l *Loop) loop(ctx context.Context, conversationID, userID string, messages []llm.Message) (*Response, error) {
	ctx = tools.WithConversationID(ctx, conversationID)

	for i := 0; i < l.cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("turn cancelled: %w", err)
		}

		resp, updated, err := l.callWithRetry(ctx, conversationID, messages)
		if err != nil {
			return nil, err
		}
		messages = updated

		messages = append(messages, resp.Message)
		if err := l.store.AddMessage(conversationID, resp.Message); err != nil {
			return nil, fmt.Errorf("persist assistant message: %w", err)
		}

		toolCalls, final, err := route(messages)
		if err != nil {
			return nil, err
		}
		if final {
			l.saveMemoryAsync(conversationID, userID, messages)
			return &Response{
				Content:      resp.Message.Content,
				Model:        resp.Model,
				InputTokens:  resp.InputTokens,
				OutputTokens: resp.OutputTokens,
			}, nil
		}

		suspendedResp, suspended, err := l.executeBatch(ctx, conversationID, toolCalls, &messages)
		if err != nil {
			return nil, err
		}
		if suspended {
			return suspendedResp, nil
		}
	}

	l.logger.Warn("iteration cap reached, forcing final response", "conversation_id", conversationID)
	return l.forceTextResponse(ctx, conversationID, userID, messages)
}

// callWithRetry wraps the model call with the empty-response guard: if
// the reply has neither tool calls nor text, a corrective user turn is
// appended and the model is called again, up to MaxRetries nudges.
func (l *Loop) callWithRetry(ctx context.Context, conversationID string, messages []llm.Message) (*llm.ChatResponse, []llm.Message, error) {
	toolDefs := l.registry.List()

	for attempt := 0; ; attempt++ {
		resp, err := l.llm.Chat(ctx, l.cfg.Model, messages, toolDefs)
		if err != nil {
			return nil, nil, fmt.Errorf("model call failed: %w", err)
		}

		if resp.HasToolCalls() || strings.TrimSpace(resp.Message.Content) != "" {
			return resp, messages, nil
		}

		if attempt >= l.cfg.MaxRetries {
			l.logger.Warn("model stayed empty after nudges, using fallback",
				"conversation_id", conversationID, "attempts", attempt+1)
			resp.Message = llm.Message{Role: "assistant", Content: prompts.RetryFallback}
			return resp, messages, nil
		}

		l.logger.Debug("empty model response, nudging", "conversation_id", conversationID, "attempt", attempt+1)
		nudge := llm.Message{Role: "user", Content: prompts.RetryNudge}
		messages = append(messages, nudge)
		if err := l.store.AddMessage(conversationID, nudge); err != nil {
			return nil, nil, fmt.Errorf("persist nudge: %w", err)
		}
	}
}

// route inspects the last message. A non-assistant message here is a
// protocol violation, never silently skipped.
func route(messages []llm.Message) ([]llm.ToolCall, bool, error) {
	if len(messages) == 0 {
		return nil, false, fmt.Errorf("%w: empty conversation", ErrProtocolViolation)
	}
	last := messages[len(messages)-1]
	if last.Role != "assistant" {
		return nil, false, fmt.Errorf("%w: expected assistant message, got %q", ErrProtocolViolation, last.Role)
	}
	if len(last.ToolCalls) == 0 {
		return nil, true, nil
	}
	return last.ToolCalls, false, nil
}

// executeBatch runs the tool calls in request order, appending one
// result per call. The first sensitive call suspends the turn with a
// pending approval; preceding results are already persisted.
func (l *Loop) executeBatch(ctx context.Context, conversationID string, toolCalls []llm.ToolCall, messages *[]llm.Message) (*Response, bool, error) {
	for _, tc := range toolCalls {
		if l.registry.Sensitive(tc.Function.Name) {
			argsJSON := marshalArgs(tc.Function.Arguments)
			a, err := l.approvals.Create(conversationID, tc.ID, tc.Function.Name, argsJSON,
				describeAction(tc.Function.Name, tc.Function.Arguments))
			if err != nil {
				return nil, false, fmt.Errorf("create approval: %w", err)
			}
			l.logger.Info("sensitive tool suspended for approval",
				"conversation_id", conversationID, "tool", tc.Function.Name, "approval_id", a.ID)
			return &Response{
				Content:         prompts.ApprovalPending,
				PendingApproval: true,
				ApprovalID:      a.ID,
			}, true, nil
		}

		result := l.runTool(ctx, tc.Function.Name, marshalArgs(tc.Function.Arguments))
		msg := llm.Message{
			Role:       "tool",
			Content:    result,
			ToolCallID: tc.ID,
			ToolName:   tc.Function.Name,
		}
		*messages = append(*messages, msg)
		if err := l.store.AddMessage(conversationID, msg); err != nil {
			return nil, false, fmt.Errorf("persist tool result: %w", err)
		}
	}
	return nil, false, nil
}

// finishBatch completes any unanswered tool calls from the last
// assistant message after a resume. Returns suspended=true if another
// sensitive call was hit.
func (l *Loop) finishBatch(ctx context.Context, conversationID string, messages []llm.Message) (*Response, bool, error) {
	// Find the last assistant message carrying tool calls and collect
	// which of them already have results.
	idx := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "assistant" && len(messages[i].ToolCalls) > 0 {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false, nil
	}

	answered := make(map[string]bool)
	for _, m := range messages[idx+1:] {
		if m.Role == "tool" && m.ToolCallID != "" {
			answered[m.ToolCallID] = true
		}
	}

	var remaining []llm.ToolCall
	for _, tc := range messages[idx].ToolCalls {
		if !answered[tc.ID] {
			remaining = append(remaining, tc)
		}
	}
	if len(remaining) == 0 {
		return nil, false, nil
	}

	return l.executeBatch(ctx, conversationID, remaining, &messages)
}

// runTool executes a tool and converts failures into a synthetic
// result that tells the model to correct itself, keeping the loop
// alive instead of aborting the conversation.
func (l *Loop) runTool(ctx context.Context, name, argsJSON string) string {
	start := time.Now()
	result, err := l.registry.Execute(ctx, name, argsJSON)
	if err != nil {
		l.logger.Error("tool execution failed", "tool", name, "error", err)
		return fmt.Sprintf("Error: %v\nPlease fix your mistakes.", err)
	}
	l.logger.Debug("tool executed", "tool", name,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return result
}

// forceTextResponse asks for a final answer with no tools bound.
func (l *Loop) forceTextResponse(ctx context.Context, conversationID, userID string, messages []llm.Message) (*Response, error) {
	messages = append(messages, llm.Message{
		Role:    "user",
		Content: "Please give your final answer to the patient based on the information gathered so far.",
	})

	resp, err := l.llm.Chat(ctx, l.cfg.Model, messages, nil)
	if err != nil {
		return nil, fmt.Errorf("forced final call failed: %w", err)
	}

	content := strings.TrimSpace(resp.Message.Content)
	if content == "" {
		content = prompts.RetryFallback
	}

	final := llm.Message{Role: "assistant", Content: content}
	messages = append(messages, final)
	if err := l.store.AddMessage(conversationID, final); err != nil {
		return nil, fmt.Errorf("persist final message: %w", err)
	}

	l.saveMemoryAsync(conversationID, userID, messages)
	return &Response{
		Content:      content,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}

func (l *Loop) buildMessages(conversationID string, memories []string) []llm.Message {
	system := prompts.System(l.cfg.ClinicName, l.cfg.ClinicAddress, l.week.Describe(), l.now(), memories)
	history := l.store.GetMessages(conversationID)

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: "system", Content: system})
	return append(messages, history...)
}

func (l *Loop) recallMemories(ctx context.Context, query, userID string) []string {
	if userID == "" {
		return nil
	}
	memories, err := l.longterm.Search(ctx, query, userID)
	if err != nil {
		l.logger.Warn("long-term memory search failed", "user_id", userID, "error", err)
		return nil
	}
	return memories
}

// saveMemoryAsync records the finished turn for fact extraction. Its
// outcome must never block or fail the user-visible turn.
func (l *Loop) saveMemoryAsync(conversationID, userID string, messages []llm.Message) {
	if userID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := l.longterm.Save(ctx, messages, userID, map[string]string{
			"conversation_id": conversationID,
		}); err != nil {
			l.logger.Warn("long-term memory save failed", "conversation_id", conversationID, "error", err)
			return
		}
		l.logger.Debug("long-term memory saved", "conversation_id", conversationID)
	}()
}

func marshalArgs(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func describeAction(name string, args map[string]any) string {
	var parts []string
	for _, key := range []string{"patient_name", "appointment_datetime", "event_id", "reason"} {
		if v, ok := args[key].(string); ok && v != "" {
			parts = append(parts, fmt.Sprintf("%s=%s", key, v))
		}
	}
	if len(parts) == 0 {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, strings.Join(parts, ", "))
}
