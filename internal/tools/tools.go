// Package tools defines the tools available to the agent.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kliniksehat/alicia/internal/calendar"
	"github.com/kliniksehat/alicia/internal/email"
	"github.com/kliniksehat/alicia/internal/schedule"
)

// Calendar is the appointment store the calendar tools operate on.
type Calendar interface {
	ListEvents(ctx context.Context, start, end time.Time, max int) ([]calendar.Event, error)
	GetEvent(ctx context.Context, id string) (*calendar.Event, error)
	CreateEvent(ctx context.Context, ev calendar.Event) (*calendar.Event, error)
	UpdateEvent(ctx context.Context, ev calendar.Event) (*calendar.Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

// Notifier sends patient-facing appointment emails.
type Notifier interface {
	SendAppointmentCreated(ctx context.Context, n email.CreatedNotice) email.Result
	SendAppointmentUpdated(ctx context.Context, n email.UpdatedNotice) email.Result
	SendAppointmentCancelled(ctx context.Context, n email.CancelledNotice) email.Result
}

// Searcher answers free-text questions from the clinic knowledge base.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	// Sensitive tools mutate external state and must pass the
	// approval gate before they run.
	Sensitive bool                                                           `json:"-"`
	Handler   func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Deps are the collaborators the built-in tools operate on.
type Deps struct {
	Calendar       Calendar
	Email          Notifier
	Knowledge      Searcher
	Schedule       *schedule.Weekly
	Location       *time.Location
	ClinicName     string
	ClinicAddress  string
	Logger         *slog.Logger
}

// Registry holds the closed set of tools the model may call.
type Registry struct {
	tools map[string]*Tool
	order []string
	deps  Deps
}

// NewRegistry creates the tool registry.
func NewRegistry(deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := &Registry{
		tools: make(map[string]*Tool),
		deps:  deps,
	}
	r.registerBuiltins()
	return r
}

func (r *Registry) register(t *Tool) {
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Sensitive reports whether a tool requires approval before running.
func (r *Registry) Sensitive(name string) bool {
	t := r.tools[name]
	return t != nil && t.Sensitive
}

// List returns all tools for the LLM, in registration order.
func (r *Registry) List() []map[string]any {
	result := make([]map[string]any, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute runs a tool by name with given arguments. Required fields
// from the tool's schema are checked before the handler runs.
func (r *Registry) Execute(ctx context.Context, name string, argsJSON string) (string, error) {
	tool := r.tools[name]
	if tool == nil {
		return "", &ErrToolUnavailable{ToolName: name}
	}

	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
	}

	if err := checkRequired(tool.Parameters, args); err != nil {
		return "", err
	}

	return tool.Handler(ctx, args)
}

func checkRequired(params map[string]any, args map[string]any) error {
	required, _ := params["required"].([]string)
	for _, field := range required {
		v, ok := args[field]
		if !ok || v == nil {
			return fmt.Errorf("missing required field %q", field)
		}
		if s, isStr := v.(string); isStr && s == "" {
			return fmt.Errorf("missing required field %q", field)
		}
	}
	return nil
}

// result is the structured payload every tool returns, serialized to
// JSON for the model.
type result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	EventID string `json:"event_id,omitempty"`
	Event   any    `json:"event,omitempty"`
	Events  any    `json:"events,omitempty"`
	Count   int    `json:"count,omitempty"`
	Answer  string `json:"answer,omitempty"`
}

func (res result) encode() (string, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(raw), nil
}

func failure(format string, args ...any) (string, error) {
	return result{Success: false, Message: fmt.Sprintf(format, args...)}.encode()
}
